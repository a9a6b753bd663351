package host

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/casement-ui/casement/transport"
)

// shellCommand builds the exec.Cmd launching the rendering shell. The
// transport address travels exclusively through launch flags; the
// shell has no other way to find the host.
func shellCommand(ctx context.Context, path string, extraArgs []string, ep transport.Endpoint, addr, root, bridgeID string) *exec.Cmd {
	args := make([]string, 0, len(extraArgs)+8)

	switch ep.Kind {
	case transport.KindTCP:
		args = append(args, "--port", addr)
	case transport.KindUnix:
		args = append(args, "--socket", addr)
	case transport.KindPipe:
		args = append(args, "--pipe", addr)
	}
	if root != "" {
		args = append(args, "--root", root)
	}
	if bridgeID != "" {
		args = append(args, "--bridge-id", bridgeID)
	}
	args = append(args, extraArgs...)

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// watchShell reaps the shell process and reports its exit. The
// dead-man's switch: a shell that dies without a close handshake
// surfaces here and fails the session fast instead of hanging reads.
func watchShell(cmd *exec.Cmd, exited chan<- error) {
	err := cmd.Wait()
	if err != nil {
		exited <- fmt.Errorf("shell process exited: %w", err)
		return
	}
	exited <- nil
}
