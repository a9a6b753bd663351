// Package main provides the casement-shell entrypoint: the rendering
// shell process spawned by a casement host.
//
// Usage:
//
//	casement-shell --port <host:port> [options]
//	casement-shell --socket <path> [options]
//	casement-shell --pipe <base-path> [options]
//
// Exit codes:
//   - 0: clean close ordered by the host
//   - 1: transport or framing failure
//   - 2: bad launch flags
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
	"github.com/casement-ui/casement/shell"
	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/vap"
)

// Exit codes of the shell process contract.
const (
	exitClean     = 0
	exitTransport = 1
	exitBadFlags  = 2
)

func main() {
	app := &cli.App{
		Name:           "casement-shell",
		Usage:          "Casement rendering shell - hosts the window and bridges to a casement host",
		Version:        types.Version,
		ExitErrHandler: exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Connect over loopback TCP (host:port or bare port)",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Connect over a Unix domain socket path",
			},
			&cli.StringFlag{
				Name:  "pipe",
				Usage: "Connect over dual named pipes at <base>-in and <base>-out",
			},
			&cli.StringFlag{
				Name:  "root",
				Usage: "Project root for disk-backed asset resolution",
			},
			&cli.StringFlag{
				Name:  "bridge-id",
				Usage: "Session identifier assigned by the host",
			},
			&cli.StringFlag{
				Name:  "s3-bucket",
				Usage: "S3 bucket used as a remote asset fallback",
			},
			&cli.StringFlag{
				Name:  "s3-prefix",
				Usage: "Key prefix within the asset bucket",
			},
			&cli.StringFlag{
				Name:  "s3-region",
				Usage: "AWS region for the asset bucket",
			},
			&cli.StringFlag{
				Name:  "s3-endpoint",
				Usage: "Custom S3 endpoint (R2, MinIO)",
			},
			&cli.BoolFlag{
				Name:  "s3-path-style",
				Usage: "Force path-style S3 addressing",
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(exitTransport)
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes
// from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitTransport)
}

func runAction(c *cli.Context) error {
	ep, err := endpointFromFlags(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("casement-shell: %v", err), exitBadFlags)
	}

	bridgeID := c.String("bridge-id")
	logger := log.NewLogger("shell", bridgeID)
	collector := metrics.NewCollector(string(ep.Kind), bridgeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var origin vap.Origin
	if bucket := c.String("s3-bucket"); bucket != "" {
		origin, err = vap.NewS3Origin(ctx, vap.S3Config{
			Bucket:       bucket,
			Prefix:       c.String("s3-prefix"),
			Region:       c.String("s3-region"),
			Endpoint:     c.String("s3-endpoint"),
			UsePathStyle: c.Bool("s3-path-style"),
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("casement-shell: asset origin: %v", err), exitBadFlags)
		}
	}

	s := shell.New(shell.Options{
		Endpoint:  ep,
		Root:      c.String("root"),
		BridgeID:  bridgeID,
		Origin:    origin,
		Logger:    logger,
		Collector: collector,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := s.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("casement-shell: %v", err), exitTransport)
	}
	return cli.Exit("", exitClean)
}

// endpointFromFlags derives the transport endpoint from the launch
// flags. Exactly one of --port, --socket, --pipe must be set.
func endpointFromFlags(c *cli.Context) (transport.Endpoint, error) {
	port := c.String("port")
	socket := c.String("socket")
	pipe := c.String("pipe")

	set := 0
	for _, v := range []string{port, socket, pipe} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return transport.Endpoint{}, errors.New("exactly one of --port, --socket, --pipe is required")
	}

	switch {
	case port != "":
		addr := port
		if !strings.Contains(addr, ":") {
			addr = "127.0.0.1:" + addr
		}
		return transport.Endpoint{Kind: transport.KindTCP, Addr: addr}, nil
	case socket != "":
		return transport.Endpoint{Kind: transport.KindUnix, Addr: socket}, nil
	default:
		return transport.Endpoint{Kind: transport.KindPipe, Addr: pipe}, nil
	}
}
