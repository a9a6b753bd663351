// Package main provides the casement-trace protocol debugger.
//
// Usage:
//
//	casement-trace view <capture-file>    interactive frame viewer
//	casement-trace dump <capture-file>    plain-text frame listing
//	casement-trace probe --port <addr>    impersonate a shell and record
//
// Capture files are produced by a host configured with a capture
// writer, or by the probe command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/casement-ui/casement/iox"
	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/tui"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/wire"
)

func main() {
	app := &cli.App{
		Name:    "casement-trace",
		Usage:   "Casement protocol debugger - view and record bridge frame traffic",
		Version: types.Version,
		Commands: []*cli.Command{
			viewCommand(),
			dumpCommand(),
			probeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "Open a capture file in the interactive viewer",
		ArgsUsage: "<capture-file>",
		Action: func(c *cli.Context) error {
			header, frames, err := loadCapture(c.Args().First())
			if err != nil {
				return err
			}
			return tui.RunTrace(header, frames)
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "Print a capture file as one line per frame",
		ArgsUsage: "<capture-file>",
		Action: func(c *cli.Context) error {
			header, frames, err := loadCapture(c.Args().First())
			if err != nil {
				return err
			}

			started := time.Unix(0, header.StartedAt).Format(time.RFC3339)
			fmt.Printf("capture v%s, started %s, %d frames\n", header.Version, started, len(frames))
			for _, frame := range frames {
				at := time.Unix(0, frame.ObservedAt).Format("15:04:05.000")
				fmt.Printf("%4d  %s  %-4s  %-20s  %s\n",
					frame.Seq, at, frame.Direction, tui.FrameSummary(frame), frame.Body)
			}
			return nil
		},
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Dial a waiting host as if this were a shell, print and record every command it sends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Host TCP address (host:port or bare port)",
			},
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Host Unix socket path",
			},
			&cli.StringFlag{
				Name:  "pipe",
				Usage: "Host pipe base path",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Capture file to write",
				Value: "casement-probe.capture",
			},
		},
		Action: probeAction,
	}
}

func probeAction(c *cli.Context) error {
	ep, err := endpointFromFlags(c)
	if err != nil {
		return err
	}

	out, err := os.Create(c.String("out"))
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	defer iox.DiscardClose(out)

	capture, err := wire.NewCaptureWriter(out)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	conn, err := transport.Dial(ctx, ep)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(conn)

	// Impersonate the handshake so the host flushes its queue.
	handshake := []byte(`{"type":"lifecycle","payload":{"event":"app_ready"}}`)
	if err := wire.NewEncoder(conn).WriteFrame(handshake); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := capture.Record(wire.DirShellToHost, handshake); err != nil {
		return err
	}
	fmt.Printf("probing %s, capture -> %s\n", ep, c.String("out"))

	decoder := wire.NewDecoder(conn)
	for {
		if ctx.Err() != nil {
			return nil
		}
		body, err := decoder.ReadFrame()
		if err != nil {
			if err == io.EOF {
				fmt.Println("host closed the connection")
				return nil
			}
			return err
		}
		if err := capture.Record(wire.DirHostToShell, body); err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05.000"), body)
	}
}

func loadCapture(path string) (*wire.CaptureHeader, []wire.CapturedFrame, error) {
	if path == "" {
		return nil, nil, errors.New("capture file argument is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer iox.DiscardClose(f)
	return wire.ReadCapture(f)
}

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
