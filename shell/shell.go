package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/casement-ui/casement/bridge"
	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
	"github.com/casement-ui/casement/state"
	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/vap"
	"github.com/casement-ui/casement/wire"
)

// Options configures a shell session.
type Options struct {
	// Endpoint is where the host is listening, from the launch flags.
	Endpoint transport.Endpoint
	// Root is the project root for disk-backed asset resolution. The
	// init command's root field overrides it when set.
	Root string
	// BridgeID tags log entries; assigned by the host.
	BridgeID string
	// Driver is the rendering engine. Defaults to Headless.
	Driver Driver
	// Origin is an optional remote asset fallback.
	Origin vap.Origin
	// Logger defaults to a shell-component logger on stderr.
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
}

// Shell is one rendering-shell session: it dials the host, performs
// the app_ready handshake, and runs the command loop until the host
// orders close or the transport severs.
type Shell struct {
	opts    Options
	logger  *log.Logger
	metrics *metrics.Collector

	driver     Driver
	window     *Window
	stubs      *bridge.Stubs
	assets     *vap.Store
	mirror     *state.Mirror
	dispatcher *Dispatcher

	encoder *wire.Encoder

	resolverMu sync.Mutex
	resolver   *vap.Resolver
}

// New assembles a shell from options.
func New(opts Options) *Shell {
	if opts.Logger == nil {
		opts.Logger = log.NewLogger("shell", opts.BridgeID)
	}
	if opts.Driver == nil {
		opts.Driver = NewHeadless()
	}

	s := &Shell{
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Collector,
		driver:  opts.Driver,
		assets:  vap.NewStore(),
		mirror:  state.NewMirror(),
	}
	s.stubs = bridge.NewStubs(s)
	s.window = NewWindow(s.driver)
	s.dispatcher = NewDispatcher(
		s.window, s.stubs, s.assets, s.mirror, s.metrics, s.logger,
		s.emitLifecycle, s.emitReply,
	)
	s.setResolver(opts.Root)
	return s
}

// Stubs returns the RPC stub table; the driver routes page invocations
// through it.
func (s *Shell) Stubs() *bridge.Stubs { return s.stubs }

// Mirror returns the read-only state mirror.
func (s *Shell) Mirror() *state.Mirror { return s.mirror }

// Assets returns the in-memory asset store.
func (s *Shell) Assets() *vap.Store { return s.assets }

// Resolve answers one intercepted asset URL. Drivers call it from
// their interception hook.
func (s *Shell) Resolve(ctx context.Context, rawURL string) *vap.Response {
	s.resolverMu.Lock()
	resolver := s.resolver
	s.resolverMu.Unlock()
	return resolver.Resolve(ctx, rawURL)
}

func (s *Shell) setResolver(root string) {
	s.resolverMu.Lock()
	s.resolver = vap.NewResolver(s.assets, root, s.opts.Origin, s.metrics, s.logger)
	s.resolverMu.Unlock()
}

// Run dials the host and drives the session to completion. A nil
// return means the host ordered a clean close; any error means the
// session died (severed transport, unrecoverable framing, failed
// window creation) and the process should exit nonzero.
func (s *Shell) Run(ctx context.Context) error {
	conn, err := transport.Dial(ctx, s.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("dial host: %w", err)
	}
	defer func() { _ = conn.Close() }()

	s.encoder = wire.NewEncoder(conn)
	s.stubs.SetReady()
	defer s.reportSession()

	// Handshake first: the host holds every outbound command until
	// app_ready arrives.
	if err := s.emitLifecycle(types.LifecycleAppReady, ""); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	s.logger.Info("connected to host", map[string]any{
		"endpoint": s.opts.Endpoint.String(),
	})

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	decoder := wire.NewDecoder(conn)
	go s.readLoop(ctx, decoder, frames, readErr)

	driverEvents := make(chan DriverEvent, 8)
	s.driver.Notify(driverEvents)

	defer s.stubs.FailAll(bridge.ErrNotConnected)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-driverEvents:
			if err := s.handleDriverEvent(ev); err != nil {
				return err
			}

		case body := <-frames:
			done, err := s.handleFrame(body)
			if err != nil {
				return err
			}
			if done {
				err := s.window.Destroy()
				s.logger.Info("session closed by host", nil)
				return err
			}

		case err := <-readErr:
			if err == io.EOF {
				return fmt.Errorf("host closed connection")
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

// reportSession logs the final metrics snapshot when the session ends,
// clean or not.
func (s *Shell) reportSession() {
	if s.metrics == nil {
		return
	}
	s.logger.Info("session report", s.metrics.Snapshot().Fields())
}

// readLoop feeds complete frames to the dispatcher goroutine. Any read
// error ends the loop: framing cannot re-synchronize a broken stream.
func (s *Shell) readLoop(ctx context.Context, decoder *wire.Decoder, frames chan<- []byte, readErr chan<- error) {
	for {
		body, err := decoder.ReadFrame()
		if err != nil {
			readErr <- err
			return
		}
		s.metrics.AddFrameRead(len(body))
		select {
		case frames <- body:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame decodes and dispatches one command frame. A body that
// fails to decode is logged and skipped; the connection survives.
func (s *Shell) handleFrame(body []byte) (done bool, err error) {
	cmd, err := wire.DecodeCommand(body)
	if err != nil {
		if wire.IsFatalFrameError(err) {
			return false, err
		}
		s.metrics.IncDecodeError()
		s.logger.Warn("skipping undecodable command", map[string]any{
			"error": err.Error(),
		})
		return false, nil
	}

	// The init command's root field points asset resolution at the
	// project directory.
	if init, ok := cmd.(*types.InitCommand); ok && init.Options.Root != "" {
		s.setResolver(init.Options.Root)
	}

	return s.dispatcher.Dispatch(cmd)
}

func (s *Shell) handleDriverEvent(ev DriverEvent) error {
	switch ev {
	case EventPageReady:
		return s.emitLifecycle(types.LifecycleReady, "")
	case EventCloseRequested:
		// Forward and keep running: the close decision belongs to the
		// host, which answers with hide or close.
		return s.emitLifecycle(types.LifecycleClose, "")
	default:
		s.logger.Warn("unknown driver event", map[string]any{"event": int(ev)})
		return nil
	}
}

// emitLifecycle sends one lifecycle envelope to the host.
func (s *Shell) emitLifecycle(event types.LifecycleEvent, hwnd string) error {
	s.metrics.IncLifecycle(string(event))
	return s.emitEnvelope(types.MessageLifecycle, types.LifecyclePayload{
		Event: event,
		HWND:  hwnd,
	})
}

// emitReply answers a host command that carried a correlation id.
func (s *Shell) emitReply(payload types.CommandReplyPayload) error {
	return s.emitEnvelope(types.MessageCommandReply, payload)
}

// EmitIPC implements bridge.Emitter: it forwards a page invocation of
// a bound host function.
func (s *Shell) EmitIPC(inv *types.IPCPayload) error {
	s.metrics.IncCallStarted()
	return s.emitEnvelope(types.MessageIPC, inv)
}

func (s *Shell) emitEnvelope(mt types.MessageType, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", mt, err)
	}
	body, err := json.Marshal(types.Envelope{Type: mt, Payload: encoded})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", mt, err)
	}
	if err := s.encoder.WriteFrame(body); err != nil {
		return err
	}
	s.metrics.AddFrameWritten(len(body))
	return nil
}
