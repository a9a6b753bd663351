// Package host implements the application side of the bridge: it
// spawns the rendering shell, owns the transport listener and the
// single outbound writer, queues commands until the app_ready
// handshake, and runs the envelope loop correlating lifecycle events,
// rendering-side calls, and command replies.
package host

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casement-ui/casement/adapter"
	"github.com/casement-ui/casement/bridge"
	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
	"github.com/casement-ui/casement/state"
	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/wire"
)

// DefaultAcceptTimeout bounds how long the host waits for the spawned
// shell to connect back.
const DefaultAcceptTimeout = 30 * time.Second

// Options configures a host application.
type Options struct {
	// Endpoint is the transport to listen on. The zero value picks an
	// ephemeral loopback TCP port.
	Endpoint transport.Endpoint
	// ShellPath is the shell binary to spawn. Empty means the caller
	// launches the shell out of band (useful in tests).
	ShellPath string
	// ShellArgs are extra flags appended after the transport flags.
	ShellArgs []string
	// Root is the project root for disk-backed asset resolution.
	Root string
	// Window is the configuration sent with the init command.
	Window types.WindowOptions
	// BridgeID tags both processes' logs. Defaults to a random id.
	BridgeID string

	// OnClose decides what a window close request does. Defaults to
	// CloseTerminate.
	OnClose CloseHandler
	// OnReady fires after the first paint.
	OnReady func()
	// OnWindowCreated fires with the native handle.
	OnWindowCreated func(hwnd string)

	// AcceptTimeout overrides DefaultAcceptTimeout when positive.
	AcceptTimeout time.Duration
	// ReplyTimeout bounds EvalResult waits. Defaults to
	// bridge.DefaultCallTimeout.
	ReplyTimeout time.Duration

	// Logger defaults to a host-component logger on stderr.
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
	// Capture, when set, records every frame in both directions.
	Capture *wire.CaptureWriter
	// Events, when set, receives lifecycle event notifications.
	Events adapter.Adapter
}

// App is one host-side bridge session.
type App struct {
	opts    Options
	logger  *log.Logger
	metrics *metrics.Collector

	registry *bridge.Registry
	replies  *bridge.PendingCalls
	store    *state.Store

	mu        sync.Mutex
	encoder   *wire.Encoder
	connected bool
	closing   bool
	outbox    []types.Command
	hwnd      string
}

// New assembles a host application from options.
func New(opts Options) *App {
	if opts.BridgeID == "" {
		opts.BridgeID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = log.NewLogger("host", opts.BridgeID)
	}
	if opts.Endpoint == (transport.Endpoint{}) {
		opts.Endpoint = transport.Endpoint{Kind: transport.KindTCP, Addr: "127.0.0.1:0"}
	}

	a := &App{
		opts:     opts,
		logger:   opts.Logger,
		metrics:  opts.Collector,
		registry: bridge.NewRegistry(),
		replies:  bridge.NewPendingCalls(),
		store:    state.NewStore(),
	}
	a.installDefaultBinds()
	return a
}

// installDefaultBinds exposes the window-control surface to the page
// under reserved casement_ names, so frameless UIs can drive the
// window without host-side code. Runs before connect; the binds queue
// ahead of anything the caller submits.
func (a *App) installDefaultBinds() {
	for _, b := range []struct {
		name string
		fn   func() error
	}{
		{"casement_minimize", a.Minimize},
		{"casement_toggle_maximize", a.ToggleMaximize},
		{"casement_hide", a.Hide},
		{"casement_show", a.Show},
		{"casement_close", a.Close},
	} {
		fn := b.fn
		a.registry.Bind(b.name, func(context.Context, []json.RawMessage) (any, error) {
			return nil, fn()
		})
		_ = a.send(&types.BindCommand{Name: b.name})
	}
}

// BridgeID returns the session identifier.
func (a *App) BridgeID() string { return a.opts.BridgeID }

// State returns the host-owned state store. Writes propagate to the
// shell mirror once connected.
func (a *App) State() *state.Store { return a.store }

// HWND returns the native window handle, empty before window_created.
func (a *App) HWND() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hwnd
}

// Bind exposes fn to the rendering side under name. Safe before and
// after connect; pre-connect binds replay from the outbound queue.
func (a *App) Bind(name string, fn bridge.Handler) error {
	a.registry.Bind(name, fn)
	return a.send(&types.BindCommand{Name: name})
}

// Navigate loads a URL in the shell window.
func (a *App) Navigate(url string) error {
	return a.send(&types.NavigateCommand{URL: url})
}

// Eval evaluates JS in the page, fire and forget.
func (a *App) Eval(code string) error {
	return a.send(&types.EvalCommand{Code: code})
}

// EvalResult evaluates JS in the page and waits for the result carried
// back on a command-reply envelope.
func (a *App) EvalResult(ctx context.Context, code string) (json.RawMessage, error) {
	id := uuid.NewString()
	outcome, err := a.replies.Register(id)
	if err != nil {
		return nil, err
	}
	a.metrics.IncCallStarted()

	if err := a.send(&types.EvalCommand{Code: code, ID: id}); err != nil {
		a.replies.Abandon(id)
		return nil, err
	}

	timeout := a.opts.ReplyTimeout
	if timeout <= 0 {
		timeout = bridge.DefaultCallTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		a.replies.Abandon(id)
		return nil, ctx.Err()
	case <-timer.C:
		a.replies.Abandon(id)
		a.metrics.IncCallTimedOut()
		return nil, fmt.Errorf("%w: eval after %s", bridge.ErrCallTimeout, timeout)
	case out := <-outcome:
		return out.Result, out.Err
	}
}

// AddInitScript registers JS injected before every navigation.
func (a *App) AddInitScript(js string) error {
	return a.send(&types.InitScriptCommand{JS: js})
}

// SetTitle sets the window title.
func (a *App) SetTitle(title string) error {
	return a.send(&types.SetTitleCommand{Title: title})
}

// SetSize resizes the window.
func (a *App) SetSize(width, height int) error {
	return a.send(&types.SetSizeCommand{Width: width, Height: height})
}

// SetBounds moves and resizes the window in one step.
func (a *App) SetBounds(x, y, width, height int) error {
	return a.send(&types.SetBoundsCommand{X: x, Y: y, Width: width, Height: height})
}

// Center centers the window on the primary screen.
func (a *App) Center() error { return a.send(&types.CenterCommand{}) }

// Minimize minimizes the window.
func (a *App) Minimize() error { return a.send(&types.MinimizeCommand{}) }

// ToggleMaximize toggles between maximized and restored.
func (a *App) ToggleMaximize() error { return a.send(&types.ToggleMaximizeCommand{}) }

// SetProgress sets the taskbar progress indicator; a negative value
// clears it.
func (a *App) SetProgress(value float64, mode types.ProgressMode) error {
	return a.send(&types.SetProgressCommand{Value: value, Mode: mode})
}

// Show makes the window visible.
func (a *App) Show() error { return a.send(&types.ShowCommand{}) }

// Hide hides the window without destroying it.
func (a *App) Hide() error { return a.send(&types.HideCommand{}) }

// SetResizable toggles user resizing.
func (a *App) SetResizable(resizable bool) error {
	return a.send(&types.SetResizableCommand{Resizable: resizable})
}

// SetFrameless toggles window chrome.
func (a *App) SetFrameless(frameless bool) error {
	return a.send(&types.SetFramelessCommand{Frameless: frameless})
}

// SetIcon sets the window icon from a path.
func (a *App) SetIcon(path string) error {
	return a.send(&types.SetIconCommand{Icon: path})
}

// ServeData publishes a binary asset under key. The payload crosses
// the wire base64-encoded; the shell stores decoded bytes and answers
// asset URL interceptions from memory.
func (a *App) ServeData(key string, data []byte, mime string) error {
	return a.send(&types.ServeDataCommand{
		Key:  key,
		Data: base64.StdEncoding.EncodeToString(data),
		MIME: mime,
	})
}

// UnserveData removes a published asset.
func (a *App) UnserveData(key string) error {
	return a.send(&types.UnserveDataCommand{Key: key})
}

// Close orders the shell to tear down and exit. Run returns nil once
// the shell acknowledges by closing the transport.
func (a *App) Close() error {
	a.mu.Lock()
	a.closing = true
	a.mu.Unlock()
	return a.send(&types.CloseCommand{})
}

func (a *App) isClosing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closing
}

// send delivers one command, queueing it while the handshake is
// outstanding. The outbound queue preserves submission order; the
// drain happens under the same mutex, so a command can never overtake
// one queued before it.
func (a *App) send(cmd types.Command) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		a.outbox = append(a.outbox, cmd)
		a.metrics.IncCommandQueued()
		return nil
	}
	return a.writeCommand(cmd)
}

// writeCommand marshals and writes one frame. Callers hold a.mu or run
// before the reader loop starts.
func (a *App) writeCommand(cmd types.Command) error {
	body, err := types.MarshalCommand(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Action(), err)
	}
	if a.opts.Capture != nil {
		if err := a.opts.Capture.Record(wire.DirHostToShell, body); err != nil {
			a.logger.Warn("capture record failed", map[string]any{"error": err.Error()})
		}
	}
	if err := a.encoder.WriteFrame(body); err != nil {
		return err
	}
	a.metrics.AddFrameWritten(len(body))
	return nil
}

// PushState implements state.Sink.
func (a *App) PushState(key string, value json.RawMessage) error {
	a.metrics.IncStateSet()
	return a.send(&types.SetStateCommand{Key: key, Value: value})
}

// SyncState implements state.Sink.
func (a *App) SyncState(snapshot map[string]json.RawMessage) error {
	a.metrics.IncStateSync()
	return a.send(&types.SyncStateCommand{State: snapshot})
}

// Run listens, spawns the shell when configured, and drives the
// session until close or failure. A nil return means a clean close;
// any error means the session died and no reconnection is possible.
func (a *App) Run(ctx context.Context) error {
	listener, err := transport.Listen(a.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.opts.Endpoint, err)
	}
	defer func() { _ = listener.Close() }()

	addr := listener.Addr()
	a.logger.Info("listening for shell", map[string]any{
		"kind": string(a.opts.Endpoint.Kind),
		"addr": addr,
	})

	var shellExited chan error
	if a.opts.ShellPath != "" {
		cmd := shellCommand(ctx, a.opts.ShellPath, a.opts.ShellArgs, a.opts.Endpoint, addr, a.opts.Root, a.opts.BridgeID)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("spawn shell %s: %w", a.opts.ShellPath, err)
		}
		shellExited = make(chan error, 1)
		go watchShell(cmd, shellExited)
		a.logger.Info("spawned shell", map[string]any{
			"path": a.opts.ShellPath,
			"pid":  cmd.Process.Pid,
		})
	}

	acceptTimeout := a.opts.AcceptTimeout
	if acceptTimeout <= 0 {
		acceptTimeout = DefaultAcceptTimeout
	}
	acceptCtx, cancel := context.WithTimeout(ctx, acceptTimeout)
	conn, err := listener.Accept(acceptCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("accept shell connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	a.mu.Lock()
	a.encoder = wire.NewEncoder(conn)
	a.mu.Unlock()
	defer a.reportSession()

	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go a.readLoop(ctx, wire.NewDecoder(conn), frames, readErr)

	defer a.replies.RejectAll(bridge.ErrNotConnected)

	for {
		select {
		case <-ctx.Done():
			_ = a.Close() // best effort
			return ctx.Err()

		case err := <-shellExited:
			if a.isClosing() && err == nil {
				return nil
			}
			a.publish(adapter.KindShellExit, map[string]any{"clean": err == nil})
			if err == nil {
				err = fmt.Errorf("shell process exited before close handshake")
			}
			return err

		case body := <-frames:
			if err := a.handleEnvelope(ctx, body); err != nil {
				return err
			}

		case err := <-readErr:
			if a.isClosing() {
				a.publish(adapter.KindSessionClosed, nil)
				if shellExited != nil {
					return <-shellExited
				}
				return nil
			}
			if err == io.EOF {
				return fmt.Errorf("shell closed connection")
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}

func (a *App) readLoop(ctx context.Context, decoder *wire.Decoder, frames chan<- []byte, readErr chan<- error) {
	for {
		body, err := decoder.ReadFrame()
		if err != nil {
			readErr <- err
			return
		}
		a.metrics.AddFrameRead(len(body))
		select {
		case frames <- body:
		case <-ctx.Done():
			return
		}
	}
}

// handleEnvelope decodes and routes one shell-to-host envelope. Bodies
// that fail to decode are skipped; the connection survives.
func (a *App) handleEnvelope(ctx context.Context, body []byte) error {
	if a.opts.Capture != nil {
		if err := a.opts.Capture.Record(wire.DirShellToHost, body); err != nil {
			a.logger.Warn("capture record failed", map[string]any{"error": err.Error()})
		}
	}

	env, err := wire.DecodeEnvelope(body)
	if err != nil {
		a.metrics.IncDecodeError()
		a.logger.Warn("skipping undecodable envelope", map[string]any{"error": err.Error()})
		return nil
	}

	switch env.Type {
	case types.MessageLifecycle:
		var payload types.LifecyclePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			a.metrics.IncDecodeError()
			a.logger.Warn("malformed lifecycle payload", map[string]any{"error": err.Error()})
			return nil
		}
		return a.handleLifecycle(&payload)

	case types.MessageIPC:
		var payload types.IPCPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			a.metrics.IncDecodeError()
			a.logger.Warn("malformed ipc payload", map[string]any{"error": err.Error()})
			return nil
		}
		// Handlers run off the event loop so a slow one cannot stall
		// lifecycle processing; replies reserialize through send.
		a.metrics.IncCallStarted()
		go a.handleIPC(ctx, &payload)
		return nil

	case types.MessageCommandReply:
		var payload types.CommandReplyPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			a.metrics.IncDecodeError()
			a.logger.Warn("malformed command reply", map[string]any{"error": err.Error()})
			return nil
		}
		a.handleCommandReply(&payload)
		return nil

	default:
		a.metrics.IncDecodeError()
		a.logger.Warn("unknown envelope type", map[string]any{"type": string(env.Type)})
		return nil
	}
}

func (a *App) handleLifecycle(payload *types.LifecyclePayload) error {
	a.metrics.IncLifecycle(string(payload.Event))

	switch payload.Event {
	case types.LifecycleAppReady:
		return a.handleAppReady()

	case types.LifecycleWindowCreated:
		a.mu.Lock()
		a.hwnd = payload.HWND
		a.mu.Unlock()
		a.logger.Info("window created", map[string]any{"hwnd": payload.HWND})
		a.publish(adapter.KindWindowCreated, nil)
		if a.opts.OnWindowCreated != nil {
			a.opts.OnWindowCreated(payload.HWND)
		}
		return nil

	case types.LifecycleReady:
		a.logger.Info("first paint", nil)
		a.publish(adapter.KindReady, nil)
		if a.opts.OnReady != nil {
			a.opts.OnReady()
		}
		return nil

	case types.LifecycleClose:
		decision := CloseTerminate
		if a.opts.OnClose != nil {
			decision = a.opts.OnClose()
		}
		a.logger.Info("close requested", map[string]any{"decision": decision.String()})
		a.publish(adapter.KindCloseRequested, map[string]any{"decision": decision.String()})
		switch decision {
		case CloseTerminate:
			return a.Close()
		case CloseHide:
			return a.Hide()
		default:
			return nil
		}

	default:
		a.logger.Warn("unknown lifecycle event", map[string]any{"event": string(payload.Event)})
		return nil
	}
}

// handleAppReady flips the session connected and flushes everything
// held back: the init command first, then the outbound queue in
// submission order, then the full state replay. The mutex stays held
// through the drain so no concurrent send can interleave.
func (a *App) handleAppReady() error {
	a.mu.Lock()
	if a.connected {
		a.mu.Unlock()
		a.logger.Warn("duplicate app_ready handshake", nil)
		return nil
	}
	a.connected = true
	queued := a.outbox
	a.outbox = nil

	winOpts := a.opts.Window
	if winOpts.Root == "" {
		winOpts.Root = a.opts.Root
	}
	if err := a.writeCommand(&types.InitCommand{Options: winOpts}); err != nil {
		a.mu.Unlock()
		return fmt.Errorf("send init: %w", err)
	}
	for _, cmd := range queued {
		if err := a.writeCommand(cmd); err != nil {
			a.mu.Unlock()
			return fmt.Errorf("flush queued %s: %w", cmd.Action(), err)
		}
	}
	a.mu.Unlock()

	a.logger.Info("handshake complete", map[string]any{"flushed": len(queued)})
	if err := a.store.AttachSink(a); err != nil {
		return err
	}
	return nil
}

// handleIPC dispatches one rendering-side invocation and sends the
// correlated reply. Runs on its own goroutine.
func (a *App) handleIPC(ctx context.Context, payload *types.IPCPayload) {
	reply := bridge.Dispatch(ctx, a.registry, payload)
	if reply.Status == bridge.StatusOK {
		a.metrics.IncCallResolved()
	} else {
		a.metrics.IncCallRejected()
	}
	if err := a.send(reply); err != nil {
		a.logger.Error("failed to send reply", map[string]any{
			"id":    payload.ID,
			"name":  payload.Name,
			"error": err.Error(),
		})
	}
}

// handleCommandReply completes a pending EvalResult. Unknown and
// duplicate ids are dropped: the waiter may have timed out.
func (a *App) handleCommandReply(payload *types.CommandReplyPayload) {
	var completed bool
	if payload.Status == bridge.StatusOK {
		completed = a.replies.Resolve(payload.ID, payload.Result)
	} else {
		completed = a.replies.Reject(payload.ID, &bridge.RemoteError{Payload: payload.Result})
	}
	if !completed {
		a.metrics.IncReplyOrphan()
		a.logger.Debug("command reply matched no waiter", map[string]any{"id": payload.ID})
	}
}

// reportSession logs the final metrics snapshot when the session ends,
// clean or not.
func (a *App) reportSession() {
	if a.metrics == nil {
		return
	}
	a.logger.Info("session report", a.metrics.Snapshot().Fields())
}

// publish forwards a lifecycle event to the configured adapter without
// blocking the event loop.
func (a *App) publish(kind string, detail map[string]any) {
	if a.opts.Events == nil {
		return
	}
	event := &adapter.LifecycleEvent{
		EventType: kind,
		BridgeID:  a.opts.BridgeID,
		HWND:      a.HWND(),
		Transport: string(a.opts.Endpoint.Kind),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Detail:    detail,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.opts.Events.Publish(ctx, event); err != nil {
			a.logger.Warn("lifecycle publish failed", map[string]any{
				"event": kind,
				"error": err.Error(),
			})
		}
	}()
}
