package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/casement-ui/casement/bridge"
	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/transport"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/wire"
)

// shellHarness is the shell side of an in-test bridge session: a raw
// dialed connection plus frame codecs, no shell.Shell involved.
type shellHarness struct {
	t       *testing.T
	conn    transport.Conn
	encoder *wire.Encoder
	decoder *wire.Decoder
}

// startApp runs an App over a unix socket and dials it as the shell.
// No handshake is sent; each test drives app_ready itself.
func startApp(t *testing.T, mutate func(*Options)) (*App, *shellHarness, <-chan error) {
	t.Helper()

	ep := transport.Endpoint{
		Kind: transport.KindUnix,
		Addr: filepath.Join(t.TempDir(), "bridge.sock"),
	}
	opts := Options{
		Endpoint: ep,
		BridgeID: "test",
		Logger:   log.NewLogger("host", "test").WithOutput(&bytes.Buffer{}),
	}
	if mutate != nil {
		mutate(&opts)
	}
	a := New(opts)

	runErr := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { runErr <- a.Run(ctx) }()

	// The listener comes up inside Run; retry until it answers.
	deadline := time.Now().Add(5 * time.Second)
	var conn transport.Conn
	for {
		dialCtx, dialCancel := context.WithTimeout(context.Background(), time.Second)
		c, err := transport.Dial(dialCtx, ep)
		dialCancel()
		if err == nil {
			conn = c
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return a, &shellHarness{
		t:       t,
		conn:    conn,
		encoder: wire.NewEncoder(conn),
		decoder: wire.NewDecoder(conn),
	}, runErr
}

func (h *shellHarness) sendEnvelope(mt types.MessageType, payload any) {
	h.t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		h.t.Fatalf("marshal payload: %v", err)
	}
	if err := h.encoder.WriteJSON(types.Envelope{Type: mt, Payload: body}); err != nil {
		h.t.Fatalf("send envelope: %v", err)
	}
}

func (h *shellHarness) sendLifecycle(event types.LifecycleEvent, hwnd string) {
	h.t.Helper()
	h.sendEnvelope(types.MessageLifecycle, types.LifecyclePayload{Event: event, HWND: hwnd})
}

func (h *shellHarness) readCommand() types.Command {
	h.t.Helper()
	body, err := h.decoder.ReadFrame()
	if err != nil {
		h.t.Fatalf("read command: %v", err)
	}
	cmd, err := wire.DecodeCommand(body)
	if err != nil {
		h.t.Fatalf("decode command: %v", err)
	}
	return cmd
}

func (h *shellHarness) expect(action string) types.Command {
	h.t.Helper()
	cmd := h.readCommand()
	if cmd.Action() != action {
		h.t.Fatalf("expected %s, got %s", action, cmd.Action())
	}
	return cmd
}

// drainDefaultBinds consumes the window-control binds New queues ahead
// of everything else.
func (h *shellHarness) drainDefaultBinds() {
	h.t.Helper()
	for _, name := range []string{
		"casement_minimize", "casement_toggle_maximize",
		"casement_hide", "casement_show", "casement_close",
	} {
		if bind := h.expect("bind").(*types.BindCommand); bind.Name != name {
			h.t.Fatalf("expected default bind %s, got %s", name, bind.Name)
		}
	}
}

// handshake sends app_ready and consumes init, the default binds, and
// the state replay.
func (h *shellHarness) handshake() {
	h.t.Helper()
	h.sendLifecycle(types.LifecycleAppReady, "")
	h.expect("init")
	h.drainDefaultBinds()
	h.expect("sync_state")
}

func waitRun(t *testing.T, runErr <-chan error) error {
	t.Helper()
	select {
	case err := <-runErr:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("app did not exit")
		return nil
	}
}

// closeSession drives the clean shutdown: the close command arrives,
// the shell drops the transport, Run returns nil.
func closeSession(t *testing.T, a *App, h *shellHarness, runErr <-chan error) {
	t.Helper()
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	h.expect("close")
	_ = h.conn.Close()
	if err := waitRun(t, runErr); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestApp_HandshakeFlushOrder(t *testing.T) {
	a, shell, runErr := startApp(t, func(o *Options) {
		o.Window = types.WindowOptions{Title: "Casement"}
		o.Root = "/srv/app"
	})

	// Everything submitted before app_ready queues in order.
	if err := a.SetTitle("Casement"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if err := a.Bind("add", func(context.Context, []json.RawMessage) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := a.Navigate("casement://app/index.html"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if err := a.State().Set("theme", "dark"); err != nil {
		t.Fatalf("state set: %v", err)
	}

	shell.sendLifecycle(types.LifecycleAppReady, "")

	// Init leads, then the queue in submission order, then the replay.
	init := shell.expect("init").(*types.InitCommand)
	if init.Options.Title != "Casement" {
		t.Errorf("expected window title, got %q", init.Options.Title)
	}
	if init.Options.Root != "/srv/app" {
		t.Errorf("expected root propagated, got %q", init.Options.Root)
	}
	shell.drainDefaultBinds()
	shell.expect("set_title")
	if bind := shell.expect("bind").(*types.BindCommand); bind.Name != "add" {
		t.Errorf("expected bind add, got %q", bind.Name)
	}
	shell.expect("navigate")
	sync := shell.expect("sync_state").(*types.SyncStateCommand)
	if string(sync.State["theme"]) != `"dark"` {
		t.Errorf("expected pre-connect state replayed, got %v", sync.State)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_DuplicateAppReadyIgnored(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	// A second handshake must not replay init; the next frame out is
	// whatever the host sends next.
	shell.sendLifecycle(types.LifecycleAppReady, "")
	if err := a.SetTitle("after"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if cmd := shell.expect("set_title").(*types.SetTitleCommand); cmd.Title != "after" {
		t.Errorf("expected title after, got %q", cmd.Title)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_IPCDispatch(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	err := a.Bind("add", func(_ context.Context, args []json.RawMessage) (any, error) {
		var x, y int
		if err := json.Unmarshal(args[0], &x); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args[1], &y); err != nil {
			return nil, err
		}
		return x + y, nil
	})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	shell.sendLifecycle(types.LifecycleAppReady, "")
	shell.expect("init")
	shell.drainDefaultBinds()
	if bind := shell.expect("bind").(*types.BindCommand); bind.Name != "add" {
		t.Fatalf("expected bind add, got %s", bind.Name)
	}
	shell.expect("sync_state")

	shell.sendEnvelope(types.MessageIPC, types.IPCPayload{
		Name: "add",
		Args: []json.RawMessage{json.RawMessage("2"), json.RawMessage("3")},
		ID:   "inv-1",
	})

	reply := shell.expect("reply").(*types.ReplyCommand)
	if reply.ID != "inv-1" {
		t.Errorf("expected inv-1, got %s", reply.ID)
	}
	if reply.Status != bridge.StatusOK {
		t.Errorf("expected ok status, got %d", reply.Status)
	}
	if string(reply.Result) != "5" {
		t.Errorf("expected 5, got %s", reply.Result)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_IPCUnboundRejected(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	shell.sendEnvelope(types.MessageIPC, types.IPCPayload{Name: "ghost", ID: "inv-2"})

	reply := shell.expect("reply").(*types.ReplyCommand)
	if reply.Status != bridge.StatusError {
		t.Errorf("expected error status, got %d", reply.Status)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_DefaultBindDrivesWindow(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	// The page calls the reserved control; the matching window command
	// goes out before the reply.
	shell.sendEnvelope(types.MessageIPC, types.IPCPayload{Name: "casement_minimize", ID: "inv-3"})

	shell.expect("minimize")
	reply := shell.expect("reply").(*types.ReplyCommand)
	if reply.ID != "inv-3" || reply.Status != bridge.StatusOK {
		t.Errorf("reply = %+v", reply)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_EvalResult(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	type res struct {
		result json.RawMessage
		err    error
	}
	resCh := make(chan res, 1)
	go func() {
		r, err := a.EvalResult(context.Background(), "1+41")
		resCh <- res{r, err}
	}()

	eval := shell.expect("eval").(*types.EvalCommand)
	if eval.ID == "" {
		t.Fatal("result-bearing eval must carry an id")
	}
	shell.sendEnvelope(types.MessageCommandReply, types.CommandReplyPayload{
		ID:     eval.ID,
		Status: bridge.StatusOK,
		Result: json.RawMessage("42"),
	})

	r := <-resCh
	if r.err != nil {
		t.Fatalf("eval result: %v", r.err)
	}
	if string(r.result) != "42" {
		t.Errorf("expected 42, got %s", r.result)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_EvalResultRemoteError(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	errCh := make(chan error, 1)
	go func() {
		_, err := a.EvalResult(context.Background(), "throw new Error('boom')")
		errCh <- err
	}()

	eval := shell.expect("eval").(*types.EvalCommand)
	shell.sendEnvelope(types.MessageCommandReply, types.CommandReplyPayload{
		ID:     eval.ID,
		Status: bridge.StatusError,
		Result: json.RawMessage(`"boom"`),
	})

	var remote *bridge.RemoteError
	if err := <-errCh; !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if string(remote.Payload) != `"boom"` {
		t.Errorf("expected boom payload, got %s", remote.Payload)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_EvalResultTimeout(t *testing.T) {
	a, shell, runErr := startApp(t, func(o *Options) {
		o.ReplyTimeout = 50 * time.Millisecond
	})
	shell.handshake()

	_, err := a.EvalResult(context.Background(), "hangs forever")
	if !errors.Is(err, bridge.ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
	shell.expect("eval")

	closeSession(t, a, shell, runErr)
}

func TestApp_WindowCreated(t *testing.T) {
	created := make(chan string, 1)
	a, shell, runErr := startApp(t, func(o *Options) {
		o.OnWindowCreated = func(hwnd string) { created <- hwnd }
	})
	shell.handshake()

	shell.sendLifecycle(types.LifecycleWindowCreated, "264534")

	select {
	case hwnd := <-created:
		if hwnd != "264534" {
			t.Errorf("expected 264534, got %s", hwnd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("window created callback never fired")
	}
	if a.HWND() != "264534" {
		t.Errorf("expected handle retained, got %q", a.HWND())
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_CloseDecisionTerminate(t *testing.T) {
	_, shell, runErr := startApp(t, func(o *Options) {
		o.OnClose = func() CloseDecision { return CloseTerminate }
	})
	shell.handshake()

	shell.sendLifecycle(types.LifecycleClose, "")
	shell.expect("close")
	_ = shell.conn.Close()

	if err := waitRun(t, runErr); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestApp_CloseDecisionHide(t *testing.T) {
	a, shell, runErr := startApp(t, func(o *Options) {
		o.OnClose = func() CloseDecision { return CloseHide }
	})
	shell.handshake()

	shell.sendLifecycle(types.LifecycleClose, "")
	shell.expect("hide")

	closeSession(t, a, shell, runErr)
}

func TestApp_CloseDecisionVeto(t *testing.T) {
	a, shell, runErr := startApp(t, func(o *Options) {
		o.OnClose = func() CloseDecision { return CloseVeto }
	})
	shell.handshake()

	shell.sendLifecycle(types.LifecycleClose, "")

	// Nothing goes out for a veto; the next frame is the next command.
	if err := a.SetTitle("still here"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	shell.expect("set_title")

	closeSession(t, a, shell, runErr)
}

func TestApp_DefaultCloseTerminates(t *testing.T) {
	_, shell, runErr := startApp(t, nil)
	shell.handshake()

	shell.sendLifecycle(types.LifecycleClose, "")
	shell.expect("close")
	_ = shell.conn.Close()

	if err := waitRun(t, runErr); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestApp_ShellDisconnectIsError(t *testing.T) {
	_, shell, runErr := startApp(t, nil)
	shell.handshake()

	_ = shell.conn.Close()

	if err := waitRun(t, runErr); err == nil {
		t.Fatal("severed transport must end the session with an error")
	}
}

func TestApp_UnknownEnvelopeSkipped(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	// An unknown envelope type and a malformed body are both dropped;
	// the session survives.
	shell.sendEnvelope(types.MessageType("telemetry"), map[string]any{"x": 1})
	if err := shell.encoder.WriteFrame([]byte(`{"type":`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := a.SetTitle("alive"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	shell.expect("set_title")

	closeSession(t, a, shell, runErr)
}

func TestApp_StatePushAfterConnect(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	if err := a.State().Set("counter", 7); err != nil {
		t.Fatalf("state set: %v", err)
	}
	set := shell.expect("set_state").(*types.SetStateCommand)
	if set.Key != "counter" || string(set.Value) != "7" {
		t.Errorf("expected counter=7, got %s=%s", set.Key, set.Value)
	}

	closeSession(t, a, shell, runErr)
}

func TestApp_ServeDataEncodesBase64(t *testing.T) {
	a, shell, runErr := startApp(t, nil)
	shell.handshake()

	if err := a.ServeData("img1", []byte("pixels"), "image/png"); err != nil {
		t.Fatalf("serve data: %v", err)
	}
	serve := shell.expect("serve_data").(*types.ServeDataCommand)
	if serve.Data != "cGl4ZWxz" {
		t.Errorf("expected base64 payload, got %q", serve.Data)
	}
	if serve.MIME != "image/png" {
		t.Errorf("expected image/png, got %q", serve.MIME)
	}

	closeSession(t, a, shell, runErr)
}
