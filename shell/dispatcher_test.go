package shell

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/casement-ui/casement/bridge"
	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
	"github.com/casement-ui/casement/state"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/vap"
)

// dispatcherFixture assembles a dispatcher over the headless driver.
type dispatcherFixture struct {
	driver     *Headless
	dispatcher *Dispatcher
	assets     *vap.Store
	mirror     *state.Mirror
	stubs      *bridge.Stubs
	collector  *metrics.Collector

	lifecycles []string
	replies    []types.CommandReplyPayload

	lifecycleErr error
}

type nopEmitter struct{}

func (nopEmitter) EmitIPC(*types.IPCPayload) error { return nil }

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		driver:    NewHeadless(),
		assets:    vap.NewStore(),
		mirror:    state.NewMirror(),
		stubs:     bridge.NewStubs(nopEmitter{}),
		collector: metrics.NewCollector("tcp", "test"),
	}
	logger := log.NewLogger("shell", "test").WithOutput(&bytes.Buffer{})
	f.dispatcher = NewDispatcher(
		NewWindow(f.driver),
		f.stubs,
		f.assets,
		f.mirror,
		f.collector,
		logger,
		func(event types.LifecycleEvent, hwnd string) error {
			if f.lifecycleErr != nil {
				return f.lifecycleErr
			}
			f.lifecycles = append(f.lifecycles, string(event)+":"+hwnd)
			return nil
		},
		func(payload types.CommandReplyPayload) error {
			f.replies = append(f.replies, payload)
			return nil
		},
	)
	return f
}

func (f *dispatcherFixture) dispatch(t *testing.T, cmd types.Command) bool {
	t.Helper()
	done, err := f.dispatcher.Dispatch(cmd)
	if err != nil {
		t.Fatalf("dispatch %s: %v", cmd.Action(), err)
	}
	return done
}

func TestDispatcher_QueuesUntilInit(t *testing.T) {
	f := newDispatcherFixture(t)

	// Window-bound commands before init queue in arrival order.
	f.dispatch(t, &types.SetTitleCommand{Title: "Casement"})
	f.dispatch(t, &types.NavigateCommand{URL: "casement://app/index.html"})
	f.dispatch(t, &types.BindCommand{Name: "add"})

	if f.dispatcher.QueueDepth() != 3 {
		t.Fatalf("expected 3 queued, got %d", f.dispatcher.QueueDepth())
	}
	if len(f.driver.Trace()) != 0 {
		t.Fatalf("nothing should reach the driver before init, got %v", f.driver.Trace())
	}

	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{Title: "Casement"}})

	want := []string{
		"create Casement",
		"show",
		"set_title Casement",
		"navigate casement://app/index.html",
		"install_stub add",
	}
	trace := f.driver.Trace()
	if len(trace) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), trace)
	}
	for i, call := range want {
		if trace[i] != call {
			t.Errorf("call %d: expected %q, got %q", i, call, trace[i])
		}
	}
	if f.dispatcher.QueueDepth() != 0 {
		t.Errorf("queue should be drained, depth %d", f.dispatcher.QueueDepth())
	}

	if len(f.lifecycles) != 1 || f.lifecycles[0] != "window_created:264534" {
		t.Errorf("expected window_created lifecycle, got %v", f.lifecycles)
	}
}

func TestDispatcher_ImmediateAfterInit(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{}})

	f.dispatch(t, &types.SetTitleCommand{Title: "later"})
	if f.dispatcher.QueueDepth() != 0 {
		t.Errorf("post-init commands must not queue, depth %d", f.dispatcher.QueueDepth())
	}
	trace := f.driver.Trace()
	if trace[len(trace)-1] != "set_title later" {
		t.Errorf("expected direct application, got %v", trace)
	}
}

func TestDispatcher_DuplicateInitDropped(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{Title: "one"}})

	before := len(f.driver.Trace())
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{Title: "two"}})

	if len(f.driver.Trace()) != before {
		t.Error("duplicate init must not reach the driver")
	}
	if f.collector.Snapshot().CommandsDropped != 1 {
		t.Errorf("expected 1 dropped, got %d", f.collector.Snapshot().CommandsDropped)
	}
}

func TestDispatcher_InitCreateFailureFatal(t *testing.T) {
	f := newDispatcherFixture(t)
	f.driver.CreateErr = errors.New("engine missing")

	_, err := f.dispatcher.Dispatch(&types.InitCommand{Options: types.WindowOptions{}})
	if err == nil {
		t.Fatal("window creation failure must be fatal")
	}
}

func TestDispatcher_CloseEndsSession(t *testing.T) {
	f := newDispatcherFixture(t)
	if done := f.dispatch(t, &types.CloseCommand{}); !done {
		t.Error("close must report session end")
	}
}

func TestDispatcher_ServeData(t *testing.T) {
	f := newDispatcherFixture(t)

	payload := []byte{0x01, 0x02, 0xFF}
	f.dispatch(t, &types.ServeDataCommand{
		Key:  "tensor",
		Data: base64.StdEncoding.EncodeToString(payload),
		MIME: "application/octet-stream",
	})

	entry, ok := f.assets.Get("tensor")
	if !ok {
		t.Fatal("expected stored asset")
	}
	if !bytes.Equal(entry.Data, payload) {
		t.Errorf("payload changed: %v", entry.Data)
	}

	f.dispatch(t, &types.UnserveDataCommand{Key: "tensor"})
	if _, ok := f.assets.Get("tensor"); ok {
		t.Error("expected asset removed")
	}
}

func TestDispatcher_ServeDataMalformedDropped(t *testing.T) {
	f := newDispatcherFixture(t)

	f.dispatch(t, &types.ServeDataCommand{Key: "bad", Data: "not/base64!!"})

	if _, ok := f.assets.Get("bad"); ok {
		t.Error("malformed payload must not be stored")
	}
	if f.collector.Snapshot().CommandsDropped != 1 {
		t.Errorf("expected 1 dropped, got %d", f.collector.Snapshot().CommandsDropped)
	}
}

func TestDispatcher_StateCommands(t *testing.T) {
	f := newDispatcherFixture(t)

	// Assets and state apply immediately even with no window.
	f.dispatch(t, &types.SyncStateCommand{State: map[string]json.RawMessage{
		"theme": json.RawMessage(`"dark"`),
	}})
	f.dispatch(t, &types.SetStateCommand{Key: "counter", Value: json.RawMessage("4")})

	if !f.mirror.Synced() {
		t.Error("expected mirror synced")
	}
	if v, _ := f.mirror.Get("counter"); string(v) != "4" {
		t.Errorf("expected 4, got %s", v)
	}

	snap := f.collector.Snapshot()
	if snap.StateSyncs != 1 || snap.StateSets != 1 {
		t.Errorf("expected 1 sync and 1 set, got %d/%d", snap.StateSyncs, snap.StateSets)
	}
}

// channelEmitter forwards emitted invocations to a channel so the test
// can answer them through the dispatcher, like a host reply would.
type channelEmitter struct {
	sent chan *types.IPCPayload
}

func (e *channelEmitter) EmitIPC(inv *types.IPCPayload) error {
	e.sent <- inv
	return nil
}

func TestDispatcher_ReplyCorrelation(t *testing.T) {
	f := newDispatcherFixture(t)
	emitter := &channelEmitter{sent: make(chan *types.IPCPayload, 1)}
	f.stubs = bridge.NewStubs(emitter)
	f.stubs.SetReady()
	f.stubs.Install("add")

	// Rebuild the dispatcher around the stub table under test.
	logger := log.NewLogger("shell", "test").WithOutput(&bytes.Buffer{})
	f.dispatcher = NewDispatcher(
		NewWindow(f.driver), f.stubs, f.assets, f.mirror, f.collector, logger,
		func(types.LifecycleEvent, string) error { return nil },
		func(types.CommandReplyPayload) error { return nil },
	)

	type res struct {
		result json.RawMessage
		err    error
	}
	resCh := make(chan res, 1)
	go func() {
		r, err := f.stubs.Invoke(context.Background(), "add", 2, 3)
		resCh <- res{r, err}
	}()

	inv := <-emitter.sent
	f.dispatch(t, &types.ReplyCommand{
		ID:     inv.ID,
		Status: bridge.StatusOK,
		Result: json.RawMessage("5"),
	})

	r := <-resCh
	if r.err != nil {
		t.Fatalf("invoke: %v", r.err)
	}
	if string(r.result) != "5" {
		t.Errorf("expected 5, got %s", r.result)
	}
	if f.collector.Snapshot().CallsResolved != 1 {
		t.Errorf("expected 1 resolved, got %d", f.collector.Snapshot().CallsResolved)
	}
}

func TestDispatcher_OrphanReplyDropped(t *testing.T) {
	f := newDispatcherFixture(t)

	f.dispatch(t, &types.ReplyCommand{ID: "nonexistent", Status: bridge.StatusOK})

	if f.collector.Snapshot().RepliesOrphans != 1 {
		t.Errorf("expected 1 orphan, got %d", f.collector.Snapshot().RepliesOrphans)
	}
}

func TestDispatcher_EvalWithIDEmitsReply(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{}})

	f.dispatch(t, &types.EvalCommand{Code: "1+1", ID: "call-9"})

	if len(f.replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(f.replies))
	}
	reply := f.replies[0]
	if reply.ID != "call-9" {
		t.Errorf("expected call-9, got %s", reply.ID)
	}
	if reply.Status != bridge.StatusOK {
		t.Errorf("expected ok status, got %d", reply.Status)
	}
	if string(reply.Result) != "null" {
		t.Errorf("expected null result, got %s", reply.Result)
	}
}

func TestDispatcher_EvalWithoutIDSilent(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{}})

	f.dispatch(t, &types.EvalCommand{Code: "console.log(1)"})

	if len(f.replies) != 0 {
		t.Errorf("fire-and-forget eval must not reply, got %v", f.replies)
	}
}

func TestDispatcher_WindowCreatedEmitFailureFatal(t *testing.T) {
	f := newDispatcherFixture(t)
	f.lifecycleErr = errors.New("transport gone")

	_, err := f.dispatcher.Dispatch(&types.InitCommand{Options: types.WindowOptions{}})
	if err == nil {
		t.Fatal("lifecycle emit failure must be fatal")
	}
}

func TestDispatcher_BadWindowCommandAbsorbed(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatch(t, &types.InitCommand{Options: types.WindowOptions{}})

	// Invalid progress mode fails application but must not end the session.
	done, err := f.dispatcher.Dispatch(&types.SetProgressCommand{Value: 0.5, Mode: "bogus"})
	if err != nil {
		t.Fatalf("application failure must be absorbed, got %v", err)
	}
	if done {
		t.Error("application failure must not end the session")
	}
	if f.collector.Snapshot().CommandsDropped != 1 {
		t.Errorf("expected 1 dropped, got %d", f.collector.Snapshot().CommandsDropped)
	}
}
