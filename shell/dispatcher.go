package shell

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/casement-ui/casement/bridge"
	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
	"github.com/casement-ui/casement/state"
	"github.com/casement-ui/casement/types"
	"github.com/casement-ui/casement/vap"
)

// Dispatcher routes decoded commands to the window, the asset store,
// the state mirror, and the RPC stub table. It runs on a single
// goroutine; nothing here locks.
//
// Commands that operate on the window queue FIFO while the window is
// absent and replay in arrival order once init creates it. Commands
// with no window dependency (replies, assets, state) apply immediately
// regardless of phase.
type Dispatcher struct {
	window  *Window
	queue   pendingQueue
	stubs   *bridge.Stubs
	assets  *vap.Store
	mirror  *state.Mirror
	metrics *metrics.Collector
	logger  *log.Logger

	// emitLifecycle sends a lifecycle envelope to the host. A send
	// failure is a transport failure and fatal to the session.
	emitLifecycle func(event types.LifecycleEvent, hwnd string) error
	// emitReply answers a host command that carried a correlation id.
	emitReply func(payload types.CommandReplyPayload) error
}

// NewDispatcher wires a dispatcher. Collector may be nil.
func NewDispatcher(
	window *Window,
	stubs *bridge.Stubs,
	assets *vap.Store,
	mirror *state.Mirror,
	collector *metrics.Collector,
	logger *log.Logger,
	emitLifecycle func(event types.LifecycleEvent, hwnd string) error,
	emitReply func(payload types.CommandReplyPayload) error,
) *Dispatcher {
	return &Dispatcher{
		window:        window,
		stubs:         stubs,
		assets:        assets,
		mirror:        mirror,
		metrics:       collector,
		logger:        logger,
		emitLifecycle: emitLifecycle,
		emitReply:     emitReply,
	}
}

// QueueDepth returns the number of commands awaiting window creation.
func (d *Dispatcher) QueueDepth() int { return d.queue.len() }

// Dispatch handles one decoded command. The returned done flag
// signals a clean session end (close command); a non-nil error is
// fatal to the session. Per-command application failures are logged
// and absorbed: one bad command must not sever the stream.
func (d *Dispatcher) Dispatch(cmd types.Command) (done bool, err error) {
	switch c := cmd.(type) {
	case *types.InitCommand:
		return false, d.handleInit(c)

	case *types.CloseCommand:
		d.metrics.IncCommandApplied()
		return true, nil

	case *types.ReplyCommand:
		d.handleReply(c)
		return false, nil

	case *types.ServeDataCommand:
		d.handleServeData(c)
		return false, nil

	case *types.UnserveDataCommand:
		d.assets.Unserve(c.Key)
		d.metrics.IncCommandApplied()
		return false, nil

	case *types.SetStateCommand:
		d.mirror.ApplySet(c.Key, c.Value)
		d.metrics.IncCommandApplied()
		d.metrics.IncStateSet()
		return false, nil

	case *types.SyncStateCommand:
		d.mirror.ApplySync(c.State)
		d.metrics.IncCommandApplied()
		d.metrics.IncStateSync()
		return false, nil

	default:
		// Everything else needs the window.
		if !d.window.Created() {
			d.queue.push(cmd)
			d.metrics.IncCommandQueued()
			d.logger.Debug("queued command until window creation", map[string]any{
				"action": string(cmd.Action()),
				"depth":  d.queue.len(),
			})
			return false, nil
		}
		return false, d.applyWindowCommand(cmd)
	}
}

// handleInit creates the window, reports its handle, and drains the
// pending queue in order. Window creation failure is fatal: a shell
// without a window cannot serve its purpose.
func (d *Dispatcher) handleInit(c *types.InitCommand) error {
	if d.window.Created() {
		d.logger.Warn("dropping duplicate init command", nil)
		d.metrics.IncCommandDropped()
		return nil
	}

	hwnd, err := d.window.Create(c.Options)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	d.metrics.IncCommandApplied()
	d.metrics.IncLifecycle(string(types.LifecycleWindowCreated))

	if err := d.emitLifecycle(types.LifecycleWindowCreated, hwnd); err != nil {
		return fmt.Errorf("emit window_created: %w", err)
	}

	queued := d.queue.drain()
	if len(queued) > 0 {
		d.logger.Info("draining pending command queue", map[string]any{
			"count": len(queued),
		})
	}
	for _, cmd := range queued {
		if err := d.applyWindowCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}

// handleReply correlates a reply with its pending stub invocation.
// Unknown and duplicate ids are dropped: the call may have timed out.
func (d *Dispatcher) handleReply(c *types.ReplyCommand) {
	if d.stubs.HandleReply(c) {
		if c.Status == bridge.StatusOK {
			d.metrics.IncCallResolved()
		} else {
			d.metrics.IncCallRejected()
		}
		d.metrics.IncCommandApplied()
		return
	}
	d.metrics.IncReplyOrphan()
	d.logger.Debug("reply matched no pending call", map[string]any{"id": c.ID})
}

// handleServeData decodes the base64 payload and stores it. A payload
// that fails to decode is dropped; the key keeps any prior entry.
func (d *Dispatcher) handleServeData(c *types.ServeDataCommand) {
	data, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		d.metrics.IncCommandDropped()
		d.logger.Warn("dropping serve_data with malformed payload", map[string]any{
			"key":   c.Key,
			"error": err.Error(),
		})
		return
	}
	d.assets.Serve(c.Key, data, c.MIME)
	d.metrics.IncCommandApplied()
}

// applyWindowCommand applies one window-bound command. The switch is
// exhaustive over the window-bound command variants; reaching default
// means a variant was added without a dispatch arm.
//
// Application failures are absorbed (one bad command must not sever
// the stream); the returned error is non-nil only for reply-emission
// failures, which mean the transport is gone.
func (d *Dispatcher) applyWindowCommand(cmd types.Command) error {
	var err error
	switch c := cmd.(type) {
	case *types.InitScriptCommand:
		err = d.window.AddInitScript(c.JS)
	case *types.NavigateCommand:
		err = d.window.Navigate(c.URL)
	case *types.EvalCommand:
		return d.applyEval(c)
	case *types.SetTitleCommand:
		err = d.window.SetTitle(c.Title)
	case *types.SetSizeCommand:
		err = d.window.SetSize(c.Width, c.Height)
	case *types.SetBoundsCommand:
		err = d.window.SetBounds(c.X, c.Y, c.Width, c.Height)
	case *types.CenterCommand:
		err = d.window.Center()
	case *types.MinimizeCommand:
		err = d.window.Minimize()
	case *types.ToggleMaximizeCommand:
		err = d.window.ToggleMaximize()
	case *types.SetProgressCommand:
		err = d.window.SetProgress(c.Value, c.Mode)
	case *types.ShowCommand:
		err = d.window.Show()
	case *types.HideCommand:
		err = d.window.Hide()
	case *types.SetResizableCommand:
		err = d.window.SetResizable(c.Resizable)
	case *types.SetFramelessCommand:
		err = d.window.SetFrameless(c.Frameless)
	case *types.SetIconCommand:
		err = d.window.SetIcon(c.Icon)
	case *types.BindCommand:
		d.stubs.Install(c.Name)
		err = d.window.InstallStub(c.Name)
	default:
		d.metrics.IncCommandDropped()
		d.logger.Error("no dispatch arm for command", map[string]any{
			"action": string(cmd.Action()),
		})
		return nil
	}

	if err != nil {
		d.metrics.IncCommandDropped()
		d.logger.Warn("command application failed", map[string]any{
			"action": string(cmd.Action()),
			"error":  err.Error(),
		})
		return nil
	}
	d.metrics.IncCommandApplied()
	return nil
}

// applyEval evaluates page JS. A command carrying a correlation id is
// answered with a command-reply envelope whether the evaluation
// succeeded or not.
func (d *Dispatcher) applyEval(c *types.EvalCommand) error {
	result, err := d.window.Eval(c.Code)
	if err != nil {
		d.metrics.IncCommandDropped()
		d.logger.Warn("command application failed", map[string]any{
			"action": string(types.ActionEval),
			"error":  err.Error(),
		})
	} else {
		d.metrics.IncCommandApplied()
	}

	if c.ID == "" {
		return nil
	}

	reply := types.CommandReplyPayload{ID: c.ID, Status: bridge.StatusOK, Result: result}
	if err != nil {
		message, _ := json.Marshal(err.Error())
		reply.Status = bridge.StatusError
		reply.Result = message
	}
	return d.emitReply(reply)
}
