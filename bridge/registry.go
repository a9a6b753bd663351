package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/casement-ui/casement/types"
)

// Handler is a host function exposed to the rendering side. Args are
// the positional JSON arguments from the invocation; the returned value
// is JSON-marshaled into the reply.
type Handler func(ctx context.Context, args []json.RawMessage) (any, error)

// Registry is the host-side table of bound functions. The host may
// invoke handlers from worker goroutines, so lookups are read-locked.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Handler)}
}

// Bind registers fn under name, replacing any previous binding.
func (r *Registry) Bind(name string, fn Handler) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

// Lookup returns the handler bound under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// Names returns all bound names, for replaying bind commands on connect.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

// Reply statuses on the wire. Zero resolves the pending call; anything
// else rejects it with the result as the error payload.
const (
	StatusOK    = 0
	StatusError = 1
)

// Dispatch runs one rendering-side invocation against the registry and
// builds the correlated reply. Handler panics are not recovered; a
// panicking handler is a host bug, not a protocol condition.
func Dispatch(ctx context.Context, reg *Registry, inv *types.IPCPayload) *types.ReplyCommand {
	fn, ok := reg.Lookup(inv.Name)
	if !ok {
		return errorReply(inv.ID, fmt.Sprintf("method not found: %s", inv.Name))
	}

	result, err := fn(ctx, inv.Args)
	if err != nil {
		return errorReply(inv.ID, err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errorReply(inv.ID, fmt.Sprintf("unserializable result from %s: %v", inv.Name, err))
	}
	return &types.ReplyCommand{ID: inv.ID, Status: StatusOK, Result: payload}
}

func errorReply(id, message string) *types.ReplyCommand {
	payload, _ := json.Marshal(message)
	return &types.ReplyCommand{ID: id, Status: StatusError, Result: payload}
}
