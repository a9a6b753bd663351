package shell

import "github.com/casement-ui/casement/types"

// pendingQueue holds window-bound commands that arrived before the
// window existed. Strictly FIFO: the drain applies commands in the
// exact order they were enqueued.
type pendingQueue struct {
	items []types.Command
}

func (q *pendingQueue) push(cmd types.Command) {
	q.items = append(q.items, cmd)
}

func (q *pendingQueue) len() int { return len(q.items) }

// drain returns the queued commands in arrival order and empties the
// queue.
func (q *pendingQueue) drain() []types.Command {
	items := q.items
	q.items = nil
	return items
}
