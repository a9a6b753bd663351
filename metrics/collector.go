// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters for one bridge session. It is a
// leaf package with no internal dependencies. All increment methods
// are nil-receiver safe so call sites never have to guard.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Framing
	FramesRead    int64
	FramesWritten int64
	BytesRead     int64
	BytesWritten  int64
	DecodeErrors  int64

	// Command dispatch
	CommandsApplied int64
	CommandsQueued  int64
	CommandsDropped int64

	// RPC bridge
	CallsStarted   int64
	CallsResolved  int64
	CallsRejected  int64
	CallsTimedOut  int64
	RepliesOrphans int64

	// Virtual assets
	AssetsServedMemory int64
	AssetsServedDisk   int64
	AssetsServedOrigin int64
	AssetsMissed       int64

	// State sync
	StateSets  int64
	StateSyncs int64

	// Lifecycle events by name
	Lifecycle map[string]int64

	// Dimensions (informational, set at construction)
	Transport string
	BridgeID  string
}

// Fields flattens the snapshot into structured log fields for the
// end-of-session report.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"frames_read":      s.FramesRead,
		"frames_written":   s.FramesWritten,
		"bytes_read":       s.BytesRead,
		"bytes_written":    s.BytesWritten,
		"decode_errors":    s.DecodeErrors,
		"commands_applied": s.CommandsApplied,
		"commands_queued":  s.CommandsQueued,
		"commands_dropped": s.CommandsDropped,
		"calls_started":    s.CallsStarted,
		"calls_resolved":   s.CallsResolved,
		"calls_rejected":   s.CallsRejected,
		"calls_timed_out":  s.CallsTimedOut,
		"replies_orphaned": s.RepliesOrphans,
		"assets_memory":    s.AssetsServedMemory,
		"assets_disk":      s.AssetsServedDisk,
		"assets_origin":    s.AssetsServedOrigin,
		"assets_missed":    s.AssetsMissed,
		"state_sets":       s.StateSets,
		"state_syncs":      s.StateSyncs,
	}
}

// Collector accumulates metrics during a single bridge session.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	framesRead    int64
	framesWritten int64
	bytesRead     int64
	bytesWritten  int64
	decodeErrors  int64

	commandsApplied int64
	commandsQueued  int64
	commandsDropped int64

	callsStarted   int64
	callsResolved  int64
	callsRejected  int64
	callsTimedOut  int64
	repliesOrphans int64

	assetsServedMemory int64
	assetsServedDisk   int64
	assetsServedOrigin int64
	assetsMissed       int64

	stateSets  int64
	stateSyncs int64

	lifecycle map[string]int64

	transport string
	bridgeID  string
}

// NewCollector creates a Collector with dimension labels. Transport is
// the endpoint kind (tcp, unix, pipe); bridgeID identifies the session.
func NewCollector(transport, bridgeID string) *Collector {
	return &Collector{
		lifecycle: make(map[string]int64),
		transport: transport,
		bridgeID:  bridgeID,
	}
}

// --- Framing ---

// AddFrameRead records one inbound frame of n body bytes.
func (c *Collector) AddFrameRead(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesRead++
	c.bytesRead += int64(n)
	c.mu.Unlock()
}

// AddFrameWritten records one outbound frame of n body bytes.
func (c *Collector) AddFrameWritten(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesWritten++
	c.bytesWritten += int64(n)
	c.mu.Unlock()
}

// IncDecodeError records a non-fatal body decode failure.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// --- Command dispatch ---

// IncCommandApplied records a command applied to the window.
func (c *Collector) IncCommandApplied() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commandsApplied++
	c.mu.Unlock()
}

// IncCommandQueued records a command deferred until window creation.
func (c *Collector) IncCommandQueued() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commandsQueued++
	c.mu.Unlock()
}

// IncCommandDropped records an unrecognized or undeliverable command.
func (c *Collector) IncCommandDropped() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.commandsDropped++
	c.mu.Unlock()
}

// --- RPC bridge ---

// IncCallStarted records a rendering-side call entering the pending table.
func (c *Collector) IncCallStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsStarted++
	c.mu.Unlock()
}

// IncCallResolved records a call completed with a success reply.
func (c *Collector) IncCallResolved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsResolved++
	c.mu.Unlock()
}

// IncCallRejected records a call completed with an error reply.
func (c *Collector) IncCallRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsRejected++
	c.mu.Unlock()
}

// IncCallTimedOut records a call abandoned by its timeout.
func (c *Collector) IncCallTimedOut() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsTimedOut++
	c.mu.Unlock()
}

// IncReplyOrphan records a reply whose ID matched no pending call.
func (c *Collector) IncReplyOrphan() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.repliesOrphans++
	c.mu.Unlock()
}

// --- Virtual assets ---

// IncAssetServed records an asset resolution by source: "memory",
// "disk", or "origin". Any other source is counted as a miss.
func (c *Collector) IncAssetServed(source string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	switch source {
	case "memory":
		c.assetsServedMemory++
	case "disk":
		c.assetsServedDisk++
	case "origin":
		c.assetsServedOrigin++
	default:
		c.assetsMissed++
	}
	c.mu.Unlock()
}

// IncAssetMissed records a key that resolved nowhere.
func (c *Collector) IncAssetMissed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.assetsMissed++
	c.mu.Unlock()
}

// --- State sync ---

// IncStateSet records one incremental state push.
func (c *Collector) IncStateSet() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stateSets++
	c.mu.Unlock()
}

// IncStateSync records one full state replay.
func (c *Collector) IncStateSync() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stateSyncs++
	c.mu.Unlock()
}

// --- Lifecycle ---

// IncLifecycle records a lifecycle event by name.
func (c *Collector) IncLifecycle(event string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lifecycle[event]++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector
// can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lifecycle := make(map[string]int64, len(c.lifecycle))
	for k, v := range c.lifecycle {
		lifecycle[k] = v
	}

	return Snapshot{
		FramesRead:    c.framesRead,
		FramesWritten: c.framesWritten,
		BytesRead:     c.bytesRead,
		BytesWritten:  c.bytesWritten,
		DecodeErrors:  c.decodeErrors,

		CommandsApplied: c.commandsApplied,
		CommandsQueued:  c.commandsQueued,
		CommandsDropped: c.commandsDropped,

		CallsStarted:   c.callsStarted,
		CallsResolved:  c.callsResolved,
		CallsRejected:  c.callsRejected,
		CallsTimedOut:  c.callsTimedOut,
		RepliesOrphans: c.repliesOrphans,

		AssetsServedMemory: c.assetsServedMemory,
		AssetsServedDisk:   c.assetsServedDisk,
		AssetsServedOrigin: c.assetsServedOrigin,
		AssetsMissed:       c.assetsMissed,

		StateSets:  c.stateSets,
		StateSyncs: c.stateSyncs,

		Lifecycle: lifecycle,

		Transport: c.transport,
		BridgeID:  c.bridgeID,
	}
}
