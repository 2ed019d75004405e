// Package telemetry records what each operation invocation did.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Event describes one finished invocation.
type Event struct {
	Operation string
	// Mode is "direct", "confirm" or "replay".
	Mode     string
	Outcome  string
	Duration time.Duration
}

// Recorder receives invocation events.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// NoOp discards events.
type NoOp struct{}

func (NoOp) Record(context.Context, Event) {}

// Log writes events to a structured logger at debug level.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Record(ctx context.Context, e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "operation finished",
		"operation", e.Operation,
		"mode", e.Mode,
		"outcome", e.Outcome,
		"duration_ms", e.Duration.Milliseconds(),
	)
}

// Counters keeps in-memory totals per operation and outcome.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewCounters returns an empty Counters.
func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int64)}
}

func (c *Counters) Record(_ context.Context, e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[e.Operation+"/"+e.Mode+"/"+e.Outcome]++
}

// Snapshot returns a copy of the current totals keyed by
// "operation/mode/outcome".
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Keys returns the recorded keys in sorted order.
func (c *Counters) Keys() []string {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type multi []Recorder

func (m multi) Record(ctx context.Context, e Event) {
	for _, r := range m {
		r.Record(ctx, e)
	}
}

// Multi fans events out to every recorder.
func Multi(recorders ...Recorder) Recorder {
	return multi(recorders)
}
