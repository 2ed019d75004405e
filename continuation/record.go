// Package continuation persists the state of operations suspended while the
// caller decides whether to correct invalid input.
package continuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rgabriel/mcp-gmail/validation"
)

// ResultsKey is the reserved payload key holding the validation failures.
const ResultsKey = "validationResults"

var (
	// ErrNotFound is returned for unknown or expired continuations.
	ErrNotFound = errors.New("continuation not found")
	// ErrConsumed is returned when a continuation was already replayed.
	ErrConsumed = errors.New("continuation already processed")
)

// Record is a suspended operation.
type Record struct {
	ID        string
	Operation string
	// Inputs holds the original arguments keyed by argument name.
	Inputs     map[string]any
	Failures   []validation.Outcome
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// MarshalJSON writes the inputs as top-level keys next to ResultsKey.
func (r *Record) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Inputs)+1)
	for k, v := range r.Inputs {
		doc[k] = v
	}
	failures := r.Failures
	if failures == nil {
		failures = []validation.Outcome{}
	}
	doc[ResultsKey] = failures
	return json.Marshal(doc)
}

// UnmarshalJSON accepts the layout written by MarshalJSON. A missing or null
// ResultsKey yields no failures.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode continuation: %w", err)
	}

	r.Failures = nil
	if raw, ok := doc[ResultsKey]; ok {
		if err := json.Unmarshal(raw, &r.Failures); err != nil {
			return fmt.Errorf("failed to decode %s: %w", ResultsKey, err)
		}
		delete(doc, ResultsKey)
	}

	r.Inputs = make(map[string]any, len(doc))
	for k, raw := range doc {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("failed to decode input %s: %w", k, err)
		}
		r.Inputs[k] = v
	}
	return nil
}

// Store persists continuation records.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	// Get returns ErrNotFound for unknown or expired ids. Reads never
	// consume a record.
	Get(ctx context.Context, id string) (*Record, error)
	// Claim marks the record consumed before a replay runs. It returns
	// ErrConsumed if another replay holds or used the record.
	Claim(ctx context.Context, id string) error
	// Release undoes a Claim whose replay failed.
	Release(ctx context.Context, id string) error
	Close() error
}
