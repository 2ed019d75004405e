// Package retry builds the responses that suspend an operation with invalid
// input, and the responses used when the caller declines to correct it.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/continuation"
	"github.com/rgabriel/mcp-gmail/validation"
)

// IDKey is the argument carrying a continuation id.
const IDKey = "continuation_id"

// ConfirmName is the tool that asks whether to retry operation.
func ConfirmName(operation string) string {
	return "confirm-reenter-" + operation
}

// ReplayName is the tool that re-executes operation from stored inputs.
func ReplayName(operation string) string {
	return "handle-reenter-" + operation
}

// Responder builds retry responses.
type Responder struct {
	store continuation.Store
	newID func() string
	now   func() time.Time
}

// NewResponder creates a Responder persisting to store.
func NewResponder(store continuation.Store) *Responder {
	return &Responder{
		store: store,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// ConfirmRetry persists the operation's inputs and failures under a new
// continuation id, and asks the caller whether to correct them.
func (r *Responder) ConfirmRetry(ctx context.Context, operation string, failures []validation.Outcome, inputs map[string]any) (catalog.Result, error) {
	rec := &continuation.Record{
		ID:        r.newID(),
		Operation: operation,
		Inputs:    inputs,
		Failures:  failures,
		CreatedAt: r.now(),
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return catalog.Result{}, fmt.Errorf("failed to save continuation: %w", err)
	}

	echoed := make(map[string]any, len(inputs)+1)
	for k, v := range inputs {
		echoed[k] = v
	}
	echoed[IDKey] = rec.ID

	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, f.ConfirmationMessage)
	}

	res := catalog.Failure(catalog.InputError, strings.Join(messages, "\n"))
	res.Retry = &catalog.Retry{
		Outcomes:                  failures,
		ContinuationOperationName: ConfirmName(operation),
		ContinuationInputs:        echoed,
	}
	return res, nil
}

// DenyRetry reports the failures after the caller declined to correct them.
func (r *Responder) DenyRetry(failures []validation.Outcome) catalog.Result {
	return catalog.Failure(catalog.InputError, errorMessages(failures))
}

// PlainValidationError reports the failures of a call that never asked for
// a retry.
func (r *Responder) PlainValidationError(failures []validation.Outcome) catalog.Result {
	return catalog.Failure(catalog.InputError, errorMessages(failures))
}

func errorMessages(failures []validation.Outcome) string {
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		messages = append(messages, f.ErrorMessage)
	}
	return strings.Join(messages, "\n")
}
