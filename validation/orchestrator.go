package validation

import (
	"context"
	"fmt"
)

// Outcome is the result of validating one field, with every message the
// caller may need to correct it.
type Outcome struct {
	Field               Field  `json:"field"`
	Passed              bool   `json:"passed"`
	ErrorMessage        string `json:"errorMessage"`
	FetchPromptMessage  string `json:"fetchPromptMessage,omitempty"`
	ConfirmationMessage string `json:"confirmationMessage,omitempty"`
}

// Binding attaches a validator to a field.
type Binding struct {
	Field     Field
	Validator Validator
}

// Table maps operation names to their fields, in the order they are checked.
type Table map[string][]Binding

// Report is the result of validating one call.
type Report struct {
	// Failures holds an outcome for each field that did not pass, in table order.
	Failures []Outcome
	Checks   map[Field]Check
}

// Passed reports whether every validated field passed.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Check returns the check recorded for f, if f was validated.
func (r *Report) Check(f Field) (Check, bool) {
	if r == nil {
		return Check{}, false
	}
	c, ok := r.Checks[f]
	return c, ok
}

// Orchestrator runs the validators an operation declares.
type Orchestrator struct {
	table Table
}

// NewOrchestrator creates an Orchestrator over a fixed table.
func NewOrchestrator(table Table) *Orchestrator {
	return &Orchestrator{table: table}
}

// Fields returns the fields validated for operation, in order.
func (o *Orchestrator) Fields(operation string) []Field {
	bindings := o.table[operation]
	fields := make([]Field, 0, len(bindings))
	for _, b := range bindings {
		fields = append(fields, b.Field)
	}
	return fields
}

// Validate checks every field of values that operation declares. All failures
// are collected. A validator error stops the run and is returned as is so
// callers can detect authorization failures.
func (o *Orchestrator) Validate(ctx context.Context, operation string, values Values) (*Report, error) {
	bindings, ok := o.table[operation]
	if !ok {
		return nil, fmt.Errorf("no validation rules for operation %q", operation)
	}

	report := &Report{Checks: make(map[Field]Check, len(bindings))}
	for _, b := range bindings {
		raw, present := values[b.Field]
		if !present {
			continue
		}
		c, err := b.Validator.Validate(ctx, raw, values)
		if err != nil {
			return nil, err
		}
		report.Checks[b.Field] = c
		if c.Valid {
			continue
		}
		report.Failures = append(report.Failures, Outcome{
			Field:               b.Field,
			Passed:              false,
			ErrorMessage:        b.Validator.ErrorMessage(raw, c),
			FetchPromptMessage:  b.Validator.FetchPrompt(),
			ConfirmationMessage: b.Validator.Confirmation(raw, c),
		})
	}
	return report, nil
}
