package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	pkgerrors "github.com/pkg/errors"
	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/continuation"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/retry"
	"github.com/rgabriel/mcp-gmail/telemetry"
	"github.com/rgabriel/mcp-gmail/validation"
)

const informParticipants = "Inform the participants that the request could not be completed and try again later."

// Engine runs operations through validation, suspension and replay.
type Engine struct {
	orch      *validation.Orchestrator
	responder *retry.Responder
	store     continuation.Store
	telemetry telemetry.Recorder
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTelemetry sets where invocation events are recorded.
func WithTelemetry(r telemetry.Recorder) EngineOption {
	return func(e *Engine) { e.telemetry = r }
}

// WithLogger sets the logger used for unexpected failures.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine validating with orch and keeping
// continuations in store.
func NewEngine(orch *validation.Orchestrator, store continuation.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		orch:      orch,
		responder: retry.NewResponder(store),
		store:     store,
		telemetry: telemetry.NoOp{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DirectHandler validates the call and either executes it or suspends it.
func DirectHandler[T any](e *Engine, op Operation[T]) server.ToolHandlerFunc {
	return e.handle(op.Name, "direct", func(ctx context.Context, args map[string]any) (catalog.Result, error) {
		return direct(ctx, e, op, args)
	})
}

// ConfirmHandler resolves the caller's answer to a retry offer.
func ConfirmHandler[T any](e *Engine, op Operation[T]) server.ToolHandlerFunc {
	return e.handle(op.Name, "confirm", func(ctx context.Context, args map[string]any) (catalog.Result, error) {
		return confirm(ctx, e, op, args)
	})
}

// ReplayHandler re-executes a suspended call.
func ReplayHandler[T any](e *Engine, op Operation[T]) server.ToolHandlerFunc {
	return e.handle(op.Name, "replay", func(ctx context.Context, args map[string]any) (catalog.Result, error) {
		id := stringArg(args, retry.IDKey)
		if id == "" {
			return catalog.Failure(catalog.InputError, retry.IDKey+" is required"), nil
		}
		rec, miss, err := e.load(ctx, op.Name, id)
		if err != nil || miss != nil {
			return deref(miss), err
		}
		return replay(ctx, e, op, rec, args)
	})
}

type body func(ctx context.Context, args map[string]any) (catalog.Result, error)

// handle wraps an entry point with panic recovery, telemetry and logging.
// Authorization failures are the only errors returned to the host.
func (e *Engine) handle(operation, mode string, fn body) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := e.safely(ctx, operation, req.GetArguments(), fn)

		outcome := res.Outcome()
		if err != nil {
			outcome = "auth_error"
			e.logger.Warn("authorization required", "operation", operation, "mode", mode, "error", err)
		} else if res.ErrorKind == catalog.SystemError {
			e.logger.Error("operation failed", "operation", operation, "mode", mode, "detail", res.Detail)
		}
		e.telemetry.Record(ctx, telemetry.Event{
			Operation: operation,
			Mode:      mode,
			Outcome:   outcome,
			Duration:  time.Since(start),
		})

		if err != nil {
			return nil, err
		}
		return res.ToolResult(), nil
	}
}

func (e *Engine) safely(ctx context.Context, operation string, args map[string]any, fn body) (res catalog.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = e.unexpected(operation, pkgerrors.Errorf("panic: %v", r))
		}
	}()
	if args == nil {
		args = map[string]any{}
	}
	return fn(ctx, args)
}

// unexpected turns err into the SYSTEM_ERROR catch-all, unless it is an
// authorization failure, which is passed through.
func (e *Engine) unexpected(operation string, err error) (catalog.Result, error) {
	if mailbox.IsAuthError(err) {
		return catalog.Result{}, err
	}
	res := catalog.Failure(catalog.SystemError,
		fmt.Sprintf("An unexpected error occurred while processing %s.", operation),
		informParticipants,
	)
	res.Detail = fmt.Sprintf("%+v", pkgerrors.WithStack(err))
	return res, nil
}

// load fetches the continuation id for operation. A miss is reported as a
// result rather than an error.
func (e *Engine) load(ctx context.Context, operation, id string) (*continuation.Record, *catalog.Result, error) {
	rec, err := e.store.Get(ctx, id)
	if errors.Is(err, continuation.ErrNotFound) {
		res := expired(operation, id)
		return nil, &res, nil
	}
	if err != nil {
		res, err := e.unexpected(operation, err)
		return nil, &res, err
	}
	if rec.Operation != operation {
		res := catalog.Failure(catalog.LogicError,
			fmt.Sprintf("The retry request '%s' belongs to %s, not %s.", id, rec.Operation, operation))
		return nil, &res, nil
	}
	return rec, nil, nil
}

func deref(res *catalog.Result) catalog.Result {
	if res == nil {
		return catalog.Result{}
	}
	return *res
}

// direct validates before decoding, so a value a validator owns, such as a
// non-numeric page, is offered for retry instead of failing to decode.
func direct[T any](ctx context.Context, e *Engine, op Operation[T], args map[string]any) (catalog.Result, error) {
	report, err := e.orch.Validate(ctx, op.Name, op.values(args))
	if err != nil {
		return e.unexpected(op.Name, err)
	}
	if !report.Passed() {
		if !boolArg(args, argAllowRetry) {
			return e.responder.PlainValidationError(report.Failures), nil
		}
		res, err := e.responder.ConfirmRetry(ctx, op.Name, report.Failures, op.inputs(args))
		if err != nil {
			return e.unexpected(op.Name, err)
		}
		return res, nil
	}

	in, err := op.Decode(args)
	if err != nil {
		return catalog.Failure(catalog.InputError, err.Error()), nil
	}
	return execute(ctx, e, op, in, Run{Mode: Direct, Report: report})
}

func confirm[T any](ctx context.Context, e *Engine, op Operation[T], args map[string]any) (catalog.Result, error) {
	id := stringArg(args, retry.IDKey)
	if id == "" {
		return catalog.Failure(catalog.InputError, retry.IDKey+" is required"), nil
	}
	decision, ok := args[argDecision].(bool)
	if !ok {
		return catalog.Failure(catalog.InputError, argDecision+" is required and must be a boolean"), nil
	}

	rec, miss, err := e.load(ctx, op.Name, id)
	if err != nil || miss != nil {
		return deref(miss), err
	}
	if !decision {
		return e.responder.DenyRetry(rec.Failures), nil
	}
	return replay(ctx, e, op, rec, args)
}

// replay merges the caller's replacement values over the stored inputs and
// executes without validating. The continuation is claimed before the body
// runs and released again if the body fails, so concurrent replays of one id
// execute at most once.
func replay[T any](ctx context.Context, e *Engine, op Operation[T], rec *continuation.Record, args map[string]any) (catalog.Result, error) {
	if rec.ConsumedAt != nil {
		return alreadyProcessed(rec.ID), nil
	}

	merged := make(map[string]any, len(rec.Inputs)+len(args))
	for k, v := range rec.Inputs {
		merged[k] = v
	}
	for k, v := range op.inputs(args) {
		merged[k] = v
	}

	in, err := op.Decode(merged)
	if err != nil {
		return Run{Mode: Replay}.Miss(err.Error()), nil
	}

	switch err := e.store.Claim(ctx, rec.ID); {
	case errors.Is(err, continuation.ErrConsumed):
		return alreadyProcessed(rec.ID), nil
	case errors.Is(err, continuation.ErrNotFound):
		return expired(op.Name, rec.ID), nil
	case err != nil:
		return e.unexpected(op.Name, err)
	}

	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		// A timed-out or panicking body must still hand the record back.
		if rerr := e.store.Release(context.WithoutCancel(ctx), rec.ID); rerr != nil {
			e.logger.Warn("failed to release continuation",
				"operation", op.Name, "continuation_id", rec.ID, "error", rerr)
		}
	}()

	res, err := execute(ctx, e, op, in, Run{Mode: Replay})
	succeeded = err == nil && !res.Failed()
	return res, err
}

func execute[T any](ctx context.Context, e *Engine, op Operation[T], in T, run Run) (catalog.Result, error) {
	res, err := op.Execute(ctx, in, run)
	if err != nil {
		return e.unexpected(op.Name, err)
	}
	return res, nil
}

func expired(operation, id string) catalog.Result {
	return catalog.Failure(catalog.LogicError,
		fmt.Sprintf("The retry request '%s' has expired or does not exist.", id),
		"Call "+operation+" again with corrected values.",
	)
}

func alreadyProcessed(id string) catalog.Result {
	return catalog.Failure(catalog.LogicError,
		fmt.Sprintf("The retry request '%s' has already been processed.", strings.TrimSpace(id)))
}
