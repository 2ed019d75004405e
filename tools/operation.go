package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/retry"
	"github.com/rgabriel/mcp-gmail/validation"
)

// Argument names shared by several operations.
const (
	argMessageID   = "message_id"
	argTo          = "to"
	argCC          = "cc"
	argBCC         = "bcc"
	argReplyTo     = "reply_to"
	argFolderName  = "folder_name"
	argLabel       = "label"
	argPageNumber  = "page_number"
	argPageSize    = "page_size"
	argQuery       = "query"
	argSubject     = "subject"
	argMessage     = "message"
	argHTML        = "html"
	argAttachments = "attachments"
	argAllowRetry  = "allow_retry"
	argDecision    = "decision"
)

// Mode says how an operation body was reached.
type Mode string

const (
	// Direct is a first call; inputs passed validation in this call.
	Direct Mode = "direct"
	// Replay runs stored inputs after the caller agreed to a retry. No
	// validation happens on this path.
	Replay Mode = "replay"
)

// Run describes the invocation an operation body executes in.
type Run struct {
	Mode Mode
	// Report is the validation report of a direct call; nil on replay.
	Report *validation.Report
}

// Miss reports a business miss, such as an unknown message, as a
// LOGIC_ERROR worded for the path that reached it.
func (r Run) Miss(message string) catalog.Result {
	if r.Mode == Replay {
		message = "Retry failed: " + message
	}
	return catalog.Failure(catalog.LogicError, message)
}

// ArgKind is the JSON type of an argument.
type ArgKind int

const (
	StringArg ArgKind = iota
	NumberArg
	BoolArg
	AttachmentsArg
)

// Arg declares one argument of an operation.
type Arg struct {
	Name        string
	Kind        ArgKind
	Description string
	Required    bool
	Enum        []string
	// Field and Validator are set for arguments checked before execution.
	Field     validation.Field
	Validator validation.Validator
}

// Operation is one catalog entry: its arguments, how they are decoded into
// T, and the body that executes with them.
type Operation[T any] struct {
	Name        string
	Description string
	ReadOnly    bool
	Args        []Arg
	Decode      func(args map[string]any) (T, error)
	Execute     func(ctx context.Context, in T, run Run) (catalog.Result, error)
}

// Registrar is implemented by every Operation regardless of its input type.
type Registrar interface {
	// Rules returns the operation name and its validated fields in order.
	Rules() (string, []validation.Binding)
	// Tools returns the direct, confirm and replay tools of the operation.
	Tools(e *Engine) []server.ServerTool
}

func (op Operation[T]) Rules() (string, []validation.Binding) {
	var bindings []validation.Binding
	for _, a := range op.Args {
		if a.Validator != nil {
			bindings = append(bindings, validation.Binding{Field: a.Field, Validator: a.Validator})
		}
	}
	return op.Name, bindings
}

func (op Operation[T]) Tools(e *Engine) []server.ServerTool {
	return []server.ServerTool{
		{Tool: op.directTool(), Handler: DirectHandler(e, op)},
		{Tool: op.confirmTool(), Handler: ConfirmHandler(e, op)},
		{Tool: op.replayTool(), Handler: ReplayHandler(e, op)},
	}
}

// Table builds the validation table for ops.
func Table(ops []Registrar) validation.Table {
	table := make(validation.Table, len(ops))
	for _, op := range ops {
		name, bindings := op.Rules()
		table[name] = bindings
	}
	return table
}

// Register adds every tool of ops to s.
func Register(s *server.MCPServer, e *Engine, ops []Registrar) {
	for _, op := range ops {
		s.AddTools(op.Tools(e)...)
	}
}

// values collects the raw text of each validated argument. A required
// argument that was left out is validated as blank.
func (op Operation[T]) values(args map[string]any) validation.Values {
	values := validation.Values{}
	for _, a := range op.Args {
		if a.Validator == nil {
			continue
		}
		raw, ok := args[a.Name]
		if !ok || raw == nil {
			if !a.Required {
				continue
			}
			raw = ""
		}
		values[a.Field] = argText(raw)
	}
	return values
}

// inputs keeps the declared arguments that were supplied.
func (op Operation[T]) inputs(args map[string]any) map[string]any {
	in := make(map[string]any, len(op.Args))
	for _, a := range op.Args {
		if v, ok := args[a.Name]; ok && v != nil {
			in[a.Name] = v
		}
	}
	return in
}

func (op Operation[T]) directTool() mcp.Tool {
	opts := op.toolOptions(op.Description, true)
	opts = append(opts, mcp.WithBoolean(argAllowRetry,
		mcp.Description("When true, invalid input returns a continuation the caller can use to correct it instead of a plain error."),
		mcp.DefaultBool(false),
	))
	return mcp.NewTool(op.Name, opts...)
}

func (op Operation[T]) confirmTool() mcp.Tool {
	opts := op.toolOptions("Answers whether to correct the invalid input of a previous "+op.Name+
		" call. With decision true the operation runs again with the supplied replacement values; with false the original validation errors are returned.", false)
	opts = append(opts,
		mcp.WithString(retry.IDKey, mcp.Required(), mcp.Description("Continuation id returned by "+op.Name+".")),
		mcp.WithBoolean(argDecision, mcp.Required(), mcp.Description("Whether to retry with corrected values.")),
	)
	return mcp.NewTool(retry.ConfirmName(op.Name), opts...)
}

func (op Operation[T]) replayTool() mcp.Tool {
	opts := op.toolOptions("Runs a suspended "+op.Name+" call again from its stored inputs, overridden by any values supplied here. Values are not validated again.", false)
	opts = append(opts,
		mcp.WithString(retry.IDKey, mcp.Required(), mcp.Description("Continuation id returned by "+op.Name+".")),
	)
	return mcp.NewTool(retry.ReplayName(op.Name), opts...)
}

func (op Operation[T]) toolOptions(description string, direct bool) []mcp.ToolOption {
	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithReadOnlyHintAnnotation(op.ReadOnly),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(op.ReadOnly),
	}
	for _, a := range op.Args {
		props := []mcp.PropertyOption{mcp.Description(a.Description)}
		if direct && a.Required {
			props = append(props, mcp.Required())
		}
		if len(a.Enum) > 0 {
			props = append(props, mcp.Enum(a.Enum...))
		}
		switch a.Kind {
		case NumberArg:
			opts = append(opts, mcp.WithNumber(a.Name, props...))
		case BoolArg:
			opts = append(opts, mcp.WithBoolean(a.Name, props...))
		case AttachmentsArg:
			props = append(props, mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"filename":       map[string]any{"type": "string"},
					"mime_type":      map[string]any{"type": "string"},
					"content_base64": map[string]any{"type": "string"},
				},
				"required": []string{"filename", "content_base64"},
			}))
			opts = append(opts, mcp.WithArray(a.Name, props...))
		default:
			opts = append(opts, mcp.WithString(a.Name, props...))
		}
	}
	return opts
}
