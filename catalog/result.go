// Package catalog defines the result envelope every tool returns to the host.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rgabriel/mcp-gmail/validation"
)

// ErrorKind classifies a failed result.
type ErrorKind string

const (
	InputError  ErrorKind = "INPUT_ERROR"
	LogicError  ErrorKind = "LOGIC_ERROR"
	SystemError ErrorKind = "SYSTEM_ERROR"
)

// Result is the outcome of one operation.
type Result struct {
	Values             map[string]any `json:"values,omitempty"`
	ErrorMessage       string         `json:"errorMessage,omitempty"`
	ErrorKind          ErrorKind      `json:"errorKind,omitempty"`
	RemediationActions []string       `json:"remediationActions,omitempty"`
	Retry              *Retry         `json:"retry,omitempty"`
	// Detail is kept for operators and never sent to the caller.
	Detail string `json:"-"`
}

// Retry points the caller at the continuation that resumes the operation.
type Retry struct {
	Outcomes                  []validation.Outcome `json:"outcomes"`
	ContinuationOperationName string               `json:"continuationOperationName"`
	ContinuationInputs        map[string]any       `json:"continuationInputs"`
}

// Success returns a successful result with the given output values.
func Success(values map[string]any) Result {
	if values == nil {
		values = map[string]any{}
	}
	return Result{Values: values}
}

// Failure returns a failed result.
func Failure(kind ErrorKind, message string, remediation ...string) Result {
	return Result{ErrorKind: kind, ErrorMessage: message, RemediationActions: remediation}
}

// Failed reports whether r is a failure.
func (r Result) Failed() bool {
	return r.ErrorKind != ""
}

// Outcome names the result for logs and telemetry.
func (r Result) Outcome() string {
	switch {
	case r.Retry != nil:
		return "retry_offered"
	case r.Failed():
		return string(r.ErrorKind)
	default:
		return "success"
	}
}

// ToolResult renders r as MCP text content. Failures set IsError.
func (r Result) ToolResult() *mcp.CallToolResult {
	var body any = r
	if !r.Failed() {
		body = struct {
			Values map[string]any `json:"values"`
		}{r.Values}
	}
	jsonData, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to format response: %v", err))
	}
	if r.Failed() {
		return mcp.NewToolResultError(string(jsonData))
	}
	return mcp.NewToolResultText(string(jsonData))
}
