package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rgabriel/mcp-gmail/catalog"
	"github.com/rgabriel/mcp-gmail/continuation"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/retry"
	"github.com/rgabriel/mcp-gmail/telemetry"
	"github.com/rgabriel/mcp-gmail/validation"
)

// req builds a mcp.CallToolRequest with the given arguments.
func req(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// resultJSON unmarshals the values of a successful result.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success but got error: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content but got none")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	var m struct {
		Values map[string]interface{} `json:"values"`
	}
	if err := json.Unmarshal([]byte(text.Text), &m); err != nil {
		t.Fatalf("failed to unmarshal result JSON: %v", err)
	}
	return m.Values
}

// resultErrText extracts the error body from an error result.
func resultErrText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result but got success: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		return ""
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

// resultFailure decodes an error result into its envelope.
func resultFailure(t *testing.T, result *mcp.CallToolResult) catalog.Result {
	t.Helper()
	var res catalog.Result
	if err := json.Unmarshal([]byte(resultErrText(t, result)), &res); err != nil {
		t.Fatalf("failed to unmarshal error JSON: %v", err)
	}
	return res
}

type harness struct {
	mock     *MockProvider
	engine   *Engine
	store    continuation.Store
	counters *telemetry.Counters
}

func newHarness(t *testing.T, mock *MockProvider, search ...SearchOptions) *harness {
	t.Helper()
	opts := SearchOptions{EmptyIsInvalid: true}
	if len(search) > 0 {
		opts = search[0]
	}
	store, err := continuation.NewSQLiteStore(":memory:", time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	counters := telemetry.NewCounters()
	ops := Catalog(mock, opts)
	engine := NewEngine(validation.NewOrchestrator(Table(ops)), store,
		WithTelemetry(counters),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &harness{mock: mock, engine: engine, store: store, counters: counters}
}

// call runs the named tool of op and fails the test on a Go error.
func (h *harness) call(t *testing.T, op Registrar, tool string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h.tool(op, tool)(context.Background(), req(args))
	if err != nil {
		t.Fatalf("%s returned error: %v", tool, err)
	}
	return result
}

func (h *harness) tool(op Registrar, name string) server.ToolHandlerFunc {
	for _, st := range op.Tools(h.engine) {
		if st.Tool.Name == name {
			return st.Handler
		}
	}
	panic("no tool " + name)
}

func TestToolsRegistersThreeEntryPoints(t *testing.T) {
	h := newHarness(t, newMock())
	tools := MoveMessage(h.mock).Tools(h.engine)
	if len(tools) != 3 {
		t.Fatalf("got %d tools, want 3", len(tools))
	}
	want := []string{"move-message", "confirm-reenter-move-message", "handle-reenter-move-message"}
	for i, st := range tools {
		if st.Tool.Name != want[i] {
			t.Errorf("tool %d = %q, want %q", i, st.Tool.Name, want[i])
		}
	}
	if got := tools[1].Tool.InputSchema.Required; len(got) != 2 {
		t.Errorf("confirm tool required = %v, want continuation_id and decision", got)
	}
}

func TestTableFollowsArgumentOrder(t *testing.T) {
	h := newHarness(t, newMock())
	orch := validation.NewOrchestrator(Table(Catalog(h.mock, SearchOptions{})))

	tests := map[string][]validation.Field{
		"send-mail":             {validation.ToAddresses, validation.CcAddresses, validation.BccAddresses, validation.ReplyToAddress},
		"reply-to-mail":         {validation.MessageID, validation.CcAddresses, validation.BccAddresses},
		"forward-mail":          {validation.MessageID, validation.ToAddresses, validation.CcAddresses, validation.BccAddresses},
		"move-message":          {validation.MessageID},
		"mark-mail":             {validation.MessageID},
		"search-mails":          {validation.Query, validation.PageNumber, validation.PageSize},
		"fetch-mail-by-id":      {validation.MessageID},
		"fetch-mails-by-label":  {validation.Label, validation.PageNumber, validation.PageSize},
		"fetch-mails-by-folder": {validation.FolderName, validation.PageNumber, validation.PageSize},
	}
	for op, want := range tests {
		got := orch.Fields(op)
		if len(got) != len(want) {
			t.Errorf("%s fields = %v, want %v", op, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s fields = %v, want %v", op, got, want)
				break
			}
		}
	}
}

// --- send-mail ---

func TestSendMailHandler(t *testing.T) {
	h := newHarness(t, newMock())
	result := h.call(t, SendMail(h.mock), "send-mail", map[string]interface{}{
		"to":      []interface{}{"bob@example.com", "carol@example.com"},
		"cc":      "dave@example.com",
		"subject": "Hello",
		"message": "Hi there",
	})

	values := resultJSON(t, result)
	if values["Response"] != "success" || values["MessageId"] != "sent-1" {
		t.Errorf("values = %v", values)
	}
	sent := h.mock.LastSent
	if sent.From != "me@example.com" || len(sent.To) != 2 || sent.CC[0] != "dave@example.com" || sent.Subject != "Hello" {
		t.Errorf("sent = %+v", sent)
	}
}

func TestSendMailInvalidWithoutRetry(t *testing.T) {
	h := newHarness(t, newMock())
	result := h.call(t, SendMail(h.mock), "send-mail", map[string]interface{}{
		"to": "bob@example.com, bad",
		"cc": "also-bad",
	})

	res := resultFailure(t, result)
	if res.ErrorKind != catalog.InputError {
		t.Errorf("ErrorKind = %q", res.ErrorKind)
	}
	want := "Invalid email addresses in the To field: bad.\nInvalid email addresses in the Cc field: also-bad."
	if res.ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", res.ErrorMessage, want)
	}
	if res.Retry != nil {
		t.Error("no continuation expected without allow_retry")
	}
	if h.mock.SendCalls != 0 {
		t.Error("invalid input must not be sent")
	}
}

func TestSendMailRetryFlow(t *testing.T) {
	h := newHarness(t, newMock())
	op := SendMail(h.mock)

	result := h.call(t, op, "send-mail", map[string]interface{}{
		"to":          "bob@example.com, bad",
		"cc":          "also-bad",
		"subject":     "Quarterly",
		"allow_retry": true,
	})
	res := resultFailure(t, result)
	if res.ErrorKind != catalog.InputError || res.Retry == nil {
		t.Fatalf("result = %+v, want INPUT_ERROR with retry", res)
	}
	if res.Retry.ContinuationOperationName != "confirm-reenter-send-mail" {
		t.Errorf("continuation = %q", res.Retry.ContinuationOperationName)
	}
	if len(res.Retry.Outcomes) != 2 || res.Retry.Outcomes[0].Field != validation.ToAddresses {
		t.Errorf("outcomes = %+v", res.Retry.Outcomes)
	}
	if !strings.Contains(res.ErrorMessage, "The following email addresses in the To field are invalid: bad.") {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
	inputs := res.Retry.ContinuationInputs
	if inputs["subject"] != "Quarterly" {
		t.Errorf("continuation inputs = %v", inputs)
	}
	id, _ := inputs[retry.IDKey].(string)
	if id == "" {
		t.Fatal("continuation id missing")
	}

	result = h.call(t, op, "confirm-reenter-send-mail", map[string]interface{}{
		retry.IDKey: id,
		"decision":  true,
		"to":        "bob@example.com",
		"cc":        "carol@example.com",
	})
	if values := resultJSON(t, result); values["Response"] != "success" {
		t.Errorf("values = %v", values)
	}
	sent := h.mock.LastSent
	if len(sent.To) != 1 || sent.To[0] != "bob@example.com" || sent.CC[0] != "carol@example.com" || sent.Subject != "Quarterly" {
		t.Errorf("sent = %+v", sent)
	}

	// A continuation runs at most once.
	result = h.call(t, op, "handle-reenter-send-mail", map[string]interface{}{retry.IDKey: id})
	res = resultFailure(t, result)
	if res.ErrorKind != catalog.LogicError || !strings.Contains(res.ErrorMessage, "already been processed") {
		t.Errorf("second replay = %+v", res)
	}
	if h.mock.SendCalls != 1 {
		t.Errorf("SendCalls = %d, want 1", h.mock.SendCalls)
	}
}

// suspendSend leaves a send-mail continuation with an invalid To list and
// returns its id.
func suspendSend(t *testing.T, h *harness, op Registrar) string {
	t.Helper()
	res := resultFailure(t, h.call(t, op, "send-mail", map[string]interface{}{
		"to":          "bad",
		"subject":     "Quarterly",
		"allow_retry": true,
	}))
	if res.Retry == nil {
		t.Fatalf("result = %+v, want retry offer", res)
	}
	id, _ := res.Retry.ContinuationInputs[retry.IDKey].(string)
	return id
}

func TestConcurrentReplaySendsOnce(t *testing.T) {
	mock := newMock()
	mock.SendDelay = 50 * time.Millisecond
	h := newHarness(t, mock)
	op := SendMail(mock)
	id := suspendSend(t, h, op)

	const callers = 4
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, done int
	)
	handler := h.tool(op, "handle-reenter-send-mail")
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := handler(context.Background(), req(map[string]interface{}{
				retry.IDKey: id,
				"to":        "bob@example.com",
			}))
			if err != nil {
				t.Errorf("replay error = %v", err)
				return
			}
			var res catalog.Result
			if result.IsError {
				text := result.Content[0].(mcp.TextContent).Text
				if json.Unmarshal([]byte(text), &res) == nil && strings.Contains(res.ErrorMessage, "already been processed") {
					mu.Lock()
					done++
					mu.Unlock()
				}
				return
			}
			mu.Lock()
			ok++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if mock.SendCalls != 1 {
		t.Errorf("SendCalls = %d, want 1", mock.SendCalls)
	}
	if ok != 1 || done != callers-1 {
		t.Errorf("%d succeeded and %d were already processed, want 1 and %d", ok, done, callers-1)
	}
}

func TestFailedReplayCanBeRetried(t *testing.T) {
	mock := newMock()
	h := newHarness(t, mock)
	op := SendMail(mock)
	id := suspendSend(t, h, op)

	mock.SendErr = errors.Join(mailbox.ErrRejected, errors.New("550"))
	res := resultFailure(t, h.call(t, op, "handle-reenter-send-mail", map[string]interface{}{
		retry.IDKey: id,
		"to":        "bob@example.com",
	}))
	if res.ErrorKind != catalog.LogicError {
		t.Fatalf("first replay = %+v, want LOGIC_ERROR", res)
	}
	rec, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.ConsumedAt != nil {
		t.Error("failed replay left the continuation consumed")
	}

	mock.SendErr = nil
	values := resultJSON(t, h.call(t, op, "handle-reenter-send-mail", map[string]interface{}{
		retry.IDKey: id,
		"to":        "bob@example.com",
	}))
	if values["Response"] != "success" {
		t.Errorf("values = %v", values)
	}
	if mock.SendCalls != 2 {
		t.Errorf("SendCalls = %d, want 2", mock.SendCalls)
	}
}

func TestSendMailRejected(t *testing.T) {
	mock := newMock()
	mock.SendErr = errors.Join(mailbox.ErrRejected, errors.New("550"))
	h := newHarness(t, mock)

	res := resultFailure(t, h.call(t, SendMail(mock), "send-mail", map[string]interface{}{"to": "bob@example.com"}))
	if res.ErrorKind != catalog.LogicError {
		t.Errorf("ErrorKind = %q, want LOGIC_ERROR", res.ErrorKind)
	}
}

func TestUnexpectedErrorIsSystemError(t *testing.T) {
	mock := newMock()
	mock.SendErr = errors.New("boom: connection reset")
	h := newHarness(t, mock)

	result := h.call(t, SendMail(mock), "send-mail", map[string]interface{}{"to": "bob@example.com"})
	text := resultErrText(t, result)
	if strings.Contains(text, "connection reset") {
		t.Errorf("internal detail leaked: %s", text)
	}
	res := resultFailure(t, result)
	if res.ErrorKind != catalog.SystemError {
		t.Errorf("ErrorKind = %q", res.ErrorKind)
	}
	if res.ErrorMessage != "An unexpected error occurred while processing send-mail." {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}
	if len(res.RemediationActions) != 1 {
		t.Errorf("RemediationActions = %v", res.RemediationActions)
	}
	if h.counters.Snapshot()["send-mail/direct/SYSTEM_ERROR"] != 1 {
		t.Errorf("telemetry = %v", h.counters.Snapshot())
	}
}

func TestPanicIsSystemError(t *testing.T) {
	op := Operation[string]{
		Name:   "explode",
		Decode: func(map[string]any) (string, error) { return "", nil },
		Execute: func(context.Context, string, Run) (catalog.Result, error) {
			panic("nil map")
		},
	}
	store, err := continuation.NewSQLiteStore(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	e := NewEngine(validation.NewOrchestrator(Table([]Registrar{op})), store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	result, err := DirectHandler(e, op)(context.Background(), req(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res := resultFailure(t, result); res.ErrorKind != catalog.SystemError {
		t.Errorf("ErrorKind = %q", res.ErrorKind)
	}
}

// --- authorization ---

func TestAuthErrorPropagates(t *testing.T) {
	authErr := &mailbox.AuthError{Err: errors.New("token expired")}

	t.Run("during validation", func(t *testing.T) {
		mock := newMock()
		mock.Err = authErr
		h := newHarness(t, mock)
		result, err := h.tool(MoveMessage(mock), "move-message")(context.Background(), req(map[string]interface{}{
			"message_id": "18c2a", "folder_name": "SPAM",
		}))
		if result != nil {
			t.Errorf("result = %+v, want nil", result)
		}
		var ae *mailbox.AuthError
		if !errors.As(err, &ae) {
			t.Errorf("err = %v, want AuthError", err)
		}
	})

	t.Run("during execution", func(t *testing.T) {
		mock := newMock()
		mock.SendErr = authErr
		h := newHarness(t, mock)
		_, err := h.tool(SendMail(mock), "send-mail")(context.Background(), req(map[string]interface{}{"to": "bob@example.com"}))
		if !mailbox.IsAuthError(err) {
			t.Errorf("err = %v, want AuthError", err)
		}
		if h.counters.Snapshot()["send-mail/direct/auth_error"] != 1 {
			t.Errorf("telemetry = %v", h.counters.Snapshot())
		}
	})
}

// --- move-message ---

func TestMoveMessageHandler(t *testing.T) {
	tests := []struct {
		name     string
		folder   string
		response string
	}{
		{name: "existing folder", folder: "SPAM", response: "success"},
		{name: "existing label", folder: "Work", response: "success"},
		{name: "missing destination", folder: "DoesNotExist", response: "failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newMock())
			values := resultJSON(t, h.call(t, MoveMessage(h.mock), "move-message", map[string]interface{}{
				"message_id":  "18c2a",
				"folder_name": tt.folder,
			}))
			if values["Response"] != tt.response {
				t.Errorf("Response = %v, want %q", values["Response"], tt.response)
			}
		})
	}
}

func TestMoveMessageEmptyIDOffersRetry(t *testing.T) {
	h := newHarness(t, newMock())
	res := resultFailure(t, h.call(t, MoveMessage(h.mock), "move-message", map[string]interface{}{
		"message_id":  "",
		"folder_name": "Archive",
		"allow_retry": true,
	}))
	if res.ErrorKind != catalog.InputError || res.Retry == nil {
		t.Fatalf("result = %+v, want INPUT_ERROR with retry", res)
	}
	if res.Retry.ContinuationOperationName != "confirm-reenter-move-message" {
		t.Errorf("continuation = %q", res.Retry.ContinuationOperationName)
	}
	if len(res.Retry.Outcomes) != 1 || res.Retry.Outcomes[0].Field != validation.MessageID {
		t.Errorf("outcomes = %+v, want MessageId only", res.Retry.Outcomes)
	}
	if h.mock.LastMethod == "MessageExists" || h.mock.LastMethod == "Move" {
		t.Errorf("empty id reached the mailbox via %s", h.mock.LastMethod)
	}
}

func TestReplayWithRejectedIDIsLogicError(t *testing.T) {
	tests := []struct {
		name string
		op   func(mailbox.Provider) Registrar
		args map[string]interface{}
	}{
		{
			name: "move-message",
			op:   func(p mailbox.Provider) Registrar { return MoveMessage(p) },
			args: map[string]interface{}{"folder_name": "SPAM"},
		},
		{
			name: "mark-mail",
			op:   func(p mailbox.Provider) Registrar { return MarkMail(p) },
			args: map[string]interface{}{"mark_as": "read"},
		},
		{
			name: "fetch-mail-by-id",
			op:   func(p mailbox.Provider) Registrar { return FetchMailByID(p) },
			args: map[string]interface{}{},
		},
		{
			name: "reply-to-mail",
			op:   func(p mailbox.Provider) Registrar { return ReplyToMail(p) },
			args: map[string]interface{}{"message": "Thanks"},
		},
		{
			name: "forward-mail",
			op:   func(p mailbox.Provider) Registrar { return ForwardMail(p) },
			args: map[string]interface{}{"to": "bob@example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock()
			h := newHarness(t, mock)
			op := tt.op(mock)

			args := map[string]interface{}{"message_id": "missing", "allow_retry": true}
			for k, v := range tt.args {
				args[k] = v
			}
			res := resultFailure(t, h.call(t, op, tt.name, args))
			if res.Retry == nil {
				t.Fatalf("result = %+v, want retry offer", res)
			}
			id := res.Retry.ContinuationInputs[retry.IDKey]

			mock.Err = fmt.Errorf("%w: Invalid id value", mailbox.ErrRejected)
			res = resultFailure(t, h.call(t, op, "handle-reenter-"+tt.name, map[string]interface{}{
				retry.IDKey:  id,
				"message_id": "not an id",
			}))
			if res.ErrorKind != catalog.LogicError {
				t.Errorf("replay = %+v, want LOGIC_ERROR", res)
			}
			if res.ErrorMessage != "Retry failed: No message found with ID 'not an id'." {
				t.Errorf("ErrorMessage = %q", res.ErrorMessage)
			}
		})
	}
}

func TestDenialIsIdempotent(t *testing.T) {
	h := newHarness(t, newMock())
	op := MoveMessage(h.mock)

	res := resultFailure(t, h.call(t, op, "move-message", map[string]interface{}{
		"message_id":  "missing",
		"folder_name": "SPAM",
		"allow_retry": true,
	}))
	if res.Retry == nil {
		t.Fatalf("result = %+v, want retry offer", res)
	}
	id := res.Retry.ContinuationInputs[retry.IDKey]
	calls := h.mock.CallCount

	var first string
	for i := 0; i < 2; i++ {
		text := resultErrText(t, h.call(t, op, "confirm-reenter-move-message", map[string]interface{}{
			retry.IDKey: id,
			"decision":  false,
		}))
		if i == 0 {
			first = text
		} else if text != first {
			t.Errorf("second denial = %s, want %s", text, first)
		}
	}
	denied := resultFailure(t, h.call(t, op, "confirm-reenter-move-message", map[string]interface{}{retry.IDKey: id, "decision": false}))
	if denied.ErrorKind != catalog.InputError || denied.ErrorMessage != "Invalid message ID 'missing'." {
		t.Errorf("denial = %+v", denied)
	}
	if h.mock.CallCount != calls {
		t.Errorf("denial touched the mailbox: %d calls, want %d", h.mock.CallCount, calls)
	}
}

func TestReplayWithInvalidDataIsLogicError(t *testing.T) {
	h := newHarness(t, newMock())
	op := MoveMessage(h.mock)

	res := resultFailure(t, h.call(t, op, "move-message", map[string]interface{}{
		"message_id":  "missing",
		"folder_name": "SPAM",
		"allow_retry": true,
	}))
	id := res.Retry.ContinuationInputs[retry.IDKey]

	// Still wrong after re-entry: no second retry offer.
	res = resultFailure(t, h.call(t, op, "handle-reenter-move-message", map[string]interface{}{
		retry.IDKey:  id,
		"message_id": "still-missing",
	}))
	if res.ErrorKind != catalog.LogicError || res.Retry != nil {
		t.Errorf("replay = %+v, want LOGIC_ERROR without retry", res)
	}
	if res.ErrorMessage != "Retry failed: No message found with ID 'still-missing'." {
		t.Errorf("ErrorMessage = %q", res.ErrorMessage)
	}

	// A failed replay leaves the continuation usable.
	values := resultJSON(t, h.call(t, op, "handle-reenter-move-message", map[string]interface{}{
		retry.IDKey:  id,
		"message_id": "18c2a",
	}))
	if values["Response"] != "success" {
		t.Errorf("values = %v", values)
	}
}

func TestContinuationLookupFailures(t *testing.T) {
	h := newHarness(t, newMock())

	res := resultFailure(t, h.call(t, SendMail(h.mock), "send-mail", map[string]interface{}{
		"to": "bad", "allow_retry": true,
	}))
	sendID := res.Retry.ContinuationInputs[retry.IDKey]

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		kind catalog.ErrorKind
		msg  string
	}{
		{
			name: "unknown id",
			tool: "confirm-reenter-move-message",
			args: map[string]interface{}{retry.IDKey: "nope", "decision": true},
			kind: catalog.LogicError,
			msg:  "has expired or does not exist",
		},
		{
			name: "other operation",
			tool: "confirm-reenter-move-message",
			args: map[string]interface{}{retry.IDKey: sendID, "decision": true},
			kind: catalog.LogicError,
			msg:  "belongs to send-mail",
		},
		{
			name: "missing decision",
			tool: "confirm-reenter-move-message",
			args: map[string]interface{}{retry.IDKey: sendID},
			kind: catalog.InputError,
			msg:  "decision is required",
		},
		{
			name: "missing id",
			tool: "handle-reenter-move-message",
			args: map[string]interface{}{},
			kind: catalog.InputError,
			msg:  "continuation_id is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resultFailure(t, h.call(t, MoveMessage(h.mock), tt.tool, tt.args))
			if res.ErrorKind != tt.kind || !strings.Contains(res.ErrorMessage, tt.msg) {
				t.Errorf("result = %+v, want %s containing %q", res, tt.kind, tt.msg)
			}
		})
	}
}

// --- mark-mail ---

func TestMarkMailHandler(t *testing.T) {
	h := newHarness(t, newMock())
	values := resultJSON(t, h.call(t, MarkMail(h.mock), "mark-mail", map[string]interface{}{
		"message_id": "18c2a",
		"mark_as":    "Starred",
	}))
	if values["Response"] != "success" || h.mock.LastMark != mailbox.MarkStarred {
		t.Errorf("values = %v, mark = %q", values, h.mock.LastMark)
	}

	res := resultFailure(t, h.call(t, MarkMail(h.mock), "mark-mail", map[string]interface{}{
		"message_id": "18c2a",
		"mark_as":    "flagged",
	}))
	if res.ErrorKind != catalog.InputError || !strings.Contains(res.ErrorMessage, "mark_as must be one of") {
		t.Errorf("result = %+v", res)
	}
}

// --- search-mails ---

func TestSearchMailsReusesValidationSearch(t *testing.T) {
	mock := newMock()
	mock.SearchResult = []mailbox.Email{{ID: "1", Subject: "Invoice"}, {ID: "2", Subject: "Invoice 2"}}
	h := newHarness(t, mock)

	values := resultJSON(t, h.call(t, SearchMails(mock, SearchOptions{EmptyIsInvalid: true}), "search-mails", map[string]interface{}{
		"query":     "subject:invoice",
		"page_size": float64(5),
	}))
	mails, _ := values["Mails"].([]interface{})
	if len(mails) != 2 {
		t.Errorf("Mails = %v", values["Mails"])
	}
	if mock.SearchCalls != 1 {
		t.Errorf("SearchCalls = %d, want 1", mock.SearchCalls)
	}
	if mock.LastPage != (mailbox.Page{Number: 1, Size: 5}) {
		t.Errorf("page = %+v", mock.LastPage)
	}
}

func TestSearchMailsNoMatches(t *testing.T) {
	h := newHarness(t, newMock())
	res := resultFailure(t, h.call(t, SearchMails(h.mock, SearchOptions{EmptyIsInvalid: true}), "search-mails", map[string]interface{}{
		"query": "from:nobody",
	}))
	if res.ErrorKind != catalog.InputError || res.ErrorMessage != "No messages found for query 'from:nobody'." {
		t.Errorf("result = %+v", res)
	}

	h = newHarness(t, newMock(), SearchOptions{})
	values := resultJSON(t, h.call(t, SearchMails(h.mock, SearchOptions{}), "search-mails", map[string]interface{}{
		"query": "from:nobody",
	}))
	if mails, _ := values["Mails"].([]interface{}); len(mails) != 0 {
		t.Errorf("Mails = %v, want empty", values["Mails"])
	}
}

// --- fetch operations ---

func TestFetchMailsByLabelPaging(t *testing.T) {
	tests := []struct {
		name     string
		number   float64
		size     float64
		wantErr  bool
		errMatch string
	}{
		{name: "page out of range", number: 20, size: 10, wantErr: true, errMatch: "page number"},
		{name: "size out of range", number: 1, size: 0, wantErr: true, errMatch: "page size"},
		{name: "largest page", number: 1, size: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock()
			mock.ListResult = make([]mailbox.Email, 15)
			h := newHarness(t, mock)
			result := h.call(t, FetchMailsByLabel(mock), "fetch-mails-by-label", map[string]interface{}{
				"label":       "Work",
				"page_number": tt.number,
				"page_size":   tt.size,
			})
			if tt.wantErr {
				res := resultFailure(t, result)
				if res.ErrorKind != catalog.InputError || !strings.Contains(res.ErrorMessage, tt.errMatch) {
					t.Errorf("result = %+v", res)
				}
				if mock.LastMethod == "ListByLabel" {
					t.Error("invalid paging reached the mailbox")
				}
				return
			}
			values := resultJSON(t, result)
			if mails, _ := values["Mails"].([]interface{}); len(mails) > 15 {
				t.Errorf("got %d mails", len(mails))
			}
			if mock.LastPage != (mailbox.Page{Number: 1, Size: 15}) {
				t.Errorf("page = %+v", mock.LastPage)
			}
		})
	}
}

func TestFetchMailsNonNumericPageOffersRetry(t *testing.T) {
	mock := newMock()
	h := newHarness(t, mock)
	op := FetchMailsByLabel(mock)

	res := resultFailure(t, h.call(t, op, "fetch-mails-by-label", map[string]interface{}{
		"label":       "Work",
		"page_number": "abc",
		"allow_retry": true,
	}))
	if res.ErrorKind != catalog.InputError || res.Retry == nil {
		t.Fatalf("result = %+v, want INPUT_ERROR with retry", res)
	}
	if len(res.Retry.Outcomes) != 1 || res.Retry.Outcomes[0].Field != validation.PageNumber {
		t.Errorf("outcomes = %+v, want PageNumber", res.Retry.Outcomes)
	}

	values := resultJSON(t, h.call(t, op, "confirm-reenter-fetch-mails-by-label", map[string]interface{}{
		retry.IDKey:   res.Retry.ContinuationInputs[retry.IDKey],
		"decision":    true,
		"page_number": 2,
	}))
	if _, ok := values["Mails"]; !ok {
		t.Errorf("values = %v", values)
	}
	if mock.LastPage.Number != 2 {
		t.Errorf("page = %+v", mock.LastPage)
	}

	// Without allow_retry the same value is a plain validation error.
	res = resultFailure(t, h.call(t, op, "fetch-mails-by-label", map[string]interface{}{
		"label":       "Work",
		"page_number": "abc",
	}))
	if res.ErrorKind != catalog.InputError || res.Retry != nil || !strings.Contains(res.ErrorMessage, "page number") {
		t.Errorf("result = %+v", res)
	}
}

func TestFetchMailsByFolderUnknown(t *testing.T) {
	h := newHarness(t, newMock())
	res := resultFailure(t, h.call(t, FetchMailsByFolder(h.mock), "fetch-mails-by-folder", map[string]interface{}{
		"folder_name": "Work",
	}))
	if res.ErrorKind != catalog.InputError || res.ErrorMessage != "Invalid folder 'Work'." {
		t.Errorf("result = %+v", res)
	}
}

func TestFetchMailByIDHandler(t *testing.T) {
	h := newHarness(t, newMock())
	values := resultJSON(t, h.call(t, FetchMailByID(h.mock), "fetch-mail-by-id", map[string]interface{}{
		"message_id": "18c2a",
	}))
	details, _ := values["MailDetails"].(map[string]interface{})
	if details["subject"] != "Quarterly numbers" || details["body"] != "See attached." {
		t.Errorf("MailDetails = %v", details)
	}

	res := resultFailure(t, h.call(t, FetchMailByID(h.mock), "fetch-mail-by-id", map[string]interface{}{}))
	if res.ErrorKind != catalog.InputError || res.ErrorMessage != "Message ID is required." {
		t.Errorf("result = %+v", res)
	}
}

// --- reply and forward ---

func TestReplyToMailHandler(t *testing.T) {
	h := newHarness(t, newMock())
	resultJSON(t, h.call(t, ReplyToMail(h.mock), "reply-to-mail", map[string]interface{}{
		"message_id": "18c2a",
		"message":    "Thanks!",
		"reply_all":  true,
	}))

	sent := h.mock.LastSent
	if sent.To[0] != "Alice <alice@example.com>" || sent.Subject != "Re: Quarterly numbers" {
		t.Errorf("sent = %+v", sent)
	}
	if len(sent.CC) != 1 || sent.CC[0] != "dave@example.com" {
		t.Errorf("CC = %v, want dave only", sent.CC)
	}
	if sent.InReplyTo != "<abc@mail.example.com>" || sent.ThreadID != "t-1" {
		t.Errorf("threading = %q %q", sent.InReplyTo, sent.ThreadID)
	}
}

func TestForwardMailHandler(t *testing.T) {
	mock := newMock()
	mock.Raw = map[string][]byte{"18c2a": []byte("From: Alice <alice@example.com>\r\n" +
		"To: me@example.com\r\n" +
		"Subject: Quarterly numbers\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Numbers inside.\r\n")}
	h := newHarness(t, mock)

	resultJSON(t, h.call(t, ForwardMail(mock), "forward-mail", map[string]interface{}{
		"message_id": "18c2a",
		"to":         "erin@example.com",
		"message":    "FYI",
	}))
	sent := mock.LastSent
	if sent.Subject != "Fwd: Quarterly numbers" || sent.To[0] != "erin@example.com" {
		t.Errorf("sent = %+v", sent)
	}
	if !strings.HasPrefix(sent.Body, "FYI") || !strings.Contains(sent.Body, "Numbers inside.") {
		t.Errorf("body = %q", sent.Body)
	}
}
