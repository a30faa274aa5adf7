package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/wangdinglu/prompts-to-agents/modelclient"
)

// scriptedAdapter returns a fixed sequence of responses (or errors), one per
// Complete call. It records every request it receives.
type scriptedAdapter struct {
	responses []*modelclient.Response
	errs      []error
	calls     int
	requests  []modelclient.Request
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Complete(ctx context.Context, req modelclient.Request) (*modelclient.Response, error) {
	i := a.calls
	a.calls++
	a.requests = append(a.requests, req)
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i >= len(a.responses) {
		return nil, fmt.Errorf("scripted adapter exhausted after %d calls", len(a.responses))
	}
	return a.responses[i], nil
}

func textResponse(text string) *modelclient.Response {
	return &modelclient.Response{
		ID:           fmt.Sprintf("resp_%d", len(text)),
		Message:      modelclient.AssistantMessage(text),
		FinishReason: modelclient.FinishReason{Reason: "stop"},
		Usage:        modelclient.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse(calls ...modelclient.ToolCall) *modelclient.Response {
	msg := modelclient.Message{Role: modelclient.RoleAssistant}
	for _, tc := range calls {
		msg.Content = append(msg.Content, modelclient.ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	return &modelclient.Response{
		ID:           "resp_tools",
		Message:      msg,
		FinishReason: modelclient.FinishReason{Reason: "tool_calls"},
		Usage:        modelclient.Usage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30},
	}
}

func newTestSession(t *testing.T, adapter modelclient.ProviderAdapter, config *SessionConfig) *Session {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	env := NewLocalExecutionEnvironment(ws)
	registry := NewToolRegistry()
	RegisterCoreTools(registry, 5000, 60000)
	client := modelclient.NewClient(modelclient.WithProvider("scripted", adapter))
	return NewSession(registry, env, client, config)
}

func TestSubmitImmediateAnswer(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		textResponse("hello there"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	result, err := s.Submit(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != OutcomeAnswered {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeAnswered)
	}
	if result.Text != "hello there" {
		t.Errorf("text = %q, want %q", result.Text, "hello there")
	}
	if result.ModelRequests != 1 {
		t.Errorf("model requests = %d, want 1", result.ModelRequests)
	}
	if result.ToolRounds != 0 {
		t.Errorf("tool rounds = %d, want 0", result.ToolRounds)
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Kind != TurnUser || history[1].Kind != TurnAssistant {
		t.Errorf("history kinds = %v, %v", history[0].Kind, history[1].Kind)
	}
	if s.TurnsUsed() != 0 {
		t.Errorf("turns used = %d, want 0", s.TurnsUsed())
	}
}

func TestSubmitToolCallRoundTrip(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_001",
			Name:      "write_file",
			Arguments: json.RawMessage(`{"path":"note.txt","content":"remember this"}`),
		}),
		textResponse("done"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	result, err := s.Submit(context.Background(), "write a note")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != OutcomeAnswered {
		t.Errorf("outcome = %q, want answered", result.Outcome)
	}
	if result.ToolRounds != 1 {
		t.Errorf("tool rounds = %d, want 1", result.ToolRounds)
	}
	if result.ModelRequests != 2 {
		t.Errorf("model requests = %d, want 2", result.ModelRequests)
	}

	// user, assistant(tool call), tool_results, assistant(answer)
	history := s.History()
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	tr := history[2]
	if tr.Kind != TurnToolResults || len(tr.ToolResults.Results) != 1 {
		t.Fatalf("turn 2 = %+v, want one tool result", tr)
	}
	if tr.ToolResults.Results[0].ToolCallID != "call_001" {
		t.Errorf("tool result call ID = %q, want call_001", tr.ToolResults.Results[0].ToolCallID)
	}
	if tr.ToolResults.Results[0].IsError {
		t.Errorf("tool result is an error: %s", tr.ToolResults.Results[0].Content)
	}

	// The second request must carry the tool result back to the model.
	second := adapter.requests[1]
	found := false
	for _, msg := range second.Messages {
		if msg.Role == modelclient.RoleTool && msg.ToolCallID == "call_001" {
			found = true
		}
	}
	if !found {
		t.Error("second request does not include the tool result message")
	}

	usage := result.Usage
	if usage.TotalTokens != 45 {
		t.Errorf("accumulated total tokens = %d, want 45", usage.TotalTokens)
	}
}

func TestSubmitSequentialBatchOrder(t *testing.T) {
	// One batch writes a file and then reads it back; the read only succeeds
	// if the calls run in request order against shared filesystem state.
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(
			modelclient.ToolCall{
				ID:        "call_w",
				Name:      "write_file",
				Arguments: json.RawMessage(`{"path":"chain.txt","content":"first wins"}`),
			},
			modelclient.ToolCall{
				ID:        "call_r",
				Name:      "read_file",
				Arguments: json.RawMessage(`{"path":"chain.txt"}`),
			},
		),
		textResponse("ok"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "write then read"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	history := s.History()
	tr := history[2]
	if tr.Kind != TurnToolResults || len(tr.ToolResults.Results) != 2 {
		t.Fatalf("expected two tool results, got %+v", tr)
	}
	if tr.ToolResults.Results[0].ToolCallID != "call_w" || tr.ToolResults.Results[1].ToolCallID != "call_r" {
		t.Errorf("results out of order: %q, %q",
			tr.ToolResults.Results[0].ToolCallID, tr.ToolResults.Results[1].ToolCallID)
	}
	readResult := tr.ToolResults.Results[1]
	if readResult.IsError {
		t.Fatalf("read failed, write did not land first: %s", readResult.Content)
	}
	if !strings.Contains(readResult.Content, "first wins") {
		t.Errorf("read content = %q, want the written text", readResult.Content)
	}
}

func TestSubmitBudgetExhausted(t *testing.T) {
	// A model that always asks for another tool call against a budget of one
	// round: exactly one assistant turn and one tool-results turn, then the
	// fixed exhaustion message.
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_1",
			Name:      "list_directory",
			Arguments: json.RawMessage(`{}`),
		}),
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_2",
			Name:      "list_directory",
			Arguments: json.RawMessage(`{}`),
		}),
	}}
	config := DefaultSessionConfig()
	config.MaxTurns = 1
	s := newTestSession(t, adapter, &config)
	defer s.Close()

	result, err := s.Submit(context.Background(), "keep going forever")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Outcome != OutcomeBudgetExhausted {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeBudgetExhausted)
	}
	if result.Text != BudgetExhaustedMessage {
		t.Errorf("text = %q, want the fixed exhaustion message", result.Text)
	}
	if adapter.calls != 1 {
		t.Errorf("model calls = %d, want 1", adapter.calls)
	}

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3 (user, assistant, tool_results)", len(history))
	}
	if history[1].Kind != TurnAssistant || history[2].Kind != TurnToolResults {
		t.Errorf("history kinds = %v, %v", history[1].Kind, history[2].Kind)
	}
	if s.TurnsUsed() != 1 {
		t.Errorf("turns used = %d, want 1", s.TurnsUsed())
	}
}

func TestSubmitTransportErrorRollsBack(t *testing.T) {
	adapter := &scriptedAdapter{
		errs: []error{
			&modelclient.NetworkError{ClientError: modelclient.ClientError{Message: "connection refused"}},
		},
		responses: []*modelclient.Response{
			nil, // consumed by the failed call
			textResponse("second time lucky"),
		},
	}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "first attempt"); err == nil {
		t.Fatal("Submit should fail on transport error")
	}
	if len(s.History()) != 0 {
		t.Fatalf("history length = %d after failed Submit, want 0", len(s.History()))
	}
	if s.TurnsUsed() != 0 {
		t.Errorf("turns used = %d after failed Submit, want 0", s.TurnsUsed())
	}
	if s.State() != StateIdle {
		t.Errorf("state = %q after failed Submit, want idle", s.State())
	}

	// A retried Submit sees the conversation as it was before the failure.
	result, err := s.Submit(context.Background(), "second attempt")
	if err != nil {
		t.Fatalf("retried Submit: %v", err)
	}
	if result.Text != "second time lucky" {
		t.Errorf("text = %q", result.Text)
	}
	if len(s.History()) != 2 {
		t.Errorf("history length = %d after retry, want 2", len(s.History()))
	}
}

func TestSubmitUnknownToolRecovery(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_x",
			Name:      "teleport",
			Arguments: json.RawMessage(`{"destination":"mars"}`),
		}),
		textResponse("that tool does not exist"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	result, err := s.Submit(context.Background(), "use a made-up tool")
	if err != nil {
		t.Fatalf("Submit should survive an unknown tool, got: %v", err)
	}
	if result.Outcome != OutcomeAnswered {
		t.Errorf("outcome = %q, want answered", result.Outcome)
	}

	tr := s.History()[2]
	if tr.Kind != TurnToolResults || len(tr.ToolResults.Results) != 1 {
		t.Fatalf("expected one tool result, got %+v", tr)
	}
	r := tr.ToolResults.Results[0]
	if !r.IsError {
		t.Error("unknown tool result should be an error")
	}
	if r.Content != "Unknown tool: teleport" {
		t.Errorf("content = %q, want %q", r.Content, "Unknown tool: teleport")
	}
	if r.ToolCallID != "call_x" {
		t.Errorf("call ID = %q, want call_x", r.ToolCallID)
	}
}

func TestSubmitToolErrorBecomesResult(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_bad",
			Name:      "read_file",
			Arguments: json.RawMessage(`{"path":"does-not-exist.txt"}`),
		}),
		textResponse("file missing"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "read missing file"); err != nil {
		t.Fatalf("Submit should survive a tool failure, got: %v", err)
	}
	r := s.History()[2].ToolResults.Results[0]
	if !r.IsError {
		t.Error("failed read should produce an error result")
	}
	if !strings.Contains(r.Content, "read_file") {
		t.Errorf("error content %q should name the tool", r.Content)
	}
}

func TestReset(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_1",
			Name:      "list_directory",
			Arguments: json.RawMessage(`{}`),
		}),
		textResponse("done"),
		textResponse("fresh start"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "do something"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(s.History()) == 0 || s.TurnsUsed() == 0 {
		t.Fatal("precondition: session should have state before reset")
	}

	s.Reset()
	if len(s.History()) != 0 {
		t.Errorf("history length = %d after reset, want 0", len(s.History()))
	}
	if s.TurnsUsed() != 0 {
		t.Errorf("turns used = %d after reset, want 0", s.TurnsUsed())
	}

	// Reset on an already-empty session is a no-op, not an error.
	s.Reset()
	if len(s.History()) != 0 {
		t.Error("double reset should leave history empty")
	}

	// The next Submit starts a fresh conversation with the full budget.
	result, err := s.Submit(context.Background(), "new conversation")
	if err != nil {
		t.Fatalf("Submit after reset: %v", err)
	}
	if result.Text != "fresh start" {
		t.Errorf("text = %q", result.Text)
	}
	if len(s.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(s.History()))
	}
}

func TestSubmitAfterClose(t *testing.T) {
	adapter := &scriptedAdapter{}
	s := newTestSession(t, adapter, nil)
	s.Close()

	if _, err := s.Submit(context.Background(), "hello"); err == nil {
		t.Error("Submit on a closed session should fail")
	}
	if adapter.calls != 0 {
		t.Errorf("closed session made %d model calls", adapter.calls)
	}
}

func TestSubmitSystemPromptIncludesTools(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		textResponse("hi"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := adapter.requests[0]
	if len(req.Messages) == 0 || req.Messages[0].Role != modelclient.RoleSystem {
		t.Fatal("first message should be the system instruction")
	}
	sys := req.Messages[0].TextContent()
	for _, tool := range []string{"read_file", "write_file", "edit_file", "shell"} {
		if !strings.Contains(sys, tool) {
			t.Errorf("system prompt missing tool %q", tool)
		}
	}
	if len(req.ToolDefs) != 7 {
		t.Errorf("tool definitions = %d, want 7", len(req.ToolDefs))
	}
}

func TestSubmitUserInstructionsAppended(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		textResponse("ok"),
	}}
	config := DefaultSessionConfig()
	config.UserInstructions = "Always answer in French."
	s := newTestSession(t, adapter, &config)
	defer s.Close()

	if _, err := s.Submit(context.Background(), "bonjour"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sys := adapter.requests[0].Messages[0].TextContent()
	if !strings.Contains(sys, "Always answer in French.") {
		t.Error("system prompt missing user instructions")
	}
}

func TestSubmitCancelledContext(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		textResponse("never reached"),
	}}
	s := newTestSession(t, adapter, nil)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Submit(ctx, "hello"); err == nil {
		t.Error("Submit with cancelled context should fail")
	}
	if len(s.History()) != 0 {
		t.Errorf("history length = %d after cancelled Submit, want 0", len(s.History()))
	}
}

func TestEventsEmitted(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*modelclient.Response{
		toolCallResponse(modelclient.ToolCall{
			ID:        "call_1",
			Name:      "list_directory",
			Arguments: json.RawMessage(`{}`),
		}),
		textResponse("done"),
	}}
	s := newTestSession(t, adapter, nil)

	if _, err := s.Submit(context.Background(), "list files"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	s.Close()

	seen := map[EventKind]bool{}
	for event := range s.Events() {
		seen[event.Kind] = true
		if event.SessionID != s.ID() {
			t.Errorf("event session ID = %q, want %q", event.SessionID, s.ID())
		}
	}
	for _, kind := range []EventKind{EventUserInput, EventAssistantText, EventToolCallStart, EventToolCallEnd, EventTurnEnd, EventSessionEnd} {
		if !seen[kind] {
			t.Errorf("missing event kind %q", kind)
		}
	}
}
