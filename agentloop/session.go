package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wangdinglu/prompts-to-agents/modelclient"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateRequesting SessionState = "requesting"
	StateExecuting  SessionState = "executing"
	StateClosed     SessionState = "closed"
)

// Outcome is the terminal state of one Submit call.
type Outcome string

const (
	// OutcomeAnswered means the model produced a final text answer.
	OutcomeAnswered Outcome = "answered"
	// OutcomeBudgetExhausted means the turn budget ran out before a final
	// answer. A policy decision, not an error: the caller can distinguish
	// it from a genuine answer via Result.Outcome.
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
)

// BudgetExhaustedMessage is the fixed text returned when the turn budget is
// exhausted without a final answer.
const BudgetExhaustedMessage = "I was unable to finish within the allowed number of turns. " +
	"You can continue the conversation or reset the session."

// Result is the outcome of one Submit call.
type Result struct {
	Text          string            `json:"text"`
	Outcome       Outcome           `json:"outcome"`
	ModelRequests int               `json:"model_requests"`
	ToolRounds    int               `json:"tool_rounds"`
	Usage         modelclient.Usage `json:"usage"`
}

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxTurns                int            `json:"max_turns"` // tool rounds allowed per conversation
	DefaultCommandTimeoutMs int            `json:"default_command_timeout_ms"`
	MaxCommandTimeoutMs     int            `json:"max_command_timeout_ms"`
	Model                   string         `json:"model,omitempty"`
	Provider                string         `json:"provider,omitempty"`
	SystemPrompt            string         `json:"system_prompt,omitempty"` // overrides the built-in base prompt
	UserInstructions        string         `json:"user_instructions,omitempty"`
	ToolOutputLimits        map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits          map[string]int `json:"tool_line_limits,omitempty"`
	EnableLoopDetection     bool           `json:"enable_loop_detection"`
	LoopDetectionWindow     int            `json:"loop_detection_window"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:                10,
		DefaultCommandTimeoutMs: 10000,  // 10 seconds
		MaxCommandTimeoutMs:     600000, // 10 minutes
		EnableLoopDetection:     true,
		LoopDetectionWindow:     6,
	}
}

// Session is the agent loop: it owns the transcript and the turn budget for
// the lifetime of one conversation, sends the transcript to the model client,
// dispatches requested tool calls through the registry, and repeats until
// the model answers or the budget runs out.
type Session struct {
	id       string
	registry *ToolRegistry
	env      ExecutionEnvironment
	client   *modelclient.Client
	history  []Turn
	used     int // tool rounds consumed since the last reset
	emitter  *EventEmitter
	config   SessionConfig
	state    SessionState
	mu       sync.Mutex
}

// NewSession creates a session bound to a tool registry and an execution
// environment. A nil config uses defaults; a nil client uses the module
// default model client.
func NewSession(registry *ToolRegistry, env ExecutionEnvironment, client *modelclient.Client, config *SessionConfig) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultSessionConfig().MaxTurns
	}
	if client == nil {
		client = modelclient.GetDefaultClient()
	}

	sessionID := uuid.New().String()
	return &Session{
		id:       sessionID,
		registry: registry,
		env:      env,
		client:   client,
		history:  make([]Turn, 0),
		emitter:  NewEventEmitter(sessionID, 256),
		config:   cfg,
		state:    StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation transcript.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// TurnsUsed returns the number of tool rounds consumed since the last reset.
func (s *Session) TurnsUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Reset clears the transcript and the turn budget back to their initial
// values. The workspace binding is untouched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = s.history[:0]
	s.used = 0
}

// Close terminates the session.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]interface{}{
		"state": string(StateClosed),
	})
	s.emitter.Close()
}

// Submit processes one user input through the agent loop and returns the
// final text. On a transport failure the transcript is rolled back to its
// pre-Submit state, so a retried Submit sees the conversation exactly as it
// was before the failed attempt.
func (s *Session) Submit(ctx context.Context, userInput string) (*Result, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil, fmt.Errorf("session is closed")
	}
	snapshot := len(s.history)
	usedSnapshot := s.used
	s.history = append(s.history, NewUserTurn(userInput))
	s.mu.Unlock()

	s.emitter.Emit(EventUserInput, map[string]interface{}{
		"content": userInput,
	})

	result, err := s.runLoop(ctx)
	if err != nil {
		// Discard the failed attempt's partial state.
		s.mu.Lock()
		s.history = s.history[:snapshot]
		s.used = usedSnapshot
		s.state = StateIdle
		s.mu.Unlock()
		s.emitter.Emit(EventError, map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
	s.emitter.Emit(EventTurnEnd, map[string]interface{}{
		"outcome": string(result.Outcome),
	})
	return result, nil
}

// runLoop is the bounded request/execute iteration.
func (s *Session) runLoop(ctx context.Context) (*Result, error) {
	result := &Result{}

	for {
		s.mu.Lock()
		maxTurns := s.config.MaxTurns
		used := s.used
		s.mu.Unlock()

		if used >= maxTurns {
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{
				"used": used,
			})
			result.Text = BudgetExhaustedMessage
			result.Outcome = OutcomeBudgetExhausted
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		response, err := s.requestModel(ctx)
		if err != nil {
			return nil, err
		}
		result.ModelRequests++
		result.Usage = result.Usage.Add(response.Usage)

		toolCalls := response.ToolCalls()
		s.mu.Lock()
		s.history = append(s.history, NewAssistantTurn(response.Text(), toolCalls, response.Usage, response.ID))
		s.mu.Unlock()
		s.emitter.Emit(EventAssistantText, map[string]interface{}{
			"text": response.Text(),
		})

		if len(toolCalls) == 0 {
			result.Text = response.Text()
			result.Outcome = OutcomeAnswered
			return result, nil
		}

		// Execute the batch sequentially, in request order: later calls may
		// depend on filesystem state mutated by earlier ones.
		s.mu.Lock()
		s.state = StateExecuting
		s.mu.Unlock()

		results := s.executeToolCalls(toolCalls)

		s.mu.Lock()
		s.history = append(s.history, NewToolResultsTurn(results))
		s.used++
		s.mu.Unlock()
		result.ToolRounds++

		s.maybeWarnOnLoop()
	}
}

// requestModel sends the transcript, system instruction, and tool schema to
// the model client.
func (s *Session) requestModel(ctx context.Context) (*modelclient.Response, error) {
	s.mu.Lock()
	s.state = StateRequesting
	systemPrompt := s.config.SystemPrompt
	userInstructions := s.config.UserInstructions
	model := s.config.Model
	provider := s.config.Provider
	s.mu.Unlock()

	if systemPrompt == "" {
		systemPrompt = BuildSystemPrompt(s.env, s.registry)
	}
	if userInstructions != "" {
		systemPrompt += "\n\n# User Instructions\n\n" + userInstructions
	}

	messages := ConvertHistoryToMessages(s.History())

	request := modelclient.Request{
		Model:      model,
		Provider:   provider,
		Messages:   append([]modelclient.Message{modelclient.SystemMessage(systemPrompt)}, messages...),
		ToolDefs:   s.registry.Definitions(),
		ToolChoice: &modelclient.ToolChoice{Mode: "auto"},
	}

	response, err := s.client.Complete(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	return response, nil
}

// executeToolCalls dispatches one batch of calls in request order. Every
// call yields exactly one result, matched by call ID; failures become the
// result payload, never a dropped entry.
func (s *Session) executeToolCalls(toolCalls []modelclient.ToolCall) []modelclient.ToolResult {
	results := make([]modelclient.ToolResult, len(toolCalls))
	for i, tc := range toolCalls {
		results[i] = s.executeSingleTool(tc)
	}
	return results
}

// executeSingleTool handles the full tool execution pipeline:
// dispatch -> truncate -> emit -> return.
func (s *Session) executeSingleTool(toolCall modelclient.ToolCall) modelclient.ToolResult {
	s.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"tool_name": toolCall.Name,
		"call_id":   toolCall.ID,
	})

	rawOutput, err := s.registry.Dispatch(toolCall.Name, toolCall.Arguments, s.env)
	if err != nil {
		var errorMsg string
		if errors.Is(err, ErrUnknownTool) {
			errorMsg = fmt.Sprintf("Unknown tool: %s", toolCall.Name)
		} else {
			errorMsg = fmt.Sprintf("Tool error (%s): %v", toolCall.Name, err)
		}
		s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
			"call_id": toolCall.ID,
			"error":   errorMsg,
		})
		return modelclient.ToolResult{
			ToolCallID: toolCall.ID,
			Content:    errorMsg,
			IsError:    true,
		}
	}

	s.mu.Lock()
	charLimits := s.config.ToolOutputLimits
	lineLimits := s.config.ToolLineLimits
	s.mu.Unlock()
	truncatedOutput := TruncateToolOutput(rawOutput, toolCall.Name, charLimits, lineLimits)

	// The event stream carries the full untruncated output.
	s.emitter.Emit(EventToolCallEnd, map[string]interface{}{
		"call_id": toolCall.ID,
		"output":  rawOutput,
	})

	return modelclient.ToolResult{
		ToolCallID: toolCall.ID,
		Content:    truncatedOutput,
		IsError:    false,
	}
}

// maybeWarnOnLoop injects a steering turn when the recent tool calls follow
// a repeating pattern.
func (s *Session) maybeWarnOnLoop() {
	s.mu.Lock()
	enabled := s.config.EnableLoopDetection
	window := s.config.LoopDetectionWindow
	historyCopy := make([]Turn, len(s.history))
	copy(historyCopy, s.history)
	s.mu.Unlock()

	if !enabled {
		return
	}
	if DetectLoop(historyCopy, window) {
		warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", window)
		s.mu.Lock()
		s.history = append(s.history, NewSteeringTurn(warning))
		s.mu.Unlock()
		s.emitter.Emit(EventLoopDetection, map[string]interface{}{
			"message": warning,
		})
	}
}
