package agentloop

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wangdinglu/prompts-to-agents/modelclient"
)

// ErrUnknownTool is returned by Dispatch when the model requests a tool name
// that was never registered. The agent loop converts it into a tool result
// payload; one bad tool call must not kill the conversation.
var ErrUnknownTool = errors.New("unknown tool")

// ToolExecutor is the function signature for tool execution. It receives the
// raw arguments and the execution environment the session is bound to.
// Argument schemas are descriptive for the model, not enforced before
// invocation, so executors validate their own inputs.
type ToolExecutor func(arguments json.RawMessage, env ExecutionEnvironment) (string, error)

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition modelclient.ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and dispatch.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	order []string
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = &tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Dispatch resolves a tool by name and executes it against the given
// environment. An unregistered name yields ErrUnknownTool; the caller
// decides how to surface it.
func (r *ToolRegistry) Dispatch(name string, arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Executor(arguments, env)
}

// Definitions returns all tool definitions in registration order, for
// sending to the model.
func (r *ToolRegistry) Definitions() []modelclient.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]modelclient.ToolDefinition, 0, len(r.tools))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ParseToolArguments unmarshals tool call arguments into a map for
// validation and access.
func ParseToolArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
