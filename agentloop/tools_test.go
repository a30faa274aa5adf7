package agentloop

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wangdinglu/prompts-to-agents/modelclient"
)

func stubTool(name string, output string) RegisteredTool {
	return RegisteredTool{
		Definition: modelclient.ToolDefinition{
			Name:        name,
			Description: "stub tool",
			Parameters:  map[string]interface{}{"type": "object"},
		},
		Executor: func(arguments json.RawMessage, env ExecutionEnvironment) (string, error) {
			return output, nil
		},
	}
}

func TestRegistryDispatch(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubTool("echo", "hello"))

	out, err := reg.Dispatch("echo", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %q, want hello", out)
	}
}

func TestRegistryDispatchUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubTool("echo", "hello"))

	_, err := reg.Dispatch("missing", json.RawMessage(`{}`), nil)
	if err == nil {
		t.Fatal("Dispatch of unregistered tool should fail")
	}
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("error %v should wrap ErrUnknownTool", err)
	}
}

func TestRegistryDefinitionsOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubTool("c", ""))
	reg.Register(stubTool("a", ""))
	reg.Register(stubTool("b", ""))

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("definitions = %d, want 3", len(defs))
	}
	want := []string{"c", "a", "b"}
	for i, d := range defs {
		if d.Name != want[i] {
			t.Errorf("definition %d = %q, want %q (registration order)", i, d.Name, want[i])
		}
	}
}

func TestRegistryReplaceKeepsOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubTool("first", "v1"))
	reg.Register(stubTool("second", ""))
	reg.Register(stubTool("first", "v2"))

	if reg.Count() != 2 {
		t.Errorf("count = %d, want 2", reg.Count())
	}
	names := reg.Names()
	if names[0] != "first" || names[1] != "second" {
		t.Errorf("names = %v, replacement should not reorder", names)
	}
	out, err := reg.Dispatch("first", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "v2" {
		t.Errorf("output = %q, want the replacement executor's v2", out)
	}
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(stubTool("a", ""))
	reg.Register(stubTool("b", ""))
	reg.Unregister("a")

	if reg.Count() != 1 {
		t.Errorf("count = %d, want 1", reg.Count())
	}
	if reg.Get("a") != nil {
		t.Error("unregistered tool should not be retrievable")
	}
	if _, err := reg.Dispatch("a", json.RawMessage(`{}`), nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("dispatch after unregister = %v, want ErrUnknownTool", err)
	}

	// Unregistering an unknown name is a no-op.
	reg.Unregister("never-existed")
	if reg.Count() != 1 {
		t.Errorf("count = %d after no-op unregister, want 1", reg.Count())
	}
}

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(json.RawMessage(`{"path":"a.txt","limit":50,"flag":true}`))
	if err != nil {
		t.Fatalf("ParseToolArguments: %v", err)
	}

	if s, ok := GetStringArg(args, "path"); !ok || s != "a.txt" {
		t.Errorf("path = %q, %v", s, ok)
	}
	if n, ok := GetIntArg(args, "limit"); !ok || n != 50 {
		t.Errorf("limit = %d, %v", n, ok)
	}
	if b, ok := GetBoolArg(args, "flag"); !ok || !b {
		t.Errorf("flag = %v, %v", b, ok)
	}

	if _, ok := GetStringArg(args, "absent"); ok {
		t.Error("absent key should report ok=false")
	}
	if _, ok := GetIntArg(args, "path"); ok {
		t.Error("string value should not parse as int")
	}
}

func TestParseToolArgumentsInvalidJSON(t *testing.T) {
	if _, err := ParseToolArguments(json.RawMessage(`{not json`)); err == nil {
		t.Error("invalid JSON should fail to parse")
	}
}
