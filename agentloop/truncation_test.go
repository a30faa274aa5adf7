package agentloop

import (
	"strings"
	"testing"
)

func TestTruncateOutputUnderLimit(t *testing.T) {
	out := TruncateOutput("short", 100, TruncateHeadTail)
	if out != "short" {
		t.Errorf("output = %q, under-limit text must pass through unchanged", out)
	}
}

func TestTruncateOutputHeadTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	out := TruncateOutput(input, 200, TruncateHeadTail)

	if !strings.HasPrefix(out, strings.Repeat("a", 100)) {
		t.Error("head of the output should be kept")
	}
	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail of the output should be kept")
	}
	if !strings.Contains(out, "truncated") {
		t.Error("truncation warning missing")
	}
}

func TestTruncateOutputTail(t *testing.T) {
	input := strings.Repeat("a", 500) + strings.Repeat("z", 100)
	out := TruncateOutput(input, 100, TruncateTail)

	if !strings.HasSuffix(out, strings.Repeat("z", 100)) {
		t.Error("tail mode should keep the end of the output")
	}
	if strings.Contains(out, "aaa") {
		t.Error("tail mode should drop the start of the output")
	}
}

func TestTruncateLines(t *testing.T) {
	input := strings.TrimSuffix(strings.Repeat("line\n", 10), "\n")
	out := TruncateLines(input, 3)

	lines := strings.Split(out, "\n")
	// Warning line plus the last three lines.
	if len(lines) != 4 {
		t.Errorf("lines = %d, want 4", len(lines))
	}
	if !strings.Contains(lines[0], "removed") {
		t.Errorf("first line %q should be a removal warning", lines[0])
	}

	if got := TruncateLines("a\nb", 5); got != "a\nb" {
		t.Errorf("under-limit input changed: %q", got)
	}
}

func TestTruncateToolOutputUsesOverrides(t *testing.T) {
	input := strings.Repeat("x", 1000)
	out := TruncateToolOutput(input, "read_file", map[string]int{"read_file": 100}, nil)
	if !strings.Contains(out, "truncated") {
		t.Error("override limit was not applied")
	}

	// Without an override the default 50000 limit leaves this untouched.
	if got := TruncateToolOutput(input, "read_file", nil, nil); got != input {
		t.Errorf("default limit should not truncate 1000 chars")
	}
}

func TestTruncateToolOutputUnknownToolPassesThrough(t *testing.T) {
	input := strings.Repeat("x", 100000)
	if got := TruncateToolOutput(input, "custom_tool", nil, nil); got != input {
		t.Error("tools without configured limits should pass through")
	}
}
