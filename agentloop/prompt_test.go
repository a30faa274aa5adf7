package agentloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSystemPrompt(t *testing.T) {
	env := newTestEnv(t)
	reg := NewToolRegistry()
	RegisterCoreTools(reg, 5000, 60000)

	prompt := BuildSystemPrompt(env, reg)
	if !strings.Contains(prompt, "coding agent") {
		t.Error("prompt missing base instructions")
	}
	if !strings.Contains(prompt, "<environment>") {
		t.Error("prompt missing environment context")
	}
	if !strings.Contains(prompt, env.WorkingDirectory()) {
		t.Error("prompt missing working directory")
	}
	for _, name := range reg.Names() {
		if !strings.Contains(prompt, "## "+name) {
			t.Errorf("prompt missing tool section for %q", name)
		}
	}
}

func TestBuildEnvironmentContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := BuildEnvironmentContext(env)
	if !strings.Contains(ctx, "Working directory: "+env.WorkingDirectory()) {
		t.Errorf("context = %q, missing working directory", ctx)
	}
	if !strings.Contains(ctx, "Platform: "+env.Platform()) {
		t.Errorf("context = %q, missing platform", ctx)
	}
}

func TestLoadInstructions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENTS.md")
	if err := os.WriteFile(path, []byte("prefer table-driven tests"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if got := LoadInstructions(path); got != "prefer table-driven tests" {
		t.Errorf("instructions = %q", got)
	}
	if got := LoadInstructions(filepath.Join(dir, "missing.md")); got != "" {
		t.Errorf("missing file should yield empty instructions, got %q", got)
	}
	if got := LoadInstructions(""); got != "" {
		t.Errorf("empty path should yield empty instructions, got %q", got)
	}
}

func TestLoadInstructionsTruncatesLargeFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.md")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", maxInstructionBytes+1000)), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := LoadInstructions(path)
	if !strings.Contains(got, "truncated") {
		t.Error("oversized instruction file should carry a truncation marker")
	}
	if len(got) > maxInstructionBytes+100 {
		t.Errorf("instructions length = %d, should be capped", len(got))
	}
}
