package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const maxInstructionBytes = 32 * 1024 // 32KB

// BuildSystemPrompt constructs the full system instruction: base prompt,
// environment context, and tool descriptions.
func BuildSystemPrompt(env ExecutionEnvironment, reg *ToolRegistry) string {
	var sb strings.Builder

	sb.WriteString(baseSystemPrompt)
	sb.WriteString("\n\n")

	sb.WriteString(BuildEnvironmentContext(env))
	sb.WriteString("\n\n")

	sb.WriteString("# Available Tools\n\n")
	for _, def := range reg.Definitions() {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", def.Name, def.Description)
	}

	return sb.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ExecutionEnvironment) string {
	workingDir := env.WorkingDirectory()

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	if branch := gitBranch(workingDir); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// LoadInstructions reads a user instruction file, capped at 32KB. A missing
// path returns an empty string rather than an error so sessions can start
// without one.
func LoadInstructions(path string) string {
	if path == "" {
		return ""
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := string(content)
	if len(text) > maxInstructionBytes {
		text = text[:maxInstructionBytes] + "\n[Instructions truncated at 32KB]"
	}
	return text
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

const baseSystemPrompt = `You are a coding agent working inside a user's workspace. You help with software tasks by reading files, editing code, running commands, and iterating until the task is done.

# Core Principles

- Read files before editing them. Understand existing code before suggesting modifications.
- Prefer editing existing files over creating new ones.
- Use the edit_file tool for modifications. The old_string parameter must be an exact match of text in the file and must be unique. If old_string appears multiple times, provide more surrounding context to make it unique.
- Keep changes minimal and focused. Only make changes that are directly requested or clearly necessary.
- After making changes, verify them by reading the modified file or running relevant tests.
- When running shell commands, prefer short-running commands. Use timeouts for potentially long-running operations.
- All relative paths are resolved against the workspace root.

# Error Handling

- If a tool call fails, analyze the error and try a different approach.
- If edit_file fails because old_string is not found, re-read the file to get the current content.
- If a command fails, inspect the output and fix the issue.

# Best Practices

- Write clean, idiomatic code that follows the project's existing style.
- Do not introduce security vulnerabilities.
- Do not add unnecessary dependencies.`
