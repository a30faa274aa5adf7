package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool.
var DefaultToolCharLimits = map[string]int{
	"read_file":      50000,
	"shell":          30000,
	"grep":           20000,
	"glob":           20000,
	"list_directory": 20000,
	"edit_file":      10000,
	"write_file":     1000,
}

// Default truncation modes per tool.
var DefaultTruncationModes = map[string]TruncationMode{
	"read_file":      TruncateHeadTail,
	"shell":          TruncateHeadTail,
	"grep":           TruncateTail,
	"glob":           TruncateTail,
	"list_directory": TruncateTail,
	"edit_file":      TruncateTail,
	"write_file":     TruncateTail,
}

// Default line limits per tool (applied after character truncation).
var DefaultToolLineLimits = map[string]int{
	"shell": 256,
	"grep":  200,
	"glob":  500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n", removed) +
			output[len(output)-maxChars:]
	default: // head_tail
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"The full output is available in the event stream. "+
				"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines limits output to the last maxLines lines.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	removed := len(lines) - maxLines
	return fmt.Sprintf("[WARNING: %d lines were removed from the start of the output.]\n", removed) +
		strings.Join(lines[removed:], "\n")
}

// TruncateToolOutput applies per-tool character and line limits, preferring
// any caller-supplied overrides before the defaults.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars = DefaultToolCharLimits[toolName]
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	if maxChars > 0 {
		output = TruncateOutput(output, maxChars, mode)
	}

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	if maxLines > 0 {
		output = TruncateLines(output, maxLines)
	}
	return output
}
