// Package agentloop implements a tool-calling agent session: it drives the
// conversation loop between a language model and a set of registered tools
// inside a bound workspace.
//
// A Session owns the conversation transcript. Submit appends the user's
// message, then alternates between model requests and tool execution until
// the model answers in plain text or the turn budget runs out. Tool calls
// within a single model response execute sequentially, in the order the
// model requested them, and their results are returned in a single
// tool-results turn.
//
// Tools are registered on a ToolRegistry and run against an
// ExecutionEnvironment, which resolves relative paths through a Workspace
// bound at construction time.
package agentloop
