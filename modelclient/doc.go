// Package modelclient is the boundary between the agent loop and externally
// hosted chat-completion services. It wraps the gollm library
// (github.com/teilomillet/gollm) behind a provider-agnostic request/response
// interface so the agent loop never sees a vendor's wire format.
//
// # Architecture
//
//   - ProviderAdapter: the interface each vendor backend implements.
//   - Client: provider routing plus a middleware chain around Complete.
//   - GollmAdapter: the gollm-backed adapter for OpenAI and Anthropic.
//   - Retry: transport-level retries with exponential backoff. Retries live
//     here, never in the agent loop, which is single-attempt per turn.
//
// # Normalized responses
//
// A Response resolves to exactly one of two outcomes: the model answered
// with text, or it requested tool calls. Callers branch on
// Response.ToolCalls():
//
//	resp, err := client.Complete(ctx, modelclient.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []modelclient.Message{modelclient.UserMessage("Hello")},
//	})
//	if calls := resp.ToolCalls(); len(calls) > 0 {
//	    // dispatch calls, append results, ask again
//	} else {
//	    fmt.Println(resp.Text()) // final answer
//	}
package modelclient
