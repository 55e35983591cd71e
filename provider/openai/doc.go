/*
Package openai implements the provider.Provider interface on top of the
official openai-go SDK. It is the direct adapter: the SDK yields streamed
chunks natively and their text is passed through unchanged.

# Design Decisions

  - Streaming only: every call uses Chat.Completions.NewStreaming
  - No SDK retries: the SDK's own retry loop is disabled so the fallback chain
    is the only retry policy in the gateway
  - Raw errors: *openai.Error values reach the caller untouched, with their
    HTTP status code intact for classification
  - Per-request credentials: CompletionParams.AuthToken overrides the client key
  - Lazy Initialization: the SDK client is created the first time a model is used

# Models

Models binds model names to one shared client; register them with a provider.Registry:

	reg := provider.NewRegistry(openai.Models([]string{"gpt-4o-mini", "gpt-4o"}, option.WithAPIKey(key))...)

# Cancellation

The request context is handed to the SDK, which binds it to the HTTP request.
Cancelling it closes the upstream connection; the adapter then sends a final
provider.Error carrying the context error and closes the channel.
*/
package openai
