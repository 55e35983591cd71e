/*
Package streamgate is a streaming chat-completion gateway whose answers survive
dropped connections.

A client posts a conversation to /v1/chat/completions and receives the answer
as server-sent events. Every chunk is stored before it is written, so when the
connection drops the client can post again with resume set and the stream id it
was given. The gateway replays what was already produced and asks the model to
continue from there, without repeating itself.

Before the first chunk arrives, an unavailable or rate limited model is replaced
by the next configured fallback. After that the stream is committed to the model
that answered.

# Packages

  - provider: the upstream model abstraction, with an OpenAI SDK adapter in
    provider/openai and a raw chat-completions adapter in provider/rawhttp
  - internal/store: partial results, in memory or in Redis
  - internal/fallback: ordered failover across models
  - internal/resume: turns a resume request into a continuation prompt
  - internal/relay: the HTTP endpoints
  - client: a Go client for the gateway

The server lives in cmd/streamgate and a terminal client in cmd/sgchat.
*/
package streamgate
