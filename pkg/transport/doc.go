// Package transport provides the HTTP middleware chain and server lifecycle
// for the modelrelay gateway.
//
// The transport layer sits outside the gateway's routing: it wraps the
// gateway handler with cross-cutting concerns and manages startup and
// graceful shutdown. Built-in middleware provides panic recovery, request ID
// assignment (X-Request-ID), and structured request logging via log/slog.
//
// HTTP serving uses net/http; the server shuts down gracefully on SIGINT or
// SIGTERM, waiting for in-flight requests within a configurable timeout.
// Streaming responses are bounded by the client's connection and the request
// context rather than a server write timeout.
package transport
