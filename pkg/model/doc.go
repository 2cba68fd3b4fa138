// Package model defines the canonical, provider-agnostic representation of
// chat conversations: messages, content blocks, tool definitions and calls,
// request options, stream events, and the shared error taxonomy. Every
// provider adapter reads and writes these types; provider wire formats never
// leak out of their adapter packages.
package model
