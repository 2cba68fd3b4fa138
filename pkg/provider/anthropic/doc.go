// Package anthropic implements the provider adapter for the Anthropic
// Messages API, including extended thinking blocks with continuation
// signatures and the credential-kind-dependent authentication headers.
package anthropic
