// Package auth guards the gateway's caller-facing endpoints.
//
// Credential checks run as a chain of verifiers. Each verifier inspects the
// request and returns Allow (caller resolved), Deny (credentials presented
// but rejected), or Skip (not its credential shape); the chain stops at the
// first non-Skip result and a configurable fallback decides requests every
// verifier skipped.
//
// Callers authenticate to the gateway; upstream provider credentials are
// managed by pkg/credentials and never derived from caller tokens. A
// resolved caller carries a tenant, a service tier for rate limiting, and an
// optional allowlist of provider routes it may dispatch to.
package auth
