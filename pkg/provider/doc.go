// Package provider defines the uniform contract every upstream model
// provider adapter satisfies. Each adapter package translates the canonical
// request into its provider's wire format, parses responses or drives the
// streaming reconstructor over the provider's event source, and classifies
// provider failures into the shared taxonomy. Wire shapes stay local to the
// adapter; only canonical types cross this boundary.
package provider
