// Package google implements the provider adapter for the Gemini
// generateContent API. Tool calls arrive as complete snapshots rather than
// argument fragments, and thought parts carry the model's reasoning.
package google
