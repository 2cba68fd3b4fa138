// Package openai implements the provider adapter for the OpenAI Chat
// Completions API and the compatible vendors that expose the same wire
// protocol (Groq, xAI, Mistral, OpenRouter, and similar). One implementation
// serves them all; per-vendor differences are carried in the Config.
package openai
