// Package llm contains the model backend adapters used by the relay. Each
// provider is a stateless HTTP wrapper that turns a prompt into a single text
// completion.
package llm
