// Package llm wraps the hosted text-completion service behind a small
// Provider interface. The pipeline treats the model as an opaque function
// from prompt to text; this package owns transport, authentication, rate
// limiting, prompt token budgeting, and error normalization.
package llm
