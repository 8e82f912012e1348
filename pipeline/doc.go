// Package pipeline implements the five-stage ticket creation workflow:
// Drafter, Feasibility, Testability, Compliance, Creator. The orchestrator
// drives the stages in fixed order, enforces the quality gate between them,
// retries a low-scoring stage with feedback up to the configured iteration
// budget, and assembles the final result.
package pipeline
