// Package types provides the shared type definitions for the ticketflow
// pipeline: workflow requests and results, stage outcomes, the ticket
// artifact built across stages, progress events, and the unified error type.
package types
