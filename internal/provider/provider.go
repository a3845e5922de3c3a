// Package provider defines the boundary to third-party generation engines.
package provider

import (
	"context"
	"errors"

	"pixelmint/internal/model"
)

// ErrDispatchFailed wraps any adapter failure. The dispatcher records it
// and surfaces a generic message; raw provider errors never reach callers.
var ErrDispatchFailed = errors.New("provider: dispatch failed")

// Request carries validated parameters for one generation call.
type Request struct {
	Kind            model.OperationKind
	Prompt          string
	SourceRef       string
	DurationSeconds int
}

// Result is either an immediate completion or an async acceptance.
// Exactly one of FinalRef / AcceptancePayload is meaningful, selected by
// Queued.
type Result struct {
	// Queued is true when the provider accepted the job for later
	// completion via callback.
	Queued bool

	// FinalRef is the final asset reference for immediate results.
	FinalRef string

	// AcceptancePayload is the raw acknowledgement body for queued work.
	// Its shape is provider-specific; the tracking resolver digs the
	// correlation id out of it.
	AcceptancePayload map[string]any
}

// Provider wraps one generation engine.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req Request) (Result, error)
}
