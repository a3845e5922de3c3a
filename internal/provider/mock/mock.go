// Package mock is a configurable in-process provider for tests.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"pixelmint/internal/provider"
)

type Provider struct {
	name      string
	latency   time.Duration
	staticErr error
	result    provider.Result
	callCount atomic.Int64
	generate  func(provider.Request) (provider.Result, error)
}

var _ provider.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// WithName sets the provider name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithImmediateResult makes the provider finish synchronously with the
// given asset reference.
func WithImmediateResult(finalRef string) Option {
	return func(p *Provider) {
		p.result = provider.Result{FinalRef: finalRef}
	}
}

// WithAcceptancePayload makes the provider queue work and acknowledge with
// the given payload.
func WithAcceptancePayload(payload map[string]any) Option {
	return func(p *Provider) {
		p.result = provider.Result{Queued: true, AcceptancePayload: payload}
	}
}

// WithGenerateFunc sets a custom response function.
func WithGenerateFunc(fn func(provider.Request) (provider.Result, error)) Option {
	return func(p *Provider) { p.generate = fn }
}

// New creates a mock provider. The default result is a queued acceptance
// with a top-level task_id.
func New(opts ...Option) *Provider {
	p := &Provider{
		name: "mock",
		result: provider.Result{
			Queued:            true,
			AcceptancePayload: map[string]any{"task_id": "mock-task-1"},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Calls returns how many times Generate has been invoked.
func (p *Provider) Calls() int64 { return p.callCount.Load() }

func (p *Provider) Generate(ctx context.Context, req provider.Request) (provider.Result, error) {
	p.callCount.Add(1)

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return provider.Result{}, ctx.Err()
		}
	}

	if p.generate != nil {
		return p.generate(req)
	}
	if p.staticErr != nil {
		return provider.Result{}, p.staticErr
	}
	return p.result, nil
}
