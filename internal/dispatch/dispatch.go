// Package dispatch is the orchestrator every generation request enters
// through. One Dispatcher serves all operation kinds, parameterized by a
// per-kind capability record instead of duplicated control flow.
//
// The pipeline holds no lock: the single mutual-exclusion point is the
// ledger's atomic reserve. The fast-path balance read exists only to fail
// fast before any write work; correctness comes from the re-check inside
// Reserve.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"pixelmint/internal/activity"
	"pixelmint/internal/credit"
	"pixelmint/internal/identity"
	"pixelmint/internal/model"
	"pixelmint/internal/pricing"
	"pixelmint/internal/provider"
	"pixelmint/internal/ratelimit"
	"pixelmint/internal/service"
	"pixelmint/internal/tracking"
)

// capability describes how the dispatcher handles one operation kind.
type capability struct {
	Kind     model.OperationKind
	Cost     func(model.GenerationRequest) int64
	Validate func(model.GenerationRequest) error
}

var capabilities = map[model.OperationKind]capability{
	model.KindImage: {
		Kind: model.KindImage,
		Cost: pricing.Cost,
		Validate: func(req model.GenerationRequest) error {
			if req.Prompt == "" {
				return errors.New("prompt is required")
			}
			return nil
		},
	},
	model.KindImageEdit: {
		Kind: model.KindImageEdit,
		Cost: pricing.Cost,
		Validate: func(req model.GenerationRequest) error {
			if req.Prompt == "" {
				return errors.New("prompt is required")
			}
			if req.SourceRef == "" {
				return errors.New("source_ref is required for edits")
			}
			return nil
		},
	},
	model.KindVideo: {
		Kind: model.KindVideo,
		Cost: pricing.Cost,
		Validate: func(req model.GenerationRequest) error {
			if req.Prompt == "" {
				return errors.New("prompt is required")
			}
			if req.DurationSeconds < 0 {
				return errors.New("duration must not be negative")
			}
			return nil
		},
	},
}

// journal is the slice of the repository the dispatcher needs for event
// syncing. Nil when running without Postgres.
type journal interface {
	RecordCreditEvent(ctx context.Context, event model.CreditEvent) error
}

// Dispatcher implements service.GenerationService.
type Dispatcher struct {
	ledger   credit.Ledger
	limiter  ratelimit.Limiter
	store    activity.Store
	provider provider.Provider
	journal  journal

	// refundOnFailure controls whether reserved credits return when a
	// dispatch or async completion fails. When false the charge is a
	// "pay for attempt".
	refundOnFailure bool
}

var _ service.GenerationService = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRefundOnFailure sets the failure refund policy.
func WithRefundOnFailure(refund bool) Option {
	return func(d *Dispatcher) { d.refundOnFailure = refund }
}

// WithJournal wires the credit-event journal.
func WithJournal(j journal) Option {
	return func(d *Dispatcher) { d.journal = j }
}

func New(ledger credit.Ledger, limiter ratelimit.Limiter, store activity.Store, prov provider.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:          ledger,
		limiter:         limiter,
		store:           store,
		provider:        prov,
		refundOnFailure: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate walks the request through Received, RateChecked, BalanceChecked,
// Reserved and Dispatched, ending Queued, CompletedImmediately or Failed.
func (d *Dispatcher) Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error) {
	// Received: anonymous callers are rejected before any ledger or
	// rate-limit work.
	if req.UserID == "" || req.UserID == identity.Anonymous {
		return model.GenerationResult{Result: model.ResultAuthRequired, Error: true}, nil
	}

	c, ok := capabilities[req.Kind]
	if !ok {
		return model.GenerationResult{}, fmt.Errorf("dispatch: unsupported kind %q", req.Kind)
	}
	if err := c.Validate(req); err != nil {
		return model.GenerationResult{}, fmt.Errorf("dispatch: invalid request: %w", err)
	}

	// RateChecked.
	admission, err := d.limiter.Allow(ctx, req.UserID, req.Kind)
	if errors.Is(err, ratelimit.ErrCoolingDown) {
		bal, _ := d.ledger.Balance(ctx, req.UserID)
		return model.GenerationResult{Result: model.ResultRateLimited, Balance: bal, Error: true}, nil
	}
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("dispatch: rate check: %w", err)
	}

	// BalanceChecked: fast-path read, no writes yet.
	cost := c.Cost(req)
	balanceBefore, err := d.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("dispatch: balance read: %w", err)
	}
	if balanceBefore < cost {
		return model.GenerationResult{Result: model.ResultInsufficientCredits, Balance: balanceBefore, Error: true}, nil
	}

	// Reserved: the atomic re-check inside Reserve is the correctness
	// guarantee; a concurrent request may have consumed the balance since
	// the read above.
	newBalance, err := d.ledger.Reserve(ctx, req.UserID, cost, admission.ID)
	if errors.Is(err, credit.ErrInsufficient) {
		bal, _ := d.ledger.Balance(ctx, req.UserID)
		return model.GenerationResult{Result: model.ResultInsufficientCredits, Balance: bal, Error: true}, nil
	}
	if err != nil {
		return model.GenerationResult{}, fmt.Errorf("dispatch: reserve: %w", err)
	}

	// Dispatched. The reservation is already committed, so a slow
	// provider never blocks other users' reservations.
	result, err := d.provider.Generate(ctx, provider.Request{
		Kind:            req.Kind,
		Prompt:          req.Prompt,
		SourceRef:       req.SourceRef,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		return d.dispatchFailed(ctx, req, cost, balanceBefore, newBalance, err)
	}

	rec := model.ActivityRecord{
		OwnerID:       req.UserID,
		Kind:          req.Kind,
		Prompt:        req.Prompt,
		SourceRef:     req.SourceRef,
		BalanceBefore: balanceBefore,
		BalanceAfter:  newBalance,
	}

	if !result.Queued {
		// CompletedImmediately.
		rec.State = model.StateCompleted
		rec.TrackingRef = result.FinalRef
		if _, err := d.store.Persist(ctx, &rec); err != nil {
			return model.GenerationResult{}, fmt.Errorf("dispatch: persist record: %w", err)
		}
		return model.GenerationResult{Result: result.FinalRef, Balance: newBalance}, nil
	}

	// Queued: resolve the correlation id out of the acceptance payload.
	trackingRef := tracking.Resolve(result.AcceptancePayload)
	if tracking.IsSynthetic(trackingRef) {
		slog.Warn("dispatch: no provider tracking id, using synthetic",
			"user_id", req.UserID, "kind", req.Kind, "tracking_ref", trackingRef)
	}

	rec.State = model.StateQueued
	rec.TrackingRef = trackingRef
	if _, err := d.store.Persist(ctx, &rec); err != nil {
		return model.GenerationResult{}, fmt.Errorf("dispatch: persist record: %w", err)
	}

	return model.GenerationResult{Result: model.ResultInQueue, Balance: newBalance}, nil
}

// dispatchFailed records the failure and applies the refund policy. The
// raw provider error is logged for operators, never surfaced.
func (d *Dispatcher) dispatchFailed(ctx context.Context, req model.GenerationRequest, cost, balanceBefore, balanceAfter int64, dispatchErr error) (model.GenerationResult, error) {
	slog.Error("dispatch: provider call failed",
		"user_id", req.UserID, "kind", req.Kind, "error", dispatchErr)

	rec := model.ActivityRecord{
		OwnerID:       req.UserID,
		Kind:          req.Kind,
		State:         model.StateFailed,
		TrackingRef:   tracking.Synthesize(),
		Prompt:        req.Prompt,
		SourceRef:     req.SourceRef,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Reason:        "provider dispatch failed",
	}
	if _, err := d.store.Persist(ctx, &rec); err != nil {
		slog.Error("dispatch: persist failed record", "error", err)
	}

	balance := balanceAfter
	if d.refundOnFailure {
		refunded, err := d.ledger.Grant(ctx, req.UserID, cost, "refund-"+rec.TrackingRef)
		if err != nil {
			slog.Error("dispatch: refund failed", "user_id", req.UserID, "error", err)
		} else {
			balance = refunded
		}
	}

	return model.GenerationResult{Result: model.ResultProviderFailure, Balance: balance, Error: true}, nil
}

// Complete applies a provider completion callback.
func (d *Dispatcher) Complete(ctx context.Context, notice model.CompletionNotice) error {
	if notice.TrackingRef == "" {
		slog.Warn("dispatch: completion without tracking ref dropped")
		return nil
	}

	newState := model.StateCompleted
	if notice.Outcome == model.OutcomeFailure {
		newState = model.StateFailed
	}

	// Snapshot before the transition: a failure refund needs the cost,
	// which is the before/after gap charged at admission.
	rec, err := d.store.FindByTrackingRef(ctx, notice.TrackingRef)
	if errors.Is(err, activity.ErrNotFound) {
		// Possible duplicate or stale delivery. Operators see it, the
		// provider just gets an ack.
		slog.Warn("dispatch: completion matches no record",
			"tracking_ref", notice.TrackingRef, "outcome", notice.Outcome)
		return nil
	}
	if err != nil {
		return fmt.Errorf("dispatch: completion lookup: %w", err)
	}

	applied, err := d.store.Update(ctx, notice.TrackingRef, newState, notice.FinalRef, notice.Reason)
	if err != nil && !errors.Is(err, activity.ErrNotFound) {
		return fmt.Errorf("dispatch: completion update: %w", err)
	}
	if !applied {
		// Already terminal, or lost a race with a duplicate. Either way
		// the first delivery did the work.
		return nil
	}

	slog.Info("dispatch: completion applied",
		"tracking_ref", notice.TrackingRef, "state", newState, "owner_id", rec.OwnerID)

	if newState == model.StateFailed && d.refundOnFailure {
		cost := rec.BalanceBefore - rec.BalanceAfter
		if cost > 0 {
			if _, err := d.ledger.Grant(ctx, rec.OwnerID, cost, "refund-"+notice.TrackingRef); err != nil {
				return fmt.Errorf("dispatch: completion refund: %w", err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) ListActivity(ctx context.Context, ownerID string, filter model.ListFilter) ([]model.ActivityRecord, error) {
	return d.store.List(ctx, ownerID, filter)
}

func (d *Dispatcher) Balance(ctx context.Context, userID string) (int64, error) {
	return d.ledger.Balance(ctx, userID)
}

func (d *Dispatcher) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("dispatch: grant amount must be positive")
	}
	return d.ledger.Grant(ctx, userID, amount, uuid.New().String())
}

func (d *Dispatcher) SyncCreditEvent(ctx context.Context, event model.CreditEvent) error {
	if d.journal == nil {
		return nil
	}
	return d.journal.RecordCreditEvent(ctx, event)
}
