package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelmint/internal/activity"
	"pixelmint/internal/credit"
	"pixelmint/internal/dispatch"
	"pixelmint/internal/model"
	"pixelmint/internal/provider/mock"
	"pixelmint/internal/ratelimit"
	"pixelmint/internal/tracking"
)

// allowAll admits every request; dispatch tests exercise the pipeline, the
// cooldown itself is covered in the ratelimit package.
type allowAll struct{}

func (allowAll) Allow(context.Context, string, model.OperationKind) (ratelimit.Admission, error) {
	return ratelimit.Admission{ID: "adm-1"}, nil
}

// denyAll simulates an active cooldown.
type denyAll struct{}

func (denyAll) Allow(context.Context, string, model.OperationKind) (ratelimit.Admission, error) {
	return ratelimit.Admission{}, ratelimit.ErrCoolingDown
}

type fixture struct {
	ledger *credit.MemoryLedger
	store  *activity.MemoryStore
	disp   *dispatch.Dispatcher
}

func newFixture(startingBalance int64, prov *mock.Provider, opts ...dispatch.Option) *fixture {
	ledger := credit.NewMemoryLedger(startingBalance, nil)
	store := activity.NewMemoryStore()
	return &fixture{
		ledger: ledger,
		store:  store,
		disp:   dispatch.New(ledger, allowAll{}, store, prov, opts...),
	}
}

func imageRequest(user string) model.GenerationRequest {
	return model.GenerationRequest{UserID: user, Kind: model.KindImage, Prompt: "a cat in a hat"}
}

func TestGenerate_ImageQueued(t *testing.T) {
	prov := mock.New(mock.WithAcceptancePayload(map[string]any{"task_id": "task-77"}))
	f := newFixture(100, prov)

	res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.ResultInQueue, res.Result)
	assert.EqualValues(t, 94, res.Balance)
	assert.False(t, res.Error)

	rec, err := f.store.FindByTrackingRef(context.Background(), "task-77")
	require.NoError(t, err)
	assert.Equal(t, model.StateQueued, rec.State)
	assert.Equal(t, "u1", rec.OwnerID)
	assert.EqualValues(t, 100, rec.BalanceBefore)
	assert.EqualValues(t, 94, rec.BalanceAfter)
}

func TestGenerate_ImmediateCompletion(t *testing.T) {
	prov := mock.New(mock.WithImmediateResult("https://cdn.example/out.png"))
	f := newFixture(100, prov)

	res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/out.png", res.Result)
	assert.EqualValues(t, 94, res.Balance)

	rec, err := f.store.FindByTrackingRef(context.Background(), "https://cdn.example/out.png")
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, rec.State)
}

func TestGenerate_AnonymousRejectedBeforeAnyWork(t *testing.T) {
	prov := mock.New()
	f := newFixture(100, prov)

	res, err := f.disp.Generate(context.Background(), model.GenerationRequest{
		UserID: "anonymous", Kind: model.KindVideo, Prompt: "a sunrise", DurationSeconds: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResultAuthRequired, res.Result)
	assert.True(t, res.Error)

	assert.EqualValues(t, 0, prov.Calls())
	out, err := f.store.List(context.Background(), "anonymous", model.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, out, "no record is written for rejected requests")
}

func TestGenerate_InsufficientCredits(t *testing.T) {
	prov := mock.New()
	f := newFixture(5, prov)

	res, err := f.disp.Generate(context.Background(), model.GenerationRequest{
		UserID: "u1", Kind: model.KindVideo, Prompt: "a sunrise", DurationSeconds: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResultInsufficientCredits, res.Result)
	assert.EqualValues(t, 5, res.Balance)
	assert.True(t, res.Error)
	assert.EqualValues(t, 0, prov.Calls())
}

func TestGenerate_RateLimited(t *testing.T) {
	prov := mock.New()
	ledger := credit.NewMemoryLedger(100, nil)
	store := activity.NewMemoryStore()
	d := dispatch.New(ledger, denyAll{}, store, prov)

	res, err := d.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.ResultRateLimited, res.Result)
	assert.EqualValues(t, 100, res.Balance, "rejection must not touch the balance")
	assert.EqualValues(t, 0, prov.Calls())

	out, err := store.List(context.Background(), "u1", model.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerate_ProviderFailureRefunds(t *testing.T) {
	prov := mock.New(mock.WithError(errors.New("engine exploded")))
	f := newFixture(100, prov)

	res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.ResultProviderFailure, res.Result)
	assert.EqualValues(t, 100, res.Balance, "refund-on-failure returns the reserved credits")

	out, err := f.store.List(context.Background(), "u1", model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.StateFailed, out[0].State)
	assert.NotContains(t, out[0].Reason, "exploded", "raw provider errors are never recorded verbatim")
}

func TestGenerate_ProviderFailureKeepsChargeWhenRefundDisabled(t *testing.T) {
	prov := mock.New(mock.WithError(errors.New("engine exploded")))
	f := newFixture(100, prov, dispatch.WithRefundOnFailure(false))

	res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.ResultProviderFailure, res.Result)
	assert.EqualValues(t, 94, res.Balance, "pay-for-attempt keeps the deduction")
}

func TestGenerate_SyntheticTrackingRefStillQueues(t *testing.T) {
	prov := mock.New(mock.WithAcceptancePayload(map[string]any{"status": "ok"}))
	f := newFixture(100, prov)

	res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.ResultInQueue, res.Result)

	out, err := f.store.List(context.Background(), "u1", model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.StateQueued, out[0].State)
	assert.True(t, tracking.IsSynthetic(out[0].TrackingRef))
}

func TestGenerate_ConcurrentRequestsOneUser(t *testing.T) {
	// Balance 10 funds exactly one image (cost 6): of K racing requests
	// exactly one may pass the atomic reserve.
	prov := mock.New()
	f := newFixture(10, prov)

	const k = 8
	var wg sync.WaitGroup
	results := make(chan model.GenerationResult, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.disp.Generate(context.Background(), imageRequest("u1"))
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	queued, rejected := 0, 0
	for res := range results {
		switch res.Result {
		case model.ResultInQueue:
			queued++
		case model.ResultInsufficientCredits:
			rejected++
		default:
			t.Fatalf("unexpected result %q", res.Result)
		}
	}
	assert.Equal(t, 1, queued)
	assert.Equal(t, k-1, rejected)

	bal, err := f.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, bal)
}

func TestComplete_SuccessTransitionsRecord(t *testing.T) {
	prov := mock.New(mock.WithAcceptancePayload(map[string]any{"task_id": "task-1"}))
	f := newFixture(100, prov)

	_, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)

	err = f.disp.Complete(context.Background(), model.CompletionNotice{
		TrackingRef: "task-1",
		Outcome:     model.OutcomeSuccess,
		FinalRef:    "https://cdn.example/a.png",
	})
	require.NoError(t, err)

	rec, err := f.store.FindByTrackingRef(context.Background(), "https://cdn.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, rec.State)

	bal, err := f.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 94, bal, "successful completion charges nothing extra")
}

func TestComplete_IsIdempotent(t *testing.T) {
	prov := mock.New(mock.WithAcceptancePayload(map[string]any{"task_id": "task-1"}))
	f := newFixture(100, prov)

	_, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)

	notice := model.CompletionNotice{TrackingRef: "task-1", Outcome: model.OutcomeFailure, Reason: "timeout"}
	require.NoError(t, f.disp.Complete(context.Background(), notice))

	bal, err := f.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal, "async failure refunds the admission cost")

	// Redelivery: same terminal state, no double refund.
	require.NoError(t, f.disp.Complete(context.Background(), notice))

	bal, err = f.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 100, bal)

	rec, err := f.store.FindByTrackingRef(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, rec.State)
}

func TestComplete_AsyncFailureKeepsChargeWhenRefundDisabled(t *testing.T) {
	prov := mock.New(mock.WithAcceptancePayload(map[string]any{"task_id": "task-1"}))
	f := newFixture(100, prov, dispatch.WithRefundOnFailure(false))

	_, err := f.disp.Generate(context.Background(), imageRequest("u1"))
	require.NoError(t, err)

	err = f.disp.Complete(context.Background(), model.CompletionNotice{
		TrackingRef: "task-1", Outcome: model.OutcomeFailure, Reason: "timeout",
	})
	require.NoError(t, err)

	bal, err := f.ledger.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 94, bal)
}

func TestComplete_UnknownRefDropped(t *testing.T) {
	f := newFixture(100, mock.New())

	// Duplicate or stale delivery: acknowledged, logged, no error.
	err := f.disp.Complete(context.Background(), model.CompletionNotice{
		TrackingRef: "never-seen", Outcome: model.OutcomeSuccess,
	})
	assert.NoError(t, err)
}

func TestGrant_RejectsNonPositive(t *testing.T) {
	f := newFixture(100, mock.New())

	_, err := f.disp.Grant(context.Background(), "u1", 0)
	assert.Error(t, err)
	_, err = f.disp.Grant(context.Background(), "u1", -5)
	assert.Error(t, err)

	bal, err := f.disp.Grant(context.Background(), "u1", 40)
	require.NoError(t, err)
	assert.EqualValues(t, 140, bal)
}

func TestGenerate_UnsupportedKind(t *testing.T) {
	f := newFixture(100, mock.New())

	_, err := f.disp.Generate(context.Background(), model.GenerationRequest{
		UserID: "u1", Kind: "audio", Prompt: "a song",
	})
	assert.Error(t, err)
}

func TestGenerate_EditRequiresSource(t *testing.T) {
	f := newFixture(100, mock.New())

	_, err := f.disp.Generate(context.Background(), model.GenerationRequest{
		UserID: "u1", Kind: model.KindImageEdit, Prompt: "make it night",
	})
	assert.Error(t, err)
}
