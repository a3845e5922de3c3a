package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelmint/internal/model"
	"pixelmint/internal/provider"
)

func TestGenerate_ImmediateResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"done","asset_url":"https://cdn.example/a.png"}`))
	}))
	defer srv.Close()

	c := New("engine", srv.URL, "secret")
	res, err := c.Generate(context.Background(), provider.Request{Kind: model.KindImage, Prompt: "a cat"})
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, "https://cdn.example/a.png", res.FinalRef)
}

func TestGenerate_QueuedKeepsRawPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"queued","response":{"task_id":"task-9"}}`))
	}))
	defer srv.Close()

	c := New("engine", srv.URL, "")
	res, err := c.Generate(context.Background(), provider.Request{Kind: model.KindVideo, Prompt: "a dog", DurationSeconds: 5})
	require.NoError(t, err)
	assert.True(t, res.Queued)

	inner, ok := res.AcceptancePayload["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "task-9", inner["task_id"])
}

func TestGenerate_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"status":"queued","task_id":"task-2"}`))
	}))
	defer srv.Close()

	c := New("engine", srv.URL, "")
	res, err := c.Generate(context.Background(), provider.Request{Kind: model.KindImage, Prompt: "x"})
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGenerate_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New("engine", srv.URL, "")
	_, err := c.Generate(context.Background(), provider.Request{Kind: model.KindImage, Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrDispatchFailed)
	assert.EqualValues(t, 1, calls.Load())
}
