package activity

import (
	"context"
	"sort"
	"sync"
	"time"

	"pixelmint/internal/model"
)

// MemoryStore is a mutex-guarded in-process Store for tests and
// single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []*model.ActivityRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Persist(_ context.Context, rec *model.ActivityRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.ID = s.nextID
	s.nextID++
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.records = append(s.records, &cp)

	rec.ID = cp.ID
	rec.CreatedAt = cp.CreatedAt
	return cp.ID, nil
}

func (s *MemoryStore) Update(_ context.Context, trackingRef, newState, finalRef, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.TrackingRef != trackingRef {
			continue
		}
		if r.State != model.StateQueued {
			// Already terminal: duplicate delivery, no second transition.
			return false, nil
		}
		r.State = newState
		if finalRef != "" {
			r.TrackingRef = finalRef
		}
		r.Reason = reason
		r.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, ErrNotFound
}

func (s *MemoryStore) FindByTrackingRef(_ context.Context, trackingRef string) (model.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.TrackingRef == trackingRef {
			return *r, nil
		}
	}
	return model.ActivityRecord{}, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, ownerID string, filter model.ListFilter) ([]model.ActivityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ActivityRecord
	for _, r := range s.records {
		if r.OwnerID != ownerID {
			continue
		}
		if filter.Kind != "" && r.Kind != filter.Kind {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
