package model

import "time"

// OperationKind identifies the type of generation work a request asks for.
type OperationKind string

const (
	KindImage     OperationKind = "image"
	KindVideo     OperationKind = "video"
	KindImageEdit OperationKind = "image-edit"
)

// Valid reports whether k is one of the supported operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindImageEdit:
		return true
	}
	return false
}

// GenerationRequest is a transient admission request. Cost is computed once
// by the dispatcher and never changes for the request's life.
type GenerationRequest struct {
	UserID          string        `json:"user_id"`
	Origin          string        `json:"origin"`
	Kind            OperationKind `json:"kind"`
	Prompt          string        `json:"prompt"`
	SourceRef       string        `json:"source_ref,omitempty"`
	DurationSeconds int           `json:"duration_seconds,omitempty"`
}

// Activity states.
const (
	StateQueued    = "queued"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ActivityRecord is the persisted trace of one admitted generation request.
// TrackingRef holds the provider correlation id while queued and the final
// asset reference once terminal.
type ActivityRecord struct {
	ID            int64         `json:"id"`
	OwnerID       string        `json:"owner_id"`
	Kind          OperationKind `json:"kind"`
	State         string        `json:"state"`
	TrackingRef   string        `json:"tracking_ref"`
	Prompt        string        `json:"prompt"`
	SourceRef     string        `json:"source_ref,omitempty"`
	BalanceBefore int64         `json:"balance_before"`
	BalanceAfter  int64         `json:"balance_after"`
	Reason        string        `json:"reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Result tags surfaced to callers.
const (
	ResultInQueue             = "InQueue"
	ResultAuthRequired        = "AuthRequired"
	ResultRateLimited         = "RateLimited"
	ResultInsufficientCredits = "InsufficientCredits"
	ResultProviderFailure     = "ProviderFailure"
)

// GenerationResult is the terminal response for an admission request.
// Result carries ResultInQueue, a final asset reference for immediate
// completions, or one of the error tags. Balance is always the caller's
// current balance so clients never have to infer whether a deduction
// happened.
type GenerationResult struct {
	Result  string `json:"result"`
	Balance int64  `json:"balance"`
	Error   bool   `json:"error"`
}

// Completion outcomes reported by providers.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CompletionNotice is an inbound provider callback for previously queued work.
type CompletionNotice struct {
	TrackingRef string `json:"tracking_ref"`
	Outcome     string `json:"outcome"`
	FinalRef    string `json:"final_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// CreditEvent is published on the bus for every balance mutation and synced
// to the journal table by the worker. AdmissionID deduplicates re-deliveries.
type CreditEvent struct {
	UserID       string    `json:"user_id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	AdmissionID  string    `json:"admission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilter narrows and pages an activity listing. Kind empty means all
// kinds. Limit 0 falls back to the store default.
type ListFilter struct {
	Kind   OperationKind
	Limit  int
	Offset int
}
