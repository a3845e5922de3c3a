package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"pixelmint/internal/identity"
	"pixelmint/internal/model"
	"pixelmint/internal/service"
)

type Handler struct {
	svc service.GenerationService
	ids identity.Resolver
}

func NewHandler(svc service.GenerationService, ids identity.Resolver) *Handler {
	return &Handler{svc: svc, ids: ids}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /generate/image", h.generate(model.KindImage))
	mux.HandleFunc("POST /generate/video", h.generate(model.KindVideo))
	mux.HandleFunc("POST /generate/edit", h.generate(model.KindImageEdit))
	mux.HandleFunc("POST /callbacks/completion", h.Completion)
	mux.HandleFunc("GET /activity", h.ListActivity)
	mux.HandleFunc("GET /balance", h.Balance)
	mux.HandleFunc("POST /credits/grant", h.Grant)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type generateBody struct {
	Prompt          string `json:"prompt"`
	SourceRef       string `json:"source_ref,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// generate returns the handler for one operation kind. All kinds run the
// same pipeline; only the kind tag differs.
func (h *Handler) generate(kind model.OperationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body generateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		caller := h.ids.Resolve(r)
		req := model.GenerationRequest{
			UserID:          caller.UserID,
			Origin:          caller.Origin,
			Kind:            kind,
			Prompt:          body.Prompt,
			SourceRef:       body.SourceRef,
			DurationSeconds: body.DurationSeconds,
		}

		res, err := h.svc.Generate(r.Context(), req)
		if err != nil {
			h.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.respondJSON(w, statusForResult(res), res)
	}
}

func statusForResult(res model.GenerationResult) int {
	switch res.Result {
	case model.ResultAuthRequired:
		return http.StatusUnauthorized
	case model.ResultRateLimited:
		return http.StatusTooManyRequests
	case model.ResultInsufficientCredits:
		return http.StatusPaymentRequired
	case model.ResultProviderFailure:
		return http.StatusBadGateway
	}
	return http.StatusOK
}

// Completion acknowledges provider callbacks. The response carries no
// caller-visible effect; owners see the transition on their next listing.
func (h *Handler) Completion(w http.ResponseWriter, r *http.Request) {
	var notice model.CompletionNotice
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.svc.Complete(r.Context(), notice); err != nil {
		h.respondError(w, http.StatusInternalServerError, "completion_failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		caller := h.ids.Resolve(r)
		if caller.IsAnonymous() {
			h.respondError(w, http.StatusUnauthorized, "sign_in_required")
			return
		}
		ownerID = caller.UserID
	}

	filter := model.ListFilter{
		Kind:   model.OperationKind(r.URL.Query().Get("kind")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}

	records, err := h.svc.ListActivity(r.Context(), ownerID, filter)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "listing_failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	bal, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "balance_failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		h.respondError(w, http.StatusBadRequest, "missing_params")
		return
	}
	bal, err := h.svc.Grant(r.Context(), req.UserID, req.Amount)
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, "grant_failed")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
