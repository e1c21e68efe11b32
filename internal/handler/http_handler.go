package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/auth"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
	"github.com/veridian-labs/be-sdlc-approvals/internal/lifecycle"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
	"github.com/veridian-labs/be-sdlc-approvals/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	approvals *service.ApprovalService
	status    *service.StatusService
	signing   *service.SigningService
	log       zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	approvals *service.ApprovalService,
	status *service.StatusService,
	signing *service.SigningService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		status:    status,
		signing:   signing,
		log:       log,
	}
}

// ── Approver configuration ────────────────────────────────────────────────────

// ConfigureApprovers handles POST /api/v1/approvals/configure.
func (h *HTTPHandler) ConfigureApprovers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubjectType string   `json:"subject_type"`
		SubjectID   string   `json:"subject_id"`
		ApproverIDs []string `json:"approver_ids"`
		Mode        string   `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.SubjectID == "" {
		h.writeError(w, errors.InvalidInput("subject_id", "is required"))
		return
	}

	actor := auth.FromContext(r.Context())
	round, err := h.approvals.Configure(r.Context(),
		repository.SubjectType(req.SubjectType),
		req.SubjectID,
		req.ApproverIDs,
		repository.ApprovalMode(req.Mode),
		actor.UserID,
	)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{"configured": true}
	if round != nil {
		resp["round"] = roundJSON(round)
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// Decide handles POST /api/v1/approvals/decide.
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoundID string  `json:"round_id"`
		Outcome string  `json:"outcome"`
		Comment *string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.RoundID == "" {
		h.writeError(w, errors.InvalidInput("round_id", "is required"))
		return
	}

	actor := auth.FromContext(r.Context())
	result, err := h.approvals.Decide(r.Context(), req.RoundID, actor.UserID, req.Outcome, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"recorded":        true,
		"round_completed": result.RoundCompleted,
	}
	if result.RoundCompleted {
		resp["outcome"] = result.Outcome
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetRound handles GET /api/v1/approvals/round?subject_type=&subject_id=.
func (h *HTTPHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	subjectType := r.URL.Query().Get("subject_type")
	subjectID := r.URL.Query().Get("subject_id")
	if subjectType == "" || subjectID == "" {
		h.writeError(w, errors.InvalidInput("subject_type, subject_id", "are required"))
		return
	}

	round, decisions, err := h.approvals.GetRound(r.Context(), repository.SubjectType(subjectType), subjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"round":     roundJSON(round),
		"decisions": decisionsJSON(decisions),
	})
}

// GetPending handles GET /api/v1/approvals/pending: everything awaiting the
// actor, across document rounds and status change requests.
func (h *HTTPHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	actor := auth.FromContext(r.Context())

	decisions, err := h.approvals.GetPendingForUser(r.Context(), actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	votes, err := h.status.GetPendingVotesForUser(r.Context(), actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	voteItems := make([]map[string]interface{}, 0, len(votes))
	for _, v := range votes {
		voteItems = append(voteItems, map[string]interface{}{
			"vote_id":     v.ID,
			"request_id":  v.RequestID,
			"order_index": v.OrderIndex,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisionsJSON(decisions),
		"votes":     voteItems,
	})
}

// GetHistory handles GET /api/v1/approvals/history?target_type=&target_id=.
func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	targetType := r.URL.Query().Get("target_type")
	targetID := r.URL.Query().Get("target_id")
	if targetType == "" || targetID == "" {
		h.writeError(w, errors.InvalidInput("target_type, target_id", "are required"))
		return
	}

	entries, err := h.approvals.GetHistory(r.Context(), targetType, targetID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		item := map[string]interface{}{
			"id":          e.ID,
			"action":      e.Action,
			"target_type": e.TargetType,
			"target_id":   e.TargetID,
			"metadata":    e.Metadata,
			"created_at":  e.CreatedAt,
		}
		if e.ActorID != nil {
			item["actor_id"] = *e.ActorID
		}
		items = append(items, item)
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": items})
}

// ── Status transitions ────────────────────────────────────────────────────────

// RequestStatusChange handles POST /api/v1/projects/status/request.
func (h *HTTPHandler) RequestStatusChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		ToStatus  string `json:"to_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.ProjectID == "" {
		h.writeError(w, errors.InvalidInput("project_id", "is required"))
		return
	}

	actor := auth.FromContext(r.Context())
	result, err := h.status.RequestStatusChange(r.Context(), req.ProjectID, req.ToStatus, actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if result.Applied {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"applied": true,
			"status":  req.ToStatus,
		})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"applied": false,
		"request": requestJSON(result.Request),
	})
}

// VoteOnStatusChange handles POST /api/v1/projects/status/vote.
func (h *HTTPHandler) VoteOnStatusChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string  `json:"request_id"`
		Outcome   string  `json:"outcome"`
		Comment   *string `json:"comment,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.RequestID == "" {
		h.writeError(w, errors.InvalidInput("request_id", "is required"))
		return
	}

	actor := auth.FromContext(r.Context())
	result, err := h.status.VoteOnStatusChange(r.Context(), req.RequestID, actor.UserID, req.Outcome, req.Comment)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := map[string]interface{}{
		"recorded": true,
		"resolved": result.Resolved,
	}
	if result.Resolved {
		resp["outcome"] = result.Outcome
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetStatusRequest handles GET /api/v1/projects/status/request?project_id=.
func (h *HTTPHandler) GetStatusRequest(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		h.writeError(w, errors.InvalidInput("project_id", "is required"))
		return
	}

	req, votes, err := h.status.GetPendingRequest(r.Context(), projectID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	voteItems := make([]map[string]interface{}, 0, len(votes))
	for _, v := range votes {
		item := map[string]interface{}{
			"user_id":     v.UserID,
			"email":       v.Email,
			"order_index": v.OrderIndex,
			"status":      v.Status,
		}
		if v.DecidedAt != nil {
			item["decided_at"] = *v.DecidedAt
		}
		voteItems = append(voteItems, item)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": requestJSON(req),
		"votes":   voteItems,
	})
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// GetLifecycleStages handles GET /api/v1/lifecycle/stages.
func (h *HTTPHandler) GetLifecycleStages(w http.ResponseWriter, r *http.Request) {
	stages := make([]map[string]interface{}, 0, len(lifecycle.Stages))
	for i, s := range lifecycle.Stages {
		stages = append(stages, map[string]interface{}{"index": i, "name": s})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"stages": stages})
}

// ── Signatures ────────────────────────────────────────────────────────────────

// SubmitForSignature handles POST /api/v1/signatures/submit.
func (h *HTTPHandler) SubmitForSignature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.DocumentID == "" {
		h.writeError(w, errors.InvalidInput("document_id", "is required"))
		return
	}

	actor := auth.FromContext(r.Context())
	sub, err := h.signing.SubmitForSignature(r.Context(), req.DocumentID, actor.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"submission_id": sub.ID,
		"provider_ref":  sub.ProviderRef,
		"round_id":      sub.RoundID,
	})
}

// SignerEvent handles POST /api/v1/signatures/events, the provider callback.
// Authenticated by shared secret in the router, not by JWT.
func (h *HTTPHandler) SignerEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmissionID string `json:"submission_id"`
		Event        string `json:"event"`
		Recipient    string `json:"recipient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if req.Event != "recipient_completed" {
		// Other provider events carry no approval meaning; acknowledge them.
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"ignored": true})
		return
	}

	if err := h.signing.HandleRecipientCompleted(r.Context(), req.SubmissionID, req.Recipient); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"processed": true})
}

// ── Response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(code),
			"message": err.Error(),
		},
	})
}

func roundJSON(round *repository.ApprovalRound) map[string]interface{} {
	out := map[string]interface{}{
		"id":           round.ID,
		"subject_type": string(round.SubjectType),
		"subject_id":   round.SubjectID,
		"mode":         string(round.Mode),
		"status":       round.Status,
		"created_at":   round.CreatedAt,
	}
	if round.Outcome != nil {
		out["outcome"] = *round.Outcome
	}
	if round.CompletedAt != nil {
		out["completed_at"] = *round.CompletedAt
	}
	return out
}

func decisionsJSON(decisions []*repository.Decision) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(decisions))
	for _, d := range decisions {
		item := map[string]interface{}{
			"id":          d.ID,
			"round_id":    d.RoundID,
			"user_id":     d.UserID,
			"email":       d.Email,
			"order_index": d.OrderIndex,
			"status":      d.Status,
		}
		if d.Comment != nil {
			item["comment"] = *d.Comment
		}
		if d.DecidedAt != nil {
			item["decided_at"] = *d.DecidedAt
		}
		items = append(items, item)
	}
	return items
}

func requestJSON(req *repository.StatusChangeRequest) map[string]interface{} {
	out := map[string]interface{}{
		"id":           req.ID,
		"project_id":   req.ProjectID,
		"from_status":  req.FromStatus,
		"to_status":    req.ToStatus,
		"requested_by": req.RequestedBy,
		"status":       req.Status,
		"created_at":   req.CreatedAt,
	}
	if req.ResolvedAt != nil {
		out["resolved_at"] = *req.ResolvedAt
	}
	return out
}
