package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
	"github.com/veridian-labs/be-sdlc-approvals/internal/lifecycle"
	"github.com/veridian-labs/be-sdlc-approvals/internal/metrics"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// StatusService is the status transition gate: it wraps the decision resolver
// for project lifecycle stage changes.
type StatusService struct {
	sets     approverSetStore
	requests statusRequestStore
	projects projectStore
	audit    auditStore
	notifier Notifier
	log      zerolog.Logger

	requestLocks keyedMutex
}

// NewStatusService creates a new StatusService.
func NewStatusService(
	sets approverSetStore,
	requests statusRequestStore,
	projects projectStore,
	audit auditStore,
	notifier Notifier,
	log zerolog.Logger,
) *StatusService {
	return &StatusService{
		sets:     sets,
		requests: requests,
		projects: projects,
		audit:    audit,
		notifier: notifier,
		log:      log,
	}
}

// ── Request ───────────────────────────────────────────────────────────────────

// RequestResult reports how a status change request was handled.
type RequestResult struct {
	// Applied is true when the change took effect immediately because the
	// project has no configured approver set.
	Applied bool
	// Request is the pending gate record; nil when Applied.
	Request *repository.StatusChangeRequest
}

// RequestStatusChange attempts to move a project to a new lifecycle stage.
// With no approver set configured the change applies immediately; otherwise a
// pending request with one vote per approver is created. Any stage may be
// requested, including backward moves; direction is recorded, not enforced.
func (s *StatusService) RequestStatusChange(ctx context.Context, projectID, toStatus, requesterID string) (RequestResult, error) {
	if !lifecycle.IsValid(toStatus) {
		return RequestResult{}, errors.InvalidInput("to_status", "unknown lifecycle stage: "+toStatus)
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return RequestResult{}, err
	}
	fromStatus := project.Status

	pending, err := s.requests.GetPendingByProject(ctx, projectID)
	if err != nil {
		return RequestResult{}, err
	}
	if pending != nil {
		return RequestResult{}, errors.New(errors.ErrCodeConflict,
			"a status change request is already pending for this project")
	}

	direction := "forward"
	if !lifecycle.IsForward(fromStatus, toStatus) {
		direction = "backward"
	}

	set, err := s.sets.GetBySubject(ctx, repository.SubjectProjectStatus, projectID)
	if err != nil {
		return RequestResult{}, err
	}

	if set == nil || len(set.Members) == 0 {
		// No gate configured: apply immediately.
		if err := s.projects.UpdateStatus(ctx, projectID, toStatus); err != nil {
			return RequestResult{}, err
		}
		metrics.StatusRequestsTotal.WithLabelValues("immediate").Inc()

		s.appendAudit(ctx, &repository.AuditLogEntry{
			ActorID:    &requesterID,
			Action:     repository.ActionStatusUpdated,
			TargetType: "project",
			TargetID:   projectID,
			Metadata: map[string]interface{}{
				"from_status": fromStatus,
				"to_status":   toStatus,
				"direction":   direction,
			},
		})

		s.log.Info().
			Str("project_id", projectID).
			Str("from", fromStatus).
			Str("to", toStatus).
			Msg("Project status updated (no gate configured)")

		return RequestResult{Applied: true}, nil
	}

	req := &repository.StatusChangeRequest{
		ProjectID:   projectID,
		FromStatus:  fromStatus,
		ToStatus:    toStatus,
		RequestedBy: requesterID,
	}
	votes := make([]*repository.StatusChangeVote, 0, len(set.Members))
	for _, m := range set.Members {
		votes = append(votes, &repository.StatusChangeVote{
			UserID:     m.UserID,
			Email:      m.Email,
			OrderIndex: m.OrderIndex,
		})
	}
	if err := s.requests.Create(ctx, req, votes); err != nil {
		return RequestResult{}, err
	}
	metrics.StatusRequestsTotal.WithLabelValues("gated").Inc()

	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &requesterID,
		Action:     repository.ActionStatusChangeRequested,
		TargetType: "project",
		TargetID:   projectID,
		Metadata: map[string]interface{}{
			"request_id":  req.ID,
			"from_status": fromStatus,
			"to_status":   toStatus,
			"direction":   direction,
		},
	})

	s.notifyEligibleVoters(ctx, req, set.Mode, votes, requesterID)

	s.log.Info().
		Str("project_id", projectID).
		Str("request_id", req.ID).
		Str("to", toStatus).
		Int("approvers", len(votes)).
		Msg("Status change request created")

	return RequestResult{Request: req}, nil
}

// ── Vote ──────────────────────────────────────────────────────────────────────

// VoteResult reports the request state after one vote.
type VoteResult struct {
	Resolved bool
	Outcome  string // approved | rejected; set when Resolved
}

// VoteOnStatusChange records one approver's vote on a pending request,
// following the same resolver semantics as document rounds: rejection
// dominates, completion requires every vote terminal, and resolution applies
// the project's new status exactly once.
func (s *StatusService) VoteOnStatusChange(ctx context.Context, requestID, approverID, outcome string, comment *string) (VoteResult, error) {
	if outcome != repository.DecisionApproved && outcome != repository.DecisionRejected {
		return VoteResult{}, errors.InvalidInput("outcome", "must be approved or rejected")
	}

	s.requestLocks.Lock(requestID)
	defer s.requestLocks.Unlock(requestID)

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return VoteResult{}, err
	}

	votes, err := s.requests.GetVotes(ctx, requestID)
	if err != nil {
		return VoteResult{}, err
	}

	var target *repository.StatusChangeVote
	for _, v := range votes {
		if v.UserID == approverID {
			target = v
			break
		}
	}
	if target == nil {
		return VoteResult{}, errors.NotFound("status_change_vote", requestID+"/"+approverID)
	}
	if target.Status != repository.DecisionPending {
		return VoteResult{}, errors.New(errors.ErrCodeAlreadyDecided, "vote has already been cast")
	}

	set, err := s.sets.GetBySubject(ctx, repository.SubjectProjectStatus, req.ProjectID)
	if err != nil {
		return VoteResult{}, err
	}
	mode := repository.ModeParallel
	if set != nil {
		mode = set.Mode
	}

	states := voteStates(votes)
	if !Eligible(states, mode, target.OrderIndex) {
		return VoteResult{}, errors.New(errors.ErrCodeOutOfOrder,
			"approver is not next in the sequential order")
	}

	resolution := Resolve(withDecided(states, approverID, outcome))

	res, err := s.requests.ApplyVote(ctx, repository.ApplyVoteParams{
		VoteID:         target.ID,
		Outcome:        outcome,
		Comment:        comment,
		Resolve:        resolution.Complete,
		RequestID:      req.ID,
		RequestOutcome: resolution.Outcome,
		ProjectID:      req.ProjectID,
		ToStatus:       req.ToStatus,
	})
	if err != nil {
		return VoteResult{}, err
	}

	metrics.DecisionsTotal.WithLabelValues(outcome).Inc()

	voteAction := repository.ActionDecisionApproved
	if outcome == repository.DecisionRejected {
		voteAction = repository.ActionDecisionRejected
	}
	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &approverID,
		Action:     voteAction,
		TargetType: "project",
		TargetID:   req.ProjectID,
		Metadata: map[string]interface{}{
			"request_id":  req.ID,
			"vote_id":     target.ID,
			"order_index": target.OrderIndex,
			"comment":     commentOrEmpty(comment),
		},
	})

	if res.RequestWon {
		aggregateAction := repository.ActionStatusChangeApproved
		if resolution.Outcome == repository.DecisionRejected {
			aggregateAction = repository.ActionStatusChangeRejected
		}
		s.appendAudit(ctx, &repository.AuditLogEntry{
			ActorID:    &approverID,
			Action:     aggregateAction,
			TargetType: "project",
			TargetID:   req.ProjectID,
			Metadata: map[string]interface{}{
				"request_id":  req.ID,
				"from_status": req.FromStatus,
				"to_status":   req.ToStatus,
				"outcome":     resolution.Outcome,
			},
		})
		if resolution.Outcome == repository.DecisionApproved {
			s.appendAudit(ctx, &repository.AuditLogEntry{
				ActorID:    &approverID,
				Action:     repository.ActionStatusUpdated,
				TargetType: "project",
				TargetID:   req.ProjectID,
				Metadata: map[string]interface{}{
					"from_status": req.FromStatus,
					"to_status":   req.ToStatus,
				},
			})
		}

		s.notifier.PublishApprovalEvent(ctx, "status_change_resolved",
			"project", req.ProjectID, approverID,
			voteEmails(votes), map[string]interface{}{
				"request_id": req.ID,
				"outcome":    resolution.Outcome,
				"to_status":  req.ToStatus,
			})

		s.log.Info().
			Str("request_id", req.ID).
			Str("project_id", req.ProjectID).
			Str("outcome", resolution.Outcome).
			Msg("Status change request resolved")
	}

	return VoteResult{Resolved: resolution.Complete, Outcome: resolution.Outcome}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetPendingRequest returns the project's pending request with its votes.
func (s *StatusService) GetPendingRequest(ctx context.Context, projectID string) (*repository.StatusChangeRequest, []*repository.StatusChangeVote, error) {
	req, err := s.requests.GetPendingByProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		return nil, nil, errors.NotFound("status_change_request", projectID)
	}
	votes, err := s.requests.GetVotes(ctx, req.ID)
	if err != nil {
		return nil, nil, err
	}
	return req, votes, nil
}

// GetPendingVotesForUser returns votes currently awaiting a user.
func (s *StatusService) GetPendingVotesForUser(ctx context.Context, userID string) ([]*repository.StatusChangeVote, error) {
	return s.requests.GetPendingVotesForUser(ctx, userID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *StatusService) notifyEligibleVoters(ctx context.Context, req *repository.StatusChangeRequest, mode repository.ApprovalMode, votes []*repository.StatusChangeVote, actorID string) {
	var recipients []string
	if mode == repository.ModeSequential {
		for _, v := range votes {
			if v.OrderIndex == 0 {
				recipients = []string{v.Email}
				break
			}
		}
	} else {
		for _, v := range votes {
			recipients = append(recipients, v.Email)
		}
	}

	s.notifier.PublishApprovalEvent(ctx, "status_change_requested",
		"project", req.ProjectID, actorID, recipients, map[string]interface{}{
			"request_id": req.ID,
			"to_status":  req.ToStatus,
		})
}

func (s *StatusService) appendAudit(ctx context.Context, entry *repository.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", entry.Action).
			Str("target_id", entry.TargetID).
			Msg("Failed to write audit log entry")
	}
}

func voteEmails(votes []*repository.StatusChangeVote) []string {
	emails := make([]string, 0, len(votes))
	for _, v := range votes {
		emails = append(emails, v.Email)
	}
	return emails
}
