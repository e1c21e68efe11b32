package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
	"github.com/veridian-labs/be-sdlc-approvals/internal/metrics"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// ApprovalService owns approver configuration and the decide path for
// document approval rounds.
type ApprovalService struct {
	sets           approverSetStore
	rounds         roundStore
	decisions      decisionStore
	documents      documentStore
	statusRequests statusRequestStore
	audit          auditStore
	identity       IdentityClientInterface
	notifier       Notifier
	log            zerolog.Logger

	roundLocks keyedMutex
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	sets approverSetStore,
	rounds roundStore,
	decisions decisionStore,
	documents documentStore,
	statusRequests statusRequestStore,
	audit auditStore,
	identity IdentityClientInterface,
	notifier Notifier,
	log zerolog.Logger,
) *ApprovalService {
	return &ApprovalService{
		sets:           sets,
		rounds:         rounds,
		decisions:      decisions,
		documents:      documents,
		statusRequests: statusRequests,
		audit:          audit,
		identity:       identity,
		notifier:       notifier,
		log:            log,
	}
}

// ── Configure ─────────────────────────────────────────────────────────────────

// Configure binds an ordered approver list and mode to a subject, replacing
// any prior configuration. For document subjects it recreates the subject's
// single pending round with all decisions pending and moves the document to
// in_review. Editing is refused once any approver has acted.
func (s *ApprovalService) Configure(
	ctx context.Context,
	subjectType repository.SubjectType,
	subjectID string,
	approverIDs []string,
	mode repository.ApprovalMode,
	actorID string,
) (*repository.ApprovalRound, error) {
	if subjectType != repository.SubjectDocument && subjectType != repository.SubjectProjectStatus {
		return nil, errors.InvalidInput("subject_type", "must be document or project_status")
	}
	if mode != repository.ModeSequential && mode != repository.ModeParallel {
		return nil, errors.InvalidInput("mode", "must be sequential or parallel")
	}
	if len(approverIDs) == 0 {
		return nil, errors.InvalidInput("approver_ids", "at least one approver is required")
	}
	seen := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		if seen[id] {
			return nil, errors.InvalidInput("approver_ids", "duplicate approver: "+id)
		}
		seen[id] = true
	}

	members, err := s.resolveMembers(ctx, approverIDs)
	if err != nil {
		return nil, err
	}

	if subjectType == repository.SubjectDocument {
		if _, err := s.documents.GetByID(ctx, subjectID); err != nil {
			return nil, err
		}
	}

	existing, err := s.sets.GetBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Mode != mode {
		return nil, errors.Newf(errors.ErrCodeModeLocked,
			"approval mode for this subject is locked to %s", existing.Mode)
	}

	if err := s.assertUnlocked(ctx, subjectType, subjectID); err != nil {
		return nil, err
	}

	set := &repository.ApproverSet{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Mode:        mode,
		Members:     members,
	}
	if err := s.sets.Save(ctx, set); err != nil {
		return nil, err
	}

	var round *repository.ApprovalRound
	switch subjectType {
	case repository.SubjectDocument:
		round = &repository.ApprovalRound{
			SubjectType: subjectType,
			SubjectID:   subjectID,
			Mode:        mode,
		}
		decisions := make([]*repository.Decision, 0, len(members))
		for _, m := range members {
			decisions = append(decisions, &repository.Decision{
				UserID:     m.UserID,
				Email:      m.Email,
				OrderIndex: m.OrderIndex,
			})
		}
		if err := s.rounds.Recreate(ctx, round, decisions); err != nil {
			return nil, err
		}
		if err := s.documents.UpdateStatus(ctx, subjectID, repository.DocumentInReview); err != nil {
			return nil, err
		}

		s.notifyEligible(ctx, round, decisions, actorID)

	case repository.SubjectProjectStatus:
		// The round-equivalent for a project is its pending status change
		// request; refresh its votes from the new member list if one exists.
		req, err := s.statusRequests.GetPendingByProject(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if req != nil {
			votes := make([]*repository.StatusChangeVote, 0, len(members))
			for _, m := range members {
				votes = append(votes, &repository.StatusChangeVote{
					UserID:     m.UserID,
					Email:      m.Email,
					OrderIndex: m.OrderIndex,
				})
			}
			if err := s.statusRequests.RecreateVotes(ctx, req.ID, votes); err != nil {
				return nil, err
			}
		}
	}

	approverList := make([]string, len(members))
	for i, m := range members {
		approverList[i] = m.UserID
	}
	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &actorID,
		Action:     repository.ActionApproversConfigured,
		TargetType: string(subjectType),
		TargetID:   subjectID,
		Metadata: map[string]interface{}{
			"mode":      string(mode),
			"approvers": approverList,
		},
	})

	s.log.Info().
		Str("subject_type", string(subjectType)).
		Str("subject_id", subjectID).
		Str("mode", string(mode)).
		Int("approvers", len(members)).
		Msg("Approver set configured")

	return round, nil
}

// resolveMembers validates every approver ID against the identity service and
// builds the ordered member list.
func (s *ApprovalService) resolveMembers(ctx context.Context, approverIDs []string) ([]repository.ApproverSetMember, error) {
	users, err := s.identity.ResolveUsers(ctx, approverIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(users))
	for _, u := range users {
		byID[u.ID] = u.Email
	}

	members := make([]repository.ApproverSetMember, 0, len(approverIDs))
	for i, id := range approverIDs {
		email, ok := byID[id]
		if !ok {
			return nil, errors.InvalidInput("approver_ids", "unknown user: "+id)
		}
		members = append(members, repository.ApproverSetMember{
			UserID:     id,
			Email:      email,
			OrderIndex: i,
		})
	}
	return members, nil
}

// assertUnlocked fails with SUBJECT_LOCKED when the subject's in-flight
// approval process already has at least one terminal decision.
func (s *ApprovalService) assertUnlocked(ctx context.Context, subjectType repository.SubjectType, subjectID string) error {
	switch subjectType {
	case repository.SubjectDocument:
		round, err := s.rounds.GetActiveBySubject(ctx, subjectType, subjectID)
		if err != nil {
			return err
		}
		if round == nil {
			return nil
		}
		n, err := s.decisions.CountNonPending(ctx, round.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.New(errors.ErrCodeSubjectLocked,
				"approval already started; approvers cannot be edited mid-flight")
		}
	case repository.SubjectProjectStatus:
		req, err := s.statusRequests.GetPendingByProject(ctx, subjectID)
		if err != nil {
			return err
		}
		if req == nil {
			return nil
		}
		n, err := s.statusRequests.CountNonPendingVotes(ctx, req.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return errors.New(errors.ErrCodeSubjectLocked,
				"voting already started; approvers cannot be edited mid-flight")
		}
	}
	return nil
}

// ── Decide ────────────────────────────────────────────────────────────────────

// DecideResult reports the state of the round after one decision.
type DecideResult struct {
	RoundCompleted bool
	Outcome        string // approved | rejected; set when RoundCompleted
}

// Decide records one approver's decision on a round. The decision write,
// resolver evaluation and outcome application are serialized per round and
// committed as one atomic unit, so two approvers completing "simultaneously"
// apply the aggregate outcome exactly once.
func (s *ApprovalService) Decide(
	ctx context.Context,
	roundID, userID, outcome string,
	comment *string,
) (DecideResult, error) {
	if outcome != repository.DecisionApproved && outcome != repository.DecisionRejected {
		return DecideResult{}, errors.InvalidInput("outcome", "must be approved or rejected")
	}

	timer := prometheus.NewTimer(metrics.DecideDuration)
	defer timer.ObserveDuration()

	s.roundLocks.Lock(roundID)
	defer s.roundLocks.Unlock(roundID)

	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return DecideResult{}, err
	}

	decisions, err := s.decisions.GetByRoundID(ctx, roundID)
	if err != nil {
		return DecideResult{}, err
	}

	var target *repository.Decision
	for _, d := range decisions {
		if d.UserID == userID {
			target = d
			break
		}
	}
	if target == nil {
		return DecideResult{}, errors.NotFound("decision", roundID+"/"+userID)
	}
	if target.Status != repository.DecisionPending {
		return DecideResult{}, errors.New(errors.ErrCodeAlreadyDecided, "decision has already been made")
	}

	states := decisionStates(decisions)
	if !Eligible(states, round.Mode, target.OrderIndex) {
		return DecideResult{}, errors.New(errors.ErrCodeOutOfOrder,
			"approver is not next in the sequential order")
	}

	// Evaluate the full set as if this write had landed; the transaction
	// below re-checks both guards.
	resolution := Resolve(withDecided(states, userID, outcome))

	res, err := s.rounds.ApplyDecision(ctx, repository.ApplyDecisionParams{
		DecisionID:   target.ID,
		Outcome:      outcome,
		Comment:      comment,
		Complete:     resolution.Complete,
		RoundID:      round.ID,
		RoundOutcome: resolution.Outcome,
		SubjectType:  round.SubjectType,
		SubjectID:    round.SubjectID,
	})
	if err != nil {
		return DecideResult{}, err
	}

	metrics.DecisionsTotal.WithLabelValues(outcome).Inc()

	decisionAction := repository.ActionDecisionApproved
	if outcome == repository.DecisionRejected {
		decisionAction = repository.ActionDecisionRejected
	}
	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &userID,
		Action:     decisionAction,
		TargetType: string(round.SubjectType),
		TargetID:   round.SubjectID,
		Metadata: map[string]interface{}{
			"round_id":    round.ID,
			"decision_id": target.ID,
			"order_index": target.OrderIndex,
			"comment":     commentOrEmpty(comment),
		},
	})

	if res.RoundWon {
		metrics.RoundsCompletedTotal.WithLabelValues(resolution.Outcome).Inc()

		aggregateAction := repository.ActionRoundApproved
		if resolution.Outcome == repository.DecisionRejected {
			aggregateAction = repository.ActionRoundRejected
		}
		s.appendAudit(ctx, &repository.AuditLogEntry{
			ActorID:    &userID,
			Action:     aggregateAction,
			TargetType: string(round.SubjectType),
			TargetID:   round.SubjectID,
			Metadata: map[string]interface{}{
				"round_id": round.ID,
				"outcome":  resolution.Outcome,
			},
		})

		s.notifier.PublishApprovalEvent(ctx, "round_"+resolution.Outcome,
			string(round.SubjectType), round.SubjectID, userID,
			decisionEmails(decisions), map[string]interface{}{
				"round_id": round.ID,
				"outcome":  resolution.Outcome,
			})

		s.log.Info().
			Str("round_id", round.ID).
			Str("outcome", resolution.Outcome).
			Msg("Approval round completed")
	} else if !resolution.Complete {
		s.notifier.PublishApprovalEvent(ctx, "decision_recorded",
			string(round.SubjectType), round.SubjectID, userID,
			decisionEmails(decisions), map[string]interface{}{
				"round_id": round.ID,
				"decision": outcome,
			})
		if round.Mode == repository.ModeSequential {
			s.notifyNextEligible(ctx, round, decisions, userID)
		}
	}

	return DecideResult{RoundCompleted: resolution.Complete, Outcome: resolution.Outcome}, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetRound returns the pending round for a subject with its decisions.
func (s *ApprovalService) GetRound(ctx context.Context, subjectType repository.SubjectType, subjectID string) (*repository.ApprovalRound, []*repository.Decision, error) {
	round, err := s.rounds.GetActiveBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return nil, nil, err
	}
	if round == nil {
		return nil, nil, errors.NotFound("approval_round", string(subjectType)+"/"+subjectID)
	}
	decisions, err := s.decisions.GetByRoundID(ctx, round.ID)
	if err != nil {
		return nil, nil, err
	}
	return round, decisions, nil
}

// GetPendingForUser returns all decisions currently awaiting a user.
func (s *ApprovalService) GetPendingForUser(ctx context.Context, userID string) ([]*repository.Decision, error) {
	return s.decisions.GetPendingForUser(ctx, userID)
}

// GetHistory returns the audit trail for a target.
func (s *ApprovalService) GetHistory(ctx context.Context, targetType, targetID string) ([]*repository.AuditLogEntry, error) {
	return s.audit.GetByTarget(ctx, targetType, targetID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// notifyEligible tells whoever may act now that an approval is waiting: the
// first approver in sequential mode, everyone in parallel mode.
func (s *ApprovalService) notifyEligible(ctx context.Context, round *repository.ApprovalRound, decisions []*repository.Decision, actorID string) {
	var recipients []string
	if round.Mode == repository.ModeSequential {
		for _, d := range decisions {
			if d.OrderIndex == 0 {
				recipients = []string{d.Email}
				break
			}
		}
	} else {
		recipients = decisionEmails(decisions)
	}

	s.notifier.PublishApprovalEvent(ctx, "approval_required",
		string(round.SubjectType), round.SubjectID, actorID, recipients,
		map[string]interface{}{"round_id": round.ID, "mode": string(round.Mode)})
}

// notifyNextEligible pings the new minimum-pending approver after a
// sequential decision.
func (s *ApprovalService) notifyNextEligible(ctx context.Context, round *repository.ApprovalRound, decisions []*repository.Decision, actorID string) {
	next := -1
	var email string
	for _, d := range decisions {
		if d.UserID == actorID || d.Status != repository.DecisionPending {
			continue
		}
		if next < 0 || d.OrderIndex < next {
			next = d.OrderIndex
			email = d.Email
		}
	}
	if next < 0 {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, "approval_required",
		string(round.SubjectType), round.SubjectID, actorID, []string{email},
		map[string]interface{}{"round_id": round.ID, "mode": string(round.Mode)})
}

// appendAudit writes an audit entry and logs a warning on failure (never
// returns an error).
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", entry.Action).
			Str("target_id", entry.TargetID).
			Msg("Failed to write audit log entry")
	}
}

func decisionEmails(decisions []*repository.Decision) []string {
	emails := make([]string, 0, len(decisions))
	for _, d := range decisions {
		emails = append(emails, d.Email)
	}
	return emails
}

func commentOrEmpty(c *string) string {
	if c == nil {
		return ""
	}
	return *c
}
