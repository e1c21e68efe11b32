package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// ApprovalRoundRepository manages approval rounds and the transactional
// operations that keep the "one pending round per subject" and
// "outcome applied exactly once" invariants.
type ApprovalRoundRepository struct {
	db *database.DB
}

// NewApprovalRoundRepository creates a new ApprovalRoundRepository.
func NewApprovalRoundRepository(db *database.DB) *ApprovalRoundRepository {
	return &ApprovalRoundRepository{db: db}
}

// Recreate replaces the subject's pending round (and its decisions) with a
// fresh round, all decisions pending, in one transaction.
func (r *ApprovalRoundRepository) Recreate(ctx context.Context, round *ApprovalRound, decisions []*Decision) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM approval_decisions
			WHERE round_id IN (
				SELECT id FROM approval_rounds
				WHERE subject_type = $1 AND subject_id = $2 AND status = 'pending'
			)
		`, round.SubjectType, round.SubjectID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear pending decisions")
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM approval_rounds
			WHERE subject_type = $1 AND subject_id = $2 AND status = 'pending'
		`, round.SubjectType, round.SubjectID)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear pending round")
		}

		roundQuery := `
			INSERT INTO approval_rounds (subject_type, subject_id, mode, status, priority)
			VALUES ($1, $2, $3::approval_mode, 'pending'::approval_round_status, $4)
			RETURNING id, created_at
		`
		err = tx.QueryRow(ctx, roundQuery,
			round.SubjectType,
			round.SubjectID,
			round.Mode,
			round.Priority,
		).Scan(&round.ID, &round.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval round")
		}
		round.Status = RoundPending

		decisionQuery := `
			INSERT INTO approval_decisions (round_id, user_id, email, order_index, status)
			VALUES ($1, $2, $3, $4, 'pending'::decision_status)
			RETURNING id, created_at
		`
		for _, d := range decisions {
			d.RoundID = round.ID
			d.Status = DecisionPending
			err := tx.QueryRow(ctx, decisionQuery,
				d.RoundID,
				d.UserID,
				d.Email,
				d.OrderIndex,
			).Scan(&d.ID, &d.CreatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create decision")
			}
		}

		return nil
	})
}

// GetByID retrieves a round by its primary key.
func (r *ApprovalRoundRepository) GetByID(ctx context.Context, id string) (*ApprovalRound, error) {
	query := `
		SELECT id, subject_type, subject_id, mode, status, outcome, priority,
		       created_at, completed_at
		FROM approval_rounds
		WHERE id = $1
	`

	round, err := r.scanRound(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_round", id)
	}
	return round, err
}

// GetActiveBySubject returns the pending round for a subject, or nil when the
// subject has no round in flight.
func (r *ApprovalRoundRepository) GetActiveBySubject(ctx context.Context, subjectType SubjectType, subjectID string) (*ApprovalRound, error) {
	query := `
		SELECT id, subject_type, subject_id, mode, status, outcome, priority,
		       created_at, completed_at
		FROM approval_rounds
		WHERE subject_type = $1 AND subject_id = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
	`

	round, err := r.scanRound(r.db.QueryRow(ctx, query, subjectType, subjectID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return round, err
}

// ApplyDecisionParams describes one decision write plus, when the resolver
// determined the round is complete, the round completion to attempt.
type ApplyDecisionParams struct {
	DecisionID string
	Outcome    string // approved | rejected
	Comment    *string

	// Completion, attempted only when Complete is true.
	Complete     bool
	RoundID      string
	RoundOutcome string // approved | rejected
	SubjectType  SubjectType
	SubjectID    string
}

// ApplyDecisionResult reports what the transaction actually changed.
type ApplyDecisionResult struct {
	// RoundWon is true when this call transitioned the round to completed.
	// Under concurrent completers exactly one caller sees true; the loser's
	// decision is still recorded.
	RoundWon bool
}

// ApplyDecision records a decision and, when it completes the round, applies
// the aggregate outcome — all in a single transaction. The decision update and
// the round completion are both guarded by status = 'pending' so a racing
// caller can neither re-decide nor double-apply.
func (r *ApprovalRoundRepository) ApplyDecision(ctx context.Context, p ApplyDecisionParams) (ApplyDecisionResult, error) {
	var res ApplyDecisionResult

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var decisionID string
		err := tx.QueryRow(ctx, `
			UPDATE approval_decisions
			SET status     = $2::decision_status,
			    comment    = $3,
			    decided_at = NOW()
			WHERE id = $1
			  AND status = 'pending'
			RETURNING id
		`, p.DecisionID, p.Outcome, p.Comment).Scan(&decisionID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeAlreadyDecided, "decision has already been made")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record decision")
		}

		if !p.Complete {
			return nil
		}

		// Compare-and-set on round status: only one completer wins.
		var roundID string
		err = tx.QueryRow(ctx, `
			UPDATE approval_rounds
			SET status       = 'completed'::approval_round_status,
			    outcome      = $2,
			    completed_at = NOW()
			WHERE id = $1
			  AND status = 'pending'
			RETURNING id
		`, p.RoundID, p.RoundOutcome).Scan(&roundID)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to complete round")
		}
		res.RoundWon = true

		// Outcome application rides in the same transaction so the round can
		// never be completed without its subject reflecting the result.
		if p.SubjectType == SubjectDocument {
			_, err := tx.Exec(ctx, `
				UPDATE documents
				SET status     = $2,
				    updated_at = NOW()
				WHERE id = $1
			`, p.SubjectID, p.RoundOutcome)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply outcome to document")
			}
		}

		return nil
	})
	if err != nil {
		return ApplyDecisionResult{}, err
	}
	return res, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type roundScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRoundRepository) scanRound(row roundScanner) (*ApprovalRound, error) {
	round := &ApprovalRound{}
	err := row.Scan(
		&round.ID,
		&round.SubjectType,
		&round.SubjectID,
		&round.Mode,
		&round.Status,
		&round.Outcome,
		&round.Priority,
		&round.CreatedAt,
		&round.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return round, nil
}
