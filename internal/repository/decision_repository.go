package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// DecisionRepository reads individual approver decisions. Decision creation is
// handled by ApprovalRoundRepository.Recreate and the single mutation path is
// ApprovalRoundRepository.ApplyDecision.
type DecisionRepository struct {
	db *database.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *database.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// GetByRoundID returns all decisions for a round ordered by order_index.
func (r *DecisionRepository) GetByRoundID(ctx context.Context, roundID string) ([]*Decision, error) {
	query := `
		SELECT id, round_id, user_id, email, order_index, status,
		       comment, decided_at, created_at
		FROM approval_decisions
		WHERE round_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.Query(ctx, query, roundID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get decisions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetPendingForUser returns all pending decisions awaiting a user, restricted
// to rounds that are themselves still pending, oldest first.
func (r *DecisionRepository) GetPendingForUser(ctx context.Context, userID string) ([]*Decision, error) {
	query := `
		SELECT d.id, d.round_id, d.user_id, d.email, d.order_index, d.status,
		       d.comment, d.decided_at, d.created_at
		FROM approval_decisions d
		JOIN approval_rounds r ON r.id = d.round_id
		WHERE d.user_id = $1
		  AND d.status = 'pending'
		  AND r.status = 'pending'
		ORDER BY d.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending decisions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// CountNonPending returns how many decisions in a round have reached a
// terminal state. Used by the configure path's lock check.
func (r *DecisionRepository) CountNonPending(ctx context.Context, roundID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM approval_decisions
		WHERE round_id = $1
		  AND status <> 'pending'
	`

	var n int
	if err := r.db.QueryRow(ctx, query, roundID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count decided approvers")
	}
	return n, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *DecisionRepository) scanRows(rows pgx.Rows) ([]*Decision, error) {
	var decisions []*Decision
	for rows.Next() {
		d := &Decision{}
		err := rows.Scan(
			&d.ID,
			&d.RoundID,
			&d.UserID,
			&d.Email,
			&d.OrderIndex,
			&d.Status,
			&d.Comment,
			&d.DecidedAt,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan decision")
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
