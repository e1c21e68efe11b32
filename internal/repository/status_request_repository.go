package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// StatusRequestRepository manages status change requests and their per-approver
// votes. Request + votes are created together in one transaction; vote
// resolution uses the same compare-and-set discipline as approval rounds.
type StatusRequestRepository struct {
	db *database.DB
}

// NewStatusRequestRepository creates a new StatusRequestRepository.
func NewStatusRequestRepository(db *database.DB) *StatusRequestRepository {
	return &StatusRequestRepository{db: db}
}

// Create inserts a request and one pending vote per approver in one
// transaction. The partial unique index on (project_id) WHERE status='pending'
// turns a concurrent duplicate into an error surfaced as a conflict.
func (r *StatusRequestRepository) Create(ctx context.Context, req *StatusChangeRequest, votes []*StatusChangeVote) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		reqQuery := `
			INSERT INTO status_change_requests
			    (project_id, from_status, to_status, requested_by, status)
			VALUES ($1, $2, $3, $4, 'pending'::status_request_status)
			RETURNING id, created_at
		`

		err := tx.QueryRow(ctx, reqQuery,
			req.ProjectID,
			req.FromStatus,
			req.ToStatus,
			req.RequestedBy,
		).Scan(&req.ID, &req.CreatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConflict, "failed to create status change request")
		}
		req.Status = DecisionPending

		voteQuery := `
			INSERT INTO status_change_votes (request_id, user_id, email, order_index, status)
			VALUES ($1, $2, $3, $4, 'pending'::decision_status)
			RETURNING id
		`
		for _, v := range votes {
			v.RequestID = req.ID
			v.Status = DecisionPending
			if err := tx.QueryRow(ctx, voteQuery, v.RequestID, v.UserID, v.Email, v.OrderIndex).Scan(&v.ID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create status change vote")
			}
		}

		return nil
	})
}

// GetByID retrieves a request by its primary key.
func (r *StatusRequestRepository) GetByID(ctx context.Context, id string) (*StatusChangeRequest, error) {
	query := `
		SELECT id, project_id, from_status, to_status, requested_by, status,
		       created_at, resolved_at
		FROM status_change_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("status_change_request", id)
	}
	return req, err
}

// GetPendingByProject returns the project's pending request, or nil.
func (r *StatusRequestRepository) GetPendingByProject(ctx context.Context, projectID string) (*StatusChangeRequest, error) {
	query := `
		SELECT id, project_id, from_status, to_status, requested_by, status,
		       created_at, resolved_at
		FROM status_change_requests
		WHERE project_id = $1 AND status = 'pending'
		LIMIT 1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, projectID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// GetVotes returns all votes for a request ordered by order_index.
func (r *StatusRequestRepository) GetVotes(ctx context.Context, requestID string) ([]*StatusChangeVote, error) {
	query := `
		SELECT id, request_id, user_id, email, order_index, status, comment, decided_at
		FROM status_change_votes
		WHERE request_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get status change votes")
	}
	defer rows.Close()

	var votes []*StatusChangeVote
	for rows.Next() {
		v := &StatusChangeVote{}
		err := rows.Scan(
			&v.ID,
			&v.RequestID,
			&v.UserID,
			&v.Email,
			&v.OrderIndex,
			&v.Status,
			&v.Comment,
			&v.DecidedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan status change vote")
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// RecreateVotes replaces all votes on a still-pending request with a fresh
// pending set, in one transaction. Used when the approver list is
// reconfigured before anyone has voted.
func (r *StatusRequestRepository) RecreateVotes(ctx context.Context, requestID string, votes []*StatusChangeVote) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM status_change_votes WHERE request_id = $1`, requestID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear status change votes")
		}

		voteQuery := `
			INSERT INTO status_change_votes (request_id, user_id, email, order_index, status)
			VALUES ($1, $2, $3, $4, 'pending'::decision_status)
			RETURNING id
		`
		for _, v := range votes {
			v.RequestID = requestID
			v.Status = DecisionPending
			if err := tx.QueryRow(ctx, voteQuery, v.RequestID, v.UserID, v.Email, v.OrderIndex).Scan(&v.ID); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to recreate status change vote")
			}
		}
		return nil
	})
}

// CountNonPendingVotes returns how many votes on a request have reached a
// terminal state.
func (r *StatusRequestRepository) CountNonPendingVotes(ctx context.Context, requestID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM status_change_votes
		WHERE request_id = $1
		  AND status <> 'pending'
	`

	var n int
	if err := r.db.QueryRow(ctx, query, requestID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count decided votes")
	}
	return n, nil
}

// ApplyVoteParams describes one vote write plus, when the resolver determined
// the request is resolved, the resolution to attempt.
type ApplyVoteParams struct {
	VoteID  string
	Outcome string // approved | rejected
	Comment *string

	// Resolution, attempted only when Resolve is true.
	Resolve        bool
	RequestID      string
	RequestOutcome string // approved | rejected
	ProjectID      string
	ToStatus       string // applied to the project only on approval
}

// ApplyVoteResult reports what the transaction actually changed.
type ApplyVoteResult struct {
	// RequestWon is true when this call resolved the request. Exactly one of
	// any concurrent resolvers sees true.
	RequestWon bool
}

// ApplyVote records a vote and, when it resolves the request, marks the
// request and (on approval) moves the project's live status — all in one
// transaction, mirroring ApprovalRoundRepository.ApplyDecision.
func (r *StatusRequestRepository) ApplyVote(ctx context.Context, p ApplyVoteParams) (ApplyVoteResult, error) {
	var res ApplyVoteResult

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var voteID string
		err := tx.QueryRow(ctx, `
			UPDATE status_change_votes
			SET status     = $2::decision_status,
			    comment    = $3,
			    decided_at = NOW()
			WHERE id = $1
			  AND status = 'pending'
			RETURNING id
		`, p.VoteID, p.Outcome, p.Comment).Scan(&voteID)
		if err == pgx.ErrNoRows {
			return errors.New(errors.ErrCodeAlreadyDecided, "vote has already been cast")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record vote")
		}

		if !p.Resolve {
			return nil
		}

		var requestID string
		err = tx.QueryRow(ctx, `
			UPDATE status_change_requests
			SET status      = $2::status_request_status,
			    resolved_at = NOW()
			WHERE id = $1
			  AND status = 'pending'
			RETURNING id
		`, p.RequestID, p.RequestOutcome).Scan(&requestID)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve status change request")
		}
		res.RequestWon = true

		if p.RequestOutcome == DecisionApproved {
			_, err := tx.Exec(ctx, `
				UPDATE projects
				SET status     = $2,
				    updated_at = NOW()
				WHERE id = $1
			`, p.ProjectID, p.ToStatus)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to apply project status")
			}
		}

		return nil
	})
	if err != nil {
		return ApplyVoteResult{}, err
	}
	return res, nil
}

// GetPendingVotesForUser returns pending votes awaiting a user across all
// pending requests, oldest first.
func (r *StatusRequestRepository) GetPendingVotesForUser(ctx context.Context, userID string) ([]*StatusChangeVote, error) {
	query := `
		SELECT v.id, v.request_id, v.user_id, v.email, v.order_index, v.status,
		       v.comment, v.decided_at
		FROM status_change_votes v
		JOIN status_change_requests q ON q.id = v.request_id
		WHERE v.user_id = $1
		  AND v.status = 'pending'
		  AND q.status = 'pending'
		ORDER BY q.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending votes")
	}
	defer rows.Close()

	var votes []*StatusChangeVote
	for rows.Next() {
		v := &StatusChangeVote{}
		err := rows.Scan(
			&v.ID,
			&v.RequestID,
			&v.UserID,
			&v.Email,
			&v.OrderIndex,
			&v.Status,
			&v.Comment,
			&v.DecidedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending vote")
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *StatusRequestRepository) scanRequest(row requestScanner) (*StatusChangeRequest, error) {
	req := &StatusChangeRequest{}
	err := row.Scan(
		&req.ID,
		&req.ProjectID,
		&req.FromStatus,
		&req.ToStatus,
		&req.RequestedBy,
		&req.Status,
		&req.CreatedAt,
		&req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
