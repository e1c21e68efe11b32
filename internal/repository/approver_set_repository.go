package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// ApproverSetRepository manages the standing approver configuration per
// subject. Set + members are always written together in one transaction.
type ApproverSetRepository struct {
	db *database.DB
}

// NewApproverSetRepository creates a new ApproverSetRepository.
func NewApproverSetRepository(db *database.DB) *ApproverSetRepository {
	return &ApproverSetRepository{db: db}
}

// GetBySubject returns the approver set bound to a subject, with members
// ordered by order_index. Returns nil when no set is configured.
func (r *ApproverSetRepository) GetBySubject(ctx context.Context, subjectType SubjectType, subjectID string) (*ApproverSet, error) {
	query := `
		SELECT id, subject_type, subject_id, mode, created_at, updated_at
		FROM approver_sets
		WHERE subject_type = $1 AND subject_id = $2
	`

	set := &ApproverSet{}
	err := r.db.QueryRow(ctx, query, subjectType, subjectID).Scan(
		&set.ID,
		&set.SubjectType,
		&set.SubjectID,
		&set.Mode,
		&set.CreatedAt,
		&set.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approver set")
	}

	members, err := r.getMembers(ctx, set.ID)
	if err != nil {
		return nil, err
	}
	set.Members = members
	return set, nil
}

// Save upserts the set for its subject and fully replaces the member list in
// one transaction. The caller has already validated ordering and uniqueness.
func (r *ApproverSetRepository) Save(ctx context.Context, set *ApproverSet) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		setQuery := `
			INSERT INTO approver_sets (subject_type, subject_id, mode)
			VALUES ($1, $2, $3::approval_mode)
			ON CONFLICT (subject_type, subject_id)
			DO UPDATE SET mode = EXCLUDED.mode, updated_at = NOW()
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, setQuery,
			set.SubjectType,
			set.SubjectID,
			set.Mode,
		).Scan(&set.ID, &set.CreatedAt, &set.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to save approver set")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM approver_set_members WHERE set_id = $1`, set.ID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear approver set members")
		}

		memberQuery := `
			INSERT INTO approver_set_members (set_id, user_id, email, order_index)
			VALUES ($1, $2, $3, $4)
		`
		for _, m := range set.Members {
			if _, err := tx.Exec(ctx, memberQuery, set.ID, m.UserID, m.Email, m.OrderIndex); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert approver set member")
			}
		}

		return nil
	})
}

func (r *ApproverSetRepository) getMembers(ctx context.Context, setID string) ([]ApproverSetMember, error) {
	query := `
		SELECT user_id, email, order_index
		FROM approver_set_members
		WHERE set_id = $1
		ORDER BY order_index ASC
	`

	rows, err := r.db.Query(ctx, query, setID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approver set members")
	}
	defer rows.Close()

	var members []ApproverSetMember
	for rows.Next() {
		var m ApproverSetMember
		if err := rows.Scan(&m.UserID, &m.Email, &m.OrderIndex); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approver set member")
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
