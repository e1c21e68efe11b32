package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// SignatureRepository tracks external e-signature provider submissions by
// their opaque provider reference.
type SignatureRepository struct {
	db *database.DB
}

// NewSignatureRepository creates a new SignatureRepository.
func NewSignatureRepository(db *database.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// Create records a provider submission for a round.
func (r *SignatureRepository) Create(ctx context.Context, s *SignatureSubmission) error {
	query := `
		INSERT INTO signature_submissions (round_id, document_id, provider_ref, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query, s.RoundID, s.DocumentID, s.ProviderRef).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create signature submission")
	}
	s.Status = "pending"
	return nil
}

// GetByProviderRef looks up a submission by the provider's opaque reference.
func (r *SignatureRepository) GetByProviderRef(ctx context.Context, providerRef string) (*SignatureSubmission, error) {
	query := `
		SELECT id, round_id, document_id, provider_ref, status, created_at
		FROM signature_submissions
		WHERE provider_ref = $1
	`

	s := &SignatureSubmission{}
	err := r.db.QueryRow(ctx, query, providerRef).Scan(
		&s.ID,
		&s.RoundID,
		&s.DocumentID,
		&s.ProviderRef,
		&s.Status,
		&s.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("signature_submission", providerRef)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get signature submission")
	}
	return s, nil
}

// MarkCompleted flags a submission as fully signed.
func (r *SignatureRepository) MarkCompleted(ctx context.Context, id string) error {
	query := `
		UPDATE signature_submissions
		SET status = 'completed'
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("signature_submission", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to complete signature submission")
	}
	return nil
}
