package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veridian-labs/be-sdlc-approvals/internal/database"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
)

// The engine does not own document content or project metadata; these
// repositories expose only the status fields the approval engine reads and
// writes.

// DocumentRepository is the subject store for document approval subjects.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByID retrieves a document's engine-owned fields.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT id, project_id, name, status, signature_routing, updated_at
		FROM documents
		WHERE id = $1
	`

	d := &Document{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.ProjectID,
		&d.Name,
		&d.Status,
		&d.SignatureRouting,
		&d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get document")
	}
	return d, nil
}

// UpdateStatus sets the document's approval status.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE documents
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("document", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update document status")
	}
	return nil
}

// ProjectRepository is the subject store for project status subjects.
type ProjectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *database.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetByID retrieves a project's engine-owned fields.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	query := `
		SELECT id, name, status, updated_at
		FROM projects
		WHERE id = $1
	`

	p := &Project{}
	err := r.db.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Status, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("project", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get project")
	}
	return p, nil
}

// UpdateStatus sets the project's lifecycle stage. The gated path applies the
// stage inside StatusRequestRepository.ApplyVote instead; this direct path is
// for projects with no configured approver set.
func (r *ProjectRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE projects
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("project", id)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update project status")
	}
	return nil
}
