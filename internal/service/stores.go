package service

import (
	"context"

	"github.com/veridian-labs/be-sdlc-approvals/internal/client"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// Consumer-side interfaces over the repository layer. The pgx-backed
// repositories satisfy them; tests substitute in-memory fakes.

type approverSetStore interface {
	GetBySubject(ctx context.Context, subjectType repository.SubjectType, subjectID string) (*repository.ApproverSet, error)
	Save(ctx context.Context, set *repository.ApproverSet) error
}

type roundStore interface {
	Recreate(ctx context.Context, round *repository.ApprovalRound, decisions []*repository.Decision) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRound, error)
	GetActiveBySubject(ctx context.Context, subjectType repository.SubjectType, subjectID string) (*repository.ApprovalRound, error)
	ApplyDecision(ctx context.Context, p repository.ApplyDecisionParams) (repository.ApplyDecisionResult, error)
}

type decisionStore interface {
	GetByRoundID(ctx context.Context, roundID string) ([]*repository.Decision, error)
	GetPendingForUser(ctx context.Context, userID string) ([]*repository.Decision, error)
	CountNonPending(ctx context.Context, roundID string) (int, error)
}

type statusRequestStore interface {
	Create(ctx context.Context, req *repository.StatusChangeRequest, votes []*repository.StatusChangeVote) error
	GetByID(ctx context.Context, id string) (*repository.StatusChangeRequest, error)
	GetPendingByProject(ctx context.Context, projectID string) (*repository.StatusChangeRequest, error)
	GetVotes(ctx context.Context, requestID string) ([]*repository.StatusChangeVote, error)
	CountNonPendingVotes(ctx context.Context, requestID string) (int, error)
	RecreateVotes(ctx context.Context, requestID string, votes []*repository.StatusChangeVote) error
	ApplyVote(ctx context.Context, p repository.ApplyVoteParams) (repository.ApplyVoteResult, error)
	GetPendingVotesForUser(ctx context.Context, userID string) ([]*repository.StatusChangeVote, error)
}

type documentStore interface {
	GetByID(ctx context.Context, id string) (*repository.Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

type projectStore interface {
	GetByID(ctx context.Context, id string) (*repository.Project, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

type auditStore interface {
	Append(ctx context.Context, entry *repository.AuditLogEntry) error
	GetByTarget(ctx context.Context, targetType, targetID string) ([]*repository.AuditLogEntry, error)
}

type signatureStore interface {
	Create(ctx context.Context, s *repository.SignatureSubmission) error
	GetByProviderRef(ctx context.Context, providerRef string) (*repository.SignatureSubmission, error)
	MarkCompleted(ctx context.Context, id string) error
}

// IdentityClientInterface resolves user information from the identity service.
type IdentityClientInterface interface {
	ResolveUsers(ctx context.Context, ids []string) ([]client.User, error)
}

// SignerClientInterface submits documents to the external e-signature
// provider.
type SignerClientInterface interface {
	CreateSubmission(ctx context.Context, req client.SignatureRequest) (string, error)
}

// Notifier publishes best-effort notification events. Implementations must
// never return errors to callers.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType, resourceType, resourceID, actorID string, recipients []string, payload map[string]interface{})
}
