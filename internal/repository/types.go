package repository

import "time"

// ── Enumerations ─────────────────────────────────────────────────────────────

// SubjectType identifies what kind of thing an approval is bound to.
type SubjectType string

const (
	SubjectDocument      SubjectType = "document"
	SubjectProjectStatus SubjectType = "project_status"
)

// ApprovalMode is the ordering discipline for a set of approvers.
type ApprovalMode string

const (
	ModeSequential ApprovalMode = "sequential"
	ModeParallel   ApprovalMode = "parallel"
)

// Round statuses.
const (
	RoundPending   = "pending"
	RoundCompleted = "completed"
)

// Decision / vote / request statuses. A decision never reverts to pending.
const (
	DecisionPending  = "pending"
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Document statuses owned by the engine.
const (
	DocumentDraft    = "draft"
	DocumentInReview = "in_review"
	DocumentApproved = "approved"
	DocumentRejected = "rejected"
)

// Audit actions (closed taxonomy).
const (
	ActionApproversConfigured   = "approvers_configured"
	ActionDecisionApproved      = "decision_approved"
	ActionDecisionRejected      = "decision_rejected"
	ActionRoundApproved         = "round_approved"
	ActionRoundRejected         = "round_rejected"
	ActionStatusUpdated         = "status_updated"
	ActionStatusChangeRequested = "status_change_requested"
	ActionStatusChangeApproved  = "status_change_approved"
	ActionStatusChangeRejected  = "status_change_rejected"
	ActionSignatureRequested    = "signature_requested"
	ActionSignatureCompleted    = "signature_completed"
)

// ── Domain records ───────────────────────────────────────────────────────────

// ApproverSet is the standing, ordered list of approvers bound to a subject.
type ApproverSet struct {
	ID          string
	SubjectType SubjectType
	SubjectID   string
	Mode        ApprovalMode
	Members     []ApproverSetMember
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApproverSetMember is one approver within a set. OrderIndex values are a
// contiguous 0-based permutation of the member list.
type ApproverSetMember struct {
	UserID     string
	Email      string
	OrderIndex int
}

// ApprovalRound is one in-flight instantiation of an ApproverSet against a
// subject. At most one round per subject may be pending.
type ApprovalRound struct {
	ID          string
	SubjectType SubjectType
	SubjectID   string
	Mode        ApprovalMode // copied from the set at creation
	Status      string       // pending | completed
	Outcome     *string      // approved | rejected, set on completion
	Priority    int
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Decision is one approver's vote within a round.
type Decision struct {
	ID         string
	RoundID    string
	UserID     string
	Email      string
	OrderIndex int
	Status     string // pending | approved | rejected
	Comment    *string
	DecidedAt  *time.Time
	CreatedAt  time.Time
}

// StatusChangeRequest gates a project lifecycle stage transition. At most one
// pending request per project.
type StatusChangeRequest struct {
	ID          string
	ProjectID   string
	FromStatus  string
	ToStatus    string
	RequestedBy string
	Status      string // pending | approved | rejected
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// StatusChangeVote is one approver's vote on a status change request. It
// mirrors Decision so both feed the same resolver.
type StatusChangeVote struct {
	ID         string
	RequestID  string
	UserID     string
	Email      string
	OrderIndex int
	Status     string // pending | approved | rejected
	Comment    *string
	DecidedAt  *time.Time
}

// AuditLogEntry is one immutable record in the audit log.
type AuditLogEntry struct {
	ID         string
	ActorID    *string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]interface{} // arbitrary JSON context
	CreatedAt  time.Time
}

// Project is the subject-store view of a project: the engine only owns its
// lifecycle status.
type Project struct {
	ID        string
	Name      string
	Status    string
	UpdatedAt time.Time
}

// Document is the subject-store view of a document: the engine only owns its
// approval status and signature-routing flag.
type Document struct {
	ID               string
	ProjectID        *string
	Name             string
	Status           string
	SignatureRouting bool
	UpdatedAt        time.Time
}

// SignatureSubmission records an external e-signature provider submission for
// a round, keyed by the provider's opaque reference.
type SignatureSubmission struct {
	ID          string
	RoundID     string
	DocumentID  string
	ProviderRef string
	Status      string // pending | completed
	CreatedAt   time.Time
}
