package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/client"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// SigningService routes documents flagged for digital-signature routing to
// the external e-signature provider and converts provider completion events
// into ordinary approval decisions. The engine never learns the provider's
// wire format; it only keeps the opaque submission reference.
type SigningService struct {
	documents  documentStore
	rounds     roundStore
	decisions  decisionStore
	signatures signatureStore
	signer     SignerClientInterface
	approvals  *ApprovalService
	audit      auditStore
	log        zerolog.Logger
}

// NewSigningService creates a new SigningService.
func NewSigningService(
	documents documentStore,
	rounds roundStore,
	decisions decisionStore,
	signatures signatureStore,
	signer SignerClientInterface,
	approvals *ApprovalService,
	audit auditStore,
	log zerolog.Logger,
) *SigningService {
	return &SigningService{
		documents:  documents,
		rounds:     rounds,
		decisions:  decisions,
		signatures: signatures,
		signer:     signer,
		approvals:  approvals,
		audit:      audit,
		log:        log,
	}
}

// SubmitForSignature sends a document's pending round to the e-signature
// provider with the approvers as the ordered recipient list. The provider
// call happens before any decision state exists for it, so a provider failure
// leaves the round untouched and manual approval still works.
func (s *SigningService) SubmitForSignature(ctx context.Context, documentID, actorID string) (*repository.SignatureSubmission, error) {
	if s.signer == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "signature routing is not enabled")
	}

	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.SignatureRouting {
		return nil, errors.InvalidInput("document_id", "document is not flagged for signature routing")
	}

	round, err := s.rounds.GetActiveBySubject(ctx, repository.SubjectDocument, documentID)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, errors.New(errors.ErrCodeConflict, "document has no pending approval round")
	}

	decisions, err := s.decisions.GetByRoundID(ctx, round.ID)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(decisions))
	for _, d := range decisions {
		if d.Status == repository.DecisionPending {
			recipients = append(recipients, d.Email)
		}
	}
	if len(recipients) == 0 {
		return nil, errors.New(errors.ErrCodeConflict, "no pending approvers to route for signature")
	}

	providerRef, err := s.signer.CreateSubmission(ctx, client.SignatureRequest{
		DocumentID:   doc.ID,
		DocumentName: doc.Name,
		Recipients:   recipients,
		Sequential:   round.Mode == repository.ModeSequential,
	})
	if err != nil {
		return nil, err
	}

	sub := &repository.SignatureSubmission{
		RoundID:     round.ID,
		DocumentID:  doc.ID,
		ProviderRef: providerRef,
	}
	if err := s.signatures.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &actorID,
		Action:     repository.ActionSignatureRequested,
		TargetType: string(repository.SubjectDocument),
		TargetID:   doc.ID,
		Metadata: map[string]interface{}{
			"round_id":     round.ID,
			"provider_ref": providerRef,
			"recipients":   len(recipients),
		},
	})

	s.log.Info().
		Str("document_id", doc.ID).
		Str("round_id", round.ID).
		Str("provider_ref", providerRef).
		Msg("Document submitted for signature")

	return sub, nil
}

// HandleRecipientCompleted processes a provider callback reporting that one
// recipient finished signing. The completed signature is fed through the
// normal decide path as an approval, so resolver semantics, audit entries and
// exactly-once outcome application all apply unchanged.
func (s *SigningService) HandleRecipientCompleted(ctx context.Context, providerRef, recipientEmail string) error {
	sub, err := s.signatures.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return err
	}

	decisions, err := s.decisions.GetByRoundID(ctx, sub.RoundID)
	if err != nil {
		return err
	}

	var signer *repository.Decision
	for _, d := range decisions {
		if d.Email == recipientEmail && d.Status == repository.DecisionPending {
			signer = d
			break
		}
	}
	if signer == nil {
		return errors.NotFound("pending decision for recipient", recipientEmail)
	}

	comment := "signed via e-signature provider"
	result, err := s.approvals.Decide(ctx, sub.RoundID, signer.UserID, repository.DecisionApproved, &comment)
	if err != nil {
		return err
	}

	s.appendAudit(ctx, &repository.AuditLogEntry{
		ActorID:    &signer.UserID,
		Action:     repository.ActionSignatureCompleted,
		TargetType: string(repository.SubjectDocument),
		TargetID:   sub.DocumentID,
		Metadata: map[string]interface{}{
			"round_id":     sub.RoundID,
			"provider_ref": providerRef,
			"recipient":    recipientEmail,
		},
	})

	if result.RoundCompleted {
		if err := s.signatures.MarkCompleted(ctx, sub.ID); err != nil {
			s.log.Warn().Err(err).
				Str("provider_ref", providerRef).
				Msg("Failed to mark signature submission completed")
		}
	}

	return nil
}

func (s *SigningService) appendAudit(ctx context.Context, entry *repository.AuditLogEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", entry.Action).
			Str("target_id", entry.TargetID).
			Msg("Failed to write audit log entry")
	}
}
