package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/veridian-labs/be-sdlc-approvals/internal/client"
	"github.com/veridian-labs/be-sdlc-approvals/internal/errors"
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// memStore is an in-memory stand-in for the pgx repositories. Typed views
// (memRounds, memRequests, ...) satisfy the store interfaces the services
// consume, reproducing the guards the SQL layer enforces: status
// compare-and-set on decisions, votes, rounds and requests, and one pending
// round/request per subject.
type memStore struct {
	mu sync.Mutex

	nextID     int
	sets       map[string]*repository.ApproverSet // subjectType/subjectID
	rounds     map[string]*repository.ApprovalRound
	decisions  map[string][]*repository.Decision // by round ID
	requests   map[string]*repository.StatusChangeRequest
	votes      map[string][]*repository.StatusChangeVote // by request ID
	documents  map[string]*repository.Document
	projects   map[string]*repository.Project
	signatures map[string]*repository.SignatureSubmission
	audit      []*repository.AuditLogEntry
}

func newMemStore() *memStore {
	return &memStore{
		sets:       make(map[string]*repository.ApproverSet),
		rounds:     make(map[string]*repository.ApprovalRound),
		decisions:  make(map[string][]*repository.Decision),
		requests:   make(map[string]*repository.StatusChangeRequest),
		votes:      make(map[string][]*repository.StatusChangeVote),
		documents:  make(map[string]*repository.Document),
		projects:   make(map[string]*repository.Project),
		signatures: make(map[string]*repository.SignatureSubmission),
	}
}

func (m *memStore) id() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

func subjectKey(subjectType repository.SubjectType, subjectID string) string {
	return string(subjectType) + "/" + subjectID
}

// ── approverSetStore ──────────────────────────────────────────────────────────

func (m *memStore) GetBySubject(ctx context.Context, subjectType repository.SubjectType, subjectID string) (*repository.ApproverSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[subjectKey(subjectType, subjectID)]
	if !ok {
		return nil, nil
	}
	cp := *set
	cp.Members = append([]repository.ApproverSetMember(nil), set.Members...)
	return &cp, nil
}

func (m *memStore) Save(ctx context.Context, set *repository.ApproverSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set.ID == "" {
		set.ID = m.id()
	}
	cp := *set
	cp.Members = append([]repository.ApproverSetMember(nil), set.Members...)
	m.sets[subjectKey(set.SubjectType, set.SubjectID)] = &cp
	return nil
}

// ── roundStore ────────────────────────────────────────────────────────────────

type memRounds struct{ m *memStore }

func (r memRounds) Recreate(ctx context.Context, round *repository.ApprovalRound, decisions []*repository.Decision) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for id, existing := range r.m.rounds {
		if existing.SubjectType == round.SubjectType && existing.SubjectID == round.SubjectID && existing.Status == repository.RoundPending {
			delete(r.m.rounds, id)
			delete(r.m.decisions, id)
		}
	}
	round.ID = r.m.id()
	round.Status = repository.RoundPending
	cp := *round
	r.m.rounds[round.ID] = &cp
	stored := make([]*repository.Decision, 0, len(decisions))
	for _, d := range decisions {
		d.ID = r.m.id()
		d.RoundID = round.ID
		d.Status = repository.DecisionPending
		dcp := *d
		stored = append(stored, &dcp)
	}
	r.m.decisions[round.ID] = stored
	return nil
}

func (r memRounds) GetByID(ctx context.Context, id string) (*repository.ApprovalRound, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	round, ok := r.m.rounds[id]
	if !ok {
		return nil, errors.NotFound("approval_round", id)
	}
	cp := *round
	return &cp, nil
}

func (r memRounds) GetActiveBySubject(ctx context.Context, subjectType repository.SubjectType, subjectID string) (*repository.ApprovalRound, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, round := range r.m.rounds {
		if round.SubjectType == subjectType && round.SubjectID == subjectID && round.Status == repository.RoundPending {
			cp := *round
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRounds) ApplyDecision(ctx context.Context, p repository.ApplyDecisionParams) (repository.ApplyDecisionResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var res repository.ApplyDecisionResult
	var target *repository.Decision
	for _, ds := range r.m.decisions {
		for _, d := range ds {
			if d.ID == p.DecisionID {
				target = d
			}
		}
	}
	if target == nil || target.Status != repository.DecisionPending {
		return res, errors.New(errors.ErrCodeAlreadyDecided, "decision has already been made")
	}
	target.Status = p.Outcome
	target.Comment = p.Comment

	if !p.Complete {
		return res, nil
	}
	round, ok := r.m.rounds[p.RoundID]
	if !ok || round.Status != repository.RoundPending {
		return res, nil
	}
	round.Status = repository.RoundCompleted
	outcome := p.RoundOutcome
	round.Outcome = &outcome
	res.RoundWon = true

	if p.SubjectType == repository.SubjectDocument {
		if doc, ok := r.m.documents[p.SubjectID]; ok {
			doc.Status = p.RoundOutcome
		}
	}
	return res, nil
}

// ── decisionStore ─────────────────────────────────────────────────────────────

func (m *memStore) GetByRoundID(ctx context.Context, roundID string) ([]*repository.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*repository.Decision, 0, len(m.decisions[roundID]))
	for _, d := range m.decisions[roundID] {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) GetPendingForUser(ctx context.Context, userID string) ([]*repository.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.Decision
	for roundID, ds := range m.decisions {
		round := m.rounds[roundID]
		if round == nil || round.Status != repository.RoundPending {
			continue
		}
		for _, d := range ds {
			if d.UserID == userID && d.Status == repository.DecisionPending {
				cp := *d
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (m *memStore) CountNonPending(ctx context.Context, roundID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, d := range m.decisions[roundID] {
		if d.Status != repository.DecisionPending {
			n++
		}
	}
	return n, nil
}

// ── statusRequestStore ────────────────────────────────────────────────────────

type memRequests struct{ m *memStore }

func (r memRequests) Create(ctx context.Context, req *repository.StatusChangeRequest, votes []*repository.StatusChangeVote) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.requests {
		if existing.ProjectID == req.ProjectID && existing.Status == repository.DecisionPending {
			return errors.New(errors.ErrCodeConflict, "a status change request is already pending for this project")
		}
	}
	req.ID = r.m.id()
	req.Status = repository.DecisionPending
	cp := *req
	r.m.requests[req.ID] = &cp
	stored := make([]*repository.StatusChangeVote, 0, len(votes))
	for _, v := range votes {
		v.ID = r.m.id()
		v.RequestID = req.ID
		v.Status = repository.DecisionPending
		vcp := *v
		stored = append(stored, &vcp)
	}
	r.m.votes[req.ID] = stored
	return nil
}

func (r memRequests) GetByID(ctx context.Context, id string) (*repository.StatusChangeRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	req, ok := r.m.requests[id]
	if !ok {
		return nil, errors.NotFound("status_change_request", id)
	}
	cp := *req
	return &cp, nil
}

func (r memRequests) GetPendingByProject(ctx context.Context, projectID string) (*repository.StatusChangeRequest, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, req := range r.m.requests {
		if req.ProjectID == projectID && req.Status == repository.DecisionPending {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memRequests) GetVotes(ctx context.Context, requestID string) ([]*repository.StatusChangeVote, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*repository.StatusChangeVote, 0, len(r.m.votes[requestID]))
	for _, v := range r.m.votes[requestID] {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

func (r memRequests) CountNonPendingVotes(ctx context.Context, requestID string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := 0
	for _, v := range r.m.votes[requestID] {
		if v.Status != repository.DecisionPending {
			n++
		}
	}
	return n, nil
}

func (r memRequests) RecreateVotes(ctx context.Context, requestID string, votes []*repository.StatusChangeVote) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored := make([]*repository.StatusChangeVote, 0, len(votes))
	for _, v := range votes {
		v.ID = r.m.id()
		v.RequestID = requestID
		v.Status = repository.DecisionPending
		cp := *v
		stored = append(stored, &cp)
	}
	r.m.votes[requestID] = stored
	return nil
}

func (r memRequests) ApplyVote(ctx context.Context, p repository.ApplyVoteParams) (repository.ApplyVoteResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var res repository.ApplyVoteResult
	var target *repository.StatusChangeVote
	for _, vs := range r.m.votes {
		for _, v := range vs {
			if v.ID == p.VoteID {
				target = v
			}
		}
	}
	if target == nil || target.Status != repository.DecisionPending {
		return res, errors.New(errors.ErrCodeAlreadyDecided, "vote has already been cast")
	}
	target.Status = p.Outcome
	target.Comment = p.Comment

	if !p.Resolve {
		return res, nil
	}
	req, ok := r.m.requests[p.RequestID]
	if !ok || req.Status != repository.DecisionPending {
		return res, nil
	}
	req.Status = p.RequestOutcome
	res.RequestWon = true

	if p.RequestOutcome == repository.DecisionApproved {
		if proj, ok := r.m.projects[p.ProjectID]; ok {
			proj.Status = p.ToStatus
		}
	}
	return res, nil
}

func (r memRequests) GetPendingVotesForUser(ctx context.Context, userID string) ([]*repository.StatusChangeVote, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*repository.StatusChangeVote
	for requestID, vs := range r.m.votes {
		req := r.m.requests[requestID]
		if req == nil || req.Status != repository.DecisionPending {
			continue
		}
		for _, v := range vs {
			if v.UserID == userID && v.Status == repository.DecisionPending {
				cp := *v
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

// ── documentStore / projectStore ──────────────────────────────────────────────

type memDocuments struct{ m *memStore }

func (d memDocuments) GetByID(ctx context.Context, id string) (*repository.Document, error) {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	doc, ok := d.m.documents[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	cp := *doc
	return &cp, nil
}

func (d memDocuments) UpdateStatus(ctx context.Context, id, status string) error {
	d.m.mu.Lock()
	defer d.m.mu.Unlock()
	doc, ok := d.m.documents[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	doc.Status = status
	return nil
}

type memProjects struct{ m *memStore }

func (p memProjects) GetByID(ctx context.Context, id string) (*repository.Project, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proj, ok := p.m.projects[id]
	if !ok {
		return nil, errors.NotFound("project", id)
	}
	cp := *proj
	return &cp, nil
}

func (p memProjects) UpdateStatus(ctx context.Context, id, status string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	proj, ok := p.m.projects[id]
	if !ok {
		return errors.NotFound("project", id)
	}
	proj.Status = status
	return nil
}

// ── auditStore ────────────────────────────────────────────────────────────────

func (m *memStore) Append(ctx context.Context, entry *repository.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.id()
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

func (m *memStore) GetByTarget(ctx context.Context, targetType, targetID string) ([]*repository.AuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.AuditLogEntry
	for _, e := range m.audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// auditActions returns the recorded action names for a target, in order.
func (m *memStore) auditActions(targetType, targetID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.audit {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e.Action)
		}
	}
	return out
}

// ── signatureStore ────────────────────────────────────────────────────────────

type memSignatures struct{ m *memStore }

func (s memSignatures) Create(ctx context.Context, sub *repository.SignatureSubmission) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub.ID = s.m.id()
	sub.Status = "pending"
	cp := *sub
	s.m.signatures[sub.ID] = &cp
	return nil
}

func (s memSignatures) GetByProviderRef(ctx context.Context, providerRef string) (*repository.SignatureSubmission, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, sub := range s.m.signatures {
		if sub.ProviderRef == providerRef {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, errors.NotFound("signature_submission", providerRef)
}

func (s memSignatures) MarkCompleted(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.signatures[id]
	if !ok {
		return errors.NotFound("signature_submission", id)
	}
	sub.Status = "completed"
	return nil
}

// ── collaborators ─────────────────────────────────────────────────────────────

// fakeIdentity resolves only the users it was seeded with.
type fakeIdentity struct {
	users map[string]client.User
}

func newFakeIdentity(ids ...string) *fakeIdentity {
	f := &fakeIdentity{users: make(map[string]client.User)}
	for _, id := range ids {
		f.users[id] = client.User{ID: id, Email: id + "@example.com", Name: id}
	}
	return f
}

func (f *fakeIdentity) ResolveUsers(ctx context.Context, ids []string) ([]client.User, error) {
	var out []client.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// fakeNotifier records published events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	EventType  string
	ResourceID string
	Recipients []string
}

func (f *fakeNotifier) PublishApprovalEvent(ctx context.Context, eventType, resourceType, resourceID, actorID string, recipients []string, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{EventType: eventType, ResourceID: resourceID, Recipients: recipients})
}

func (f *fakeNotifier) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeSigner returns a fixed provider reference.
type fakeSigner struct {
	ref  string
	err  error
	last client.SignatureRequest
}

func (f *fakeSigner) CreateSubmission(ctx context.Context, req client.SignatureRequest) (string, error) {
	f.last = req
	return f.ref, f.err
}

// ── test environment ──────────────────────────────────────────────────────────

type testEnv struct {
	store    *memStore
	identity *fakeIdentity
	notifier *fakeNotifier
	approval *ApprovalService
	status   *StatusService
}

func newTestEnv(knownUsers ...string) *testEnv {
	store := newMemStore()
	identity := newFakeIdentity(knownUsers...)
	notifier := &fakeNotifier{}
	log := zerolog.Nop()

	approval := NewApprovalService(
		store, memRounds{store}, store, memDocuments{store}, memRequests{store},
		store, identity, notifier, log,
	)
	status := NewStatusService(
		store, memRequests{store}, memProjects{store}, store, notifier, log,
	)
	return &testEnv{
		store:    store,
		identity: identity,
		notifier: notifier,
		approval: approval,
		status:   status,
	}
}

func (e *testEnv) addDocument(id string, signatureRouting bool) {
	e.store.documents[id] = &repository.Document{ID: id, Name: "Document " + id, Status: repository.DocumentDraft, SignatureRouting: signatureRouting}
}

func (e *testEnv) addProject(id, status string) {
	e.store.projects[id] = &repository.Project{ID: id, Name: "Project " + id, Status: status}
}
