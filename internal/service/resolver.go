package service

import (
	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

// VoterState is the resolver's view of one approver inside a round or status
// change request. Both Decision and StatusChangeVote map onto it so a single
// resolver serves both flows.
type VoterState struct {
	UserID     string
	OrderIndex int
	Status     string // pending | approved | rejected
}

// Resolution is the resolver's verdict over a full voter set.
type Resolution struct {
	Complete bool
	Outcome  string // approved | rejected; meaningful only when Complete
}

// Resolve evaluates the full current voter set. The round is complete iff no
// voter remains pending; a single rejection vetoes the whole round regardless
// of mode or position. Always called on the complete set, never on an
// incremental counter.
func Resolve(states []VoterState) Resolution {
	rejected := false
	for _, s := range states {
		switch s.Status {
		case repository.DecisionPending:
			return Resolution{Complete: false}
		case repository.DecisionRejected:
			rejected = true
		}
	}

	outcome := repository.DecisionApproved
	if rejected {
		outcome = repository.DecisionRejected
	}
	return Resolution{Complete: true, Outcome: outcome}
}

// Eligible reports whether the voter at orderIndex may act now. In parallel
// mode every pending voter is eligible; in sequential mode only the pending
// voter with the lowest order index is.
func Eligible(states []VoterState, mode repository.ApprovalMode, orderIndex int) bool {
	if mode == repository.ModeParallel {
		return true
	}

	minPending := -1
	for _, s := range states {
		if s.Status != repository.DecisionPending {
			continue
		}
		if minPending < 0 || s.OrderIndex < minPending {
			minPending = s.OrderIndex
		}
	}
	return minPending == orderIndex
}

func decisionStates(decisions []*repository.Decision) []VoterState {
	states := make([]VoterState, 0, len(decisions))
	for _, d := range decisions {
		states = append(states, VoterState{UserID: d.UserID, OrderIndex: d.OrderIndex, Status: d.Status})
	}
	return states
}

func voteStates(votes []*repository.StatusChangeVote) []VoterState {
	states := make([]VoterState, 0, len(votes))
	for _, v := range votes {
		states = append(states, VoterState{UserID: v.UserID, OrderIndex: v.OrderIndex, Status: v.Status})
	}
	return states
}

// withDecided returns a copy of states with one voter moved to the given
// terminal status. Used to evaluate completion as if the pending write had
// already landed.
func withDecided(states []VoterState, userID, status string) []VoterState {
	out := make([]VoterState, len(states))
	copy(out, states)
	for i := range out {
		if out[i].UserID == userID {
			out[i].Status = status
		}
	}
	return out
}
