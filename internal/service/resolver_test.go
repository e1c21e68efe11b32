package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridian-labs/be-sdlc-approvals/internal/repository"
)

func states(statuses ...string) []VoterState {
	out := make([]VoterState, len(statuses))
	for i, s := range statuses {
		out[i] = VoterState{UserID: string(rune('a' + i)), OrderIndex: i, Status: s}
	}
	return out
}

func TestResolveIncomplete(t *testing.T) {
	cases := [][]VoterState{
		states("pending"),
		states("approved", "pending"),
		states("rejected", "pending", "approved"),
		states("pending", "pending", "pending"),
	}
	for _, c := range cases {
		res := Resolve(c)
		assert.False(t, res.Complete)
	}
}

func TestResolveAllApproved(t *testing.T) {
	for n := 1; n <= 4; n++ {
		var ss []string
		for i := 0; i < n; i++ {
			ss = append(ss, "approved")
		}
		res := Resolve(states(ss...))
		assert.True(t, res.Complete)
		assert.Equal(t, "approved", res.Outcome)
	}
}

func TestResolveSingleRejectionVetoes(t *testing.T) {
	// One rejection anywhere among otherwise-approved voters dominates.
	for n := 1; n <= 5; n++ {
		for pos := 0; pos < n; pos++ {
			ss := make([]string, n)
			for i := range ss {
				ss[i] = "approved"
			}
			ss[pos] = "rejected"
			res := Resolve(states(ss...))
			assert.True(t, res.Complete, "n=%d pos=%d", n, pos)
			assert.Equal(t, "rejected", res.Outcome, "n=%d pos=%d", n, pos)
		}
	}
}

func TestResolveExhaustiveThreeVoters(t *testing.T) {
	// Property check over every assignment for N=3: complete iff no pending,
	// rejected iff any rejected.
	statuses := []string{"pending", "approved", "rejected"}
	for _, a := range statuses {
		for _, b := range statuses {
			for _, c := range statuses {
				res := Resolve(states(a, b, c))
				anyPending := a == "pending" || b == "pending" || c == "pending"
				anyRejected := a == "rejected" || b == "rejected" || c == "rejected"

				assert.Equal(t, !anyPending, res.Complete, "%s/%s/%s", a, b, c)
				if res.Complete {
					if anyRejected {
						assert.Equal(t, "rejected", res.Outcome)
					} else {
						assert.Equal(t, "approved", res.Outcome)
					}
				}
			}
		}
	}
}

func TestEligibleParallel(t *testing.T) {
	s := states("pending", "pending", "pending")
	for i := range s {
		assert.True(t, Eligible(s, repository.ModeParallel, i))
	}
}

func TestEligibleSequential(t *testing.T) {
	s := states("pending", "pending", "pending")
	assert.True(t, Eligible(s, repository.ModeSequential, 0))
	assert.False(t, Eligible(s, repository.ModeSequential, 1))
	assert.False(t, Eligible(s, repository.ModeSequential, 2))

	// After the first approver acts, the second becomes the minimum pending.
	s = states("approved", "pending", "pending")
	assert.False(t, Eligible(s, repository.ModeSequential, 0))
	assert.True(t, Eligible(s, repository.ModeSequential, 1))
	assert.False(t, Eligible(s, repository.ModeSequential, 2))

	// Rejection also advances the turn; the round still completes later with
	// a rejected outcome.
	s = states("rejected", "pending", "pending")
	assert.True(t, Eligible(s, repository.ModeSequential, 1))
}

func TestEligibleSequentialStrictOrderAlwaysSucceeds(t *testing.T) {
	s := states("pending", "pending", "pending", "pending")
	for i := range s {
		assert.True(t, Eligible(s, repository.ModeSequential, i))
		s[i].Status = "approved"
	}
	res := Resolve(s)
	assert.True(t, res.Complete)
	assert.Equal(t, "approved", res.Outcome)
}

func TestWithDecided(t *testing.T) {
	s := states("pending", "pending")
	next := withDecided(s, "a", "approved")
	assert.Equal(t, "approved", next[0].Status)
	assert.Equal(t, "pending", next[1].Status)
	// Original untouched.
	assert.Equal(t, "pending", s[0].Status)
}
