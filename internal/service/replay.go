package service

import (
	"fmt"
	"iter"

	"supplychain-ledger/internal/model"
)

// ReplayState is the product state implied by its history.
type ReplayState struct {
	ProductID    string
	CurrentOwner string
	Status       string
	Location     string
	Version      int64
	Entries      int
	Last         model.Transaction
}

// ChainProblem describes one broken link in a product history.
type ChainProblem struct {
	Sequence int64  `json:"sequence"`
	Problem  string `json:"problem"`
}

// Replay folds history into the state the product row must hold and checks
// sequence numbering and hash links on the way.
func Replay(history iter.Seq2[model.Transaction, error]) (*ReplayState, []ChainProblem, error) {
	state := &ReplayState{}
	var problems []ChainProblem
	prevHash := model.GenesisHash

	for entry, err := range history {
		if err != nil {
			return nil, nil, err
		}
		state.Entries++
		want := int64(state.Entries)

		if entry.Sequence != want {
			problems = append(problems, ChainProblem{Sequence: entry.Sequence, Problem: fmt.Sprintf("expected sequence %d", want)})
		}
		if state.Entries == 1 && entry.Action != model.ActionCreated {
			problems = append(problems, ChainProblem{Sequence: entry.Sequence, Problem: "history does not start with a created entry"})
		}
		if entry.PrevHash != prevHash {
			problems = append(problems, ChainProblem{Sequence: entry.Sequence, Problem: "prev_hash does not match predecessor"})
		}
		if entry.Hash != entry.ComputeHash(entry.PrevHash) {
			problems = append(problems, ChainProblem{Sequence: entry.Sequence, Problem: "hash does not match contents"})
		}
		if state.Entries > 1 && entry.Timestamp.Before(state.Last.Timestamp) {
			problems = append(problems, ChainProblem{Sequence: entry.Sequence, Problem: "timestamp moves backwards"})
		}

		prevHash = entry.Hash
		state.ProductID = entry.ProductID
		state.CurrentOwner = entry.ToUser
		state.Status = entry.ResultingStatus
		state.Location = entry.Location
		state.Version = entry.Sequence
		state.Last = entry
	}
	return state, problems, nil
}

// Diff lists fields where the product row disagrees with the replayed state.
func (s *ReplayState) Diff(p *model.Product) []string {
	var out []string
	if s.CurrentOwner != p.CurrentOwner {
		out = append(out, fmt.Sprintf("current_owner: row %q, history %q", p.CurrentOwner, s.CurrentOwner))
	}
	if s.Status != p.Status {
		out = append(out, fmt.Sprintf("status: row %q, history %q", p.Status, s.Status))
	}
	if s.Location != p.Location {
		out = append(out, fmt.Sprintf("location: row %q, history %q", p.Location, s.Location))
	}
	if s.Version != p.Version {
		out = append(out, fmt.Sprintf("version: row %d, history %d", p.Version, s.Version))
	}
	return out
}
