// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tally

import (
	"errors"

	"github.com/luxfi/grandpa"
	"github.com/luxfi/ids"
)

// Round is the reference grandpa.Tally implementation: it counts weighted
// prevotes and precommits against two lazily-built ancestor trees and
// derives prevote-GHOST, estimate, finalized, and completable from them.
type Round struct {
	number      uint64
	base        grandpa.BlockRef
	voters      map[ids.NodeID]uint64
	totalWeight uint64
	threshold   uint64

	prevoteVotes   map[ids.NodeID]grandpa.SignedVote[grandpa.Prevote]
	precommitVotes map[ids.NodeID]grandpa.SignedVote[grandpa.Precommit]

	prevotes   *weightedTree
	precommits *weightedTree

	completableSticky bool
}

// New constructs a Round tally for roundNumber, rooted at base, weighted by
// voters. It has exactly grandpa.TallyFactory's signature, so tally.New can
// be passed wherever a TallyFactory is expected.
func New(roundNumber uint64, base grandpa.BlockRef, voters map[ids.NodeID]uint64) grandpa.Tally {
	var total uint64
	for _, w := range voters {
		total += w
	}

	threshold := total
	if total > 0 {
		threshold = total - (total-1)/3
	}

	return &Round{
		number:         roundNumber,
		base:           base,
		voters:         voters,
		totalWeight:    total,
		threshold:      threshold,
		prevoteVotes:   make(map[ids.NodeID]grandpa.SignedVote[grandpa.Prevote]),
		precommitVotes: make(map[ids.NodeID]grandpa.SignedVote[grandpa.Precommit]),
		prevotes:       newWeightedTree(base.Hash, base.Number),
		precommits:     newWeightedTree(base.Hash, base.Number),
	}
}

// Number returns the round number.
func (r *Round) Number() uint64 { return r.number }

// Base returns the round's base block reference.
func (r *Round) Base() grandpa.BlockRef { return r.base }

// ImportPrevote records a prevote from id, returning an equivocation if id
// had already prevoted for a different target this round. A repeat of an
// already-imported vote is a no-op: it changes no state and produces no
// equivocation.
func (r *Round) ImportPrevote(chain grandpa.Chain, vote grandpa.Prevote, id ids.NodeID, sig grandpa.Signature) (*grandpa.PrevoteEquivocation, error) {
	weight, isVoter := r.voters[id]
	if !isVoter || weight == 0 {
		return nil, nil
	}

	if existing, seen := r.prevoteVotes[id]; seen {
		if existing.Vote == vote {
			return nil, nil
		}
		return &grandpa.PrevoteEquivocation{
			RoundNumber: r.number,
			Identity:    id,
			First:       existing,
			Second:      grandpa.SignedVote[grandpa.Prevote]{Vote: vote, Signature: sig},
		}, nil
	}

	r.prevoteVotes[id] = grandpa.SignedVote[grandpa.Prevote]{Vote: vote, Signature: sig}
	target := grandpa.BlockRef{Hash: vote.TargetHash, Number: vote.TargetNumber}
	if err := r.addVote(chain, r.prevotes, target, weight); err != nil {
		return nil, err
	}
	return nil, nil
}

// ImportPrecommit records a precommit from id, with the same equivocation
// and idempotence contract as ImportPrevote.
func (r *Round) ImportPrecommit(chain grandpa.Chain, vote grandpa.Precommit, id ids.NodeID, sig grandpa.Signature) (*grandpa.PrecommitEquivocation, error) {
	weight, isVoter := r.voters[id]
	if !isVoter || weight == 0 {
		return nil, nil
	}

	if existing, seen := r.precommitVotes[id]; seen {
		if existing.Vote == vote {
			return nil, nil
		}
		return &grandpa.PrecommitEquivocation{
			RoundNumber: r.number,
			Identity:    id,
			First:       existing,
			Second:      grandpa.SignedVote[grandpa.Precommit]{Vote: vote, Signature: sig},
		}, nil
	}

	r.precommitVotes[id] = grandpa.SignedVote[grandpa.Precommit]{Vote: vote, Signature: sig}
	target := grandpa.BlockRef{Hash: vote.TargetHash, Number: vote.TargetNumber}
	if err := r.addVote(chain, r.precommits, target, weight); err != nil {
		return nil, err
	}
	return nil, nil
}

// addVote credits weight to target and every ancestor of target down to the
// round's base inside tree. A vote that does not descend from base is
// dropped silently: the environment is expected to only deliver votes for
// known descendants of base.
func (r *Round) addVote(chain grandpa.Chain, tree *weightedTree, target grandpa.BlockRef, weight uint64) error {
	if target.Hash == r.base.Hash {
		tree.addChain([]ids.ID{r.base.Hash}, []uint64{r.base.Number}, weight)
		return nil
	}

	path, err := chain.Ancestry(r.base.Hash, target.Hash)
	if errors.Is(err, grandpa.ErrNotDescendant) {
		return nil
	}
	if err != nil {
		return err
	}

	full := make([]ids.ID, 0, len(path)+2)
	numbers := make([]uint64, 0, len(path)+2)

	full = append(full, target.Hash)
	numbers = append(numbers, target.Number)

	n := target.Number
	for _, h := range path {
		n--
		full = append(full, h)
		numbers = append(numbers, n)
	}

	full = append(full, r.base.Hash)
	numbers = append(numbers, r.base.Number)

	tree.addChain(full, numbers, weight)
	return nil
}

// State computes the current snapshot: prevote-GHOST, estimate, finalized,
// and completable.
//
// completable is latched: once any computation below reports true, it stays
// true for the life of the round, which keeps it monotone even though the
// "estimate equals prevote-GHOST" condition it depends on can otherwise
// flicker as both values move up with more votes.
func (r *Round) State() grandpa.RoundState {
	var prevoteGHOST, estimate, finalized *grandpa.BlockRef

	if hash, number, ok := r.prevotes.ghost(r.threshold); ok {
		prevoteGHOST = &grandpa.BlockRef{Hash: hash, Number: number}
	}
	if hash, number, ok := r.precommits.ghost(r.threshold); ok {
		finalized = &grandpa.BlockRef{Hash: hash, Number: number}
	}

	castPrecommitWeight := r.castWeight(r.precommitVotes)
	remaining := r.totalWeight - castPrecommitWeight

	completable := remaining == 0

	if prevoteGHOST != nil {
		estimate = r.estimateAlong(*prevoteGHOST, remaining)
		if estimate != nil && *estimate == *prevoteGHOST {
			completable = true
		}
	}

	r.completableSticky = r.completableSticky || completable

	return grandpa.RoundState{
		PrevoteGHOST: prevoteGHOST,
		Estimate:     estimate,
		Finalized:    finalized,
		Completable:  r.completableSticky,
	}
}

// estimateAlong finds the highest block on the base..ghost chain for which
// the precommit weight already cast for it-or-better, plus every voter who
// has not yet cast a precommit at all (who could still vote for it), can
// still reach threshold — i.e. the highest candidate that remains reachable.
func (r *Round) estimateAlong(ghost grandpa.BlockRef, remaining uint64) *grandpa.BlockRef {
	hashes, numbers, ok := r.prevotes.pathFromBase(ghost.Hash)
	if !ok {
		ref := r.base
		return &ref
	}

	for i := len(hashes) - 1; i >= 0; i-- {
		committed := r.precommits.weight[hashes[i]]
		if committed+remaining >= r.threshold {
			return &grandpa.BlockRef{Hash: hashes[i], Number: numbers[i]}
		}
	}

	ref := r.base
	return &ref
}

// castWeight sums the weight of every voter present in cast, regardless of
// which target each one voted for.
func (r *Round) castWeight(cast map[ids.NodeID]grandpa.SignedVote[grandpa.Precommit]) uint64 {
	var total uint64
	for id := range cast {
		total += r.voters[id]
	}
	return total
}
