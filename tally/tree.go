// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tally provides a reference implementation of the per-round vote
// tally that grandpa.VotingRound treats as an external collaborator: it
// imports prevotes and precommits, maintains a weighted ancestor tree for
// each, and computes prevote-GHOST, estimate, finalized, and completable the
// way finality-grandpa's round.rs does (that file wasn't part of the
// retrieved source — voter.rs was — so the vote-graph here is a from-scratch
// but invariant-preserving restatement; see DESIGN.md).
package tally

import "github.com/luxfi/ids"

// weightedTree accumulates, for every block hash it has seen, the combined
// weight of votes for that block or any of its known descendants — a
// subtree sum over a tree built lazily from ancestry queries.
type weightedTree struct {
	base     ids.ID
	parent   map[ids.ID]ids.ID
	children map[ids.ID]map[ids.ID]struct{}
	number   map[ids.ID]uint64
	weight   map[ids.ID]uint64
}

func newWeightedTree(base ids.ID, baseNumber uint64) *weightedTree {
	t := &weightedTree{
		base:     base,
		parent:   make(map[ids.ID]ids.ID),
		children: make(map[ids.ID]map[ids.ID]struct{}),
		number:   make(map[ids.ID]uint64),
		weight:   make(map[ids.ID]uint64),
	}
	t.number[base] = baseNumber
	return t
}

// addChain credits weight w to every hash in chain (ordered from the vote's
// target down to, and including, the tree's base), recording parent/child
// edges as it goes.
func (t *weightedTree) addChain(chain []ids.ID, numbers []uint64, w uint64) {
	for i, h := range chain {
		t.number[h] = numbers[i]
		t.weight[h] += w
		if i+1 < len(chain) {
			parent := chain[i+1]
			t.parent[h] = parent
			kids, ok := t.children[parent]
			if !ok {
				kids = make(map[ids.ID]struct{})
				t.children[parent] = kids
			}
			kids[h] = struct{}{}
		}
	}
}

// ghost walks from the base toward the heaviest-weighted qualifying
// descendant at each step, returning the highest block with cumulative
// weight at or above threshold on some chain through it — the GHOST rule.
// Returns false if even the base does not carry threshold weight yet.
func (t *weightedTree) ghost(threshold uint64) (hash ids.ID, number uint64, ok bool) {
	if t.weight[t.base] < threshold {
		return ids.Empty, 0, false
	}

	current := t.base
	for {
		var best ids.ID
		var bestWeight uint64
		found := false
		for kid := range t.children[current] {
			w := t.weight[kid]
			if w < threshold {
				continue
			}
			if !found || w > bestWeight || (w == bestWeight && kid.String() < best.String()) {
				best, bestWeight, found = kid, w, true
			}
		}
		if !found {
			break
		}
		current = best
	}
	return current, t.number[current], true
}

// pathFromBase walks parent pointers from head back to the tree's base,
// returning hashes and numbers in ascending order (base first, head last).
// Returns ok=false if head is unreachable from base in this tree.
func (t *weightedTree) pathFromBase(head ids.ID) (hashes []ids.ID, numbers []uint64, ok bool) {
	cur := head
	for {
		hashes = append(hashes, cur)
		numbers = append(numbers, t.number[cur])
		if cur == t.base {
			break
		}
		parent, has := t.parent[cur]
		if !has {
			return nil, nil, false
		}
		cur = parent
	}
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
		numbers[i], numbers[j] = numbers[j], numbers[i]
	}
	return hashes, numbers, true
}
