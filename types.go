// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import (
	"fmt"

	"github.com/luxfi/ids"
)

// BlockRef identifies a block by its opaque hash and height. Heights are
// monotone along chain descent.
type BlockRef struct {
	Hash   ids.ID
	Number uint64
}

func (b BlockRef) String() string {
	return fmt.Sprintf("%s@%d", b.Hash, b.Number)
}

// Prevote addresses a block reference a voter wants to see included in the
// prevote-GHOST.
type Prevote struct {
	TargetHash   ids.ID
	TargetNumber uint64
}

// Precommit addresses a block reference a voter wants to see finalized.
type Precommit struct {
	TargetHash   ids.ID
	TargetNumber uint64
}

// Signature is an opaque, already-validated signature. The engine never
// inspects or verifies it; it is forwarded verbatim in equivocation reports.
type Signature []byte

// Message is an unsigned vote destined for the outgoing sink. Exactly one of
// Prevote or Precommit is set.
type Message struct {
	Prevote   *Prevote
	Precommit *Precommit
}

// PrevoteMessage wraps a Prevote as an outgoing Message.
func PrevoteMessage(p Prevote) Message {
	return Message{Prevote: &p}
}

// PrecommitMessage wraps a Precommit as an outgoing Message.
func PrecommitMessage(p Precommit) Message {
	return Message{Precommit: &p}
}

// SignedMessage bundles a vote with its signer and signature. The engine
// treats the signature as already validated by the environment before
// delivery.
type SignedMessage struct {
	Message   Message
	ID        ids.NodeID
	Signature Signature
}

// SignedVote pairs a single vote kind with the signature cast over it, used
// inside an Equivocation to report both conflicting votes.
type SignedVote[V any] struct {
	Vote      V
	Signature Signature
}

// Equivocation records two distinct signed votes of the same kind, same
// round, same signer, addressing different targets.
type Equivocation[V any] struct {
	RoundNumber uint64
	Identity    ids.NodeID
	First       SignedVote[V]
	Second      SignedVote[V]
}

// PrevoteEquivocation is an Equivocation over Prevote votes.
type PrevoteEquivocation = Equivocation[Prevote]

// PrecommitEquivocation is an Equivocation over Precommit votes.
type PrecommitEquivocation = Equivocation[Precommit]

// RoundState is the snapshot published by a round's vote tally.
//
// Invariant: Estimate is always an ancestor-or-equal of PrevoteGHOST when
// both are non-nil. Completable is monotone: once true for a round, it never
// reports false again. PrevoteGHOST, Estimate, and Finalized are each
// monotone along descent as more votes arrive.
type RoundState struct {
	PrevoteGHOST *BlockRef
	Estimate     *BlockRef
	Finalized    *BlockRef
	Completable  bool
}

// Equal reports whether two round states carry the same snapshot.
func (s RoundState) Equal(o RoundState) bool {
	return refEqual(s.PrevoteGHOST, o.PrevoteGHOST) &&
		refEqual(s.Estimate, o.Estimate) &&
		refEqual(s.Finalized, o.Finalized) &&
		s.Completable == o.Completable
}

func refEqual(a, b *BlockRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
