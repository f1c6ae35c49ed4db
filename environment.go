// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import "github.com/luxfi/ids"

// Chain answers ancestry and best-chain queries against the block DAG. The
// engine never stores blocks itself; every structural question about the
// chain is routed through this interface.
type Chain interface {
	// Ancestry returns the ordered path of intermediate hashes from head
	// down toward (excluding) base and head itself, or ErrNotDescendant if
	// head is not a descendant of base.
	Ancestry(base, head ids.ID) ([]ids.ID, error)

	// BestChainContaining returns the tip of the best chain extension
	// through h, or ok=false if h is unknown to the chain.
	BestChainContaining(h ids.ID) (tip BlockRef, ok bool)
}

// Timer is an opaque future-value supplied by the environment: the prevote
// timer should fire at round_start+2*T_gossip, the precommit timer at
// round_start+4*T_gossip. The engine only ever asks whether it has fired; it
// never reads a clock directly.
type Timer interface {
	// Fired reports whether the timer has elapsed. Implementations must be
	// idempotent: once true, it stays true for the life of the timer.
	Fired() bool
}

// IncomingStream delivers pre-verified SignedMessages for a round, in
// delivery order.
type IncomingStream interface {
	// Poll returns the next ready message, or ok=false if none is ready
	// right now. It never blocks.
	Poll() (msg SignedMessage, ok bool, err error)
}

// OutgoingSink accepts unsigned Messages for a round. The environment
// decides whether to actually transmit, signs, gossips, and loops the
// resulting signed message back into the corresponding IncomingStream.
type OutgoingSink interface {
	// TrySend attempts to enqueue msg without blocking. ok is false if the
	// sink is currently applying backpressure; msg must then be retried.
	TrySend(msg Message) (ok bool, err error)

	// Flush reports whether every previously accepted message has drained
	// out of the sink.
	Flush() (flushed bool, err error)
}

// RoundData is everything needed to participate in a round.
type RoundData struct {
	PrevoteTimer   Timer
	PrecommitTimer Timer
	Voters         map[ids.NodeID]uint64
	Incoming       IncomingStream
	Outgoing       OutgoingSink
}

// Tally is the per-round vote-counting collaborator: the voter engine
// drives it with incoming votes and reads back prevote-GHOST, estimate,
// finalized, and completable, but never computes any of them itself. See
// package tally for a reference implementation.
type Tally interface {
	// Number returns the round number this tally counts votes for.
	Number() uint64

	// Base returns the round's base block reference.
	Base() BlockRef

	// State returns the current snapshot of counted votes.
	State() RoundState

	// ImportPrevote records a prevote from id. It returns a non-nil
	// equivocation if id had already voted for a different target in this
	// round; re-delivering an identical vote is a no-op.
	ImportPrevote(chain Chain, vote Prevote, id ids.NodeID, sig Signature) (*PrevoteEquivocation, error)

	// ImportPrecommit records a precommit from id, with the same
	// equivocation/idempotence contract as ImportPrevote.
	ImportPrecommit(chain Chain, vote Precommit, id ids.NodeID, sig Signature) (*PrecommitEquivocation, error)
}

// TallyFactory constructs the vote-counting Tally for a new round. It is
// supplied by the caller wiring the engine together (see package tally),
// keeping the engine itself free of any concrete vote-counting algorithm.
type TallyFactory func(roundNumber uint64, base BlockRef, voters map[ids.NodeID]uint64) Tally

// Environment is the external collaborator the voter engine runs against. The
// engine itself never authenticates messages, never persists anything, and
// never reads a clock; all of that is left to the Environment.
type Environment interface {
	Chain

	// RoundData produces the data necessary to start round n.
	RoundData(n uint64) (RoundData, error)

	// Completed notifies the environment that round n has finished, with
	// its final tallied state.
	Completed(n uint64, state RoundState)

	// FinalizeBlock notifies the environment that ref should be considered
	// irrevocably finalized.
	FinalizeBlock(ref BlockRef)

	// PrevoteEquivocation reports an equivocation detected among prevotes
	// in round n.
	PrevoteEquivocation(n uint64, eq PrevoteEquivocation)

	// PrecommitEquivocation reports an equivocation detected among
	// precommits in round n.
	PrecommitEquivocation(n uint64, eq PrecommitEquivocation)
}
