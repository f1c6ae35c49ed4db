// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import (
	"errors"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// phase is the per-round state machine: Start -> Prevoted -> Precommitted.
type phase int

const (
	phaseStart phase = iota
	phasePrevoted
	phasePrecommitted
)

func (p phase) String() string {
	switch p {
	case phaseStart:
		return "start"
	case phasePrevoted:
		return "prevoted"
	case phasePrecommitted:
		return "precommitted"
	default:
		return "unknown"
	}
}

// finalizationSink is where a VotingRound pushes blocks it has finalized.
// Every round created by a Voter shares the same sink, so finalizations from
// any round converge on the Voter. It is not safe for concurrent use; the
// engine is a single cooperative task and nothing here is polled from more
// than one goroutine at a time.
type finalizationSink struct {
	items []BlockRef
}

func (f *finalizationSink) push(ref BlockRef) {
	f.items = append(f.items, ref)
}

func (f *finalizationSink) drain() []BlockRef {
	items := f.items
	f.items = nil
	return items
}

// VotingRound drives a single numbered round: it ingests votes, imports them
// into the tally, runs the two timers, constructs the prevote/precommit, and
// reports equivocations and finalizations.
type VotingRound struct {
	env   Environment
	log   log.Logger
	tally Tally

	number uint64
	base   BlockRef

	incoming IncomingStream
	outgoing *BufferedSink

	prevoteTimer   Timer
	precommitTimer Timer
	phase          phase

	bridgeWriter *BridgeWriter
	bridged      bool

	lastRoundState *BridgeReader
	primaryHint    *BlockRef

	finalized *finalizationSink
}

// NewVotingRound constructs a round ready to be polled. lastRoundState is
// the bridge reader into the predecessor round's live state; a round is only
// ever created once its predecessor is completable.
func NewVotingRound(
	env Environment,
	logger log.Logger,
	number uint64,
	base BlockRef,
	tally Tally,
	data RoundData,
	lastRoundState *BridgeReader,
	finalized *finalizationSink,
) *VotingRound {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &VotingRound{
		env:            env,
		log:            logger,
		tally:          tally,
		number:         number,
		base:           base,
		incoming:       data.Incoming,
		outgoing:       NewBufferedSink(data.Outgoing),
		prevoteTimer:   data.PrevoteTimer,
		precommitTimer: data.PrecommitTimer,
		phase:          phaseStart,
		lastRoundState: lastRoundState,
		finalized:      finalized,
	}
}

// Number returns the round number.
func (r *VotingRound) Number() uint64 { return r.number }

// State returns the round's current tallied state.
func (r *VotingRound) State() RoundState { return r.tally.State() }

// IsPrecommitted reports whether the round's state machine has reached the
// terminal Precommitted phase.
func (r *VotingRound) IsPrecommitted() bool { return r.phase == phasePrecommitted }

// SetPrimaryHint records an optional primary-proposer hint used by the
// prevote target rule. It must be set, if at all, before the round's first
// Poll that casts a prevote.
func (r *VotingRound) SetPrimaryHint(hint *BlockRef) { r.primaryHint = hint }

// BridgeState publishes this round's live state to a successor and returns
// the reader half. Bridging a round more than once is a programming error
// and is logged as a warning (the second caller still gets a working
// reader).
func (r *VotingRound) BridgeState() *BridgeReader {
	if r.bridged {
		r.log.Warn("round bridged more than once", "round", r.number)
	}
	r.bridged = true
	writer, reader := BridgeState(r.tally.State())
	r.bridgeWriter = writer
	return reader
}

// Poll drives one iteration of the round: drain incoming votes, publish any
// state change, attempt the prevote and precommit steps, and drive the
// outgoing sink. It returns ready once the tally is completable and the sink
// is fully flushed; the round remains poll-live for further inbound votes
// even after reporting ready.
func (r *VotingRound) Poll() (ready bool, err error) {
	pre := r.tally.State()

	for {
		msg, ok, err := r.incoming.Poll()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		if err := r.importMessage(msg); err != nil {
			return false, err
		}
	}

	post := r.tally.State()
	r.notify(pre, post)

	lastState := r.lastRoundState.Get()
	if err := r.prevoteStep(lastState); err != nil {
		return false, err
	}
	if err := r.precommitStep(lastState); err != nil {
		return false, err
	}

	flushed, err := r.outgoing.Poll()
	if err != nil {
		return false, err
	}
	if !flushed {
		return false, nil
	}

	return post.Completable, nil
}

func (r *VotingRound) importMessage(msg SignedMessage) error {
	switch {
	case msg.Message.Prevote != nil:
		eq, err := r.tally.ImportPrevote(r.env, *msg.Message.Prevote, msg.ID, msg.Signature)
		if err != nil {
			return err
		}
		if eq != nil {
			r.env.PrevoteEquivocation(r.number, *eq)
		}
	case msg.Message.Precommit != nil:
		eq, err := r.tally.ImportPrecommit(r.env, *msg.Message.Precommit, msg.ID, msg.Signature)
		if err != nil {
			return err
		}
		if eq != nil {
			r.env.PrecommitEquivocation(r.number, *eq)
		}
	}
	return nil
}

// notify publishes a changed state to the bridge and, if this round just
// finalized a block while in Precommitted and the round is completable,
// pushes the finalization for the Voter to pick up.
func (r *VotingRound) notify(pre, post RoundState) {
	if pre.Equal(post) {
		return
	}

	if r.bridgeWriter != nil {
		r.bridgeWriter.Update(post)
	}

	if refEqual(pre.Finalized, post.Finalized) || !post.Completable {
		return
	}
	if r.phase == phasePrecommitted && post.Finalized != nil {
		r.finalized.push(*post.Finalized)
	}
}

// prevoteStep only acts in phaseStart.
func (r *VotingRound) prevoteStep(lastState RoundState) error {
	if r.phase != phaseStart {
		return nil
	}

	shouldPrevote := r.prevoteTimer.Fired() || r.tally.State().Completable
	if !shouldPrevote {
		return nil
	}

	target, err := r.constructPrevote(lastState)
	if err != nil {
		return err
	}
	if target != nil {
		r.log.Debug("casting prevote", "round", r.number, "target", target)
		r.outgoing.Push(PrevoteMessage(Prevote{TargetHash: target.Hash, TargetNumber: target.Number}))
	}
	r.phase = phasePrevoted
	return nil
}

// precommitStep only acts in phasePrevoted.
func (r *VotingRound) precommitStep(lastState RoundState) error {
	if r.phase != phasePrevoted {
		return nil
	}

	if lastState.Estimate == nil {
		return ErrMissingPriorEstimate
	}
	lastEstimate := *lastState.Estimate

	mayPrecommit, err := r.mayPrecommit(lastEstimate)
	if err != nil {
		return err
	}
	if !mayPrecommit {
		return nil
	}

	shouldPrecommit := r.precommitTimer.Fired() || r.tally.State().Completable
	if !shouldPrecommit {
		return nil
	}

	target := r.base
	if ghost := r.tally.State().PrevoteGHOST; ghost != nil {
		target = *ghost
	}

	r.log.Debug("casting precommit", "round", r.number, "target", target)
	r.outgoing.Push(PrecommitMessage(Precommit{TargetHash: target.Hash, TargetNumber: target.Number}))
	r.phase = phasePrecommitted
	return nil
}

// mayPrecommit reports whether the current prevote-GHOST is, or descends
// from, the previous round's estimate. A precommit may only be cast once
// this holds, which is what keeps precommits from ever conflicting with the
// previous round's finality.
func (r *VotingRound) mayPrecommit(lastEstimate BlockRef) (bool, error) {
	ghost := r.tally.State().PrevoteGHOST
	if ghost == nil {
		return false, nil
	}
	if *ghost == lastEstimate {
		return true, nil
	}
	_, err := r.env.Ancestry(lastEstimate.Hash, ghost.Hash)
	switch {
	case err == nil:
		return true, nil
	case isNotDescendant(err):
		return false, nil
	default:
		return false, err
	}
}

// constructPrevote computes the prevote target following the anchor rule
// (primary hint if it sits between the previous estimate and its
// prevote-GHOST, the previous estimate otherwise), then resolves it to a
// chain tip.
func (r *VotingRound) constructPrevote(lastState RoundState) (*BlockRef, error) {
	if lastState.Estimate == nil || lastState.PrevoteGHOST == nil {
		return nil, ErrMissingPriorEstimate
	}
	lastEstimate := *lastState.Estimate
	lastGHOST := *lastState.PrevoteGHOST

	anchor, err := r.anchor(lastEstimate, lastGHOST)
	if err != nil {
		return nil, err
	}

	tip, ok := r.env.BestChainContaining(anchor)
	if !ok {
		r.log.Warn("could not cast prevote: previously known block has disappeared", "round", r.number, "hash", anchor)
		return nil, nil
	}
	return &tip, nil
}

func (r *VotingRound) anchor(lastEstimate, lastGHOST BlockRef) (ids.ID, error) {
	if r.primaryHint == nil {
		return lastEstimate.Hash, nil
	}
	hint := *r.primaryHint

	if hint == lastGHOST {
		return hint.Hash, nil
	}
	if hint.Number >= lastGHOST.Number {
		return lastEstimate.Hash, nil
	}

	path, err := r.env.Ancestry(lastEstimate.Hash, lastGHOST.Hash)
	if isNotDescendant(err) {
		return lastEstimate.Hash, nil
	}
	if err != nil {
		return ids.Empty, err
	}

	offset := int64(lastGHOST.Number) - (int64(hint.Number) + 1)
	if offset < 0 {
		offset = 0
	}
	if int(offset) < len(path) && path[offset] == hint.Hash {
		return hint.Hash, nil
	}
	return lastEstimate.Hash, nil
}

func isNotDescendant(err error) bool {
	return errors.Is(err, ErrNotDescendant)
}
