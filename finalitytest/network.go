// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finalitytest

import (
	"github.com/luxfi/grandpa"
	"github.com/luxfi/ids"
)

// ManualTimer is a grandpa.Timer a test controls directly.
type ManualTimer struct {
	fired bool
}

// NewManualTimer returns a timer that has not fired.
func NewManualTimer() *ManualTimer { return &ManualTimer{} }

// Fire marks the timer as having gone off.
func (t *ManualTimer) Fire() { t.fired = true }

// Fired implements grandpa.Timer.
func (t *ManualTimer) Fired() bool { return t.fired }

// messageQueue is an in-memory, unbounded grandpa.IncomingStream.
type messageQueue struct {
	items []grandpa.SignedMessage
}

func (q *messageQueue) push(msg grandpa.SignedMessage) {
	q.items = append(q.items, msg)
}

func (q *messageQueue) Poll() (grandpa.SignedMessage, bool, error) {
	if len(q.items) == 0 {
		return grandpa.SignedMessage{}, false, nil
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true, nil
}

// broadcastSink is the grandpa.OutgoingSink every voter in a Network gets
// for a given round: every message accepted by TrySend is broadcast to every
// voter's inbox for that round, including the sender's own (votes are
// assumed to be gossiped back to their author, matching how real GRANDPA
// deployments observe their own messages on the wire).
type broadcastSink struct {
	round  *roundState
	from   ids.NodeID
	refuse func() bool
}

func (s *broadcastSink) TrySend(msg grandpa.Message) (bool, error) {
	if s.refuse != nil && s.refuse() {
		return false, nil
	}
	signed := grandpa.SignedMessage{
		Message:   msg,
		ID:        s.from,
		Signature: grandpa.Signature(s.from.String()),
	}
	for _, q := range s.round.inboxes {
		q.push(signed)
	}
	return true, nil
}

func (s *broadcastSink) Flush() (bool, error) { return true, nil }

// roundState is the shared, per-round-number state every voter's
// Environment.RoundData call for that round returns a view onto: one inbox
// per voter and a pair of timers every voter shares, so a test can fire a
// round's timers once and have every voter observe it.
type roundState struct {
	prevoteTimer   *ManualTimer
	precommitTimer *ManualTimer
	inboxes        map[ids.NodeID]*messageQueue
}

// Network wires a fixed voter set and a shared Chain into per-voter
// Environments whose RoundData, Ancestry, and BestChainContaining all answer
// consistently with one another.
type Network struct {
	Chain  *Chain
	Voters map[ids.NodeID]uint64

	rounds map[uint64]*roundState
}

// NewNetwork creates a network over chain with the given voter weights.
func NewNetwork(chain *Chain, voters map[ids.NodeID]uint64) *Network {
	return &Network{
		Chain:  chain,
		Voters: voters,
		rounds: make(map[uint64]*roundState),
	}
}

// state lazily creates the shared state for round number. Both timers start
// already fired: a fast-forwarding test network has no real passage of time
// to wait out, so every round behaves as if T_gossip has long since elapsed.
// Tests that specifically want to exercise "timer not yet fired" need a
// not-yet-fired timer of their own rather than one from this network.
func (n *Network) state(number uint64) *roundState {
	rs, ok := n.rounds[number]
	if ok {
		return rs
	}
	prevote, precommit := NewManualTimer(), NewManualTimer()
	prevote.Fire()
	precommit.Fire()
	rs = &roundState{
		prevoteTimer:   prevote,
		precommitTimer: precommit,
		inboxes:        make(map[ids.NodeID]*messageQueue, len(n.Voters)),
	}
	for id := range n.Voters {
		rs.inboxes[id] = &messageQueue{}
	}
	n.rounds[number] = rs
	return rs
}

// roundData builds the grandpa.RoundData a given voter sees for number.
func (n *Network) roundData(number uint64, self ids.NodeID, refuse func() bool) grandpa.RoundData {
	rs := n.state(number)
	return grandpa.RoundData{
		PrevoteTimer:   rs.prevoteTimer,
		PrecommitTimer: rs.precommitTimer,
		Voters:         n.Voters,
		Incoming:       rs.inboxes[self],
		Outgoing:       &broadcastSink{round: rs, from: self, refuse: refuse},
	}
}
