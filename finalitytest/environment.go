// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finalitytest

import (
	"github.com/luxfi/grandpa"
	"github.com/luxfi/ids"
)

// Environment is a grandpa.Environment for a single voter inside a Network.
// It records every callback it receives so tests can assert on them.
type Environment struct {
	*Chain
	net  *Network
	self ids.NodeID

	// RefuseOutgoing, if set, is consulted by this voter's outgoing sink on
	// every TrySend; returning true simulates transient backpressure.
	RefuseOutgoing func() bool

	Completions            []CompletionRecord
	Finalized              []grandpa.BlockRef
	PrevoteEquivocations   []grandpa.PrevoteEquivocation
	PrecommitEquivocations []grandpa.PrecommitEquivocation
}

// CompletionRecord is one Environment.Completed call.
type CompletionRecord struct {
	Round uint64
	State grandpa.RoundState
}

// NewEnvironment returns the Environment node self uses to participate in
// net, backed by net's shared Chain.
func NewEnvironment(net *Network, self ids.NodeID) *Environment {
	return &Environment{Chain: net.Chain, net: net, self: self}
}

// RoundData implements grandpa.Environment.
func (e *Environment) RoundData(number uint64) (grandpa.RoundData, error) {
	refuse := func() bool { return e.RefuseOutgoing != nil && e.RefuseOutgoing() }
	return e.net.roundData(number, e.self, refuse), nil
}

// Completed implements grandpa.Environment.
func (e *Environment) Completed(number uint64, state grandpa.RoundState) {
	e.Completions = append(e.Completions, CompletionRecord{Round: number, State: state})
}

// FinalizeBlock implements grandpa.Environment.
func (e *Environment) FinalizeBlock(ref grandpa.BlockRef) {
	e.Finalized = append(e.Finalized, ref)
}

// PrevoteEquivocation implements grandpa.Environment.
func (e *Environment) PrevoteEquivocation(number uint64, eq grandpa.PrevoteEquivocation) {
	e.PrevoteEquivocations = append(e.PrevoteEquivocations, eq)
}

// PrecommitEquivocation implements grandpa.Environment.
func (e *Environment) PrecommitEquivocation(number uint64, eq grandpa.PrecommitEquivocation) {
	e.PrecommitEquivocations = append(e.PrecommitEquivocations, eq)
}

var _ grandpa.Environment = (*Environment)(nil)
