// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tally

import (
	"testing"

	"github.com/luxfi/grandpa"
	"github.com/luxfi/grandpa/finalitytest"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestRoundSoloVoterReachesThresholdImmediately(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	tip := chain.Extend(genesis, 2)[1]

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}

	r := New(1, genesis.Ref(), voters)

	_, err := r.ImportPrevote(chain, grandpa.Prevote{TargetHash: tip.ID, TargetNumber: tip.Number}, voter, nil)
	require.NoError(err)

	state := r.State()
	require.NotNil(state.PrevoteGHOST)
	require.Equal(tip.ID, state.PrevoteGHOST.Hash)
	require.True(state.Completable)

	_, err = r.ImportPrecommit(chain, grandpa.Precommit{TargetHash: tip.ID, TargetNumber: tip.Number}, voter, nil)
	require.NoError(err)

	state = r.State()
	require.NotNil(state.Finalized)
	require.Equal(tip.ID, state.Finalized.Hash)
}

func TestRoundImportPrevoteDetectsEquivocation(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	blocks := chain.Extend(genesis, 2)
	a, b := blocks[0], blocks[1]

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}
	r := New(1, genesis.Ref(), voters)

	eq, err := r.ImportPrevote(chain, grandpa.Prevote{TargetHash: a.ID, TargetNumber: a.Number}, voter, grandpa.Signature("sig-a"))
	require.NoError(err)
	require.Nil(eq)

	eq, err = r.ImportPrevote(chain, grandpa.Prevote{TargetHash: b.ID, TargetNumber: b.Number}, voter, grandpa.Signature("sig-b"))
	require.NoError(err)
	require.NotNil(eq)
	require.Equal(voter, eq.Identity)
	require.Equal(a.ID, eq.First.Vote.TargetHash)
	require.Equal(b.ID, eq.Second.Vote.TargetHash)
}

func TestRoundImportPrevoteRepeatIsNoop(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	tip := chain.Extend(genesis, 1)[0]

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}
	r := New(1, genesis.Ref(), voters)

	vote := grandpa.Prevote{TargetHash: tip.ID, TargetNumber: tip.Number}
	_, err := r.ImportPrevote(chain, vote, voter, grandpa.Signature("sig"))
	require.NoError(err)

	eq, err := r.ImportPrevote(chain, vote, voter, grandpa.Signature("sig"))
	require.NoError(err)
	require.Nil(eq)
}

func TestRoundCompletableIsMonotone(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	tip := chain.Extend(genesis, 1)[0]

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{a: 2, b: 2}
	r := New(1, genesis.Ref(), voters)

	vote := grandpa.Prevote{TargetHash: tip.ID, TargetNumber: tip.Number}
	_, err := r.ImportPrevote(chain, vote, a, nil)
	require.NoError(err)
	require.False(r.State().Completable)

	_, err = r.ImportPrevote(chain, vote, b, nil)
	require.NoError(err)
	require.True(r.State().Completable)
}

func TestRoundDropsVoteForUnknownOrUnrelatedBlock(t *testing.T) {
	require := require.New(t)

	chainA, genesisA := finalitytest.NewGenesisChain()
	chainB, genesisB := finalitytest.NewGenesisChain()
	tipB := chainB.Extend(genesisB, 1)[0]

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}
	r := New(1, genesisA.Ref(), voters)

	_, err := r.ImportPrevote(chainA, grandpa.Prevote{TargetHash: tipB.ID, TargetNumber: tipB.Number}, voter, nil)
	require.NoError(err)
	require.Nil(r.State().PrevoteGHOST)
}
