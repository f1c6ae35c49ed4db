// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import (
	"testing"

	"github.com/luxfi/grandpa/finalitytest"
	"github.com/luxfi/grandpa/tally"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

// An equivocating prevote reported through the round's Environment should
// surface exactly once, and should not otherwise disrupt a single honest
// voter's progress toward finalizing its own chain.
func TestScenarioEquivocationReportedOnce(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	blocks := chain.Extend(genesis, 2)
	a, b := blocks[0], blocks[1]

	honest := ids.GenerateTestNodeID()
	culprit := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{honest: 60, culprit: 40}

	net := finalitytest.NewNetwork(chain, voters)
	env := finalitytest.NewEnvironment(net, honest)

	genesisRef := genesis.Ref()
	tally1 := tally.New(1, genesisRef, voters)
	data, err := env.RoundData(1)
	require.NoError(err)

	lastState := RoundState{Estimate: &genesisRef, PrevoteGHOST: &genesisRef, Completable: true}
	_, reader := BridgeState(lastState)
	round := NewVotingRound(env, log.NewNoOpLogger(), 1, genesisRef, tally1, data, reader, &finalizationSink{})

	first := SignedMessage{
		Message: PrevoteMessage(Prevote{TargetHash: a.ID, TargetNumber: a.Number}),
		ID:      culprit,
	}
	second := SignedMessage{
		Message: PrevoteMessage(Prevote{TargetHash: b.ID, TargetNumber: b.Number}),
		ID:      culprit,
	}
	require.NoError(round.importMessage(first))
	require.NoError(round.importMessage(second))
	// A repeat delivery of the same second vote must not produce a second report.
	require.NoError(round.importMessage(second))

	require.Len(env.PrevoteEquivocations, 1)
	require.Equal(culprit, env.PrevoteEquivocations[0].Identity)
}

// While the outgoing sink refuses every send, a round must keep reporting
// not-ready and must not reach Precommitted, even once its tally alone would
// otherwise justify it.
func TestScenarioBackpressureHoldsRoundNotReady(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	tip := chain.Extend(genesis, 1)[0]

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}

	net := finalitytest.NewNetwork(chain, voters)
	env := finalitytest.NewEnvironment(net, voter)
	env.RefuseOutgoing = func() bool { return true }

	genesisRef := genesis.Ref()
	data, err := env.RoundData(1)
	require.NoError(err)
	_ = tip

	lastState := RoundState{Estimate: &genesisRef, PrevoteGHOST: &genesisRef, Completable: true}
	_, reader := BridgeState(lastState)
	tally1 := tally.New(1, genesisRef, voters)
	round := NewVotingRound(env, log.NewNoOpLogger(), 1, genesisRef, tally1, data, reader, &finalizationSink{})

	for i := 0; i < 5; i++ {
		ready, err := round.Poll()
		require.NoError(err)
		require.False(ready)
	}
	require.False(round.IsPrecommitted())

	env.RefuseOutgoing = nil
	ready, err := round.Poll()
	require.NoError(err)
	_ = ready // draining can take another poll or two once unblocked
}

// Once a voter's best round precommits, Completed fires for it, it is
// pushed to the background, and a successor round is spawned reading the
// completed round's bridged state.
func TestScenarioRoundRotatesOnPrecommit(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	chain.Extend(genesis, 1)

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}
	net := finalitytest.NewNetwork(chain, voters)
	env := finalitytest.NewEnvironment(net, voter)

	genesisRef := genesis.Ref()
	v, err := NewVoter(env, log.NewNoOpLogger(), nil, tally.New, 0, RoundState{
		Estimate:     &genesisRef,
		PrevoteGHOST: &genesisRef,
		Completable:  true,
	}, genesisRef)
	require.NoError(err)

	for i := 0; i < 10 && len(env.Completions) == 0; i++ {
		_, err := v.Poll()
		require.NoError(err)
	}

	require.NotEmpty(env.Completions)
	require.Equal(uint64(1), env.Completions[0].Round)
	require.Equal(uint64(2), v.BestRoundNumber())
}

// Once the running round's estimate falls at or below what has since been
// finalized, the backgrounded predecessor round retires within a poll
// cycle or two.
func TestScenarioBackgroundRoundRetires(t *testing.T) {
	require := require.New(t)

	chain, genesis := finalitytest.NewGenesisChain()
	blocks := chain.Extend(genesis, 3)

	voter := ids.GenerateTestNodeID()
	voters := map[ids.NodeID]uint64{voter: 100}
	net := finalitytest.NewNetwork(chain, voters)
	env := finalitytest.NewEnvironment(net, voter)

	genesisRef := genesis.Ref()
	v, err := NewVoter(env, log.NewNoOpLogger(), nil, tally.New, 0, RoundState{
		Estimate:     &genesisRef,
		PrevoteGHOST: &genesisRef,
		Completable:  true,
	}, genesisRef)
	require.NoError(err)

	tip := blocks[len(blocks)-1]
	for i := 0; i < 20; i++ {
		_, err := v.Poll()
		require.NoError(err)
		if v.LastFinalized().Number == tip.Number {
			break
		}
	}

	require.Equal(tip.Number, v.LastFinalized().Number)
	require.Equal(0, v.BackgroundRoundCount())
}
