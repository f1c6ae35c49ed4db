// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import (
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// backgroundRound wraps a voting round that has been superseded by a newer
// best round but may still be needed for finality progress. It resolves
// (done reports true) once its tally's estimate is at or below the height
// the voter has already finalized.
type backgroundRound struct {
	round           *VotingRound
	finalizedHeight uint64
}

// updateFinalized raises the background round's notion of the last
// finalized height. Heights only ever move up.
func (b *backgroundRound) updateFinalized(n uint64) {
	if n > b.finalizedHeight {
		b.finalizedHeight = n
	}
}

func (b *backgroundRound) done() bool {
	estimate := b.round.State().Estimate
	return estimate != nil && estimate.Number <= b.finalizedHeight
}

// poll advances the inner round and reports whether it has resolved.
func (b *backgroundRound) poll() (bool, error) {
	if _, err := b.round.Poll(); err != nil {
		return false, err
	}
	return b.done(), nil
}

// voterMetrics is the prometheus surface registered by NewVoter.
type voterMetrics struct {
	roundsStarted      prometheus.Counter
	roundsRetired      prometheus.Counter
	equivocations      prometheus.Counter
	lastFinalizedGauge prometheus.Gauge
}

func newVoterMetrics(reg prometheus.Registerer) (*voterMetrics, error) {
	m := &voterMetrics{
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grandpa_rounds_started_total",
			Help: "Number of voting rounds this voter has started.",
		}),
		roundsRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grandpa_rounds_retired_total",
			Help: "Number of background rounds retired.",
		}),
		equivocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grandpa_equivocations_total",
			Help: "Number of equivocations forwarded to the environment.",
		}),
		lastFinalizedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grandpa_last_finalized_height",
			Help: "Height of the highest block this voter has finalized.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.roundsStarted, m.roundsRetired, m.equivocations, m.lastFinalizedGauge} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// countingEnvironment wraps an Environment to keep the equivocation counters
// current without requiring every Environment implementation to do its own
// metrics bookkeeping.
type countingEnvironment struct {
	Environment
	metrics *voterMetrics
}

func (c countingEnvironment) PrevoteEquivocation(n uint64, eq PrevoteEquivocation) {
	c.metrics.equivocations.Inc()
	c.Environment.PrevoteEquivocation(n, eq)
}

func (c countingEnvironment) PrecommitEquivocation(n uint64, eq PrecommitEquivocation) {
	c.metrics.equivocations.Inc()
	c.Environment.PrecommitEquivocation(n, eq)
}

// Voter multiplexes exactly one best round plus a bag of background rounds.
// It advances to the next round when the best round is precommitted, retires
// background rounds when their estimate is finalized, and forwards
// finalizations to the environment.
type Voter struct {
	env          Environment
	log          log.Logger
	tallyFactory TallyFactory
	metrics      *voterMetrics

	bestRound  *VotingRound
	background []*backgroundRound

	finalized     *finalizationSink
	lastFinalized BlockRef
}

// NewVoter creates a Voter seeded from the last completed round. If there is
// no known last completed round, pass round number 0 with the genesis
// RoundState and the genesis block as lastFinalized.
func NewVoter(
	env Environment,
	logger log.Logger,
	registerer prometheus.Registerer,
	tallyFactory TallyFactory,
	lastRound uint64,
	lastRoundState RoundState,
	lastFinalized BlockRef,
) (*Voter, error) {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	metrics, err := newVoterMetrics(registerer)
	if err != nil {
		return nil, err
	}

	v := &Voter{
		env:           countingEnvironment{Environment: env, metrics: metrics},
		log:           logger,
		tallyFactory:  tallyFactory,
		metrics:       metrics,
		finalized:     &finalizationSink{},
		lastFinalized: lastFinalized,
	}

	_, reader := BridgeState(lastRoundState)
	best, err := v.spawnRound(lastRound+1, reader)
	if err != nil {
		return nil, err
	}
	v.bestRound = best
	return v, nil
}

func (v *Voter) spawnRound(number uint64, lastRoundState *BridgeReader) (*VotingRound, error) {
	data, err := v.env.RoundData(number)
	if err != nil {
		return nil, err
	}
	tally := v.tallyFactory(number, v.lastFinalized, data.Voters)
	v.metrics.roundsStarted.Inc()
	return NewVotingRound(v.env, v.log, number, v.lastFinalized, tally, data, lastRoundState, v.finalized), nil
}

// Poll drains finalization notifications, advances the best round, and, if
// the best round reports Precommitted, rotates it into the background set
// and instantiates a successor — re-entering this same procedure so the new
// best round makes progress in the same scheduling quantum.
func (v *Voter) Poll() (bool, error) {
	for {
		if err := v.pruneBackground(); err != nil {
			return false, err
		}

		ready, err := v.bestRound.Poll()
		if err != nil {
			return false, err
		}
		if !ready || !v.bestRound.IsPrecommitted() {
			return false, nil
		}

		if err := v.rotate(); err != nil {
			return false, err
		}
	}
}

// pruneBackground drains the finalization-notification queue, updates every
// background round's notion of the last finalized height (waking those
// whose estimate is now below it), notifies the environment of newly
// finalized blocks, and drops background rounds that have resolved.
func (v *Voter) pruneBackground() error {
	for _, f := range v.finalized.drain() {
		for _, bg := range v.background {
			bg.updateFinalized(f.Number)
		}
		if f.Number > v.lastFinalized.Number {
			v.lastFinalized = f
			v.metrics.lastFinalizedGauge.Set(float64(f.Number))
			v.env.FinalizeBlock(f)
		}
	}

	live := v.background[:0]
	for _, bg := range v.background {
		done, err := bg.poll()
		if err != nil {
			return err
		}
		if done {
			v.metrics.roundsRetired.Inc()
			continue
		}
		live = append(live, bg)
	}
	v.background = live
	return nil
}

// rotate completes the best round, backgrounds it, and replaces it with a
// freshly spawned successor seeded from the completed round's bridge.
func (v *Voter) rotate() error {
	v.env.Completed(v.bestRound.Number(), v.bestRound.State())

	reader := v.bestRound.BridgeState()
	next, err := v.spawnRound(v.bestRound.Number()+1, reader)
	if err != nil {
		return err
	}

	old := v.bestRound
	v.background = append(v.background, &backgroundRound{
		round:           old,
		finalizedHeight: v.lastFinalized.Number,
	})
	v.bestRound = next
	return nil
}

// LastFinalized returns the highest block the voter has announced finalized.
func (v *Voter) LastFinalized() BlockRef { return v.lastFinalized }

// BestRoundNumber returns the number of the currently live best round.
func (v *Voter) BestRoundNumber() uint64 { return v.bestRound.Number() }

// BackgroundRoundCount returns how many rounds are currently backgrounded.
func (v *Voter) BackgroundRoundCount() int { return len(v.background) }
