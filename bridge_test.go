// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestBridgeStateReadsInitialValue(t *testing.T) {
	require := require.New(t)

	initial := RoundState{Estimate: &BlockRef{Hash: ids.GenerateTestID(), Number: 1}}
	_, reader := BridgeState(initial)

	require.True(initial.Equal(reader.Get()))
}

func TestBridgeWriterUpdateIsVisibleToReader(t *testing.T) {
	require := require.New(t)

	writer, reader := BridgeState(RoundState{})

	updated := RoundState{
		Estimate:    &BlockRef{Hash: ids.GenerateTestID(), Number: 5},
		Completable: true,
	}
	writer.Update(updated)

	require.True(updated.Equal(reader.Get()))
}

func TestBridgeReaderSeesLatestOnly(t *testing.T) {
	require := require.New(t)

	writer, reader := BridgeState(RoundState{})

	first := RoundState{Estimate: &BlockRef{Hash: ids.GenerateTestID(), Number: 1}}
	second := RoundState{Estimate: &BlockRef{Hash: ids.GenerateTestID(), Number: 2}}
	writer.Update(first)
	writer.Update(second)

	got := reader.Get()
	require.True(second.Equal(got))
	require.False(first.Equal(got))
}
