// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package finalitytest

import "github.com/luxfi/ids"

// Genesis is a fixed root block a test may pass to NewChain. NewGenesisChain
// does not use it.
var Genesis = Block{ID: ids.GenerateTestID(), Number: 0, Parent: ids.Empty}

// NewGenesisChain returns a Chain rooted at a fresh genesis block, distinct
// from the package-level Genesis, so tests don't share hash state.
func NewGenesisChain() (*Chain, Block) {
	g := Block{ID: ids.GenerateTestID(), Number: 0, Parent: ids.Empty}
	return NewChain(g), g
}

// EqualWeightVoters returns a voter set of n freshly generated node IDs each
// weighted w, along with the ids in generation order.
func EqualWeightVoters(n int, w uint64) (map[ids.NodeID]uint64, []ids.NodeID) {
	voters := make(map[ids.NodeID]uint64, n)
	order := make([]ids.NodeID, 0, n)
	for i := 0; i < n; i++ {
		id := ids.GenerateTestNodeID()
		voters[id] = w
		order = append(order, id)
	}
	return voters, order
}
