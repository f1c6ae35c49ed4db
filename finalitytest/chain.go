// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package finalitytest provides in-memory fixtures for exercising a
// grandpa.Voter without a real network or database: a linear block tree and
// an Environment wired so outgoing votes loop back into each voter's
// incoming stream.
package finalitytest

import (
	"github.com/luxfi/grandpa"
	"github.com/luxfi/ids"
)

// Block is a single node in a Chain's block tree.
type Block struct {
	ID     ids.ID
	Number uint64
	Parent ids.ID
}

// Ref returns the block's BlockRef.
func (b Block) Ref() grandpa.BlockRef {
	return grandpa.BlockRef{Hash: b.ID, Number: b.Number}
}

// Chain is an in-memory implementation of grandpa.Chain: a tree of blocks
// rooted at a genesis, with a settable best tip per branch used to answer
// BestChainContaining.
type Chain struct {
	blocks map[ids.ID]Block
	tips   []ids.ID
}

// NewChain creates a chain containing only genesis, which doubles as the
// initial (and, until more tips are added, only) best tip.
func NewChain(genesis Block) *Chain {
	c := &Chain{blocks: make(map[ids.ID]Block)}
	c.blocks[genesis.ID] = genesis
	c.tips = []ids.ID{genesis.ID}
	return c
}

// Add appends a block to the chain. The parent must already be known. The
// new block replaces its parent as a tip.
func (c *Chain) Add(b Block) {
	c.blocks[b.ID] = b
	live := c.tips[:0]
	for _, t := range c.tips {
		if t != b.Parent {
			live = append(live, t)
		}
	}
	c.tips = append(live, b.ID)
}

// Extend builds a run of n blocks on top of parent, each one assigned a
// fresh id from ids.GenerateTestID, and returns them in order.
func (c *Chain) Extend(parent Block, n int) []Block {
	out := make([]Block, 0, n)
	cur := parent
	for i := 0; i < n; i++ {
		next := Block{ID: ids.GenerateTestID(), Number: cur.Number + 1, Parent: cur.ID}
		c.Add(next)
		out = append(out, next)
		cur = next
	}
	return out
}

// Block looks up a known block by hash.
func (c *Chain) Block(h ids.ID) (Block, bool) {
	b, ok := c.blocks[h]
	return b, ok
}

// Ancestry implements grandpa.Chain: the path from head back to, but not
// including, base, ordered from head's parent down to base.
func (c *Chain) Ancestry(base, head ids.ID) ([]ids.ID, error) {
	if base == head {
		return nil, nil
	}
	if _, ok := c.blocks[head]; !ok {
		return nil, grandpa.ErrNotDescendant
	}

	var path []ids.ID
	cur := head
	for cur != base {
		b, ok := c.blocks[cur]
		if !ok {
			return nil, grandpa.ErrNotDescendant
		}
		if b.Number == 0 {
			return nil, grandpa.ErrNotDescendant
		}
		cur = b.Parent
		if cur != base {
			path = append(path, cur)
		}
	}
	return path, nil
}

// BestChainContaining implements grandpa.Chain: it returns the deepest known
// tip that descends from (or is) base.
func (c *Chain) BestChainContaining(base ids.ID) (grandpa.BlockRef, bool) {
	baseBlock, ok := c.blocks[base]
	if !ok {
		return grandpa.BlockRef{}, false
	}

	best := baseBlock
	for _, tip := range c.tips {
		tb, ok := c.blocks[tip]
		if !ok {
			continue
		}
		if tb.ID != base {
			if _, err := c.Ancestry(base, tb.ID); err != nil {
				continue
			}
		}
		if tb.Number > best.Number {
			best = tb
		}
	}
	return best.Ref(), true
}
