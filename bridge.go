// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

import "sync"

// roundStateBox is the single shared slot behind a bridge: one writer, one
// reader, latest-value semantics. A queue would force the successor to drain
// stale predecessor states; this is the correct abstraction instead.
type roundStateBox struct {
	mu    sync.Mutex
	state RoundState
}

// BridgeWriter is the predecessor round's handle to update the bridged
// state. It is single-owner: only the round that created the bridge writes
// to it.
type BridgeWriter struct {
	box *roundStateBox
}

// Update publishes a new snapshot. Reads never block the writer.
func (w *BridgeWriter) Update(s RoundState) {
	w.box.mu.Lock()
	w.box.state = s
	w.box.mu.Unlock()
}

// BridgeReader is the successor round's handle to observe the bridged state.
// It returns a snapshot that is at least as fresh as the most recent Update
// observed before the call began; it need not observe every intermediate
// write, only eventual consistency with the latest.
type BridgeReader struct {
	box *roundStateBox
}

// Get returns the latest published snapshot.
func (r *BridgeReader) Get() RoundState {
	r.box.mu.Lock()
	defer r.box.mu.Unlock()
	return r.box.state
}

// BridgeState creates a fresh latest-value channel seeded with initial,
// returning the writer and reader halves.
func BridgeState(initial RoundState) (*BridgeWriter, *BridgeReader) {
	box := &roundStateBox{state: initial}
	return &BridgeWriter{box: box}, &BridgeReader{box: box}
}
