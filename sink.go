// Copyright (C) 2019-2024, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grandpa

// BufferedSink decouples vote emission from sink backpressure. It owns an
// ordered outbound queue and drives it toward completion, preserving strict
// FIFO order.
//
// Invariant: once Poll returns ready, every previously Push-ed message has
// been delivered to the underlying sink and acknowledged as flushed.
type BufferedSink struct {
	inner OutgoingSink
	queue []Message
}

// NewBufferedSink wraps inner with a buffer.
func NewBufferedSink(inner OutgoingSink) *BufferedSink {
	return &BufferedSink{inner: inner}
}

// Push appends msg to the internal queue. It never fails and never blocks.
func (b *BufferedSink) Push(msg Message) {
	b.queue = append(b.queue, msg)
}

// Poll attempts to feed as many queued messages to the sink as it accepts,
// then drives the sink's flush. It returns ready iff the queue is empty and
// the sink reports fully flushed.
func (b *BufferedSink) Poll() (ready bool, err error) {
	drained, err := b.schedule()
	if err != nil {
		return false, err
	}

	flushed, err := b.inner.Flush()
	if err != nil {
		return false, err
	}

	return drained && flushed, nil
}

// schedule pushes as much of the queue into the inner sink as it will
// accept, stopping at the first message the sink refuses.
func (b *BufferedSink) schedule() (drained bool, err error) {
	for len(b.queue) > 0 {
		ok, err := b.inner.TrySend(b.queue[0])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		b.queue = b.queue[1:]
	}
	return true, nil
}
