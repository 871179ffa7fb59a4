// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// reorderEntry is one packet waiting in the buffer, stamped with its
// arrival time so a stale entry can be force-released on Flush.
type reorderEntry struct {
	packet  *rtp.Packet
	arrived time.Time
}

// ReorderBuffer holds out-of-order RTP packets until either the missing
// sequence numbers arrive or the buffer's depth or age limits force it to
// give up and move on, reporting the gap as a discontinuity.
//
// It is not safe for concurrent use; callers run it on the single goroutine
// that feeds the depayloader, per this package's single-threaded-per-stream
// design.
type ReorderBuffer struct {
	maxDepth int
	timeout  time.Duration

	pending  map[uint16]reorderEntry
	haveNext bool
	nextSeq  uint16
}

// NewReorderBuffer returns a buffer holding at most maxDepth packets, each
// force-released after timeout if its predecessors never arrive.
func NewReorderBuffer(maxDepth int, timeout time.Duration) *ReorderBuffer {
	if maxDepth < 1 {
		maxDepth = defaultMaxReorderBuffer
	}
	return &ReorderBuffer{
		maxDepth: maxDepth,
		timeout:  timeout,
		pending:  make(map[uint16]reorderEntry),
	}
}

// Push inserts pkt and returns every packet that is now ready to be
// delivered in sequence order, plus any discontinuity events raised by
// forcing past an unfilled gap (buffer full, or -- via Flush -- a stale
// entry timing out).
func (b *ReorderBuffer) Push(pkt *rtp.Packet, now time.Time) ([]*rtp.Packet, []Event) {
	if !b.haveNext {
		b.haveNext = true
		b.nextSeq = pkt.SequenceNumber
	}

	b.pending[pkt.SequenceNumber] = reorderEntry{packet: pkt, arrived: now}

	var events []Event
	if len(b.pending) > b.maxDepth {
		events = append(events, b.forceAdvance())
	}

	return b.drain(), events
}

// Flush force-releases any packet that has waited longer than the
// configured timeout, reporting a discontinuity for the gap it closes over.
// Call it periodically even when no new packet has arrived, so a stream
// that stalls mid-gap doesn't wait forever.
func (b *ReorderBuffer) Flush(now time.Time) ([]*rtp.Packet, []Event) {
	var events []Event

	for b.haveNext {
		if _, ok := b.pending[b.nextSeq]; ok {
			break
		}
		_, oldestTime, found := b.oldest()
		if !found || now.Sub(oldestTime) < b.timeout {
			break
		}
		events = append(events, b.forceAdvance())
	}

	return b.drain(), events
}

// drain pops every contiguous packet starting at nextSeq.
func (b *ReorderBuffer) drain() []*rtp.Packet {
	var out []*rtp.Packet
	for {
		entry, ok := b.pending[b.nextSeq]
		if !ok {
			break
		}
		delete(b.pending, b.nextSeq)
		out = append(out, entry.packet)
		b.nextSeq++
	}
	return out
}

// forceAdvance skips nextSeq forward to the oldest sequence number actually
// buffered, abandoning the gap in between.
func (b *ReorderBuffer) forceAdvance() Event {
	skipped := b.nextSeq
	if oldest, _, found := b.oldest(); found {
		b.nextSeq = oldest
	} else {
		b.nextSeq++
	}
	return Event{Kind: EventDiscontinuity, Reason: fmt.Sprintf("reorder buffer forced past a gap starting at sequence %d", skipped)}
}

// oldest returns the sequence number and arrival time of the
// longest-waiting buffered packet.
func (b *ReorderBuffer) oldest() (seq uint16, arrived time.Time, found bool) {
	for s, e := range b.pending {
		if !found || e.arrived.Before(arrived) {
			seq, arrived, found = s, e.arrived, true
		}
	}
	return seq, arrived, found
}

