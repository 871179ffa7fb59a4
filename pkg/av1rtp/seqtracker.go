// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

// SeqStatus classifies an incoming RTP sequence number against what the
// tracker expected next.
type SeqStatus int

const (
	// SeqOK is the packet the tracker expected.
	SeqOK SeqStatus = iota
	// SeqDuplicate has already been seen.
	SeqDuplicate
	// SeqOutOfOrder arrived behind the last seen sequence number, by any
	// distance -- the gap threshold only applies to forward jumps.
	SeqOutOfOrder
	// SeqLargeGap jumped further ahead than the configured gap threshold,
	// signaling likely loss (or a stream restart) rather than ordinary
	// jitter.
	SeqLargeGap
)

func (s SeqStatus) String() string {
	switch s {
	case SeqOK:
		return "OK"
	case SeqDuplicate:
		return "Duplicate"
	case SeqOutOfOrder:
		return "OutOfOrder"
	case SeqLargeGap:
		return "LargeGap"
	default:
		return "Unknown"
	}
}

// SeqTracker tracks a stream's 16-bit RTP sequence numbers across wraparound
// and classifies each arrival relative to what was expected next.
type SeqTracker struct {
	GapThreshold int

	started bool
	lastSeq uint16
}

// NewSeqTracker returns a tracker that classifies the first sequence number
// it sees as SeqOK unconditionally, then tracks gaps against gapThreshold.
func NewSeqTracker(gapThreshold int) *SeqTracker {
	return &SeqTracker{GapThreshold: gapThreshold}
}

// seqDiff returns a-b as a signed 16-bit wraparound-aware difference, in
// [-32768, 32767].
func seqDiff(a, b uint16) int {
	d := int(a) - int(b)
	switch {
	case d > 32767:
		d -= 65536
	case d < -32768:
		d += 65536
	}
	return d
}

// Observe classifies seq and advances the tracker's notion of "last seen"
// whenever seq is not behind it.
func (t *SeqTracker) Observe(seq uint16) SeqStatus {
	if !t.started {
		t.started = true
		t.lastSeq = seq
		return SeqOK
	}

	diff := seqDiff(seq, t.lastSeq)

	switch {
	case diff == 0:
		return SeqDuplicate
	case diff < 0:
		return SeqOutOfOrder
	case diff == 1:
		t.lastSeq = seq
		return SeqOK
	case diff > t.GapThreshold:
		t.lastSeq = seq
		return SeqLargeGap
	default:
		t.lastSeq = seq
		return SeqOK
	}
}

// WState is the fragmentation state machine's current phase, driven by
// successive packets' aggregation header Z and Y bits (W itself is not
// consulted).
type WState int

const (
	// WIdle means no fragment is in progress; the next packet must have
	// Z=0, and may open a fragment (Y=1) or stand alone (Y=0).
	WIdle WState = iota
	// WInFragment means a fragment sequence is in progress; the next
	// packet must continue it (Z=1, Y=1) or close it (Z=1, Y=0).
	WInFragment
)

func (s WState) String() string {
	if s == WInFragment {
		return "InFragment"
	}
	return "Idle"
}

// WTracker enforces the legal W-bit transitions across a sequence of
// packets: Idle only accepts a packet starting a fresh aggregation or
// fragment; InFragment only accepts a continuation (Z=1) of the fragment
// already in progress. Any other combination is a state violation, and the
// tracker resets to Idle so a subsequent well-formed packet can resync.
type WTracker struct {
	state WState
}

// NewWTracker returns a tracker starting in the idle state.
func NewWTracker() *WTracker {
	return &WTracker{}
}

// State reports the tracker's current phase.
func (t *WTracker) State() WState {
	return t.state
}

// Observe feeds one packet's aggregation header through the state machine,
// returning an error if it violates the legal transition from the current
// state. On violation the tracker resets to Idle.
func (t *WTracker) Observe(h AggregationHeader) error {
	switch t.state {
	case WIdle:
		if h.Z {
			t.state = WIdle
			return errInvalidWTransition
		}
		if h.Y {
			t.state = WInFragment
		}
		return nil

	case WInFragment:
		if !h.Z {
			t.state = WIdle
			return errInvalidWTransition
		}
		if h.Y {
			t.state = WInFragment
		} else {
			t.state = WIdle
		}
		return nil

	default:
		t.state = WIdle
		return errInvalidWTransition
	}
}

// Reset forces the tracker back to the idle state, used after a sequence
// gap makes an in-progress fragment unrecoverable.
func (t *WTracker) Reset() {
	t.state = WIdle
}
