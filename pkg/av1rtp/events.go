// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

// EventKind identifies the kind of out-of-band event the depayloader can
// surface alongside a reassembled temporal unit.
type EventKind int

const (
	// EventDiscontinuity reports that output bytes were lost: a fragment
	// was dropped, a sequence gap corrupted reassembly, or a size cap was
	// exceeded.
	EventDiscontinuity EventKind = iota
	// EventKeyframeRequest asks the source (input edge) to produce a new
	// keyframe, fire-and-forget.
	EventKeyframeRequest
)

func (k EventKind) String() string {
	switch k {
	case EventDiscontinuity:
		return "Discontinuity"
	case EventKeyframeRequest:
		return "KeyframeRequest"
	default:
		return "Unknown"
	}
}

// Event is a single out-of-band notification produced by the depayloader.
type Event struct {
	Kind   EventKind
	Reason string
}

// Stats accumulates telemetry counters across the lifetime of a Depacketizer.
// It is a value type: read it with Depacketizer.Stats(), which returns a
// copy, never a pointer into live state. No locking is needed since each
// instance is single-threaded per stream.
type Stats struct {
	FragmentsDropped   uint64
	PacketsDropped     uint64
	LayerFiltered      uint64
	KeyframesRequested uint64
	Timeouts           uint64
}
