// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"bytes"
	"time"

	"github.com/pion/rtp"

	"github.com/pion/rtp-av1/pkg/obu"
)

// canonicalTD is the temporal delimiter OBU the depayloader prepends to
// every emitted temporal unit: type=OBU_TEMPORAL_DELIMITER, has_size_field=1,
// a zero-length LEB128 size.
var canonicalTD = []byte{0x12, 0x00}

// DepacketizedTU is one reassembled temporal unit ready for a decoder: the
// canonical temporal delimiter, an optional cached sequence header, and the
// temporal unit's own OBUs, all concatenated and size-field normalized.
type DepacketizedTU struct {
	Payload      []byte
	RTPTimestamp uint32
	IsKeyframe   bool
}

// Depacketizer reassembles AV1 RTP packets (RFC 9628) into temporal units.
// It is a single serialized state owner: sequence tracking, fragment
// reassembly, and temporal-unit accumulation are all private, per-instance
// state, and it is not safe for concurrent use.
type Depacketizer struct {
	Config Config

	seq     *SeqTracker
	w       *WTracker
	reorder *ReorderBuffer

	haveFragment      bool
	fragment          []byte
	fragmentTimestamp uint32
	fragmentDeadline  time.Time

	haveTU       bool
	tuTimestamp  uint32
	tuOBUs       []obu.OBU
	tuByteCount  int

	cachedSeqHeader     []byte
	haveCachedSeqHeader bool
	seqHeaderGeneration int

	waitingForKeyframe  bool
	waitingForSeqHeader bool
	keyframeEstablished bool

	stats Stats
}

// NewDepacketizer returns a Depacketizer with cfg's zero-valued MTU,
// ClockRate, size caps, fragment timeout, reorder depth, gap threshold and
// Logger filled from DefaultConfig's values; HeaderMode, the layer bounds and
// the boolean fields are used as given. It returns an error if cfg declares
// an unsupported clock rate.
func NewDepacketizer(cfg Config) (*Depacketizer, error) {
	cfg.init()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	d := &Depacketizer{
		Config:              cfg,
		seq:                 NewSeqTracker(cfg.SeqGapThreshold),
		w:                   NewWTracker(),
		waitingForSeqHeader: true,
	}

	if cfg.MaxReorderBuffer > 0 {
		d.reorder = NewReorderBuffer(cfg.MaxReorderBuffer, time.Duration(cfg.FragmentTimeoutMs)*time.Millisecond)
	}

	return d, nil
}

// Stats returns a copy of the depacketizer's accumulated telemetry counters.
func (d *Depacketizer) Stats() Stats {
	return d.stats
}

// Push runs pkt through the reorder buffer (present unless
// Config.MaxReorderBuffer is negative; zero selects the default depth) and then through DepacketizeRTP for every packet the buffer
// releases in order, returning every temporal unit that completed and every
// event raised along the way. Use this as the normal entry point for a live
// RTP stream; DepacketizeRTP is for callers that have already reordered
// packets themselves.
func (d *Depacketizer) Push(pkt *rtp.Packet, now time.Time) ([]*DepacketizedTU, []Event) {
	if d.reorder == nil {
		tu, events, err := d.DepacketizeRTP(pkt, now)
		if err != nil || tu == nil {
			return nil, events
		}
		return []*DepacketizedTU{tu}, events
	}

	ready, events := d.reorder.Push(pkt, now)

	var tus []*DepacketizedTU
	for _, p := range ready {
		tu, ev, err := d.DepacketizeRTP(p, now)
		events = append(events, ev...)
		if err != nil || tu == nil {
			continue
		}
		tus = append(tus, tu)
	}

	return tus, events
}

// DepacketizeRTP runs the full per-packet procedure: aggregation header
// decode, sequence and W-bit tracking, fragment reassembly, temporal-unit
// accumulation, and -- on marker -- TU emission. now is used for fragment
// timeout checks, taken as a parameter rather than time.Now() so callers can
// drive the state machine deterministically in tests.
func (d *Depacketizer) DepacketizeRTP(pkt *rtp.Packet, now time.Time) (*DepacketizedTU, []Event, error) {
	if pkt == nil {
		return nil, nil, errNilPacket
	}
	if len(pkt.Payload) == 0 {
		return nil, nil, nil // RTP padding packet
	}

	var events []Event

	if d.haveFragment && !d.fragmentDeadline.IsZero() && now.After(d.fragmentDeadline) {
		d.resetFragment()
		events = append(events, Event{Kind: EventDiscontinuity, Reason: "fragment reassembly timed out"})
		d.stats.Timeouts++
	}

	h, err := DecodeHeader(pkt.Payload, d.Config.HeaderMode)
	if err != nil {
		d.resetFragment()
		d.stats.PacketsDropped++
		events = append(events, Event{Kind: EventDiscontinuity, Reason: "bad aggregation header: " + err.Error()})
		return nil, events, nil
	}

	switch d.seq.Observe(pkt.SequenceNumber) {
	case SeqDuplicate, SeqOutOfOrder:
		d.stats.PacketsDropped++
		return nil, events, nil
	case SeqLargeGap:
		if d.haveFragment {
			d.resetFragment()
			d.keyframeEstablished = false
			events = append(events,
				Event{Kind: EventDiscontinuity, Reason: "sequence gap during fragment reassembly"},
				Event{Kind: EventKeyframeRequest, Reason: "fragment lost to a sequence gap"})
			d.waitingForKeyframe = true
			d.stats.KeyframesRequested++
		}
	}

	if werr := d.w.Observe(*h); werr != nil {
		d.resetFragment()
		events = append(events, Event{Kind: EventDiscontinuity, Reason: "invalid W-bit state transition"})
	}

	complete, extractEvents, err := d.extractElements(pkt.Payload[1:], *h, pkt.Timestamp, now)
	events = append(events, extractEvents...)
	if err != nil {
		// Malformed LEB128 in this packet's slot layout: stop parsing this
		// packet. None of its elements are kept, including any complete
		// elements that preceded the malformed length prefix.
		events = append(events, Event{Kind: EventDiscontinuity, Reason: "malformed obu element framing: " + err.Error()})
	}

	parsed := d.parseCompleteOBUs(complete, &events)

	for _, o := range parsed {
		if o.Header.Type == obu.OBUSequenceHeader {
			raw := o.Marshal()
			if !d.haveCachedSeqHeader || !bytes.Equal(raw, d.cachedSeqHeader) {
				d.cachedSeqHeader = raw
				d.haveCachedSeqHeader = true
				d.seqHeaderGeneration++
			}
			d.waitingForSeqHeader = false
		}
	}

	if d.haveTU && d.tuTimestamp != pkt.Timestamp {
		d.Config.Logger.Warnf("dropping incomplete temporal unit at timestamp %d: new timestamp %d arrived before marker", d.tuTimestamp, pkt.Timestamp)
		d.resetTU()
	}
	if !d.haveTU {
		d.haveTU = true
		d.tuTimestamp = pkt.Timestamp
	}

	for _, o := range parsed {
		b := o.Marshal()
		if d.tuByteCount+len(b) > d.Config.MaxAccessUnitSize {
			events = append(events, Event{Kind: EventDiscontinuity, Reason: "access unit exceeds max size"})
			d.resetTU()
			d.stats.PacketsDropped++
			break
		}
		d.tuOBUs = append(d.tuOBUs, o)
		d.tuByteCount += len(b)
	}

	if !pkt.Marker {
		return nil, events, nil
	}

	tu, emitEvents := d.emitTU()
	events = append(events, emitEvents...)
	d.resetTU()

	return tu, events, nil
}

// extractElements splits payload (the aggregation header's W/Z/Y already
// decoded into h) into its constituent slots and feeds the first and/or
// last slot through fragment reassembly when Z or Y mark them as such.
// Every other slot is a complete OBU element, returned as-is.
func (d *Depacketizer) extractElements(payload []byte, h AggregationHeader, timestamp uint32, now time.Time) ([][]byte, []Event, error) {
	slots, err := splitSlots(payload, h.W)
	if err != nil {
		return nil, nil, err
	}

	var events []Event
	var complete [][]byte
	n := len(slots)

	for i, s := range slots {
		isFirst := i == 0
		isLast := i == n-1
		continuesFragment := isFirst && h.Z
		startsFragment := isLast && h.Y

		switch {
		case continuesFragment && startsFragment:
			d.appendFragment(s, timestamp, &events)
		case continuesFragment:
			if whole, ok := d.completeFragment(s, timestamp, &events); ok {
				complete = append(complete, whole)
			}
		case startsFragment:
			d.startFragment(s, timestamp, now, &events)
		default:
			complete = append(complete, s)
		}
	}

	return complete, events, nil
}

func (d *Depacketizer) appendFragment(chunk []byte, timestamp uint32, events *[]Event) {
	if !d.haveFragment || d.fragmentTimestamp != timestamp {
		*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "fragment continuation with no matching fragment in progress"})
		d.stats.FragmentsDropped++
		d.resetFragment()
		return
	}

	d.fragment = append(d.fragment, chunk...)
	if len(d.fragment) > d.Config.MaxFragmentSize {
		*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "fragment exceeds max size"})
		d.resetFragment()
	}
}

func (d *Depacketizer) completeFragment(chunk []byte, timestamp uint32, events *[]Event) ([]byte, bool) {
	if !d.haveFragment || d.fragmentTimestamp != timestamp {
		*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "fragment completion with no matching fragment in progress"})
		d.stats.FragmentsDropped++
		d.resetFragment()
		return nil, false
	}

	out := append(d.fragment, chunk...)
	d.resetFragment()

	if len(out) > d.Config.MaxFragmentSize {
		*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "fragment exceeds max size"})
		return nil, false
	}

	return out, true
}

func (d *Depacketizer) startFragment(chunk []byte, timestamp uint32, now time.Time, events *[]Event) {
	if d.haveFragment {
		*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "new fragment started while one was already in flight"})
		d.stats.FragmentsDropped++
	}

	d.fragment = append([]byte(nil), chunk...)
	d.fragmentTimestamp = timestamp
	d.haveFragment = true
	d.fragmentDeadline = now.Add(time.Duration(d.Config.FragmentTimeoutMs) * time.Millisecond)
}

func (d *Depacketizer) resetFragment() {
	d.fragment = nil
	d.haveFragment = false
	d.fragmentDeadline = time.Time{}
	d.w.Reset()
}

func (d *Depacketizer) resetTU() {
	d.tuOBUs = nil
	d.tuByteCount = 0
	d.haveTU = false
}

// parseCompleteOBUs parses each raw complete OBU element, dropping one
// whose forbidden bit is set (silently, per the resolved error policy) and
// normalizing the rest to carry an internal size field so concatenation at
// emission time preserves their boundaries. An OBU carrying an extension
// header whose temporal or spatial ID exceeds the configured bound is
// filtered silently too, counted in Stats.LayerFiltered.
func (d *Depacketizer) parseCompleteOBUs(raws [][]byte, events *[]Event) []obu.OBU {
	var out []obu.OBU

	for _, raw := range raws {
		h, err := obu.ParseOBUHeader(raw)
		if err != nil {
			if err != obu.ErrInvalidOBUHeader {
				*events = append(*events, Event{Kind: EventDiscontinuity, Reason: "malformed obu header"})
			}
			continue
		}

		if h.ExtensionHeader != nil {
			if d.Config.MaxTemporalID != nil && h.ExtensionHeader.TemporalID > *d.Config.MaxTemporalID {
				d.stats.LayerFiltered++
				continue
			}
			if d.Config.MaxSpatialID != nil && h.ExtensionHeader.SpatialID > *d.Config.MaxSpatialID {
				d.stats.LayerFiltered++
				continue
			}
		}

		o := obu.OBU{Header: *h, Payload: raw[h.Size():]}
		out = append(out, obu.EnsureSizeField(o))
	}

	return out
}

// emitTU applies the TU emission policy to the accumulated temporal unit:
// suppress output and request a keyframe when no cached sequence header or
// established keyframe exists yet, otherwise emit the canonical temporal
// delimiter followed by an optional cached sequence header and the TU's own
// OBUs (temporal delimiters and tile lists stripped).
func (d *Depacketizer) emitTU() (*DepacketizedTU, []Event) {
	var events []Event

	tu := obu.ClassifyAU(d.tuOBUs)
	body := stripDelimitersAndTileLists(d.tuOBUs)

	build := func(prefix []byte) *DepacketizedTU {
		out := append([]byte{}, canonicalTD...)
		out = append(out, prefix...)
		out = append(out, body...)
		return &DepacketizedTU{Payload: out, RTPTimestamp: d.tuTimestamp, IsKeyframe: tu.IsKeyframe}
	}

	if !d.Config.RequireSequenceHeader {
		return build(nil), events
	}

	if !d.haveCachedSeqHeader && tu.HasFrameData {
		events = append(events, Event{Kind: EventKeyframeRequest, Reason: "no cached sequence header yet"})
		d.waitingForKeyframe = true
		d.stats.KeyframesRequested++
		return nil, events
	}

	if !d.keyframeEstablished && tu.HasFrameData && !tu.IsKeyframe {
		events = append(events, Event{Kind: EventKeyframeRequest, Reason: "keyframe not yet established"})
		d.waitingForKeyframe = true
		d.stats.KeyframesRequested++
		return nil, events
	}

	if tu.HasSequenceHeader && tu.HasFrameData {
		d.keyframeEstablished = true
		d.waitingForKeyframe = false
		return build(nil), events
	}

	return build(d.cachedSeqHeader), events
}

func stripDelimitersAndTileLists(obus []obu.OBU) []byte {
	var out []byte
	for _, o := range obus {
		if o.Header.Type == obu.OBUTemporalDelimiter || o.Header.Type == obu.OBUTileList {
			continue
		}
		out = append(out, o.Marshal()...)
	}
	return out
}

// splitSlots divides payload into its aggregation-header-declared OBU
// element slots: W=0 means every slot is LEB128-length-prefixed; W in 1..3
// means the first W-1 slots are prefixed and the last extends to the end of
// payload, whether or not that last (or, via Z, first) slot turns out to
// hold a fragment rather than a complete OBU.
func splitSlots(payload []byte, w uint8) ([][]byte, error) {
	if w == 0 {
		return splitAllPrefixed(payload)
	}

	rest := payload
	var slots [][]byte

	for i := 0; i < int(w)-1; i++ {
		length, n, err := obu.ReadLeb128(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
		if uint(len(rest)) < length {
			return nil, errShortPacket
		}
		slots = append(slots, rest[:length])
		rest = rest[length:]
	}

	slots = append(slots, rest)
	return slots, nil
}

func splitAllPrefixed(payload []byte) ([][]byte, error) {
	rest := payload
	var slots [][]byte

	for len(rest) > 0 {
		length, n, err := obu.ReadLeb128(rest)
		if err != nil {
			return nil, err
		}
		rest = rest[n:]
		if uint(len(rest)) < length {
			return nil, errShortPacket
		}
		slots = append(slots, rest[:length])
		rest = rest[length:]
	}

	return slots, nil
}

// Unmarshal implements rtp.Depacketizer's single-packet contract: it parses
// the aggregation header and returns the concatenation of this packet's
// complete, size-field-normalized OBU elements. The RTP header fields
// (sequence number, timestamp, marker) that cross-packet fragment
// reassembly and temporal-unit aggregation depend on aren't available
// through this interface -- a fragment piece is simply omitted. Callers
// that need full reassembly should drive DepacketizeRTP/Push directly.
func (d *Depacketizer) Unmarshal(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, nil
	}

	h, err := DecodeHeader(packet, d.Config.HeaderMode)
	if err != nil {
		return nil, err
	}

	slots, err := splitSlots(packet[1:], h.W)
	if err != nil {
		return nil, err
	}

	var out []byte
	n := len(slots)
	for i, s := range slots {
		if (i == 0 && h.Z) || (i == n-1 && h.Y) {
			continue
		}
		ho, err := obu.ParseOBUHeader(s)
		if err != nil {
			continue
		}
		o := obu.OBU{Header: *ho, Payload: s[ho.Size():]}
		out = append(out, obu.EnsureSizeField(o).Marshal()...)
	}

	return out, nil
}

// IsDetectedFinalPacketInSequence implements rtp.Depacketizer.
func (d *Depacketizer) IsDetectedFinalPacketInSequence(pkt *rtp.Packet) bool {
	return pkt != nil && pkt.Marker
}

// IsPartitionHead implements rtp.PartitionHeadChecker: a packet starts a new
// partition unless its aggregation header's Z bit marks it as continuing a
// fragment from the previous packet.
func (d *Depacketizer) IsPartitionHead(payload []byte) bool {
	h, err := DecodeHeader(payload, d.Config.HeaderMode)
	if err != nil {
		return false
	}
	return !h.Z
}
