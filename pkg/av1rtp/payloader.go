// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"errors"
	"fmt"

	"github.com/pion/rtp-av1/pkg/obu"
)

// OutputPacket is one RTP payload produced by the Payloader, paired with
// the marker bit its caller should set on the RTP packet wrapping it.
type OutputPacket struct {
	Payload []byte
	Marker  bool
}

// Payloader turns AV1 access units into RTP payloads per RFC 9628. It keeps
// a small amount of state across calls -- a cached sequence-header-only
// access unit waiting to be merged into the next frame -- so it is not safe
// for concurrent use by multiple goroutines.
type Payloader struct {
	Config Config

	pendingSeqHeader *obu.OBU
}

// NewPayloader returns a Payloader with cfg's zero-valued MTU, ClockRate,
// size caps, fragment timeout, reorder depth, gap threshold and Logger filled
// from DefaultConfig's values; PayloadType, HeaderMode and the boolean fields
// are used as given. It returns an error if cfg declares an unsupported
// clock rate.
func NewPayloader(cfg Config) (*Payloader, error) {
	cfg.init()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Payloader{Config: cfg}, nil
}

// Payload implements rtp.Payloader, fragmenting and aggregating payload (one
// access unit) to fit mtu-sized RTP payloads. The returned payloads carry no
// marker bits; an rtp.Packetizer driving this method marks only the final
// packet of the access unit. Callers that need TU-aware marker bits should
// use PayloadAU instead.
func (p *Payloader) Payload(mtu uint16, payload []byte) [][]byte {
	saved := p.Config.MTU
	p.Config.MTU = int(mtu)
	packets, err := p.PayloadAU(payload)
	p.Config.MTU = saved

	if err != nil || len(packets) == 0 {
		return nil
	}

	out := make([][]byte, len(packets))
	for i, pk := range packets {
		out[i] = pk.Payload
	}
	return out
}

// PayloadAU turns one access unit into a sequence of RTP payloads. A
// sequence-header-only access unit is cached and produces no output; it is
// merged at the front of the next access unit that is not itself a lone
// sequence header (a second lone sequence header replaces the cached one),
// and that access unit's first packet carries the N bit.
func (p *Payloader) PayloadAU(au []byte) ([]OutputPacket, error) {
	p.Config.init()

	maxPayload := p.Config.MTU - 1 // the one-byte aggregation header
	if maxPayload < 1 {
		maxPayload = 1
	}

	if p.Config.Validate {
		if err := obu.Validate(au); err != nil {
			var verr *obu.ValidationError
			if errors.As(err, &verr) && verr.Kind == obu.KindPartialOBUAtBoundary {
				return nil, fmt.Errorf("%w: %v", ErrPartialOBUAtBoundary, err)
			}
			return p.fragmentOpaque(au, maxPayload), nil
		}
	}

	obus, ok := splitAU(au)
	if !ok {
		return p.fragmentOpaque(au, maxPayload), nil
	}

	isNewSeq := obu.IsNewCodedVideoSequence(obus)

	if len(obus) == 1 && obus[0].Header.Type == obu.OBUSequenceHeader {
		cached := obus[0]
		p.pendingSeqHeader = &cached
		return nil, nil
	}

	if p.pendingSeqHeader != nil {
		obus = append([]obu.OBU{*p.pendingSeqHeader}, obus...)
		isNewSeq = true
		p.pendingSeqHeader = nil
	}

	bounds := tuBoundarySet(obus)
	if !p.Config.TUAware {
		bounds = map[int]bool{len(obus) - 1: true}
	}

	return p.assemble(obus, maxPayload, isNewSeq, bounds), nil
}

// splitAU chooses between the low-overhead and length-prefixed OBU framings
// by inspecting the first OBU header's has_size_field bit, per the resolved
// ambiguity over which framing an access unit without external signaling
// uses.
func splitAU(au []byte) ([]obu.OBU, bool) {
	if len(au) == 0 {
		return nil, false
	}

	h, err := obu.ParseOBUHeader(au)
	if err != nil {
		return nil, false
	}

	if h.HasSizeField {
		return obu.SplitLowOverhead(au)
	}
	return obu.SplitLengthPrefixed(au)
}

// tuBoundarySet reports, for each index in obus, whether it is the last OBU
// of a temporal unit: the final OBU overall, or immediately followed by a
// temporal delimiter or a fresh sequence header.
func tuBoundarySet(obus []obu.OBU) map[int]bool {
	bounds := make(map[int]bool, len(obus))
	n := len(obus)

	for i, o := range obus {
		isLast := i == n-1
		nextIsDelimiter := !isLast && obus[i+1].Header.Type == obu.OBUTemporalDelimiter
		nextIsFreshSeq := !isLast && obus[i+1].Header.Type == obu.OBUSequenceHeader &&
			o.Header.Type != obu.OBUTemporalDelimiter

		if isLast || nextIsDelimiter || nextIsFreshSeq {
			bounds[i] = true
		}
	}

	return bounds
}

// elementBytes marshals o as an RTP OBU element: header, extension header
// if present, and payload, but never an internal size field -- elements
// inside an aggregation packet are always sized by the aggregation header's
// W field or by a wrapping LEB128 prefix, never by has_size_field.
func elementBytes(o obu.OBU) []byte {
	e := o
	e.Header.HasSizeField = false
	return e.Marshal()
}

// packetSize returns the wire size of elems packed into one aggregation
// packet: every element but the last gets an LEB128 length prefix when
// elems fits the compact W=1..3 form (len(elems) <= 3); beyond that every
// element, including the last, gets one (the W=0 form).
func packetSize(elems [][]byte) int {
	total := 0
	allPrefixed := len(elems) > 3

	for i, e := range elems {
		if allPrefixed || i < len(elems)-1 {
			total += obu.Leb128Len(uint(len(e))) + len(e)
		} else {
			total += len(e)
		}
	}

	return total
}

// prefixedSize returns the wire size of elems if every one of them carries
// an LEB128 length prefix, used when deciding how much room is left for a
// trailing fragment that will occupy the packet's final, unprefixed slot.
func prefixedSize(elems [][]byte) int {
	total := 0
	for _, e := range elems {
		total += obu.Leb128Len(uint(len(e))) + len(e)
	}
	return total
}

func buildAggregationPacket(elems [][]byte, mode HeaderMode) OutputPacket {
	w := len(elems)
	allPrefixed := w > 3
	if allPrefixed {
		w = 0
	}

	var payload []byte
	for i, e := range elems {
		if allPrefixed || i < len(elems)-1 {
			payload = obu.AppendUleb128(payload, uint(len(e)))
		}
		payload = append(payload, e...)
	}

	hdr, _ := MarshalHeader(AggregationHeader{W: uint8(w)}, mode)
	return OutputPacket{Payload: append([]byte{hdr}, payload...)}
}

// buildHybridPacket packs elems (complete OBU elements, each length
// prefixed since a fragment follows them) followed by fragHead, the opening
// chunk of the next OBU, which occupies the packet's final, unprefixed
// slot. W counts fragHead as one of its elements, per RFC 9628's "last
// element, complete or not, is unprefixed" rule. Callers must never pass
// more than two complete elems: the wire form only has three slots to work
// with once the trailing fragment head claims one of them, and assemble's
// main loop enforces that cap by flushing pending before a third element
// could ever accumulate alongside an in-flight fragment.
func buildHybridPacket(elems [][]byte, fragHead []byte, mode HeaderMode) OutputPacket {
	var payload []byte
	for _, e := range elems {
		payload = obu.AppendUleb128(payload, uint(len(e)))
		payload = append(payload, e...)
	}
	payload = append(payload, fragHead...)

	w := len(elems) + 1

	hdr, _ := MarshalHeader(AggregationHeader{W: uint8(w), Y: true}, mode)
	return OutputPacket{Payload: append([]byte{hdr}, payload...)}
}

// fragmentBytes splits data into maxPayload-sized fragment packets (W=1).
// forceZ1 marks every fragment, including the first, as a continuation --
// used when data is the tail of an OBU whose opening chunk already went out
// in a hybrid aggregation+fragmentation packet.
func fragmentBytes(data []byte, maxPayload int, forceZ1 bool, mode HeaderMode) []OutputPacket {
	var out []OutputPacket

	for len(data) > 0 {
		n := maxPayload
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]

		z := forceZ1 || len(out) > 0
		y := len(data) > 0

		hdr, _ := MarshalHeader(AggregationHeader{Z: z, Y: y, W: 1}, mode)
		out = append(out, OutputPacket{Payload: append([]byte{hdr}, chunk...)})
	}

	return out
}

// fragmentOpaque is the naive fallback used when the access unit cannot be
// parsed as OBUs at all, or failed structural validation for a reason other
// than a partial trailing OBU: the whole buffer is treated as a single
// opaque element and fragmented without attempting to respect OBU
// boundaries.
func (p *Payloader) fragmentOpaque(au []byte, maxPayload int) []OutputPacket {
	if len(au) == 0 {
		return nil
	}

	var packets []OutputPacket
	if len(au) <= maxPayload {
		hdr, _ := MarshalHeader(AggregationHeader{W: 1}, p.Config.HeaderMode)
		packets = []OutputPacket{{Payload: append([]byte{hdr}, au...)}}
	} else {
		packets = fragmentBytes(au, maxPayload, false, p.Config.HeaderMode)
	}

	if len(packets) > 0 {
		packets[len(packets)-1].Marker = true
	}
	return packets
}

// assemble runs the core packetization loop: greedily aggregate complete
// OBU elements into a packet, falling back to a hybrid aggregation+
// fragmentation packet when the next element only partially fits, and to
// plain fragmentation when it doesn't fit a fresh packet at all. A packet
// boundary is forced at every temporal unit boundary in bounds, so the
// marker bit can always be placed on the packet that actually ends the TU.
func (p *Payloader) assemble(obus []obu.OBU, maxPayload int, isNewSeq bool, bounds map[int]bool) []OutputPacket {
	var packets []OutputPacket
	var pending [][]byte

	setLastMarker := func() {
		if len(packets) > 0 {
			packets[len(packets)-1].Marker = true
		}
	}

	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		packets = append(packets, buildAggregationPacket(pending, p.Config.HeaderMode))
		pending = nil
	}

	for idx, o := range obus {
		raw := elementBytes(o)
		boundary := bounds[idx]

		candidate := append(append([][]byte{}, pending...), raw)
		if packetSize(candidate) <= maxPayload {
			pending = candidate
			// Cap pending at two complete elements: a third element might
			// turn out not to fit, forcing a hybrid aggregation+fragmentation
			// packet, and that wire form only has room for two prefixed
			// elements ahead of the trailing fragment slot (W<=3). Flushing
			// here guarantees buildHybridPacket is never asked to pack more
			// than it can represent.
			if boundary || len(pending) >= 2 {
				flushPending()
			}
			if boundary {
				setLastMarker()
			}
			continue
		}

		remaining := maxPayload - prefixedSize(pending)
		if len(pending) > 0 && remaining >= 1 && remaining < len(raw) {
			head, tail := raw[:remaining], raw[remaining:]
			packets = append(packets, buildHybridPacket(pending, head, p.Config.HeaderMode))
			pending = nil
			packets = append(packets, fragmentBytes(tail, maxPayload, true, p.Config.HeaderMode)...)
			if boundary {
				setLastMarker()
			}
			continue
		}

		flushPending()

		if len(raw) <= maxPayload {
			pending = [][]byte{raw}
			if boundary {
				flushPending()
				setLastMarker()
			}
			continue
		}

		packets = append(packets, fragmentBytes(raw, maxPayload, false, p.Config.HeaderMode)...)
		if boundary {
			setLastMarker()
		}
	}

	// bounds always contains len(obus)-1, so the loop above has already
	// flushed every pending element and set the final marker.

	if isNewSeq && len(packets) > 0 && p.Config.HeaderMode == HeaderModeSpec {
		packets[0].Payload[0] |= nBitMask
	}

	return packets
}
