// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import "fmt"

const (
	zBitMask = byte(0b1000_0000)
	yBitMask = byte(0b0100_0000)
	wBitMask = byte(0b0011_0000)
	wBitShift = 4
	nBitMask = byte(0b0000_1000)
	reservedBitsMask = byte(0b0000_0111)
)

// AggregationHeader is the one-byte RTP aggregation header RFC 9628
// prepends to every AV1 RTP payload. The reserved low three bits must
// always be zero on the wire; this implementation follows the RFC 9628
// meaning of Z exclusively ("first OBU element continues a fragment from
// the previous packet") and never the legacy "SS present" meaning -- any
// Scalability Structure transport goes through the FMTP ss-data parameter
// instead, per the resolved ambiguity between the two.
type AggregationHeader struct {
	// Z: the first OBU element in this packet is a continuation of an OBU
	// fragment from the previous packet.
	Z bool
	// Y: the last OBU element in this packet will continue in the next packet.
	Y bool
	// W: number of OBU elements in this packet. 0 means all elements are
	// LEB128-length-prefixed; 1..3 means that many elements, with the last
	// one unprefixed (extends to the end of the payload).
	W uint8
	// N: this packet is the first packet of a new coded video sequence.
	N bool
}

// Marshal encodes h into its single wire byte.
func (h AggregationHeader) Marshal() (byte, error) {
	if h.W > 3 {
		return 0, fmt.Errorf("%w: %d", errInvalidW, h.W)
	}

	var b byte
	if h.Z {
		b |= zBitMask
	}
	if h.Y {
		b |= yBitMask
	}
	b |= h.W << wBitShift & wBitMask
	if h.N {
		b |= nBitMask
	}

	return b, nil
}

// DecodeAggregationHeader parses the aggregation header byte at the front of
// buf. It rejects a set reserved bit; every other combination of Z, Y, W and
// N round-trips, including Z=1,N=1, per the aggregation header's data model.
func DecodeAggregationHeader(buf []byte) (*AggregationHeader, error) {
	if len(buf) == 0 {
		return nil, errShortPacket
	}

	b := buf[0]
	if b&reservedBitsMask != 0 {
		return nil, errReservedBitsSet
	}

	h := &AggregationHeader{
		Z: b&zBitMask != 0,
		Y: b&yBitMask != 0,
		W: b & wBitMask >> wBitShift,
		N: b&nBitMask != 0,
	}

	return h, nil
}

// DraftHeader is the legacy pre-RFC-9628 one-byte aggregation header kept
// for interop with deployments that predate RFC 9628: `S E F C`
// (start-of-fragment, end-of-fragment, fragmented, obu_count in 0..31). It
// has no equivalent of the RFC header's N bit; a new-coded-video-sequence
// can't be signaled on the wire in this mode.
type DraftHeader struct {
	Start      bool
	End        bool
	Fragmented bool
	OBUCount   uint8 // 0..31
}

const (
	draftStartMask      = byte(0b1000_0000)
	draftEndMask        = byte(0b0100_0000)
	draftFragmentedMask = byte(0b0010_0000)
	draftCountMask      = byte(0b0001_1111)
)

// Marshal encodes d into its single wire byte.
func (d DraftHeader) Marshal() (byte, error) {
	if d.OBUCount > 31 {
		return 0, fmt.Errorf("%w: %d", errInvalidDraftCount, d.OBUCount)
	}

	var b byte
	if d.Start {
		b |= draftStartMask
	}
	if d.End {
		b |= draftEndMask
	}
	if d.Fragmented {
		b |= draftFragmentedMask
	}
	b |= d.OBUCount & draftCountMask

	return b, nil
}

// DecodeDraftHeader parses the legacy aggregation header byte at the front
// of buf. The draft format carries no reserved bits to check.
func DecodeDraftHeader(buf []byte) (*DraftHeader, error) {
	if len(buf) == 0 {
		return nil, errShortPacket
	}

	b := buf[0]
	return &DraftHeader{
		Start:      b&draftStartMask != 0,
		End:        b&draftEndMask != 0,
		Fragmented: b&draftFragmentedMask != 0,
		OBUCount:   b & draftCountMask,
	}, nil
}

// ToDraft maps h's RFC 9628 semantics onto the legacy S/E/F/C fields:
// Fragmented is set whenever this packet carries any part of a fragment (Z
// or Y); Start marks the opening packet of a fragment sequence (Y=1,Z=0);
// End marks the closing one (Z=1,Y=0). h.N has no draft equivalent and is
// dropped.
func (h AggregationHeader) ToDraft() DraftHeader {
	return DraftHeader{
		Start:      h.Y && !h.Z,
		End:        h.Z && !h.Y,
		Fragmented: h.Z || h.Y,
		OBUCount:   h.W,
	}
}

// FromDraft recovers Z/Y/W from a legacy header. N is always false, since
// the draft format can't carry it.
func (d DraftHeader) FromDraft() AggregationHeader {
	return AggregationHeader{
		Z: d.End || (d.Fragmented && !d.Start),
		Y: d.Start || (d.Fragmented && !d.End),
		W: d.OBUCount,
	}
}

// MarshalHeader encodes h as the wire byte appropriate for mode: the RFC
// 9628 aggregation header for HeaderModeSpec, or the legacy S/E/F/C form
// for HeaderModeDraft.
func MarshalHeader(h AggregationHeader, mode HeaderMode) (byte, error) {
	if mode == HeaderModeDraft {
		return h.ToDraft().Marshal()
	}
	return h.Marshal()
}

// DecodeHeader parses buf's first byte per mode, always returning the
// semantic Z/Y/W/N fields AggregationHeader exposes, regardless of which
// wire form produced them.
func DecodeHeader(buf []byte, mode HeaderMode) (*AggregationHeader, error) {
	if mode == HeaderModeDraft {
		d, err := DecodeDraftHeader(buf)
		if err != nil {
			return nil, err
		}
		h := d.FromDraft()
		return &h, nil
	}
	return DecodeAggregationHeader(buf)
}
