// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

import (
	"errors"
	"fmt"
)

// Type is an OBU's obu_type field.
type Type uint8

// OBU types defined by the AV1 bitstream specification.
const (
	OBUSequenceHeader       Type = 1
	OBUTemporalDelimiter    Type = 2
	OBUFrameHeader          Type = 3
	OBUTileGroup            Type = 4
	OBUMetadata             Type = 5
	OBUFrame                Type = 6
	OBURedundantFrameHeader Type = 7
	OBUTileList             Type = 8
	OBUPadding              Type = 15
)

// String implements fmt.Stringer.
func (t Type) String() string {
	switch t {
	case OBUSequenceHeader:
		return "OBU_SEQUENCE_HEADER"
	case OBUTemporalDelimiter:
		return "OBU_TEMPORAL_DELIMITER"
	case OBUFrameHeader:
		return "OBU_FRAME_HEADER"
	case OBUTileGroup:
		return "OBU_TILE_GROUP"
	case OBUMetadata:
		return "OBU_METADATA"
	case OBUFrame:
		return "OBU_FRAME"
	case OBURedundantFrameHeader:
		return "OBU_REDUNDANT_FRAME_HEADER"
	case OBUTileList:
		return "OBU_TILE_LIST"
	case OBUPadding:
		return "OBU_PADDING"
	default:
		return "OBU_RESERVED"
	}
}

// IsDiscardable reports whether an OBU of this type may be dropped by a
// depacketizer without corrupting the decode of the remaining OBUs, per
// spec.md's data model (types 1, 2, 3, 4 and 6 are non-discardable).
func (t Type) IsDiscardable() bool {
	switch t {
	case OBUSequenceHeader, OBUTemporalDelimiter, OBUFrameHeader, OBUTileGroup, OBUFrame:
		return false
	default:
		return true
	}
}

const (
	forbiddenBitMask  = byte(0b1000_0000)
	typeMask          = byte(0b0111_1000)
	typeShift         = 3
	extensionFlagMask = byte(0b0000_0100)
	hasSizeFlagMask   = byte(0b0000_0010)
	reserved1BitMask  = byte(0b0000_0001)

	temporalIDMask = byte(0b1110_0000)
	temporalIDShift = 5
	spatialIDMask   = byte(0b0001_1000)
	spatialIDShift  = 3
	reserved3BitMask = byte(0b0000_0111)
)

var (
	// ErrShortHeader indicates a buffer ended before a complete OBU header
	// (and, if present, extension header) could be read.
	ErrShortHeader = errors.New("buffer too short to contain an OBU header")
	// ErrInvalidOBUHeader indicates the forbidden bit was set.
	ErrInvalidOBUHeader = errors.New("obu header has forbidden bit set")
)

// ExtensionHeader is the optional second byte of an OBU header, carrying
// the temporal and spatial layer IDs.
type ExtensionHeader struct {
	TemporalID    uint8 // 3 bits
	SpatialID     uint8 // 2 bits
	Reserved3Bits uint8 // 3 bits, must be 0 on the wire
}

// Marshal encodes the extension header into its single wire byte.
func (e ExtensionHeader) Marshal() byte {
	return (e.TemporalID << temporalIDShift & temporalIDMask) |
		(e.SpatialID << spatialIDShift & spatialIDMask) |
		(e.Reserved3Bits & reserved3BitMask)
}

// Header is an OBU header: the mandatory first byte, plus an optional
// extension byte.
type Header struct {
	Type            Type
	HasSizeField    bool
	Reserved1Bit    bool
	ExtensionHeader *ExtensionHeader
}

// Size returns the on-wire size of the header in bytes: 1, or 2 if an
// extension header is present.
func (h Header) Size() int {
	if h.ExtensionHeader != nil {
		return 2
	}
	return 1
}

// Marshal encodes the header (and extension header, if present).
func (h Header) Marshal() []byte {
	out := make([]byte, h.Size())

	out[0] = byte(h.Type) << typeShift & typeMask
	if h.ExtensionHeader != nil {
		out[0] |= extensionFlagMask
	}
	if h.HasSizeField {
		out[0] |= hasSizeFlagMask
	}
	if h.Reserved1Bit {
		out[0] |= reserved1BitMask
	}

	if h.ExtensionHeader != nil {
		out[1] = h.ExtensionHeader.Marshal()
	}

	return out
}

// ParseOBUHeader parses an OBU header (and extension header, if the
// extension flag is set) from the front of buf.
func ParseOBUHeader(buf []byte) (*Header, error) {
	if len(buf) < 1 {
		return nil, ErrShortHeader
	}

	b := buf[0]
	if b&forbiddenBitMask != 0 {
		return nil, ErrInvalidOBUHeader
	}

	h := &Header{
		Type:         Type(b & typeMask >> typeShift),
		HasSizeField: b&hasSizeFlagMask != 0,
		Reserved1Bit: b&reserved1BitMask != 0,
	}

	if b&extensionFlagMask != 0 {
		if len(buf) < 2 {
			return nil, fmt.Errorf("%w: missing extension byte", ErrShortHeader)
		}

		ext := buf[1]
		h.ExtensionHeader = &ExtensionHeader{
			TemporalID:    ext & temporalIDMask >> temporalIDShift,
			SpatialID:     ext & spatialIDMask >> spatialIDShift,
			Reserved3Bits: ext & reserved3BitMask,
		}
	}

	return h, nil
}
