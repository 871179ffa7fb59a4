// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package av1rtp implements the RTP payload format for the AV1 video codec
// (RFC 9628): the aggregation header and Scalability Structure codecs, the
// FMTP parameter model, and the stateful payloader/depayloader built on top
// of github.com/pion/rtp.
package av1rtp

import "errors"

var (
	errNilPacket          = errors.New("packet is nil")
	errShortPacket        = errors.New("packet is not large enough")
	errReservedBitsSet    = errors.New("aggregation header reserved bits are set")
	errInvalidW           = errors.New("aggregation header W field is invalid")
	errInvalidWTransition = errors.New("illegal W-bit state transition")
	errInvalidDraftCount  = errors.New("draft aggregation header obu_count field is invalid")

	// ErrSSTooLarge is returned by the Scalability Structure encoder when
	// the encoded block would exceed the 255-byte wire limit.
	ErrSSTooLarge = errors.New("scalability structure exceeds 255 bytes")
	// ErrInvalidNS is returned when N_S would encode more than 8 spatial layers.
	ErrInvalidNS = errors.New("invalid number of spatial layers")
	// ErrInvalidNG is returned when N_G would encode more than 15 picture descriptors.
	ErrInvalidNG = errors.New("invalid number of picture group entries")
	// ErrSpatialLayerCountMismatch is returned on decode when a spatial
	// layer descriptor declares a zero width or height. The decoder always
	// reads exactly N_S+1 descriptors, so the count itself never disagrees.
	ErrSpatialLayerCountMismatch = errors.New("spatial layer count does not match N_S")
	// ErrIncompleteSpatialLayers is returned when the buffer ends mid spatial layer descriptor.
	ErrIncompleteSpatialLayers = errors.New("buffer too short for spatial layer descriptors")
	// ErrIncompletePictureDesc is returned when the buffer ends mid picture descriptor.
	ErrIncompletePictureDesc = errors.New("buffer too short for picture descriptors")

	// ErrInvalidProfileTier is returned by the FMTP parser when profile=0 is
	// combined with tier=1, a combination the AV1 profile table forbids.
	ErrInvalidProfileTier = errors.New("profile 0 cannot be combined with tier 1")
	// ErrInvalidFMTPValue is returned when an FMTP key's value fails to parse
	// or falls outside its legal range.
	ErrInvalidFMTPValue = errors.New("invalid fmtp value")
	// ErrUnsupportedClockRate is returned by NewPayloader and NewDepacketizer
	// when Config.ClockRate is set to anything other than the AV1 RTP clock
	// rate of 90000 Hz.
	ErrUnsupportedClockRate = errors.New("av1 rtp clock rate must be 90000")

	// ErrPartialOBUAtBoundary is returned by the payloader when the input
	// access unit ends mid-OBU and validation was requested.
	ErrPartialOBUAtBoundary = errors.New("access unit ends with a partial obu")
)
