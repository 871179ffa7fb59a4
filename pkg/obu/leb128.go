// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package obu implements the AV1 "Open Bitstream Unit" codec: LEB128
// integers, OBU headers, OBU boundary recovery, and the temporal-unit /
// sequence-header detector used by the RTP payloader and depayloader.
package obu

import (
	"errors"
	"fmt"
)

const (
	sevenLsbBitmask = uint(0b01111111)
	msbBitmask      = uint(0b10000000)

	// maxLEB128Bytes is the largest number of bytes ReadLeb128 will scan
	// before giving up. AV1 OBU sizes never require more than 8 bytes;
	// a longer run is either corrupt or hostile input.
	maxLEB128Bytes = 8
)

// ErrFailedToReadLEB128 indicates that a buffer ended before a LEB128 value
// could be successfully read, or that it exceeded the maximum byte length.
var ErrFailedToReadLEB128 = errors.New("payload ended before LEB128 was finished")

// AppendUleb128 appends v to b using unsigned LEB128 encoding.
func AppendUleb128(b []byte, v uint) []byte {
	if v < 0x80 {
		return append(b, byte(v))
	}

	for {
		c := uint8(v & 0x7f)
		v >>= 7

		if v != 0 {
			c |= 0x80
		}

		b = append(b, c)

		if c&0x80 == 0 {
			break
		}
	}

	return b
}

// WriteToLeb128 encodes v as a canonical minimal-length LEB128 byte slice.
func WriteToLeb128(v uint) []byte {
	return AppendUleb128(make([]byte, 0, 2), v)
}

// EncodeLEB128 packs v's LEB128 byte sequence into a single uint, most
// significant byte first (e.g. 999999 encodes to the three bytes
// 0xBF 0x84 0x3D, packed here as 0xBF843D). This packed form is convenient
// for table-driven tests and round-trips with decodeLEB128; WriteToLeb128
// is what should be used to obtain the actual wire bytes.
func EncodeLEB128(in uint) (out uint) {
	for _, b := range WriteToLeb128(in) {
		out = out<<8 | uint(b)
	}
	return out
}

func decodeLEB128(in uint) (out uint) {
	for {
		out |= in & sevenLsbBitmask

		in >>= 8
		if in == 0 {
			return out
		}

		out <<= 7
	}
}

// ReadLeb128 scans a buffer and decodes a LEB128 value, returning the
// decoded value and the number of bytes consumed. It fails if the end of
// the buffer is reached while the continuation bit is still set, or if
// more than 8 bytes are consumed without terminating -- LEB128 reading
// must never loop indefinitely on malformed input.
func ReadLeb128(in []byte) (uint, uint, error) {
	var encodedLength uint

	limit := len(in)
	if limit > maxLEB128Bytes {
		limit = maxLEB128Bytes
	}

	for i := 0; i < limit; i++ {
		encodedLength |= uint(in[i])

		if in[i]&byte(msbBitmask) == 0 {
			return decodeLEB128(encodedLength), uint(i + 1), nil
		}

		encodedLength <<= 8
	}

	if len(in) > maxLEB128Bytes {
		return 0, 0, fmt.Errorf("%w: exceeds %d bytes", ErrFailedToReadLEB128, maxLEB128Bytes)
	}

	return 0, 0, ErrFailedToReadLEB128
}

// Leb128Len returns the number of bytes AppendUleb128 would emit for v.
func Leb128Len(v uint) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// SizeLeb128 returns the number of bytes needed to encode a packed LEB128
// value as produced by EncodeLEB128.
func SizeLeb128(leb128 uint) uint {
	switch {
	case (leb128 >> 24) > 0:
		return 4
	case (leb128 >> 16) > 0:
		return 3
	case (leb128 >> 8) > 0:
		return 2
	default:
		return 1
	}
}
