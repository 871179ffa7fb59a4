// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

import "errors"

// ErrNoSizeField is returned by TotalSize when the OBU at the front of the
// buffer does not carry an internal size field, so its extent cannot be
// determined without external framing (e.g. the RTP aggregation header's W
// field).
var ErrNoSizeField = errors.New("obu has no internal size field")

// TotalSize returns the on-wire length of the complete OBU (header, optional
// extension header, LEB128 size field, and payload) at the front of buf. It
// requires has_size_field=1; an OBU without one has no self-describing
// length and must be sized by its caller's framing.
func TotalSize(buf []byte) (int, error) {
	h, err := ParseOBUHeader(buf)
	if err != nil {
		return 0, err
	}

	if !h.HasSizeField {
		return 0, ErrNoSizeField
	}

	hdrLen := h.Size()
	if hdrLen > len(buf) {
		return 0, ErrShortHeader
	}

	size, n, err := ReadLeb128(buf[hdrLen:])
	if err != nil {
		return 0, err
	}

	return hdrLen + int(n) + int(size), nil
}

// EnsureSizeField returns o with HasSizeField set, a no-op if it already
// was. Concatenating Marshal'd output of size-field-bearing OBUs always
// preserves their boundaries, which is why the payloader and depayloader
// normalize every OBU through this before re-emitting it.
func EnsureSizeField(o OBU) OBU {
	o.Header.HasSizeField = true
	return o
}

// opaque wraps data as the single-element fallback Split functions return
// when the input cannot be parsed as a sequence of OBUs.
func opaque(data []byte) []OBU {
	return []OBU{{Payload: data}}
}

// SplitLowOverhead splits data, a concatenation of OBUs that each carry an
// internal has_size_field=1 LEB128 size, into individual OBUs. On any parse
// failure it returns a single opaque OBU wrapping the whole input and ok=false.
func SplitLowOverhead(data []byte) (obus []OBU, ok bool) {
	rest := data

	for len(rest) > 0 {
		h, err := ParseOBUHeader(rest)
		if err != nil || !h.HasSizeField {
			return opaque(data), false
		}

		hdrLen := h.Size()
		if hdrLen > len(rest) {
			return opaque(data), false
		}

		size, n, err := ReadLeb128(rest[hdrLen:])
		if err != nil {
			return opaque(data), false
		}

		start := hdrLen + int(n)
		end := start + int(size)
		if end > len(rest) {
			return opaque(data), false
		}

		obus = append(obus, OBU{Header: *h, Payload: rest[start:end]})
		rest = rest[end:]
	}

	if len(obus) == 0 {
		return opaque(data), false
	}

	return obus, true
}

// SplitLengthPrefixed splits data, a sequence of LEB128-length-delimited
// OBUs (each OBU itself has_size_field=0, its length carried by the outer
// LEB128 prefix instead), into individual OBUs. On any parse failure it
// returns a single opaque OBU wrapping the whole input and ok=false.
func SplitLengthPrefixed(data []byte) (obus []OBU, ok bool) {
	rest := data

	for len(rest) > 0 {
		length, n, err := ReadLeb128(rest)
		if err != nil {
			return opaque(data), false
		}
		rest = rest[n:]

		if uint(len(rest)) < length {
			return opaque(data), false
		}

		obuBytes := rest[:length]
		rest = rest[length:]

		h, err := ParseOBUHeader(obuBytes)
		if err != nil {
			return opaque(data), false
		}

		hdrLen := h.Size()
		if hdrLen > len(obuBytes) {
			return opaque(data), false
		}

		obus = append(obus, OBU{Header: *h, Payload: obuBytes[hdrLen:]})
	}

	if len(obus) == 0 {
		return opaque(data), false
	}

	return obus, true
}
