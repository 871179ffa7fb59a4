// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

import (
	"errors"
	"fmt"
)

// MaxOBUSize is the largest payload size the validator accepts for a single
// OBU before rejecting it as OBUTooLarge.
const MaxOBUSize = 256000

// Kind identifies a class of OBU structural validation failure.
type Kind int

// Validation error kinds.
const (
	KindInvalidLEB128 Kind = iota
	KindIncompleteOBU
	KindZeroLengthOBU
	KindOBUTooLarge
	KindForbiddenBitSet
	KindMalformedHeader
	KindPartialOBUAtBoundary
)

func (k Kind) String() string {
	switch k {
	case KindInvalidLEB128:
		return "InvalidLEB128"
	case KindIncompleteOBU:
		return "IncompleteOBU"
	case KindZeroLengthOBU:
		return "ZeroLengthOBU"
	case KindOBUTooLarge:
		return "OBUTooLarge"
	case KindForbiddenBitSet:
		return "ForbiddenBitSet"
	case KindMalformedHeader:
		return "MalformedHeader"
	case KindPartialOBUAtBoundary:
		return "PartialOBUAtBoundary"
	default:
		return "Unknown"
	}
}

// ValidationError reports why an access unit failed structural validation.
type ValidationError struct {
	Kind     Kind
	Reason   string
	Expected int
	Actual   int
	Size     int
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindIncompleteOBU:
		return fmt.Sprintf("%s: expected %d bytes, got %d", e.Kind, e.Expected, e.Actual)
	case KindOBUTooLarge:
		return fmt.Sprintf("%s: size %d exceeds max %d", e.Kind, e.Size, MaxOBUSize)
	case KindPartialOBUAtBoundary:
		return fmt.Sprintf("%s: %d bytes remaining", e.Kind, e.Size)
	case KindInvalidLEB128, KindMalformedHeader:
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	default:
		return e.Kind.String()
	}
}

// Is allows errors.Is(err, obu.ErrForbiddenBitSet)-style matching against a
// specific Kind via the package-level sentinel variables below.
func (e *ValidationError) Is(target error) bool {
	var other *ValidationError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinels usable with errors.Is to match a ValidationError's Kind without
// inspecting its fields.
var (
	ErrForbiddenBitSet       = &ValidationError{Kind: KindForbiddenBitSet}
	ErrPartialOBUAtBoundary  = &ValidationError{Kind: KindPartialOBUAtBoundary}
	ErrZeroLengthOBU         = &ValidationError{Kind: KindZeroLengthOBU}
)

// Validate checks that data is a well-formed low-overhead sequence of OBUs:
// every header has forbidden=0, every LEB128 size is well-formed, every OBU
// is complete within the buffer, and no OBU exceeds MaxOBUSize. Validation
// is optional on the payloader's trust-the-encoder path and mandatory
// before any destructive rewrite of the access unit.
func Validate(data []byte) error {
	rest := data

	for len(rest) > 0 {
		h, err := ParseOBUHeader(rest)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidOBUHeader):
				return &ValidationError{Kind: KindForbiddenBitSet}
			case errors.Is(err, ErrShortHeader):
				return &ValidationError{Kind: KindPartialOBUAtBoundary, Size: len(rest)}
			default:
				return &ValidationError{Kind: KindMalformedHeader, Reason: err.Error()}
			}
		}

		if h.ExtensionHeader != nil && h.ExtensionHeader.Reserved3Bits != 0 {
			return &ValidationError{Kind: KindMalformedHeader, Reason: "extension header reserved bits set"}
		}

		hdrLen := h.Size()

		if !h.HasSizeField {
			// No internal size field: the remainder of the buffer is taken
			// to belong to this OBU, as framed by the caller (e.g. the RTP
			// W field). Nothing more to validate.
			if len(rest) == hdrLen {
				return &ValidationError{Kind: KindZeroLengthOBU}
			}
			return nil
		}

		size, n, err := ReadLeb128(rest[hdrLen:])
		if err != nil {
			return &ValidationError{Kind: KindInvalidLEB128, Reason: err.Error()}
		}

		if size == 0 {
			return &ValidationError{Kind: KindZeroLengthOBU}
		}

		if size > MaxOBUSize {
			return &ValidationError{Kind: KindOBUTooLarge, Size: int(size)}
		}

		start := hdrLen + int(n)
		total := start + int(size)
		if total > len(rest) {
			return &ValidationError{Kind: KindIncompleteOBU, Expected: total, Actual: len(rest)}
		}

		rest = rest[total:]
	}

	return nil
}
