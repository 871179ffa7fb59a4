// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

// TemporalUnit is one logical decoding moment: the OBUs that belong to it,
// and the classification bits the payloader's marker placement and the
// depayloader's keyframe gating both depend on.
type TemporalUnit struct {
	OBUs              []OBU
	HasSequenceHeader bool
	HasFrameData      bool
	IsKeyframe        bool
}

const (
	frameTypeBitsMask   = byte(0b0110_0000)
	frameTypeBitsShift  = 5
	showExistingMask    = byte(0b1000_0000)
	keyFrameType        = 0
)

// isKeyframeOBU inspects the first payload byte of a frame or frame_header
// OBU. The AV1 bitstream places show_existing_frame in the top bit and
// frame_type in the next two bits when the sequence header's
// reduced_still_picture_header is unset, which holds for every encoder this
// detector targets.
func isKeyframeOBU(o OBU) bool {
	if len(o.Payload) == 0 {
		return false
	}

	b := o.Payload[0]
	showExistingFrame := b&showExistingMask != 0
	frameType := b & frameTypeBitsMask >> frameTypeBitsShift

	return !showExistingFrame && frameType == keyFrameType
}

// ClassifyAU inspects a flat list of OBUs (typically one temporal unit) and
// reports whether a sequence header or frame data is present, and whether
// that frame data is a keyframe.
func ClassifyAU(obus []OBU) TemporalUnit {
	tu := TemporalUnit{OBUs: obus}

	for _, o := range obus {
		switch o.Header.Type {
		case OBUSequenceHeader:
			tu.HasSequenceHeader = true
		case OBUFrame, OBUFrameHeader:
			tu.HasFrameData = true
			if isKeyframeOBU(o) {
				tu.IsKeyframe = true
			}
		}
	}

	return tu
}

// IsNewCodedVideoSequence reports whether obus, an access unit's OBUs,
// begins a new coded video sequence. Per the resolved ambiguity, presence
// of a sequence header OBU is the decisive condition regardless of frame
// type.
func IsNewCodedVideoSequence(obus []OBU) bool {
	for _, o := range obus {
		if o.Header.Type == OBUSequenceHeader {
			return true
		}
	}
	return false
}

// SplitIntoTUs partitions an access unit's OBUs into one or more temporal
// units, delimited by temporal-delimiter OBUs or by a fresh sequence header
// arriving mid-AU. Temporal-delimiter OBUs themselves are dropped; callers
// wanting the canonical delimiter back (e.g. at depayloader TU emission)
// prepend it separately.
func SplitIntoTUs(obus []OBU) []TemporalUnit {
	var tus []TemporalUnit
	var cur []OBU

	flush := func() {
		if len(cur) > 0 {
			tus = append(tus, ClassifyAU(cur))
			cur = nil
		}
	}

	for _, o := range obus {
		if o.Header.Type == OBUTemporalDelimiter {
			flush()
			continue
		}

		if o.Header.Type == OBUSequenceHeader && len(cur) > 0 {
			flush()
		}

		cur = append(cur, o)
	}
	flush()

	return tus
}
