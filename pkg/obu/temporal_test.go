// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package obu

import "testing"

func TestClassifyAU(t *testing.T) {
	seq := OBU{Header: Header{Type: OBUSequenceHeader}}
	keyframe := OBU{Header: Header{Type: OBUFrame}, Payload: []byte{0x00}}
	interFrame := OBU{Header: Header{Type: OBUFrame}, Payload: []byte{0b0010_0000}}

	tu := ClassifyAU([]OBU{seq, keyframe})
	if !tu.HasSequenceHeader || !tu.HasFrameData || !tu.IsKeyframe {
		t.Fatalf("expected sequence header + keyframe, got %+v", tu)
	}

	tu = ClassifyAU([]OBU{interFrame})
	if tu.HasSequenceHeader || !tu.HasFrameData || tu.IsKeyframe {
		t.Fatalf("expected inter frame only, got %+v", tu)
	}
}

func TestIsNewCodedVideoSequence(t *testing.T) {
	withSeq := []OBU{{Header: Header{Type: OBUSequenceHeader}}, {Header: Header{Type: OBUFrame}}}
	withoutSeq := []OBU{{Header: Header{Type: OBUFrame}}}

	if !IsNewCodedVideoSequence(withSeq) {
		t.Errorf("expected true when a sequence header is present")
	}
	if IsNewCodedVideoSequence(withoutSeq) {
		t.Errorf("expected false when no sequence header is present")
	}
}

func TestSplitIntoTUs(t *testing.T) {
	td := OBU{Header: Header{Type: OBUTemporalDelimiter}}
	seq := OBU{Header: Header{Type: OBUSequenceHeader}}
	frame1 := OBU{Header: Header{Type: OBUFrame}, Payload: []byte{0x00}}
	frame2 := OBU{Header: Header{Type: OBUFrame}, Payload: []byte{0b0010_0000}}

	tus := SplitIntoTUs([]OBU{td, seq, frame1, td, frame2})
	if len(tus) != 2 {
		t.Fatalf("expected 2 TUs, got %d", len(tus))
	}
	if !tus[0].HasSequenceHeader || !tus[0].IsKeyframe {
		t.Errorf("expected first TU to carry the sequence header + keyframe, got %+v", tus[0])
	}
	if tus[1].HasSequenceHeader || tus[1].IsKeyframe {
		t.Errorf("expected second TU to be a plain inter frame, got %+v", tus[1])
	}

	// A fresh sequence header mid-AU (no temporal delimiter in between)
	// still starts a new TU.
	tus = SplitIntoTUs([]OBU{seq, frame1, seq, frame2})
	if len(tus) != 2 {
		t.Fatalf("expected 2 TUs on fresh sequence header, got %d", len(tus))
	}
}
