// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalabilityStructure_RoundTrip_WithFrameRate(t *testing.T) {
	fr := uint16(30)
	s := ScalabilityStructure{
		Y: false,
		SpatialLayers: []SpatialLayer{
			{Width: 320, Height: 180, FrameRate: &fr},
			{Width: 640, Height: 360, FrameRate: &fr},
		},
		Pictures: []PictureDescriptor{
			{TemporalID: 0, U: 1, R: 0, PDiffs: []uint8{1, 2}},
			{TemporalID: 1, U: 0, R: 1, PDiffs: []uint8{3, 4}},
		},
	}

	data, err := s.Encode()
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(data), maxSSSize)

	decoded, err := DecodeScalabilityStructure(data)
	assert.NoError(t, err)
	assert.Equal(t, s, *decoded)
}

func TestScalabilityStructure_RoundTrip_NoFrameRate(t *testing.T) {
	s := ScalabilityStructure{
		Y: true,
		SpatialLayers: []SpatialLayer{
			{Width: 1280, Height: 720},
		},
		Pictures: []PictureDescriptor{
			{TemporalID: 2, U: 0, R: 0, PDiffs: []uint8{5}},
		},
	}

	data, err := s.Encode()
	assert.NoError(t, err)

	decoded, err := DecodeScalabilityStructure(data)
	assert.NoError(t, err)
	assert.Equal(t, s, *decoded)
}

func TestScalabilityStructure_InvalidNS(t *testing.T) {
	_, err := ScalabilityStructure{}.Encode()
	assert.ErrorIs(t, err, ErrInvalidNS)

	tooMany := make([]SpatialLayer, 9)
	_, err = ScalabilityStructure{SpatialLayers: tooMany}.Encode()
	assert.ErrorIs(t, err, ErrInvalidNS)
}

func TestScalabilityStructure_PictureDescCountMismatch(t *testing.T) {
	s := ScalabilityStructure{
		Y:             true,
		SpatialLayers: []SpatialLayer{{Width: 100, Height: 100}, {Width: 200, Height: 200}},
		Pictures:      []PictureDescriptor{{PDiffs: []uint8{1}}}, // expected 2 PDiffs
	}

	_, err := s.Encode()
	assert.ErrorIs(t, err, ErrIncompletePictureDesc)
}

func TestScalabilityStructure_DecodeIncomplete(t *testing.T) {
	// header claims 2 spatial layers, Y=0 (framerate present, 6 bytes each),
	// but the buffer only has room for one partial descriptor.
	_, err := DecodeScalabilityStructure([]byte{0b0010_0000, 0x00, 0x64})
	assert.ErrorIs(t, err, ErrIncompleteSpatialLayers)
}
