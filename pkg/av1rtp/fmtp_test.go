// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFMTP(t *testing.T) {
	f, err := ParseFMTP("profile=0;level-idx=8;tier=0;tid=2;lid=1")
	assert.NoError(t, err)
	assert.Equal(t, 0, *f.Profile)
	assert.Equal(t, 8, *f.LevelIdx)
	assert.Equal(t, 0, *f.Tier)
	assert.Equal(t, 2, *f.TemporalID)
	assert.Equal(t, 1, *f.SpatialID)
}

func TestParseFMTP_Aliases(t *testing.T) {
	f, err := ParseFMTP("profile-id=1;temporal_id=3;spatial_id=2")
	assert.NoError(t, err)
	assert.Equal(t, 1, *f.Profile)
	assert.Equal(t, 3, *f.TemporalID)
	assert.Equal(t, 2, *f.SpatialID)
}

func TestParseFMTP_InvalidProfileTier(t *testing.T) {
	_, err := ParseFMTP("profile=0;tier=1")
	assert.ErrorIs(t, err, ErrInvalidProfileTier)
}

func TestParseFMTP_InvalidValue(t *testing.T) {
	_, err := ParseFMTP("level-idx=99")
	assert.ErrorIs(t, err, ErrInvalidFMTPValue)
}

func TestParseFMTP_SSData(t *testing.T) {
	ss := ScalabilityStructure{
		Y:             true,
		SpatialLayers: []SpatialLayer{{Width: 320, Height: 180}},
		Pictures:      []PictureDescriptor{{PDiffs: []uint8{1}}},
	}
	data, err := ss.Encode()
	assert.NoError(t, err)

	f, err := ParseFMTP("ss-data=" + hex.EncodeToString(data))
	assert.NoError(t, err)
	assert.Equal(t, ss, *f.SS)
}

func TestLevelStringTable(t *testing.T) {
	s, ok := LevelString(8)
	assert.True(t, ok)
	assert.Equal(t, "4.0", s)

	idx, ok := LevelIndex("4.0")
	assert.True(t, ok)
	assert.Equal(t, 8, idx)

	_, ok = LevelString(2)
	assert.False(t, ok)
}

func TestFMTP_StringRoundTrip(t *testing.T) {
	profile, levelIdx := 0, 8
	f := FMTP{Profile: &profile, LevelIdx: &levelIdx}

	parsed, err := ParseFMTP(f.String())
	assert.NoError(t, err)
	assert.Equal(t, *f.Profile, *parsed.Profile)
	assert.Equal(t, *f.LevelIdx, *parsed.LevelIdx)
}
