// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/rtp-av1/pkg/obu"
)

func TestNewPayloadStream_Packetizes(t *testing.T) {
	p, err := NewPayloader(DefaultConfig())
	require.NoError(t, err)

	packetizer := NewPayloadStream(p, ClockRate)
	au := auBytes(buildOBU(obu.OBUFrame, keyframePayload(4)))

	packets := packetizer.Packetize(au, 1500)
	require.Len(t, packets, 1)
	assert.Equal(t, DefaultConfig().PayloadType, packets[0].PayloadType)
	assert.Equal(t, byte(0x10), packets[0].Payload[0])
}
