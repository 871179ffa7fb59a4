// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pion/rtp-av1/pkg/obu"
)

func obuElem(typ obu.Type, payload []byte) []byte {
	return elementBytes(obu.OBU{Header: obu.Header{Type: typ}, Payload: payload})
}

func rtpPkt(seq uint16, ts uint32, marker bool, payload []byte) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker}, Payload: payload}
}

func TestDepacketizer_NormalAggregation(t *testing.T) {
	d, err := NewDepacketizer(DefaultConfig())
	require.NoError(t, err)
	elems := [][]byte{
		obuElem(obu.OBUSequenceHeader, []byte{0x01, 0x02}),
		obuElem(obu.OBUFrame, keyframePayload(4)),
	}
	pkt := buildAggregationPacket(elems, HeaderModeSpec)

	tu, events, err := d.DepacketizeRTP(rtpPkt(1, 1000, true, pkt.Payload), time.Unix(0, 0))
	require.NoError(t, err)
	require.NotNil(t, tu)
	assert.True(t, tu.IsKeyframe)
	assert.Equal(t, uint32(1000), tu.RTPTimestamp)
	for _, e := range events {
		assert.NotEqual(t, EventKeyframeRequest, e.Kind)
	}
}

func TestDepacketizer_SuppressesUntilSequenceHeader(t *testing.T) {
	d, err := NewDepacketizer(DefaultConfig())
	require.NoError(t, err)
	pkt := buildAggregationPacket([][]byte{obuElem(obu.OBUFrame, keyframePayload(4))}, HeaderModeSpec)

	tu, events, err := d.DepacketizeRTP(rtpPkt(1, 1000, true, pkt.Payload), time.Unix(0, 0))
	require.NoError(t, err)
	assert.Nil(t, tu)
	require.NotEmpty(t, events)
	assert.Equal(t, EventKeyframeRequest, events[len(events)-1].Kind)
}

func TestDepacketizer_FragmentReassembly(t *testing.T) {
	pCfg := DefaultConfig()
	pCfg.MTU = 64
	p, err := NewPayloader(pCfg)
	require.NoError(t, err)
	au := auBytes(buildOBU(obu.OBUFrame, keyframePayload(200)))
	packets, err := p.PayloadAU(au)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	d, err := NewDepacketizer(DefaultConfig())
	require.NoError(t, err)

	// Establish a keyframe first so the fragmented frame-only TU that
	// follows isn't suppressed waiting for a sequence header.
	seed := buildAggregationPacket([][]byte{
		obuElem(obu.OBUSequenceHeader, []byte{0x01}),
		obuElem(obu.OBUFrame, keyframePayload(4)),
	}, HeaderModeSpec)
	_, _, err = d.DepacketizeRTP(rtpPkt(0, 999, true, seed.Payload), time.Unix(0, 0))
	require.NoError(t, err)

	var tu *DepacketizedTU
	for i, pk := range packets {
		var events []Event
		tu, events, err = d.DepacketizeRTP(rtpPkt(uint16(i+1), 2000, pk.Marker, pk.Payload), time.Unix(0, 0))
		require.NoError(t, err)
		for _, e := range events {
			assert.NotEqual(t, EventDiscontinuity, e.Kind, e.Reason)
		}
	}

	require.NotNil(t, tu)
	assert.True(t, tu.IsKeyframe)
	assert.Equal(t, uint32(2000), tu.RTPTimestamp)
}

func TestDepacketizer_SequenceGapDuringFragment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeqGapThreshold = 5
	d, err := NewDepacketizer(cfg)
	require.NoError(t, err)

	startPkt := append([]byte{yBitMask | 0x10}, 0xAA, 0xBB, 0xCC)
	_, _, err = d.DepacketizeRTP(rtpPkt(1, 5000, false, startPkt), time.Unix(0, 0))
	require.NoError(t, err)

	contPkt := append([]byte{zBitMask | 0x10}, 0xDD)
	_, events, err := d.DepacketizeRTP(rtpPkt(50, 5000, true, contPkt), time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	var gotDisc, gotKF bool
	for _, e := range events {
		if e.Kind == EventDiscontinuity {
			gotDisc = true
		}
		if e.Kind == EventKeyframeRequest {
			gotKF = true
		}
	}
	assert.True(t, gotDisc)
	assert.True(t, gotKF)
}

func TestDepacketizer_FragmentTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FragmentTimeoutMs = 50
	d, err := NewDepacketizer(cfg)
	require.NoError(t, err)

	startPkt := append([]byte{yBitMask | 0x10}, 0xAA)
	_, _, err = d.DepacketizeRTP(rtpPkt(1, 1000, false, startPkt), time.Unix(0, 0))
	require.NoError(t, err)

	laterPkt := append([]byte{0x10}, obuElem(obu.OBUFrame, keyframePayload(4))...)
	_, events, err := d.DepacketizeRTP(rtpPkt(2, 2000, true, laterPkt), time.Unix(0, 0).Add(200*time.Millisecond))
	require.NoError(t, err)

	var gotTimeout bool
	for _, e := range events {
		if e.Kind == EventDiscontinuity && e.Reason == "fragment reassembly timed out" {
			gotTimeout = true
		}
	}
	assert.True(t, gotTimeout)
}

func TestDepacketizer_AccessUnitSizeCapExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAccessUnitSize = 1
	d, err := NewDepacketizer(cfg)
	require.NoError(t, err)

	pkt := buildAggregationPacket([][]byte{obuElem(obu.OBUFrame, keyframePayload(4))}, HeaderModeSpec)

	_, events, err := d.DepacketizeRTP(rtpPkt(1, 1000, true, pkt.Payload), time.Unix(0, 0))
	require.NoError(t, err)

	var gotCap bool
	for _, e := range events {
		if e.Kind == EventDiscontinuity && e.Reason == "access unit exceeds max size" {
			gotCap = true
		}
	}
	assert.True(t, gotCap)
}

func TestDepacketizer_UnmarshalConformance(t *testing.T) {
	d, err := NewDepacketizer(DefaultConfig())
	require.NoError(t, err)
	pkt := buildAggregationPacket([][]byte{obuElem(obu.OBUFrame, keyframePayload(4))}, HeaderModeSpec)

	out, err := d.Unmarshal(pkt.Payload)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	assert.True(t, d.IsDetectedFinalPacketInSequence(&rtp.Packet{Header: rtp.Header{Marker: true}}))
	assert.False(t, d.IsDetectedFinalPacketInSequence(&rtp.Packet{Header: rtp.Header{Marker: false}}))

	assert.True(t, d.IsPartitionHead(pkt.Payload))
	assert.False(t, d.IsPartitionHead([]byte{zBitMask | 0x10, 0xAA}))
}

// FuzzAV1DepacketizerUnmarshal feeds arbitrary bytes to Unmarshal, the
// single-packet rtp.Depacketizer entry point: it must never panic, however
// malformed the aggregation header or OBU element framing inside it is.
func FuzzAV1DepacketizerUnmarshal(f *testing.F) {
	seed, err := NewDepacketizer(DefaultConfig())
	if err != nil {
		f.Fatal(err)
	}
	validPkt := buildAggregationPacket([][]byte{
		obuElem(obu.OBUSequenceHeader, []byte{0x01, 0x02}),
		obuElem(obu.OBUFrame, keyframePayload(4)),
	}, HeaderModeSpec)

	f.Add(validPkt.Payload)
	f.Add([]byte{})
	f.Add([]byte{0x10})
	f.Add([]byte{zBitMask | nBitMask | 0x30, 0x01})
	f.Add([]byte{0b0000_0111})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = seed.Unmarshal(data)
	})
}
