// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"github.com/pion/randutil"
	"github.com/pion/rtp"
)

// globalMathRandomGenerator backs the random SSRC NewPayloadStream picks,
// the same generator pion/rtp's own NewRandomSequencer and
// NewPacketizer use for their initial sequence number and timestamp.
var globalMathRandomGenerator = randutil.NewMathRandomGenerator()

// NewPayloadStream wires p into a fresh rtp.Packetizer: a random SSRC, a
// random initial sequence number via rtp.NewRandomSequencer, and p itself
// as the rtp.Payloader, ready to turn access units into fully-formed RTP
// packets via Packetizer.Packetize.
func NewPayloadStream(p *Payloader, clockRate uint32) rtp.Packetizer {
	ssrc := globalMathRandomGenerator.Uint32()
	return rtp.NewPacketizer(uint16(p.Config.MTU), p.Config.PayloadType, ssrc, p, rtp.NewRandomSequencer(), clockRate)
}
