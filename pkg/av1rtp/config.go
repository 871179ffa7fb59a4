// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"fmt"

	"github.com/pion/logging"
)

// ClockRate is the RTP clock rate fixed by the AV1 RTP payload specification.
const ClockRate = 90000

const (
	minMTU = 64
	maxMTU = 9000

	defaultMTU               = 1200
	defaultPayloadType       = 45
	defaultFragmentTimeoutMs  = 500
	defaultMaxReorderBuffer  = 10
	defaultMaxAccessUnitSize = 10 * 1024 * 1024
	defaultMaxFragmentSize   = 1024 * 1024
	// defaultSeqGapThreshold bounds how far a sequence number may jump
	// before the tracker calls it a large gap instead of ordinary loss,
	// wide enough to tolerate bursty reordering but narrow enough to catch
	// 16-bit wraparound quickly.
	defaultSeqGapThreshold = 100
)

// HeaderMode selects the on-wire aggregation header flavor.
type HeaderMode int

const (
	// HeaderModeSpec emits the RFC 9628 aggregation header.
	HeaderModeSpec HeaderMode = iota
	// HeaderModeDraft emits the legacy one-byte `S E F C` variant, kept for
	// interop with deployments that predate RFC 9628.
	HeaderModeDraft
)

// Config holds the tunables shared by the payloader and depayloader, mirroring
// the struct-of-optional-fields-plus-defaults pattern used for RTP codec
// configuration in this ecosystem rather than a functional-options builder.
type Config struct {
	MTU                int
	HeaderMode         HeaderMode
	PayloadType        uint8
	ClockRate          int
	RequireSequenceHeader bool
	MaxReorderBuffer   int
	MaxTemporalID      *uint8
	MaxSpatialID       *uint8
	FragmentTimeoutMs  int
	MaxAccessUnitSize  int
	MaxFragmentSize    int
	SeqGapThreshold    int
	Logger             logging.LeveledLogger

	// Validate requests full OBU structural validation in the payloader
	// before packetizing (obu.Validate). Off by default: the payloader
	// normally trusts its encoder (the "trust-encoder path"). When set, a
	// PartialOBUAtBoundary failure makes PayloadAU return
	// ErrPartialOBUAtBoundary and any other failure falls back to naive
	// fragmentation; when unset, PayloadAU never returns that error.
	Validate bool
	// TUAware controls marker-bit placement: true (the default) sets the
	// marker on the last packet of every temporal unit; false sets it only
	// on the last packet of the whole access unit.
	TUAware bool
}

// DefaultConfig returns a Config populated with the defaults from the
// configuration surface: 1200-byte MTU, RFC 9628 header mode, payload type
// 45, 90kHz clock rate, sequence-header-gated TU emission, a 10-packet
// reorder depth, a 500ms fragment timeout, and the 10MB/1MB size caps.
func DefaultConfig() Config {
	return Config{
		MTU:                   defaultMTU,
		HeaderMode:            HeaderModeSpec,
		PayloadType:           defaultPayloadType,
		ClockRate:             ClockRate,
		RequireSequenceHeader: true,
		MaxReorderBuffer:      defaultMaxReorderBuffer,
		FragmentTimeoutMs:     defaultFragmentTimeoutMs,
		MaxAccessUnitSize:     defaultMaxAccessUnitSize,
		MaxFragmentSize:       defaultMaxFragmentSize,
		SeqGapThreshold:       defaultSeqGapThreshold,
		TUAware:               true,
		Logger:                logging.NewDefaultLoggerFactory().NewLogger("av1rtp"),
	}
}

// clampMTU clamps v to [minMTU, maxMTU], reporting whether clamping occurred.
func clampMTU(v int) (int, bool) {
	switch {
	case v < minMTU:
		return minMTU, true
	case v > maxMTU:
		return maxMTU, true
	default:
		return v, false
	}
}

func (c *Config) init() {
	if c.ClockRate == 0 {
		c.ClockRate = ClockRate
	}
	if c.MTU == 0 {
		c.MTU = defaultMTU
	}
	c.MTU, _ = clampMTU(c.MTU)
	if c.FragmentTimeoutMs == 0 {
		c.FragmentTimeoutMs = defaultFragmentTimeoutMs
	}
	if c.MaxAccessUnitSize == 0 {
		c.MaxAccessUnitSize = defaultMaxAccessUnitSize
	}
	if c.MaxFragmentSize == 0 {
		c.MaxFragmentSize = defaultMaxFragmentSize
	}
	if c.MaxReorderBuffer == 0 {
		c.MaxReorderBuffer = defaultMaxReorderBuffer
	}
	if c.SeqGapThreshold == 0 {
		c.SeqGapThreshold = defaultSeqGapThreshold
	}
	if c.Logger == nil {
		c.Logger = logging.NewDefaultLoggerFactory().NewLogger("av1rtp")
	}
}

// validate checks the fields init() doesn't merely default. Call it after
// init() so a zero ClockRate has already been filled with the AV1 RTP
// clock rate rather than rejected as unsupported.
func (c Config) validate() error {
	if c.ClockRate != ClockRate {
		return fmt.Errorf("%w: %d", ErrUnsupportedClockRate, c.ClockRate)
	}
	return nil
}
