// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// levelIdxToString is the canonical, closed level_idx -> level string table.
// Indices outside this set have no level string (LevelString returns "", false).
var levelIdxToString = map[int]string{
	0: "2.0", 1: "2.1", 4: "3.0", 5: "3.1",
	8: "4.0", 9: "4.1",
	12: "5.0", 13: "5.1", 14: "5.2", 15: "5.3",
	16: "6.0", 17: "6.1", 18: "6.2", 19: "6.3",
	20: "7.0", 21: "7.1", 22: "7.2", 23: "7.3",
}

var levelStringToIdx = func() map[string]int {
	m := make(map[string]int, len(levelIdxToString))
	for idx, s := range levelIdxToString {
		m[s] = idx
	}
	return m
}()

// LevelString converts a level_idx to its canonical level string, per the
// closed table in §4.5. The second return is false for indices outside the
// table.
func LevelString(levelIdx int) (string, bool) {
	s, ok := levelIdxToString[levelIdx]
	return s, ok
}

// LevelIndex is the inverse of LevelString.
func LevelIndex(level string) (int, bool) {
	idx, ok := levelStringToIdx[level]
	return idx, ok
}

// FMTP is the parsed form of an AV1 RTP fmtp parameter set.
type FMTP struct {
	Profile      *int
	LevelIdx     *int
	Tier         *int
	CM           *int
	TemporalID   *int
	SpatialID    *int
	SS           *ScalabilityStructure
}

func parseIntField(key, value string, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > max {
		return 0, fmt.Errorf("%w: %s=%s", ErrInvalidFMTPValue, key, value)
	}
	return n, nil
}

// ParseFMTP parses a semicolon-separated fmtp key=value string, accepting
// both canonical and alias keys (profile-id|profile, level-idx, tier, cm,
// tid|temporal_id, lid|spatial_id, ss-data as a hex-encoded SS blob).
func ParseFMTP(s string) (*FMTP, error) {
	f := &FMTP{}

	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}

		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: malformed pair %q", ErrInvalidFMTPValue, kv)
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "profile-id", "profile":
			n, err := parseIntField(key, value, 2)
			if err != nil {
				return nil, err
			}
			f.Profile = &n
		case "level-idx":
			n, err := parseIntField(key, value, 31)
			if err != nil {
				return nil, err
			}
			f.LevelIdx = &n
		case "tier":
			n, err := parseIntField(key, value, 1)
			if err != nil {
				return nil, err
			}
			f.Tier = &n
		case "cm":
			n, err := parseIntField(key, value, 1)
			if err != nil {
				return nil, err
			}
			f.CM = &n
		case "tid", "temporal_id":
			n, err := parseIntField(key, value, 7)
			if err != nil {
				return nil, err
			}
			f.TemporalID = &n
		case "lid", "spatial_id":
			n, err := parseIntField(key, value, 3)
			if err != nil {
				return nil, err
			}
			f.SpatialID = &n
		case "ss-data":
			raw, err := hex.DecodeString(value)
			if err != nil {
				return nil, fmt.Errorf("%w: ss-data is not valid hex", ErrInvalidFMTPValue)
			}
			ss, err := DecodeScalabilityStructure(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: ss-data: %w", ErrInvalidFMTPValue, err)
			}
			f.SS = ss
		default:
			// Unknown keys are ignored rather than rejected, matching how
			// SDP format parameters from newer encoders degrade gracefully
			// against older parsers.
		}
	}

	if f.Profile != nil && *f.Profile == 0 && f.Tier != nil && *f.Tier == 1 {
		return nil, ErrInvalidProfileTier
	}

	return f, nil
}

// String serializes f back into a semicolon-separated fmtp value using
// canonical (non-alias) keys.
func (f FMTP) String() string {
	var parts []string

	if f.Profile != nil {
		parts = append(parts, fmt.Sprintf("profile=%d", *f.Profile))
	}
	if f.LevelIdx != nil {
		parts = append(parts, fmt.Sprintf("level-idx=%d", *f.LevelIdx))
	}
	if f.Tier != nil {
		parts = append(parts, fmt.Sprintf("tier=%d", *f.Tier))
	}
	if f.CM != nil {
		parts = append(parts, fmt.Sprintf("cm=%d", *f.CM))
	}
	if f.TemporalID != nil {
		parts = append(parts, fmt.Sprintf("tid=%d", *f.TemporalID))
	}
	if f.SpatialID != nil {
		parts = append(parts, fmt.Sprintf("lid=%d", *f.SpatialID))
	}
	if f.SS != nil {
		if data, err := f.SS.Encode(); err == nil {
			parts = append(parts, fmt.Sprintf("ss-data=%s", hex.EncodeToString(data)))
		}
	}

	return strings.Join(parts, ";")
}

// RTPMap returns the rtpmap attribute value for payload type pt, e.g.
// "45 AV1/90000".
func RTPMap(pt uint8) string {
	return fmt.Sprintf("%d AV1/%d", pt, ClockRate)
}
