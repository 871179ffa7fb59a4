// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package av1rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqTracker_Basic(t *testing.T) {
	tr := NewSeqTracker(100)
	assert.Equal(t, SeqOK, tr.Observe(10))
	assert.Equal(t, SeqOK, tr.Observe(11))
	assert.Equal(t, SeqDuplicate, tr.Observe(11))
	assert.Equal(t, SeqOutOfOrder, tr.Observe(9))
}

func TestSeqTracker_LargeGap(t *testing.T) {
	tr := NewSeqTracker(10)
	tr.Observe(10)
	assert.Equal(t, SeqLargeGap, tr.Observe(30))
}

func TestSeqTracker_Wraparound(t *testing.T) {
	tr := NewSeqTracker(100)
	tr.Observe(65535)
	assert.Equal(t, SeqOK, tr.Observe(0))
}

func TestWTracker_LegalTransitions(t *testing.T) {
	tr := NewWTracker()
	assert.NoError(t, tr.Observe(AggregationHeader{Y: true}))
	assert.Equal(t, WInFragment, tr.State())
	assert.NoError(t, tr.Observe(AggregationHeader{Z: true, Y: true}))
	assert.Equal(t, WInFragment, tr.State())
	assert.NoError(t, tr.Observe(AggregationHeader{Z: true}))
	assert.Equal(t, WIdle, tr.State())
}

func TestWTracker_IllegalTransition(t *testing.T) {
	tr := NewWTracker()
	err := tr.Observe(AggregationHeader{Z: true})
	assert.Error(t, err)
	assert.Equal(t, WIdle, tr.State())
}

func TestWTracker_Reset(t *testing.T) {
	tr := NewWTracker()
	_ = tr.Observe(AggregationHeader{Y: true})
	tr.Reset()
	assert.Equal(t, WIdle, tr.State())
}
