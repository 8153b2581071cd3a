/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * waycorder
 * Copyright (C) 2026 greyridge <dev@greyridge.io>
 *
 * This file is part of waycorder.
 *
 * waycorder is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * waycorder is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with waycorder.  If not, see <https://www.gnu.org/licenses/>.
 */
package audiofifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMP4PTSCountsSamples(t *testing.T) {
	c := NewClock(1024, 48000, false)
	assert.Equal(t, int64(0), c.NextPTS(), "first packet starts at zero")
	assert.Equal(t, int64(1024), c.NextPTS())
	assert.Equal(t, int64(2048), c.NextPTS())
	assert.Equal(t, int64(3), c.Frames())
}

func TestMKVPTSCountsMillis(t *testing.T) {
	c := NewClock(1024, 48000, true)
	assert.Equal(t, int64(0), c.NextPTS())
	assert.Equal(t, int64(1024*1000/48000), c.NextPTS())
	assert.Equal(t, int64(2*1024*1000/48000), c.NextPTS())
}

func TestPTSNonDecreasing(t *testing.T) {
	for _, millis := range []bool{false, true} {
		c := NewClock(1024, 44100, millis)
		last := int64(-1)
		for i := 0; i < 500; i++ {
			pts := c.NextPTS()
			assert.GreaterOrEqual(t, pts, last)
			last = pts
		}
	}
}

func TestFrameCountMatchesSampleTotal(t *testing.T) {
	// one second of 48 kHz through a 1024-sample encoder
	const rate, frameSize = 48000, 1024
	c := NewClock(frameSize, rate, false)
	queued := rate
	for queued >= frameSize {
		c.NextPTS()
		queued -= frameSize
	}
	assert.Equal(t, int64(rate/frameSize), c.Frames())
	assert.Equal(t, int64(45*1024), c.LastPTS(), "last issued pts lags the counter by one frame")
}

func TestObserveShiftAndClamp(t *testing.T) {
	c := NewClock(1024, 48000, false)

	// 4800 queued samples shift the capture point back 100 ms
	t0 := c.Observe(1_000_000, 4800)
	assert.Equal(t, int64(900_000), t0)

	// a regressing wall clock never moves the timeline backwards
	t1 := c.Observe(850_000, 0)
	assert.Equal(t, t0, t1)

	// a progressing wall clock passes through
	t2 := c.Observe(2_000_000, 0)
	assert.Equal(t, int64(2_000_000), t2)
}

func TestFrameTimeAdvances(t *testing.T) {
	c := NewClock(1024, 48000, false)
	c.Observe(1_000_000, 0)

	inc := int64(1024) * 1e6 / 48000
	assert.Equal(t, int64(1_000_000), c.FrameTime())
	assert.Equal(t, int64(1_000_000)+inc, c.FrameTime())

	// an append older than the advanced timeline is ignored
	c.Observe(1_000_100, 0)
	assert.Equal(t, int64(1_000_000)+2*inc, c.FrameTime())
}
