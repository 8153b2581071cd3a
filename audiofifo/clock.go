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

import "sync"

// Clock tracks presentation time for one encoded audio stream. MP4 streams
// count pts in samples (stream time base 1/rate); Matroska counts in
// milliseconds (time base 1/1000), hence the 1000/rate factor. The two
// formulas are kept side by side on purpose; do not fold them together.
type Clock struct {
	mu        sync.Mutex
	frameSize int
	rate      int
	millis    bool // Matroska pts in ms

	frames   int64
	lastPTS  int64
	lastTime int64 // last effective capture time, µs
	inited   bool
}

// NewClock builds a clock for an encoder emitting frameSize samples per
// packet at rate Hz. millis selects the Matroska pts formula.
func NewClock(frameSize, rate int, millis bool) *Clock {
	return &Clock{frameSize: frameSize, rate: rate, millis: millis}
}

// NextPTS returns the pts for the next encoded frame and advances the
// frame counter. Values are non-decreasing by construction.
func (c *Clock) NextPTS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pts int64
	if c.millis {
		pts = c.frames * int64(c.frameSize) * 1000 / int64(c.rate)
	} else {
		pts = c.frames * int64(c.frameSize)
	}
	c.frames++
	c.lastPTS = pts
	return pts
}

// Frames reports how many frames have been stamped so far.
func (c *Clock) Frames() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// LastPTS reports the most recently issued pts.
func (c *Clock) LastPTS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPTS
}

// Observe folds one fifo append into the corrected capture timeline: the
// first sample of this append was really captured queued-samples-worth of
// time before now, and the timeline never moves backwards. queued is the
// sample count sitting in the fifo before the append.
func (c *Clock) Observe(now int64, queued int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	shift := int64(queued) * 1e6 / int64(c.rate)
	if t := now - shift; t > c.lastTime || !c.inited {
		c.lastTime = t
		c.inited = true
	}
	return c.lastTime
}

// FrameTime returns the corrected capture time (µs) for the next encoder
// frame and advances the timeline by one frame duration. This stamps the
// frames fed to the encoder; the container packet pts stays count-based.
func (c *Clock) FrameTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.lastTime
	c.lastTime += int64(c.frameSize) * 1e6 / int64(c.rate)
	c.inited = true
	return t
}
