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
package pipeline

import (
	"sync"
	"time"

	"github.com/greyridge/waycorder/ring"
)

//
// ==================================
// Latest composed frame, threadsafe
// ==================================
//
// The compositor delivers frames at its own rate; the producer thread
// samples the newest one at the target FPS. Sequence numbers tell the
// producer whether anything new arrived since the last tick.
//

type latestFrame struct {
	mu     sync.Mutex
	seq    uint64
	b      []byte
	w, h   int
	stride int
	t      int64
}

func (f *latestFrame) put(src []byte, w, h, stride int, t int64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cap(f.b) < len(src) {
		f.b = make([]byte, len(src))
	}
	f.b = f.b[:len(src)]
	copy(f.b, src)

	f.w, f.h, f.stride = w, h, stride
	f.t = t
	f.seq++
	return f.seq
}

// appendTo pushes the buffered frame into the ring if its sequence moved
// past lastSeq. Returns the sequence it saw.
func (f *latestFrame) appendTo(r *ring.Ring, lastSeq uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq == lastSeq || f.seq == 0 {
		return f.seq
	}
	r.Append(f.b, f.w, f.h, f.stride, f.t)
	return f.seq
}

// producerLoop paces ring appends at the target FPS, decoupled from the
// compositor delivery rate. Sampling period is 1000/FPS + 1 ms.
func (c *Controller) producerLoop() {
	period := time.Duration(1000/c.cfg.FPS+1) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var lastSeq uint64
	for range ticker.C {
		if !c.active.Load() {
			return
		}
		seq := c.latest.appendTo(c.ring, lastSeq)
		if seq != lastSeq {
			c.appended.Add(1)
		}
		lastSeq = seq
	}
}
