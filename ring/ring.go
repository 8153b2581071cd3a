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

// Package ring holds the bounded frame ring between the capture side and
// the video encoder. Slots are allocated once and reused; when the encoder
// falls behind, the oldest frame is overwritten so the producer never blocks.
package ring

import (
	"runtime"
	"sync"
)

// Frame is one captured video frame in a ring slot. Pixels are RGBA8888,
// tightly described by Stride (bytes per row). Time is microseconds on the
// monotonic clock, origin at stage start.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	Time   int64
	Index  int64
}

// Ring is a bounded queue of reusable frame slots. Every slot is either in
// the filled queue, in the free queue, or on loan to the consumer between
// Pop and Recycle. Append and Pop take the same lock.
type Ring struct {
	mu       sync.Mutex
	filled   []*Frame // head at [0], producers append at tail
	free     []*Frame
	capacity int
	next     int64
	dropped  int64
}

// DefaultCapacity returns the slot count for this machine. Memory
// constrained architectures get the small ring.
func DefaultCapacity() int {
	switch runtime.GOARCH {
	case "arm64", "arm", "mips64", "mips64le", "loong64", "riscv64":
		return 60
	}
	return 200
}

// New builds a ring of capacity slots, each preallocated to slotBytes.
func New(capacity, slotBytes int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	r := &Ring{
		filled:   make([]*Frame, 0, capacity),
		free:     make([]*Frame, 0, capacity),
		capacity: capacity,
	}
	for i := 0; i < capacity; i++ {
		r.free = append(r.free, &Frame{Data: make([]byte, 0, slotBytes)})
	}
	return r
}

// Append copies src into a slot and queues it at the tail. When no free slot
// exists the oldest filled frame is overwritten in place (drop-oldest).
// Append never blocks and never allocates in steady state.
func (r *Ring) Append(src []byte, w, h, stride int, t int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var f *Frame
	if n := len(r.free); n > 0 {
		f = r.free[0]
		r.free = r.free[1:]
	} else if len(r.filled) > 0 {
		f = r.filled[0]
		r.filled = r.filled[1:]
		r.dropped++
	} else {
		// every slot is on loan to the consumer; count it as a drop
		r.dropped++
		return
	}

	n := len(src)
	if cap(f.Data) < n {
		// first use of a slot built smaller than the frame (the pipeline
		// builds its ring with slotBytes 0), or hot-plug growth of the
		// virtual desktop
		f.Data = make([]byte, n)
	}
	f.Data = f.Data[:n]
	copy(f.Data, src)
	f.Width = w
	f.Height = h
	f.Stride = stride
	f.Time = t
	f.Index = r.next
	r.next++

	r.filled = append(r.filled, f)
}

// Pop removes the head of the filled queue. The caller owns the frame until
// it hands it back with Recycle.
func (r *Ring) Pop() (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.filled) == 0 {
		return nil, false
	}
	f := r.filled[0]
	r.filled = r.filled[1:]
	return f, true
}

// Recycle returns a popped frame's slot to the free queue.
func (r *Ring) Recycle(f *Frame) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.free = append(r.free, f)
	r.mu.Unlock()
}

// Len reports how many frames are waiting for the consumer.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filled)
}

// Free reports how many slots are available to the producer.
func (r *Ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.free)
}

func (r *Ring) Capacity() int { return r.capacity }

// Dropped reports how many frames were lost: overwritten before the
// consumer saw them, or discarded because every slot was on loan.
func (r *Ring) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
