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

// Package audiofifo provides the per-stream PCM sample queues sitting
// between the capture stages and the encoders, plus the per-stream
// presentation clock.
//
// The interchange format throughout the pipeline is packed float32,
// interleaved by channel, so one sample occupies 4*channels bytes and the
// FIFO accounts in samples, not bytes.
package audiofifo

import (
	"errors"
	"math"
	"sync"
)

// ErrOverflow fires when a grow request would push the fifo past half the
// int32 range. The channel that hit it is shut down.
var ErrOverflow = errors.New("audio fifo: size overflow")

// Policy selects what a write larger than the writable space does.
type Policy int

const (
	// PolicyGrow enlarges the fifo to size+requested. Used for MP4 output.
	PolicyGrow Policy = iota
	// PolicyBounded refuses the write silently, keeping the fifo at its
	// initial capacity. Used for Matroska output so a runaway buffer cannot
	// drift the clock alignment.
	PolicyBounded
)

const bytesPerValue = 4 // float32

// FIFO is a growable first-in-first-out queue of interleaved float32
// samples. All operations take the same per-fifo lock.
type FIFO struct {
	mu       sync.Mutex
	channels int
	policy   Policy
	buf      []byte
	head     int // byte offset of the oldest sample
	size     int // readable samples
	capacity int // samples
}

// New builds a fifo for the given channel count with room for capSamples
// samples.
func New(channels, capSamples int, policy Policy) *FIFO {
	if channels <= 0 {
		channels = 1
	}
	return &FIFO{
		channels: channels,
		policy:   policy,
		buf:      make([]byte, capSamples*channels*bytesPerValue),
		capacity: capSamples,
	}
}

// BytesPerSample reports the byte width of one sample across all channels.
func (f *FIFO) BytesPerSample() int { return f.channels * bytesPerValue }

// Write appends len(data)/BytesPerSample samples. Under PolicyGrow the fifo
// reallocates when short on space and returns ErrOverflow when the new size
// would exceed half the int32 range. Under PolicyBounded an oversized write
// is dropped and reported as written.
func (f *FIFO) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bps := f.channels * bytesPerValue
	n := len(data) / bps
	if n == 0 {
		return 0, nil
	}

	if f.capacity-f.size < n {
		if f.policy == PolicyBounded {
			return n, nil
		}
		if math.MaxInt32/2-f.size < n {
			return 0, ErrOverflow
		}
		f.reallocLocked(f.size + n)
	}

	// copy in up to two segments past the wrap point
	w := (f.head + f.size*bps) % len(f.buf)
	first := len(f.buf) - w
	if first > n*bps {
		first = n * bps
	}
	copy(f.buf[w:w+first], data[:first])
	copy(f.buf[0:n*bps-first], data[first:n*bps])
	f.size += n
	return n, nil
}

// Read removes up to n samples and returns them as a fresh slice. Returns
// nil when the fifo is empty.
func (f *FIFO) Read(n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n > f.size {
		n = f.size
	}
	if n <= 0 {
		return nil
	}

	bps := f.channels * bytesPerValue
	out := make([]byte, n*bps)
	first := len(f.buf) - f.head
	if first > n*bps {
		first = n * bps
	}
	copy(out[:first], f.buf[f.head:f.head+first])
	copy(out[first:], f.buf[0:n*bps-first])

	f.head = (f.head + n*bps) % len(f.buf)
	f.size -= n
	if f.size == 0 {
		f.head = 0
	}
	return out
}

// Readable reports the samples waiting in the fifo.
func (f *FIFO) Readable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Writable reports how many samples fit without growth.
func (f *FIFO) Writable() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity - f.size
}

// Capacity reports the current allocation in samples.
func (f *FIFO) Capacity() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity
}

// reallocLocked grows the backing store to capSamples, linearising the
// queued bytes at offset zero.
func (f *FIFO) reallocLocked(capSamples int) {
	bps := f.channels * bytesPerValue
	nb := make([]byte, capSamples*bps)
	first := len(f.buf) - f.head
	if first > f.size*bps {
		first = f.size * bps
	}
	copy(nb[:first], f.buf[f.head:f.head+first])
	copy(nb[first:f.size*bps], f.buf[0:f.size*bps-first])
	f.buf = nb
	f.head = 0
	f.capacity = capSamples
}
