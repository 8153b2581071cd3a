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
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samples builds n stereo float32 samples with a recognisable first value.
func samples(start float32, n int) []byte {
	b := make([]byte, n*2*4)
	for i := 0; i < n*2; i++ {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(start+float32(i)))
	}
	return b
}

func TestWriteReadAccounting(t *testing.T) {
	f := New(2, 64, PolicyGrow)

	n, err := f.Write(samples(0, 10))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 10, f.Readable())
	assert.Equal(t, 54, f.Writable())

	out := f.Read(4)
	assert.Len(t, out, 4*f.BytesPerSample())
	assert.Equal(t, 6, f.Readable())
	assert.Equal(t, 64, f.Readable()+f.Writable())
}

func TestReadPreservesOrderAcrossWrap(t *testing.T) {
	f := New(2, 8, PolicyGrow)
	_, err := f.Write(samples(0, 6))
	require.NoError(t, err)
	_ = f.Read(5)
	// head is near the end; this write wraps
	_, err = f.Write(samples(100, 6))
	require.NoError(t, err)

	out := f.Read(7)
	require.Len(t, out, 7*8)
	first := math.Float32frombits(binary.LittleEndian.Uint32(out[0:]))
	assert.Equal(t, float32(10), first, "remaining sample of the first write")
	second := math.Float32frombits(binary.LittleEndian.Uint32(out[8:]))
	assert.Equal(t, float32(100), second)
}

func TestGrowPolicyReallocates(t *testing.T) {
	f := New(1, 4, PolicyGrow)
	big := make([]byte, 16*4)
	n, err := f.Write(big)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, 16, f.Readable())
	assert.GreaterOrEqual(t, f.Capacity(), 16)
}

func TestBoundedPolicyDropsSilently(t *testing.T) {
	f := New(2, 4, PolicyBounded)
	_, err := f.Write(samples(0, 4))
	require.NoError(t, err)

	// fifo full: write succeeds with no effect
	n, err := f.Write(samples(50, 4))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, f.Readable())
	assert.Equal(t, 4, f.Capacity())

	out := f.Read(1)
	v := math.Float32frombits(binary.LittleEndian.Uint32(out))
	assert.Equal(t, float32(0), v, "dropped write must not clobber queued data")
}

func TestOverflowRefused(t *testing.T) {
	f := New(1, 4, PolicyGrow)
	f.size = math.MaxInt32/2 - 1 // simulate a pathological queue
	_, err := f.Write(make([]byte, 8*4))
	assert.ErrorIs(t, err, ErrOverflow)
	f.size = 0
}

func TestReadMoreThanQueued(t *testing.T) {
	f := New(2, 8, PolicyGrow)
	_, _ = f.Write(samples(0, 3))
	out := f.Read(10)
	assert.Len(t, out, 3*8)
	assert.Nil(t, f.Read(1))
}
