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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyridge/waycorder/ring"
)

func TestLatestFrameSampling(t *testing.T) {
	r := ring.New(4, 16)
	var lf latestFrame

	// nothing buffered yet: nothing appended
	seq := lf.appendTo(r, 0)
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, 0, r.Len())

	lf.put([]byte{1, 2, 3, 4}, 1, 1, 4, 100)
	seq = lf.appendTo(r, seq)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, 1, r.Len())

	// unchanged sequence: the same frame is not appended twice
	seq = lf.appendTo(r, seq)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, 1, r.Len())

	lf.put([]byte{5, 6, 7, 8}, 1, 1, 4, 200)
	seq = lf.appendTo(r, seq)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, 2, r.Len())

	f, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(1), f.Data[0])
	assert.Equal(t, int64(100), f.Time)
	r.Recycle(f)
}

func TestLatestFramePutCopies(t *testing.T) {
	var lf latestFrame
	src := []byte{9, 9, 9, 9}
	lf.put(src, 1, 1, 4, 0)
	src[0] = 0

	r := ring.New(1, 4)
	lf.appendTo(r, 0)
	f, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, byte(9), f.Data[0], "buffered frame owns its bytes")
	r.Recycle(f)
}
