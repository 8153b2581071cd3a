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
package screen

import (
	"image"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// solid builds a w*h RGBA image filled with value v.
func solid(v byte, w, h int) SubImage {
	d := make([]byte, w*h*4)
	for i := range d {
		d[i] = v
	}
	return SubImage{Data: d, Width: w, Height: h, Stride: w * 4}
}

func TestSingleScreenFastPath(t *testing.T) {
	reg := NewRegistry()
	id := uuid.New()
	reg.Put(id, image.Rect(0, 0, 4, 4))

	c := NewComposer(reg)
	img := solid(7, 4, 4)
	out, ok := c.Submit(id, img)
	require.True(t, ok)
	// raw image emitted directly, not copied onto a canvas
	assert.Same(t, &img.Data[0], &out.Data[0])
	assert.Equal(t, 4, out.Width)
}

func TestComposeWaitsForAllScreens(t *testing.T) {
	reg := NewRegistry()
	left, right := uuid.New(), uuid.New()
	reg.Put(left, image.Rect(0, 0, 2, 2))
	reg.Put(right, image.Rect(2, 0, 4, 2))

	c := NewComposer(reg)
	_, ok := c.Submit(left, solid(0x11, 2, 2))
	assert.False(t, ok, "one of two screens is not a full cycle")

	out, ok := c.Submit(right, solid(0x22, 2, 2))
	require.True(t, ok)
	assert.Equal(t, 4, out.Width)
	assert.Equal(t, 2, out.Height)

	// left pixel from the left screen, right half from the right screen
	assert.Equal(t, byte(0x11), out.Data[0])
	assert.Equal(t, byte(0x22), out.Data[2*4])
}

func TestLateFrameStartsNewBatch(t *testing.T) {
	reg := NewRegistry()
	a, b := uuid.New(), uuid.New()
	reg.Put(a, image.Rect(0, 0, 2, 2))
	reg.Put(b, image.Rect(2, 0, 4, 2))

	c := NewComposer(reg)
	c.Submit(a, solid(1, 2, 2))
	_, ok := c.Submit(b, solid(2, 2, 2))
	require.True(t, ok)

	// next cycle starts empty
	_, ok = c.Submit(a, solid(3, 2, 2))
	assert.False(t, ok)
}

func TestUnknownScreenDropped(t *testing.T) {
	reg := NewRegistry()
	reg.Put(uuid.New(), image.Rect(0, 0, 2, 2))
	c := NewComposer(reg)
	_, ok := c.Submit(uuid.New(), solid(1, 2, 2))
	assert.False(t, ok)
}

func TestHotUnplugShrinksCanvas(t *testing.T) {
	reg := NewRegistry()
	a, b := uuid.New(), uuid.New()
	reg.Put(a, image.Rect(0, 0, 2, 2))
	reg.Put(b, image.Rect(2, 0, 4, 2))

	c := NewComposer(reg)
	c.Submit(a, solid(1, 2, 2))

	// b unplugs mid-cycle; the cycle must no longer wait for a frame from it
	reg.Remove(b)
	out, ok := c.Submit(a, solid(4, 2, 2))
	require.True(t, ok, "single remaining screen takes the fast path")
	assert.Equal(t, 2, out.Width)

	w, h := reg.VirtualSize()
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
}

func TestBackgroundIsBlack(t *testing.T) {
	reg := NewRegistry()
	a, b := uuid.New(), uuid.New()
	// gap between the two screens stays black
	reg.Put(a, image.Rect(0, 0, 1, 1))
	reg.Put(b, image.Rect(3, 0, 4, 1))

	c := NewComposer(reg)
	c.Submit(a, solid(9, 1, 1))
	out, ok := c.Submit(b, solid(9, 1, 1))
	require.True(t, ok)
	assert.Equal(t, byte(0), out.Data[1*4], "uncovered pixel")
	assert.Equal(t, byte(0), out.Data[2*4], "uncovered pixel")
}
