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
)

func TestVirtualSize(t *testing.T) {
	r := NewRegistry()
	w, h := r.VirtualSize()
	assert.Zero(t, w)
	assert.Zero(t, h)

	r.Put(uuid.New(), image.Rect(0, 0, 1920, 1080))
	sec := uuid.New()
	r.Put(sec, image.Rect(1920, 0, 3200, 1024))

	w, h = r.VirtualSize()
	assert.Equal(t, 3200, w)
	assert.Equal(t, 1080, h)

	r.Remove(sec)
	w, h = r.VirtualSize()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)
}

func TestPutUpdatesExisting(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()
	r.Put(id, image.Rect(0, 0, 800, 600))
	r.Put(id, image.Rect(0, 0, 1024, 768))

	assert.Equal(t, 1, r.Count())
	rect, ok := r.Rect(id)
	assert.True(t, ok)
	assert.Equal(t, 1024, rect.Max.X)
}

func TestRemoveUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Remove(uuid.New()))
}
