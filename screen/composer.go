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
	"sync"

	"github.com/google/uuid"
)

// SubImage is one output's RGBA frame for the current capture cycle.
type SubImage struct {
	Data   []byte
	Width  int
	Height int
	Stride int
}

// Composed is a frame covering the whole virtual desktop.
type Composed struct {
	Data   []byte
	Width  int
	Height int
	Stride int
}

// Composer buffers per-output frames until one frame per registered screen
// has arrived, then draws them onto a single canvas at their registry
// rectangles over a black background. With one screen, the sub-image passes
// through untouched.
//
// The canvas is reused between cycles; callers must copy the emitted bytes
// before the next Submit (the controller copies them into its latest-frame
// buffer).
type Composer struct {
	reg *Registry

	mu     sync.Mutex
	batch  map[uuid.UUID]SubImage
	bufs   map[uuid.UUID][]byte // per-screen copies, reused across cycles
	canvas []byte
	cw, ch int
}

func NewComposer(reg *Registry) *Composer {
	return &Composer{
		reg:   reg,
		batch: make(map[uuid.UUID]SubImage),
		bufs:  make(map[uuid.UUID][]byte),
	}
}

// Submit hands in one output's frame. It returns the composed frame and
// true when this submission completes the cycle. Frames for screens that
// left the registry are discarded; a second frame for a screen already in
// the batch replaces the first.
func (c *Composer) Submit(id uuid.UUID, img SubImage) (Composed, bool) {
	_, known := c.reg.Rect(id)
	if !known {
		log.Debugf("frame for unknown screen %s dropped", id)
		return Composed{}, false
	}

	if c.reg.Count() == 1 {
		// single-screen fast path, no composition
		c.mu.Lock()
		c.batch = make(map[uuid.UUID]SubImage)
		c.mu.Unlock()
		return Composed{Data: img.Data, Width: img.Width, Height: img.Height, Stride: img.Stride}, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// the adapter reuses its scratch buffer between outputs, so the batch
	// keeps its own copy of each sub-image
	buf := c.bufs[id]
	if cap(buf) < len(img.Data) {
		buf = make([]byte, len(img.Data))
	}
	buf = buf[:len(img.Data)]
	copy(buf, img.Data)
	c.bufs[id] = buf
	img.Data = buf
	c.batch[id] = img

	// drop batch entries for screens that were unplugged mid-cycle
	for bid := range c.batch {
		if _, ok := c.reg.Rect(bid); !ok {
			delete(c.batch, bid)
		}
	}
	if len(c.batch) < c.reg.Count() {
		return Composed{}, false
	}

	out := c.composeLocked()
	c.batch = make(map[uuid.UUID]SubImage)
	return out, true
}

func (c *Composer) composeLocked() Composed {
	vw, vh := c.reg.VirtualSize()
	if len(c.canvas) != vw*vh*4 {
		c.canvas = make([]byte, vw*vh*4)
		c.cw, c.ch = vw, vh
	} else {
		// black background between cycles
		for i := range c.canvas {
			c.canvas[i] = 0
		}
	}

	stride := vw * 4
	for id, img := range c.batch {
		rect, ok := c.reg.Rect(id)
		if !ok {
			continue
		}
		w, h := img.Width, img.Height
		if rect.Min.X+w > vw {
			w = vw - rect.Min.X
		}
		if rect.Min.Y+h > vh {
			h = vh - rect.Min.Y
		}
		for row := 0; row < h; row++ {
			src := img.Data[row*img.Stride : row*img.Stride+w*4]
			dstOff := (rect.Min.Y+row)*stride + rect.Min.X*4
			copy(c.canvas[dstOff:dstOff+w*4], src)
		}
	}

	return Composed{Data: c.canvas, Width: vw, Height: vh, Stride: stride}
}
