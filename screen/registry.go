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

// Package screen tracks the monitor layout announced by the compositor and
// composes per-output frames onto the virtual desktop canvas.
package screen

import (
	"image"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("screen")

// Registry maps screen UUIDs to their rectangles in virtual desktop
// coordinates. Populated during compositor registry setup, mutated only on
// hot-plug, read by the composer on every cycle.
type Registry struct {
	mu    sync.RWMutex
	rects map[uuid.UUID]image.Rectangle
}

func NewRegistry() *Registry {
	return &Registry{rects: make(map[uuid.UUID]image.Rectangle)}
}

// Put adds or updates a screen.
func (r *Registry) Put(id uuid.UUID, rect image.Rectangle) {
	r.mu.Lock()
	r.rects[id] = rect
	r.mu.Unlock()
	log.Debugf("screen %s -> %v", id, rect)
}

// Remove drops a screen on hot-unplug. Reports whether it was known.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	_, ok := r.rects[id]
	delete(r.rects, id)
	r.mu.Unlock()
	if ok {
		log.Infof("screen %s removed", id)
	}
	return ok
}

// Rect looks up one screen's rectangle.
func (r *Registry) Rect(id uuid.UUID) (image.Rectangle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rect, ok := r.rects[id]
	return rect, ok
}

// Count reports how many screens are attached.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rects)
}

// VirtualSize is the element-wise maximum over the rectangles' far corners.
func (r *Registry) VirtualSize() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var w, h int
	for _, rect := range r.rects {
		if rect.Max.X > w {
			w = rect.Max.X
		}
		if rect.Max.Y > h {
			h = rect.Max.Y
		}
	}
	return w, h
}
