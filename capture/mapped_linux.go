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

//go:build linux

package capture

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/greyridge/waycorder/wayland"
)

// New builds the adapter for the given variant.
func New(v Variant) (Adapter, error) {
	if v == VariantTextured {
		return newTextured()
	}
	return &mappedAdapter{}, nil
}

// mappedAdapter maps the descriptor read-only and copies the pixels out,
// assuming the compositor delivers RGBA8888. The mapping is released and
// the descriptor closed before return.
type mappedAdapter struct {
	scratch []byte
}

func (a *mappedAdapter) Frame(b wayland.RemoteBuffer) ([]byte, int, error) {
	size := b.Stride * b.Height
	data, err := unix.Mmap(b.FD, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(b.FD)
		return nil, 0, fmt.Errorf("%w: mmap fd %d (%d bytes): %v", ErrCaptureIO, b.FD, size, err)
	}

	if cap(a.scratch) < size {
		a.scratch = make([]byte, size)
	}
	a.scratch = a.scratch[:size]
	copy(a.scratch, data)

	if err := unix.Munmap(data); err != nil {
		log.Warnf("munmap: %v", err)
	}
	_ = unix.Close(b.FD)
	return a.scratch, b.Stride, nil
}

func (a *mappedAdapter) Close() {}
