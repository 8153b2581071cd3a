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

// Package capture maps compositor buffer descriptors to RGBA8888 images.
// Two adapter variants exist: direct memory mapping, and GPU texture
// readback for the handful of machines whose compositor hands out dmabufs
// that cannot be mapped directly.
package capture

import (
	"errors"
	"os"
	"os/exec"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/greyridge/waycorder/wayland"
)

var log = logging.Logger("capture")

// ErrCaptureIO marks a descriptor that could not be mapped or imported.
// The frame is dropped and capture continues.
var ErrCaptureIO = errors.New("capture: buffer map/import failed")

// Variant selects the adapter implementation.
type Variant int

const (
	// VariantMapped copies pixels out of a read-only memory mapping.
	VariantMapped Variant = iota
	// VariantTextured imports the buffer as an EGL image and reads the
	// pixels back through a GL framebuffer.
	VariantTextured
)

func (v Variant) String() string {
	if v == VariantTextured {
		return "textured"
	}
	return "mapped"
}

// Adapter turns one compositor buffer into an RGBA image and reports its
// row stride in bytes (the mapped variant keeps the compositor's stride,
// padding included). The returned slice is valid until the next Frame call.
type Adapter interface {
	Frame(buf wayland.RemoteBuffer) ([]byte, int, error)
	Close()
}

// products whose compositor requires the texture path
var texturedProducts = []string{"KLVV", "KLVU", "PGUV", "PGUW"}

// DetectVariant inspects the system product identification and picks the
// adapter variant. Unknown products use the mapped path.
func DetectVariant() Variant {
	name := productName()
	for _, p := range texturedProducts {
		if strings.Contains(strings.ToUpper(name), p) {
			log.Infof("product %q: using textured adapter", strings.TrimSpace(name))
			return VariantTextured
		}
	}
	log.Debugf("product %q: using mapped adapter", strings.TrimSpace(name))
	return VariantMapped
}

func productName() string {
	if b, err := os.ReadFile("/sys/class/dmi/id/product_name"); err == nil && len(b) > 0 {
		return string(b)
	}
	// sysfs unreadable; dmidecode needs privileges but is the historical way
	out, err := exec.Command("dmidecode", "-s", "system-product-name").Output()
	if err != nil {
		return ""
	}
	return string(out)
}
