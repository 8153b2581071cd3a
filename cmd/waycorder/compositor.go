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
package main

import (
	"github.com/greyridge/waycorder/screen"
	"github.com/greyridge/waycorder/wayland"
)

// connectCompositor is the integration point for the compositor's
// remote-access protocol. Platform glue (the org_kde_kwin_remote_access
// client, a portal bridge, or a test harness) translates its callbacks to
// wayland.Event values:
//
//	src.Push(wayland.Event{Kind: wayland.EventOutputDevice, UUID: u, Geometry: g})
//	src.Push(wayland.Event{Kind: wayland.EventBufferReady, Output: u, Buffer: b})
//
// and closes src when the connection ends. The pipeline treats the glue
// as an external collaborator and consumes nothing beyond the Source.
func connectCompositor(src *wayland.ChannelSource, reg *screen.Registry) {
	_ = reg
	log.Warn("no compositor glue linked into this build; waiting for events on the channel source")
}
