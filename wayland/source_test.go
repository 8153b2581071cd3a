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
package wayland

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSourceDeliversInOrder(t *testing.T) {
	s := NewChannelSource()
	s.Push(Event{Kind: EventOutputAnnounced, Name: "DP-1"})
	s.Push(Event{Kind: EventOutputAnnounced, Name: "DP-2"})

	e := <-s.Events()
	assert.Equal(t, "DP-1", e.Name)
	e = <-s.Events()
	assert.Equal(t, "DP-2", e.Name)
}

func TestChannelSourceClose(t *testing.T) {
	s := NewChannelSource()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	// pushes after close are discarded, not a panic
	s.Push(Event{Kind: EventBufferReady})

	_, open := <-s.Events()
	assert.False(t, open, "channel closed after Close")
}
