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
package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTexturedProductMatching(t *testing.T) {
	match := func(name string) bool {
		for _, p := range texturedProducts {
			if strings.Contains(strings.ToUpper(name), p) {
				return true
			}
		}
		return false
	}

	assert.True(t, match("KLVV-WDU0"))
	assert.True(t, match("klvu"))
	assert.True(t, match("PGUW-A1\n"))
	assert.False(t, match("ThinkPad X1 Carbon"))
	assert.False(t, match(""))
}

func TestVariantString(t *testing.T) {
	assert.Equal(t, "mapped", VariantMapped.String())
	assert.Equal(t, "textured", VariantTextured.String())
}
