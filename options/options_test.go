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
package options

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerByExtension(t *testing.T) {
	for path, want := range map[string]Container{
		"/tmp/out.mp4":   ContainerMP4,
		"/tmp/out.MKV":   ContainerMKV,
		"/tmp/out.mkv":   ContainerMKV,
		"/tmp/out":       ContainerMP4,
		"/tmp/out.webm":  ContainerMP4,
		"/tmp/a.mkv.mp4": ContainerMP4,
	} {
		r := Record{OutputPath: path}
		assert.Equal(t, want, r.Container(), path)
	}
}

func TestDefaults(t *testing.T) {
	r := Record{OutputPath: "x.mp4"}
	r.ApplyDefaults()
	assert.Equal(t, 25, r.FPS)
	assert.Equal(t, "h264", r.VideoCodec)
	assert.Equal(t, "aac", r.AudioCodec)
	assert.Equal(t, 50, r.GOP)
	require.NoError(t, r.Validate())
}

func TestValidate(t *testing.T) {
	r := Record{}
	assert.Error(t, r.Validate(), "missing output path")

	r = Record{OutputPath: "x.mp4", FPS: 9000}
	assert.Error(t, r.Validate())

	r = Record{OutputPath: "x.mp4", FPS: 30, CropLeft: -1}
	assert.Error(t, r.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	in := Record{
		FPS:        60,
		MicDevice:  "alsa_input.usb",
		NoMix:      true,
		OutputPath: "/tmp/rec.mkv",
		BitrateV:   2_000_000,
	}
	require.NoError(t, Save(path, &in))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, out.FPS)
	assert.Equal(t, "alsa_input.usb", out.MicDevice)
	assert.Equal(t, ContainerMKV, out.Container())
	assert.True(t, out.WantsMic())
	assert.False(t, out.WantsSys())
	assert.True(t, out.NoMix)
	// defaults applied on load
	assert.Equal(t, "h264", out.VideoCodec)
}
