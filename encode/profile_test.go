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
package encode

import (
	"testing"

	astiav "github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"

	"github.com/greyridge/waycorder/options"
)

func TestBuildProfilesEvenDimensions(t *testing.T) {
	cfg := options.Record{FPS: 30, OutputPath: "x.mp4"}
	cfg.ApplyDefaults()

	p := BuildProfiles(&cfg, 1921, 1081)
	assert.Equal(t, 1920, p.Video.Width, "4:2:0 needs even width")
	assert.Equal(t, 1080, p.Video.Height)
	assert.Equal(t, 30, p.Video.FPS)
	assert.Equal(t, astiav.CodecIDH264, p.Video.CodecID)
}

func TestBuildProfilesAppliesCrop(t *testing.T) {
	cfg := options.Record{FPS: 25, OutputPath: "x.mp4", CropLeft: 10, CropRight: 10, CropTop: 4}
	cfg.ApplyDefaults()

	p := BuildProfiles(&cfg, 1920, 1080)
	assert.Equal(t, 1900, p.Video.Width)
	assert.Equal(t, 1076, p.Video.Height)
}

func TestAudioProfilesShareTarget(t *testing.T) {
	cfg := options.Record{FPS: 25, OutputPath: "x.mkv"}
	cfg.ApplyDefaults()

	p := BuildProfiles(&cfg, 800, 600)
	for _, a := range []Profile{p.Mic, p.Sys, p.Mix} {
		assert.Equal(t, astiav.CodecIDAac, a.CodecID)
		assert.Equal(t, DefaultSampleRate, a.SampleRate)
		assert.Equal(t, DefaultChannels, a.Channels)
	}
}
