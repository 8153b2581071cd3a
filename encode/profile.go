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

// Package encode hosts the encoder profiles and the video consumer stage.
package encode

import (
	"errors"

	astiav "github.com/asticode/go-astiav"
	logging "github.com/ipfs/go-log/v2"

	"github.com/greyridge/waycorder/options"
)

var log = logging.Logger("encode")

// ErrEncode marks an encoder failure. A single failed packet is dropped;
// repeated failures surface as fatal.
var ErrEncode = errors.New("encode: encoder failed")

// audio capture runs at a fixed rate; devices at any other rate are
// rejected (sample-rate conversion is a non-goal of the capture stages)
const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

// Profile describes one encoder target. Established at pipeline open,
// immutable thereafter.
type Profile struct {
	CodecID astiav.CodecID

	// video
	Width, Height int
	FPS           int
	GOP           int

	// audio
	SampleRate int
	Channels   int

	BitRate int64
}

// Profiles bundles the targets for every stream the container may carry.
type Profiles struct {
	Video Profile
	Mic   Profile
	Sys   Profile
	Mix   Profile
}

func videoCodecID(name string) astiav.CodecID {
	switch name {
	case "", "h264":
		return astiav.CodecIDH264
	case "mpeg4":
		return astiav.CodecIDMpeg4
	default:
		if c := astiav.FindEncoderByName(name); c != nil {
			return c.ID()
		}
		log.Warnf("unknown video codec %q, falling back to h264", name)
		return astiav.CodecIDH264
	}
}

func audioCodecID(name string) astiav.CodecID {
	switch name {
	case "", "aac":
		return astiav.CodecIDAac
	case "mp3":
		return astiav.CodecIDMp3
	default:
		if c := astiav.FindEncoderByName(name); c != nil {
			return c.ID()
		}
		log.Warnf("unknown audio codec %q, falling back to aac", name)
		return astiav.CodecIDAac
	}
}

// BuildProfiles derives the encoder targets from the recording config and
// the virtual desktop size. Encoded dimensions are forced even, as the
// 4:2:0 target requires.
func BuildProfiles(cfg *options.Record, width, height int) Profiles {
	width -= cfg.CropLeft + cfg.CropRight
	height -= cfg.CropTop + cfg.CropBottom
	width &^= 1
	height &^= 1

	audio := Profile{
		CodecID:    audioCodecID(cfg.AudioCodec),
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitRate:    int64(cfg.BitrateA),
	}

	return Profiles{
		Video: Profile{
			CodecID: videoCodecID(cfg.VideoCodec),
			Width:   width,
			Height:  height,
			FPS:     cfg.FPS,
			GOP:     cfg.GOP,
			BitRate: int64(cfg.BitrateV),
		},
		Mic: audio,
		Sys: audio,
		Mix: audio,
	}
}
