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

// Package audio implements the capture stages, the resampler, the
// two-input mixer and the audio encoder loops.
//
// Between decode and encode the pipeline speaks one interchange format:
// packed float32, interleaved by channel, at the encoder sample rate.
package audio

import (
	"errors"
	"fmt"

	astiav "github.com/asticode/go-astiav"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("audio")

var (
	// ErrDeviceOpen marks a device that could not be opened or has no
	// audio stream. The channel is disabled and recording continues.
	ErrDeviceOpen = errors.New("audio: device open failed")
	// ErrSampleRate marks a device whose rate does not match the encoder.
	// Fatal for that channel.
	ErrSampleRate = errors.New("audio: sample rate mismatch")
)

func layoutFor(channels int) astiav.ChannelLayout {
	if channels == 1 {
		return astiav.ChannelLayoutMono
	}
	return astiav.ChannelLayoutStereo
}

// Resampler converts decoded device frames into the interchange format.
// Configured once per input device; libswresample picks up the source
// format from the first converted frame.
type Resampler struct {
	swr      *astiav.SoftwareResampleContext
	rate     int
	channels int
}

func NewResampler(rate, channels int) *Resampler {
	return &Resampler{
		swr:      astiav.AllocSoftwareResampleContext(),
		rate:     rate,
		channels: channels,
	}
}

// Convert turns one decoded frame into packed float32 bytes. The source
// sample rate must equal the target rate; conversion covers format and
// layout only.
func (r *Resampler) Convert(in *astiav.Frame) ([]byte, int, error) {
	if in.SampleRate() != r.rate {
		return nil, 0, fmt.Errorf("%w: device %d Hz, encoder %d Hz", ErrSampleRate, in.SampleRate(), r.rate)
	}

	out := astiav.AllocFrame()
	defer out.Free()
	out.SetSampleFormat(astiav.SampleFormatFlt)
	out.SetChannelLayout(layoutFor(r.channels))
	out.SetSampleRate(r.rate)
	out.SetNbSamples(in.NbSamples())
	if err := out.AllocBuffer(0); err != nil {
		return nil, 0, fmt.Errorf("out.AllocBuffer: %w", err)
	}

	if err := r.swr.ConvertFrame(in, out); err != nil {
		return nil, 0, fmt.Errorf("swr ConvertFrame: %w", err)
	}

	b, err := out.Data().Bytes(0)
	if err != nil {
		return nil, 0, fmt.Errorf("out bytes: %w", err)
	}
	n := out.NbSamples()
	need := n * r.channels * 4
	if need > len(b) {
		need = len(b)
	}
	cp := make([]byte, need)
	copy(cp, b[:need])
	return cp, n, nil
}

func (r *Resampler) Close() {
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
}
