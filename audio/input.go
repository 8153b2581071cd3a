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
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/greyridge/waycorder/audiofifo"
)

// avdevice registration happens once per process, before the first
// FindInputFormat("pulse")
var deviceInit sync.Once

// InputStage captures one audio device: read a packet, decode it, convert
// to the interchange format, append to the stream's fifo. One stage runs
// per enabled device on its own goroutine.
type InputStage struct {
	name     string // "mic" or "sys"
	device   string
	rate     int
	channels int
	fifo     *audiofifo.FIFO
	clock    *audiofifo.Clock
	res      *Resampler
	epoch    time.Time

	fc        *astiav.FormatContext
	dec       *astiav.CodecContext
	streamIdx int
	opened    bool
}

func NewInputStage(name, device string, rate, channels int) *InputStage {
	return &InputStage{
		name:      name,
		device:    device,
		rate:      rate,
		channels:  channels,
		streamIdx: -1,
	}
}

// SetFIFO attaches the output queue. The fifo is sized from the encoder
// frame size, which is only known after the encoders open, so it arrives
// after Open and before Run.
func (s *InputStage) SetFIFO(f *audiofifo.FIFO) { s.fifo = f }

// SetClock attaches the stream clock so each append corrects the capture
// timeline for samples already queued ahead of it. Separate mode only; the
// mixer runs its own counter.
func (s *InputStage) SetClock(c *audiofifo.Clock) { s.clock = c }

// Open connects to the device and prepares the decoder. A failure leaves
// the stage unopened; the caller records the channel as disabled and the
// recording carries on without it.
func (s *InputStage) Open() error {
	deviceInit.Do(astiav.RegisterAllDevices)
	inputFormat := astiav.FindInputFormat("pulse")
	if inputFormat == nil {
		return fmt.Errorf("%w: pulse input format unavailable", ErrDeviceOpen)
	}

	fc := astiav.AllocFormatContext()
	if fc == nil {
		return fmt.Errorf("%w: AllocFormatContext", ErrDeviceOpen)
	}

	if err := fc.OpenInput(s.device, inputFormat, nil); err != nil {
		fc.Free()
		return fmt.Errorf("%w: %s (%s): %v", ErrDeviceOpen, s.name, s.device, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: FindStreamInfo %s: %v", ErrDeviceOpen, s.name, err)
	}

	idx := -1
	for i, st := range fc.Streams() {
		if st.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			idx = i
			break
		}
	}
	if idx < 0 {
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: %s has no audio stream", ErrDeviceOpen, s.name)
	}

	par := fc.Streams()[idx].CodecParameters()
	codec := astiav.FindDecoder(par.CodecID())
	if codec == nil {
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: no decoder for %s", ErrDeviceOpen, par.CodecID())
	}
	dec := astiav.AllocCodecContext(codec)
	if dec == nil {
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: AllocCodecContext", ErrDeviceOpen)
	}
	if err := par.ToCodecContext(dec); err != nil {
		dec.Free()
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: ToCodecContext: %v", ErrDeviceOpen, err)
	}
	if err := dec.Open(codec, nil); err != nil {
		dec.Free()
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: open decoder: %v", ErrDeviceOpen, err)
	}

	if dec.SampleRate() != s.rate {
		rate := dec.SampleRate()
		dec.Free()
		fc.CloseInput()
		fc.Free()
		return fmt.Errorf("%w: %s runs at %d Hz, need %d", ErrSampleRate, s.name, rate, s.rate)
	}

	s.fc = fc
	s.dec = dec
	s.streamIdx = idx
	s.res = NewResampler(s.rate, s.channels)
	s.opened = true
	log.Infof("%s device open: %s (%d Hz)", s.name, s.device, s.rate)
	return nil
}

// Opened reports whether the device is capturing.
func (s *InputStage) Opened() bool { return s.opened }

// Run is the capture loop. It ends on end-of-stream, on controller stop,
// or on a fatal per-channel error, and always releases the device.
func (s *InputStage) Run(active func() bool) error {
	if !s.opened || s.fifo == nil {
		return nil
	}
	defer s.Close()
	s.epoch = time.Now()

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	for active() {
		if err := s.fc.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if pkt.StreamIndex() != s.streamIdx {
			pkt.Unref()
			continue
		}

		if err := s.dec.SendPacket(pkt); err == nil || errors.Is(err, astiav.ErrEagain) {
			for {
				if err := s.dec.ReceiveFrame(frame); err != nil {
					break
				}
				b, _, err := s.res.Convert(frame)
				frame.Unref()
				if err != nil {
					if errors.Is(err, ErrSampleRate) {
						pkt.Unref()
						return err
					}
					log.Warnf("%s convert: %v", s.name, err)
					continue
				}
				if s.clock != nil {
					s.clock.Observe(time.Since(s.epoch).Microseconds(), s.fifo.Readable())
				}
				if _, err := s.fifo.Write(b); err != nil {
					// overflow is fatal for the channel
					pkt.Unref()
					return fmt.Errorf("%s fifo: %w", s.name, err)
				}
			}
		}
		pkt.Unref()
	}
	return nil
}

// Close releases decoder, device handle and resampler. Safe to call twice.
func (s *InputStage) Close() {
	if s.res != nil {
		s.res.Close()
		s.res = nil
	}
	if s.dec != nil {
		s.dec.Free()
		s.dec = nil
	}
	if s.fc != nil {
		s.fc.CloseInput()
		s.fc.Free()
		s.fc = nil
	}
	s.opened = false
}
