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
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/greyridge/waycorder/audiofifo"
	"github.com/greyridge/waycorder/encode"
)

// mixerGraph is the two-input mix filter description.
const mixerGraph = "[in0][in1]amix=inputs=2[out]"

// Mixer combines the microphone and system fifos sample-synchronously into
// one encoded stream. Active only when both devices are open; with one
// device the separate-mode StreamEncoder handles it alone.
type Mixer struct {
	mic *audiofifo.FIFO
	sys *audiofifo.FIFO
	enc *StreamEncoder

	graph *astiav.FilterGraph
	src0  *astiav.BuffersrcFilterContext
	src1  *astiav.BuffersrcFilterContext
	sink  *astiav.BuffersinkFilterContext

	in0 *astiav.Frame
	in1 *astiav.Frame
	out *astiav.Frame

	rate      int
	channels  int
	frameSize int
	mixCount  int64
}

// NewMixer builds the amix graph against the mixed-stream encoder.
func NewMixer(mic, sys *audiofifo.FIFO, enc *StreamEncoder) (*Mixer, error) {
	m := &Mixer{
		mic:       mic,
		sys:       sys,
		enc:       enc,
		rate:      enc.rate,
		channels:  enc.channels,
		frameSize: enc.frameSize,
	}
	if err := m.initFilters(); err != nil {
		m.Close()
		return nil, err
	}
	m.in0 = m.newInputFrame()
	m.in1 = m.newInputFrame()
	m.out = astiav.AllocFrame()
	return m, nil
}

func (m *Mixer) initFilters() error {
	abuffer := astiav.FindFilterByName("abuffer")
	abuffersink := astiav.FindFilterByName("abuffersink")
	if abuffer == nil || abuffersink == nil {
		return fmt.Errorf("%w: abuffer/abuffersink filters unavailable", encode.ErrEncode)
	}

	m.graph = astiav.AllocFilterGraph()
	if m.graph == nil {
		return fmt.Errorf("%w: AllocFilterGraph", encode.ErrEncode)
	}

	newSrc := func(name string) (*astiav.BuffersrcFilterContext, error) {
		src, err := m.graph.NewBuffersrcFilterContext(abuffer, name)
		if err != nil {
			return nil, fmt.Errorf("%w: buffersrc %s: %v", encode.ErrEncode, name, err)
		}
		p := astiav.AllocBuffersrcFilterContextParameters()
		defer p.Free()
		p.SetSampleRate(m.rate)
		p.SetSampleFormat(astiav.SampleFormatFlt)
		p.SetChannelLayout(layoutFor(m.channels))
		p.SetTimeBase(astiav.NewRational(1, m.rate))
		if err := src.SetParameters(p); err != nil {
			return nil, fmt.Errorf("%w: buffersrc %s parameters: %v", encode.ErrEncode, name, err)
		}
		if err := src.Initialize(nil); err != nil {
			return nil, fmt.Errorf("%w: buffersrc %s init: %v", encode.ErrEncode, name, err)
		}
		return src, nil
	}

	var err error
	if m.src0, err = newSrc("in0"); err != nil {
		return err
	}
	if m.src1, err = newSrc("in1"); err != nil {
		return err
	}
	if m.sink, err = m.graph.NewBuffersinkFilterContext(abuffersink, "out"); err != nil {
		return fmt.Errorf("%w: buffersink: %v", encode.ErrEncode, err)
	}

	// wire the parsed description between our endpoints
	inputs := astiav.AllocFilterInOut()
	inputs.SetName("out")
	inputs.SetFilterContext(m.sink.FilterContext())
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	out1 := astiav.AllocFilterInOut()
	out1.SetName("in1")
	out1.SetFilterContext(m.src1.FilterContext())
	out1.SetPadIdx(0)
	out1.SetNext(nil)

	out0 := astiav.AllocFilterInOut()
	out0.SetName("in0")
	out0.SetFilterContext(m.src0.FilterContext())
	out0.SetPadIdx(0)
	out0.SetNext(out1)

	if err := m.graph.Parse(mixerGraph, inputs, out0); err != nil {
		return fmt.Errorf("%w: parse %q: %v", encode.ErrEncode, mixerGraph, err)
	}
	if err := m.graph.Configure(); err != nil {
		return fmt.Errorf("%w: configure graph: %v", encode.ErrEncode, err)
	}
	log.Infof("audio mixer ready: %s", mixerGraph)
	return nil
}

func (m *Mixer) newInputFrame() *astiav.Frame {
	f := astiav.AllocFrame()
	f.SetSampleFormat(astiav.SampleFormatFlt)
	f.SetChannelLayout(layoutFor(m.channels))
	f.SetSampleRate(m.rate)
	f.SetNbSamples(m.frameSize)
	if err := f.AllocBuffer(0); err != nil {
		log.Errorf("mixer input frame: %v", err)
	}
	return f
}

// Run mixes while the recording is active and keeps draining until both
// fifos are empty, so tail audio reaches the file. The exhausted side is
// zero-filled during the drain.
func (m *Mixer) Run(active func() bool) error {
	idle := 0
	for {
		micN, sysN := m.mic.Readable(), m.sys.Readable()
		if micN >= m.frameSize && sysN >= m.frameSize {
			idle = 0
			if err := m.mixOne(); err != nil {
				return err
			}
			continue
		}
		if !active() {
			if micN == 0 && sysN == 0 {
				break
			}
			if err := m.mixOne(); err != nil {
				return err
			}
			continue
		}
		time.Sleep(fifoWait)
		if idle++; idle >= fifoWaitIter {
			idle = 0
		}
	}
	return m.enc.Flush()
}

// mixOne feeds one frame from each fifo through the graph and encodes all
// produced output frames.
func (m *Mixer) mixOne() error {
	pts := m.mixCount * int64(m.frameSize)
	m.mixCount++

	if err := m.fill(m.in0, m.mic, pts); err != nil {
		return err
	}
	if err := m.fill(m.in1, m.sys, pts); err != nil {
		return err
	}

	// keep-ref so the staging frames stay allocated across cycles
	if err := m.src0.AddFrame(m.in0, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("%w: amix in0: %v", encode.ErrEncode, err)
	}
	if err := m.src1.AddFrame(m.in1, astiav.NewBuffersrcFlags(astiav.BuffersrcFlagKeepRef)); err != nil {
		return fmt.Errorf("%w: amix in1: %v", encode.ErrEncode, err)
	}

	for {
		if err := m.sink.GetFrame(m.out, astiav.NewBuffersinkFlags()); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("%w: amix out: %v", encode.ErrEncode, err)
		}
		err := m.enc.EncodeFrame(m.out)
		m.out.Unref()
		if err != nil {
			return err
		}
	}
}

// fill loads one encoder frame from the fifo into f, zero-padding when the
// fifo runs short (shutdown drain).
func (m *Mixer) fill(f *astiav.Frame, fifo *audiofifo.FIFO, pts int64) error {
	want := m.frameSize * m.channels * 4
	chunk := fifo.Read(m.frameSize)
	if len(chunk) < want {
		padded := make([]byte, want)
		copy(padded, chunk)
		chunk = padded
	}
	if err := f.Data().SetBytes(chunk, 0); err != nil {
		return fmt.Errorf("mixer SetBytes: %w", err)
	}
	f.SetNbSamples(m.frameSize)
	f.SetPts(pts)
	return nil
}

// Close releases the graph and staging frames. Safe to call twice.
func (m *Mixer) Close() {
	for _, f := range []**astiav.Frame{&m.in0, &m.in1, &m.out} {
		if *f != nil {
			(*f).Free()
			*f = nil
		}
	}
	if m.graph != nil {
		// freeing the graph releases the filter contexts with it
		m.graph.Free()
		m.graph = nil
		m.src0, m.src1, m.sink = nil, nil, nil
	}
}
