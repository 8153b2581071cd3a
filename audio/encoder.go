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
	"sync/atomic"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/greyridge/waycorder/audiofifo"
	"github.com/greyridge/waycorder/encode"
	"github.com/greyridge/waycorder/mux"
)

// bounded wait for an underfilled fifo before the iteration counter wraps
const (
	fifoWait     = 10 * time.Millisecond
	fifoWaitIter = 1000
)

// StreamEncoder owns one encoded audio stream in the container: codec
// context, output stream, the conversion into the codec's sample format,
// and the stream clock. In separate mode it also drains a fifo on its own
// goroutine; in mixed mode the Mixer feeds it directly.
type StreamEncoder struct {
	name string
	mux  *mux.Writer
	fifo *audiofifo.FIFO // nil in mixed mode

	enc    *astiav.CodecContext
	stream *astiav.Stream
	swr    *astiav.SoftwareResampleContext

	srcFrame *astiav.Frame
	encFrame *astiav.Frame
	pkt      *astiav.Packet

	clock     *audiofifo.Clock
	rate      int
	channels  int
	frameSize int
	encoded   atomic.Int64
}

// NewStreamEncoder opens the codec and registers the stream. mkv selects
// the Matroska pts formula and the 1/1000 stream time base. For separate
// mode, attach the source fifo with SetFIFO before Run.
func NewStreamEncoder(name string, prof encode.Profile, w *mux.Writer, mkv bool) (*StreamEncoder, error) {
	codec := astiav.FindEncoder(prof.CodecID)
	if codec == nil {
		return nil, fmt.Errorf("%w: no encoder for %s", encode.ErrEncode, prof.CodecID)
	}

	enc := astiav.AllocCodecContext(codec)
	if enc == nil {
		return nil, fmt.Errorf("%w: AllocCodecContext", encode.ErrEncode)
	}
	enc.SetChannelLayout(layoutFor(prof.Channels))
	enc.SetSampleRate(prof.SampleRate)
	if sfs := codec.SampleFormats(); len(sfs) > 0 {
		enc.SetSampleFormat(sfs[0])
	}
	enc.SetTimeBase(astiav.NewRational(1, prof.SampleRate))
	enc.SetBitRate(prof.BitRate)
	// some builds require experimental compliance for AAC
	enc.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	if err := enc.Open(codec, nil); err != nil {
		enc.Free()
		return nil, fmt.Errorf("%w: open %s: %v", encode.ErrEncode, prof.CodecID, err)
	}

	frameSize := enc.FrameSize()
	if frameSize <= 0 {
		frameSize = 1024
	}

	st, err := w.NewStream(codec)
	if err != nil {
		enc.Free()
		return nil, err
	}
	if err := enc.ToCodecParameters(st.CodecParameters()); err != nil {
		enc.Free()
		return nil, fmt.Errorf("%w: ToCodecParameters: %v", encode.ErrEncode, err)
	}
	if mkv {
		st.SetTimeBase(astiav.NewRational(1, 1000))
	} else {
		st.SetTimeBase(astiav.NewRational(1, prof.SampleRate))
	}

	return &StreamEncoder{
		name:      name,
		mux:       w,
		enc:       enc,
		stream:    st,
		swr:       astiav.AllocSoftwareResampleContext(),
		pkt:       astiav.AllocPacket(),
		clock:     audiofifo.NewClock(frameSize, prof.SampleRate, mkv),
		rate:      prof.SampleRate,
		channels:  prof.Channels,
		frameSize: frameSize,
	}, nil
}

// SetFIFO attaches the separate-mode source queue.
func (e *StreamEncoder) SetFIFO(f *audiofifo.FIFO) { e.fifo = f }

// FrameSize is the encoder's samples-per-packet requirement.
func (e *StreamEncoder) FrameSize() int { return e.frameSize }

// Clock exposes the stream clock (in separate mode the input stage feeding
// this encoder observes its appends on it).
func (e *StreamEncoder) Clock() *audiofifo.Clock { return e.clock }

// Encoded reports packets written so far.
func (e *StreamEncoder) Encoded() int64 { return e.encoded.Load() }

// EncodeChunk encodes exactly one encoder frame of packed float32 bytes.
// Short chunks (stream tail) are zero-padded.
func (e *StreamEncoder) EncodeChunk(chunk []byte) error {
	want := e.frameSize * e.channels * 4
	if len(chunk) < want {
		padded := make([]byte, want)
		copy(padded, chunk)
		chunk = padded
	}

	if e.srcFrame == nil {
		e.srcFrame = astiav.AllocFrame()
		e.srcFrame.SetSampleFormat(astiav.SampleFormatFlt)
		e.srcFrame.SetChannelLayout(layoutFor(e.channels))
		e.srcFrame.SetSampleRate(e.rate)
		e.srcFrame.SetNbSamples(e.frameSize)
		if err := e.srcFrame.AllocBuffer(0); err != nil {
			return fmt.Errorf("srcFrame.AllocBuffer: %w", err)
		}
	}
	if err := e.srcFrame.Data().SetBytes(chunk, 0); err != nil {
		return fmt.Errorf("srcFrame.SetBytes: %w", err)
	}
	// encoder input runs on the corrected capture timeline; the packet pts
	// written to the container stays count-based
	e.srcFrame.SetPts(e.clock.FrameTime() * int64(e.rate) / 1_000_000)
	return e.EncodeFrame(e.srcFrame)
}

// EncodeFrame converts a frame in any format/layout into the codec's own
// and sends it, draining all produced packets to the container.
func (e *StreamEncoder) EncodeFrame(f *astiav.Frame) error {
	e.encFrame = e.prepEncFrame(e.encFrame)
	if e.encFrame == nil {
		return fmt.Errorf("%w: alloc encoder frame", encode.ErrEncode)
	}
	if err := e.swr.ConvertFrame(f, e.encFrame); err != nil {
		return fmt.Errorf("swr ConvertFrame: %w", err)
	}
	e.encFrame.SetPts(f.Pts())
	if err := e.enc.SendFrame(e.encFrame); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("SendFrame: %w", err)
	}
	return e.receivePackets()
}

func (e *StreamEncoder) prepEncFrame(f *astiav.Frame) *astiav.Frame {
	if f == nil {
		f = astiav.AllocFrame()
	} else {
		f.Unref()
	}
	f.SetSampleFormat(e.enc.SampleFormat())
	f.SetChannelLayout(e.enc.ChannelLayout())
	f.SetSampleRate(e.enc.SampleRate())
	f.SetNbSamples(e.frameSize)
	if err := f.AllocBuffer(0); err != nil {
		log.Errorf("%s: encoder frame AllocBuffer: %v", e.name, err)
		f.Free()
		return nil
	}
	return f
}

func (e *StreamEncoder) receivePackets() error {
	for {
		if err := e.enc.ReceivePacket(e.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("%w: ReceivePacket: %v", encode.ErrEncode, err)
		}
		pts := e.clock.NextPTS()
		e.pkt.SetStreamIndex(e.stream.Index())
		e.pkt.SetPts(pts)
		e.pkt.SetDts(pts)
		err := e.mux.WritePacket(e.pkt)
		e.pkt.Unref()
		if err != nil {
			return err
		}
		e.encoded.Add(1)
	}
}

// Run is the separate-mode consumer loop: pull encoder-frame-sized chunks
// from the fifo while the recording is active, then drain the tail.
func (e *StreamEncoder) Run(active func() bool) error {
	if e.fifo == nil {
		return nil
	}
	idle := 0
	for {
		if e.fifo.Readable() >= e.frameSize {
			idle = 0
			if err := e.encodeOne(); err != nil {
				return err
			}
			continue
		}
		if !active() {
			if e.fifo.Readable() > 0 {
				if err := e.encodeOne(); err != nil {
					return err
				}
				continue
			}
			break
		}
		time.Sleep(fifoWait)
		if idle++; idle >= fifoWaitIter {
			idle = 0
		}
	}
	return e.Flush()
}

func (e *StreamEncoder) encodeOne() error {
	chunk := e.fifo.Read(e.frameSize)
	if chunk == nil {
		return nil
	}
	return e.EncodeChunk(chunk)
}

// Flush drains the codec's delay queue.
func (e *StreamEncoder) Flush() error {
	if e.enc == nil {
		return nil
	}
	if err := e.enc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		log.Warnf("%s flush: %v", e.name, err)
	}
	return e.receivePackets()
}

// Close releases codec, resampler and staging frames. Safe to call twice.
func (e *StreamEncoder) Close() {
	if e.srcFrame != nil {
		e.srcFrame.Free()
		e.srcFrame = nil
	}
	if e.encFrame != nil {
		e.encFrame.Free()
		e.encFrame = nil
	}
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	if e.swr != nil {
		e.swr.Free()
		e.swr = nil
	}
	if e.enc != nil {
		e.enc.Free()
		e.enc = nil
	}
}
