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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/greyridge/waycorder/mux"
	"github.com/greyridge/waycorder/ring"
)

// after this many consecutive encoder failures the stage gives up
const maxEncodeErrRun = 30

// Crop trims the composed frame before scaling.
type Crop struct {
	Left, Top, Right, Bottom int
}

//
// ==================================
// RGBA -> YUV 4:2:0 scaler (swscale)
// ==================================
//
// Captured frames always go through FFmpeg's software scaler to the
// encoder's planar 4:2:0 target, so no pixel math happens in Go.
//

type yuvScaler struct {
	ssc        *astiav.SoftwareScaleContext
	dst        *astiav.Frame
	srcW, srcH int
	dstW, dstH int
}

func (s *yuvScaler) close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

// ensure lazily (re)builds the scale context on the first frame and on
// source geometry changes (monitor hot-plug).
func (s *yuvScaler) ensure(sw, sh, dw, dh int) error {
	if s.ssc != nil && sw == s.srcW && sh == s.srcH {
		return nil
	}
	s.close()

	flags := astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic)
	ssc, err := astiav.CreateSoftwareScaleContext(
		sw, sh, astiav.PixelFormatRgba,
		dw, dh, astiav.PixelFormatYuv420P,
		flags,
	)
	if err != nil {
		return fmt.Errorf("CreateSoftwareScaleContext(%dx%d RGBA -> %dx%d YUV420P): %w", sw, sh, dw, dh, err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(dw)
	dst.SetHeight(dh)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("dst.AllocBuffer: %w", err)
	}

	s.ssc = ssc
	s.dst = dst
	s.srcW, s.srcH = sw, sh
	s.dstW, s.dstH = dw, dh
	log.Infof("scaler ready: %dx%d RGBA -> %dx%d YUV420P", sw, sh, dw, dh)
	return nil
}

// VideoStage is the video consumer loop: pop from the ring, scale to the
// encoder target, encode, hand packets to the mux writer.
type VideoStage struct {
	ring *ring.Ring
	mux  *mux.Writer
	prof Profile
	crop Crop

	enc    *astiav.CodecContext
	stream *astiav.Stream

	scaler  yuvScaler
	src     *astiav.Frame
	pkt     *astiav.Packet
	cropBuf []byte

	// capture times of frames sitting in the encoder, oldest first; one
	// entry is consumed per produced packet
	pending []int64

	sendT0  int64
	sentAny bool
	t0      int64
	t0set   bool
	lastPTS int64
	errRun  int
	encoded atomic.Int64
}

// NewVideoStage opens the video encoder and registers its stream on the
// container. The mux header must not have been written yet.
func NewVideoStage(prof Profile, crop Crop, r *ring.Ring, w *mux.Writer) (*VideoStage, error) {
	codec := astiav.FindEncoder(prof.CodecID)
	if codec == nil {
		return nil, fmt.Errorf("%w: no encoder for %s", ErrEncode, prof.CodecID)
	}

	enc := astiav.AllocCodecContext(codec)
	if enc == nil {
		return nil, fmt.Errorf("%w: AllocCodecContext", ErrEncode)
	}
	enc.SetWidth(prof.Width)
	enc.SetHeight(prof.Height)
	enc.SetPixelFormat(astiav.PixelFormatYuv420P)
	enc.SetTimeBase(astiav.NewRational(1, prof.FPS))
	enc.SetFramerate(astiav.NewRational(prof.FPS, 1))
	enc.SetBitRate(prof.BitRate)
	enc.SetGopSize(prof.GOP)

	// no B-frames: packets leave the encoder in capture order
	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("bf", "0", 0)

	if err := enc.Open(codec, opts); err != nil {
		enc.Free()
		return nil, fmt.Errorf("%w: open %s: %v", ErrEncode, prof.CodecID, err)
	}

	st, err := w.NewStream(codec)
	if err != nil {
		enc.Free()
		return nil, err
	}
	if err := enc.ToCodecParameters(st.CodecParameters()); err != nil {
		enc.Free()
		return nil, fmt.Errorf("%w: ToCodecParameters: %v", ErrEncode, err)
	}
	st.SetTimeBase(astiav.NewRational(1, prof.FPS))

	return &VideoStage{
		ring:   r,
		mux:    w,
		prof:   prof,
		crop:   crop,
		enc:    enc,
		stream: st,
		pkt:    astiav.AllocPacket(),
	}, nil
}

// Run drains the ring until active reports false and the ring is empty,
// then flushes the encoder. Returns the first fatal error.
func (s *VideoStage) Run(active func() bool) error {
	for {
		f, ok := s.ring.Pop()
		if !ok {
			if !active() {
				break
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		err := s.encodeFrame(f)
		s.ring.Recycle(f)
		if err != nil {
			s.errRun++
			if s.errRun >= maxEncodeErrRun {
				return fmt.Errorf("%w: %d consecutive failures: %v", ErrEncode, s.errRun, err)
			}
			log.Warnf("video frame dropped: %v", err)
			continue
		}
		s.errRun = 0
	}
	return s.flush()
}

// Encoded reports how many packets went to the container.
func (s *VideoStage) Encoded() int64 { return s.encoded.Load() }

func (s *VideoStage) encodeFrame(f *ring.Frame) error {
	cw := f.Width - s.crop.Left - s.crop.Right
	ch := f.Height - s.crop.Top - s.crop.Bottom
	if cw <= 0 || ch <= 0 {
		return fmt.Errorf("crop leaves empty frame %dx%d", cw, ch)
	}

	buf := s.packed(f, cw, ch)

	if s.src == nil || s.src.Width() != cw || s.src.Height() != ch {
		if s.src != nil {
			s.src.Free()
		}
		s.src = astiav.AllocFrame()
		s.src.SetWidth(cw)
		s.src.SetHeight(ch)
		s.src.SetPixelFormat(astiav.PixelFormatRgba)
		if err := s.src.AllocBuffer(1); err != nil {
			return fmt.Errorf("src.AllocBuffer: %w", err)
		}
	}
	if err := s.src.Data().SetBytes(buf, 1); err != nil {
		return fmt.Errorf("src.SetBytes: %w", err)
	}

	if err := s.scaler.ensure(cw, ch, s.prof.Width, s.prof.Height); err != nil {
		return err
	}
	if err := s.scaler.ssc.ScaleFrame(s.src, s.scaler.dst); err != nil {
		return fmt.Errorf("ScaleFrame: %w", err)
	}

	// frame pts keeps the encoder's input timeline monotonic; the muxed
	// pts is stamped per packet in receivePackets, anchored on the first
	// frame that actually produces one
	if !s.sentAny {
		s.sendT0 = f.Time
		s.sentAny = true
	}
	s.scaler.dst.SetPts((f.Time - s.sendT0) * int64(s.prof.FPS) / 1_000_000)

	for {
		err := s.enc.SendFrame(s.scaler.dst)
		if err == nil {
			break
		}
		if errors.Is(err, astiav.ErrEagain) {
			// encoder is full; drain before resending
			if err := s.receivePackets(); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("SendFrame: %w", err)
	}
	s.pending = append(s.pending, f.Time)
	return s.receivePackets()
}

// packed returns the crop window as a tightly packed RGBA buffer.
func (s *VideoStage) packed(f *ring.Frame, cw, ch int) []byte {
	if s.crop == (Crop{}) && f.Stride == f.Width*4 {
		return f.Data
	}
	need := cw * ch * 4
	if cap(s.cropBuf) < need {
		s.cropBuf = make([]byte, need)
	}
	s.cropBuf = s.cropBuf[:need]
	for row := 0; row < ch; row++ {
		srcOff := (row+s.crop.Top)*f.Stride + s.crop.Left*4
		copy(s.cropBuf[row*cw*4:(row+1)*cw*4], f.Data[srcOff:srcOff+cw*4])
	}
	return s.cropBuf
}

// receivePackets drains the encoder. Each produced packet consumes the
// capture time of the frame that went in for it; the stream origin t0 is
// the capture time behind the first packet ever produced, so that packet
// leaves with pts 0.
func (s *VideoStage) receivePackets() error {
	for {
		if err := s.enc.ReceivePacket(s.pkt); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("ReceivePacket: %w", err)
		}

		var pts int64
		if len(s.pending) > 0 {
			t := s.pending[0]
			s.pending = s.pending[1:]
			if !s.t0set {
				s.t0 = t
				s.t0set = true
			}
			// stream time base is 1/fps, capture time is µs
			pts = (t - s.t0) * int64(s.prof.FPS) / 1_000_000
		} else {
			// more packets than queued frames; keep the timeline moving
			pts = s.lastPTS + 1
		}
		if pts < s.lastPTS {
			pts = s.lastPTS
		}
		s.lastPTS = pts

		s.pkt.SetStreamIndex(s.stream.Index())
		s.pkt.SetPts(pts)
		s.pkt.SetDts(pts)
		err := s.mux.WritePacket(s.pkt)
		s.pkt.Unref()
		if err != nil {
			return err
		}
		s.encoded.Add(1)
	}
}

// flush drains the encoder's delay queue at end of stream.
func (s *VideoStage) flush() error {
	if err := s.enc.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		log.Warnf("flush SendFrame: %v", err)
	}
	return s.receivePackets()
}

// Close releases the encoder, scaler and staging frames. Safe to call
// twice.
func (s *VideoStage) Close() {
	s.scaler.close()
	if s.src != nil {
		s.src.Free()
		s.src = nil
	}
	if s.pkt != nil {
		s.pkt.Free()
		s.pkt = nil
	}
	if s.enc != nil {
		s.enc.Free()
		s.enc = nil
	}
}
