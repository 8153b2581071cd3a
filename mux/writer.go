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

// Package mux owns the output container. All header, packet and trailer
// writes are serialised on one mutex; stream interleaving by timestamp is
// left to the format layer.
package mux

import (
	"errors"
	"fmt"
	"sync"

	astiav "github.com/asticode/go-astiav"
	logging "github.com/ipfs/go-log/v2"

	"github.com/greyridge/waycorder/options"
)

var log = logging.Logger("mux")

// ErrMux marks a writer failure. Fatal: the pipeline transitions to
// Faulted and closes best-effort.
var ErrMux = errors.New("mux: container write failed")

// Writer wraps the output format context. Streams are added before
// WriteHeader; packets from any stage go through WritePacket. Once the
// header is written, the trailer is written exactly once, by Close at the
// latest; a file whose header was never written gets no trailer.
type Writer struct {
	mu sync.Mutex

	fc   *astiav.FormatContext
	pb   *astiav.IOContext
	path string

	headerWritten  bool
	trailerWritten bool
	closed         bool
}

// NewWriter opens the container file for writing. Nothing hits the disk
// until WriteHeader.
func NewWriter(path string, container options.Container) (*Writer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, container.String(), path)
	if err != nil || fc == nil {
		return nil, fmt.Errorf("%w: AllocOutputFormatContext %s: %v", ErrMux, container, err)
	}

	pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	if err != nil {
		fc.Free()
		return nil, fmt.Errorf("%w: OpenIOContext %s: %v", ErrMux, path, err)
	}
	fc.SetPb(pb)

	log.Infof("output container %s -> %s", container, path)
	return &Writer{fc: fc, pb: pb, path: path}, nil
}

// NewStream adds an output stream. Must precede WriteHeader.
func (w *Writer) NewStream(c *astiav.Codec) (*astiav.Stream, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.headerWritten {
		return nil, fmt.Errorf("%w: stream added after header", ErrMux)
	}
	s := w.fc.NewStream(c)
	if s == nil {
		return nil, fmt.Errorf("%w: NewStream", ErrMux)
	}
	return s, nil
}

// WriteHeader writes the container header exactly once.
func (w *Writer) WriteHeader() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.headerWritten {
		return nil
	}
	if err := w.fc.WriteHeader(nil); err != nil {
		return fmt.Errorf("%w: WriteHeader: %v", ErrMux, err)
	}
	w.headerWritten = true
	return nil
}

// WritePacket interleaves one packet into the container. Safe for
// concurrent callers.
func (w *Writer) WritePacket(p *astiav.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.headerWritten || w.trailerWritten || w.closed {
		return fmt.Errorf("%w: packet outside header..trailer window", ErrMux)
	}
	if err := w.fc.WriteInterleavedFrame(p); err != nil && !errors.Is(err, astiav.ErrEagain) {
		return fmt.Errorf("%w: WriteInterleavedFrame: %v", ErrMux, err)
	}
	return nil
}

// WriteTrailer finalises the file exactly once. Runs on every shutdown
// path, including Faulted.
func (w *Writer) WriteTrailer() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeTrailerLocked()
}

func (w *Writer) writeTrailerLocked() error {
	if w.trailerWritten || !w.headerWritten {
		return nil
	}
	w.trailerWritten = true
	if err := w.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("%w: WriteTrailer: %v", ErrMux, err)
	}
	return nil
}

// Close writes the trailer when still pending, then releases the IO
// context and format context. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.writeTrailerLocked()

	if w.pb != nil {
		if cerr := w.pb.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close io: %v", ErrMux, cerr)
		}
		w.pb.Free()
		w.pb = nil
	}
	if w.fc != nil {
		w.fc.Free()
		w.fc = nil
	}
	if err != nil {
		log.Errorf("close %s: %v", w.path, err)
	}
	return err
}
