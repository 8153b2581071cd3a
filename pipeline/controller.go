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

// Package pipeline owns the recording lifecycle: it wires the compositor
// event stream through capture, composition and the frame ring into the
// encoder stages, and tears everything down in order on stop or fault.
package pipeline

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/greyridge/waycorder/audio"
	"github.com/greyridge/waycorder/audiofifo"
	"github.com/greyridge/waycorder/capture"
	"github.com/greyridge/waycorder/encode"
	"github.com/greyridge/waycorder/mux"
	"github.com/greyridge/waycorder/options"
	"github.com/greyridge/waycorder/ring"
	"github.com/greyridge/waycorder/screen"
	"github.com/greyridge/waycorder/wayland"
)

var log = logging.Logger("pipeline")

// growable fifos start with this many encoder frames of headroom
const growFifoFrames = 20

// State is the controller lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StateDraining
	StateClosed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	}
	return "unknown"
}

// AudioChannels is the post-open channel mask: which requested devices
// actually opened.
type AudioChannels struct {
	Mic bool
	Sys bool
}

// Stats is a snapshot of the recording counters.
type Stats struct {
	FramesComposed int64
	FramesAppended int64
	FramesDropped  int64
	VideoPackets   int64
	AudioPackets   int64
}

// Controller owns every long-lived entity of the pipeline. Worker stages
// borrow the references they need at construction and never outlive it.
type Controller struct {
	cfg options.Record
	src wayland.Source

	reg     *screen.Registry
	comp    *screen.Composer
	adapter capture.Adapter
	ring    *ring.Ring

	micFifo *audiofifo.FIFO
	sysFifo *audiofifo.FIFO
	micIn   *audio.InputStage
	sysIn   *audio.InputStage

	writer *mux.Writer
	video  *encode.VideoStage
	micEnc *audio.StreamEncoder
	sysEnc *audio.StreamEncoder
	mixEnc *audio.StreamEncoder
	mixer  *audio.Mixer

	// capture admission flag, shared with every stage loop
	active atomic.Bool
	state  atomic.Int32
	start  time.Time

	latest   latestFrame
	composed atomic.Int64
	appended atomic.Int64

	channels AudioChannels

	wg       sync.WaitGroup
	evDone   chan struct{}
	started  bool
	stopOnce sync.Once

	errMu sync.Mutex
	err   error
}

// New builds an idle controller around a compositor source.
func New(cfg options.Record, src wayland.Source) *Controller {
	reg := screen.NewRegistry()
	return &Controller{
		cfg:    cfg,
		src:    src,
		reg:    reg,
		comp:   screen.NewComposer(reg),
		ring:   ring.New(ring.DefaultCapacity(), 0),
		evDone: make(chan struct{}),
	}
}

// Registry exposes the screen layout, for the protocol glue and tests.
func (c *Controller) Registry() *screen.Registry { return c.reg }

// State reports the lifecycle position.
func (c *Controller) State() State { return State(c.state.Load()) }

// AudioChannels reports which requested devices opened. Valid after Init.
func (c *Controller) AudioChannels() AudioChannels { return c.channels }

// Err returns the fatal error after a Faulted shutdown, nil otherwise.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Stats snapshots the recording counters.
func (c *Controller) Stats() Stats {
	s := Stats{
		FramesComposed: c.composed.Load(),
		FramesAppended: c.appended.Load(),
		FramesDropped:  c.ring.Dropped(),
	}
	if c.video != nil {
		s.VideoPackets = c.video.Encoded()
	}
	for _, e := range []*audio.StreamEncoder{c.micEnc, c.sysEnc, c.mixEnc} {
		if e != nil {
			s.AudioPackets += e.Encoded()
		}
	}
	return s
}

// Init moves Idle -> Configured: validate the config, resolve the product
// type and adapter variant, open the output container and the audio
// devices. Encoders are allocated when the first composed frame reveals
// the canvas size.
func (c *Controller) Init() error {
	if State(c.state.Load()) != StateIdle {
		return fmt.Errorf("pipeline: init in state %s", c.State())
	}
	c.cfg.ApplyDefaults()
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	adapter, err := capture.New(capture.DetectVariant())
	if err != nil {
		return err
	}
	c.adapter = adapter

	writer, err := mux.NewWriter(c.cfg.OutputPath, c.cfg.Container())
	if err != nil {
		adapter.Close()
		return err
	}
	c.writer = writer

	// device-open failures disable the channel, never the recording
	if c.cfg.WantsMic() {
		c.micIn = audio.NewInputStage("mic", c.cfg.MicDevice, encode.DefaultSampleRate, encode.DefaultChannels)
		if err := c.micIn.Open(); err != nil {
			log.Warnf("microphone disabled: %v", err)
			c.micIn = nil
		} else {
			c.channels.Mic = true
		}
	}
	if c.cfg.WantsSys() {
		c.sysIn = audio.NewInputStage("sys", c.cfg.SysDevice, encode.DefaultSampleRate, encode.DefaultChannels)
		if err := c.sysIn.Open(); err != nil {
			log.Warnf("system audio disabled: %v", err)
			c.sysIn = nil
		} else {
			c.channels.Sys = true
		}
	}

	c.state.Store(int32(StateConfigured))
	log.Infof("configured: %d fps, container %s, mic=%v sys=%v",
		c.cfg.FPS, c.cfg.Container(), c.channels.Mic, c.channels.Sys)
	return nil
}

// Start launches the compositor event loop. The pipeline stays Configured
// until the first buffer arrives.
func (c *Controller) Start() error {
	if State(c.state.Load()) != StateConfigured {
		return fmt.Errorf("pipeline: start in state %s", c.State())
	}
	c.start = time.Now()
	c.active.Store(true)
	c.started = true
	go c.eventLoop()
	return nil
}

func (c *Controller) isActive() bool { return c.active.Load() }

func (c *Controller) eventLoop() {
	defer close(c.evDone)
	for ev := range c.src.Events() {
		switch ev.Kind {
		case wayland.EventOutputAnnounced:
			log.Debugf("output announced: %s v%d", ev.Name, ev.Version)

		case wayland.EventOutputDevice:
			id, err := uuid.Parse(ev.UUID)
			if err != nil {
				log.Warnf("%v: output device uuid %q", wayland.ErrProtocol, ev.UUID)
				continue
			}
			c.reg.Put(id, ev.Geometry)

		case wayland.EventOutputRemoved:
			id, err := uuid.Parse(ev.UUID)
			if err != nil {
				log.Warnf("%v: removed uuid %q", wayland.ErrProtocol, ev.UUID)
				continue
			}
			c.reg.Remove(id)

		case wayland.EventBufferReady:
			c.onBuffer(ev)

		default:
			log.Warnf("%v: kind %d", wayland.ErrProtocol, ev.Kind)
		}
	}
}

func (c *Controller) onBuffer(ev wayland.Event) {
	if !c.active.Load() {
		// admission stopped; release the descriptor without mapping
		_ = os.NewFile(uintptr(ev.Buffer.FD), "waycorder-buffer").Close()
		return
	}

	id, err := uuid.Parse(ev.Output)
	if err != nil {
		log.Warnf("%v: buffer for %q", wayland.ErrProtocol, ev.Output)
		_ = os.NewFile(uintptr(ev.Buffer.FD), "waycorder-buffer").Close()
		return
	}

	data, stride, err := c.adapter.Frame(ev.Buffer)
	if err != nil {
		// frame dropped, capture continues
		log.Warnf("capture: %v", err)
		return
	}

	sub := screen.SubImage{Data: data, Width: ev.Buffer.Width, Height: ev.Buffer.Height, Stride: stride}
	composed, ok := c.comp.Submit(id, sub)
	if !ok {
		return
	}
	c.composed.Add(1)

	if State(c.state.Load()) == StateConfigured {
		if err := c.openStreams(composed.Width, composed.Height); err != nil {
			c.fault(err)
			return
		}
	}
	c.latest.put(composed.Data, composed.Width, composed.Height, composed.Stride,
		time.Since(c.start).Microseconds())
}

// openStreams runs once, on the first composed frame: allocate encoders
// against the now-known canvas size, write the container header and start
// every producer and consumer thread.
func (c *Controller) openStreams(width, height int) error {
	profiles := encode.BuildProfiles(&c.cfg, width, height)
	mkv := c.cfg.Container() == options.ContainerMKV

	crop := encode.Crop{Left: c.cfg.CropLeft, Top: c.cfg.CropTop, Right: c.cfg.CropRight, Bottom: c.cfg.CropBottom}
	video, err := encode.NewVideoStage(profiles.Video, crop, c.ring, c.writer)
	if err != nil {
		return err
	}
	c.video = video

	mixed := c.channels.Mic && c.channels.Sys && !c.cfg.NoMix
	newFifo := func(frameSize int) *audiofifo.FIFO {
		if mkv {
			return audiofifo.New(encode.DefaultChannels, frameSize, audiofifo.PolicyBounded)
		}
		return audiofifo.New(encode.DefaultChannels, growFifoFrames*frameSize, audiofifo.PolicyGrow)
	}

	if mixed {
		if c.mixEnc, err = audio.NewStreamEncoder("mix", profiles.Mix, c.writer, mkv); err != nil {
			return err
		}
		c.micFifo = newFifo(c.mixEnc.FrameSize())
		c.sysFifo = newFifo(c.mixEnc.FrameSize())
		c.micIn.SetFIFO(c.micFifo)
		c.sysIn.SetFIFO(c.sysFifo)
		if c.mixer, err = audio.NewMixer(c.micFifo, c.sysFifo, c.mixEnc); err != nil {
			return err
		}
	} else {
		if c.channels.Mic {
			if c.micEnc, err = audio.NewStreamEncoder("mic", profiles.Mic, c.writer, mkv); err != nil {
				return err
			}
			c.micFifo = newFifo(c.micEnc.FrameSize())
			c.micEnc.SetFIFO(c.micFifo)
			c.micIn.SetFIFO(c.micFifo)
			c.micIn.SetClock(c.micEnc.Clock())
		}
		if c.channels.Sys {
			if c.sysEnc, err = audio.NewStreamEncoder("sys", profiles.Sys, c.writer, mkv); err != nil {
				return err
			}
			c.sysFifo = newFifo(c.sysEnc.FrameSize())
			c.sysEnc.SetFIFO(c.sysFifo)
			c.sysIn.SetFIFO(c.sysFifo)
			c.sysIn.SetClock(c.sysEnc.Clock())
		}
	}

	if err := c.writer.WriteHeader(); err != nil {
		return err
	}

	c.state.Store(int32(StateRunning))
	log.Infof("recording %dx%d -> %s", width, height, c.cfg.OutputPath)

	c.goRun("producer", func() error { c.producerLoop(); return nil })
	c.goRun("video", func() error { return c.video.Run(c.isActive) })
	if c.micIn != nil {
		c.goRun("mic-in", func() error { return c.micIn.Run(c.isActive) })
	}
	if c.sysIn != nil {
		c.goRun("sys-in", func() error { return c.sysIn.Run(c.isActive) })
	}
	if c.mixer != nil {
		c.goRun("mixer", func() error { return c.mixer.Run(c.isActive) })
	}
	if c.micEnc != nil {
		c.goRun("mic-enc", func() error { return c.micEnc.Run(c.isActive) })
	}
	if c.sysEnc != nil {
		c.goRun("sys-enc", func() error { return c.sysEnc.Run(c.isActive) })
	}
	return nil
}

func (c *Controller) goRun(name string, fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			log.Errorf("%s: %v", name, err)
			c.fault(err)
		}
	}()
}

// fault records the first fatal error and stops admission. The shutdown
// barrier itself runs in Stop, which the owner calls from outside the
// stage goroutines.
func (c *Controller) fault(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	c.state.Store(int32(StateFaulted))
	c.active.Store(false)
	go c.src.Close()
}

// Stop ends the recording: producers stop admitting, consumers drain the
// ring and fifos, the trailer is written on every path. Idempotent; a
// second Stop is a no-op.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		if State(c.state.Load()) == StateRunning {
			c.state.Store(int32(StateDraining))
		}
		c.active.Store(false)
		_ = c.src.Close()
		if c.started {
			<-c.evDone
		}
		c.wg.Wait()
		c.shutdown()
	})
	return c.Err()
}

// Wait blocks until the compositor connection ends, then performs the
// normal stop sequence.
func (c *Controller) Wait() error {
	if c.started {
		<-c.evDone
	}
	return c.Stop()
}

// shutdown releases everything the controller owns. The mux trailer runs
// even on the fault path so the container is never truncated.
func (c *Controller) shutdown() {
	if c.video != nil {
		c.video.Close()
	}
	if c.mixer != nil {
		c.mixer.Close()
	}
	for _, e := range []*audio.StreamEncoder{c.micEnc, c.sysEnc, c.mixEnc} {
		if e != nil {
			e.Close()
		}
	}
	if c.adapter != nil {
		c.adapter.Close()
	}
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			c.errMu.Lock()
			if c.err == nil {
				c.err = err
			}
			c.errMu.Unlock()
		}
	}

	if State(c.state.Load()) != StateFaulted {
		c.state.Store(int32(StateClosed))
	}
	stats := c.Stats()
	log.Infof("stopped: %d composed, %d appended, %d dropped, %d video packets, %d audio packets",
		stats.FramesComposed, stats.FramesAppended, stats.FramesDropped, stats.VideoPackets, stats.AudioPackets)
}
