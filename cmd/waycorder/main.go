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

// waycorder records the Wayland desktop into an MP4 or Matroska file.
// The compositor protocol glue connects through wayland.Source; this
// binary wires configuration, logging and lifecycle around the pipeline.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	astiav "github.com/asticode/go-astiav"
	logging "github.com/ipfs/go-log/v2"

	"github.com/greyridge/waycorder/options"
	"github.com/greyridge/waycorder/pipeline"
	"github.com/greyridge/waycorder/wayland"
)

var log = logging.Logger("main")

var version string
var build string

func main() {
	configPath := flag.String("config", "", "settings file (default ~/.config/waycorder/settings.yml)")
	output := flag.String("o", "", "output file (.mp4 or .mkv), overrides config")
	fps := flag.Int("fps", 0, "target frame rate, overrides config")
	mic := flag.String("mic", "", "microphone device name, overrides config")
	sys := flag.String("sys", "", "system loopback device name, overrides config")
	noMix := flag.Bool("nomix", false, "keep mic and system audio as two separate streams")
	debugG := flag.Bool("debug", false, "general debugging override")
	debugFF := flag.Bool("debugstreams", false, "debug FFmpeg internals")
	flag.Parse()

	if *debugG {
		logging.SetAllLoggers(logging.LevelDebug)
	}
	log.Infof("running waycorder v%s (build: %s)", version, build)

	if *debugFF {
		astiav.SetLogLevel(astiav.LogLevelDebug)
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt, msg string) {
			var cs string
			if c != nil {
				if cl := c.Class(); cl != nil {
					cs = " - class: " + cl.String()
				}
			}
			log.Debugf("ffmpeg: %s%s - level: %d", strings.TrimSpace(msg), cs, l)
		})
	}

	env := options.NewEnvironment()
	path := *configPath
	if path == "" {
		path = env.SettingsFile
	}

	cfg, err := options.Load(path)
	if err != nil {
		if *configPath != "" {
			log.Errorf("config %s: %v", path, err)
			os.Exit(1)
		}
		// no settings yet: start from defaults and persist them
		cfg = options.Record{}
		cfg.ApplyDefaults()
	}
	if *output != "" {
		cfg.OutputPath = *output
	}
	if *fps > 0 {
		cfg.FPS = *fps
	}
	if *mic != "" {
		cfg.MicDevice = *mic
	}
	if *sys != "" {
		cfg.SysDevice = *sys
	}
	if *noMix {
		cfg.NoMix = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err := options.Save(path, &cfg); err != nil {
		log.Warnf("persist settings: %v", err)
	}

	src := wayland.NewChannelSource()
	ctl := pipeline.New(cfg, src)
	if err := ctl.Init(); err != nil {
		log.Errorf("init: %v", err)
		os.Exit(1)
	}

	connectCompositor(src, ctl.Registry())

	if err := ctl.Start(); err != nil {
		log.Errorf("start: %v", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Infof("signal %s: stopping", s)
		if err := ctl.Stop(); err != nil {
			log.Errorf("stop: %v", err)
		}
	}()

	if err := ctl.Wait(); err != nil {
		log.Errorf("recording failed: %v", err)
		os.Exit(1)
	}

	st := ctl.Stats()
	log.Infof("done: %d video packets, %d audio packets, %d frames dropped -> %s",
		st.VideoPackets, st.AudioPackets, st.FramesDropped, cfg.OutputPath)
}
