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

// Package options holds the recording configuration and its on-disk yaml
// form.
package options

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

var appName = "waycorder"

// Container is the output file format, selected by extension.
type Container int

const (
	ContainerMP4 Container = iota
	ContainerMKV
)

func (c Container) String() string {
	if c == ContainerMKV {
		return "matroska"
	}
	return "mp4"
}

// Record is everything the pipeline needs at init. Established once,
// immutable while recording.
type Record struct {
	FPS        int    `yaml:"fps"`
	VideoCodec string `yaml:"video_codec,omitempty"` // empty = h264
	AudioCodec string `yaml:"audio_codec,omitempty"` // empty = aac
	BitrateV   int    `yaml:"bitrate_v,omitempty"`
	BitrateA   int    `yaml:"bitrate_a,omitempty"`
	GOP        int    `yaml:"gop,omitempty"`
	MicDevice  string `yaml:"mic_device,omitempty"` // empty = disabled
	SysDevice  string `yaml:"sys_device,omitempty"` // empty = disabled
	NoMix      bool   `yaml:"no_mix,omitempty"`     // mic + sys as two streams instead of amix
	OutputPath string `yaml:"output_path"`

	// crop offsets applied to the composed frame before scaling
	CropLeft   int `yaml:"crop_left,omitempty"`
	CropTop    int `yaml:"crop_top,omitempty"`
	CropRight  int `yaml:"crop_right,omitempty"`
	CropBottom int `yaml:"crop_bottom,omitempty"`
}

// Container derives the output format from the path extension.
func (r *Record) Container() Container {
	if strings.EqualFold(filepath.Ext(r.OutputPath), ".mkv") {
		return ContainerMKV
	}
	return ContainerMP4
}

// ApplyDefaults fills the knobs a config file may omit.
func (r *Record) ApplyDefaults() {
	if r.FPS <= 0 {
		r.FPS = 25
	}
	if r.VideoCodec == "" {
		r.VideoCodec = "h264"
	}
	if r.AudioCodec == "" {
		r.AudioCodec = "aac"
	}
	if r.BitrateV <= 0 {
		r.BitrateV = 4_000_000
	}
	if r.BitrateA <= 0 {
		r.BitrateA = 128_000
	}
	if r.GOP <= 0 {
		r.GOP = r.FPS * 2
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (r *Record) Validate() error {
	if r.OutputPath == "" {
		return fmt.Errorf("options: output_path is required")
	}
	if r.FPS < 0 || r.FPS > 144 {
		return fmt.Errorf("options: fps %d out of range", r.FPS)
	}
	if r.CropLeft < 0 || r.CropTop < 0 || r.CropRight < 0 || r.CropBottom < 0 {
		return fmt.Errorf("options: negative crop")
	}
	return nil
}

// WantsMic reports whether a microphone channel was requested.
func (r *Record) WantsMic() bool { return r.MicDevice != "" }

// WantsSys reports whether a system loopback channel was requested.
func (r *Record) WantsSys() bool { return r.SysDevice != "" }

// Environment gathers the directories the recorder works in.
type Environment struct {
	ConfigDir    string // ~/.config/waycorder
	SettingsFile string // ~/.config/waycorder/settings.yml
	HomeDir      string
	TmpDir       string
}

// NewEnvironment resolves the standard paths.
func NewEnvironment() Environment {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	configDir := filepath.Join(home, ".config", appName)
	return Environment{
		ConfigDir:    configDir,
		SettingsFile: filepath.Join(configDir, "settings.yml"),
		HomeDir:      home,
		TmpDir:       os.TempDir(),
	}
}

// Load reads a yaml config.
func Load(path string) (Record, error) {
	var r Record
	b, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := yaml.Unmarshal(b, &r); err != nil {
		return r, err
	}
	r.ApplyDefaults()
	return r, nil
}

// Save persists the config atomically: write to tmp then rename.
func Save(path string, r *Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
