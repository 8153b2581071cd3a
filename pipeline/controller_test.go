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
package pipeline

import (
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyridge/waycorder/options"
	"github.com/greyridge/waycorder/wayland"
)

func testConfig(t *testing.T) options.Record {
	return options.Record{
		FPS:        25,
		OutputPath: filepath.Join(t.TempDir(), "out.mp4"),
	}
}

func TestLifecycleWithoutFrames(t *testing.T) {
	src := wayland.NewChannelSource()
	c := New(testConfig(t), src)
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Init())
	assert.Equal(t, StateConfigured, c.State())
	assert.False(t, c.AudioChannels().Mic)
	assert.False(t, c.AudioChannels().Sys)

	require.NoError(t, c.Start())

	// stop before any buffer: no header, no crash, clean close
	require.NoError(t, c.Stop())
	assert.Equal(t, StateClosed, c.State())
}

func TestStopIsIdempotent(t *testing.T) {
	src := wayland.NewChannelSource()
	c := New(testConfig(t), src)
	require.NoError(t, c.Init())
	require.NoError(t, c.Start())

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop(), "second stop is a no-op")
	assert.Equal(t, StateClosed, c.State())
}

func TestInitRejectsBadConfig(t *testing.T) {
	c := New(options.Record{}, wayland.NewChannelSource())
	assert.Error(t, c.Init(), "missing output path")
	assert.Equal(t, StateIdle, c.State())
}

func TestInitTwiceRejected(t *testing.T) {
	src := wayland.NewChannelSource()
	c := New(testConfig(t), src)
	require.NoError(t, c.Init())
	assert.Error(t, c.Init())
	_ = c.Stop()
}

func TestStartRequiresInit(t *testing.T) {
	c := New(testConfig(t), wayland.NewChannelSource())
	assert.Error(t, c.Start())
}

func TestOutputEventsPopulateRegistry(t *testing.T) {
	src := wayland.NewChannelSource()
	c := New(testConfig(t), src)
	require.NoError(t, c.Init())
	require.NoError(t, c.Start())

	primary := uuid.New()
	src.Push(wayland.Event{Kind: wayland.EventOutputAnnounced, Name: "DP-1", Version: 3})
	src.Push(wayland.Event{Kind: wayland.EventOutputDevice, UUID: primary.String(), Geometry: image.Rect(0, 0, 1920, 1080)})

	assert.Eventually(t, func() bool {
		return c.Registry().Count() == 1
	}, time.Second, 5*time.Millisecond)
	w, h := c.Registry().VirtualSize()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	// malformed uuid is a non-structural protocol error: logged, skipped
	src.Push(wayland.Event{Kind: wayland.EventOutputDevice, UUID: "not-a-uuid"})
	src.Push(wayland.Event{Kind: wayland.EventOutputRemoved, UUID: primary.String()})
	assert.Eventually(t, func() bool {
		return c.Registry().Count() == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
}

func TestWaitReturnsAfterSourceCloses(t *testing.T) {
	src := wayland.NewChannelSource()
	c := New(testConfig(t), src)
	require.NoError(t, c.Init())
	require.NoError(t, c.Start())

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	_ = src.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after source close")
	}
	assert.Equal(t, StateClosed, c.State())
}
