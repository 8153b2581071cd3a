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

//go:build linux

package capture

/*
#cgo LDFLAGS: -lEGL -lGLESv2
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <stdint.h>

#ifndef EGL_LINUX_DMA_BUF_EXT
#define EGL_LINUX_DMA_BUF_EXT 0x3270
#endif
#ifndef EGL_LINUX_DRM_FOURCC_EXT
#define EGL_LINUX_DRM_FOURCC_EXT 0x3271
#endif
#ifndef EGL_DMA_BUF_PLANE0_FD_EXT
#define EGL_DMA_BUF_PLANE0_FD_EXT 0x3272
#endif
#ifndef EGL_DMA_BUF_PLANE0_OFFSET_EXT
#define EGL_DMA_BUF_PLANE0_OFFSET_EXT 0x3273
#endif
#ifndef EGL_DMA_BUF_PLANE0_PITCH_EXT
#define EGL_DMA_BUF_PLANE0_PITCH_EXT 0x3274
#endif

// DRM_FORMAT_ABGR8888: RGBA byte order in memory on little endian
#define WAYCORDER_FOURCC_ABGR8888 0x34324241

static PFNEGLCREATEIMAGEKHRPROC eglCreateImageKHR_ptr = NULL;
static PFNEGLDESTROYIMAGEKHRPROC eglDestroyImageKHR_ptr = NULL;
typedef void (*PFNGLEGLIMAGETARGETTEXTURE2DOESPROC_local)(unsigned int target, void *image);
static PFNGLEGLIMAGETARGETTEXTURE2DOESPROC_local glEGLImageTargetTexture2DOES_ptr = NULL;

static EGLDisplay wc_display = EGL_NO_DISPLAY;
static EGLContext wc_context = EGL_NO_CONTEXT;
static EGLSurface wc_surface = EGL_NO_SURFACE;

// wc_init_context builds a 1x1 pbuffer GLES2 context on the calling thread.
static int wc_init_context(void) {
	eglCreateImageKHR_ptr = (PFNEGLCREATEIMAGEKHRPROC) eglGetProcAddress("eglCreateImageKHR");
	eglDestroyImageKHR_ptr = (PFNEGLDESTROYIMAGEKHRPROC) eglGetProcAddress("eglDestroyImageKHR");
	glEGLImageTargetTexture2DOES_ptr = (PFNGLEGLIMAGETARGETTEXTURE2DOESPROC_local) eglGetProcAddress("glEGLImageTargetTexture2DOES");
	if (!eglCreateImageKHR_ptr || !eglDestroyImageKHR_ptr || !glEGLImageTargetTexture2DOES_ptr) {
		return 0;
	}

	wc_display = eglGetDisplay((EGLNativeDisplayType) EGL_DEFAULT_DISPLAY);
	if (wc_display == EGL_NO_DISPLAY) {
		return 0;
	}
	EGLint major = 0, minor = 0;
	if (eglInitialize(wc_display, &major, &minor) == EGL_FALSE) {
		return 0;
	}
	if (eglBindAPI(EGL_OPENGL_ES_API) == EGL_FALSE) {
		return 0;
	}

	const EGLint configAttribs[] = {
		EGL_SURFACE_TYPE, EGL_PBUFFER_BIT,
		EGL_RED_SIZE, 8,
		EGL_GREEN_SIZE, 8,
		EGL_BLUE_SIZE, 8,
		EGL_ALPHA_SIZE, 8,
		EGL_RENDERABLE_TYPE, EGL_OPENGL_ES2_BIT,
		EGL_NONE,
	};
	EGLConfig config;
	EGLint numConfig = 0;
	if (eglChooseConfig(wc_display, configAttribs, &config, 1, &numConfig) == EGL_FALSE || numConfig == 0) {
		return 0;
	}

	const EGLint pbufferAttribs[] = { EGL_WIDTH, 1, EGL_HEIGHT, 1, EGL_NONE };
	wc_surface = eglCreatePbufferSurface(wc_display, config, pbufferAttribs);
	if (wc_surface == EGL_NO_SURFACE) {
		return 0;
	}

	const EGLint contextAttribs[] = { EGL_CONTEXT_CLIENT_VERSION, 2, EGL_NONE };
	wc_context = eglCreateContext(wc_display, config, EGL_NO_CONTEXT, contextAttribs);
	if (wc_context == EGL_NO_CONTEXT) {
		return 0;
	}
	if (eglMakeCurrent(wc_display, wc_surface, wc_surface, wc_context) == EGL_FALSE) {
		return 0;
	}
	return 1;
}

static void wc_destroy_context(void) {
	if (wc_display != EGL_NO_DISPLAY) {
		eglMakeCurrent(wc_display, EGL_NO_SURFACE, EGL_NO_SURFACE, EGL_NO_CONTEXT);
		if (wc_context != EGL_NO_CONTEXT) {
			eglDestroyContext(wc_display, wc_context);
			wc_context = EGL_NO_CONTEXT;
		}
		if (wc_surface != EGL_NO_SURFACE) {
			eglDestroySurface(wc_display, wc_surface);
			wc_surface = EGL_NO_SURFACE;
		}
		eglTerminate(wc_display);
		wc_display = EGL_NO_DISPLAY;
	}
}

// wc_import_dmabuf wraps a dmabuf fd as an EGLImage.
static void *wc_import_dmabuf(int fd, int width, int height, int stride, uint32_t fourcc) {
	if (fourcc == 0) {
		fourcc = WAYCORDER_FOURCC_ABGR8888;
	}
	const EGLint attribs[] = {
		EGL_WIDTH, width,
		EGL_HEIGHT, height,
		EGL_LINUX_DRM_FOURCC_EXT, (EGLint) fourcc,
		EGL_DMA_BUF_PLANE0_FD_EXT, fd,
		EGL_DMA_BUF_PLANE0_OFFSET_EXT, 0,
		EGL_DMA_BUF_PLANE0_PITCH_EXT, stride,
		EGL_NONE,
	};
	return (void *) eglCreateImageKHR_ptr(wc_display, EGL_NO_CONTEXT, EGL_LINUX_DMA_BUF_EXT, (EGLClientBuffer) NULL, attribs);
}

static void wc_destroy_image(void *img) {
	eglDestroyImageKHR_ptr(wc_display, (EGLImageKHR) img);
}

static void wc_bind_image(unsigned int target, void *img) {
	glEGLImageTargetTexture2DOES_ptr(target, img);
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v3.1/gles2"
	"golang.org/x/sys/unix"

	"github.com/greyridge/waycorder/wayland"
)

// texturedAdapter imports compositor dmabufs as external EGL images and
// reads the pixels back through a framebuffer object. The EGL context is
// bound to one OS thread for the adapter's lifetime, so all GPU work runs
// on a dedicated locked goroutine and callers talk to it over a channel.
type texturedAdapter struct {
	jobs chan texJob
	done chan struct{}
}

type texJob struct {
	buf   wayland.RemoteBuffer
	reply chan texReply
}

type texReply struct {
	data   []byte
	stride int
	err    error
}

func newTextured() (Adapter, error) {
	a := &texturedAdapter{
		jobs: make(chan texJob),
		done: make(chan struct{}),
	}
	initErr := make(chan error, 1)
	go a.worker(initErr)
	if err := <-initErr; err != nil {
		return nil, err
	}
	return a, nil
}

// worker owns the EGL context. Created, used and destroyed on this one
// locked thread.
func (a *texturedAdapter) worker(initErr chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if C.wc_init_context() == 0 {
		C.wc_destroy_context()
		initErr <- fmt.Errorf("%w: EGL context init failed", ErrCaptureIO)
		return
	}
	if err := gles2.Init(); err != nil {
		C.wc_destroy_context()
		initErr <- fmt.Errorf("%w: GLES init: %v", ErrCaptureIO, err)
		return
	}
	initErr <- nil
	log.Info("textured adapter: EGL context ready")

	var scratch []byte
	for job := range a.jobs {
		data, stride, err := readback(job.buf, &scratch)
		job.reply <- texReply{data: data, stride: stride, err: err}
	}

	C.wc_destroy_context()
	close(a.done)
}

func readback(b wayland.RemoteBuffer, scratch *[]byte) ([]byte, int, error) {
	defer unix.Close(b.FD)

	img := C.wc_import_dmabuf(C.int(b.FD), C.int(b.Width), C.int(b.Height), C.int(b.Stride), C.uint32_t(b.Format))
	if img == nil {
		return nil, 0, fmt.Errorf("%w: eglCreateImageKHR fd %d", ErrCaptureIO, b.FD)
	}
	defer C.wc_destroy_image(img)

	var tex uint32
	gles2.GenTextures(1, &tex)
	gles2.BindTexture(gles2.TEXTURE_2D, tex)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MIN_FILTER, gles2.NEAREST)
	gles2.TexParameteri(gles2.TEXTURE_2D, gles2.TEXTURE_MAG_FILTER, gles2.NEAREST)
	C.wc_bind_image(C.uint(gles2.TEXTURE_2D), img)
	defer gles2.DeleteTextures(1, &tex)

	var fbo uint32
	gles2.GenFramebuffers(1, &fbo)
	gles2.BindFramebuffer(gles2.FRAMEBUFFER, fbo)
	gles2.FramebufferTexture2D(gles2.FRAMEBUFFER, gles2.COLOR_ATTACHMENT0, gles2.TEXTURE_2D, tex, 0)
	defer gles2.DeleteFramebuffers(1, &fbo)

	if st := gles2.CheckFramebufferStatus(gles2.FRAMEBUFFER); st != gles2.FRAMEBUFFER_COMPLETE {
		return nil, 0, fmt.Errorf("%w: framebuffer status 0x%x", ErrCaptureIO, st)
	}

	size := b.Width * b.Height * 4
	if cap(*scratch) < size {
		*scratch = make([]byte, size)
	}
	*scratch = (*scratch)[:size]
	gles2.ReadPixels(0, 0, int32(b.Width), int32(b.Height), gles2.RGBA, gles2.UNSIGNED_BYTE, unsafe.Pointer(&(*scratch)[0]))

	return *scratch, b.Width * 4, nil
}

// Frame hands the buffer to the GPU thread and waits for the readback.
func (a *texturedAdapter) Frame(b wayland.RemoteBuffer) ([]byte, int, error) {
	reply := make(chan texReply, 1)
	select {
	case a.jobs <- texJob{buf: b, reply: reply}:
	case <-a.done:
		_ = unix.Close(b.FD)
		return nil, 0, fmt.Errorf("%w: adapter closed", ErrCaptureIO)
	}
	r := <-reply
	return r.data, r.stride, r.err
}

// Close tears the worker and its context down. Safe to call twice.
func (a *texturedAdapter) Close() {
	select {
	case <-a.done:
		return
	default:
	}
	close(a.jobs)
	<-a.done
}
