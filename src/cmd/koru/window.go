// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
)

// window adapts an SDL window to gfx.Window. Resize callbacks run from
// handle, which the main loop calls between frames.
type window struct {
	*sdl.Window
	callbacks []func()
}

func newWindow(title string, width, height uint32) (*window, error) {
	w, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, err
	}
	return &window{Window: w}, nil
}

func (w *window) InstanceExtensions() []string {
	return w.VulkanGetInstanceExtensions()
}

func (w *window) CreateSurface(instance interface{}) (unsafe.Pointer, error) {
	return w.VulkanCreateSurface(instance)
}

func (w *window) FramebufferSize() (uint32, uint32) {
	if w.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.VulkanGetDrawableSize()
	return uint32(width), uint32(height)
}

func (w *window) OnResize(fn func()) {
	w.callbacks = append(w.callbacks, fn)
}

func (w *window) handle(e *sdl.WindowEvent) {
	switch e.Event {
	case sdl.WINDOWEVENT_SIZE_CHANGED, sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
		for _, fn := range w.callbacks {
			fn()
		}
	}
}
