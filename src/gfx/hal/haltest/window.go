// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package haltest

import (
	"sync"
	"unsafe"
)

// Window is a headless gfx.Window.
type Window struct {
	lock      sync.Mutex
	width     uint32
	height    uint32
	callbacks []func()
	surface   uintptr
}

// NewWindow returns a window with the given framebuffer size.
func NewWindow(width, height uint32) *Window {
	return &Window{width: width, height: height}
}

// InstanceExtensions implements hal.SurfaceSource.
func (w *Window) InstanceExtensions() []string {
	return []string{"VK_KHR_surface"}
}

// CreateSurface implements hal.SurfaceSource.
func (w *Window) CreateSurface(instance interface{}) (unsafe.Pointer, error) {
	return unsafe.Pointer(&w.surface), nil
}

// FramebufferSize implements gfx.Window.
func (w *Window) FramebufferSize() (uint32, uint32) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.width, w.height
}

// OnResize implements gfx.Window.
func (w *Window) OnResize(fn func()) {
	w.lock.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.lock.Unlock()
}

// Resize changes the framebuffer size and runs the resize callbacks
// on the calling goroutine.
func (w *Window) Resize(width, height uint32) {
	w.lock.Lock()
	w.width, w.height = width, height
	callbacks := append([]func(){}, w.callbacks...)
	w.lock.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}
