// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package render implements gfx.Context on top of a hal device. It
// owns the resource tables, the frame in flight, the swapchain and the
// command contexts used for uploads.
package render

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/core"
	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

type lifecycle int32

const (
	uninitialized lifecycle = iota
	inactive
	active
	shutdown
)

// Context is a render context.
type Context struct {
	backend hal.Backend
	cfg     core.RendererConfiguration
	log     log.FieldLogger

	// state holds a lifecycle. Workers read it, so it is accessed atomically.
	state  int32
	window gfx.Window
	device hal.Device

	main       *CommandContext
	uploadLock sync.Mutex
	uploads    map[WorkerID]*CommandContext

	deletion *DeletionQueue

	// retired collects objects replaced off the render goroutine until
	// the next frame moves them into the deletion queue.
	retireLock sync.Mutex
	retired    []gfx.Releasable

	swapchain *Swapchain
	samplers  map[gfx.SamplerType]hal.Sampler

	acquired hal.Semaphore
	rendered hal.Semaphore

	color *texture
	depth *texture

	buffers        gfx.HandleTable[*buffer]
	imageTextures  gfx.HandleTable[*imageTexture]
	renderTextures gfx.HandleTable[*renderTexture]
	shaders        gfx.HandleTable[*shader]
	pipelines      gfx.HandleTable[*pipeline]
	descriptors    gfx.HandleTable[*descriptor]

	frame         frame
	frames        uint64
	resizePending bool
}

var _ gfx.Context = (*Context)(nil)

// New returns a context that renders through backend once started.
// Zero timeouts in cfg take the defaults.
func New(backend hal.Backend, cfg core.RendererConfiguration, logger log.FieldLogger) *Context {
	defaults := core.DefaultRendererConfiguration()
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = defaults.FrameTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = defaults.UploadTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Context{
		backend: backend,
		cfg:     cfg,
		log:     logger.WithField("component", "render"),
	}
}

func (c *Context) lifecycle() lifecycle {
	return lifecycle(atomic.LoadInt32(&c.state))
}

func (c *Context) setLifecycle(l lifecycle) {
	atomic.StoreInt32(&c.state, int32(l))
}

func (c *Context) running() bool {
	l := c.lifecycle()
	return l == inactive || l == active
}

// retire hands r to the deletion queue at the start of the next frame.
// Safe to call from any goroutine.
func (c *Context) retire(r gfx.Releasable) {
	c.retireLock.Lock()
	c.retired = append(c.retired, r)
	c.retireLock.Unlock()
}

// collectRetired moves retired objects into the deletion queue.
func (c *Context) collectRetired() {
	c.retireLock.Lock()
	retired := c.retired
	c.retired = nil
	c.retireLock.Unlock()
	for _, r := range retired {
		c.deletion.Enqueue(r)
	}
}

// protocol logs a sequencing error and returns it.
func (c *Context) protocol(op string, s gfx.Status) error {
	c.log.WithField("op", op).Error(s.String())
	return s
}

// fatal logs a native failure the device cannot recover from and panics.
func (c *Context) fatal(err error, msg string, fields log.Fields) {
	c.log.WithFields(fields).WithError(err).Error(msg)
	panic(errors.Wrap(err, msg))
}

// Device returns the native device, nil before Startup.
func (c *Context) Device() hal.Device {
	return c.device
}

// Swapchain returns the swapchain manager, nil before Startup.
func (c *Context) Swapchain() *Swapchain {
	return c.swapchain
}

// Deletion returns the deletion queue, nil before Startup.
func (c *Context) Deletion() *DeletionQueue {
	return c.deletion
}

// Startup opens the device and creates everything a frame needs. A
// context starts once; later calls return StatusAlreadyInitialized.
func (c *Context) Startup(window gfx.Window) (err error) {
	if c.lifecycle() != uninitialized {
		return c.protocol("Startup", gfx.StatusAlreadyInitialized)
	}

	var undo []func()
	defer func() {
		if err != nil {
			for idx := len(undo) - 1; idx >= 0; idx-- {
				undo[idx]()
			}
		}
	}()

	preferred, err := ParsePresentMode(c.cfg.PresentMode)
	if err != nil {
		c.log.WithError(err).Warn("Falling back to fifo presentation")
		err = nil
	}

	device, err := c.backend.Open(window, hal.DeviceConfig{
		ApplicationName: c.cfg.ApplicationName,
		DebugMode:       c.cfg.DebugMode,
		Extensions:      c.cfg.DeviceExtensions,
	})
	if err != nil {
		return errors.Wrap(err, "open device")
	}
	c.device = device
	undo = append(undo, func() { device.Release(); c.device = nil })
	c.log.WithField("device", device.Name()).Info("Device opened")

	c.deletion = NewDeletionQueue()
	undo = append(undo, func() { c.deletion.FlushAll() })

	if c.main, err = NewCommandContext(device, true); err != nil {
		return errors.Wrap(err, "main command context")
	}
	undo = append(undo, func() { c.main.Release() })

	c.uploads = make(map[WorkerID]*CommandContext)
	undo = append(undo, c.releaseUploadContexts)

	c.samplers = make(map[gfx.SamplerType]hal.Sampler)
	undo = append(undo, c.releaseSamplers)
	for typ, desc := range map[gfx.SamplerType]hal.SamplerDesc{
		gfx.PointSampler:       {Filter: hal.FilterNearest},
		gfx.LinearSampler:      {Filter: hal.FilterLinear},
		gfx.AnisotropicSampler: {Filter: hal.FilterLinear, Anisotropy: true},
	} {
		sampler, err := device.NewSampler(desc)
		if err != nil {
			return errors.Wrap(err, "sampler")
		}
		c.samplers[typ] = sampler
	}

	c.swapchain = NewSwapchain(device, c.deletion, preferred, c.log)
	width, height := window.FramebufferSize()
	if err = c.swapchain.Update(width, height); err != nil {
		return errors.Wrap(err, "swapchain")
	}
	undo = append(undo, c.swapchain.Release)

	if c.acquired, err = device.NewSemaphore(); err != nil {
		return errors.Wrap(err, "acquire semaphore")
	}
	undo = append(undo, c.acquired.Release)
	if c.rendered, err = device.NewSemaphore(); err != nil {
		return errors.Wrap(err, "render semaphore")
	}
	undo = append(undo, c.rendered.Release)

	if err = c.createRenderTargets(); err != nil {
		return err
	}

	c.window = window
	window.OnResize(c.onResize)
	c.setLifecycle(inactive)
	return nil
}

func (c *Context) releaseSamplers() {
	for typ, s := range c.samplers {
		s.Release()
		delete(c.samplers, typ)
	}
}

// Shutdown waits for the device, then releases every resource and the
// device itself. The context cannot be started again.
func (c *Context) Shutdown() error {
	if !c.running() {
		return c.protocol("Shutdown", gfx.StatusNotInitialized)
	}

	if err := c.device.WaitIdle(); err != nil {
		c.log.WithError(err).Error("Device did not become idle")
	}
	c.collectRetired()
	c.deletion.FlushAll()

	c.releaseUploadContexts()
	c.main.Release()

	for _, k := range gfx.ResourceKinds {
		registry[k].each(c, func(h gfx.Handle, res resource) {
			if res.markDeleted() {
				res.release()
			}
		})
	}

	if c.color != nil {
		c.color.release()
		c.color = nil
	}
	if c.depth != nil {
		c.depth.release()
		c.depth = nil
	}
	c.swapchain.Release()
	c.releaseSamplers()
	c.acquired.Release()
	c.rendered.Release()

	// Targets released by the swapchain rebuild may still be queued.
	c.collectRetired()
	c.deletion.FlushAll()

	c.device.Release()
	c.setLifecycle(shutdown)
	c.log.Info("Render context shut down")
	return nil
}

// onResize rebuilds the swapchain now, or after the current frame
// when one is being recorded.
func (c *Context) onResize() {
	switch c.lifecycle() {
	case inactive:
		c.resize()
	case active:
		c.resizePending = true
	}
}

// resize rebuilds the swapchain and main targets for the window size.
// A minimized window postpones the rebuild until it has an area again.
func (c *Context) resize() {
	width, height := c.window.FramebufferSize()
	if width == 0 || height == 0 {
		c.resizePending = true
		return
	}
	c.resizePending = false

	if err := c.swapchain.Update(width, height); err != nil {
		c.fatal(err, "Swapchain rebuild failed", log.Fields{"width": width, "height": height})
	}
	if err := c.createRenderTargets(); err != nil {
		c.fatal(err, "Render target rebuild failed", log.Fields{"width": width, "height": height})
	}
}
