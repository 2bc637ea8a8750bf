// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

// frame is the state of the frame being recorded. It is reset by
// every BeginRendering.
type frame struct {
	image    uint32
	passOpen bool

	// Attachment formats of the open pass.
	colorFormat hal.Format
	depthFormat hal.Format

	// target is the render texture of the open pass, nil for the main target.
	target *renderTexture

	pipeline *pipeline
	vertex   bool
	index    bool
}

func (c *Context) beginPass(cmd hal.CommandBuffer, color *texture) {
	extent := color.extent()
	info := hal.RenderingInfo{
		Color:        color.view,
		ColorFormat:  color.image.Format(),
		Extent:       extent,
		ClearColor:   [4]float32(c.cfg.ClearColor),
		ClearDepth:   1,
		ClearStencil: 0,
		Depth:        c.depth.view,
		DepthFormat:  c.depth.image.Format(),
	}
	cmd.BeginRendering(info)
	c.frame.passOpen = true
	c.frame.colorFormat, c.frame.depthFormat = info.ColorFormat, info.DepthFormat
}

// fitsDepth reports whether a color attachment can share the main depth
// target.
func (c *Context) fitsDepth(color *texture) bool {
	extent, depth := color.extent(), c.depth.extent()
	return extent.Width <= depth.Width && extent.Height <= depth.Height
}

// endPass closes the open pass. An off-screen target is made readable
// by shaders so later passes can sample it.
func (c *Context) endPass(cmd hal.CommandBuffer) {
	if !c.frame.passOpen {
		return
	}
	cmd.EndRendering()
	c.frame.passOpen = false

	if t := c.frame.target; t != nil {
		t.tex.transition(cmd, stateShaderReadOnly)
		c.frame.target = nil
	}
}

// BeginRendering waits for the previous frame, acquires a swapchain
// image and opens a pass on the main target.
//
// A minimized window yields StatusWindowMinimized and records nothing.
// An out of date swapchain is rebuilt and StatusWindowSizeInvalid is
// returned; the caller skips the frame in both cases.
func (c *Context) BeginRendering() error {
	if !c.running() {
		return c.protocol("BeginRendering", gfx.StatusNotInitialized)
	}
	if c.lifecycle() == active {
		return c.protocol("BeginRendering", gfx.StatusBeginEndMismatch)
	}

	if width, height := c.window.FramebufferSize(); width == 0 || height == 0 {
		c.log.Debug("Window minimized, skipping frame")
		return gfx.StatusWindowMinimized
	}
	if c.resizePending {
		c.resize()
	}
	c.collectRetired()

	if err := c.device.WaitForFence(c.main.fence, c.cfg.FrameTimeout); err != nil {
		c.fatal(err, "Previous frame did not complete", nil)
	}
	// No frame is in flight, so whatever was queued until now is unused.
	c.deletion.Seal()

	image, err := c.swapchain.Acquire(c.acquired, c.cfg.FrameTimeout)
	if errors.Is(err, hal.ErrOutOfDate) {
		c.log.Debug("Swapchain out of date on acquire")
		c.resize()
		return gfx.StatusWindowSizeInvalid
	} else if err != nil {
		c.fatal(err, "Swapchain image acquisition failed", nil)
	}

	if err := c.device.ResetFence(c.main.fence); err != nil {
		c.fatal(err, "Frame fence reset failed", nil)
	}
	cmd := c.main.cmd
	if err := cmd.Begin(); err != nil {
		c.fatal(err, "Frame command buffer did not begin", nil)
	}

	c.frame = frame{image: image}
	c.frames++

	extent := c.swapchain.Extent()
	cmd.SetViewport(hal.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	cmd.SetScissor(hal.Rect2D{Extent: extent})

	c.color.transition(cmd, stateColorAttachment)
	c.beginPass(cmd, c.color)

	c.setLifecycle(active)
	return nil
}

// EndRendering copies the main target into the acquired image, submits
// the frame, presents it and releases what the deletion queue sealed
// when the frame began.
//
// When presentation reports the swapchain out of date or suboptimal the
// frame is still complete, the swapchain is rebuilt and
// StatusWindowSizeInvalid is returned.
func (c *Context) EndRendering() error {
	if !c.running() {
		return c.protocol("EndRendering", gfx.StatusNotInitialized)
	}
	if c.lifecycle() != active {
		return c.protocol("EndRendering", gfx.StatusBeginEndMismatch)
	}

	cmd := c.main.cmd
	c.endPass(cmd)

	swapImage := c.swapchain.Images()[c.frame.image]
	extent := c.color.extent()
	if sc := c.swapchain.Extent(); sc.Width < extent.Width || sc.Height < extent.Height {
		extent = sc
	}

	c.color.transition(cmd, stateTransferSrc)
	barrier(cmd, swapImage, hal.AspectColor, stateUndefined, stateTransferDst)
	cmd.CopyImage(c.color.image, swapImage, hal.ImageCopy{
		Extent: hal.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	})
	barrier(cmd, swapImage, hal.AspectColor, stateTransferDst, statePresent)
	c.color.transition(cmd, stateShaderReadOnly)

	if err := cmd.End(); err != nil {
		c.fatal(err, "Frame command buffer did not end", nil)
	}

	queue := c.device.Queue()
	if err := queue.Submit(hal.SubmitInfo{
		CommandBuffers: []hal.CommandBuffer{cmd},
		Wait:           []hal.Semaphore{c.acquired},
		WaitStages:     []hal.Stage{hal.StageTransfer},
		Signal:         []hal.Semaphore{c.rendered},
		Fence:          c.main.fence,
	}); err != nil {
		c.fatal(err, "Frame submission failed", log.Fields{"image": c.frame.image})
	}

	stale := false
	err := queue.Present(hal.PresentInfo{
		Swapchain: c.swapchain.Native(),
		Index:     c.frame.image,
		Wait:      []hal.Semaphore{c.rendered},
	})
	switch {
	case errors.Is(err, hal.ErrOutOfDate), errors.Is(err, hal.ErrSuboptimal):
		stale = true
	case err != nil:
		c.fatal(err, "Presentation failed", log.Fields{"image": c.frame.image})
	}

	// Only entries sealed before this frame; the frame just submitted
	// may still use anything queued while it was recorded.
	c.deletion.Flush()
	c.frame = frame{}
	c.setLifecycle(inactive)

	if stale || c.resizePending {
		c.resize()
	}
	if stale {
		return gfx.StatusWindowSizeInvalid
	}
	return nil
}

// recording returns the frame command buffer, or StatusBeginEndMismatch
// outside of a frame.
func (c *Context) recording(op string) (hal.CommandBuffer, error) {
	if !c.running() {
		return nil, c.protocol(op, gfx.StatusNotInitialized)
	}
	if c.lifecycle() != active {
		return nil, c.protocol(op, gfx.StatusBeginEndMismatch)
	}
	return c.main.cmd, nil
}

// BindPipeline binds a graphics pipeline for the following draws.
func (c *Context) BindPipeline(p gfx.Pipeline) error {
	cmd, err := c.recording("BindPipeline")
	if err != nil {
		return err
	}
	pl, err := lookup(c, &c.pipelines, p.Handle)
	if err != nil {
		return c.protocol("BindPipeline", gfx.StatusInvalidHandle)
	}
	if pl.colorFormat != c.frame.colorFormat || pl.depthFormat != c.frame.depthFormat {
		err := errors.Errorf("pipeline %q renders to formats %d/%d, the open pass uses %d/%d", pl.info.Name,
			pl.colorFormat, pl.depthFormat, c.frame.colorFormat, c.frame.depthFormat)
		c.log.WithField("op", "BindPipeline").WithError(err).Error("Incompatible pipeline")
		return err
	}
	cmd.BindPipeline(pl.native)
	c.frame.pipeline = pl
	return nil
}

// BindDescriptor binds a descriptor set through the bound pipeline's layout.
func (c *Context) BindDescriptor(d gfx.Descriptor) error {
	cmd, err := c.recording("BindDescriptor")
	if err != nil {
		return err
	}
	if c.frame.pipeline == nil {
		return c.protocol("BindDescriptor", gfx.StatusNoPipelineBound)
	}
	desc, err := lookup(c, &c.descriptors, d.Handle)
	if err != nil {
		return c.protocol("BindDescriptor", gfx.StatusInvalidHandle)
	}
	desc.lock.Lock()
	c.refreshDescriptor(desc)
	desc.lock.Unlock()
	cmd.BindDescriptorSet(c.frame.pipeline.layout, desc.set)
	return nil
}

// UpdateDescriptor writes a texture and sampler into a binding.
func (c *Context) UpdateDescriptor(d gfx.Descriptor, info gfx.DescriptorUpdateInfo) error {
	if _, err := c.recording("UpdateDescriptor"); err != nil {
		return err
	}
	if c.frame.pipeline == nil {
		return c.protocol("UpdateDescriptor", gfx.StatusNoPipelineBound)
	}
	desc, err := lookup(c, &c.descriptors, d.Handle)
	if err != nil {
		return c.protocol("UpdateDescriptor", gfx.StatusInvalidHandle)
	}
	if info.Binding < 0 || info.Binding >= len(desc.info.Bindings) {
		return c.protocol("UpdateDescriptor", gfx.StatusInvalidHandle)
	}
	src, err := lookup(c, &c.imageTextures, info.Source.Handle)
	if err != nil {
		return c.protocol("UpdateDescriptor", gfx.StatusInvalidHandle)
	}
	sampler, ok := c.samplers[info.Sampler]
	if !ok {
		sampler = c.samplers[gfx.PointSampler]
	}
	desc.lock.Lock()
	written := c.writeDescriptor(desc, info.Binding, src, sampler)
	desc.lock.Unlock()
	if !written {
		return c.protocol("UpdateDescriptor", gfx.StatusInvalidHandle)
	}
	return nil
}

// BindVertexBuffer binds the vertex input of the following draws.
func (c *Context) BindVertexBuffer(b gfx.VertexBuffer) error {
	cmd, err := c.recording("BindVertexBuffer")
	if err != nil {
		return err
	}
	buf, err := lookup(c, &c.buffers, b.Handle)
	if err != nil {
		return c.protocol("BindVertexBuffer", gfx.StatusInvalidHandle)
	}
	cmd.BindVertexBuffer(buf.native)
	c.frame.vertex = true
	return nil
}

// BindIndexBuffer binds the uint32 indices of the following draws.
func (c *Context) BindIndexBuffer(b gfx.IndexBuffer) error {
	cmd, err := c.recording("BindIndexBuffer")
	if err != nil {
		return err
	}
	buf, err := lookup(c, &c.buffers, b.Handle)
	if err != nil {
		return c.protocol("BindIndexBuffer", gfx.StatusInvalidHandle)
	}
	cmd.BindIndexBuffer(buf.native, hal.IndexTypeUint32)
	c.frame.index = true
	return nil
}

// BindRenderTarget ends the open pass and starts one that renders into
// t, sharing the main depth target. A target larger than the main depth
// target is rejected and the open pass is kept.
func (c *Context) BindRenderTarget(t gfx.RenderTexture) error {
	cmd, err := c.recording("BindRenderTarget")
	if err != nil {
		return err
	}
	rt, err := lookup(c, &c.renderTextures, t.Handle)
	if err != nil || rt.info.Type == gfx.DepthRenderTexture {
		return c.protocol("BindRenderTarget", gfx.StatusInvalidHandle)
	}
	if !c.fitsDepth(rt.tex) {
		extent, depth := rt.tex.extent(), c.depth.extent()
		err := errors.Errorf("render target %q of %dx%d does not fit the %dx%d depth target",
			rt.info.Name, extent.Width, extent.Height, depth.Width, depth.Height)
		c.log.WithField("op", "BindRenderTarget").WithError(err).Error("Render target too large")
		return err
	}

	c.endPass(cmd)

	// The pass clears the target, previous contents are discarded.
	barrier(cmd, rt.tex.image, rt.tex.aspect, imageState{
		layout: hal.LayoutUndefined,
		access: hal.AccessNone,
		stage:  hal.StageColorAttachmentOutput,
	}, stateColorAttachment)
	rt.tex.state = stateColorAttachment

	c.beginPass(cmd, rt.tex)
	c.frame.target = rt
	return nil
}

// BindMainTarget ends the open pass and resumes the main target. Its
// earlier contents are cleared.
func (c *Context) BindMainTarget() error {
	cmd, err := c.recording("BindMainTarget")
	if err != nil {
		return err
	}
	if c.frame.passOpen && c.frame.target == nil {
		return nil
	}
	c.endPass(cmd)
	c.color.transition(cmd, stateColorAttachment)
	c.beginPass(cmd, c.color)
	return nil
}

// Draw issues an indexed draw with the bound pipeline and buffers.
// vertexCount is implied by the indices.
func (c *Context) Draw(vertexCount, indexCount, instanceCount uint32) error {
	cmd, err := c.recording("Draw")
	if err != nil {
		return err
	}
	switch {
	case c.frame.pipeline == nil:
		return c.protocol("Draw", gfx.StatusNoPipelineBound)
	case !c.frame.vertex:
		return c.protocol("Draw", gfx.StatusNoVertexBufferBound)
	case !c.frame.index:
		return c.protocol("Draw", gfx.StatusNoIndexBufferBound)
	}
	cmd.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
	return nil
}
