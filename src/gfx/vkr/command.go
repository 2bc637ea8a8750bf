// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// NewCommandPool implements hal.Device. Pools serve the graphics family.
func (d *Device) NewCommandPool() (hal.CommandPool, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.families.Graphics,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	var pool vk.CommandPool
	if err := check(vk.CreateCommandPool(d.device, &cpci, nil, &pool), "vk.CreateCommandPool()"); err != nil {
		return nil, err
	}
	return &CommandPool{dev: d, pool: pool}, nil
}

// CommandPool implements hal.CommandPool.
type CommandPool struct {
	dev     *Device
	pool    vk.CommandPool
	buffers []vk.CommandBuffer
}

// Allocate implements hal.CommandPool.
func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	buffers := make([]vk.CommandBuffer, 1)
	if err := check(vk.AllocateCommandBuffers(p.dev.device, &cbai, buffers), "vk.AllocateCommandBuffers()"); err != nil {
		return nil, err
	}
	p.buffers = append(p.buffers, buffers[0])
	return &CommandBuffer{dev: p.dev, buffer: buffers[0]}, nil
}

// Reset implements hal.CommandPool.
func (p *CommandPool) Reset() error {
	return check(vk.ResetCommandPool(p.dev.device, p.pool, 0), "vk.ResetCommandPool()")
}

// Release frees the allocated buffers and destroys the pool.
func (p *CommandPool) Release() {
	if len(p.buffers) > 0 {
		vk.FreeCommandBuffers(p.dev.device, p.pool, uint32(len(p.buffers)), p.buffers)
		p.buffers = nil
	}
	vk.DestroyCommandPool(p.dev.device, p.pool, nil)
}

// CommandBuffer implements hal.CommandBuffer. Failures of commands that
// cannot report them are kept and returned from End.
type CommandBuffer struct {
	dev    *Device
	buffer vk.CommandBuffer
	err    error
}

func (cb *CommandBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

// Begin implements hal.CommandBuffer.
func (cb *CommandBuffer) Begin() error {
	cb.err = nil
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check(vk.BeginCommandBuffer(cb.buffer, &cbbi), "vk.BeginCommandBuffer()")
}

// End implements hal.CommandBuffer.
func (cb *CommandBuffer) End() error {
	if err := check(vk.EndCommandBuffer(cb.buffer), "vk.EndCommandBuffer()"); err != nil {
		return err
	}
	return cb.err
}

func subresourceLayers(aspect hal.Aspect, mip uint32) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(aspect),
		MipLevel:   mip,
		LayerCount: 1,
	}
}

func offset3D(o hal.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}

func extent3D(e hal.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func aspectOf(img hal.Image) hal.Aspect {
	if img.Format().IsDepth() {
		return hal.AspectDepth | hal.AspectStencil
	}
	return hal.AspectColor
}

// PipelineBarrier implements hal.CommandBuffer.
func (cb *CommandBuffer) PipelineBarrier(barrier hal.ImageBarrier) {
	img := barrier.Image.(image)
	aspect := barrier.Aspect
	if aspect == 0 {
		aspect = aspectOf(img)
	}

	imb := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
		DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
		OldLayout:           vk.ImageLayout(barrier.OldLayout),
		NewLayout:           vk.ImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Get(),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: img.MipLevels(),
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cb.buffer,
		vk.PipelineStageFlags(barrier.SrcStage),
		vk.PipelineStageFlags(barrier.DstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{imb})
}

// CopyBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(cb.buffer, src.(*Buffer).buffer, dst.(*Buffer).buffer, uint32(len(copies)), copies)
}

// CopyBufferToImage implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyBufferToImage(src hal.Buffer, dst hal.Image, regions []hal.BufferImageCopy) {
	img := dst.(image)
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset:     vk.DeviceSize(r.BufferOffset),
			ImageSubresource: subresourceLayers(aspectOf(img), r.MipLevel),
			ImageExtent:      extent3D(r.Extent),
		}
	}
	vk.CmdCopyBufferToImage(cb.buffer, src.(*Buffer).buffer, img.Get(),
		vk.ImageLayoutTransferDstOptimal, uint32(len(copies)), copies)
}

// CopyImage implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyImage(src, dst hal.Image, region hal.ImageCopy) {
	s, d := src.(image), dst.(image)
	ic := vk.ImageCopy{
		SrcSubresource: subresourceLayers(aspectOf(s), 0),
		SrcOffset:      offset3D(region.SrcOffset),
		DstSubresource: subresourceLayers(aspectOf(d), 0),
		DstOffset:      offset3D(region.DstOffset),
		Extent:         extent3D(region.Extent),
	}
	vk.CmdCopyImage(cb.buffer, s.Get(), vk.ImageLayoutTransferSrcOptimal,
		d.Get(), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{ic})
}

// BlitImage implements hal.CommandBuffer.
func (cb *CommandBuffer) BlitImage(src, dst hal.Image, region hal.ImageBlit, filter hal.Filter) {
	s, d := src.(image), dst.(image)
	blit := vk.ImageBlit{
		SrcSubresource: subresourceLayers(aspectOf(s), 0),
		SrcOffsets:     [2]vk.Offset3D{offset3D(region.SrcOffsets[0]), offset3D(region.SrcOffsets[1])},
		DstSubresource: subresourceLayers(aspectOf(d), 0),
		DstOffsets:     [2]vk.Offset3D{offset3D(region.DstOffsets[0]), offset3D(region.DstOffsets[1])},
	}
	vk.CmdBlitImage(cb.buffer, s.Get(), vk.ImageLayoutTransferSrcOptimal,
		d.Get(), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.Filter(filter))
}

// BeginRendering implements hal.CommandBuffer with a render pass and
// framebuffer made for the attachments.
func (cb *CommandBuffer) BeginRendering(info hal.RenderingInfo) {
	key := passKey{color: info.ColorFormat}
	views := []vk.ImageView{info.Color.(*ImageView).view}
	if info.Depth != nil {
		key.depth = info.DepthFormat
		views = append(views, info.Depth.(*ImageView).view)
	}

	pass, err := cb.dev.passes.renderPass(key)
	if err != nil {
		cb.fail(err)
		return
	}
	framebuffer, err := cb.dev.passes.framebuffer(pass, views, info.Extent)
	if err != nil {
		cb.fail(err)
		return
	}

	clearValues := make([]vk.ClearValue, len(views))
	clearValues[0].SetColor(info.ClearColor[:])
	if len(views) > 1 {
		clearValues[1].SetDepthStencil(info.ClearDepth, info.ClearStencil)
	}

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  info.Extent.Width,
				Height: info.Extent.Height,
			},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.buffer, &rpbi, vk.SubpassContentsInline)
}

// EndRendering implements hal.CommandBuffer.
func (cb *CommandBuffer) EndRendering() {
	vk.CmdEndRenderPass(cb.buffer)
}

// SetViewport implements hal.CommandBuffer.
func (cb *CommandBuffer) SetViewport(viewport hal.Viewport) {
	vk.CmdSetViewport(cb.buffer, 0, 1, []vk.Viewport{{
		X:        viewport.X,
		Y:        viewport.Y,
		Width:    viewport.Width,
		Height:   viewport.Height,
		MinDepth: viewport.MinDepth,
		MaxDepth: viewport.MaxDepth,
	}})
}

// SetScissor implements hal.CommandBuffer.
func (cb *CommandBuffer) SetScissor(scissor hal.Rect2D) {
	vk.CmdSetScissor(cb.buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
		Extent: vk.Extent2D{
			Width:  scissor.Extent.Width,
			Height: scissor.Extent.Height,
		},
	}})
}

// BindPipeline implements hal.CommandBuffer.
func (cb *CommandBuffer) BindPipeline(pipeline hal.Pipeline) {
	vk.CmdBindPipeline(cb.buffer, vk.PipelineBindPointGraphics, pipeline.(*Pipeline).pipeline)
}

// BindDescriptorSet implements hal.CommandBuffer.
func (cb *CommandBuffer) BindDescriptorSet(layout hal.PipelineLayout, set hal.DescriptorSet) {
	vk.CmdBindDescriptorSets(cb.buffer, vk.PipelineBindPointGraphics, layout.(*PipelineLayout).layout,
		0, 1, []vk.DescriptorSet{set.(*DescriptorSet).set}, 0, nil)
}

// BindVertexBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) BindVertexBuffer(buffer hal.Buffer) {
	vk.CmdBindVertexBuffers(cb.buffer, 0, 1, []vk.Buffer{buffer.(*Buffer).buffer}, []vk.DeviceSize{0})
}

// BindIndexBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) BindIndexBuffer(buffer hal.Buffer, indexType hal.IndexType) {
	vk.CmdBindIndexBuffer(cb.buffer, buffer.(*Buffer).buffer, 0, vk.IndexType(indexType))
}

// DrawIndexed implements hal.CommandBuffer.
func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(cb.buffer, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

var errNoPass = errors.New("vkr: render pass has no attachments")
