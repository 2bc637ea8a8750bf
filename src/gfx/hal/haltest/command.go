// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package haltest

import (
	"github.com/devblok/korugfx/src/gfx/hal"
)

// Command is one recorded command. Args holds the hal description the
// command was recorded with, or one of the *Args types of this package.
type Command struct {
	Op     string
	Buffer *CommandBuffer
	Args   interface{}
}

// Barrier returns the barrier of a PipelineBarrier command.
func (c Command) Barrier() (hal.ImageBarrier, bool) {
	b, ok := c.Args.(hal.ImageBarrier)
	return b, ok
}

// CopyBufferArgs are the arguments of CopyBuffer.
type CopyBufferArgs struct {
	Src, Dst *Buffer
	Regions  []hal.BufferCopy
}

// CopyBufferToImageArgs are the arguments of CopyBufferToImage.
type CopyBufferToImageArgs struct {
	Src     *Buffer
	Dst     *Image
	Regions []hal.BufferImageCopy
}

// CopyImageArgs are the arguments of CopyImage.
type CopyImageArgs struct {
	Src, Dst *Image
	Region   hal.ImageCopy
}

// BlitImageArgs are the arguments of BlitImage.
type BlitImageArgs struct {
	Src, Dst *Image
	Region   hal.ImageBlit
	Filter   hal.Filter
}

// BindDescriptorSetArgs are the arguments of BindDescriptorSet.
type BindDescriptorSetArgs struct {
	Layout *PipelineLayout
	Set    *DescriptorSet
}

// BindIndexBufferArgs are the arguments of BindIndexBuffer.
type BindIndexBufferArgs struct {
	Buffer    *Buffer
	IndexType hal.IndexType
}

// DrawIndexedArgs are the arguments of DrawIndexed.
type DrawIndexedArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}

// CommandBuffer records commands into its own list and into the
// device log.
type CommandBuffer struct {
	dev       *Device
	pool      *CommandPool
	cmds      []Command
	recording bool
}

func (cb *CommandBuffer) add(op string, args interface{}) {
	cmd := Command{Op: op, Buffer: cb, Args: args}

	cb.dev.lock.Lock()
	if !cb.recording {
		cb.dev.problems = append(cb.dev.problems, op+" outside of recording")
	}
	cb.cmds = append(cb.cmds, cmd)
	cb.dev.commands = append(cb.dev.commands, cmd)
	cb.dev.lock.Unlock()
}

// Begin implements hal.CommandBuffer.
func (cb *CommandBuffer) Begin() error {
	if err := cb.dev.fail("Begin"); err != nil {
		return err
	}
	cb.dev.lock.Lock()
	if cb.recording {
		cb.dev.problems = append(cb.dev.problems, "begin of a command buffer that is recording")
	}
	cb.cmds = nil
	cb.recording = true
	cb.dev.lock.Unlock()

	cb.dev.record(Command{Op: "Begin", Buffer: cb})
	return nil
}

// End implements hal.CommandBuffer.
func (cb *CommandBuffer) End() error {
	if err := cb.dev.fail("End"); err != nil {
		return err
	}
	cb.add("End", nil)

	cb.dev.lock.Lock()
	cb.recording = false
	cb.dev.lock.Unlock()
	return nil
}

// PipelineBarrier implements hal.CommandBuffer.
func (cb *CommandBuffer) PipelineBarrier(barrier hal.ImageBarrier) {
	cb.add("PipelineBarrier", barrier)
}

// CopyBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	cb.add("CopyBuffer", CopyBufferArgs{Src: src.(*Buffer), Dst: dst.(*Buffer), Regions: regions})
}

// CopyBufferToImage implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyBufferToImage(src hal.Buffer, dst hal.Image, regions []hal.BufferImageCopy) {
	cb.add("CopyBufferToImage", CopyBufferToImageArgs{Src: src.(*Buffer), Dst: dst.(*Image), Regions: regions})
}

// CopyImage implements hal.CommandBuffer.
func (cb *CommandBuffer) CopyImage(src, dst hal.Image, region hal.ImageCopy) {
	cb.add("CopyImage", CopyImageArgs{Src: src.(*Image), Dst: dst.(*Image), Region: region})
}

// BlitImage implements hal.CommandBuffer.
func (cb *CommandBuffer) BlitImage(src, dst hal.Image, region hal.ImageBlit, filter hal.Filter) {
	cb.add("BlitImage", BlitImageArgs{Src: src.(*Image), Dst: dst.(*Image), Region: region, Filter: filter})
}

// BeginRendering implements hal.CommandBuffer.
func (cb *CommandBuffer) BeginRendering(info hal.RenderingInfo) {
	cb.add("BeginRendering", info)
}

// EndRendering implements hal.CommandBuffer.
func (cb *CommandBuffer) EndRendering() {
	cb.add("EndRendering", nil)
}

// SetViewport implements hal.CommandBuffer.
func (cb *CommandBuffer) SetViewport(viewport hal.Viewport) {
	cb.add("SetViewport", viewport)
}

// SetScissor implements hal.CommandBuffer.
func (cb *CommandBuffer) SetScissor(scissor hal.Rect2D) {
	cb.add("SetScissor", scissor)
}

// BindPipeline implements hal.CommandBuffer.
func (cb *CommandBuffer) BindPipeline(pipeline hal.Pipeline) {
	cb.add("BindPipeline", pipeline.(*Pipeline))
}

// BindDescriptorSet implements hal.CommandBuffer.
func (cb *CommandBuffer) BindDescriptorSet(layout hal.PipelineLayout, set hal.DescriptorSet) {
	cb.add("BindDescriptorSet", BindDescriptorSetArgs{Layout: layout.(*PipelineLayout), Set: set.(*DescriptorSet)})
}

// BindVertexBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) BindVertexBuffer(buffer hal.Buffer) {
	cb.add("BindVertexBuffer", buffer.(*Buffer))
}

// BindIndexBuffer implements hal.CommandBuffer.
func (cb *CommandBuffer) BindIndexBuffer(buffer hal.Buffer, indexType hal.IndexType) {
	cb.add("BindIndexBuffer", BindIndexBufferArgs{Buffer: buffer.(*Buffer), IndexType: indexType})
}

// DrawIndexed implements hal.CommandBuffer.
func (cb *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	cb.add("DrawIndexed", DrawIndexedArgs{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		VertexOffset:  vertexOffset,
		FirstInstance: firstInstance,
	})
}

// execute applies a command at submission. Only transfers and layout
// transitions change memory.
func (d *Device) execute(cmd Command) {
	d.lock.Lock()
	defer d.lock.Unlock()

	switch args := cmd.Args.(type) {
	case hal.ImageBarrier:
		img := args.Image.(*Image)
		if args.OldLayout != hal.LayoutUndefined && args.OldLayout != img.layout {
			d.problems = append(d.problems, "barrier on "+img.Desc.Name+" from "+args.OldLayout.String()+
				" while the image is "+img.layout.String())
		}
		img.layout = args.NewLayout

	case CopyBufferArgs:
		for _, r := range args.Regions {
			if r.SrcOffset+r.Size > uint64(len(args.Src.data)) || r.DstOffset+r.Size > uint64(len(args.Dst.data)) {
				d.problems = append(d.problems, "buffer copy out of range")
				continue
			}
			copy(args.Dst.data[r.DstOffset:r.DstOffset+r.Size], args.Src.data[r.SrcOffset:r.SrcOffset+r.Size])
		}

	case CopyBufferToImageArgs:
		if args.Dst.layout != hal.LayoutTransferDst {
			d.problems = append(d.problems, "copy into "+args.Dst.Desc.Name+" in layout "+args.Dst.layout.String())
		}
		for _, r := range args.Regions {
			if int(r.MipLevel) >= len(args.Dst.mips) {
				d.problems = append(d.problems, "copy into a missing mip level")
				continue
			}
			size := mipBytes(args.Dst.Desc.Format, r.Extent.Width, r.Extent.Height)
			if r.BufferOffset+size > uint64(len(args.Src.data)) {
				d.problems = append(d.problems, "buffer to image copy reads past the buffer")
				continue
			}
			copy(args.Dst.mips[r.MipLevel], args.Src.data[r.BufferOffset:r.BufferOffset+size])
		}

	case CopyImageArgs:
		if args.Src.layout != hal.LayoutTransferSrc || args.Dst.layout != hal.LayoutTransferDst {
			d.problems = append(d.problems, "image copy from "+args.Src.layout.String()+" to "+args.Dst.layout.String())
		}
		copyTexels(args.Src, args.Dst, args.Region)

	case BlitImageArgs:
		if args.Src.layout != hal.LayoutTransferSrc || args.Dst.layout != hal.LayoutTransferDst {
			d.problems = append(d.problems, "image blit from "+args.Src.layout.String()+" to "+args.Dst.layout.String())
		}
		// Only unscaled blits move texels.
		src, dst := args.Region.SrcOffsets, args.Region.DstOffsets
		w, h := src[1].X-src[0].X, src[1].Y-src[0].Y
		if w > 0 && h > 0 && dst[1].X-dst[0].X == w && dst[1].Y-dst[0].Y == h {
			copyTexels(args.Src, args.Dst, hal.ImageCopy{
				SrcOffset: src[0],
				DstOffset: dst[0],
				Extent:    hal.Extent3D{Width: uint32(w), Height: uint32(h), Depth: 1},
			})
		}

	case hal.RenderingInfo:
		if view, ok := args.Color.(*ImageView); ok && view.Image.layout != hal.LayoutColorAttachment {
			d.problems = append(d.problems, "rendering to "+view.Image.Desc.Name+" in layout "+view.Image.layout.String())
		}
	}
}

// copyTexels copies a region of mip 0 between uncompressed images.
func copyTexels(src, dst *Image, r hal.ImageCopy) {
	texel := bytesPerTexel(src.Desc.Format)
	if texel == 0 || texel != bytesPerTexel(dst.Desc.Format) {
		return
	}
	srcPitch := uint64(src.Desc.Extent.Width) * texel
	dstPitch := uint64(dst.Desc.Extent.Width) * texel
	row := uint64(r.Extent.Width) * texel

	for y := uint64(0); y < uint64(r.Extent.Height); y++ {
		from := (uint64(r.SrcOffset.Y)+y)*srcPitch + uint64(r.SrcOffset.X)*texel
		to := (uint64(r.DstOffset.Y)+y)*dstPitch + uint64(r.DstOffset.X)*texel
		if from+row > uint64(len(src.mips[0])) || to+row > uint64(len(dst.mips[0])) {
			return
		}
		copy(dst.mips[0][to:to+row], src.mips[0][from:from+row])
	}
}
