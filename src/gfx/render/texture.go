// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"context"

	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

// imageState is the layout of an image together with the access and
// stage of the last operation that touched it.
type imageState struct {
	layout hal.Layout
	access hal.Access
	stage  hal.Stage
}

var (
	stateUndefined       = imageState{hal.LayoutUndefined, hal.AccessNone, hal.StageTopOfPipe}
	stateTransferDst     = imageState{hal.LayoutTransferDst, hal.AccessTransferWrite, hal.StageTransfer}
	stateTransferSrc     = imageState{hal.LayoutTransferSrc, hal.AccessTransferRead, hal.StageTransfer}
	stateShaderReadOnly  = imageState{hal.LayoutShaderReadOnly, hal.AccessShaderRead, hal.StageFragmentShader}
	stateColorAttachment = imageState{hal.LayoutColorAttachment, hal.AccessColorAttachmentWrite, hal.StageColorAttachmentOutput}
	statePresent         = imageState{hal.LayoutPresentSrc, hal.AccessNone, hal.StageBottomOfPipe}
)

// barrier records a transition of img from one state to another.
func barrier(cmd hal.CommandBuffer, img hal.Image, aspect hal.Aspect, from, to imageState) {
	cmd.PipelineBarrier(hal.ImageBarrier{
		Image:     img,
		Aspect:    aspect,
		OldLayout: from.layout,
		NewLayout: to.layout,
		SrcAccess: from.access,
		DstAccess: to.access,
		SrcStage:  from.stage,
		DstStage:  to.stage,
	})
}

// texture is an image with a view over all of its mips and the state
// its last recorded barrier left it in.
type texture struct {
	image  hal.Image
	view   hal.ImageView
	aspect hal.Aspect
	state  imageState
}

func newTexture(device hal.Device, desc hal.ImageDesc, aspect hal.Aspect) (_ *texture, err error) {
	t := &texture{aspect: aspect, state: stateUndefined}
	defer func() {
		if err != nil {
			t.release()
		}
	}()

	if t.image, err = device.NewImage(desc); err != nil {
		return nil, errors.Wrapf(err, "image %q", desc.Name)
	}
	if t.view, err = device.NewImageView(t.image, hal.ImageViewDesc{
		Format:    desc.Format,
		Aspect:    aspect,
		MipLevels: desc.MipLevels,
	}); err != nil {
		return nil, errors.Wrapf(err, "view of %q", desc.Name)
	}
	return t, nil
}

// transition records a barrier from the tracked state and tracks the new one.
func (t *texture) transition(cmd hal.CommandBuffer, to imageState) {
	barrier(cmd, t.image, t.aspect, t.state, to)
	t.state = to
}

func (t *texture) extent() hal.Extent2D {
	return t.image.Extent()
}

func (t *texture) release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.image != nil {
		t.image.Release()
		t.image = nil
	}
}

func nativeTextureFormat(f gfx.TextureFormat) (hal.Format, error) {
	switch f {
	case gfx.RGBA8Unorm:
		return hal.FormatR8G8B8A8Unorm, nil
	case gfx.RGBA8Srgb:
		return hal.FormatR8G8B8A8Srgb, nil
	case gfx.BC3Unorm:
		return hal.FormatBC3UnormBlock, nil
	case gfx.BC3Srgb:
		return hal.FormatBC3SrgbBlock, nil
	case gfx.BC5Unorm:
		return hal.FormatBC5UnormBlock, nil
	case gfx.BC5Snorm:
		return hal.FormatBC5SnormBlock, nil
	}
	return hal.FormatUndefined, errors.Errorf("texture format %s is not supported", f)
}

// imageTexture is a sampled texture. Its image is created by SetData.
type imageTexture struct {
	resourceSlot
	info gfx.ImageTextureInfo

	tex    *texture
	format gfx.TextureFormat

	// generation counts the images tex has held. Descriptors compare it
	// to find bindings that still point at a replaced image.
	generation uint64
}

func (c *Context) newImageTexture(info gfx.ImageTextureInfo) (*imageTexture, error) {
	if info.MipCount == 0 {
		info.MipCount = 1
	}
	return &imageTexture{info: info}, nil
}

func (t *imageTexture) release() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.tex != nil {
		t.tex.release()
		t.tex = nil
	}
}

// loaded returns the texture if data was set.
func (t *imageTexture) loaded() (*texture, error) {
	if t.tex == nil {
		return nil, gfx.StatusInvalidHandle
	}
	return t.tex, nil
}

// SetImageTextureData uploads a tightly packed mip chain. A new image is
// created for the data and replaces any previous one; when the call
// returns the texture is ready for sampling.
//
// A replaced image is released once no frame can use it. Descriptors
// that sampled it are pointed at the new image before they are next
// bound in a frame.
func (c *Context) SetImageTextureData(ctx context.Context, t gfx.ImageTexture, data gfx.TextureData) error {
	if !c.running() {
		return c.protocol("SetImageTextureData", gfx.StatusNotInitialized)
	}
	it, err := lookup(c, &c.imageTextures, t.Handle)
	if err != nil {
		return c.protocol("SetImageTextureData", gfx.StatusInvalidHandle)
	}

	format, err := nativeTextureFormat(data.Format)
	if err != nil {
		return err
	}
	if data.Width == 0 || data.Height == 0 || data.MipCount == 0 {
		return errors.Errorf("texture data of %q has no pixels", it.info.Name)
	}
	if !data.Format.BlockCompressed() {
		if w, h := gfx.MipDimensions(data.Width, data.Height, data.MipCount-1); w == 0 || h == 0 {
			return errors.Errorf("texture %q cannot have %d mips at %dx%d", it.info.Name, data.MipCount, data.Width, data.Height)
		}
	}
	offsets, total, err := gfx.MipLayout(data.Width, data.Height, data.MipCount, data.Format)
	if err != nil {
		return err
	}
	if uint64(len(data.MipData)) < total {
		return errors.Errorf("texture %q needs %d bytes of mip data, got %d", it.info.Name, total, len(data.MipData))
	}

	staging, err := c.newStaging("texture staging", total, hal.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	defer staging.Release()
	if err := fill(staging, data.MipData[:total]); err != nil {
		return err
	}

	tex, err := newTexture(c.device, hal.ImageDesc{
		Name:      it.info.Name,
		Extent:    hal.Extent2D{Width: data.Width, Height: data.Height},
		Format:    format,
		MipLevels: data.MipCount,
		Usage:     hal.ImageUsageTransferDst | hal.ImageUsageTransferSrc | hal.ImageUsageSampled,
	}, hal.AspectColor)
	if err != nil {
		return err
	}

	regions := make([]hal.BufferImageCopy, data.MipCount)
	for mip := range regions {
		w, h := gfx.MipDimensions(data.Width, data.Height, uint32(mip))
		regions[mip] = hal.BufferImageCopy{
			BufferOffset: offsets[mip],
			MipLevel:     uint32(mip),
			Extent:       hal.Extent3D{Width: atLeastOne(w), Height: atLeastOne(h), Depth: 1},
		}
	}

	if err := c.ImmediateSubmit(ctx, func(cmd hal.CommandBuffer) {
		tex.transition(cmd, stateTransferDst)
		cmd.CopyBufferToImage(staging, tex.image, regions)
		tex.transition(cmd, stateShaderReadOnly)
	}); err != nil {
		tex.release()
		return err
	}

	it.lock.Lock()
	if old := it.tex; old != nil {
		c.retire(gfx.ReleaseFunc(old.release))
	}
	it.generation++
	it.tex, it.format = tex, data.Format
	it.info.Width, it.info.Height, it.info.MipCount = data.Width, data.Height, data.MipCount
	it.lock.Unlock()
	return nil
}

// CopyImageTexture blits a region of the source texture into t. Both
// textures are returned to the shader read only layout afterwards.
func (c *Context) CopyImageTexture(ctx context.Context, t gfx.ImageTexture, region gfx.TextureCopyData) error {
	if !c.running() {
		return c.protocol("CopyImageTexture", gfx.StatusNotInitialized)
	}
	dst, err := lookup(c, &c.imageTextures, t.Handle)
	if err != nil {
		return c.protocol("CopyImageTexture", gfx.StatusInvalidHandle)
	}
	src, err := lookup(c, &c.imageTextures, region.Source.Handle)
	if err != nil {
		return c.protocol("CopyImageTexture", gfx.StatusInvalidHandle)
	}
	if src == dst {
		return errors.Errorf("texture %q cannot be copied onto itself", dst.info.Name)
	}

	// Lock in handle order so two opposite copies cannot deadlock.
	first, second := src, dst
	if t.Handle < region.Source.Handle {
		first, second = dst, src
	}
	first.lock.Lock()
	defer first.lock.Unlock()
	second.lock.Lock()
	defer second.lock.Unlock()

	srcTex, err := src.loaded()
	if err != nil {
		return c.protocol("CopyImageTexture", gfx.StatusInvalidHandle)
	}
	dstTex, err := dst.loaded()
	if err != nil {
		return c.protocol("CopyImageTexture", gfx.StatusInvalidHandle)
	}
	if !fits(srcTex.extent(), region.SourceX, region.SourceY, region.Width, region.Height) ||
		!fits(dstTex.extent(), region.DestX, region.DestY, region.Width, region.Height) {
		return errors.Errorf("copy region %dx%d is outside of %q or %q", region.Width, region.Height, src.info.Name, dst.info.Name)
	}

	blit := hal.ImageBlit{
		SrcOffsets: [2]hal.Offset3D{
			{X: int32(region.SourceX), Y: int32(region.SourceY)},
			{X: int32(region.SourceX + region.Width), Y: int32(region.SourceY + region.Height), Z: 1},
		},
		DstOffsets: [2]hal.Offset3D{
			{X: int32(region.DestX), Y: int32(region.DestY)},
			{X: int32(region.DestX + region.Width), Y: int32(region.DestY + region.Height), Z: 1},
		},
	}
	return c.ImmediateSubmit(ctx, func(cmd hal.CommandBuffer) {
		srcTex.transition(cmd, stateTransferSrc)
		dstTex.transition(cmd, stateTransferDst)
		cmd.BlitImage(srcTex.image, dstTex.image, blit, hal.FilterNearest)
		srcTex.transition(cmd, stateShaderReadOnly)
		dstTex.transition(cmd, stateShaderReadOnly)
	})
}

func fits(e hal.Extent2D, x, y, w, h uint32) bool {
	return uint64(x)+uint64(w) <= uint64(e.Width) && uint64(y)+uint64(h) <= uint64(e.Height)
}

func atLeastOne(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// renderTexture is an attachment that passes can render into.
type renderTexture struct {
	resourceSlot
	info gfx.RenderTextureInfo
	tex  *texture
}

// Formats of off-screen attachments.
const (
	colorTargetFormat = hal.FormatB8G8R8A8Unorm
	depthTargetFormat = hal.FormatD32SfloatS8Uint
)

// renderTargetDesc describes the image of a render texture. Attachments
// are rendered at their base level only, so MipCount is not used.
func renderTargetDesc(info gfx.RenderTextureInfo) (hal.ImageDesc, hal.Aspect) {
	desc := hal.ImageDesc{
		Name:      info.Name,
		Extent:    hal.Extent2D{Width: info.Width, Height: info.Height},
		MipLevels: 1,
	}
	if info.Type == gfx.DepthRenderTexture {
		desc.Format = depthTargetFormat
		desc.Usage = hal.ImageUsageDepthStencil | hal.ImageUsageSampled
		return desc, hal.AspectDepth
	}
	desc.Format = colorTargetFormat
	desc.Usage = hal.ImageUsageColorAttachment | hal.ImageUsageSampled | hal.ImageUsageTransferSrc
	return desc, hal.AspectColor
}

func (c *Context) newRenderTarget(info gfx.RenderTextureInfo) (*texture, error) {
	if info.Width == 0 || info.Height == 0 {
		return nil, errors.Errorf("render texture %q has no pixels", info.Name)
	}
	desc, aspect := renderTargetDesc(info)
	return newTexture(c.device, desc, aspect)
}

func (c *Context) newRenderTexture(info gfx.RenderTextureInfo) (*renderTexture, error) {
	tex, err := c.newRenderTarget(info)
	if err != nil {
		return nil, err
	}
	return &renderTexture{info: info, tex: tex}, nil
}

func (t *renderTexture) release() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.tex != nil {
		t.tex.release()
		t.tex = nil
	}
}

// createRenderTargets builds the main color and depth targets at the
// swapchain size. Previous targets are released through the deletion
// queue since a submitted frame may still use them.
func (c *Context) createRenderTargets() error {
	if c.color != nil || c.depth != nil {
		color, depth := c.color, c.depth
		c.deletion.EnqueueFunc(func() {
			if color != nil {
				color.release()
			}
			if depth != nil {
				depth.release()
			}
		})
		c.color, c.depth = nil, nil
	}

	extent := c.swapchain.Extent()
	size := gfx.TextureInfo{Width: extent.Width, Height: extent.Height, MipCount: 1}

	depth, err := c.newRenderTarget(gfx.RenderTextureInfo{TextureInfo: size, Name: "Main render target", Type: gfx.DepthRenderTexture})
	if err != nil {
		return errors.Wrap(err, "main depth target")
	}
	color, err := c.newRenderTarget(gfx.RenderTextureInfo{TextureInfo: size, Name: "Main render target", Type: gfx.ColorRenderTexture})
	if err != nil {
		depth.release()
		return errors.Wrap(err, "main color target")
	}
	c.color, c.depth = color, depth
	return nil
}
