// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"bytes"
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
	"github.com/devblok/korugfx/src/gfx/hal/haltest"
	"github.com/devblok/korugfx/src/gfx/render"
)

func TestSetImageTextureData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	f.Assert(f.dev.Created("image"), qt.Equals, 2, qt.Commentf("no image before data is set"))

	data := rgbaData(4, 4, 2, func(idx int) byte { return byte(idx) })
	f.Assert(tex.SetData(ctx, f.rc, data), qt.IsNil)
	f.Assert(f.dev.Ops(), qt.DeepEquals, []string{"Begin", "PipelineBarrier", "CopyBufferToImage", "PipelineBarrier", "End"})

	barriers := f.commands("PipelineBarrier")
	toDst, _ := barriers[0].Barrier()
	toRead, _ := barriers[1].Barrier()
	f.Assert(toDst.OldLayout, qt.Equals, hal.LayoutUndefined)
	f.Assert(toDst.NewLayout, qt.Equals, hal.LayoutTransferDst)
	f.Assert(toDst.DstAccess, qt.Equals, hal.AccessTransferWrite)
	f.Assert(toRead.OldLayout, qt.Equals, hal.LayoutTransferDst)
	f.Assert(toRead.NewLayout, qt.Equals, hal.LayoutShaderReadOnly)
	f.Assert(toRead.DstStage, qt.Equals, hal.StageFragmentShader)

	copyArgs := f.commands("CopyBufferToImage")[0].Args.(haltest.CopyBufferToImageArgs)
	f.Assert(copyArgs.Src.Size(), qt.Equals, uint64(80))
	f.Assert(copyArgs.Regions, qt.DeepEquals, []hal.BufferImageCopy{
		{BufferOffset: 0, MipLevel: 0, Extent: hal.Extent3D{Width: 4, Height: 4, Depth: 1}},
		{BufferOffset: 64, MipLevel: 1, Extent: hal.Extent3D{Width: 2, Height: 2, Depth: 1}},
	})

	img := copyArgs.Dst
	f.Assert(img.Desc.Format, qt.Equals, hal.FormatR8G8B8A8Unorm)
	f.Assert(img.Desc.MipLevels, qt.Equals, uint32(2))
	f.Assert(img.Layout(), qt.Equals, hal.LayoutShaderReadOnly)
	f.Assert(img.Mip(0), qt.DeepEquals, data.MipData[:64])
	f.Assert(img.Mip(1), qt.DeepEquals, data.MipData[64:80])

	// Staging memory does not outlive the upload.
	f.Assert(f.dev.Live()["buffer"], qt.Equals, 0)
	f.assertNoProblems()
}

func TestSetImageTextureDataBlockCompressed(t *testing.T) {
	f := newFixture(t)

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "normals"})
	f.Assert(err, qt.IsNil)

	data := gfx.TextureData{Width: 8, Height: 8, MipCount: 3, MipData: make([]byte, 96), Format: gfx.BC3Unorm}
	f.Assert(f.rc.SetImageTextureData(context.Background(), tex, data), qt.IsNil)

	copyArgs := f.commands("CopyBufferToImage")[0].Args.(haltest.CopyBufferToImageArgs)
	f.Assert(copyArgs.Src.Size(), qt.Equals, uint64(96))
	var offsets []uint64
	var next uint64
	for _, r := range copyArgs.Regions {
		offsets = append(offsets, r.BufferOffset)
		f.Assert(r.BufferOffset, qt.Equals, next, qt.Commentf("mip %d is packed after the previous one", r.MipLevel))
		size, err := gfx.MipSize(8, 8, r.MipLevel, gfx.BC3Unorm)
		f.Assert(err, qt.IsNil)
		next += size
	}
	f.Assert(offsets, qt.DeepEquals, []uint64{0, 64, 80})
	f.Assert(copyArgs.Regions[2].Extent, qt.Equals, hal.Extent3D{Width: 2, Height: 2, Depth: 1})
	f.Assert(copyArgs.Dst.Desc.Format, qt.Equals, hal.FormatBC3UnormBlock)
	f.assertNoProblems()
}

func TestSetImageTextureDataReplacesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 1 })), qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(8, 8, 1, func(int) byte { return 2 })), qt.IsNil)

	f.Assert(f.dev.Created("image"), qt.Equals, 4)
	f.Assert(f.dev.Released("image"), qt.Equals, 0, qt.Commentf("a submitted frame may still sample it"))
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 0, qt.Commentf("retired until the next frame"))

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 1)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("image"), qt.Equals, 1)
	f.Assert(f.dev.Live()["image"], qt.Equals, 3)
	f.assertNoProblems()
}

func TestSetImageTextureDataDuringFrame(t *testing.T) {
	f := newFixture(t)
	ctx := render.WithWorker(context.Background(), 1)

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 1 })), qt.IsNil)

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 2 })), qt.IsNil)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("image"), qt.Equals, 0)

	// Retired while the previous frame was recorded, so it outlives the next one too.
	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(f.rc.Deletion().Sealed(), qt.Equals, 1)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("image"), qt.Equals, 1)
	f.assertNoProblems()
}

func TestReplacedImageRepointsDescriptors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 1 })), qt.IsNil)
	desc, err := f.rc.CreateDescriptor(gfx.DescriptorInfo{
		Name:     "material",
		Bindings: []gfx.DescriptorBindingInfo{{Type: gfx.ImageBinding, Image: tex}},
	})
	f.Assert(err, qt.IsNil)
	pl, err := f.rc.CreatePipeline(gfx.PipelineInfo{Name: "lit", Shader: testShader(), Descriptors: []gfx.Descriptor{desc}})
	f.Assert(err, qt.IsNil)

	bind := func() *haltest.DescriptorSet {
		f.Assert(f.rc.BindPipeline(pl), qt.IsNil)
		f.Assert(f.rc.BindDescriptor(desc), qt.IsNil)
		cmds := f.commands("BindDescriptorSet")
		return cmds[len(cmds)-1].Args.(haltest.BindDescriptorSetArgs).Set
	}

	var set *haltest.DescriptorSet
	f.frame(func() { set = bind() })
	first, ok := set.Binding(0)
	f.Assert(ok, qt.Equals, true)

	f.Assert(tex.SetData(ctx, f.rc, rgbaData(8, 8, 1, func(int) byte { return 2 })), qt.IsNil)
	f.frame(func() {
		bind()
		second, _ := set.Binding(0)
		f.Assert(second.View == first.View, qt.Equals, false)
		f.Assert(second.View.Image.Extent(), qt.Equals, hal.Extent2D{Width: 8, Height: 8})
		f.Assert(second.Sampler, qt.Equals, first.Sampler)
		f.Assert(first.View.Released(), qt.Equals, false)
	})
	f.Assert(first.View.Released(), qt.Equals, true)
	f.assertNoProblems()
}

func TestSetImageTextureDataErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)

	assertStatus(f.C, f.rc.SetImageTextureData(ctx, gfx.ImageTexture{Handle: 5}, rgbaData(4, 4, 1, func(int) byte { return 0 })), gfx.StatusInvalidHandle)

	short := rgbaData(4, 4, 2, func(int) byte { return 0 })
	short.MipData = short.MipData[:70]
	f.Assert(f.rc.SetImageTextureData(ctx, tex, short), qt.ErrorMatches, `texture "albedo" needs 80 bytes of mip data, got 70`)

	tooMany := rgbaData(4, 4, 3, func(int) byte { return 0 })
	tooMany.MipCount = 4
	f.Assert(f.rc.SetImageTextureData(ctx, tex, tooMany), qt.ErrorMatches, `texture "albedo" cannot have 4 mips at 4x4`)

	bad := rgbaData(4, 4, 1, func(int) byte { return 0 })
	bad.Format = gfx.TextureFormat(99)
	f.Assert(f.rc.SetImageTextureData(ctx, tex, bad), qt.ErrorMatches, `texture format .* is not supported`)

	f.Assert(f.dev.Created("image"), qt.Equals, 2)
	f.Assert(len(f.dev.Submissions()), qt.Equals, 0)
}

func TestCopyImageTexture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "atlas"})
	f.Assert(err, qt.IsNil)
	dst, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "target"})
	f.Assert(err, qt.IsNil)
	f.Assert(src.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 0xaa })), qt.IsNil)
	f.Assert(dst.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 0 })), qt.IsNil)

	f.dev.ClearCommands()
	f.Assert(dst.Copy(ctx, f.rc, gfx.TextureCopyData{
		SourceX: 0, SourceY: 0,
		DestX: 2, DestY: 2,
		Width: 2, Height: 2,
		Source: src,
	}), qt.IsNil)
	f.Assert(f.dev.Ops(), qt.DeepEquals, []string{
		"Begin",
		"PipelineBarrier",
		"PipelineBarrier",
		"BlitImage",
		"PipelineBarrier",
		"PipelineBarrier",
		"End",
	})

	blit := f.commands("BlitImage")[0].Args.(haltest.BlitImageArgs)
	f.Assert(blit.Filter, qt.Equals, hal.FilterNearest)
	f.Assert(blit.Region.DstOffsets, qt.Equals, [2]hal.Offset3D{{X: 2, Y: 2}, {X: 4, Y: 4, Z: 1}})
	f.Assert(blit.Src.Layout(), qt.Equals, hal.LayoutShaderReadOnly)
	f.Assert(blit.Dst.Layout(), qt.Equals, hal.LayoutShaderReadOnly)

	mip := blit.Dst.Mip(0)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := byte(0)
			if x >= 2 && y >= 2 {
				want = 0xaa
			}
			texel := mip[(y*4+x)*4 : (y*4+x)*4+4]
			f.Assert(bytes.Equal(texel, []byte{want, want, want, want}), qt.Equals, true, qt.Commentf("texel %d,%d is %v", x, y, texel))
		}
	}
	f.assertNoProblems()
}

func TestCopyImageTextureErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "atlas"})
	f.Assert(err, qt.IsNil)
	dst, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "target"})
	f.Assert(err, qt.IsNil)

	region := gfx.TextureCopyData{Width: 2, Height: 2, Source: src}
	assertStatus(f.C, dst.Copy(ctx, f.rc, region), gfx.StatusInvalidHandle)

	f.Assert(src.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 1 })), qt.IsNil)
	f.Assert(dst.SetData(ctx, f.rc, rgbaData(4, 4, 1, func(int) byte { return 2 })), qt.IsNil)

	region.DestX = 3
	f.Assert(dst.Copy(ctx, f.rc, region), qt.ErrorMatches, `copy region 2x2 is outside of "atlas" or "target"`)
	f.Assert(src.Copy(ctx, f.rc, gfx.TextureCopyData{Width: 1, Height: 1, Source: src}), qt.ErrorMatches, `texture "atlas" cannot be copied onto itself`)
	assertStatus(f.C, dst.Copy(ctx, f.rc, gfx.TextureCopyData{Width: 1, Height: 1, Source: gfx.ImageTexture{Handle: gfx.InvalidHandle}}), gfx.StatusInvalidHandle)
	f.assertNoProblems()
}

func TestCreateRenderTexture(t *testing.T) {
	f := newFixture(t)

	color, err := f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 128, Height: 64, MipCount: 3},
		Name:        "bloom",
	})
	f.Assert(err, qt.IsNil)
	f.Assert(color.Handle, qt.Equals, gfx.Handle(0))
	depth, err := f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 128, Height: 64, MipCount: 1},
		Name:        "shadow",
		Type:        gfx.DepthRenderTexture,
	})
	f.Assert(err, qt.IsNil)
	f.Assert(depth.Handle, qt.Equals, gfx.Handle(1))

	_, err = f.rc.CreateRenderTexture(gfx.RenderTextureInfo{Name: "empty"})
	f.Assert(err, qt.ErrorMatches, `render texture "empty" has no pixels`)

	f.dev.FailOn("NewImageView")
	_, err = f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 16, Height: 16, MipCount: 1},
		Name:        "broken",
	})
	f.Assert(err, qt.ErrorMatches, `view of "broken": .*`)
	f.Assert(f.dev.Live()["image"], qt.Equals, 4, qt.Commentf("main targets and the two render textures"))
}
