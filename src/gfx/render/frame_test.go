// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
	"github.com/devblok/korugfx/src/gfx/hal/haltest"
)

func TestFrameCommands(t *testing.T) {
	f := newFixture(t)

	f.frame(nil)
	f.Assert(f.dev.Ops(), qt.DeepEquals, []string{
		"Begin",
		"SetViewport",
		"SetScissor",
		"PipelineBarrier",
		"BeginRendering",
		"EndRendering",
		"PipelineBarrier",
		"PipelineBarrier",
		"CopyImage",
		"PipelineBarrier",
		"PipelineBarrier",
		"End",
	})
	f.assertNoProblems()

	barriers := f.commands("PipelineBarrier")
	var layouts [][2]hal.Layout
	for _, cmd := range barriers {
		b, _ := cmd.Barrier()
		layouts = append(layouts, [2]hal.Layout{b.OldLayout, b.NewLayout})
	}
	f.Assert(layouts, qt.DeepEquals, [][2]hal.Layout{
		{hal.LayoutUndefined, hal.LayoutColorAttachment},
		{hal.LayoutColorAttachment, hal.LayoutTransferSrc},
		{hal.LayoutUndefined, hal.LayoutTransferDst},
		{hal.LayoutTransferDst, hal.LayoutPresentSrc},
		{hal.LayoutTransferSrc, hal.LayoutShaderReadOnly},
	})

	vp := f.commands("SetViewport")[0].Args.(hal.Viewport)
	f.Assert(vp, qt.Equals, hal.Viewport{Width: 800, Height: 600, MinDepth: 0, MaxDepth: 1})

	pass := f.commands("BeginRendering")[0].Args.(hal.RenderingInfo)
	f.Assert(pass.Extent, qt.Equals, hal.Extent2D{Width: 800, Height: 600})
	f.Assert(pass.ClearColor, qt.Equals, [4]float32{0, 0, 0, 1})
	f.Assert(pass.ClearDepth, qt.Equals, float32(1))
	f.Assert(pass.Depth, qt.Not(qt.IsNil))
	f.Assert(pass.DepthFormat, qt.Equals, hal.FormatD32SfloatS8Uint)

	subs := f.dev.Submissions()
	f.Assert(len(subs), qt.Equals, 1)
	f.Assert(subs[0].WaitStages, qt.DeepEquals, []hal.Stage{hal.StageTransfer})
	f.Assert(len(subs[0].Wait), qt.Equals, 1)
	f.Assert(len(subs[0].Signal), qt.Equals, 1)
	f.Assert(subs[0].Fence, qt.Not(qt.IsNil))

	presents := f.dev.Presents()
	f.Assert(len(presents), qt.Equals, 1)
	f.Assert(presents[0].Index, qt.Equals, uint32(0))
	f.Assert(presents[0].Wait[0], qt.Equals, subs[0].Signal[0])

	f.Assert(f.dev.FenceWaits(), qt.DeepEquals, []time.Duration{time.Second})
}

func TestFramesCycleImages(t *testing.T) {
	f := newFixture(t)

	for idx := 0; idx < 4; idx++ {
		f.frame(nil)
	}
	var images []uint32
	for _, p := range f.dev.Presents() {
		images = append(images, p.Index)
	}
	f.Assert(images, qt.DeepEquals, []uint32{0, 1, 2, 0})

	// From the second frame on the main target starts out readable.
	barrier, _ := f.commands("PipelineBarrier")[5].Barrier()
	f.Assert(barrier.OldLayout, qt.Equals, hal.LayoutShaderReadOnly)
	f.Assert(barrier.NewLayout, qt.Equals, hal.LayoutColorAttachment)
	f.assertNoProblems()
}

func TestBeginEndMismatch(t *testing.T) {
	f := newFixture(t)

	assertStatus(f.C, f.rc.EndRendering(), gfx.StatusBeginEndMismatch)
	f.Assert(f.hook.LastEntry().Level, qt.Equals, logrus.ErrorLevel)
	f.Assert(f.hook.LastEntry().Data["op"], qt.Equals, "EndRendering")

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	assertStatus(f.C, f.rc.BeginRendering(), gfx.StatusBeginEndMismatch)

	// The frame that was open is unaffected.
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(len(f.dev.Submissions()), qt.Equals, 1)
	f.assertNoProblems()
}

func TestRecordingOutsideFrame(t *testing.T) {
	f := newFixture(t)

	assertStatus(f.C, f.rc.BindPipeline(gfx.Pipeline{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.BindDescriptor(gfx.Descriptor{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.UpdateDescriptor(gfx.Descriptor{}, gfx.DescriptorUpdateInfo{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.BindVertexBuffer(gfx.VertexBuffer{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.BindIndexBuffer(gfx.IndexBuffer{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.BindRenderTarget(gfx.RenderTexture{}), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.BindMainTarget(), gfx.StatusBeginEndMismatch)
	assertStatus(f.C, f.rc.Draw(0, 3, 1), gfx.StatusBeginEndMismatch)
	f.Assert(len(f.dev.Ops()), qt.Equals, 0)
}

func TestDrawRequiresBindings(t *testing.T) {
	f := newFixture(t)

	pl, err := f.rc.CreatePipeline(gfx.PipelineInfo{
		Name:   "flat",
		Shader: testShader(),
		VertexAttributes: []gfx.VertexAttributeInfo{
			{Name: "position", Format: gfx.Float3Attribute},
		},
	})
	f.Assert(err, qt.IsNil)
	vb, err := f.rc.CreateVertexBuffer(gfx.BufferInfo{Size: 36})
	f.Assert(err, qt.IsNil)
	ib, err := f.rc.CreateIndexBuffer(gfx.BufferInfo{Size: 12})
	f.Assert(err, qt.IsNil)

	f.frame(func() {
		assertStatus(f.C, f.rc.Draw(3, 3, 1), gfx.StatusNoPipelineBound)
		f.Assert(f.rc.BindPipeline(pl), qt.IsNil)
		assertStatus(f.C, f.rc.Draw(3, 3, 1), gfx.StatusNoVertexBufferBound)
		f.Assert(f.rc.BindVertexBuffer(vb), qt.IsNil)
		assertStatus(f.C, f.rc.Draw(3, 3, 1), gfx.StatusNoIndexBufferBound)
		f.Assert(f.rc.BindIndexBuffer(ib), qt.IsNil)
		f.Assert(f.rc.Draw(3, 3, 2), qt.IsNil)
	})

	draws := f.commands("DrawIndexed")
	f.Assert(len(draws), qt.Equals, 1)
	f.Assert(draws[0].Args, qt.Equals, haltest.DrawIndexedArgs{IndexCount: 3, InstanceCount: 2})

	index := f.commands("BindIndexBuffer")[0].Args.(haltest.BindIndexBufferArgs)
	f.Assert(index.IndexType, qt.Equals, hal.IndexTypeUint32)

	// Bindings do not survive the frame.
	f.frame(func() {
		assertStatus(f.C, f.rc.Draw(3, 3, 1), gfx.StatusNoPipelineBound)
	})
	f.assertNoProblems()
}

func TestBindInvalidHandles(t *testing.T) {
	f := newFixture(t)

	f.frame(func() {
		assertStatus(f.C, f.rc.BindPipeline(gfx.Pipeline{Handle: gfx.InvalidHandle}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.BindPipeline(gfx.Pipeline{Handle: 3}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.BindVertexBuffer(gfx.VertexBuffer{}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.BindIndexBuffer(gfx.IndexBuffer{}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.BindRenderTarget(gfx.RenderTexture{}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.BindDescriptor(gfx.Descriptor{}), gfx.StatusNoPipelineBound)
	})
	f.assertNoProblems()
}

func TestMinimizedWindow(t *testing.T) {
	f := newFixture(t)

	f.window.Resize(0, 0)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 1)

	assertStatus(f.C, f.rc.BeginRendering(), gfx.StatusWindowMinimized)
	f.Assert(len(f.dev.Ops()), qt.Equals, 0)
	assertStatus(f.C, f.rc.EndRendering(), gfx.StatusBeginEndMismatch)

	f.window.Resize(640, 480)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 2)
	f.Assert(f.rc.Swapchain().Extent(), qt.Equals, hal.Extent2D{Width: 640, Height: 480})
	f.frame(nil)
	f.assertNoProblems()
}

func TestResizeReleasesAfterNextFrame(t *testing.T) {
	f := newFixture(t)
	f.frame(nil)

	f.window.Resize(1024, 768)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 2)
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 2, qt.Commentf("old swapchain and old main targets"))
	f.Assert(f.dev.Released("image"), qt.Equals, 0)
	f.Assert(f.dev.Released("swapchain"), qt.Equals, 0)

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(f.dev.Released("image"), qt.Equals, 0)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("image"), qt.Equals, 2)
	f.Assert(f.dev.Released("swapchain"), qt.Equals, 1)
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 0)

	f.frame(nil)
	f.Assert(f.dev.Released("image"), qt.Equals, 2)
	f.Assert(f.dev.Released("swapchain"), qt.Equals, 1)
	f.assertNoProblems()
}

func TestResizeDuringFrame(t *testing.T) {
	f := newFixture(t)

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.window.Resize(1024, 768)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 1)
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 0)

	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 2)
	f.Assert(f.rc.Swapchain().Extent(), qt.Equals, hal.Extent2D{Width: 1024, Height: 768})
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 2)
	f.Assert(f.dev.Released("image"), qt.Equals, 0)

	f.dev.ClearCommands()
	f.frame(nil)
	f.Assert(f.dev.Released("image"), qt.Equals, 2)

	pass := f.commands("BeginRendering")[0].Args.(hal.RenderingInfo)
	f.Assert(pass.Extent, qt.Equals, hal.Extent2D{Width: 1024, Height: 768})
	f.assertNoProblems()
}

func TestAcquireOutOfDate(t *testing.T) {
	f := newFixture(t)
	f.dev.ForceOutOfDate(1)

	assertStatus(f.C, f.rc.BeginRendering(), gfx.StatusWindowSizeInvalid)
	f.Assert(f.dev.Created("swapchain"), qt.Equals, 2)
	f.Assert(len(f.dev.Ops()), qt.Equals, 0)

	// The frame fence was not reset, so the next frame does not time out.
	f.frame(nil)
	f.Assert(len(f.dev.Submissions()), qt.Equals, 1)
	f.assertNoProblems()
}

func TestPresentSuboptimal(t *testing.T) {
	for _, presentErr := range []error{hal.ErrSuboptimal, hal.ErrOutOfDate} {
		t.Run(presentErr.Error(), func(t *testing.T) {
			f := newFixture(t)

			f.Assert(f.rc.BeginRendering(), qt.IsNil)
			f.dev.FailNextPresent(presentErr)
			assertStatus(f.C, f.rc.EndRendering(), gfx.StatusWindowSizeInvalid)
			f.Assert(len(f.dev.Submissions()), qt.Equals, 1)
			f.Assert(f.dev.Created("swapchain"), qt.Equals, 2)

			f.frame(nil)
			f.Assert(f.dev.Released("swapchain"), qt.Equals, 1)
			f.assertNoProblems()
		})
	}
}

func TestPresentFailureIsFatal(t *testing.T) {
	f := newFixture(t)

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.dev.FailNextPresent(haltest.ErrInjected)
	err := catch(func() { _ = f.rc.EndRendering() })
	f.Assert(err, qt.ErrorMatches, "Presentation failed: haltest: injected failure")
}

func TestFrameFenceTimeoutIsFatal(t *testing.T) {
	f := newFixture(t)
	f.frame(nil)

	f.dev.FailWith("WaitForFence", hal.ErrTimeout)
	err := catch(func() { _ = f.rc.BeginRendering() })
	f.Assert(err, qt.ErrorMatches, "Previous frame did not complete: .*wait timed out")
}

func TestBindRenderTarget(t *testing.T) {
	f := newFixture(t)

	rt, err := f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 256, Height: 256, MipCount: 4},
		Name:        "reflection",
		Type:        gfx.ColorRenderTexture,
	})
	f.Assert(err, qt.IsNil)
	depth, err := f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 256, Height: 256, MipCount: 1},
		Name:        "shadow",
		Type:        gfx.DepthRenderTexture,
	})
	f.Assert(err, qt.IsNil)

	f.frame(func() {
		f.dev.ClearCommands()
		f.Assert(f.rc.BindRenderTarget(rt), qt.IsNil)
		f.Assert(f.dev.Ops(), qt.DeepEquals, []string{"EndRendering", "PipelineBarrier", "BeginRendering"})

		b, _ := f.commands("PipelineBarrier")[0].Barrier()
		f.Assert(b.Image.(*haltest.Image).Desc.Name, qt.Equals, "reflection")
		f.Assert(b.Image.MipLevels(), qt.Equals, uint32(1))
		f.Assert(b.OldLayout, qt.Equals, hal.LayoutUndefined)
		f.Assert(b.NewLayout, qt.Equals, hal.LayoutColorAttachment)
		f.Assert(b.SrcStage, qt.Equals, hal.StageColorAttachmentOutput)
		f.Assert(b.DstStage, qt.Equals, hal.StageColorAttachmentOutput)

		pass := f.commands("BeginRendering")[0].Args.(hal.RenderingInfo)
		f.Assert(pass.Extent, qt.Equals, hal.Extent2D{Width: 256, Height: 256})
		f.Assert(pass.ColorFormat, qt.Equals, hal.FormatB8G8R8A8Unorm)
		f.Assert(pass.Depth, qt.Not(qt.IsNil))

		assertStatus(f.C, f.rc.BindRenderTarget(depth), gfx.StatusInvalidHandle)

		f.dev.ClearCommands()
		f.Assert(f.rc.BindMainTarget(), qt.IsNil)
		f.Assert(f.dev.Ops(), qt.DeepEquals, []string{"EndRendering", "PipelineBarrier", "PipelineBarrier", "BeginRendering"})
		f.Assert(f.rc.BindMainTarget(), qt.IsNil)
		f.Assert(len(f.dev.Ops()), qt.Equals, 4, qt.Commentf("already on the main target"))
	})
	f.assertNoProblems()

	b, _ := f.commands("PipelineBarrier")[0].Barrier()
	target := b.Image.(*haltest.Image)
	f.Assert(target.Layout(), qt.Equals, hal.LayoutShaderReadOnly)
}

func TestRenderTargetLargerThanDepth(t *testing.T) {
	f := newFixture(t)

	rt, err := f.rc.CreateRenderTexture(gfx.RenderTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: 2048, Height: 2048, MipCount: 1},
		Name:        "large",
	})
	f.Assert(err, qt.IsNil)

	f.frame(func() {
		f.dev.ClearCommands()
		err := f.rc.BindRenderTarget(rt)
		f.Assert(err, qt.ErrorMatches, `render target "large" of 2048x2048 does not fit the 800x600 depth target`)
		f.Assert(len(f.dev.Ops()), qt.Equals, 0, qt.Commentf("the main pass stays open"))
		f.Assert(f.hook.LastEntry().Data["op"], qt.Equals, "BindRenderTarget")
	})
	f.assertNoProblems()

	// After the window grows past the target it can be bound.
	f.window.Resize(2048, 2048)
	f.frame(func() {
		f.dev.ClearCommands()
		f.Assert(f.rc.BindRenderTarget(rt), qt.IsNil)
		pass := f.commands("BeginRendering")[0].Args.(hal.RenderingInfo)
		f.Assert(pass.Depth, qt.Not(qt.IsNil))
		f.Assert(pass.DepthFormat, qt.Equals, hal.FormatD32SfloatS8Uint)
	})
	f.assertNoProblems()
}

func TestUpdateDescriptor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	empty, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "empty"})
	f.Assert(err, qt.IsNil)
	f.Assert(f.rc.SetImageTextureData(ctx, tex, rgbaData(4, 4, 1, func(int) byte { return 9 })), qt.IsNil)

	desc, err := f.rc.CreateDescriptor(gfx.DescriptorInfo{
		Name: "material",
		Bindings: []gfx.DescriptorBindingInfo{
			{Type: gfx.ImageBinding, Image: gfx.ImageTexture{Handle: gfx.InvalidHandle}},
		},
	})
	f.Assert(err, qt.IsNil)
	pl, err := f.rc.CreatePipeline(gfx.PipelineInfo{Name: "lit", Shader: testShader(), Descriptors: []gfx.Descriptor{desc}})
	f.Assert(err, qt.IsNil)

	f.frame(func() {
		assertStatus(f.C, f.rc.UpdateDescriptor(desc, gfx.DescriptorUpdateInfo{Source: tex}), gfx.StatusNoPipelineBound)
		f.Assert(f.rc.BindPipeline(pl), qt.IsNil)
		f.Assert(f.rc.BindDescriptor(desc), qt.IsNil)

		f.Assert(f.rc.UpdateDescriptor(desc, gfx.DescriptorUpdateInfo{
			Binding: 0,
			Source:  tex,
			Sampler: gfx.AnisotropicSampler,
		}), qt.IsNil)
		assertStatus(f.C, f.rc.UpdateDescriptor(desc, gfx.DescriptorUpdateInfo{Binding: 1, Source: tex}), gfx.StatusInvalidHandle)
		assertStatus(f.C, f.rc.UpdateDescriptor(desc, gfx.DescriptorUpdateInfo{Source: empty}), gfx.StatusInvalidHandle)
	})

	bind := f.commands("BindDescriptorSet")[0].Args.(haltest.BindDescriptorSetArgs)
	write, ok := bind.Set.Binding(0)
	f.Assert(ok, qt.Equals, true)
	f.Assert(write.Sampler.Desc, qt.Equals, hal.SamplerDesc{Filter: hal.FilterLinear, Anisotropy: true})
	f.Assert(write.View.Image.Desc.Name, qt.Equals, "albedo")
	f.assertNoProblems()
}
