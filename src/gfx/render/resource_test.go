// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
	"github.com/devblok/korugfx/src/gfx/hal/haltest"
	"github.com/devblok/korugfx/src/gfx/render"
)

func TestRegistryCoversEveryKind(t *testing.T) {
	c := qt.New(t)
	for _, k := range gfx.ResourceKinds {
		c.Assert(render.Registered(k), qt.Equals, true, qt.Commentf("kind %s", k))
	}
	c.Assert(render.Registered(gfx.ResourceKind(42)), qt.Equals, false)
}

func TestCreateBufferHandles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rc.CreateBuffer(gfx.BufferInfo{Size: 24, Usage: gfx.VertexBufferUsage})
	f.Assert(err, qt.IsNil)
	f.Assert(first.Handle, qt.Equals, gfx.Handle(0))
	f.Assert(first.IsValid(), qt.Equals, true)
	f.Assert(first.Info.Name, qt.Equals, render.DefaultBufferName)

	second, err := f.rc.CreateBuffer(gfx.BufferInfo{Name: "second", Size: 48, Usage: gfx.VertexBufferUsage})
	f.Assert(err, qt.IsNil)
	f.Assert(second.Handle, qt.Equals, gfx.Handle(1))

	// The first buffer still resolves to itself.
	data, err := first.Read(ctx, f.rc)
	f.Assert(err, qt.IsNil)
	f.Assert(len(data), qt.Equals, 24)

	copyArgs := f.commands("CopyBuffer")[0].Args.(haltest.CopyBufferArgs)
	f.Assert(copyArgs.Src.Desc.Name, qt.Equals, render.DefaultBufferName)
	f.Assert(copyArgs.Src.Desc.Usage, qt.Equals, hal.BufferUsageTransferSrc|hal.BufferUsageVertex)
	f.Assert(copyArgs.Src.Desc.HostVisible, qt.Equals, true)
}

func TestCreateBufferFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.rc.CreateBuffer(gfx.BufferInfo{Name: "empty"})
	f.Assert(err, qt.ErrorMatches, `buffer "empty" has zero size`)

	f.dev.FailOn("NewBuffer")
	b, err := f.rc.CreateBuffer(gfx.BufferInfo{Size: 8})
	f.Assert(err, qt.ErrorMatches, `buffer "Unnamed Buffer": NewBuffer: haltest: injected failure`)
	f.Assert(b.IsValid(), qt.Equals, false)
	f.Assert(f.hook.LastEntry().Message, qt.Equals, "Resource creation failed")

	f.dev.ClearFailure("NewBuffer")
	b, err = f.rc.CreateBuffer(gfx.BufferInfo{Size: 8})
	f.Assert(err, qt.IsNil)
	f.Assert(b.Handle, qt.Equals, gfx.Handle(0), qt.Commentf("failures do not consume handles"))
}

func TestVertexAndIndexBuffers(t *testing.T) {
	f := newFixture(t)

	vb, err := f.rc.CreateVertexBuffer(gfx.BufferInfo{Name: "vertices", Size: 32})
	f.Assert(err, qt.IsNil)
	f.Assert(vb.Info.Usage.Has(gfx.VertexBufferUsage|gfx.TransferDstUsage), qt.Equals, true)
	f.Assert(vb.Info.Type, qt.Equals, gfx.VertexIndexDataBuffer)

	ib, err := f.rc.CreateIndexBuffer(gfx.BufferInfo{Name: "indices", Size: 12, Type: gfx.UniformDataBuffer})
	f.Assert(err, qt.IsNil)
	f.Assert(ib.Info.Usage.Has(gfx.IndexBufferUsage|gfx.TransferDstUsage), qt.Equals, true)
	f.Assert(ib.Info.Type, qt.Equals, gfx.UniformDataBuffer)
	f.Assert(ib.Handle, qt.Equals, gfx.Handle(1), qt.Commentf("vertex and index buffers share a table"))
}

func TestUploadBuffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vb, err := f.rc.CreateVertexBuffer(gfx.BufferInfo{Name: "quad", Size: 16})
	f.Assert(err, qt.IsNil)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	f.Assert(vb.Upload(ctx, f.rc, want), qt.IsNil)
	got, err := vb.Read(ctx, f.rc)
	f.Assert(err, qt.IsNil)
	f.Assert(got, qt.DeepEquals, want)

	f.Assert(vb.Upload(ctx, f.rc, []byte{9, 9}), qt.IsNil)
	got, err = vb.Read(ctx, f.rc)
	f.Assert(err, qt.IsNil)
	f.Assert(got[:3], qt.DeepEquals, []byte{9, 9, 3})

	f.Assert(f.dev.Live()["buffer"], qt.Equals, 1, qt.Commentf("staging buffers are released"))
	f.assertNoProblems()
}

func TestUploadBufferErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	vb, err := f.rc.CreateVertexBuffer(gfx.BufferInfo{Name: "quad", Size: 4})
	f.Assert(err, qt.IsNil)
	buffers := f.dev.Created("buffer")

	assertStatus(f.C, f.rc.UploadBuffer(ctx, gfx.Buffer{Handle: gfx.InvalidHandle}, []byte{1}), gfx.StatusInvalidHandle)
	assertStatus(f.C, f.rc.UploadBuffer(ctx, gfx.Buffer{Handle: 7}, []byte{1}), gfx.StatusInvalidHandle)
	_, err = f.rc.ReadBuffer(ctx, gfx.Buffer{Handle: gfx.InvalidHandle})
	assertStatus(f.C, err, gfx.StatusInvalidHandle)

	f.Assert(vb.Upload(ctx, f.rc, make([]byte, 5)), qt.ErrorMatches, `upload of 5 bytes into buffer "quad" of 4 bytes`)
	f.Assert(vb.Upload(ctx, f.rc, nil), qt.IsNil)

	f.Assert(f.dev.Created("buffer"), qt.Equals, buffers)
	f.Assert(len(f.dev.Submissions()), qt.Equals, 0)

	next, err := f.rc.CreateBuffer(gfx.BufferInfo{Size: 4})
	f.Assert(err, qt.IsNil)
	f.Assert(next.Handle, qt.Equals, gfx.Handle(1))
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.rc.CreateBuffer(gfx.BufferInfo{Size: 4})
	f.Assert(err, qt.IsNil)
	f.Assert(f.rc.Delete(gfx.KindBuffer, b.Handle), qt.IsNil)

	assertStatus(f.C, b.Upload(ctx, f.rc, []byte{1}), gfx.StatusInvalidHandle)
	assertStatus(f.C, f.rc.Delete(gfx.KindBuffer, b.Handle), gfx.StatusInvalidHandle)
	assertStatus(f.C, f.rc.Delete(gfx.KindShader, 0), gfx.StatusInvalidHandle)
	f.Assert(f.dev.Live()["buffer"], qt.Equals, 1)

	f.frame(nil)
	f.Assert(f.dev.Live()["buffer"], qt.Equals, 0)

	// Handles are not reused.
	next, err := f.rc.CreateBuffer(gfx.BufferInfo{Size: 4})
	f.Assert(err, qt.IsNil)
	f.Assert(next.Handle, qt.Equals, gfx.Handle(1))

	f.Assert(f.rc.Shutdown(), qt.IsNil)
	f.assertNoProblems()
}

func TestDeleteDuringFrame(t *testing.T) {
	f := newFixture(t)

	vb, err := f.rc.CreateVertexBuffer(gfx.BufferInfo{Name: "quad", Size: 16})
	f.Assert(err, qt.IsNil)

	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(f.rc.BindVertexBuffer(vb), qt.IsNil)
	f.Assert(f.rc.Delete(gfx.KindBuffer, vb.Handle), qt.IsNil)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("buffer"), qt.Equals, 0, qt.Commentf("the frame that bound it may still run"))
	f.Assert(f.rc.Deletion().Len(), qt.Equals, 1)

	waits := len(f.dev.FenceWaits())
	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	f.Assert(len(f.dev.FenceWaits()), qt.Equals, waits+1)
	f.Assert(f.rc.Deletion().Sealed(), qt.Equals, 1)
	f.Assert(f.dev.Released("buffer"), qt.Equals, 0)
	f.Assert(f.rc.EndRendering(), qt.IsNil)
	f.Assert(f.dev.Released("buffer"), qt.Equals, 1)

	f.frame(nil)
	f.Assert(f.dev.Released("buffer"), qt.Equals, 1)
	f.assertNoProblems()
}

func TestCreateShader(t *testing.T) {
	f := newFixture(t)

	s, err := f.rc.CreateShader(testShader())
	f.Assert(err, qt.IsNil)
	f.Assert(s.Handle, qt.Equals, gfx.Handle(0))
	f.Assert(f.dev.Live()["shader"], qt.Equals, 2)

	_, err = f.rc.CreateShader(gfx.ShaderInfo{Name: "half", VertexData: []uint32{1}})
	assertStatus(f.C, err, gfx.StatusShaderCompileFailed)

	f.dev.FailOn("NewShaderModule")
	_, err = f.rc.CreateShader(testShader())
	assertStatus(f.C, err, gfx.StatusShaderCompileFailed)
	f.Assert(f.dev.Live()["shader"], qt.Equals, 2)
}

func TestVertexLayout(t *testing.T) {
	c := qt.New(t)

	attrs, stride, err := render.VertexLayout([]gfx.VertexAttributeInfo{
		{Name: "position", Format: gfx.Float3Attribute},
		{Name: "uv", Format: gfx.Float2Attribute},
		{Name: "color", Format: gfx.Float4Attribute},
		{Name: "material", Format: gfx.IntAttribute},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(stride, qt.Equals, uint32(40))
	c.Assert(attrs, qt.DeepEquals, []hal.VertexAttribute{
		{Location: 0, Format: hal.FormatR32G32B32Sfloat, Offset: 0},
		{Location: 1, Format: hal.FormatR32G32Sfloat, Offset: 12},
		{Location: 2, Format: hal.FormatR32G32B32A32Sfloat, Offset: 20},
		{Location: 3, Format: hal.FormatR32Sint, Offset: 36},
	})

	_, _, err = render.VertexLayout([]gfx.VertexAttributeInfo{{Name: "odd", Format: gfx.VertexAttributeFormat(9)}})
	c.Assert(err, qt.ErrorMatches, `attribute "odd": .*`)
}

func TestCreatePipeline(t *testing.T) {
	f := newFixture(t)

	desc, err := f.rc.CreateDescriptor(gfx.DescriptorInfo{
		Name:     "material",
		Bindings: []gfx.DescriptorBindingInfo{{Image: gfx.ImageTexture{Handle: gfx.InvalidHandle}}},
	})
	f.Assert(err, qt.IsNil)

	cases := []struct {
		info     gfx.PipelineInfo
		depth    bool
		compare  hal.CompareOp
		color    hal.Format
		bindable bool
	}{{
		info:     gfx.PipelineInfo{Name: "lit"},
		depth:    true,
		compare:  hal.CompareOpLess,
		color:    hal.FormatB8G8R8A8Unorm,
		bindable: true,
	}, {
		info:     gfx.PipelineInfo{Name: "flat", IgnoreDepth: true},
		depth:    false,
		compare:  hal.CompareOpAlways,
		color:    hal.FormatB8G8R8A8Unorm,
		bindable: true,
	}, {
		info:    gfx.PipelineInfo{Name: "overlay", IgnoreDepth: true, RenderToSwapchain: true},
		depth:   false,
		compare: hal.CompareOpAlways,
		color:   hal.FormatB8G8R8A8Srgb,
	}}
	for _, test := range cases {
		comment := qt.Commentf("pipeline %s", test.info.Name)
		info := test.info
		info.Shader = testShader()
		info.Descriptors = []gfx.Descriptor{desc}
		info.VertexAttributes = []gfx.VertexAttributeInfo{
			{Name: "position", Format: gfx.Float3Attribute},
			{Name: "uv", Format: gfx.Float2Attribute},
		}
		pl, err := f.rc.CreatePipeline(info)
		f.Assert(err, qt.IsNil, comment)

		f.dev.ClearCommands()
		f.frame(func() {
			err := f.rc.BindPipeline(pl)
			if test.bindable {
				f.Assert(err, qt.IsNil, comment)
				return
			}
			// No pass renders in the swapchain format.
			f.Assert(err, qt.ErrorMatches, `pipeline "overlay" renders to formats 50/130, the open pass uses 44/130`)
			assertStatus(f.C, f.rc.Draw(3, 3, 1), gfx.StatusNoPipelineBound)
		})
		binds := 0
		if test.bindable {
			binds = 1
		}
		f.Assert(len(f.commands("BindPipeline")), qt.Equals, binds, comment)

		pipelines := f.dev.Pipelines()
		native := pipelines[len(pipelines)-1]
		f.Assert(native.Desc.Name, qt.Equals, test.info.Name)
		f.Assert(native.Desc.Stride, qt.Equals, uint32(20), comment)
		f.Assert(native.Desc.DepthTest, qt.Equals, test.depth, comment)
		f.Assert(native.Desc.DepthWrite, qt.Equals, test.depth, comment)
		f.Assert(native.Desc.DepthCompare, qt.Equals, test.compare, comment)
		f.Assert(native.Desc.ColorFormat, qt.Equals, test.color, comment)
		f.Assert(native.Desc.DepthFormat, qt.Equals, hal.FormatD32SfloatS8Uint, comment)
		f.Assert(len(native.Desc.Layout.(*haltest.PipelineLayout).Sets), qt.Equals, 1, comment)
	}

	// Shader modules only live while the pipeline is built.
	f.Assert(f.dev.Live()["shader"], qt.Equals, 0)
	f.assertNoProblems()
}

func TestCreatePipelineErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.rc.CreatePipeline(gfx.PipelineInfo{
		Name:        "orphan",
		Shader:      testShader(),
		Descriptors: []gfx.Descriptor{{Handle: 3}},
	})
	assertStatus(f.C, err, gfx.StatusInvalidHandle)

	_, err = f.rc.CreatePipeline(gfx.PipelineInfo{Name: "silent", Shader: gfx.ShaderInfo{Name: "none"}})
	assertStatus(f.C, err, gfx.StatusShaderCompileFailed)

	f.dev.FailOn("NewPipeline")
	_, err = f.rc.CreatePipeline(gfx.PipelineInfo{Name: "broken", Shader: testShader()})
	f.Assert(err, qt.ErrorMatches, `pipeline "broken": .*`)
	f.Assert(f.dev.Live()["pipelineLayout"], qt.Equals, 0)
	f.Assert(f.dev.Live()["shader"], qt.Equals, 0)

	f.dev.ClearFailure("NewPipeline")
	pl, err := f.rc.CreatePipeline(gfx.PipelineInfo{Name: "fine", Shader: testShader()})
	f.Assert(err, qt.IsNil)
	f.Assert(pl.Handle, qt.Equals, gfx.Handle(0))
}

func TestCreateDescriptor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tex, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "albedo"})
	f.Assert(err, qt.IsNil)
	f.Assert(tex.SetData(ctx, f.rc, rgbaData(2, 2, 1, func(int) byte { return 3 })), qt.IsNil)
	empty, err := f.rc.CreateImageTexture(gfx.ImageTextureInfo{Name: "empty"})
	f.Assert(err, qt.IsNil)

	info := gfx.DescriptorInfo{
		Name: "material",
		Bindings: []gfx.DescriptorBindingInfo{
			{Type: gfx.ImageBinding, Image: tex},
			{Type: gfx.ImageBinding, Image: empty},
			{Type: gfx.ImageBinding, Image: gfx.ImageTexture{Handle: gfx.InvalidHandle}},
		},
	}
	bindings, err := render.DescriptorBindings(info)
	f.Assert(err, qt.IsNil)
	f.Assert(len(bindings), qt.Equals, 3)
	f.Assert(bindings[2], qt.Equals, hal.DescriptorBinding{
		Binding: 2,
		Type:    hal.DescriptorTypeCombinedImageSampler,
		Stages:  hal.ShaderStageFragment | hal.ShaderStageVertex,
	})

	desc, err := f.rc.CreateDescriptor(info)
	f.Assert(err, qt.IsNil)
	pl, err := f.rc.CreatePipeline(gfx.PipelineInfo{Name: "lit", Shader: testShader(), Descriptors: []gfx.Descriptor{desc}})
	f.Assert(err, qt.IsNil)

	f.frame(func() {
		f.Assert(f.rc.BindPipeline(pl), qt.IsNil)
		f.Assert(f.rc.BindDescriptor(desc), qt.IsNil)
	})
	set := f.commands("BindDescriptorSet")[0].Args.(haltest.BindDescriptorSetArgs).Set
	write, ok := set.Binding(0)
	f.Assert(ok, qt.Equals, true)
	f.Assert(write.Sampler.Desc.Filter, qt.Equals, hal.FilterNearest)
	_, ok = set.Binding(1)
	f.Assert(ok, qt.Equals, false)
	f.assertNoProblems()
}

func TestCreateDescriptorRollback(t *testing.T) {
	f := newFixture(t)
	f.dev.FailOn("AllocateDescriptorSet")

	d, err := f.rc.CreateDescriptor(gfx.DescriptorInfo{Name: "material", Bindings: []gfx.DescriptorBindingInfo{{}}})
	f.Assert(err, qt.ErrorMatches, `descriptor "material" set: .*`)
	f.Assert(d.IsValid(), qt.Equals, false)
	f.Assert(f.dev.Created("descriptorSetLayout"), qt.Equals, 1)
	f.Assert(f.dev.Live()["descriptorSetLayout"], qt.Equals, 0)

	f.dev.ClearFailure("AllocateDescriptorSet")
	d, err = f.rc.CreateDescriptor(gfx.DescriptorInfo{Name: "material"})
	f.Assert(err, qt.IsNil)
	f.Assert(d.Handle, qt.Equals, gfx.Handle(0))
}
