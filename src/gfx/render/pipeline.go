// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

func nativeAttributeFormat(f gfx.VertexAttributeFormat) (hal.Format, error) {
	switch f {
	case gfx.IntAttribute:
		return hal.FormatR32Sint, nil
	case gfx.FloatAttribute:
		return hal.FormatR32Sfloat, nil
	case gfx.Float2Attribute:
		return hal.FormatR32G32Sfloat, nil
	case gfx.Float3Attribute:
		return hal.FormatR32G32B32Sfloat, nil
	case gfx.Float4Attribute:
		return hal.FormatR32G32B32A32Sfloat, nil
	}
	return hal.FormatUndefined, errors.Errorf("vertex attribute format %d is not supported", f)
}

// VertexLayout places attributes one after another in declaration
// order at location i and returns them with the vertex stride.
func VertexLayout(attrs []gfx.VertexAttributeInfo) ([]hal.VertexAttribute, uint32, error) {
	out := make([]hal.VertexAttribute, len(attrs))
	var offset uint32
	for idx, attr := range attrs {
		format, err := nativeAttributeFormat(attr.Format)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "attribute %q", attr.Name)
		}
		out[idx] = hal.VertexAttribute{
			Location: uint32(idx),
			Binding:  0,
			Format:   format,
			Offset:   offset,
		}
		offset += attr.Format.Size()
	}
	return out, offset, nil
}

type pipeline struct {
	resourceSlot
	info   gfx.PipelineInfo
	layout hal.PipelineLayout
	native hal.Pipeline

	// Attachment formats the pipeline was built for.
	colorFormat hal.Format
	depthFormat hal.Format
}

func (c *Context) newPipeline(info gfx.PipelineInfo) (_ *pipeline, err error) {
	attrs, stride, err := VertexLayout(info.VertexAttributes)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", info.Name)
	}

	sets := make([]hal.DescriptorSetLayout, 0, len(info.Descriptors))
	for _, d := range info.Descriptors {
		desc, err := lookup(c, &c.descriptors, d.Handle)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q descriptor %s", info.Name, d.Handle)
		}
		sets = append(sets, desc.layout)
	}

	vertex, fragment, err := c.shaderModules(info.Shader)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", info.Name)
	}
	// Modules are only needed while the pipeline is built.
	defer vertex.Release()
	defer fragment.Release()

	p := &pipeline{info: info}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	if p.layout, err = c.device.NewPipelineLayout(sets); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q layout", info.Name)
	}

	desc := hal.PipelineDesc{
		Name:         info.Name,
		Layout:       p.layout,
		Vertex:       vertex,
		Fragment:     fragment,
		Stride:       stride,
		Attributes:   attrs,
		DepthTest:    true,
		DepthWrite:   true,
		DepthCompare: hal.CompareOpLess,
		ColorFormat:  colorTargetFormat,
		DepthFormat:  depthTargetFormat,
	}
	if info.IgnoreDepth {
		desc.DepthTest, desc.DepthWrite, desc.DepthCompare = false, false, hal.CompareOpAlways
	}
	if info.RenderToSwapchain {
		desc.ColorFormat = c.swapchain.Format().Format
	}

	if p.native, err = c.device.NewPipeline(desc); err != nil {
		return nil, errors.Wrapf(err, "pipeline %q", info.Name)
	}
	p.colorFormat, p.depthFormat = desc.ColorFormat, desc.DepthFormat
	return p, nil
}

func (p *pipeline) release() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.native != nil {
		p.native.Release()
		p.native = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}
