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

// NewDescriptorSetLayout implements hal.Device.
func (d *Device) NewDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := check(vk.CreateDescriptorSetLayout(d.device, &dslci, nil, &layout), "vk.CreateDescriptorSetLayout()"); err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{device: d.device, layout: layout}, nil
}

// DescriptorSetLayout implements hal.DescriptorSetLayout.
type DescriptorSetLayout struct {
	device vk.Device
	layout vk.DescriptorSetLayout
}

// Release implements hal.DescriptorSetLayout.
func (l *DescriptorSetLayout) Release() {
	vk.DestroyDescriptorSetLayout(l.device, l.layout, nil)
}

// AllocateDescriptorSet implements hal.Device. Sets come from the
// device wide pool.
func (d *Device) AllocateDescriptorSet(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.(*DescriptorSetLayout).layout},
	}

	d.descriptorLock.Lock()
	defer d.descriptorLock.Unlock()

	var set vk.DescriptorSet
	if err := check(vk.AllocateDescriptorSets(d.device, &dsai, &set), "vk.AllocateDescriptorSets()"); err != nil {
		return nil, err
	}
	return &DescriptorSet{dev: d, set: set}, nil
}

// DescriptorSet implements hal.DescriptorSet.
type DescriptorSet struct {
	dev *Device
	set vk.DescriptorSet
}

// Release returns the set to the pool.
func (s *DescriptorSet) Release() {
	s.dev.descriptorLock.Lock()
	defer s.dev.descriptorLock.Unlock()
	vk.FreeDescriptorSets(s.dev.device, s.dev.descriptorPool, 1, &s.set)
}

// WriteImageDescriptor implements hal.Device. The image is expected in
// the shader read only layout.
func (d *Device) WriteImageDescriptor(set hal.DescriptorSet, binding uint32, view hal.ImageView, sampler hal.Sampler) {
	dii := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   view.(*ImageView).view,
		Sampler:     sampler.(*Sampler).sampler,
	}
	wds := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set.(*DescriptorSet).set,
		DstBinding:      binding,
		DstArrayElement: 0,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: 1,
		PImageInfo:      []vk.DescriptorImageInfo{dii},
	}}
	vk.UpdateDescriptorSets(d.device, uint32(len(wds)), wds, 0, nil)
}

// NewPipelineLayout implements hal.Device.
func (d *Device) NewPipelineLayout(sets []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		layouts[i] = s.(*DescriptorSetLayout).layout
	}
	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}

	var layout vk.PipelineLayout
	if err := check(vk.CreatePipelineLayout(d.device, &plci, nil, &layout), "vk.CreatePipelineLayout()"); err != nil {
		return nil, err
	}
	return &PipelineLayout{device: d.device, layout: layout}, nil
}

// PipelineLayout implements hal.PipelineLayout.
type PipelineLayout struct {
	device vk.Device
	layout vk.PipelineLayout
}

// Release implements hal.PipelineLayout.
func (l *PipelineLayout) Release() {
	vk.DestroyPipelineLayout(l.device, l.layout, nil)
}

// NewPipeline implements hal.Device. The pipeline is made against the
// render pass of its color and depth formats.
func (d *Device) NewPipeline(desc hal.PipelineDesc) (hal.Pipeline, error) {
	pass, err := d.passes.renderPass(passKey{color: desc.ColorFormat, depth: desc.DepthFormat})
	if err != nil {
		return nil, errors.Wrapf(err, "render pass of %s", desc.Name)
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: desc.Vertex.(*ShaderModule).module,
		PName:  safeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: desc.Fragment.(*ShaderModule).module,
		PName:  safeString("main"),
	}}

	vertexBindingDescriptions := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    desc.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	vertexAttributeDescriptions := make([]vk.VertexInputAttributeDescription, len(desc.Attributes))
	for i, a := range desc.Attributes {
		vertexAttributeDescriptions[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	var depthTest, depthWrite vk.Bool32 = vk.False, vk.False
	if desc.DepthTest {
		depthTest = vk.True
	}
	if desc.DepthWrite {
		depthWrite = vk.True
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexAttributeDescriptionCount: uint32(len(vertexAttributeDescriptions)),
			PVertexAttributeDescriptions:    vertexAttributeDescriptions,
			VertexBindingDescriptionCount:   uint32(len(vertexBindingDescriptions)),
			PVertexBindingDescriptions:      vertexBindingDescriptions,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:       depthTest,
			DepthWriteEnable:      depthWrite,
			DepthCompareOp:        vk.CompareOp(desc.DepthCompare),
			DepthBoundsTestEnable: vk.False,
			StencilTestEnable:     vk.False,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     desc.Layout.(*PipelineLayout).layout,
		RenderPass: pass,
	}}

	var cache vk.PipelineCache
	pipelines := make([]vk.Pipeline, len(gpci))
	if err := check(vk.CreateGraphicsPipelines(d.device, cache, uint32(len(gpci)), gpci, nil, pipelines),
		"vk.CreateGraphicsPipelines()"); err != nil {
		return nil, errors.Wrap(err, desc.Name)
	}
	return &Pipeline{device: d.device, pipeline: pipelines[0]}, nil
}

// Pipeline implements hal.Pipeline.
type Pipeline struct {
	device   vk.Device
	pipeline vk.Pipeline
}

// Release implements hal.Pipeline.
func (p *Pipeline) Release() {
	vk.DestroyPipeline(p.device, p.pipeline, nil)
}
