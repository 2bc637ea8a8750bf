// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

// ResourceKind enumerates the resource tables of a render context.
type ResourceKind int

// Resource kinds.
const (
	KindBuffer ResourceKind = iota
	KindImageTexture
	KindRenderTexture
	KindShader
	KindPipeline
	KindDescriptor
)

// ResourceKinds lists every kind in declaration order.
var ResourceKinds = []ResourceKind{
	KindBuffer,
	KindImageTexture,
	KindRenderTexture,
	KindShader,
	KindPipeline,
	KindDescriptor,
}

func (k ResourceKind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImageTexture:
		return "image texture"
	case KindRenderTexture:
		return "render texture"
	case KindShader:
		return "shader"
	case KindPipeline:
		return "pipeline"
	case KindDescriptor:
		return "descriptor"
	}
	return "unknown"
}

// BufferType hints at how a buffer is going to be used.
type BufferType int

// Buffer types.
const (
	StagingBuffer BufferType = iota
	VertexIndexDataBuffer
	UniformDataBuffer
)

// BufferUsage is a set of buffer usage flags.
type BufferUsage uint32

// Buffer usage flags.
const (
	VertexBufferUsage  BufferUsage = 1 << 1
	IndexBufferUsage   BufferUsage = 1 << 2
	UniformBufferUsage BufferUsage = 1 << 3
	TransferSrcUsage   BufferUsage = 1 << 4
	TransferDstUsage   BufferUsage = 1 << 5
)

// Has reports whether all flags in u are set.
func (b BufferUsage) Has(u BufferUsage) bool {
	return b&u == u
}

// BufferInfo describes a buffer to create.
type BufferInfo struct {
	Name  string
	Size  uint32
	Type  BufferType
	Usage BufferUsage
}

// TextureInfo holds the dimensions shared by all texture kinds.
// MipCount should be 1 or higher.
type TextureInfo struct {
	Width    uint32
	Height   uint32
	MipCount uint32
}

// ImageTextureInfo describes a sampled texture filled from data.
type ImageTextureInfo struct {
	TextureInfo
	Name string
}

// RenderTextureType selects the attachment kind of a render texture.
type RenderTextureType int

// Render texture types.
const (
	ColorRenderTexture RenderTextureType = iota
	ColorOpaqueRenderTexture
	DepthRenderTexture
)

// RenderTextureInfo describes an attachment that can be rendered to.
type RenderTextureInfo struct {
	TextureInfo
	Name string
	Type RenderTextureType
}

// TextureData is a tightly packed mip chain.
type TextureData struct {
	Width    uint32
	Height   uint32
	MipCount uint32
	MipData  []byte
	Format   TextureFormat
}

// TextureCopyData describes a region copied from Source into a texture.
type TextureCopyData struct {
	SourceX uint32
	SourceY uint32
	DestX   uint32
	DestY   uint32
	Width   uint32
	Height  uint32
	Source  ImageTexture
}

// ShaderType identifies a shader stage.
type ShaderType int

// Shader stages.
const (
	VertexShader ShaderType = iota
	FragmentShader
)

// ShaderInfo carries compiled vertex and fragment bytecode.
type ShaderInfo struct {
	Name         string
	VertexData   []uint32
	FragmentData []uint32
}

// VertexAttributeFormat is the scalar or vector type of an attribute.
type VertexAttributeFormat int

// Vertex attribute formats.
const (
	IntAttribute VertexAttributeFormat = iota
	FloatAttribute
	Float2Attribute
	Float3Attribute
	Float4Attribute
)

// Size returns the attribute size in bytes.
func (f VertexAttributeFormat) Size() uint32 {
	switch f {
	case IntAttribute, FloatAttribute:
		return 4
	case Float2Attribute:
		return 8
	case Float3Attribute:
		return 12
	case Float4Attribute:
		return 16
	}
	return 0
}

// VertexAttributeInfo is one attribute in a vertex layout. Order matters.
type VertexAttributeInfo struct {
	Name   string
	Format VertexAttributeFormat
}

// PipelineInfo describes a graphics pipeline.
type PipelineInfo struct {
	Name             string
	Shader           ShaderInfo
	Descriptors      []Descriptor
	VertexAttributes []VertexAttributeInfo
	IgnoreDepth      bool

	// RenderToSwapchain builds the pipeline for the swapchain surface
	// format. Frames render to off-screen targets, so such a pipeline
	// cannot be bound to any open pass yet.
	RenderToSwapchain bool
}

// DescriptorBindingType is the kind of resource bound at a binding.
type DescriptorBindingType int

// Descriptor binding types.
const (
	ImageBinding DescriptorBindingType = iota
)

// DescriptorBindingInfo is a single binding. Its index in
// DescriptorInfo.Bindings is the binding number seen by shaders.
type DescriptorBindingInfo struct {
	Type  DescriptorBindingType
	Image ImageTexture
}

// DescriptorInfo describes a descriptor set.
type DescriptorInfo struct {
	Name     string
	Bindings []DescriptorBindingInfo
}

// SamplerType selects texture filtering.
type SamplerType int

// Sampler types.
const (
	PointSampler SamplerType = iota
	LinearSampler
	AnisotropicSampler
)

// DescriptorUpdateInfo writes a texture into a descriptor binding.
type DescriptorUpdateInfo struct {
	Binding int
	Source  ImageTexture
	Sampler SamplerType
}
