// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package hal

// Enumerations below carry the numeric values of their Vulkan
// counterparts, backends may convert them with a plain cast.

// Layout is an image memory layout.
type Layout uint32

// Image layouts.
const (
	LayoutUndefined              Layout = 0
	LayoutGeneral                Layout = 1
	LayoutColorAttachment        Layout = 2
	LayoutDepthStencilAttachment Layout = 3
	LayoutShaderReadOnly         Layout = 5
	LayoutTransferSrc            Layout = 6
	LayoutTransferDst            Layout = 7
	LayoutPresentSrc             Layout = 1000001002
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutGeneral:
		return "general"
	case LayoutColorAttachment:
		return "color-attachment"
	case LayoutDepthStencilAttachment:
		return "depth-stencil-attachment"
	case LayoutShaderReadOnly:
		return "shader-read-only"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	case LayoutPresentSrc:
		return "present-src"
	}
	return "layout(?)"
}

// Access is a set of memory access flags.
type Access uint32

// Access flags.
const (
	AccessNone                        Access = 0
	AccessShaderRead                  Access = 0x20
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
	AccessMemoryRead                  Access = 0x8000
)

// Stage is a set of pipeline stage flags.
type Stage uint32

// Pipeline stages.
const (
	StageTopOfPipe             Stage = 0x1
	StageVertexShader          Stage = 0x8
	StageFragmentShader        Stage = 0x80
	StageEarlyFragmentTests    Stage = 0x100
	StageColorAttachmentOutput Stage = 0x400
	StageTransfer              Stage = 0x1000
	StageBottomOfPipe          Stage = 0x2000
)

// Format is a native pixel or vertex attribute format.
type Format uint32

// Formats used by the render context.
const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR32Sint            Format = 99
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD32SfloatS8Uint    Format = 130
	FormatBC3UnormBlock      Format = 137
	FormatBC3SrgbBlock       Format = 138
	FormatBC5UnormBlock      Format = 141
	FormatBC5SnormBlock      Format = 142
)

// IsDepth reports whether the format has a depth component.
func (f Format) IsDepth() bool {
	return f == FormatD32SfloatS8Uint
}

// ColorSpace is a presentation color space.
type ColorSpace uint32

// Color spaces.
const (
	ColorSpaceSrgbNonlinear ColorSpace = 0
)

// PresentMode is a swapchain presentation mode.
type PresentMode uint32

// Present modes.
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

// BufferUsage is a set of native buffer usage flags.
type BufferUsage uint32

// Buffer usage flags.
const (
	BufferUsageTransferSrc BufferUsage = 0x1
	BufferUsageTransferDst BufferUsage = 0x2
	BufferUsageUniform     BufferUsage = 0x10
	BufferUsageIndex       BufferUsage = 0x40
	BufferUsageVertex      BufferUsage = 0x80
)

// ImageUsage is a set of native image usage flags.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthStencil    ImageUsage = 0x20
)

// Aspect selects the image planes a view or barrier touches.
type Aspect uint32

// Image aspects.
const (
	AspectColor   Aspect = 0x1
	AspectDepth   Aspect = 0x2
	AspectStencil Aspect = 0x4
)

// Filter is a sampling or blit filter.
type Filter uint32

// Filters.
const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

// CompareOp is a depth comparison.
type CompareOp uint32

// Compare operations.
const (
	CompareOpNever       CompareOp = 0
	CompareOpLess        CompareOp = 1
	CompareOpLessOrEqual CompareOp = 3
	CompareOpAlways      CompareOp = 7
)

// IndexType is the element type of an index buffer.
type IndexType uint32

// Index types.
const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

// DescriptorType is the kind of a descriptor binding.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeUniformBuffer        DescriptorType = 6
)

// ShaderStage is a set of shader stage flags.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageFragment ShaderStage = 0x10
)
