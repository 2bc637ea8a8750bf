// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package hal describes the native graphics device the render context
// records and submits work through. The contract follows the explicit
// model of Vulkan: command buffers, fences, semaphores, image layouts
// and pipeline barriers are all visible to the caller.
package hal

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

// Sentinel errors reported by devices.
var (
	// ErrTimeout is returned when a wait did not finish in time.
	ErrTimeout = errors.New("hal: wait timed out")

	// ErrOutOfDate means the swapchain no longer matches the surface.
	ErrOutOfDate = errors.New("hal: swapchain out of date")

	// ErrSuboptimal means presentation succeeded but the swapchain
	// should be recreated.
	ErrSuboptimal = errors.New("hal: swapchain suboptimal")

	// ErrNoDevice is returned when no physical device is suitable.
	ErrNoDevice = errors.New("hal: no suitable device")

	// ErrUnsupported is returned for requests a device cannot serve.
	ErrUnsupported = errors.New("hal: unsupported")
)

// Releasable is any native object that has to be freed explicitly.
type Releasable interface {
	Release()
}

// SurfaceSource is the window side of surface creation.
type SurfaceSource interface {
	// InstanceExtensions lists instance extensions the window system needs.
	InstanceExtensions() []string

	// CreateSurface creates a presentation surface for the native
	// instance and returns a pointer to the native surface handle.
	CreateSurface(instance interface{}) (unsafe.Pointer, error)
}

// DeviceConfig configures device creation.
type DeviceConfig struct {
	ApplicationName string
	DebugMode       bool
	Extensions      []string
}

// Backend opens devices.
type Backend interface {
	Open(surface SurfaceSource, cfg DeviceConfig) (Device, error)
}

// QueueFamilies reports which queue families serve graphics and presentation.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
}

// Extent2D is a size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Offset3D is a texel position.
type Offset3D struct {
	X, Y, Z int32
}

// Extent3D is a size in texels.
type Extent3D struct {
	Width, Height, Depth uint32
}

// SurfaceCapabilities mirrors the surface limits of the device.
type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// SurfaceFormat is a presentable format and color space pair.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SwapchainDesc describes a swapchain to create.
type SwapchainDesc struct {
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent2D
	ImageCount  uint32
	Concurrent  bool
	Families    QueueFamilies
	Old         Swapchain
}

// BufferDesc describes a buffer. HostVisible buffers can be mapped.
type BufferDesc struct {
	Name        string
	Size        uint64
	Usage       BufferUsage
	HostVisible bool
}

// ImageDesc describes a 2D image with device local memory.
type ImageDesc struct {
	Name      string
	Extent    Extent2D
	Format    Format
	MipLevels uint32
	Usage     ImageUsage
}

// ImageViewDesc describes a view over an image.
type ImageViewDesc struct {
	Format    Format
	Aspect    Aspect
	MipLevels uint32
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Filter     Filter
	Anisotropy bool
}

// DescriptorBinding is one binding of a descriptor set layout.
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStage
}

// VertexAttribute places one attribute inside a vertex.
type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

// PipelineDesc describes a graphics pipeline with triangle list
// topology, fill rasterization and dynamic viewport and scissor.
type PipelineDesc struct {
	Name         string
	Layout       PipelineLayout
	Vertex       ShaderModule
	Fragment     ShaderModule
	Stride       uint32
	Attributes   []VertexAttribute
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	ColorFormat  Format
	DepthFormat  Format
}

// Device is a logical device with its queue and surface.
type Device interface {
	Releasable

	Name() string
	QueueFamilies() QueueFamilies
	Queue() Queue
	WaitIdle() error

	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)

	NewBuffer(desc BufferDesc) (Buffer, error)
	NewImage(desc ImageDesc) (Image, error)
	NewImageView(image Image, desc ImageViewDesc) (ImageView, error)
	NewSampler(desc SamplerDesc) (Sampler, error)
	NewShaderModule(code []uint32) (ShaderModule, error)

	NewDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	AllocateDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error)
	WriteImageDescriptor(set DescriptorSet, binding uint32, view ImageView, sampler Sampler)

	NewPipelineLayout(sets []DescriptorSetLayout) (PipelineLayout, error)
	NewPipeline(desc PipelineDesc) (Pipeline, error)

	NewCommandPool() (CommandPool, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)

	// WaitForFence blocks until the fence signals or returns
	// ErrTimeout once timeout has passed.
	WaitForFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error
}

// Queue submits recorded work and presents images.
type Queue interface {
	Submit(info SubmitInfo) error

	// Present may return ErrOutOfDate or ErrSuboptimal.
	Present(info PresentInfo) error
}

// SubmitInfo is one queue submission.
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	WaitStages     []Stage
	Signal         []Semaphore
	Fence          Fence
}

// PresentInfo presents one swapchain image.
type PresentInfo struct {
	Swapchain Swapchain
	Index     uint32
	Wait      []Semaphore
}

// Swapchain is a set of presentable images.
type Swapchain interface {
	Releasable

	Images() []Image

	// Acquire returns the index of the next image, signaling sem once
	// it can be written. It may return ErrOutOfDate or ErrTimeout.
	Acquire(sem Semaphore, timeout time.Duration) (uint32, error)
}

// Buffer is a native buffer and its memory.
type Buffer interface {
	Releasable

	Size() uint64

	// Map returns the buffer memory. Only host visible buffers map.
	Map() ([]byte, error)
	Unmap()
}

// Image is a native image and its memory.
type Image interface {
	Releasable

	Extent() Extent2D
	Format() Format
	MipLevels() uint32
}

// ImageView is a view over an Image.
type ImageView interface {
	Releasable
}

// Sampler is a texture sampler.
type Sampler interface {
	Releasable
}

// ShaderModule is compiled shader bytecode.
type ShaderModule interface {
	Releasable
}

// DescriptorSetLayout is the shape of a descriptor set.
type DescriptorSetLayout interface {
	Releasable
}

// DescriptorSet is an allocated descriptor set.
type DescriptorSet interface {
	Releasable
}

// PipelineLayout is the set of layouts a pipeline binds.
type PipelineLayout interface {
	Releasable
}

// Pipeline is a graphics pipeline state object.
type Pipeline interface {
	Releasable
}

// Fence signals the host once submitted work completes.
type Fence interface {
	Releasable
}

// Semaphore orders work between queue operations.
type Semaphore interface {
	Releasable
}

// CommandPool owns command buffers. Reset returns every buffer
// allocated from it to the initial state.
type CommandPool interface {
	Releasable

	Allocate() (CommandBuffer, error)
	Reset() error
}

// ImageBarrier transitions every mip level of an image.
type ImageBarrier struct {
	Image     Image
	Aspect    Aspect
	OldLayout Layout
	NewLayout Layout
	SrcAccess Access
	DstAccess Access
	SrcStage  Stage
	DstStage  Stage
}

// BufferCopy is a region copied between buffers.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferImageCopy copies tightly packed buffer data into one mip level.
type BufferImageCopy struct {
	BufferOffset uint64
	MipLevel     uint32
	Extent       Extent3D
}

// ImageCopy copies texels between images of the same format.
type ImageCopy struct {
	SrcOffset Offset3D
	DstOffset Offset3D
	Extent    Extent3D
}

// ImageBlit copies a region with scaling. Offsets are region corners.
type ImageBlit struct {
	SrcOffsets [2]Offset3D
	DstOffsets [2]Offset3D
}

// Viewport is a rendering viewport.
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Rect2D is a scissor rectangle.
type Rect2D struct {
	X, Y   int32
	Extent Extent2D
}

// RenderingInfo begins a render pass against a color and an
// optional depth attachment, clearing both.
type RenderingInfo struct {
	Color        ImageView
	ColorFormat  Format
	Depth        ImageView
	DepthFormat  Format
	Extent       Extent2D
	ClearColor   [4]float32
	ClearDepth   float32
	ClearStencil uint32
}

// CommandBuffer records commands. Layouts given to copy commands are
// implied: sources are transfer-src, destinations transfer-dst.
type CommandBuffer interface {
	Begin() error
	End() error

	PipelineBarrier(barrier ImageBarrier)

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, regions []BufferImageCopy)
	CopyImage(src, dst Image, region ImageCopy)
	BlitImage(src, dst Image, region ImageBlit, filter Filter)

	BeginRendering(info RenderingInfo)
	EndRendering()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect2D)

	BindPipeline(pipeline Pipeline)
	BindDescriptorSet(layout PipelineLayout, set DescriptorSet)
	BindVertexBuffer(buffer Buffer)
	BindIndexBuffer(buffer Buffer, indexType IndexType)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}
