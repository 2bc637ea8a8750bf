// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements the native device layer on Vulkan.
package vkr

import (
	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// NewBuffer implements hal.Device. It creates, allocates and binds a
// new buffer. Host visible buffers get coherent mappable memory, all
// others device local memory.
func (d *Device) NewBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       vk.BufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check(vk.CreateBuffer(d.device, &createInfo, nil, &buffer), "vk.CreateBuffer()"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buffer, &req)
	req.Deref()

	prop := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		prop = hostProperties
	}
	memory, err := d.allocator.Malloc(req, prop)
	if err != nil {
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, errors.Wrapf(err, "memory of %s", desc.Name)
	}

	if err := check(vk.BindBufferMemory(d.device, buffer, memory.Get(), 0), "vk.BindBufferMemory()"); err != nil {
		memory.Release()
		vk.DestroyBuffer(d.device, buffer, nil)
		return nil, err
	}

	return &Buffer{
		device:      d.device,
		buffer:      buffer,
		memory:      memory,
		size:        desc.Size,
		hostVisible: desc.HostVisible,
	}, nil
}

// Buffer implements a generic vulkan buffer.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory *Memory

	size        uint64
	hostVisible bool
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Size implements hal.Buffer.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Map implements hal.Buffer.
func (b *Buffer) Map() ([]byte, error) {
	if !b.hostVisible {
		return nil, errors.Wrap(hal.ErrUnsupported, "map of a device local buffer")
	}
	return b.memory.Map(b.size)
}

// Unmap implements hal.Buffer.
func (b *Buffer) Unmap() {
	b.memory.Unmap()
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// image is implemented by owned and swapchain images.
type image interface {
	hal.Image
	Get() vk.Image
}

// NewImage implements hal.Device. Images are optimally tiled 2D images
// backed by device local memory.
func (d *Device) NewImage(desc hal.ImageDesc) (hal.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   1,
		Format:        vk.Format(desc.Format),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var img vk.Image
	if err := check(vk.CreateImage(d.device, &createInfo, nil, &img), "vk.CreateImage()"); err != nil {
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	req.Deref()

	memory, err := d.allocator.Malloc(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return nil, errors.Wrapf(err, "memory of %s", desc.Name)
	}
	if err := check(vk.BindImageMemory(d.device, img, memory.Get(), 0), "vk.BindImageMemory()"); err != nil {
		memory.Release()
		vk.DestroyImage(d.device, img, nil)
		return nil, err
	}

	return &Image{
		device: d.device,
		image:  img,
		memory: memory,
		desc:   desc,
	}, nil
}

// Image implements and abstracts vulkan image primitive.
type Image struct {
	device vk.Device
	image  vk.Image
	memory *Memory
	desc   hal.ImageDesc
}

// Get returns the vulkan Image handle.
func (i *Image) Get() vk.Image {
	return i.image
}

// Extent implements hal.Image.
func (i *Image) Extent() hal.Extent2D {
	return i.desc.Extent
}

// Format implements hal.Image.
func (i *Image) Format() hal.Format {
	return i.desc.Format
}

// MipLevels implements hal.Image.
func (i *Image) MipLevels() uint32 {
	return i.desc.MipLevels
}

// Release destroys the image and frees its memory.
func (i *Image) Release() {
	vk.DestroyImage(i.device, i.image, nil)
	i.memory.Release()
}

// NewImageView implements hal.Device.
func (d *Device) NewImageView(img hal.Image, desc hal.ImageViewDesc) (hal.ImageView, error) {
	native, ok := img.(image)
	if !ok {
		return nil, errors.Errorf("vkr: %T is not a vulkan image", img)
	}
	levels := desc.MipLevels
	if levels == 0 {
		levels = 1
	}

	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    native.Get(),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(desc.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(desc.Aspect),
			LevelCount: levels,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	if err := check(vk.CreateImageView(d.device, &ivci, nil, &view), "vk.CreateImageView()"); err != nil {
		return nil, err
	}
	return &ImageView{dev: d, view: view}, nil
}

// ImageView implements hal.ImageView.
type ImageView struct {
	dev  *Device
	view vk.ImageView
}

// Release destroys the view and every framebuffer made with it.
func (v *ImageView) Release() {
	v.dev.passes.forget(v.view)
	vk.DestroyImageView(v.dev.device, v.view, nil)
}

// NewSampler implements hal.Device.
func (d *Device) NewSampler(desc hal.SamplerDesc) (hal.Sampler, error) {
	filter := vk.Filter(desc.Filter)
	mipmapMode := vk.SamplerMipmapModeNearest
	if desc.Filter == hal.FilterLinear {
		mipmapMode = vk.SamplerMipmapModeLinear
	}

	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              mipmapMode,
		MaxLod:                  1000,
	}
	if desc.Anisotropy {
		sci.AnisotropyEnable = vk.True
		sci.MaxAnisotropy = 16
	}

	var sampler vk.Sampler
	if err := check(vk.CreateSampler(d.device, &sci, nil, &sampler), "vk.CreateSampler()"); err != nil {
		return nil, err
	}
	return &Sampler{device: d.device, sampler: sampler}, nil
}

// Sampler implements hal.Sampler.
type Sampler struct {
	device  vk.Device
	sampler vk.Sampler
}

// Release implements hal.Sampler.
func (s *Sampler) Release() {
	vk.DestroySampler(s.device, s.sampler, nil)
}

// NewShaderModule implements hal.Device.
func (d *Device) NewShaderModule(code []uint32) (hal.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var module vk.ShaderModule
	if err := check(vk.CreateShaderModule(d.device, &smci, nil, &module), "vk.CreateShaderModule()"); err != nil {
		return nil, err
	}
	return &ShaderModule{device: d.device, module: module}, nil
}

// ShaderModule implements hal.ShaderModule.
type ShaderModule struct {
	device vk.Device
	module vk.ShaderModule
}

// Release implements hal.ShaderModule.
func (s *ShaderModule) Release() {
	vk.DestroyShaderModule(s.device, s.module, nil)
}
