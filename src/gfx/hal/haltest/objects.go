// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package haltest

import (
	"time"

	"github.com/devblok/korugfx/src/gfx/hal"
)

type object struct {
	dev      *Device
	kind     string
	released bool
}

// Release frees the object. Releasing twice is reported in Problems.
func (o *object) Release() {
	o.dev.untrack(o.kind, &o.released)
}

// Released reports whether Release was called.
func (o *object) Released() bool {
	o.dev.lock.Lock()
	defer o.dev.lock.Unlock()
	return o.released
}

// Buffer is a byte slice.
type Buffer struct {
	object
	Desc hal.BufferDesc
	data []byte
}

// Size implements hal.Buffer.
func (b *Buffer) Size() uint64 {
	return b.Desc.Size
}

// Map implements hal.Buffer.
func (b *Buffer) Map() ([]byte, error) {
	if err := b.dev.fail("Map"); err != nil {
		return nil, err
	}
	if !b.Desc.HostVisible {
		b.dev.problem("map of device local buffer %q", b.Desc.Name)
		return nil, hal.ErrUnsupported
	}
	return b.data, nil
}

// Unmap implements hal.Buffer.
func (b *Buffer) Unmap() {}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.dev.lock.Lock()
	defer b.dev.lock.Unlock()
	return append([]byte(nil), b.data...)
}

// Image holds one byte slice per mip level and tracks its layout.
type Image struct {
	object
	Desc   hal.ImageDesc
	mips   [][]byte
	layout hal.Layout
}

func newImage(d *Device, kind string, desc hal.ImageDesc) *Image {
	img := &Image{object: object{dev: d, kind: kind}, Desc: desc}
	for mip := uint32(0); mip < desc.MipLevels; mip++ {
		img.mips = append(img.mips, make([]byte, mipBytes(desc.Format, desc.Extent.Width>>mip, desc.Extent.Height>>mip)))
	}
	return img
}

// Extent implements hal.Image.
func (i *Image) Extent() hal.Extent2D {
	return i.Desc.Extent
}

// Format implements hal.Image.
func (i *Image) Format() hal.Format {
	return i.Desc.Format
}

// MipLevels implements hal.Image.
func (i *Image) MipLevels() uint32 {
	return i.Desc.MipLevels
}

// Layout returns the layout the last executed barrier left the image in.
func (i *Image) Layout() hal.Layout {
	i.dev.lock.Lock()
	defer i.dev.lock.Unlock()
	return i.layout
}

// Mip returns a copy of the contents of a mip level.
func (i *Image) Mip(level uint32) []byte {
	i.dev.lock.Lock()
	defer i.dev.lock.Unlock()
	if int(level) >= len(i.mips) {
		return nil
	}
	return append([]byte(nil), i.mips[level]...)
}

// ImageView is a view over an Image.
type ImageView struct {
	object
	Image *Image
	Desc  hal.ImageViewDesc
}

// Sampler records its description.
type Sampler struct {
	object
	Desc hal.SamplerDesc
}

// ShaderModule keeps its code.
type ShaderModule struct {
	object
	Code []uint32
}

// DescriptorSetLayout keeps its bindings.
type DescriptorSetLayout struct {
	object
	Bindings []hal.DescriptorBinding
}

// ImageWrite is an image and sampler written into a descriptor binding.
type ImageWrite struct {
	View    *ImageView
	Sampler *Sampler
}

// DescriptorSet keeps the writes made to it.
type DescriptorSet struct {
	object
	Layout *DescriptorSetLayout
	writes map[uint32]ImageWrite
}

// Binding returns the last write to the binding.
func (s *DescriptorSet) Binding(binding uint32) (ImageWrite, bool) {
	s.dev.lock.Lock()
	defer s.dev.lock.Unlock()
	w, ok := s.writes[binding]
	return w, ok
}

// PipelineLayout keeps its set layouts.
type PipelineLayout struct {
	object
	Sets []hal.DescriptorSetLayout
}

// Pipeline keeps its description.
type Pipeline struct {
	object
	Desc hal.PipelineDesc
}

// Fence is signaled by Queue.Submit.
type Fence struct {
	object
	signaled bool
}

// Signaled reports the fence state.
func (f *Fence) Signaled() bool {
	f.dev.lock.Lock()
	defer f.dev.lock.Unlock()
	return f.signaled
}

// Semaphore is inert.
type Semaphore struct {
	object
}

// Swapchain hands out its images round robin.
type Swapchain struct {
	object
	Desc   hal.SwapchainDesc
	images []*Image
	next   uint32
}

// Images implements hal.Swapchain.
func (s *Swapchain) Images() []hal.Image {
	out := make([]hal.Image, len(s.images))
	for idx, img := range s.images {
		out[idx] = img
	}
	return out
}

// Acquire implements hal.Swapchain.
func (s *Swapchain) Acquire(sem hal.Semaphore, timeout time.Duration) (uint32, error) {
	if err := s.dev.fail("Acquire"); err != nil {
		return 0, err
	}
	s.dev.lock.Lock()
	defer s.dev.lock.Unlock()

	if s.dev.outOfDate > 0 {
		s.dev.outOfDate--
		return 0, hal.ErrOutOfDate
	}
	if len(s.images) == 0 {
		return 0, hal.ErrOutOfDate
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return idx, nil
}

// CommandPool hands out command buffers.
type CommandPool struct {
	object
	buffers []*CommandBuffer
	resets  int
}

// Allocate implements hal.CommandPool.
func (p *CommandPool) Allocate() (hal.CommandBuffer, error) {
	if err := p.dev.fail("Allocate"); err != nil {
		return nil, err
	}
	p.dev.lock.Lock()
	defer p.dev.lock.Unlock()
	cb := &CommandBuffer{dev: p.dev, pool: p}
	p.buffers = append(p.buffers, cb)
	return cb, nil
}

// Reset implements hal.CommandPool.
func (p *CommandPool) Reset() error {
	if err := p.dev.fail("Reset"); err != nil {
		return err
	}
	p.dev.lock.Lock()
	defer p.dev.lock.Unlock()
	for _, cb := range p.buffers {
		cb.cmds = nil
		cb.recording = false
	}
	p.resets++
	return nil
}

// Resets returns how many times the pool was reset.
func (p *CommandPool) Resets() int {
	p.dev.lock.Lock()
	defer p.dev.lock.Unlock()
	return p.resets
}

func bytesPerTexel(f hal.Format) uint64 {
	switch f {
	case hal.FormatR8G8B8A8Unorm, hal.FormatR8G8B8A8Srgb, hal.FormatB8G8R8A8Unorm, hal.FormatB8G8R8A8Srgb:
		return 4
	case hal.FormatD32SfloatS8Uint:
		return 8
	}
	return 0
}

func compressed(f hal.Format) bool {
	switch f {
	case hal.FormatBC3UnormBlock, hal.FormatBC3SrgbBlock, hal.FormatBC5UnormBlock, hal.FormatBC5SnormBlock:
		return true
	}
	return false
}

// mipBytes is the storage of a w by h level. Block formats store 16
// bytes per 4x4 block and never less than one block.
func mipBytes(f hal.Format, w, h uint32) uint64 {
	if compressed(f) {
		if w < 4 {
			w = 4
		}
		if h < 4 {
			h = 4
		}
		return uint64(w) * uint64(h)
	}
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return uint64(w) * uint64(h) * bytesPerTexel(f)
}
