// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"
	"time"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
)

var compositeAlphaFlags = []vk.CompositeAlphaFlagBits{
	vk.CompositeAlphaOpaqueBit,
	vk.CompositeAlphaPreMultipliedBit,
	vk.CompositeAlphaPostMultipliedBit,
	vk.CompositeAlphaInheritBit,
}

// NewSwapchain implements hal.Device.
func (d *Device) NewSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return nil, err
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	scci := vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         d.surface,
		MinImageCount:   desc.ImageCount,
		ImageFormat:     vk.Format(desc.Format.Format),
		ImageColorSpace: vk.ColorSpace(desc.Format.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
		},
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentMode(desc.PresentMode),
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
	}
	if desc.Concurrent {
		scci.ImageSharingMode = vk.SharingModeConcurrent
		scci.QueueFamilyIndexCount = 2
		scci.PQueueFamilyIndices = []uint32{desc.Families.Graphics, desc.Families.Present}
	}
	if old, ok := desc.Old.(*Swapchain); ok && old != nil {
		scci.OldSwapchain = old.swapchain
	}

	var swapchain vk.Swapchain
	if err := check(vk.CreateSwapchain(d.device, &scci, nil, &swapchain), "vk.CreateSwapchain()"); err != nil {
		return nil, err
	}
	sc := &Swapchain{device: d.device, swapchain: swapchain}

	var numImages uint32
	if err := check(vk.GetSwapchainImages(d.device, swapchain, &numImages, nil), "vk.GetSwapchainImages(num)"); err != nil {
		sc.Release()
		return nil, err
	}
	images := make([]vk.Image, numImages)
	if err := check(vk.GetSwapchainImages(d.device, swapchain, &numImages, images), "vk.GetSwapchainImages(images)"); err != nil {
		sc.Release()
		return nil, err
	}

	for _, img := range images {
		sc.images = append(sc.images, &swapchainImage{
			image:  img,
			extent: desc.Extent,
			format: desc.Format.Format,
		})
	}
	return sc, nil
}

// Swapchain implements hal.Swapchain.
type Swapchain struct {
	device    vk.Device
	swapchain vk.Swapchain
	images    []hal.Image
}

// Images implements hal.Swapchain.
func (s *Swapchain) Images() []hal.Image {
	return s.images
}

// Acquire implements hal.Swapchain.
func (s *Swapchain) Acquire(sem hal.Semaphore, timeout time.Duration) (uint32, error) {
	var (
		index uint32
		fence vk.Fence
	)
	result := vk.AcquireNextImage(s.device, s.swapchain, nanoseconds(timeout), sem.(*Semaphore).semaphore, fence, &index)
	if err := check(result, "vk.AcquireNextImage()"); err != nil {
		return 0, err
	}
	return index, nil
}

// Release destroys the swapchain. Its images go with it.
func (s *Swapchain) Release() {
	vk.DestroySwapchain(s.device, s.swapchain, nil)
}

// swapchainImage is an image owned by a swapchain.
type swapchainImage struct {
	image  vk.Image
	extent hal.Extent2D
	format hal.Format
}

// Get returns the vulkan Image handle.
func (i *swapchainImage) Get() vk.Image {
	return i.image
}

func (i *swapchainImage) Extent() hal.Extent2D {
	return i.extent
}

func (i *swapchainImage) Format() hal.Format {
	return i.format
}

func (i *swapchainImage) MipLevels() uint32 {
	return 1
}

// Release is a no-op, the swapchain owns the image.
func (i *swapchainImage) Release() {}

// Queue implements hal.Queue. Submissions from upload workers and
// the render goroutine are serialized.
type Queue struct {
	lock     sync.Mutex
	graphics vk.Queue
	present  vk.Queue
}

// Submit implements hal.Queue.
func (q *Queue) Submit(info hal.SubmitInfo) error {
	buffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cb := range info.CommandBuffers {
		buffers[i] = cb.(*CommandBuffer).buffer
	}
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = vk.PipelineStageFlags(s)
	}

	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(info.Wait)),
		PWaitSemaphores:      semaphores(info.Wait),
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(info.Signal)),
		PSignalSemaphores:    semaphores(info.Signal),
	}

	var fence vk.Fence
	if info.Fence != nil {
		fence = info.Fence.(*Fence).fence
	}

	q.lock.Lock()
	defer q.lock.Unlock()
	return check(vk.QueueSubmit(q.graphics, 1, []vk.SubmitInfo{submit}, fence), "vk.QueueSubmit()")
}

// Present implements hal.Queue.
func (q *Queue) Present(info hal.PresentInfo) error {
	sc, ok := info.Swapchain.(*Swapchain)
	if !ok {
		return errors.Errorf("vkr: %T is not a vulkan swapchain", info.Swapchain)
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.Wait)),
		PWaitSemaphores:    semaphores(info.Wait),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.swapchain},
		PImageIndices:      []uint32{info.Index},
	}

	q.lock.Lock()
	result := vk.QueuePresent(q.present, &presentInfo)
	q.lock.Unlock()

	if result == vk.Suboptimal {
		return hal.ErrSuboptimal
	}
	return check(result, "vk.QueuePresent()")
}

func semaphores(in []hal.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(in))
	for i, s := range in {
		out[i] = s.(*Semaphore).semaphore
	}
	return out
}
