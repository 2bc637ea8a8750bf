// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"

	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// passKey identifies a render pass by its attachment formats. A zero
// depth format means the pass has no depth attachment.
type passKey struct {
	color hal.Format
	depth hal.Format
}

type framebuffer struct {
	handle vk.Framebuffer
	views  []vk.ImageView
	extent hal.Extent2D
}

// passCache keeps one render pass per attachment format pair and the
// framebuffers made against them. Attachments stay in their attachment
// layouts; callers transition them around the pass.
type passCache struct {
	lock         sync.Mutex
	dev          *Device
	passes       map[passKey]vk.RenderPass
	framebuffers []framebuffer
}

func newPassCache(dev *Device) *passCache {
	return &passCache{
		dev:    dev,
		passes: make(map[passKey]vk.RenderPass),
	}
}

func (p *passCache) renderPass(key passKey) (vk.RenderPass, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if pass, ok := p.passes[key]; ok {
		return pass, nil
	}
	if key.color == hal.FormatUndefined {
		return nil, errNoPass
	}

	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(key.color),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}
	if key.depth != hal.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         vk.Format(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpClear,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var pass vk.RenderPass
	if err := check(vk.CreateRenderPass(p.dev.device, &rpci, nil, &pass), "vk.CreateRenderPass()"); err != nil {
		return nil, err
	}
	p.passes[key] = pass
	p.dev.log.WithFields(log.Fields{
		"color": key.color,
		"depth": key.depth,
	}).Debug("Render pass created")
	return pass, nil
}

func sameViews(a, b []vk.ImageView) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p *passCache) framebuffer(pass vk.RenderPass, views []vk.ImageView, extent hal.Extent2D) (vk.Framebuffer, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, fb := range p.framebuffers {
		if fb.extent == extent && sameViews(fb.views, views) {
			return fb.handle, nil
		}
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var handle vk.Framebuffer
	if err := check(vk.CreateFramebuffer(p.dev.device, &fci, nil, &handle), "vk.CreateFramebuffer()"); err != nil {
		return nil, err
	}
	p.framebuffers = append(p.framebuffers, framebuffer{
		handle: handle,
		views:  append([]vk.ImageView(nil), views...),
		extent: extent,
	})
	return handle, nil
}

// forget destroys every framebuffer that uses the view.
func (p *passCache) forget(view vk.ImageView) {
	p.lock.Lock()
	defer p.lock.Unlock()

	kept := p.framebuffers[:0]
	for _, fb := range p.framebuffers {
		uses := false
		for _, v := range fb.views {
			if v == view {
				uses = true
				break
			}
		}
		if uses {
			vk.DestroyFramebuffer(p.dev.device, fb.handle, nil)
			continue
		}
		kept = append(kept, fb)
	}
	p.framebuffers = kept
}

func (p *passCache) release() {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, fb := range p.framebuffers {
		vk.DestroyFramebuffer(p.dev.device, fb.handle, nil)
	}
	p.framebuffers = nil
	for key, pass := range p.passes {
		vk.DestroyRenderPass(p.dev.device, pass, nil)
		delete(p.passes, key)
	}
}
