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

type descriptor struct {
	resourceSlot
	info   gfx.DescriptorInfo
	layout hal.DescriptorSetLayout
	set    hal.DescriptorSet

	writes    []descriptorWrite
	refreshed uint64
}

// descriptorWrite is what a binding was last written with.
type descriptorWrite struct {
	texture    *imageTexture
	sampler    hal.Sampler
	generation uint64
}

// DescriptorBindings lays bindings out at their position in the list.
func DescriptorBindings(info gfx.DescriptorInfo) ([]hal.DescriptorBinding, error) {
	out := make([]hal.DescriptorBinding, len(info.Bindings))
	for idx, b := range info.Bindings {
		if b.Type != gfx.ImageBinding {
			return nil, errors.Errorf("descriptor %q binding %d has unsupported type %d", info.Name, idx, b.Type)
		}
		out[idx] = hal.DescriptorBinding{
			Binding: uint32(idx),
			Type:    hal.DescriptorTypeCombinedImageSampler,
			Stages:  hal.ShaderStageFragment | hal.ShaderStageVertex,
		}
	}
	return out, nil
}

func (c *Context) newDescriptor(info gfx.DescriptorInfo) (_ *descriptor, err error) {
	bindings, err := DescriptorBindings(info)
	if err != nil {
		return nil, err
	}

	d := &descriptor{info: info, writes: make([]descriptorWrite, len(info.Bindings))}
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	if d.layout, err = c.device.NewDescriptorSetLayout(bindings); err != nil {
		return nil, errors.Wrapf(err, "descriptor %q layout", info.Name)
	}
	if d.set, err = c.device.AllocateDescriptorSet(d.layout); err != nil {
		return nil, errors.Wrapf(err, "descriptor %q set", info.Name)
	}

	for idx, b := range info.Bindings {
		if !b.Image.IsValid() {
			continue
		}
		it, err := lookup(c, &c.imageTextures, b.Image.Handle)
		if err != nil {
			return nil, errors.Wrapf(err, "descriptor %q binding %d", info.Name, idx)
		}
		c.writeDescriptor(d, idx, it, c.samplers[gfx.PointSampler])
	}
	return d, nil
}

// writeDescriptor points a binding at the current image of t. It
// reports false when t has no data yet.
func (c *Context) writeDescriptor(d *descriptor, binding int, t *imageTexture, sampler hal.Sampler) bool {
	t.lock.Lock()
	tex, generation := t.tex, t.generation
	t.lock.Unlock()
	if tex == nil {
		return false
	}
	c.device.WriteImageDescriptor(d.set, uint32(binding), tex.view, sampler)
	d.writes[binding] = descriptorWrite{texture: t, sampler: sampler, generation: generation}
	return true
}

// refreshDescriptor rewrites bindings whose texture received new data
// since they were written. It runs before the first bind of d in a
// frame, while no submitted frame can be using the set.
func (c *Context) refreshDescriptor(d *descriptor) {
	if d.refreshed == c.frames {
		return
	}
	d.refreshed = c.frames
	for idx, w := range d.writes {
		if w.texture == nil || w.texture.isDeleted() {
			continue
		}
		w.texture.lock.Lock()
		stale := w.texture.generation != w.generation
		w.texture.lock.Unlock()
		if stale {
			c.writeDescriptor(d, idx, w.texture, w.sampler)
		}
	}
}

func (d *descriptor) release() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.set != nil {
		d.set.Release()
		d.set = nil
	}
	if d.layout != nil {
		d.layout.Release()
		d.layout = nil
	}
}
