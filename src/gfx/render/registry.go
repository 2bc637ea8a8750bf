// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx"
)

// resourceSlot is embedded by everything stored in a resource table.
// Tables never shrink; a deleted resource keeps its slot.
type resourceSlot struct {
	lock    sync.Mutex
	deleted int32
}

func (s *resourceSlot) isDeleted() bool {
	return atomic.LoadInt32(&s.deleted) == 1
}

func (s *resourceSlot) markDeleted() bool {
	return atomic.CompareAndSwapInt32(&s.deleted, 0, 1)
}

type resource interface {
	release()
	isDeleted() bool
	markDeleted() bool
}

// lookup resolves a handle to a live resource.
func lookup[T resource](c *Context, table *gfx.HandleTable[T], h gfx.Handle) (T, error) {
	item, err := table.Get(h)
	if err != nil {
		return item, err
	}
	if item.isDeleted() {
		var zero T
		return zero, gfx.StatusInvalidHandle
	}
	return item, nil
}

// kind binds a resource kind to its table and constructor.
type kind struct {
	create func(c *Context, info interface{}) (gfx.Handle, error)
	lookup func(c *Context, h gfx.Handle) (resource, error)
	each   func(c *Context, fn func(gfx.Handle, resource))
}

func register[T resource, I any](table func(*Context) *gfx.HandleTable[T], build func(*Context, I) (T, error)) kind {
	return kind{
		create: func(c *Context, info interface{}) (gfx.Handle, error) {
			in, ok := info.(I)
			if !ok {
				return gfx.InvalidHandle, errors.Errorf("render: %T cannot describe this kind, expected %T", info, in)
			}
			item, err := build(c, in)
			if err != nil {
				return gfx.InvalidHandle, err
			}
			return table(c).Add(item), nil
		},
		lookup: func(c *Context, h gfx.Handle) (resource, error) {
			item, err := lookup(c, table(c), h)
			if err != nil {
				return nil, err
			}
			return item, nil
		},
		each: func(c *Context, fn func(gfx.Handle, resource)) {
			table(c).Each(func(h gfx.Handle, item T) {
				fn(h, item)
			})
		},
	}
}

// registry maps every resource kind to its constructor.
var registry map[gfx.ResourceKind]kind

func init() {
	registry = map[gfx.ResourceKind]kind{
		gfx.KindBuffer: register(
			func(c *Context) *gfx.HandleTable[*buffer] { return &c.buffers },
			(*Context).newBuffer),
		gfx.KindImageTexture: register(
			func(c *Context) *gfx.HandleTable[*imageTexture] { return &c.imageTextures },
			(*Context).newImageTexture),
		gfx.KindRenderTexture: register(
			func(c *Context) *gfx.HandleTable[*renderTexture] { return &c.renderTextures },
			(*Context).newRenderTexture),
		gfx.KindShader: register(
			func(c *Context) *gfx.HandleTable[*shader] { return &c.shaders },
			(*Context).newShader),
		gfx.KindPipeline: register(
			func(c *Context) *gfx.HandleTable[*pipeline] { return &c.pipelines },
			(*Context).newPipeline),
		gfx.KindDescriptor: register(
			func(c *Context) *gfx.HandleTable[*descriptor] { return &c.descriptors },
			(*Context).newDescriptor),
	}
}

// Registered reports whether a constructor exists for the kind.
func Registered(k gfx.ResourceKind) bool {
	_, ok := registry[k]
	return ok
}

func (c *Context) create(op string, k gfx.ResourceKind, info interface{}) (gfx.Handle, error) {
	if !c.running() {
		return gfx.InvalidHandle, c.protocol(op, gfx.StatusNotInitialized)
	}
	entry, ok := registry[k]
	if !ok {
		return gfx.InvalidHandle, errors.Errorf("render: no constructor for %s", k)
	}
	h, err := entry.create(c, info)
	if err != nil {
		c.log.WithField("op", op).WithError(err).Error("Resource creation failed")
		return gfx.InvalidHandle, err
	}
	return h, nil
}

// CreateBuffer creates a buffer described by info.
func (c *Context) CreateBuffer(info gfx.BufferInfo) (gfx.Buffer, error) {
	if info.Name == "" {
		info.Name = DefaultBufferName
	}
	h, err := c.create("CreateBuffer", gfx.KindBuffer, info)
	return gfx.Buffer{Handle: h, Info: info}, err
}

// CreateVertexBuffer creates a buffer usable as vertex input and as an
// upload destination.
func (c *Context) CreateVertexBuffer(info gfx.BufferInfo) (gfx.VertexBuffer, error) {
	info.Usage |= gfx.VertexBufferUsage | gfx.TransferDstUsage
	if info.Type == gfx.StagingBuffer {
		info.Type = gfx.VertexIndexDataBuffer
	}
	b, err := c.CreateBuffer(info)
	return gfx.VertexBuffer{Buffer: b}, err
}

// CreateIndexBuffer creates a buffer of uint32 indices that can be
// uploaded to.
func (c *Context) CreateIndexBuffer(info gfx.BufferInfo) (gfx.IndexBuffer, error) {
	info.Usage |= gfx.IndexBufferUsage | gfx.TransferDstUsage
	if info.Type == gfx.StagingBuffer {
		info.Type = gfx.VertexIndexDataBuffer
	}
	b, err := c.CreateBuffer(info)
	return gfx.IndexBuffer{Buffer: b}, err
}

// CreateImageTexture creates an empty texture; its image is made by
// SetImageTextureData.
func (c *Context) CreateImageTexture(info gfx.ImageTextureInfo) (gfx.ImageTexture, error) {
	h, err := c.create("CreateImageTexture", gfx.KindImageTexture, info)
	return gfx.ImageTexture{Handle: h, Info: info}, err
}

// CreateRenderTexture creates an attachment of the requested type.
func (c *Context) CreateRenderTexture(info gfx.RenderTextureInfo) (gfx.RenderTexture, error) {
	h, err := c.create("CreateRenderTexture", gfx.KindRenderTexture, info)
	return gfx.RenderTexture{Handle: h, Info: info}, err
}

// CreateShader creates the shader modules of a vertex and fragment pair.
func (c *Context) CreateShader(info gfx.ShaderInfo) (gfx.Shader, error) {
	h, err := c.create("CreateShader", gfx.KindShader, info)
	return gfx.Shader{Handle: h, Info: info}, err
}

// CreatePipeline creates a graphics pipeline. Descriptors must exist.
func (c *Context) CreatePipeline(info gfx.PipelineInfo) (gfx.Pipeline, error) {
	h, err := c.create("CreatePipeline", gfx.KindPipeline, info)
	return gfx.Pipeline{Handle: h, Info: info}, err
}

// CreateDescriptor creates a descriptor set with one image binding per
// entry of info.Bindings.
func (c *Context) CreateDescriptor(info gfx.DescriptorInfo) (gfx.Descriptor, error) {
	h, err := c.create("CreateDescriptor", gfx.KindDescriptor, info)
	return gfx.Descriptor{Handle: h, Info: info}, err
}

// Delete retires a resource. Its handle stops resolving at once and its
// native objects are released at the end of the next frame.
func (c *Context) Delete(k gfx.ResourceKind, h gfx.Handle) error {
	if !c.running() {
		return c.protocol("Delete", gfx.StatusNotInitialized)
	}
	entry, ok := registry[k]
	if !ok {
		return errors.Errorf("render: no table for %s", k)
	}
	res, err := entry.lookup(c, h)
	if err != nil || !res.markDeleted() {
		return c.protocol("Delete", gfx.StatusInvalidHandle)
	}
	c.deletion.EnqueueFunc(res.release)
	return nil
}
