// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines the rendering features that render contexts must
// implement, together with the resource handles and descriptions that
// callers pass around.
package gfx

import (
	"context"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// ReleaseFunc adapts a plain function to Releasable.
type ReleaseFunc func()

// Release calls f.
func (f ReleaseFunc) Release() {
	f()
}

// Window is the surface a render context presents to.
type Window interface {
	hal.SurfaceSource

	// FramebufferSize returns the drawable size in pixels. A zero
	// area means the window is minimized.
	FramebufferSize() (uint32, uint32)

	// OnResize registers fn to be called whenever the framebuffer
	// size changes. Callbacks run on the render goroutine.
	OnResize(fn func())
}

// Context is a render context: it owns the native device, every
// resource created through it and the frame in flight.
//
// Everything except uploads must be called from the goroutine that
// called Startup. Uploads may run on any goroutine, see the render
// package for how workers are told apart.
type Context interface {
	Startup(window Window) error
	Shutdown() error

	CreateBuffer(info BufferInfo) (Buffer, error)
	CreateVertexBuffer(info BufferInfo) (VertexBuffer, error)
	CreateIndexBuffer(info BufferInfo) (IndexBuffer, error)
	CreateImageTexture(info ImageTextureInfo) (ImageTexture, error)
	CreateRenderTexture(info RenderTextureInfo) (RenderTexture, error)
	CreateShader(info ShaderInfo) (Shader, error)
	CreatePipeline(info PipelineInfo) (Pipeline, error)
	CreateDescriptor(info DescriptorInfo) (Descriptor, error)
	Delete(kind ResourceKind, h Handle) error

	UploadBuffer(ctx context.Context, b Buffer, data []byte) error
	ReadBuffer(ctx context.Context, b Buffer) ([]byte, error)
	SetImageTextureData(ctx context.Context, t ImageTexture, data TextureData) error
	CopyImageTexture(ctx context.Context, t ImageTexture, region TextureCopyData) error

	BeginRendering() error
	EndRendering() error
	BindPipeline(p Pipeline) error
	BindDescriptor(d Descriptor) error
	UpdateDescriptor(d Descriptor, info DescriptorUpdateInfo) error
	BindVertexBuffer(b VertexBuffer) error
	BindIndexBuffer(b IndexBuffer) error
	BindRenderTarget(t RenderTexture) error
	BindMainTarget() error
	Draw(vertexCount, indexCount, instanceCount uint32) error
}
