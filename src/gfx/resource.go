// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import "context"

// Buffer refers to a GPU buffer owned by a Context.
type Buffer struct {
	Handle Handle
	Info   BufferInfo
}

// IsValid reports whether the buffer was ever created.
func (b Buffer) IsValid() bool {
	return b.Handle.IsValid()
}

// Upload copies data into the buffer through a staging buffer.
func (b Buffer) Upload(ctx context.Context, c Context, data []byte) error {
	return c.UploadBuffer(ctx, b, data)
}

// Read returns the current buffer contents.
func (b Buffer) Read(ctx context.Context, c Context) ([]byte, error) {
	return c.ReadBuffer(ctx, b)
}

// VertexBuffer is a buffer usable as vertex input.
type VertexBuffer struct {
	Buffer
}

// IndexBuffer is a buffer of uint32 indices.
type IndexBuffer struct {
	Buffer
}

// ImageTexture refers to a sampled texture. It has no image until
// data is set.
type ImageTexture struct {
	Handle Handle
	Info   ImageTextureInfo
}

// IsValid reports whether the texture was ever created.
func (t ImageTexture) IsValid() bool {
	return t.Handle.IsValid()
}

// SetData replaces the texture image with the given mip chain.
func (t ImageTexture) SetData(ctx context.Context, c Context, data TextureData) error {
	return c.SetImageTextureData(ctx, t, data)
}

// Copy copies a region of another texture into this one.
func (t ImageTexture) Copy(ctx context.Context, c Context, region TextureCopyData) error {
	return c.CopyImageTexture(ctx, t, region)
}

// RenderTexture refers to a texture that can be rendered to.
type RenderTexture struct {
	Handle Handle
	Info   RenderTextureInfo
}

// IsValid reports whether the render texture was ever created.
func (t RenderTexture) IsValid() bool {
	return t.Handle.IsValid()
}

// Shader refers to a vertex and fragment module pair.
type Shader struct {
	Handle Handle
	Info   ShaderInfo
}

// IsValid reports whether the shader was ever created.
func (s Shader) IsValid() bool {
	return s.Handle.IsValid()
}

// Pipeline refers to a graphics pipeline.
type Pipeline struct {
	Handle Handle
	Info   PipelineInfo
}

// IsValid reports whether the pipeline was ever created.
func (p Pipeline) IsValid() bool {
	return p.Handle.IsValid()
}

// Descriptor refers to a descriptor set and its layout.
type Descriptor struct {
	Handle Handle
	Info   DescriptorInfo
}

// IsValid reports whether the descriptor was ever created.
func (d Descriptor) IsValid() bool {
	return d.Handle.IsValid()
}
