// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/core"
	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/render"
)

type vertex struct {
	Position mgl32.Vec3
	UV       mgl32.Vec2
}

var vertexAttributes = []gfx.VertexAttributeInfo{
	{Name: "position", Format: gfx.Float3Attribute},
	{Name: "uv", Format: gfx.Float2Attribute},
}

var quad = []vertex{
	{mgl32.Vec3{-0.5, -0.5, 0}, mgl32.Vec2{0, 0}},
	{mgl32.Vec3{0.5, -0.5, 0}, mgl32.Vec2{1, 0}},
	{mgl32.Vec3{0.5, 0.5, 0}, mgl32.Vec2{1, 1}},
	{mgl32.Vec3{-0.5, 0.5, 0}, mgl32.Vec2{0, 1}},
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

var samplers = []gfx.SamplerType{gfx.PointSampler, gfx.LinearSampler, gfx.AnisotropicSampler}

const (
	textureWorker render.WorkerID = iota + 1
	geometryWorker
)

func encode(data interface{}) []byte {
	var buf bytes.Buffer
	// Writes of fixed size values to a bytes.Buffer do not fail.
	_ = binary.Write(&buf, binary.LittleEndian, data)
	return buf.Bytes()
}

// checkerboard draws a two tone board of size x size pixels.
func checkerboard(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 230, G: 160, B: 60, A: 255}
	dark := color.RGBA{R: 40, G: 40, B: 50, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, light)
			} else {
				img.Set(x, y, dark)
			}
		}
	}
	return img
}

// scene is a spinning textured quad.
type scene struct {
	rc  *render.Context
	log log.FieldLogger

	shader   gfx.ShaderInfo
	texture  gfx.ImageTexture
	material gfx.Descriptor
	pipeline gfx.Pipeline
	vertices gfx.VertexBuffer
	indices  gfx.IndexBuffer

	angle   float32
	sampler int
	dirty   bool
}

// newScene creates the scene resources. Without shaders the scene is
// empty and frames are only cleared.
func newScene(ctx context.Context, rc *render.Context, cfg core.RendererConfiguration, logger log.FieldLogger) (*scene, error) {
	s := &scene{rc: rc, log: logger.WithField("component", "scene"), dirty: true}

	shaders, err := core.LoadShaders(cfg.ShaderDirectory)
	if err != nil || len(shaders) == 0 {
		s.log.WithError(err).WithField("dir", cfg.ShaderDirectory).Warn("No shaders found, frames will only be cleared")
		return s, nil
	}
	s.shader = shaders[0]

	board, err := core.MipChain(checkerboard(256, 32), 0, gfx.RGBA8Unorm)
	if err != nil {
		return nil, errors.Wrap(err, "checkerboard texture")
	}
	if s.texture, err = rc.CreateImageTexture(gfx.ImageTextureInfo{
		TextureInfo: gfx.TextureInfo{Width: board.Width, Height: board.Height, MipCount: board.MipCount},
		Name:        "checkerboard",
	}); err != nil {
		return nil, err
	}

	vertexData, indexData := encode(quad), encode(quadIndices)
	if s.vertices, err = rc.CreateVertexBuffer(gfx.BufferInfo{
		Name: "quad vertices",
		Size: uint32(len(vertexData)),
		Type: gfx.VertexIndexDataBuffer,
	}); err != nil {
		return nil, err
	}
	if s.indices, err = rc.CreateIndexBuffer(gfx.BufferInfo{
		Name: "quad indices",
		Size: uint32(len(indexData)),
		Type: gfx.VertexIndexDataBuffer,
	}); err != nil {
		return nil, err
	}

	// Texture and geometry upload on their own workers.
	var (
		wg         sync.WaitGroup
		textureErr error
		geomErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		textureErr = s.texture.SetData(render.WithWorker(ctx, textureWorker), rc, board)
	}()
	go func() {
		defer wg.Done()
		wctx := render.WithWorker(ctx, geometryWorker)
		if geomErr = s.vertices.Upload(wctx, rc, vertexData); geomErr != nil {
			return
		}
		geomErr = s.indices.Upload(wctx, rc, indexData)
	}()
	wg.Wait()
	if textureErr != nil {
		return nil, errors.Wrap(textureErr, "upload texture")
	}
	if geomErr != nil {
		return nil, errors.Wrap(geomErr, "upload geometry")
	}

	if s.material, err = rc.CreateDescriptor(gfx.DescriptorInfo{
		Name:     "material",
		Bindings: []gfx.DescriptorBindingInfo{{Type: gfx.ImageBinding, Image: s.texture}},
	}); err != nil {
		return nil, err
	}
	if s.pipeline, err = rc.CreatePipeline(gfx.PipelineInfo{
		Name:             s.shader.Name,
		Shader:           s.shader,
		Descriptors:      []gfx.Descriptor{s.material},
		VertexAttributes: vertexAttributes,
	}); err != nil {
		return nil, err
	}

	s.log.WithField("shader", s.shader.Name).Info("Scene ready")
	return s, nil
}

// nextSampler switches the material to the next sampler kind.
func (s *scene) nextSampler() {
	s.sampler = (s.sampler + 1) % len(samplers)
	s.dirty = true
	s.log.WithField("sampler", s.sampler).Info("Sampler changed")
}

// draw records the scene into the active frame.
func (s *scene) draw(ctx context.Context) error {
	if !s.pipeline.IsValid() {
		return nil
	}

	s.angle += 0.01
	rotation := mgl32.HomogRotate3DZ(s.angle)
	spun := make([]vertex, len(quad))
	for i, v := range quad {
		spun[i] = vertex{Position: rotation.Mul4x1(v.Position.Vec4(1)).Vec3(), UV: v.UV}
	}
	if err := s.vertices.Upload(ctx, s.rc, encode(spun)); err != nil {
		return err
	}

	if err := s.rc.BindPipeline(s.pipeline); err != nil {
		return err
	}
	if s.dirty {
		if err := s.rc.UpdateDescriptor(s.material, gfx.DescriptorUpdateInfo{
			Binding: 0,
			Source:  s.texture,
			Sampler: samplers[s.sampler],
		}); err != nil {
			return err
		}
		s.dirty = false
	}
	if err := s.rc.BindDescriptor(s.material); err != nil {
		return err
	}
	if err := s.rc.BindVertexBuffer(s.vertices); err != nil {
		return err
	}
	if err := s.rc.BindIndexBuffer(s.indices); err != nil {
		return err
	}
	return s.rc.Draw(uint32(len(quad)), uint32(len(quadIndices)), 1)
}
