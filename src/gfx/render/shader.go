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

type shader struct {
	resourceSlot
	info     gfx.ShaderInfo
	vertex   hal.ShaderModule
	fragment hal.ShaderModule
}

// shaderModules creates the vertex and fragment modules of a shader.
// Failures carry StatusShaderCompileFailed.
func (c *Context) shaderModules(info gfx.ShaderInfo) (vertex, fragment hal.ShaderModule, err error) {
	if len(info.VertexData) == 0 || len(info.FragmentData) == 0 {
		return nil, nil, errors.Wrapf(gfx.StatusShaderCompileFailed, "shader %q is missing a stage", info.Name)
	}
	if vertex, err = c.device.NewShaderModule(info.VertexData); err != nil {
		return nil, nil, errors.Wrapf(gfx.StatusShaderCompileFailed, "vertex stage of %q: %v", info.Name, err)
	}
	if fragment, err = c.device.NewShaderModule(info.FragmentData); err != nil {
		vertex.Release()
		return nil, nil, errors.Wrapf(gfx.StatusShaderCompileFailed, "fragment stage of %q: %v", info.Name, err)
	}
	return vertex, fragment, nil
}

func (c *Context) newShader(info gfx.ShaderInfo) (*shader, error) {
	vertex, fragment, err := c.shaderModules(info)
	if err != nil {
		c.log.WithField("shader", info.Name).WithError(err).Error("Shader compilation failed")
		return nil, err
	}
	return &shader{info: info, vertex: vertex, fragment: fragment}, nil
}

func (s *shader) release() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.vertex != nil {
		s.vertex.Release()
		s.vertex = nil
	}
	if s.fragment != nil {
		s.fragment.Release()
		s.fragment = nil
	}
}
