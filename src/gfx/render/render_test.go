// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/korugfx/src/core"
	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal/haltest"
	"github.com/devblok/korugfx/src/gfx/render"
)

type fixture struct {
	*qt.C
	rc     *render.Context
	dev    *haltest.Device
	window *haltest.Window
	hook   *logtest.Hook
}

func newFixture(t *testing.T) *fixture {
	f := unstarted(t)
	f.Assert(f.rc.Startup(f.window), qt.IsNil)
	return f
}

func unstarted(t *testing.T) *fixture {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	backend := haltest.NewBackend()
	return &fixture{
		C:      qt.New(t),
		rc:     render.New(backend, core.DefaultRendererConfiguration(), logger),
		dev:    backend.Device,
		window: haltest.NewWindow(800, 600),
		hook:   hook,
	}
}

// frame records one complete frame around fn.
func (f *fixture) frame(fn func()) {
	f.Helper()
	f.Assert(f.rc.BeginRendering(), qt.IsNil)
	if fn != nil {
		fn()
	}
	f.Assert(f.rc.EndRendering(), qt.IsNil)
}

func (f *fixture) assertNoProblems() {
	f.Helper()
	f.Assert(len(f.dev.Problems()), qt.Equals, 0, qt.Commentf("%v", f.dev.Problems()))
}

func (f *fixture) commands(op string) []haltest.Command {
	var out []haltest.Command
	for _, cmd := range f.dev.Commands() {
		if cmd.Op == op {
			out = append(out, cmd)
		}
	}
	return out
}

func assertStatus(c *qt.C, err error, want gfx.Status) {
	c.Helper()
	got, ok := gfx.StatusOf(err)
	c.Assert(ok, qt.Equals, true, qt.Commentf("error %v carries no status", err))
	c.Assert(got, qt.Equals, want)
}

func testShader() gfx.ShaderInfo {
	return gfx.ShaderInfo{
		Name:         "test",
		VertexData:   []uint32{0x07230203, 1},
		FragmentData: []uint32{0x07230203, 2},
	}
}

func rgbaData(w, h, mips uint32, fill func(idx int) byte) gfx.TextureData {
	_, total, err := gfx.MipLayout(w, h, mips, gfx.RGBA8Unorm)
	if err != nil {
		panic(err)
	}
	data := make([]byte, total)
	for idx := range data {
		data[idx] = fill(idx)
	}
	return gfx.TextureData{Width: w, Height: h, MipCount: mips, MipData: data, Format: gfx.RGBA8Unorm}
}

func logtestLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}
