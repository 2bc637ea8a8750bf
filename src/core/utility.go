// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core holds engine services that sit around the renderer:
// configuration, logging, timing and asset preparation.
package core

import (
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/utility/kar"
)

const (
	shaderSuffix  = ".spv"
	archiveSuffix = ".kar"
)

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

// shaderSet pairs shader stages by name.
type shaderSet map[string]*gfx.ShaderInfo

// add records one stage file. Names other than <name>.vert.spv or
// <name>.frag.spv are skipped.
func (s shaderSet) add(file string, read func() ([]byte, error)) error {
	base := filepath.Base(file)
	if !strings.HasSuffix(base, shaderSuffix) {
		return nil
	}
	nodes := strings.Split(strings.TrimSuffix(base, shaderSuffix), ".")
	if len(nodes) != 2 {
		return nil
	}
	name, stage := nodes[0], nodes[1]
	if stage != "vert" && stage != "frag" {
		return nil
	}

	data, err := read()
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return errors.Errorf("shader %s is not valid SPIR-V, size %d", file, len(data))
	}
	code := make([]uint32, len(data)/4)
	copy(code, SliceUint32(data))

	info, ok := s[name]
	if !ok {
		info = &gfx.ShaderInfo{Name: name}
		s[name] = info
	}
	if stage == "vert" {
		info.VertexData = code
	} else {
		info.FragmentData = code
	}
	return nil
}

func (s shaderSet) list() ([]gfx.ShaderInfo, error) {
	out := make([]gfx.ShaderInfo, 0, len(s))
	for _, info := range s {
		if len(info.VertexData) == 0 {
			return nil, errors.Errorf("shader %s has no vertex stage", info.Name)
		}
		if len(info.FragmentData) == 0 {
			return nil, errors.Errorf("shader %s has no fragment stage", info.Name)
		}
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadShaders finds compiled shader pairs in a directory, or in a kar
// archive when dir names a .kar file. A pair is two files named
// <name>.vert.spv and <name>.frag.spv; files with more dots in the name
// are ignored. Shaders are returned sorted by name.
func LoadShaders(dir string) ([]gfx.ShaderInfo, error) {
	if strings.HasSuffix(dir, archiveSuffix) {
		return LoadShaderArchive(dir)
	}

	shaders := make(shaderSet)
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		return shaders.add(path, func() ([]byte, error) { return os.ReadFile(path) })
	}); err != nil {
		return nil, errors.Wrapf(err, "load shaders from %s", dir)
	}
	return shaders.list()
}

// LoadShaderArchive reads shader pairs from a kar archive, using the
// same naming as LoadShaders.
func LoadShaderArchive(path string) ([]gfx.ShaderInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "load shader archive")
	}
	defer f.Close()

	ar, err := kar.Open(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load shader archive %s", path)
	}

	shaders := make(shaderSet)
	for _, name := range ar.Names() {
		name := name
		if err := shaders.add(name, func() ([]byte, error) { return ar.ReadAll(name) }); err != nil {
			return nil, errors.Wrapf(err, "load shader archive %s", path)
		}
	}
	return shaders.list()
}

// GetPixels transforms a given image into right arrangement of pixels
// by drawing the decoded image onto a controlled RGBA canvas
func GetPixels(img image.Image, rowPitch int) ([]uint8, error) {
	newImg := image.NewRGBA(img.Bounds())
	if rowPitch >= 4*img.Bounds().Dx() {
		// apply the proposed row pitch only if supported,
		// as we're using only optimal textures.
		newImg = &image.RGBA{
			Pix:    make([]uint8, rowPitch*img.Bounds().Dy()),
			Stride: rowPitch,
			Rect:   img.Bounds(),
		}
	}
	draw.Draw(newImg, newImg.Bounds(), img, img.Bounds().Min, draw.Src)
	return newImg.Pix, nil
}

// MipCount returns the number of levels in a full chain for the size,
// stopping before either side reaches zero.
func MipCount(width, height uint32) uint32 {
	var count uint32
	for width > 0 && height > 0 {
		count++
		width >>= 1
		height >>= 1
	}
	return count
}

// MipChain packs an image and its downscaled levels into texture data.
// A levels value of zero builds the full chain.
func MipChain(img image.Image, levels uint32, format gfx.TextureFormat) (gfx.TextureData, error) {
	if format != gfx.RGBA8Unorm && format != gfx.RGBA8Srgb {
		return gfx.TextureData{}, errors.Errorf("mip chains are generated for rgba8 formats only, got %s", format)
	}

	bounds := img.Bounds()
	width, height := uint32(bounds.Dx()), uint32(bounds.Dy())
	if full := MipCount(width, height); levels == 0 || levels > full {
		levels = full
	}
	if levels == 0 {
		return gfx.TextureData{}, errors.New("image has no pixels")
	}

	_, total, err := gfx.MipLayout(width, height, levels, format)
	if err != nil {
		return gfx.TextureData{}, err
	}

	data := make([]byte, 0, total)
	for mip := uint32(0); mip < levels; mip++ {
		w, h := gfx.MipDimensions(width, height, mip)
		level := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
		if mip == 0 {
			draw.Draw(level, level.Bounds(), img, bounds.Min, draw.Src)
		} else {
			xdraw.BiLinear.Scale(level, level.Bounds(), img, bounds, xdraw.Src, nil)
		}
		data = append(data, level.Pix...)
	}

	return gfx.TextureData{
		Width:    width,
		Height:   height,
		MipCount: levels,
		MipData:  data,
		Format:   format,
	}, nil
}
