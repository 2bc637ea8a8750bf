// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"

	"github.com/pkg/errors"
)

// TextureFormat identifies the pixel layout of texture data.
type TextureFormat int

// Supported texture formats.
const (
	RGBA8Unorm TextureFormat = iota
	RGBA8Srgb
	BC3Unorm
	BC3Srgb
	BC5Unorm
	BC5Snorm
)

func (f TextureFormat) String() string {
	switch f {
	case RGBA8Unorm:
		return "rgba8_unorm"
	case RGBA8Srgb:
		return "rgba8_srgb"
	case BC3Unorm:
		return "bc3_unorm"
	case BC3Srgb:
		return "bc3_srgb"
	case BC5Unorm:
		return "bc5_unorm"
	case BC5Snorm:
		return "bc5_snorm"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// BlockCompressed reports whether the format is stored in 4x4 blocks.
func (f TextureFormat) BlockCompressed() bool {
	switch f {
	case BC3Unorm, BC3Srgb, BC5Unorm, BC5Snorm:
		return true
	}
	return false
}

// BytesPerPixel returns the storage cost of one pixel. Block formats
// store 16 bytes per 4x4 block, which is one byte per pixel.
func BytesPerPixel(f TextureFormat) (uint64, error) {
	switch f {
	case RGBA8Unorm, RGBA8Srgb:
		return 4, nil
	case BC3Unorm, BC3Srgb, BC5Unorm, BC5Snorm:
		return 1, nil
	}
	return 0, errors.Errorf("texture format %s is not supported", f)
}

// MipDimensions returns the nominal size of a mip level.
func MipDimensions(width, height, mip uint32) (uint32, uint32) {
	return width >> mip, height >> mip
}

// MipSize returns the byte size of a mip level. Block compressed
// formats never go below one block in either dimension.
func MipSize(width, height, mip uint32, f TextureFormat) (uint64, error) {
	bpp, err := BytesPerPixel(f)
	if err != nil {
		return 0, err
	}

	w, h := MipDimensions(width, height, mip)
	if f.BlockCompressed() {
		if w < 4 {
			w = 4
		}
		if h < 4 {
			h = 4
		}
	}
	return uint64(w) * uint64(h) * bpp, nil
}

// MipLayout returns the byte offset of every mip level inside a
// tightly packed mip chain, together with the size of the chain.
func MipLayout(width, height, count uint32, f TextureFormat) ([]uint64, uint64, error) {
	offsets := make([]uint64, count)
	var total uint64
	for mip := uint32(0); mip < count; mip++ {
		size, err := MipSize(width, height, mip, f)
		if err != nil {
			return nil, 0, err
		}
		offsets[mip] = total
		total += size
	}
	return offsets, total, nil
}
