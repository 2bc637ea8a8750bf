// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"context"

	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

// DefaultBufferName is given to buffers created without a name.
const DefaultBufferName = "Unnamed Buffer"

type buffer struct {
	resourceSlot
	info   gfx.BufferInfo
	native hal.Buffer
}

func nativeBufferUsage(u gfx.BufferUsage) hal.BufferUsage {
	// Every buffer can be read back.
	usage := hal.BufferUsageTransferSrc
	if u.Has(gfx.VertexBufferUsage) {
		usage |= hal.BufferUsageVertex
	}
	if u.Has(gfx.IndexBufferUsage) {
		usage |= hal.BufferUsageIndex
	}
	if u.Has(gfx.UniformBufferUsage) {
		usage |= hal.BufferUsageUniform
	}
	if u.Has(gfx.TransferDstUsage) {
		usage |= hal.BufferUsageTransferDst
	}
	return usage
}

func (c *Context) newBuffer(info gfx.BufferInfo) (*buffer, error) {
	if info.Size == 0 {
		return nil, errors.Errorf("buffer %q has zero size", info.Name)
	}
	native, err := c.device.NewBuffer(hal.BufferDesc{
		Name:        info.Name,
		Size:        uint64(info.Size),
		Usage:       nativeBufferUsage(info.Usage),
		HostVisible: info.Type == gfx.StagingBuffer,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "buffer %q", info.Name)
	}
	return &buffer{info: info, native: native}, nil
}

func (b *buffer) release() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.native != nil {
		b.native.Release()
		b.native = nil
	}
}

// newStaging creates a temporary host visible buffer that is not part
// of any resource table.
func (c *Context) newStaging(name string, size uint64, usage hal.BufferUsage) (hal.Buffer, error) {
	staging, err := c.device.NewBuffer(hal.BufferDesc{
		Name:        name,
		Size:        size,
		Usage:       usage,
		HostVisible: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return staging, nil
}

func fill(b hal.Buffer, data []byte) error {
	mem, err := b.Map()
	if err != nil {
		return errors.Wrap(err, "map staging buffer")
	}
	copy(mem, data)
	b.Unmap()
	return nil
}

// UploadBuffer copies data into the start of the buffer. The data is on
// the GPU when the call returns.
func (c *Context) UploadBuffer(ctx context.Context, b gfx.Buffer, data []byte) error {
	if !c.running() {
		return c.protocol("UploadBuffer", gfx.StatusNotInitialized)
	}
	dst, err := lookup(c, &c.buffers, b.Handle)
	if err != nil {
		return c.protocol("UploadBuffer", gfx.StatusInvalidHandle)
	}
	if uint64(len(data)) > dst.native.Size() {
		return errors.Errorf("upload of %d bytes into buffer %q of %d bytes", len(data), dst.info.Name, dst.native.Size())
	}
	if len(data) == 0 {
		return nil
	}

	staging, err := c.newStaging("upload staging", uint64(len(data)), hal.BufferUsageTransferSrc)
	if err != nil {
		return err
	}
	defer staging.Release()
	if err := fill(staging, data); err != nil {
		return err
	}

	return c.ImmediateSubmit(ctx, func(cmd hal.CommandBuffer) {
		cmd.CopyBuffer(staging, dst.native, []hal.BufferCopy{{Size: uint64(len(data))}})
	})
}

// ReadBuffer copies the buffer contents back to the host.
func (c *Context) ReadBuffer(ctx context.Context, b gfx.Buffer) ([]byte, error) {
	if !c.running() {
		return nil, c.protocol("ReadBuffer", gfx.StatusNotInitialized)
	}
	src, err := lookup(c, &c.buffers, b.Handle)
	if err != nil {
		return nil, c.protocol("ReadBuffer", gfx.StatusInvalidHandle)
	}

	size := src.native.Size()
	staging, err := c.newStaging("readback staging", size, hal.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	if err := c.ImmediateSubmit(ctx, func(cmd hal.CommandBuffer) {
		cmd.CopyBuffer(src.native, staging, []hal.BufferCopy{{Size: size}})
	}); err != nil {
		return nil, err
	}

	mem, err := staging.Map()
	if err != nil {
		return nil, errors.Wrap(err, "map readback buffer")
	}
	defer staging.Unmap()
	out := make([]byte, size)
	copy(out, mem)
	return out, nil
}
