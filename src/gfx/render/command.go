// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/hal"
)

// WorkerID names the goroutine, or pool of goroutines taking turns,
// that issues uploads. Each worker gets its own upload context.
type WorkerID uint64

type workerKey struct{}

// WithWorker tags ctx so uploads made with it use the worker's context.
func WithWorker(ctx context.Context, id WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerFrom returns the worker tagged by WithWorker, or worker 0.
func WorkerFrom(ctx context.Context) WorkerID {
	if ctx == nil {
		return 0
	}
	if id, ok := ctx.Value(workerKey{}).(WorkerID); ok {
		return id
	}
	return 0
}

// CommandContext is a command pool with a single command buffer and
// the fence that signals when its last submission completed.
type CommandContext struct {
	lock  sync.Mutex
	pool  hal.CommandPool
	cmd   hal.CommandBuffer
	fence hal.Fence
}

// NewCommandContext creates a command context. The frame context is
// created signaled so the first frame does not wait.
func NewCommandContext(device hal.Device, signaled bool) (_ *CommandContext, err error) {
	cc := &CommandContext{}
	defer func() {
		if err != nil {
			cc.Release()
		}
	}()

	if cc.pool, err = device.NewCommandPool(); err != nil {
		return nil, errors.Wrap(err, "command pool")
	}
	if cc.cmd, err = cc.pool.Allocate(); err != nil {
		return nil, errors.Wrap(err, "command buffer")
	}
	if cc.fence, err = device.NewFence(signaled); err != nil {
		return nil, errors.Wrap(err, "fence")
	}
	return cc, nil
}

// CommandBuffer returns the recording unit.
func (cc *CommandContext) CommandBuffer() hal.CommandBuffer {
	return cc.cmd
}

// Fence returns the completion fence.
func (cc *CommandContext) Fence() hal.Fence {
	return cc.fence
}

// Release frees the pool, and with it the command buffer, and the fence.
func (cc *CommandContext) Release() {
	if cc.fence != nil {
		cc.fence.Release()
		cc.fence = nil
	}
	if cc.pool != nil {
		cc.pool.Release()
		cc.pool = nil
	}
	cc.cmd = nil
}

// submit records work, submits it and blocks until the fence signals.
// The fence and pool are reset afterwards so the context can be reused.
func (cc *CommandContext) submit(device hal.Device, timeout time.Duration, work func(cmd hal.CommandBuffer)) error {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	if err := cc.cmd.Begin(); err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	work(cc.cmd)
	if err := cc.cmd.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	if err := device.Queue().Submit(hal.SubmitInfo{
		CommandBuffers: []hal.CommandBuffer{cc.cmd},
		Fence:          cc.fence,
	}); err != nil {
		return errors.Wrap(err, "submit")
	}
	if err := device.WaitForFence(cc.fence, timeout); err != nil {
		return errors.Wrap(err, "wait for upload fence")
	}
	if err := device.ResetFence(cc.fence); err != nil {
		return errors.Wrap(err, "reset upload fence")
	}
	if err := cc.pool.Reset(); err != nil {
		return errors.Wrap(err, "reset command pool")
	}
	return nil
}

// UploadContext returns the upload context of a worker, creating it on
// first use. Contexts live until Shutdown.
func (c *Context) UploadContext(id WorkerID) (*CommandContext, error) {
	c.uploadLock.Lock()
	defer c.uploadLock.Unlock()

	if c.uploads == nil {
		return nil, errors.New("render: upload contexts released")
	}
	if cc, ok := c.uploads[id]; ok {
		return cc, nil
	}

	cc, err := NewCommandContext(c.device, false)
	if err != nil {
		return nil, errors.Wrapf(err, "upload context for worker %d", id)
	}
	c.uploads[id] = cc
	c.log.WithField("worker", id).Debug("Created upload context")
	return cc, nil
}

// ImmediateSubmit records work on the upload context of the worker
// tagged in ctx, submits it and waits for completion. A failed
// submission or wait leaves the device in an unknown state and panics.
func (c *Context) ImmediateSubmit(ctx context.Context, work func(cmd hal.CommandBuffer)) error {
	if !c.running() {
		return c.protocol("ImmediateSubmit", gfx.StatusNotInitialized)
	}

	worker := WorkerFrom(ctx)
	cc, err := c.UploadContext(worker)
	if err != nil {
		return err
	}
	if err := cc.submit(c.device, c.cfg.UploadTimeout, work); err != nil {
		c.fatal(err, "Immediate submit failed", log.Fields{"worker": worker})
	}
	return nil
}

func (c *Context) releaseUploadContexts() {
	c.uploadLock.Lock()
	defer c.uploadLock.Unlock()

	for id, cc := range c.uploads {
		cc.Release()
		delete(c.uploads, id)
	}
	c.uploads = nil
}
