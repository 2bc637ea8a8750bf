// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package haltest implements the hal contract in memory. Buffers and
// images are byte slices, submitted transfers execute immediately and
// every recorded command is kept for inspection.
package haltest

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// ErrInjected is returned by operations named in Device.FailOn.
var ErrInjected = errors.New("haltest: injected failure")

// Backend opens the same Device every time.
type Backend struct {
	Device *Device
}

// NewBackend returns a backend around a fresh device.
func NewBackend() *Backend {
	return &Backend{Device: NewDevice()}
}

// Open implements hal.Backend.
func (b *Backend) Open(surface hal.SurfaceSource, cfg hal.DeviceConfig) (hal.Device, error) {
	if err := b.Device.fail("Open"); err != nil {
		return nil, err
	}
	if _, err := surface.CreateSurface(b.Device); err != nil {
		return nil, err
	}
	b.Device.config = cfg
	return b.Device, nil
}

// Device is an in-memory hal.Device.
type Device struct {
	lock sync.Mutex

	config       hal.DeviceConfig
	families     hal.QueueFamilies
	caps         hal.SurfaceCapabilities
	formats      []hal.SurfaceFormat
	presentModes []hal.PresentMode

	failures   map[string]error
	outOfDate  int
	presentErr error

	created  map[string]int
	released map[string]int
	problems []string

	commands    []Command
	submissions []hal.SubmitInfo
	presents    []hal.PresentInfo
	fenceWaits  []time.Duration
	pipelines   []*Pipeline

	queue *Queue
	freed bool
}

// NewDevice returns a device with a two image surface and an
// unconstrained extent.
func NewDevice() *Device {
	d := &Device{
		caps: hal.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  3,
			CurrentExtent:  hal.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
			MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
		},
		formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8Srgb, ColorSpace: hal.ColorSpaceSrgbNonlinear},
		},
		presentModes: []hal.PresentMode{hal.PresentModeFifo, hal.PresentModeMailbox},
		failures:     make(map[string]error),
		created:      make(map[string]int),
		released:     make(map[string]int),
	}
	d.queue = &Queue{dev: d}
	return d
}

// Config returns the configuration the device was opened with.
func (d *Device) Config() hal.DeviceConfig {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.config
}

// SetQueueFamilies overrides the reported queue families.
func (d *Device) SetQueueFamilies(f hal.QueueFamilies) {
	d.lock.Lock()
	d.families = f
	d.lock.Unlock()
}

// SetSurfaceCapabilities overrides the reported surface capabilities.
func (d *Device) SetSurfaceCapabilities(caps hal.SurfaceCapabilities) {
	d.lock.Lock()
	d.caps = caps
	d.lock.Unlock()
}

// SetSurfaceFormats overrides the reported surface formats.
func (d *Device) SetSurfaceFormats(formats []hal.SurfaceFormat) {
	d.lock.Lock()
	d.formats = formats
	d.lock.Unlock()
}

// SetPresentModes overrides the reported present modes.
func (d *Device) SetPresentModes(modes []hal.PresentMode) {
	d.lock.Lock()
	d.presentModes = modes
	d.lock.Unlock()
}

// FailOn makes every later call of the named operation fail with ErrInjected.
func (d *Device) FailOn(op string) {
	d.FailWith(op, ErrInjected)
}

// FailWith makes every later call of the named operation fail with err.
func (d *Device) FailWith(op string, err error) {
	d.lock.Lock()
	d.failures[op] = err
	d.lock.Unlock()
}

// ClearFailure undoes FailOn and FailWith.
func (d *Device) ClearFailure(op string) {
	d.lock.Lock()
	delete(d.failures, op)
	d.lock.Unlock()
}

// ForceOutOfDate makes the next n acquires report hal.ErrOutOfDate.
func (d *Device) ForceOutOfDate(n int) {
	d.lock.Lock()
	d.outOfDate = n
	d.lock.Unlock()
}

// FailNextPresent makes the next present return err after presenting.
func (d *Device) FailNextPresent(err error) {
	d.lock.Lock()
	d.presentErr = err
	d.lock.Unlock()
}

func (d *Device) fail(op string) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if err, ok := d.failures[op]; ok {
		return errors.Wrap(err, op)
	}
	return nil
}

func (d *Device) track(kind string) {
	d.lock.Lock()
	d.created[kind]++
	d.lock.Unlock()
}

func (d *Device) untrack(kind string, released *bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if *released {
		d.problems = append(d.problems, "double release of "+kind)
		return
	}
	*released = true
	d.released[kind]++
}

func (d *Device) problem(format string, args ...interface{}) {
	d.lock.Lock()
	d.problems = append(d.problems, fmt.Sprintf(format, args...))
	d.lock.Unlock()
}

// Created returns how many objects of the kind were created.
func (d *Device) Created(kind string) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.created[kind]
}

// Released returns how many objects of the kind were released.
func (d *Device) Released(kind string) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.released[kind]
}

// Live returns the kinds that still have unreleased objects, with counts.
func (d *Device) Live() map[string]int {
	d.lock.Lock()
	defer d.lock.Unlock()

	live := make(map[string]int)
	for kind, n := range d.created {
		if left := n - d.released[kind]; left != 0 {
			live[kind] = left
		}
	}
	return live
}

// Problems returns misuse the device noticed: double releases, barriers
// whose old layout does not match the image and maps of device memory.
func (d *Device) Problems() []string {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]string, len(d.problems))
	copy(out, d.problems)
	return out
}

// Commands returns every command recorded so far, in recording order.
func (d *Device) Commands() []Command {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]Command, len(d.commands))
	copy(out, d.commands)
	return out
}

// Ops returns the operation names of Commands.
func (d *Device) Ops() []string {
	cmds := d.Commands()
	ops := make([]string, len(cmds))
	for idx, cmd := range cmds {
		ops[idx] = cmd.Op
	}
	return ops
}

// ClearCommands forgets recorded commands.
func (d *Device) ClearCommands() {
	d.lock.Lock()
	d.commands = nil
	d.lock.Unlock()
}

// Submissions returns every successful queue submission.
func (d *Device) Submissions() []hal.SubmitInfo {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]hal.SubmitInfo, len(d.submissions))
	copy(out, d.submissions)
	return out
}

// Presents returns every present request.
func (d *Device) Presents() []hal.PresentInfo {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]hal.PresentInfo, len(d.presents))
	copy(out, d.presents)
	return out
}

// FenceWaits returns the timeouts of every fence wait.
func (d *Device) FenceWaits() []time.Duration {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]time.Duration, len(d.fenceWaits))
	copy(out, d.fenceWaits)
	return out
}

// Freed reports whether the device itself was released.
func (d *Device) Freed() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.freed
}

func (d *Device) record(cmd Command) {
	d.lock.Lock()
	d.commands = append(d.commands, cmd)
	d.lock.Unlock()
}

// Release implements hal.Device.
func (d *Device) Release() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.freed {
		d.problems = append(d.problems, "double release of device")
	}
	d.freed = true
}

// Name implements hal.Device.
func (d *Device) Name() string {
	return "haltest"
}

// QueueFamilies implements hal.Device.
func (d *Device) QueueFamilies() hal.QueueFamilies {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.families
}

// Queue implements hal.Device.
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// WaitIdle implements hal.Device.
func (d *Device) WaitIdle() error {
	return d.fail("WaitIdle")
}

// SurfaceCapabilities implements hal.Device.
func (d *Device) SurfaceCapabilities() (hal.SurfaceCapabilities, error) {
	if err := d.fail("SurfaceCapabilities"); err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.caps, nil
}

// SurfaceFormats implements hal.Device.
func (d *Device) SurfaceFormats() ([]hal.SurfaceFormat, error) {
	if err := d.fail("SurfaceFormats"); err != nil {
		return nil, err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]hal.SurfaceFormat(nil), d.formats...), nil
}

// PresentModes implements hal.Device.
func (d *Device) PresentModes() ([]hal.PresentMode, error) {
	if err := d.fail("PresentModes"); err != nil {
		return nil, err
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]hal.PresentMode(nil), d.presentModes...), nil
}

// NewSwapchain implements hal.Device.
func (d *Device) NewSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	if err := d.fail("NewSwapchain"); err != nil {
		return nil, err
	}
	sc := &Swapchain{object: object{dev: d, kind: "swapchain"}, Desc: desc}
	for idx := uint32(0); idx < desc.ImageCount; idx++ {
		sc.images = append(sc.images, newImage(d, "swapchainImage", hal.ImageDesc{
			Name:      fmt.Sprintf("swapchain image %d", idx),
			Extent:    desc.Extent,
			Format:    desc.Format.Format,
			MipLevels: 1,
			Usage:     hal.ImageUsageColorAttachment | hal.ImageUsageTransferDst,
		}))
	}
	d.track("swapchain")
	return sc, nil
}

// NewBuffer implements hal.Device.
func (d *Device) NewBuffer(desc hal.BufferDesc) (hal.Buffer, error) {
	if err := d.fail("NewBuffer"); err != nil {
		return nil, err
	}
	d.track("buffer")
	return &Buffer{object: object{dev: d, kind: "buffer"}, Desc: desc, data: make([]byte, desc.Size)}, nil
}

// NewImage implements hal.Device.
func (d *Device) NewImage(desc hal.ImageDesc) (hal.Image, error) {
	if err := d.fail("NewImage"); err != nil {
		return nil, err
	}
	d.track("image")
	return newImage(d, "image", desc), nil
}

// NewImageView implements hal.Device.
func (d *Device) NewImageView(image hal.Image, desc hal.ImageViewDesc) (hal.ImageView, error) {
	if err := d.fail("NewImageView"); err != nil {
		return nil, err
	}
	d.track("view")
	return &ImageView{object: object{dev: d, kind: "view"}, Image: image.(*Image), Desc: desc}, nil
}

// NewSampler implements hal.Device.
func (d *Device) NewSampler(desc hal.SamplerDesc) (hal.Sampler, error) {
	if err := d.fail("NewSampler"); err != nil {
		return nil, err
	}
	d.track("sampler")
	return &Sampler{object: object{dev: d, kind: "sampler"}, Desc: desc}, nil
}

// NewShaderModule implements hal.Device.
func (d *Device) NewShaderModule(code []uint32) (hal.ShaderModule, error) {
	if err := d.fail("NewShaderModule"); err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, errors.New("haltest: empty shader code")
	}
	d.track("shader")
	return &ShaderModule{object: object{dev: d, kind: "shader"}, Code: code}, nil
}

// NewDescriptorSetLayout implements hal.Device.
func (d *Device) NewDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	if err := d.fail("NewDescriptorSetLayout"); err != nil {
		return nil, err
	}
	d.track("descriptorSetLayout")
	return &DescriptorSetLayout{
		object:   object{dev: d, kind: "descriptorSetLayout"},
		Bindings: append([]hal.DescriptorBinding(nil), bindings...),
	}, nil
}

// AllocateDescriptorSet implements hal.Device.
func (d *Device) AllocateDescriptorSet(layout hal.DescriptorSetLayout) (hal.DescriptorSet, error) {
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return nil, err
	}
	d.track("descriptorSet")
	return &DescriptorSet{
		object: object{dev: d, kind: "descriptorSet"},
		Layout: layout.(*DescriptorSetLayout),
		writes: make(map[uint32]ImageWrite),
	}, nil
}

// WriteImageDescriptor implements hal.Device.
func (d *Device) WriteImageDescriptor(set hal.DescriptorSet, binding uint32, view hal.ImageView, sampler hal.Sampler) {
	s := set.(*DescriptorSet)
	d.lock.Lock()
	s.writes[binding] = ImageWrite{View: view.(*ImageView), Sampler: sampler.(*Sampler)}
	d.lock.Unlock()
}

// NewPipelineLayout implements hal.Device.
func (d *Device) NewPipelineLayout(sets []hal.DescriptorSetLayout) (hal.PipelineLayout, error) {
	if err := d.fail("NewPipelineLayout"); err != nil {
		return nil, err
	}
	d.track("pipelineLayout")
	return &PipelineLayout{
		object: object{dev: d, kind: "pipelineLayout"},
		Sets:   append([]hal.DescriptorSetLayout(nil), sets...),
	}, nil
}

// NewPipeline implements hal.Device.
func (d *Device) NewPipeline(desc hal.PipelineDesc) (hal.Pipeline, error) {
	if err := d.fail("NewPipeline"); err != nil {
		return nil, err
	}
	d.track("pipeline")
	p := &Pipeline{object: object{dev: d, kind: "pipeline"}, Desc: desc}
	d.lock.Lock()
	d.pipelines = append(d.pipelines, p)
	d.lock.Unlock()
	return p, nil
}

// Pipelines returns every pipeline created so far, in creation order.
func (d *Device) Pipelines() []*Pipeline {
	d.lock.Lock()
	defer d.lock.Unlock()
	out := make([]*Pipeline, len(d.pipelines))
	copy(out, d.pipelines)
	return out
}

// NewCommandPool implements hal.Device.
func (d *Device) NewCommandPool() (hal.CommandPool, error) {
	if err := d.fail("NewCommandPool"); err != nil {
		return nil, err
	}
	d.track("commandPool")
	return &CommandPool{object: object{dev: d, kind: "commandPool"}}, nil
}

// NewFence implements hal.Device.
func (d *Device) NewFence(signaled bool) (hal.Fence, error) {
	if err := d.fail("NewFence"); err != nil {
		return nil, err
	}
	d.track("fence")
	return &Fence{object: object{dev: d, kind: "fence"}, signaled: signaled}, nil
}

// NewSemaphore implements hal.Device.
func (d *Device) NewSemaphore() (hal.Semaphore, error) {
	if err := d.fail("NewSemaphore"); err != nil {
		return nil, err
	}
	d.track("semaphore")
	return &Semaphore{object: object{dev: d, kind: "semaphore"}}, nil
}

// WaitForFence implements hal.Device. Submissions complete at once, so a
// fence that is not signaled never will be and the wait times out.
func (d *Device) WaitForFence(fence hal.Fence, timeout time.Duration) error {
	d.lock.Lock()
	d.fenceWaits = append(d.fenceWaits, timeout)
	d.lock.Unlock()

	if err := d.fail("WaitForFence"); err != nil {
		return err
	}
	f := fence.(*Fence)
	d.lock.Lock()
	defer d.lock.Unlock()
	if !f.signaled {
		return hal.ErrTimeout
	}
	return nil
}

// ResetFence implements hal.Device.
func (d *Device) ResetFence(fence hal.Fence) error {
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	d.lock.Lock()
	fence.(*Fence).signaled = false
	d.lock.Unlock()
	return nil
}

// Queue executes submitted command buffers synchronously.
type Queue struct {
	dev *Device
}

// Submit implements hal.Queue.
func (q *Queue) Submit(info hal.SubmitInfo) error {
	if err := q.dev.fail("Submit"); err != nil {
		return err
	}
	for _, cb := range info.CommandBuffers {
		buf := cb.(*CommandBuffer)

		q.dev.lock.Lock()
		if buf.recording {
			q.dev.problems = append(q.dev.problems, "submit of a command buffer that is still recording")
		}
		cmds := append([]Command(nil), buf.cmds...)
		q.dev.lock.Unlock()

		for _, cmd := range cmds {
			q.dev.execute(cmd)
		}
	}

	q.dev.lock.Lock()
	defer q.dev.lock.Unlock()
	if info.Fence != nil {
		info.Fence.(*Fence).signaled = true
	}
	q.dev.submissions = append(q.dev.submissions, info)
	return nil
}

// Present implements hal.Queue.
func (q *Queue) Present(info hal.PresentInfo) error {
	if err := q.dev.fail("Present"); err != nil {
		return err
	}
	q.dev.lock.Lock()
	defer q.dev.lock.Unlock()

	q.dev.presents = append(q.dev.presents, info)
	if sc, ok := info.Swapchain.(*Swapchain); ok && int(info.Index) < len(sc.images) {
		if layout := sc.images[info.Index].layout; layout != hal.LayoutPresentSrc {
			q.dev.problems = append(q.dev.problems, "present of an image in layout "+layout.String())
		}
	}
	err := q.dev.presentErr
	q.dev.presentErr = nil
	return err
}

// SortedKinds returns the keys of a count map in order, for stable messages.
func SortedKinds(counts map[string]int) []string {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
