// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"sync"
	"time"
	"unsafe"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx/hal"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// descriptorPoolSize is the number of descriptors of each type, and of
// sets, the shared descriptor pool holds.
const descriptorPoolSize = 1000

// Backend opens Vulkan devices.
type Backend struct {
	procAddr unsafe.Pointer
	log      log.FieldLogger
}

// NewBackend returns a backend that loads Vulkan through procAddr, the
// vkGetInstanceProcAddr of the window system. A nil procAddr loads the
// system Vulkan library.
func NewBackend(procAddr unsafe.Pointer, logger log.FieldLogger) *Backend {
	return &Backend{
		procAddr: procAddr,
		log:      logger.WithField("component", "vkr"),
	}
}

func (b *Backend) loadInstance(cfg hal.DeviceConfig, extensions []string) (vk.Instance, error) {
	if b.procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(b.procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "vk.Init()")
	}

	var layers []string
	if cfg.DebugMode {
		layers = append(layers, validationLayer)
	}

	name := cfg.ApplicationName
	if name == "" {
		name = "Koru3D"
	}
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PApplicationName:   safeString(name),
		PEngineName:        safeString("Koru3D"),
	}
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := check(vk.CreateInstance(&instanceInfo, nil, &instance), "vk.CreateInstance()"); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)
	return instance, nil
}

// Open implements hal.Backend. It creates an instance for the window,
// its surface and a logical device on the first physical device that
// can both render and present to it.
func (b *Backend) Open(surface hal.SurfaceSource, cfg hal.DeviceConfig) (hal.Device, error) {
	instance, err := b.loadInstance(cfg, surface.InstanceExtensions())
	if err != nil {
		return nil, err
	}
	dev := &Device{
		log:      b.log,
		instance: instance,
	}

	success := false
	defer func() {
		if !success {
			dev.Release()
		}
	}()

	pSurface, err := surface.CreateSurface(instance)
	if err != nil {
		return nil, errors.Wrap(err, "create surface")
	}
	dev.surface = vk.SurfaceFromPointer(uintptr(pSurface))

	devices, err := enumerateDevices(instance)
	if err != nil {
		return nil, err
	}
	if err := dev.pick(devices); err != nil {
		return nil, err
	}
	if err := dev.createLogicalDevice(cfg.Extensions); err != nil {
		return nil, err
	}
	if err := dev.createDescriptorPool(); err != nil {
		return nil, err
	}
	dev.allocator = NewMemoryAllocator(dev.device, dev.physical)
	dev.passes = newPassCache(dev)

	b.log.WithFields(log.Fields{
		"device":   dev.name,
		"graphics": dev.families.Graphics,
		"present":  dev.families.Present,
	}).Info("Vulkan device opened")

	success = true
	return dev, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := check(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := check(vk.EnumeratePhysicalDevices(instance, &deviceCount, devices), "vk.EnumeratePhysicalDevices()"); err != nil {
		return nil, err
	}
	return devices, nil
}

// Device implements hal.Device on a Vulkan logical device.
type Device struct {
	log log.FieldLogger

	instance vk.Instance
	surface  vk.Surface
	physical vk.PhysicalDevice
	device   vk.Device
	name     string
	families hal.QueueFamilies

	queue     *Queue
	allocator *MemoryAllocator
	passes    *passCache

	descriptorLock sync.Mutex
	descriptorPool vk.DescriptorPool
}

// pick chooses a device with graphics and present queue families,
// preferring discrete GPUs.
func (d *Device) pick(devices []vk.PhysicalDevice) error {
	found := false
	for _, pd := range devices {
		families, ok := d.queueFamilies(pd)
		if !ok {
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		if found && props.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
			continue
		}
		d.physical = pd
		d.families = families
		d.name = vk.ToString(props.DeviceName[:])
		found = true
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if !found {
		return hal.ErrNoDevice
	}
	return nil
}

// queueFamilies finds a graphics family, preferring one that can also
// present, and a present family.
func (d *Device) queueFamilies(pd vk.PhysicalDevice) (hal.QueueFamilies, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)

	var (
		families        hal.QueueFamilies
		graphicsFound   bool
		presentFound    bool
		combinedPresent bool
	)
	for i := uint32(0); i < count; i++ {
		props[i].Deref()

		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, i, d.surface, &supportsPresent)
		graphics := props[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0

		if graphics && supportsPresent.B() && !combinedPresent {
			families.Graphics, families.Present = i, i
			graphicsFound, presentFound, combinedPresent = true, true, true
			continue
		}
		if graphics && !graphicsFound {
			families.Graphics = i
			graphicsFound = true
		}
		if supportsPresent.B() && !presentFound {
			families.Present = i
			presentFound = true
		}
	}
	return families, graphicsFound && presentFound
}

func (d *Device) createLogicalDevice(extensions []string) error {
	priorities := []float32{1}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.families.Graphics,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	if d.families.Present != d.families.Graphics {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.families.Present,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
		}},
	}
	var device vk.Device
	if err := check(vk.CreateDevice(d.physical, &dci, nil, &device), "vk.CreateDevice()"); err != nil {
		return err
	}
	d.device = device

	var graphics, present vk.Queue
	vk.GetDeviceQueue(device, d.families.Graphics, 0, &graphics)
	vk.GetDeviceQueue(device, d.families.Present, 0, &present)
	d.queue = &Queue{graphics: graphics, present: present}
	return nil
}

func (d *Device) createDescriptorPool() error {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descriptorPoolSize},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: descriptorPoolSize},
	}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       descriptorPoolSize,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}

	var pool vk.DescriptorPool
	if err := check(vk.CreateDescriptorPool(d.device, &dpci, nil, &pool), "vk.CreateDescriptorPool()"); err != nil {
		return err
	}
	d.descriptorPool = pool
	return nil
}

// Name implements hal.Device.
func (d *Device) Name() string {
	return d.name
}

// QueueFamilies implements hal.Device.
func (d *Device) QueueFamilies() hal.QueueFamilies {
	return d.families
}

// Queue implements hal.Device.
func (d *Device) Queue() hal.Queue {
	return d.queue
}

// WaitIdle implements hal.Device.
func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.device), "vk.DeviceWaitIdle()")
}

// SurfaceCapabilities implements hal.Device.
func (d *Device) SurfaceCapabilities() (hal.SurfaceCapabilities, error) {
	caps, err := d.surfaceCapabilities()
	if err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	return hal.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent2D(caps.CurrentExtent),
		MinImageExtent: extent2D(caps.MinImageExtent),
		MaxImageExtent: extent2D(caps.MaxImageExtent),
	}, nil
}

func (d *Device) surfaceCapabilities() (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps),
		"vk.GetPhysicalDeviceSurfaceCapabilities()"); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// SurfaceFormats implements hal.Device.
func (d *Device) SurfaceFormats() ([]hal.SurfaceFormat, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil),
		"vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, formats),
		"vk.GetPhysicalDeviceSurfaceFormats()"); err != nil {
		return nil, err
	}

	out := make([]hal.SurfaceFormat, len(formats))
	for i := range formats {
		formats[i].Deref()
		out[i] = hal.SurfaceFormat{
			Format:     hal.Format(formats[i].Format),
			ColorSpace: hal.ColorSpace(formats[i].ColorSpace),
		}
	}
	return out, nil
}

// PresentModes implements hal.Device.
func (d *Device) PresentModes() ([]hal.PresentMode, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil),
		"vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, modes),
		"vk.GetPhysicalDeviceSurfacePresentModes()"); err != nil {
		return nil, err
	}

	out := make([]hal.PresentMode, len(modes))
	for i, m := range modes {
		out[i] = hal.PresentMode(m)
	}
	return out, nil
}

// NewFence implements hal.Device.
func (d *Device) NewFence(signaled bool) (hal.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check(vk.CreateFence(d.device, &fci, nil, &fence), "vk.CreateFence()"); err != nil {
		return nil, err
	}
	return &Fence{device: d.device, fence: fence}, nil
}

// NewSemaphore implements hal.Device.
func (d *Device) NewSemaphore() (hal.Semaphore, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := check(vk.CreateSemaphore(d.device, &sci, nil, &semaphore), "vk.CreateSemaphore()"); err != nil {
		return nil, err
	}
	return &Semaphore{device: d.device, semaphore: semaphore}, nil
}

// WaitForFence implements hal.Device.
func (d *Device) WaitForFence(fence hal.Fence, timeout time.Duration) error {
	f := fence.(*Fence)
	return check(vk.WaitForFences(d.device, 1, []vk.Fence{f.fence}, vk.True, nanoseconds(timeout)), "vk.WaitForFences()")
}

// ResetFence implements hal.Device.
func (d *Device) ResetFence(fence hal.Fence) error {
	f := fence.(*Fence)
	return check(vk.ResetFences(d.device, 1, []vk.Fence{f.fence}), "vk.ResetFences()")
}

// Release destroys the logical device, the surface and the instance.
// Every object created from the device must be released before.
func (d *Device) Release() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		if d.passes != nil {
			d.passes.release()
		}
		if d.descriptorPool != nil {
			vk.DestroyDescriptorPool(d.device, d.descriptorPool, nil)
		}
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.surface != nil {
		vk.DestroySurface(d.instance, d.surface, nil)
		d.surface = nil
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
}

// Fence implements hal.Fence.
type Fence struct {
	device vk.Device
	fence  vk.Fence
}

// Release implements hal.Fence.
func (f *Fence) Release() {
	vk.DestroyFence(f.device, f.fence, nil)
}

// Semaphore implements hal.Semaphore.
type Semaphore struct {
	device    vk.Device
	semaphore vk.Semaphore
}

// Release implements hal.Semaphore.
func (s *Semaphore) Release() {
	vk.DestroySemaphore(s.device, s.semaphore, nil)
}

func extent2D(e vk.Extent2D) hal.Extent2D {
	return hal.Extent2D{Width: e.Width, Height: e.Height}
}
