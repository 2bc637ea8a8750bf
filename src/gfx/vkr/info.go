// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// DeviceInfo describes a physical device.
type DeviceInfo struct {
	ID            int      `json:"id"`
	VendorID      int      `json:"vendor_id"`
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	DriverVersion int      `json:"driver_version"`
	APIVersion    string   `json:"api_version"`
	Memory        uint64   `json:"memory"`
	Extensions    []string `json:"extensions"`
	Layers        []string `json:"layers"`
	Invalid       bool     `json:"invalid,omitempty"`
}

var deviceTypes = map[vk.PhysicalDeviceType]string{
	vk.PhysicalDeviceTypeOther:         "other",
	vk.PhysicalDeviceTypeIntegratedGpu: "integrated",
	vk.PhysicalDeviceTypeDiscreteGpu:   "discrete",
	vk.PhysicalDeviceTypeVirtualGpu:    "virtual",
	vk.PhysicalDeviceTypeCpu:           "cpu",
}

// PhysicalDevices lists the devices of an instance made without a
// window. Devices whose properties could not be read are marked invalid.
func (b *Backend) PhysicalDevices(cfg hal.DeviceConfig) ([]DeviceInfo, error) {
	instance, err := b.loadInstance(cfg, cfg.Extensions)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyInstance(instance, nil)

	devices, err := enumerateDevices(instance)
	if err != nil {
		return nil, err
	}

	pdi := make([]DeviceInfo, len(devices))
	for i, pd := range devices {
		var numDeviceExtensions uint32
		if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, nil), ""); err != nil {
			pdi[i].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := check(vk.EnumerateDeviceExtensionProperties(pd, "", &numDeviceExtensions, deviceExt), ""); err != nil {
			pdi[i].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[i].Extensions = append(pdi[i].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		var numDeviceLayers uint32
		if err := check(vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, nil), ""); err != nil {
			pdi[i].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := check(vk.EnumerateDeviceLayerProperties(pd, &numDeviceLayers, deviceLayers), ""); err != nil {
			pdi[i].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[i].Layers = append(pdi[i].Layers, vk.ToString(layer.LayerName[:]))
		}

		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(pd, &memoryProperties)
		memoryProperties.Deref()
		for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[i].Memory += uint64(memoryProperties.MemoryHeaps[iMem].Size)
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		pdi[i].ID = int(props.DeviceID)
		pdi[i].VendorID = int(props.VendorID)
		pdi[i].Name = vk.ToString(props.DeviceName[:])
		pdi[i].Type = deviceTypes[props.DeviceType]
		pdi[i].DriverVersion = int(props.DriverVersion)
		pdi[i].APIVersion = versionString(props.ApiVersion)
	}
	return pdi, nil
}

// versionString formats a packed Vulkan version.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3ff, v&0xfff)
}
