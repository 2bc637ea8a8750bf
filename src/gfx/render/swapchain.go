// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import (
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/gfx/hal"
)

// ParsePresentMode maps a configured present mode name to the mode.
func ParsePresentMode(name string) (hal.PresentMode, error) {
	switch strings.ToLower(name) {
	case "", "mailbox":
		return hal.PresentModeMailbox, nil
	case "fifo":
		return hal.PresentModeFifo, nil
	case "fifo_relaxed":
		return hal.PresentModeFifoRelaxed, nil
	case "immediate":
		return hal.PresentModeImmediate, nil
	}
	return hal.PresentModeFifo, errors.Errorf("unknown present mode %q", name)
}

// ChooseSurfaceFormat prefers 8 bit BGRA sRGB, otherwise takes the
// first format the surface reports.
func ChooseSurfaceFormat(formats []hal.SurfaceFormat) hal.SurfaceFormat {
	for _, f := range formats {
		if f.Format == hal.FormatB8G8R8A8Srgb && f.ColorSpace == hal.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return formats[0]
}

// ChoosePresentMode returns preferred when available. Fifo is always
// available and is the fallback.
func ChoosePresentMode(modes []hal.PresentMode, preferred hal.PresentMode) hal.PresentMode {
	for _, m := range modes {
		if m == preferred {
			return m
		}
	}
	return hal.PresentModeFifo
}

// ChooseExtent returns the surface extent, or the window size clamped to
// the surface limits when the surface lets the swapchain decide.
func ChooseExtent(caps hal.SurfaceCapabilities, width, height uint32) hal.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum, within the
// maximum when the surface has one.
func ChooseImageCount(caps hal.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Swapchain owns the native swapchain and the views of its images.
type Swapchain struct {
	device    hal.Device
	deletion  *DeletionQueue
	log       log.FieldLogger
	preferred hal.PresentMode

	native hal.Swapchain
	format hal.SurfaceFormat
	mode   hal.PresentMode
	extent hal.Extent2D
	images []hal.Image
	views  []hal.ImageView
}

// NewSwapchain prepares a manager. Nothing is created until Update.
func NewSwapchain(device hal.Device, deletion *DeletionQueue, preferred hal.PresentMode, logger log.FieldLogger) *Swapchain {
	return &Swapchain{
		device:    device,
		deletion:  deletion,
		log:       logger,
		preferred: preferred,
	}
}

// Update builds a swapchain for the window size. A previous swapchain
// is handed to the new one for reuse and released through the deletion
// queue together with its views.
func (s *Swapchain) Update(width, height uint32) (err error) {
	caps, err := s.device.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "surface capabilities")
	}
	formats, err := s.device.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "surface formats")
	}
	if len(formats) == 0 {
		return errors.Wrap(hal.ErrUnsupported, "surface reports no formats")
	}
	modes, err := s.device.PresentModes()
	if err != nil {
		return errors.Wrap(err, "present modes")
	}

	families := s.device.QueueFamilies()
	desc := hal.SwapchainDesc{
		Format:      ChooseSurfaceFormat(formats),
		PresentMode: ChoosePresentMode(modes, s.preferred),
		Extent:      ChooseExtent(caps, width, height),
		ImageCount:  ChooseImageCount(caps),
		Concurrent:  families.Graphics != families.Present,
		Families:    families,
		Old:         s.native,
	}

	native, err := s.device.NewSwapchain(desc)
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	images := native.Images()
	views := make([]hal.ImageView, 0, len(images))
	defer func() {
		if err != nil {
			for _, v := range views {
				v.Release()
			}
			native.Release()
		}
	}()
	for _, img := range images {
		view, err := s.device.NewImageView(img, hal.ImageViewDesc{
			Format:    desc.Format.Format,
			Aspect:    hal.AspectColor,
			MipLevels: 1,
		})
		if err != nil {
			return errors.Wrap(err, "swapchain image view")
		}
		views = append(views, view)
	}

	if s.native != nil {
		oldNative, oldViews := s.native, s.views
		s.deletion.EnqueueFunc(func() {
			for _, v := range oldViews {
				v.Release()
			}
			oldNative.Release()
		})
	}

	s.native, s.images, s.views = native, images, views
	s.format, s.mode, s.extent = desc.Format, desc.PresentMode, desc.Extent

	s.log.WithFields(log.Fields{
		"width":  desc.Extent.Width,
		"height": desc.Extent.Height,
		"images": len(images),
		"mode":   desc.PresentMode,
	}).Debug("Swapchain updated")
	return nil
}

// Acquire returns the index of the next image to render into.
func (s *Swapchain) Acquire(sem hal.Semaphore, timeout time.Duration) (uint32, error) {
	return s.native.Acquire(sem, timeout)
}

// Native returns the native swapchain.
func (s *Swapchain) Native() hal.Swapchain {
	return s.native
}

// Format returns the surface format in use.
func (s *Swapchain) Format() hal.SurfaceFormat {
	return s.format
}

// PresentMode returns the present mode in use.
func (s *Swapchain) PresentMode() hal.PresentMode {
	return s.mode
}

// Extent returns the size of the swapchain images.
func (s *Swapchain) Extent() hal.Extent2D {
	return s.extent
}

// Images returns the presentable images.
func (s *Swapchain) Images() []hal.Image {
	return s.images
}

// Views returns one view per presentable image.
func (s *Swapchain) Views() []hal.ImageView {
	return s.views
}

// Release frees the swapchain and its views immediately.
func (s *Swapchain) Release() {
	for _, v := range s.views {
		v.Release()
	}
	s.views, s.images = nil, nil
	if s.native != nil {
		s.native.Release()
		s.native = nil
	}
}
