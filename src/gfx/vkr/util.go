// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/devblok/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
)

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// bytesAt views n bytes of mapped memory as a slice.
func bytesAt(ptr unsafe.Pointer, n int) []byte {
	return *(*[]byte)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(ptr),
		Len:  n,
		Cap:  n,
	}))
}

// nanoseconds converts a timeout to the form vk waits take.
func nanoseconds(timeout time.Duration) uint {
	if timeout < 0 {
		return 0
	}
	return uint(timeout)
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, safeString(s))
	}
	return safe
}

// check turns a result into an error. Results the hal contract names
// map to its sentinel errors, a suboptimal result is a success.
func check(result vk.Result, op string) error {
	switch result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.Timeout, vk.NotReady:
		return hal.ErrTimeout
	case vk.ErrorOutOfDate:
		return hal.ErrOutOfDate
	}
	if err := vk.Error(result); err != nil {
		return errors.Wrap(err, op)
	}
	return errors.Errorf("%s: unexpected result %d", op, result)
}
