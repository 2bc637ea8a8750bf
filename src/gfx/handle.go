// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"math"
	"strconv"
	"sync"
)

// InvalidHandle is the reserved handle that never refers to a resource.
const InvalidHandle Handle = math.MaxUint32

// Handle is an opaque reference into a HandleTable. It owns nothing.
type Handle uint32

// IsValid reports whether the handle is not the reserved invalid value.
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

func (h Handle) String() string {
	if !h.IsValid() {
		return "handle(invalid)"
	}
	return "handle(" + strconv.FormatUint(uint64(h), 10) + ")"
}

// HandleTable is an append-only arena. Handles are indices into it
// and are never reused for the lifetime of the table.
type HandleTable[T any] struct {
	lock  sync.RWMutex
	items []T
}

// Add appends the item and returns its handle.
func (t *HandleTable[T]) Add(item T) Handle {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.items = append(t.items, item)
	return Handle(len(t.items) - 1)
}

// Get returns the item stored under the handle. Invalid or out of
// range handles yield StatusInvalidHandle.
func (t *HandleTable[T]) Get(h Handle) (T, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	var zero T
	if !h.IsValid() || uint64(h) >= uint64(len(t.items)) {
		return zero, StatusInvalidHandle
	}
	return t.items[h], nil
}

// Len returns the number of slots ever added.
func (t *HandleTable[T]) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.items)
}

// Each calls fn for every slot in handle order. The table must not
// be mutated from within fn.
func (t *HandleTable[T]) Each(fn func(Handle, T)) {
	t.lock.RLock()
	items := make([]T, len(t.items))
	copy(items, t.items)
	t.lock.RUnlock()

	for idx, item := range items {
		fn(Handle(idx), item)
	}
}
