// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render

import "github.com/devblok/korugfx/src/gfx"

// DeletionQueue defers destruction of native objects until the GPU can
// no longer reference them. It is used only from the render goroutine.
//
// Entries are kept in two generations. Enqueue adds to the open
// generation, Seal closes it once every frame that could reference its
// entries has completed, and Flush releases only sealed entries.
type DeletionQueue struct {
	sealed  []gfx.Releasable
	pending []gfx.Releasable
}

// NewDeletionQueue returns an empty queue.
func NewDeletionQueue() *DeletionQueue {
	return &DeletionQueue{}
}

// Enqueue schedules r for release after the next Seal and Flush.
func (q *DeletionQueue) Enqueue(r gfx.Releasable) {
	q.pending = append(q.pending, r)
}

// EnqueueFunc schedules fn like Enqueue.
func (q *DeletionQueue) EnqueueFunc(fn func()) {
	q.Enqueue(gfx.ReleaseFunc(fn))
}

// Seal moves everything enqueued so far into the generation the next
// Flush releases.
func (q *DeletionQueue) Seal() {
	q.sealed = append(q.sealed, q.pending...)
	q.pending = nil
}

// Flush releases every sealed entry in the order it was enqueued.
// Entries enqueued while flushing wait for the next Seal.
func (q *DeletionQueue) Flush() {
	sealed := q.sealed
	q.sealed = nil
	for _, r := range sealed {
		r.Release()
	}
}

// FlushAll seals and releases everything. The device must be idle.
func (q *DeletionQueue) FlushAll() {
	q.Seal()
	q.Flush()
}

// Len returns the number of entries not yet released.
func (q *DeletionQueue) Len() int {
	return len(q.sealed) + len(q.pending)
}

// Sealed returns the number of entries the next Flush releases.
func (q *DeletionQueue) Sealed() int {
	return len(q.sealed)
}
