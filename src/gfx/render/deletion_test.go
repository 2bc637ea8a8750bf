// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package render_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/render"
)

func TestDeletionQueueOrder(t *testing.T) {
	c := qt.New(t)
	q := render.NewDeletionQueue()

	var order []int
	for idx := 0; idx < 3; idx++ {
		idx := idx
		q.EnqueueFunc(func() { order = append(order, idx) })
	}
	c.Assert(q.Len(), qt.Equals, 3)

	q.Flush()
	c.Assert(order, qt.IsNil, qt.Commentf("nothing was sealed"))

	q.Seal()
	c.Assert(q.Sealed(), qt.Equals, 3)
	q.Flush()
	c.Assert(order, qt.DeepEquals, []int{0, 1, 2})
	c.Assert(q.Len(), qt.Equals, 0)

	q.FlushAll()
	c.Assert(order, qt.DeepEquals, []int{0, 1, 2}, qt.Commentf("functions run once"))
}

func TestDeletionQueueGenerations(t *testing.T) {
	c := qt.New(t)
	q := render.NewDeletionQueue()

	var order []string
	q.EnqueueFunc(func() { order = append(order, "old") })
	q.Seal()
	q.EnqueueFunc(func() { order = append(order, "new") })
	c.Assert(q.Len(), qt.Equals, 2)
	c.Assert(q.Sealed(), qt.Equals, 1)

	q.Flush()
	c.Assert(order, qt.DeepEquals, []string{"old"})
	c.Assert(q.Len(), qt.Equals, 1)

	q.Seal()
	q.Flush()
	c.Assert(order, qt.DeepEquals, []string{"old", "new"})
}

func TestDeletionQueueEnqueueWhileFlushing(t *testing.T) {
	c := qt.New(t)
	q := render.NewDeletionQueue()

	ran := 0
	q.EnqueueFunc(func() {
		q.EnqueueFunc(func() { ran++ })
	})
	q.FlushAll()
	c.Assert(ran, qt.Equals, 0)
	c.Assert(q.Len(), qt.Equals, 1)

	q.Flush()
	c.Assert(ran, qt.Equals, 0, qt.Commentf("enqueued during a flush, not sealed yet"))
	q.FlushAll()
	c.Assert(ran, qt.Equals, 1)
}

type countedRelease struct {
	n int
}

func (r *countedRelease) Release() {
	r.n++
}

func TestDeletionQueueReleasable(t *testing.T) {
	c := qt.New(t)
	q := render.NewDeletionQueue()

	r := &countedRelease{}
	var _ gfx.Releasable = r
	q.Enqueue(r)
	q.Enqueue(gfx.ReleaseFunc(func() { r.n += 10 }))
	q.FlushAll()
	c.Assert(r.n, qt.Equals, 11)
}
