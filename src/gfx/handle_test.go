// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/korugfx/src/gfx"
)

func TestHandleTableAddGet(t *testing.T) {
	c := qt.New(t)

	var table gfx.HandleTable[string]
	a := table.Add("first")
	b := table.Add("second")

	c.Assert(a, qt.Equals, gfx.Handle(0))
	c.Assert(b, qt.Equals, gfx.Handle(1))
	c.Assert(table.Len(), qt.Equals, 2)

	got, err := table.Get(b)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, "second")
}

func TestHandleTableInvalid(t *testing.T) {
	c := qt.New(t)

	var table gfx.HandleTable[int]
	table.Add(42)

	for _, h := range []gfx.Handle{gfx.InvalidHandle, 1, 100} {
		_, err := table.Get(h)
		status, ok := gfx.StatusOf(err)
		c.Assert(ok, qt.Equals, true)
		c.Assert(status, qt.Equals, gfx.StatusInvalidHandle)
	}
	c.Assert(gfx.InvalidHandle.IsValid(), qt.Equals, false)
	c.Assert(gfx.Handle(0).IsValid(), qt.Equals, true)
}

func TestHandleTableEachInOrder(t *testing.T) {
	var table gfx.HandleTable[int]
	for idx := 0; idx < 10; idx++ {
		table.Add(idx * 10)
	}

	var seen []gfx.Handle
	table.Each(func(h gfx.Handle, v int) {
		if v != int(h)*10 {
			t.Errorf("handle %d holds %d", h, v)
		}
		seen = append(seen, h)
	})
	if len(seen) != 10 {
		t.Fatalf("visited %d slots, expected 10", len(seen))
	}
	for idx, h := range seen {
		if h != gfx.Handle(idx) {
			t.Errorf("visited %s at position %d", h, idx)
		}
	}
}

func TestHandleTableConcurrentAdd(t *testing.T) {
	var (
		table gfx.HandleTable[int]
		wg    sync.WaitGroup
	)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := 0; idx < 100; idx++ {
				h := table.Add(idx)
				if _, err := table.Get(h); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if table.Len() != 800 {
		t.Errorf("table holds %d items, expected 800", table.Len())
	}
}

func TestHandleString(t *testing.T) {
	c := qt.New(t)
	c.Assert(gfx.Handle(7).String(), qt.Equals, "handle(7)")
	c.Assert(gfx.InvalidHandle.String(), qt.Equals, "handle(invalid)")
}
