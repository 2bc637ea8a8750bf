// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package haltest_test

import (
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/korugfx/src/gfx/hal"
	"github.com/devblok/korugfx/src/gfx/hal/haltest"
)

func TestFailOn(t *testing.T) {
	c := qt.New(t)
	dev := haltest.NewDevice()

	dev.FailOn("NewBuffer")
	_, err := dev.NewBuffer(hal.BufferDesc{Size: 4})
	c.Assert(err, qt.ErrorMatches, "NewBuffer: haltest: injected failure")
	c.Assert(errors.Is(err, haltest.ErrInjected), qt.Equals, true)
	c.Assert(fmt.Sprintf("%+v", err), qt.Contains, "haltest.(*Device).fail")
	c.Assert(dev.Created("buffer"), qt.Equals, 0)

	dev.ClearFailure("NewBuffer")
	b, err := dev.NewBuffer(hal.BufferDesc{Size: 4})
	c.Assert(err, qt.IsNil)
	c.Assert(b.Size(), qt.Equals, uint64(4))
}

func TestFailWith(t *testing.T) {
	c := qt.New(t)
	dev := haltest.NewDevice()

	dev.FailWith("WaitIdle", hal.ErrTimeout)
	c.Assert(errors.Is(dev.WaitIdle(), hal.ErrTimeout), qt.Equals, true)
}
