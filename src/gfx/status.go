// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"strconv"

	"github.com/pkg/errors"
)

// Status is the outcome of a render context operation. Non-Ok values
// are returned as errors; negative values are failures, positive
// values are informational.
type Status int

// Known statuses.
const (
	StatusNotInitialized      Status = -9
	StatusAlreadyInitialized  Status = -8
	StatusBeginEndMismatch    Status = -7
	StatusNoPipelineBound     Status = -6
	StatusNoVertexBufferBound Status = -5
	StatusNoIndexBufferBound  Status = -4
	StatusInvalidHandle       Status = -3
	StatusShaderCompileFailed Status = -2
	StatusWindowSizeInvalid   Status = -1
	StatusOk                  Status = 0
	StatusWindowMinimized     Status = 1
)

var statusNames = map[Status]string{
	StatusNotInitialized:      "not initialized",
	StatusAlreadyInitialized:  "already initialized",
	StatusBeginEndMismatch:    "begin/end rendering mismatch",
	StatusNoPipelineBound:     "no pipeline bound",
	StatusNoVertexBufferBound: "no vertex buffer bound",
	StatusNoIndexBufferBound:  "no index buffer bound",
	StatusInvalidHandle:       "invalid handle",
	StatusShaderCompileFailed: "shader compile failed",
	StatusWindowSizeInvalid:   "window size invalid",
	StatusOk:                  "ok",
	StatusWindowMinimized:     "window minimized",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// Error implements error.
func (s Status) Error() string {
	return "render: " + s.String()
}

// IsError reports whether the status is a failure.
func (s Status) IsError() bool {
	return s < StatusOk
}

// StatusOf extracts the status carried by err. A nil error is Ok.
// The second result is false when err carries no status.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return StatusOk, true
	}
	var s Status
	if errors.As(err, &s) {
		return s, true
	}
	return StatusOk, false
}
