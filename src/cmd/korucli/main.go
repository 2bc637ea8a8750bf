// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugfx/src/core"
	"github.com/devblok/korugfx/src/gfx/hal"
	"github.com/devblok/korugfx/src/gfx/vkr"
)

var (
	debug  = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	indent = flag.Bool("indent", false, "Indent the output")
)

// korucli prints the physical devices Vulkan reports as JSON.
func main() {
	flag.Parse()

	logger, err := core.NewLogger(core.LogConfiguration{Level: "warning"})
	if err != nil {
		log.WithError(err).Fatal("Logger failed")
	}

	devices, err := vkr.NewBackend(nil, logger).PhysicalDevices(hal.DeviceConfig{
		ApplicationName: "korucli",
		DebugMode:       *debug,
	})
	if err != nil {
		logger.WithError(err).Fatal("Listing devices failed")
	}

	enc := json.NewEncoder(os.Stdout)
	if *indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(devices); err != nil {
		logger.WithError(err).Fatal("Encoding failed")
	}
}
