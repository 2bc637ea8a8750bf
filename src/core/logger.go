// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewLogger builds the engine logger. Format is "text" or "json".
func NewLogger(cfg LogConfiguration) (*log.Logger, error) {
	logger := log.New()
	logger.Out = os.Stderr

	if cfg.Level != "" {
		level, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrap(err, "log level")
		}
		logger.SetLevel(level)
	}

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", cfg.Format)
	}
	return logger, nil
}
