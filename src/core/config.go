// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/envy"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KORU_"

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration     `toml:"time"`
	Renderer RendererConfiguration `toml:"renderer"`
	Log      LogConfiguration      `toml:"log"`
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int `toml:"frames_per_second"`

	// EventPollDelay is the delay between event polls in milliseconds.
	EventPollDelay int `toml:"event_poll_delay"`
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	ApplicationName  string   `toml:"application_name"`
	DebugMode        bool     `toml:"debug_mode"`
	DeviceExtensions []string `toml:"device_extensions"`

	ScreenWidth  uint32 `toml:"screen_width"`
	ScreenHeight uint32 `toml:"screen_height"`

	ShaderDirectory string `toml:"shader_directory"`

	// PresentMode is the preferred present mode, one of "mailbox",
	// "fifo", "fifo_relaxed" or "immediate". Fifo is used when the
	// preferred mode is not available.
	PresentMode string `toml:"present_mode"`

	ClearColor mgl32.Vec4 `toml:"clear_color"`

	// FrameTimeout bounds the wait for the previous frame and for
	// swapchain image acquisition.
	FrameTimeout time.Duration `toml:"frame_timeout"`

	// UploadTimeout bounds the wait for an immediate submission.
	UploadTimeout time.Duration `toml:"upload_timeout"`
}

// LogConfiguration configures the engine logger.
type LogConfiguration struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfiguration returns the configuration used when no file
// overrides a value.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Renderer: DefaultRendererConfiguration(),
		Log: LogConfiguration{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultRendererConfiguration returns renderer defaults.
func DefaultRendererConfiguration() RendererConfiguration {
	return RendererConfiguration{
		ApplicationName:  "Koru3D",
		DeviceExtensions: []string{"VK_KHR_swapchain"},
		ScreenWidth:      800,
		ScreenHeight:     600,
		ShaderDirectory:  "./shaders",
		PresentMode:      "mailbox",
		ClearColor:       mgl32.Vec4{0, 0, 0, 1},
		FrameTimeout:     time.Second,
		UploadTimeout:    9999999999 * time.Nanosecond,
	}
}

// ParseConfiguration decodes TOML on top of the defaults.
func ParseConfiguration(data []byte) (Configuration, error) {
	cfg := DefaultConfiguration()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Configuration{}, errors.Wrap(err, "parse configuration")
	}
	return cfg, nil
}

// LoadConfiguration reads a TOML file, then applies environment overrides.
func LoadConfiguration(path string) (Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, errors.Wrapf(err, "read configuration %s", path)
	}
	cfg, err := ParseConfiguration(data)
	if err != nil {
		return Configuration{}, errors.Wrap(err, path)
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// ApplyEnvironment overrides values from KORU_ prefixed variables.
func (c *Configuration) ApplyEnvironment() error {
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := env("PRESENT_MODE"); v != "" {
		c.Renderer.PresentMode = strings.ToLower(v)
	}
	if v := env("SHADER_DIR"); v != "" {
		c.Renderer.ShaderDirectory = v
	}
	if v := env("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, EnvPrefix+"DEBUG")
		}
		c.Renderer.DebugMode = debug
	}
	for key, field := range map[string]*uint32{
		"SCREEN_WIDTH":  &c.Renderer.ScreenWidth,
		"SCREEN_HEIGHT": &c.Renderer.ScreenHeight,
	} {
		v := env(key)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrap(err, EnvPrefix+key)
		}
		*field = uint32(n)
	}
	if v := env("FPS"); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, EnvPrefix+"FPS")
		}
		c.Time.FramesPerSecond = fps
	}
	return nil
}

func env(key string) string {
	return envy.Get(EnvPrefix+key, "")
}
