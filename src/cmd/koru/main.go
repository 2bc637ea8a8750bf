// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"time"

	"github.com/gobuffalo/packr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/korugfx/src/core"
	"github.com/devblok/korugfx/src/gfx"
	"github.com/devblok/korugfx/src/gfx/render"
	"github.com/devblok/korugfx/src/gfx/vkr"
)

func init() {
	runtime.LockOSThread()
}

// Profiling
var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
	configFile   = flag.String("config", "", "Configuration file, the bundled one is used when empty")
)

// loadConfiguration reads the configuration file or the bundled
// defaults, then applies environment overrides.
func loadConfiguration() (core.Configuration, error) {
	if *configFile != "" {
		return core.LoadConfiguration(*configFile)
	}

	box := packr.NewBox("./resources")
	data, err := box.Find("koru.toml")
	if err != nil {
		return core.Configuration{}, errors.Wrap(err, "bundled configuration")
	}
	cfg, err := core.ParseConfiguration(data)
	if err != nil {
		return core.Configuration{}, err
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return core.Configuration{}, err
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfiguration()
	if err != nil {
		log.WithError(err).Fatal("Configuration failed")
	}
	if *debug {
		cfg.Renderer.DebugMode = true
	}

	logger, err := core.NewLogger(cfg.Log)
	if err != nil {
		log.WithError(err).Fatal("Logger failed")
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.WithError(err).Fatal("CPU profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.WithError(err).Fatal("CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			logger.WithError(err).Fatal("Trace")
		}
		if err := trace.Start(f); err != nil {
			logger.WithError(err).Fatal("Trace")
		}
		defer trace.Stop()
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Exited with error")
	}

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			logger.WithError(err).Fatal("Memory profile")
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			logger.WithError(err).Fatal("Memory profile")
		}
	}
}

func run(cfg core.Configuration, logger *log.Logger) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return errors.Wrap(err, "sdl.Init()")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	defer sdl.VulkanUnloadLibrary()

	win, err := newWindow(cfg.Renderer.ApplicationName, cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight)
	if err != nil {
		return errors.Wrap(err, "window")
	}
	defer win.Destroy()

	backend := vkr.NewBackend(sdl.VulkanGetVkGetInstanceProcAddr(), logger)
	rc := render.New(backend, cfg.Renderer, logger)
	if err := rc.Startup(win); err != nil {
		return errors.Wrap(err, "renderer startup")
	}
	defer func() {
		if err := rc.Shutdown(); err != nil {
			logger.WithError(err).Error("Renderer shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := newScene(ctx, rc, cfg.Renderer, logger)
	if err != nil {
		return err
	}

	timeService := core.NewTime(cfg.Time)
	defer timeService.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportFps(ctx, timeService, logger)
	}()
	defer wg.Wait()
	defer cancel()

	// Events and frames share the goroutine that started the context.
	for {
		select {
		case <-timeService.EventTicker().C:
			if quit := pollEvents(win, s); quit {
				logger.Info("Event loop exited")
				return nil
			}
		case <-timeService.FpsTicker().C:
			if err := frame(ctx, rc, s); err != nil {
				return err
			}
			timeService.Frame()
		}
	}
}

// pollEvents drains the SDL queue and reports whether to quit.
func pollEvents(win *window, s *scene) bool {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.WindowEvent:
			win.handle(et)
		case *sdl.KeyboardEvent:
			if et.Type != sdl.KEYDOWN {
				continue
			}
			switch et.Keysym.Sym {
			case sdl.K_ESCAPE:
				return true
			case sdl.K_s:
				s.nextSampler()
			}
		case *sdl.QuitEvent:
			return true
		}
	}
	return false
}

// frame renders one frame. Frames are skipped while the window has no
// drawable area.
func frame(ctx context.Context, rc *render.Context, s *scene) error {
	if err := rc.BeginRendering(); err != nil {
		if skipped(err) {
			return nil
		}
		return err
	}
	if err := s.draw(ctx); err != nil {
		// The frame still has to be closed.
		_ = rc.EndRendering()
		return err
	}
	return rc.EndRendering()
}

// skipped reports whether BeginRendering declined the frame for a
// window that cannot be drawn to right now.
func skipped(err error) bool {
	s, _ := gfx.StatusOf(err)
	switch s {
	case gfx.StatusWindowMinimized, gfx.StatusWindowSizeInvalid:
		return true
	}
	return false
}

func reportFps(ctx context.Context, t *core.Time, logger log.FieldLogger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			logger.WithField("average_fps", t.AverageFps()).Info("Frame counter stopped")
			return
		case <-ticker.C:
			frames := t.Frames()
			logger.WithFields(log.Fields{
				"fps":       (frames - last) / 5,
				"cgo_calls": runtime.NumCgoCall(),
			}).Info("Frame count")
			last = frames
		}
	}
}
