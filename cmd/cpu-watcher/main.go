package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"

	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/collector"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/config"
	dbussvc "github.com/cptspacemanspiff/gnome-cpu-watcher/internal/dbus"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/logging"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/monitor"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/netstats"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/probe"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/ring"
	"github.com/cptspacemanspiff/gnome-cpu-watcher/internal/sampler"
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cpu-watcher", "cpu-watcher.toml")
}

func main() {
	if probe.IsHelper() {
		os.Exit(probe.RunHelper())
	}

	configPath := flag.String("config", defaultConfigPath(), "display configuration: TOML (.toml), YAML (.yaml, .yml) or tool types")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: probe,sampler,ui,wake (or 'all')")
	exportDBus := flag.Bool("dbus", true, "export the current status on the session bus")
	flag.Parse()

	topics, topicErr := logging.ParseTopics(*logFlag, *verbose)
	logger := logging.New(os.Stderr, topics)
	if topicErr != nil {
		logger.Warn("ignoring -log entries", "err", topicErr)
	}

	cfg, err := config.Load(*configPath)
	switch {
	case cfg == nil:
		logger.Error("load config, using defaults", "path", *configPath, "err", err)
		cfg = config.Default()
	case err != nil:
		logger.Warn("skipped config entries", "path", *configPath, "err", err)
	}
	if cfg.XPos != 0 || cfg.YPos != 0 {
		logger.Info("window placement is left to the window manager", "xpos", cfg.XPos, "ypos", cfg.YPos)
	}

	a := app.NewWithID("org.gnome.CpuWatcher")
	drv, ok := a.Driver().(desktop.Driver)
	if !ok {
		fmt.Fprintln(os.Stderr, "cpu-watcher: a desktop window system is required")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mode := probe.Precise
	if cfg.Show.Simple {
		mode = probe.Coarse
	}
	idle := probe.New(probe.Options{Mode: mode, Logger: logger.With(logging.TopicKey, "probe")})
	if err := idle.Start(ctx); err != nil {
		logger.Error("idle probe unavailable, CPU graph stays at zero", "err", err)
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
		defer stop()
		if err := idle.Stop(stopCtx); err != nil {
			logger.Warn("idle probe did not exit", "err", err)
		}
	}()

	stats := netstats.New(collector.NewNetCounters().Read)
	if err := stats.Init(); err != nil {
		logger.Warn("network counters unavailable", "err", err)
	}
	smp := sampler.New(ring.New(ring.Capacity), idle, collector.NewMemoryReader(), stats, logger.With(logging.TopicKey, "sampler"))

	var pub monitor.Publisher
	if *exportDBus {
		svc := dbussvc.NewService()
		conn, err := svc.Export()
		if err != nil {
			logger.Warn("status export disabled", "err", err)
		} else {
			defer conn.Close()
			pub = svc
			logger.Info("D-Bus service registered", "name", "org.gnome.CpuWatcher")
		}
	}

	var wake <-chan struct{}
	if wm, err := collector.NewWakeMonitor(logger.With(logging.TopicKey, "wake")); err != nil {
		logger.Warn("sleep notifications unavailable", "err", err)
	} else {
		defer wm.Close()
		wake = wm.Wake()
	}

	events := make(chan monitor.Event, 64)
	ui := newWindowUI(a, drv, cfg, events, logger.With(logging.TopicKey, "ui"))

	loop := monitor.New(monitor.Options{
		Sampler:   smp,
		Probe:     idle,
		Config:    cfg,
		UI:        ui,
		Publisher: pub,
		Events:    events,
		Wake:      wake,
		Logger:    logger.With(logging.TopicKey, "ui"),
	})
	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event loop", "err", err)
		}
		fyne.Do(a.Quit)
	}()

	a.Run()
	cancel()
	logger.Info("shutting down")
}
