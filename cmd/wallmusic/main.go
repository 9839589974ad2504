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

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/control"
	"github.com/giledward/wallmusic/internal/engine"
	"github.com/giledward/wallmusic/internal/metrics"
	"github.com/giledward/wallmusic/internal/session"
	"github.com/giledward/wallmusic/internal/util"
	"github.com/giledward/wallmusic/internal/wallpaper"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to the settings file (json, yaml or toml)")
	modeName := flag.String("mode", string(config.ModeRules), "wallpaper mode (rules|text)")
	spotifyOnly := flag.Bool("spotify-only", false, "only react to tracks played by Spotify")
	pollSeconds := flag.Float64("polling-interval", session.DefaultPollInterval.Seconds(), "seconds between media session polls (minimum 0.2)")
	verbose := flag.Bool("verbose", false, "log every notification, including unchanged wallpapers")
	logLevel := flag.String("log-level", "", "log level (trace|debug|info|warn|error); overrides --verbose")
	backendName := flag.String("backend", string(wallpaper.BackendAuto), "wallpaper backend (auto|gnome|swww|swaybg|feh|hyprpaper|command|windows|macos)")
	backendCommand := flag.String("backend-command", "", "command used by the command backend; %f is replaced with the image path")
	noControl := flag.Bool("no-control", false, "do not listen on the control socket")
	collectMetrics := flag.Bool("metrics", true, "collect per-rule counters for status output")
	flag.Parse()

	level := util.LevelInfo
	if *verbose {
		level = util.LevelDebug
	}
	if *logLevel != "" {
		level = util.ParseLogLevel(*logLevel)
	}
	logger := util.NewLogger(level)

	mode, err := config.ParseMode(*modeName)
	if err != nil {
		return exitErr(err)
	}
	backend, err := wallpaper.ParseBackend(*backendName)
	if err != nil {
		return exitErr(err)
	}
	interval := session.ClampInterval(time.Duration(*pollSeconds * float64(time.Second)))

	cfgFullPath, err := filepath.Abs(config.ExpandPath(*cfgPath))
	if err != nil {
		return exitErr(fmt.Errorf("resolve config path: %w", err))
	}
	cfgFullPath = filepath.Clean(cfgFullPath)
	loaded, err := loadConfig(cfgFullPath, mode, logger)
	if err != nil {
		return exitErr(fmt.Errorf("load config: %w", err))
	}

	setter, err := wallpaper.NewSetter(wallpaper.SetterOptions{
		Backend: backend,
		Command: *backendCommand,
		Logger:  logger.Named("wallpaper"),
	})
	if err != nil {
		return exitErr(fmt.Errorf("configure wallpaper backend: %w", err))
	}
	logger.Infof("using %s wallpaper backend", setter.Name())
	applier := wallpaper.NewApplier(setter, logger.Named("wallpaper"))

	collector := metrics.NewCollector(*collectMetrics)
	opts := engine.Options{
		Mode:        mode,
		SpotifyOnly: *spotifyOnly,
		Verbose:     *verbose,
		Rules:       loaded.rules,
		Metrics:     collector,
	}
	if loaded.text != nil {
		opts.Text = loaded.text
	}
	dispatcher := engine.New(applier, logger.Named("dispatch"), opts)

	source, err := session.NewDefaultSource(logger.Named("session"))
	if err != nil {
		return exitErr(fmt.Errorf("open media session source: %w", err))
	}
	watcher := session.NewWatcher(source, logger.Named("session"), session.Options{Interval: interval})
	watcher.Subscribe(dispatcher.HandleTrack)
	defer func() {
		if err := watcher.Stop(); err != nil {
			logger.Warnf("stop media watcher: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader := newConfigReloader(cfgFullPath, mode, logger.Named("config"), dispatcher, loaded.raw, func() {
		watcher.Replay(ctx)
	})
	reload := func(reason string) error {
		return reloader.Reload(reason)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return exitErr(fmt.Errorf("watch config: %w", err))
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(cfgFullPath)); err != nil {
		return exitErr(fmt.Errorf("watch config dir: %w", err))
	}
	if err := fsw.Add(cfgFullPath); err != nil {
		logger.Debugf("unable to watch config file directly: %v", err)
	}
	reloadRequests := make(chan string, 1)
	go watchConfig(logger, fsw, cfgFullPath, reloadRequests)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	logger.Infof("starting in %s mode (config %s, polling every %s)", mode, cfgFullPath, watcher.Interval())
	if err := watcher.Start(ctx); err != nil {
		return exitErr(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if !*noControl {
		srv, err := control.NewServer(dispatcher, collector, logger.Named("control"), control.Hooks{
			Reload: reload,
			Poll:   watcher.PollOnce,
			Describe: func(st *control.DaemonStatus) {
				st.ConfigPath = cfgFullPath
				st.PollInterval = watcher.Interval().String()
			},
		})
		if err != nil {
			return exitErr(fmt.Errorf("start control server: %w", err))
		}
		logger.Debugf("control socket at %s", srv.SocketPath())
		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	exitCode := 0
	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("stopped: %v", err)
				exitCode = 1
			}
			logger.Infof("shut down")
			return exitCode
		case err := <-dispatcher.Fatal():
			logger.Errorf("cannot set wallpaper, exiting: %v", err)
			exitCode = 1
			cancel()
		case reason := <-reloadRequests:
			if err := reload(reason); err != nil {
				logger.Errorf("reload failed: %v", err)
			}
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := reload("received SIGHUP"); err != nil {
					logger.Errorf("reload failed: %v", err)
				}
			case os.Interrupt, syscall.SIGTERM:
				logger.Infof("received %s, shutting down", sig)
				cancel()
			}
		}
	}
}

func watchConfig(logger *util.Logger, watcher *fsnotify.Watcher, target string, reloadRequests chan<- string) {
	const debounceWindow = 250 * time.Millisecond
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			select {
			case reloadRequests <- "config file updated":
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}

func exitErr(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
