package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/session"
	"github.com/giledward/wallmusic/internal/util"
	"github.com/giledward/wallmusic/internal/wallpaper"
)

// smoke reads the live media session once and shows which wallpaper the
// configured rules would pick. With --apply it also sets it. --wallpaper skips
// the session and rules and only exercises the wallpaper backend.
func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to the rules settings file")
	logLevel := flag.String("log-level", "info", "log level (trace|debug|info|warn|error)")
	explain := flag.Bool("explain", true, "print per-rule evaluation")
	apply := flag.Bool("apply", false, "set the selected wallpaper through the detected backend")
	backendName := flag.String("backend", string(wallpaper.BackendAuto), "wallpaper backend used with --apply")
	command := flag.String("command", "", "command template for --backend command (%f is the image path)")
	direct := flag.String("wallpaper", "", "set this image directly, without reading the media session")
	flag.Parse()

	logger := util.NewLogger(util.ParseLogLevel(*logLevel))
	backend, err := wallpaper.ParseBackend(*backendName)
	if err != nil {
		exitErr(err)
	}
	setterOpts := wallpaper.SetterOptions{Backend: backend, Command: *command, Logger: logger.Named("wallpaper")}

	if *direct != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := applyPath(ctx, setterOpts, *direct, os.Stdout)
		cancel()
		if err != nil {
			exitErr(err)
		}
		return
	}

	cfg, err := config.LoadRules(*cfgPath)
	if err != nil {
		exitErr(fmt.Errorf("load config: %w", err))
	}
	rs, err := rules.Build(cfg)
	if err != nil {
		exitErr(fmt.Errorf("compile rules: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	src, err := session.NewDefaultSource(logger.Named("session"))
	if err != nil {
		exitErr(fmt.Errorf("open media session source: %w", err))
	}
	defer src.Close()
	if err := src.Connect(ctx); err != nil {
		exitErr(fmt.Errorf("connect media session: %w", err))
	}
	if err := src.RefreshSession(ctx); err != nil {
		logger.Warnf("select media session: %v", err)
	}
	props, ok, err := src.Current(ctx)
	if err != nil {
		exitErr(fmt.Errorf("read media session: %w", err))
	}
	var track *media.Track
	if ok {
		track = media.NewTrack(props, time.Now())
	}

	fmt.Printf("Loaded config from %s\n", *cfgPath)
	fmt.Println("\n=== Configuration ===")
	if err := marshalYAML(cfg); err != nil {
		logger.Warnf("failed to print config: %v", err)
	}

	fmt.Println("\n=== Media Session ===")
	if track == nil {
		fmt.Println("No active media session.")
	} else if err := marshalJSON(track); err != nil {
		logger.Warnf("failed to print track: %v", err)
	}

	path := rs.Default()
	if track != nil {
		exp := rs.Explain(track)
		path = exp.Result.Path
		if *explain {
			fmt.Println("\n=== Rule Evaluation ===")
			for _, line := range rules.SummarizeExplanation(exp) {
				fmt.Println(line)
			}
		}
	}
	if path == "" {
		fmt.Println("\nNo wallpaper selected for current session.")
		return
	}
	fmt.Printf("\nSelected wallpaper: %s\n", path)
	if !*apply {
		return
	}
	if err := applyPath(ctx, setterOpts, path, os.Stdout); err != nil {
		exitErr(err)
	}
}

// applyPath sets path through the configured backend and reports the outcome to out.
func applyPath(ctx context.Context, opts wallpaper.SetterOptions, path string, out io.Writer) error {
	setter, err := wallpaper.NewSetter(opts)
	if err != nil {
		return fmt.Errorf("configure wallpaper backend: %w", err)
	}
	changed, err := wallpaper.NewApplier(setter, opts.Logger).SetWallpaper(ctx, path)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Fprintln(out, "Wallpaper was not changed (file missing or unsupported).")
		return nil
	}
	fmt.Fprintf(out, "Wallpaper set via %s.\n", setter.Name())
	return nil
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func marshalYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func marshalJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
