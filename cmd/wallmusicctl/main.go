package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/control/client"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/ui/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("wallmusicctl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	socket := fs.String("socket", "", "path to the wallmusic control socket")
	timeout := fs.Duration("timeout", 3*time.Second, "control request timeout")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <command> [args]\n", fs.Name())
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Commands:")
		fmt.Fprintln(fs.Output(), "  status\t\t\tshow the current track and wallpaper")
		fmt.Fprintln(fs.Output(), "  reload\t\t\ttrigger a live config reload")
		fmt.Fprintln(fs.Output(), "  poll\t\t\t\tre-read the media session now")
		fmt.Fprintln(fs.Output(), "  match [--explain] ...\tshow which wallpaper a track would get")
		fmt.Fprintln(fs.Output(), "  watch\t\t\t\tlaunch the live dashboard")
		fmt.Fprintln(fs.Output(), "  check --config <path>\tvalidate a configuration file")
		fmt.Fprintln(fs.Output())
		fmt.Fprintln(fs.Output(), "Flags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return fmt.Errorf("missing subcommand")
	}

	if args[0] == "check" {
		return runCheck(args[1:], os.Stdout, os.Stderr)
	}

	cli, err := client.New(*socket)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if args[0] == "watch" || args[0] == "tui" {
		return runWatch(cli)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	switch args[0] {
	case "status":
		status, err := cli.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, status)
		return nil
	case "reload":
		if err := cli.Reload(ctx); err != nil {
			return err
		}
		fmt.Println("Reload requested")
		return nil
	case "poll":
		status, err := cli.Poll(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, status)
		return nil
	case "match":
		return runMatch(ctx, cli, args[1:], os.Stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func runCheck(args []string, stdout io.Writer, stderr io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to configuration file")
	modeName := fs.String("mode", string(config.ModeRules), "configuration mode (rules|text)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *configPath == "" {
		fs.Usage()
		return fmt.Errorf("check requires --config <path>")
	}
	mode, err := config.ParseMode(*modeName)
	if err != nil {
		return err
	}

	lintErrs, err := config.LintFile(*configPath, mode)
	if err != nil {
		return err
	}
	if len(lintErrs) > 0 {
		fmt.Fprintf(stderr, "Configuration has %d issue(s):\n", len(lintErrs))
		for _, lintErr := range lintErrs {
			fmt.Fprintf(stderr, "- %s\n", lintErr.Error())
		}
		return fmt.Errorf("configuration validation failed")
	}

	if mode == config.ModeRules {
		missing, err := missingWallpapers(*configPath)
		if err != nil {
			return err
		}
		for _, path := range missing {
			fmt.Fprintf(stderr, "warning: wallpaper not found: %s\n", path)
		}
	}
	fmt.Fprintln(stdout, "Configuration OK")
	return nil
}

// missingWallpapers lists referenced images that do not exist; the daemon
// skips those at runtime rather than failing.
func missingWallpapers(path string) ([]string, error) {
	cfg, err := config.LoadRules(path)
	if err != nil {
		return nil, err
	}
	rs, err := rules.Build(cfg)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, p := range rs.Paths() {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

func runMatch(ctx context.Context, cli *client.Client, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var query client.MatchQuery
	fs.StringVar(&query.Title, "title", "", "track title")
	fs.StringVar(&query.Artist, "artist", "", "track artist")
	fs.StringVar(&query.Album, "album", "", "album title")
	fs.StringVar(&query.AppID, "app-id", "", "source application id")
	fs.BoolVar(&query.Explain, "explain", false, "include per-rule evaluation details")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	result, err := cli.Match(ctx, query)
	if err != nil {
		return err
	}
	printMatch(w, result)
	return nil
}

func runWatch(cli *client.Client) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	renderer := tui.New(cli, os.Stdout)
	if err := renderer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printStatus(w io.Writer, status client.DaemonStatus) {
	mode := status.Mode
	if status.SpotifyOnly {
		mode += " (spotify only)"
	}
	fmt.Fprintf(w, "Mode: %s\n", mode)
	if status.Track != nil {
		state := "paused"
		if status.Track.Playing {
			state = "playing"
		}
		fmt.Fprintf(w, "Track: %s [%s]\n", status.Track, state)
	} else {
		fmt.Fprintln(w, "Track: none")
	}
	if status.Wallpaper == "" {
		fmt.Fprintln(w, "Wallpaper: not set")
	} else {
		fmt.Fprintf(w, "Wallpaper: %s\n", status.Wallpaper)
	}
	if status.Rule != "" {
		fmt.Fprintf(w, "Rule: %s\n", status.Rule)
	}
	if status.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", status.Reason)
	}
	if status.Mode == string(config.ModeRules) {
		fmt.Fprintf(w, "Rules loaded: %d\n", status.Rules)
	}
	if status.ConfigPath != "" {
		fmt.Fprintf(w, "Config: %s\n", status.ConfigPath)
	}
}

func printMatch(w io.Writer, result client.MatchResult) {
	switch {
	case !result.Result.Found():
		fmt.Fprintln(w, "No wallpaper matches")
	case result.Result.Default:
		fmt.Fprintf(w, "Default wallpaper: %s\n", result.Result.Path)
	default:
		fmt.Fprintf(w, "Rule %s: %s\n", result.Result.Rule, result.Result.Path)
	}
	if len(result.Summary) > 0 {
		fmt.Fprintln(w, strings.Join(result.Summary, "\n"))
	}
}
