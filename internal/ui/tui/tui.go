package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/giledward/wallmusic/internal/control/client"
)

const (
	defaultRefresh = 500 * time.Millisecond
	trackWidth     = 48
	historyRows    = 10
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ECDC4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C757D"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#95E1A3"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// StatusSource returns the daemon status; *client.Client satisfies it.
type StatusSource interface {
	Status(ctx context.Context) (client.DaemonStatus, error)
}

// Renderer periodically polls the daemon and renders a textual dashboard.
type Renderer struct {
	Client  StatusSource
	Writer  io.Writer
	Refresh time.Duration
}

// New returns a renderer configured with sensible defaults.
func New(src StatusSource, w io.Writer) *Renderer {
	return &Renderer{Client: src, Writer: w, Refresh: defaultRefresh}
}

// Run starts the render loop until the context is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.Writer == nil {
		r.Writer = os.Stdout
	}
	if r.Client == nil {
		return errors.New("dashboard requires a control client")
	}

	refresh := r.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	fmt.Fprint(r.Writer, "\033[?25l")
	defer fmt.Fprint(r.Writer, "\033[?25h")

	r.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.render(ctx)
		}
	}
}

func (r *Renderer) render(ctx context.Context) {
	status, err := r.Client.Status(ctx)

	var buf bytes.Buffer
	buf.WriteString("\033[H\033[2J")
	buf.WriteString(titleStyle.Render("wallmusic") + " " + labelStyle.Render("Ctrl+C to exit"))
	buf.WriteByte('\n')
	buf.WriteString(labelStyle.Render(time.Now().Format(time.RFC1123)))
	buf.WriteString("\n\n")

	if err != nil {
		buf.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", err)))
		buf.WriteByte('\n')
		fmt.Fprint(r.Writer, buf.String())
		return
	}
	buf.WriteString(Render(status))
	fmt.Fprint(r.Writer, buf.String())
}

// Render formats a status snapshot as the dashboard body.
func Render(status client.DaemonStatus) string {
	var b strings.Builder
	b.WriteString(renderNowPlaying(status))
	b.WriteString(renderRules(status))
	b.WriteString(renderHistory(status.History))
	return b.String()
}

func renderNowPlaying(status client.DaemonStatus) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	mode := status.Mode
	if status.SpotifyOnly {
		mode += " (spotify only)"
	}
	fmt.Fprintf(tw, "Mode:\t%s\n", mode)
	if status.Track == nil {
		fmt.Fprintf(tw, "Track:\t%s\n", warnStyle.Render("(nothing playing)"))
	} else {
		state := "paused"
		if status.Track.Playing {
			state = "playing"
		}
		fmt.Fprintf(tw, "Track:\t%s\n", truncate(status.Track.String(), trackWidth))
		if status.Track.Album != "" {
			fmt.Fprintf(tw, "Album:\t%s\n", truncate(status.Track.Album, trackWidth))
		}
		fmt.Fprintf(tw, "Source:\t%s (%s)\n", orDash(status.Track.AppID), state)
	}
	wallpaper := orDash(status.Wallpaper)
	if status.Wallpaper != "" {
		wallpaper = okStyle.Render(wallpaper)
	}
	fmt.Fprintf(tw, "Wallpaper:\t%s\n", wallpaper)
	if status.Reason != "" {
		fmt.Fprintf(tw, "Reason:\t%s\n", status.Reason)
	}
	if !status.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", humanize.Time(status.UpdatedAt))
	}
	if status.PollInterval != "" {
		fmt.Fprintf(tw, "Polling:\t%s\n", status.PollInterval)
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderRules(status client.DaemonStatus) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Rules: %d loaded\n", status.Rules))
	m := status.Metrics
	if !m.Enabled {
		b.WriteString("  (metrics disabled)\n\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Tracks: %d  no media: %d  filtered: %d  unmatched: %d\n",
		m.Events.Tracks, m.Events.NoMedia, m.Events.Filtered, m.Events.Unmatched))
	if len(m.Rules) == 0 {
		b.WriteString("  (no rule activity yet)\n\n")
		return b.String()
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Rule\tMatched\tApplied\tErrors")
	for _, rule := range m.Rules {
		errs := fmt.Sprintf("%d", rule.ApplyErrors)
		if rule.ApplyErrors > 0 {
			errs = errorStyle.Render(errs)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", rule.Rule, rule.Matched, rule.Applied, errs)
	}
	tw.Flush()
	b.WriteByte('\n')
	return b.String()
}

func renderHistory(history []client.Decision) string {
	var b strings.Builder
	b.WriteString("Recent:\n")
	if len(history) == 0 {
		b.WriteString("  (none)\n")
		return b.String()
	}
	if len(history) > historyRows {
		history = history[len(history)-historyRows:]
	}
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Time\tStatus\tTrack\tWallpaper")
	for i := len(history) - 1; i >= 0; i-- {
		entry := history[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format("15:04:05"),
			styleStatus(entry.Status),
			truncate(entry.Track, trackWidth),
			orDash(entry.Wallpaper))
	}
	tw.Flush()
	return b.String()
}

func styleStatus(status string) string {
	switch status {
	case "applied":
		return okStyle.Render(status)
	case "error":
		return errorStyle.Render(status)
	case "filtered", "no-match":
		return warnStyle.Render(status)
	default:
		return status
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
