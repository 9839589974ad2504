package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/giledward/wallmusic/internal/control/client"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/metrics"
)

type staticStatus struct {
	status client.DaemonStatus
	err    error
}

func (s staticStatus) Status(context.Context) (client.DaemonStatus, error) {
	return s.status, s.err
}

func TestRenderShowsTrackWallpaperAndHistory(t *testing.T) {
	out := Render(client.DaemonStatus{
		Mode:        "rules",
		SpotifyOnly: true,
		Track:       &media.Track{Title: "Song", Artist: "Band", Album: "Record", AppID: "spotify", Playing: true},
		Wallpaper:   "/walls/band.jpg",
		Reason:      "rule band",
		Rules:       2,
		Metrics: metrics.Snapshot{
			Enabled: true,
			Events:  metrics.Events{Tracks: 3},
			Rules:   []metrics.RuleMetrics{{Mode: "rules", Rule: "band", Matched: 3, Applied: 1}},
		},
		History: []client.Decision{
			{Timestamp: time.Now(), Track: "Old — Tune", Status: "unchanged"},
			{Timestamp: time.Now(), Track: "Song — Band", Status: "applied", Wallpaper: "/walls/band.jpg"},
		},
	})
	for _, want := range []string{"rules (spotify only)", "Song — Band", "Record", "spotify (playing)", "/walls/band.jpg", "Rules: 2 loaded", "band", "Recent:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "Song — Band") > strings.Index(out, "Old — Tune") {
		t.Fatalf("expected newest history entry first:\n%s", out)
	}
}

func TestRenderWithoutTrack(t *testing.T) {
	out := Render(client.DaemonStatus{Mode: "text"})
	for _, want := range []string{"(nothing playing)", "(metrics disabled)", "(none)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunRendersErrorsUntilCancelled(t *testing.T) {
	var buf bytes.Buffer
	r := New(staticStatus{err: errors.New("dial control socket: no such file")}, &buf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if !strings.Contains(buf.String(), "no such file") {
		t.Fatalf("expected error in output, got %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestRunRequiresClient(t *testing.T) {
	if err := (&Renderer{}).Run(context.Background()); err == nil {
		t.Fatalf("expected error without client")
	}
}

func TestRenderShowsRelativeUpdateTime(t *testing.T) {
	out := Render(client.DaemonStatus{Mode: "rules", UpdatedAt: time.Now().Add(-3 * time.Minute)})
	if !strings.Contains(out, "3 minutes ago") {
		t.Fatalf("expected relative update time in output:\n%s", out)
	}
}
