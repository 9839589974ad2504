package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/giledward/wallmusic/internal/control/client"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/rules"
)

func writeTempConfig(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestRunCheckSuccess(t *testing.T) {
	wall := filepath.Join(t.TempDir(), "rock.png")
	if err := os.WriteFile(wall, []byte("png"), 0o600); err != nil {
		t.Fatalf("write wallpaper: %v", err)
	}
	cfg := "rules:\n  - name: rock\n    wallpaper: " + wall + "\n    match:\n      artist_contains: Band\n"
	path := writeTempConfig(t, "config.yaml", cfg)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	if err := runCheck([]string{"--config", path}, &stdout, &stderr); err != nil {
		t.Fatalf("runCheck returned error: %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "Configuration OK" {
		t.Fatalf("unexpected stdout: %q", stdout.String())
	}
	if strings.TrimSpace(stderr.String()) != "" {
		t.Fatalf("expected no stderr, got %q", stderr.String())
	}
}

func TestRunCheckWarnsAboutMissingWallpapers(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.png")
	cfg := `default_wallpaper = "` + missing + `"
`
	path := writeTempConfig(t, "config.toml", cfg)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	if err := runCheck([]string{"--config", path}, &stdout, &stderr); err != nil {
		t.Fatalf("runCheck returned error: %v", err)
	}
	if !strings.Contains(stderr.String(), "wallpaper not found: "+missing) {
		t.Fatalf("expected missing wallpaper warning, got %q", stderr.String())
	}
}

func TestRunCheckFailure(t *testing.T) {
	cfg := `{
  "rules": [
    {"name": "broken", "match": {"title_regex": "("}}
  ]
}`
	path := writeTempConfig(t, "config.json", cfg)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	err := runCheck([]string{"--config", path}, &stdout, &stderr)
	if err == nil {
		t.Fatalf("expected error from runCheck")
	}
	if strings.TrimSpace(stdout.String()) != "" {
		t.Fatalf("expected no stdout, got %q", stdout.String())
	}
	output := stderr.String()
	if !strings.Contains(output, "Configuration has 2 issue(s)") {
		t.Fatalf("expected aggregated error output, got %q", output)
	}
	if !strings.Contains(output, "rules[0](broken).wallpaper: is required") {
		t.Fatalf("missing wallpaper error: %q", output)
	}
	if !strings.Contains(output, "rules[0](broken).match.title_regex:") {
		t.Fatalf("missing regex error: %q", output)
	}
}

func TestRunCheckTextMode(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", "font_size: 0\ntext_color: [300, 0, 0]\n")
	var stdout, stderr bytes.Buffer
	if err := runCheck([]string{"--config", path, "--mode", "text"}, &stdout, &stderr); err == nil {
		t.Fatalf("expected invalid text color to fail the check")
	}
	if !strings.Contains(stderr.String(), "text_color") {
		t.Fatalf("expected text_color issue, got %q", stderr.String())
	}
}

func TestRunCheckRequiresConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runCheck(nil, &stdout, &stderr); err == nil {
		t.Fatalf("expected error without --config")
	}
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, client.DaemonStatus{
		Mode:        "rules",
		SpotifyOnly: true,
		Track:       &media.Track{Title: "Song", Artist: "Band", Playing: true},
		Wallpaper:   "/walls/rock.png",
		Rule:        "rock",
		Reason:      "rule match",
		Rules:       3,
	})
	want := []string{
		"Mode: rules (spotify only)",
		"Track: Song — Band [playing]",
		"Wallpaper: /walls/rock.png",
		"Rule: rock",
		"Reason: rule match",
		"Rules loaded: 3",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status output mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintMatch(t *testing.T) {
	cases := []struct {
		name   string
		result client.MatchResult
		want   string
	}{
		{"none", client.MatchResult{}, "No wallpaper matches\n"},
		{"default", client.MatchResult{Result: rules.Result{Path: "/d.png", Default: true}}, "Default wallpaper: /d.png\n"},
		{"rule", client.MatchResult{Result: rules.Result{Path: "/r.png", Rule: "rock"}, Summary: []string{"result: /r.png (rule rock)"}}, "Rule rock: /r.png\nresult: /r.png (rule rock)\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			printMatch(&out, tc.result)
			if out.String() != tc.want {
				t.Fatalf("got %q, want %q", out.String(), tc.want)
			}
		})
	}
}
