package rules

import (
	"testing"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/google/go-cmp/cmp"
)

func intPtr(v int) *int { return &v }

func mustBuild(t *testing.T, cfg *config.RulesConfig) *RuleSet {
	t.Helper()
	rs, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rs
}

func TestBuildSortsByPriorityStable(t *testing.T) {
	rs := mustBuild(t, &config.RulesConfig{Rules: []config.RuleConfig{
		{Name: "five", Wallpaper: "5.jpg", Match: config.MatchConfig{Priority: intPtr(5)}},
		{Name: "ten", Wallpaper: "10.jpg", Match: config.MatchConfig{Priority: intPtr(10)}},
		{Name: "zero-a", Wallpaper: "0a.jpg"},
		{Name: "zero-b", Wallpaper: "0b.jpg", Priority: intPtr(0)},
		{Name: "ten-b", Wallpaper: "10b.jpg", Priority: intPtr(10)},
	}})
	var names []string
	for _, r := range rs.Rules() {
		names = append(names, r.Name)
	}
	want := []string{"ten", "ten-b", "five", "zero-a", "zero-b"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestPriorityOrderingSelectsHighest(t *testing.T) {
	rs := mustBuild(t, &config.RulesConfig{Rules: []config.RuleConfig{
		{Wallpaper: "p5.jpg", Match: config.MatchConfig{ArtistContains: "band", Priority: intPtr(5)}},
		{Wallpaper: "p10.jpg", Match: config.MatchConfig{ArtistContains: "band", Priority: intPtr(10)}},
		{Wallpaper: "p0.jpg", Match: config.MatchConfig{ArtistContains: "band"}},
	}})
	got := rs.Match(&media.Track{Artist: "Band"})
	if got.Path != "p10.jpg" || got.Rule != "rule-2" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestMatchFallsBackToDefault(t *testing.T) {
	track := &media.Track{Title: "Song", Artist: "Nobody"}
	withDefault := mustBuild(t, &config.RulesConfig{
		DefaultWallpaper: "default.jpg",
		Rules:            []config.RuleConfig{{Wallpaper: "band.jpg", Match: config.MatchConfig{ArtistContains: "Band"}}},
	})
	if got := withDefault.Match(track); got != (Result{Path: "default.jpg", Default: true}) {
		t.Fatalf("expected default, got %#v", got)
	}

	noDefault := mustBuild(t, &config.RulesConfig{
		Rules: []config.RuleConfig{{Wallpaper: "band.jpg", Match: config.MatchConfig{ArtistContains: "Band"}}},
	})
	if got := noDefault.Match(track); got.Found() {
		t.Fatalf("expected no wallpaper, got %#v", got)
	}
}

func TestBuildRejectsInvalidRules(t *testing.T) {
	if _, err := Build(&config.RulesConfig{Rules: []config.RuleConfig{{Name: "x"}}}); err == nil {
		t.Fatalf("expected error for missing wallpaper")
	}
	if _, err := Build(&config.RulesConfig{Rules: []config.RuleConfig{{Wallpaper: "a.jpg", Match: config.MatchConfig{AlbumRegex: "[unclosed"}}}}); err == nil {
		t.Fatalf("expected error for invalid regex")
	}
}

func TestPathsListsDefaultFirst(t *testing.T) {
	rs := mustBuild(t, &config.RulesConfig{
		DefaultWallpaper: "d.jpg",
		Rules: []config.RuleConfig{
			{Wallpaper: "low.jpg"},
			{Wallpaper: "high.jpg", Priority: intPtr(3)},
		},
	})
	if diff := cmp.Diff([]string{"d.jpg", "high.jpg", "low.jpg"}, rs.Paths()); diff != "" {
		t.Fatalf("unexpected paths (-want +got):\n%s", diff)
	}
}

func TestMatchNilTrack(t *testing.T) {
	rs := mustBuild(t, &config.RulesConfig{DefaultWallpaper: "d.jpg"})
	if got := rs.Match(nil); got.Found() {
		t.Fatalf("nil track should not be matched, got %#v", got)
	}
}
