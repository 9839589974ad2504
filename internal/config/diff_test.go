package config

import (
	"strings"
	"testing"
)

func TestDiffSerialized(t *testing.T) {
	oldData := []byte("{\n  \"default_wallpaper\": \"a.jpg\"\n}\n")
	newData := []byte("{\n  \"default_wallpaper\": \"b.jpg\"\n}\n")

	diff := DiffSerialized(oldData, newData)
	if diff == "" {
		t.Fatalf("expected diff, got empty string")
	}
	if !strings.Contains(diff, "a.jpg") || !strings.Contains(diff, "b.jpg") {
		t.Fatalf("expected diff to contain both versions, got %s", diff)
	}
	if DiffSerialized(oldData, oldData) != "" {
		t.Fatalf("identical payloads should not diff")
	}
}

func TestDiffRulesReportsChangedRule(t *testing.T) {
	prev := &RulesConfig{Rules: []RuleConfig{{Wallpaper: "/w/a.jpg", Match: MatchConfig{ArtistContains: "Band"}}}}
	curr := &RulesConfig{Rules: []RuleConfig{{Wallpaper: "/w/a.jpg", Match: MatchConfig{ArtistContains: "Other"}}}}
	diff := DiffRules(prev, curr)
	if !strings.Contains(diff, "Other") {
		t.Fatalf("expected changed filter in diff, got %s", diff)
	}
	if DiffRules(prev, prev) != "" {
		t.Fatalf("equal configs should not diff")
	}
}
