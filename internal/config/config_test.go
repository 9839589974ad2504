package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func intPtr(v int) *int { return &v }

func TestLoadRulesJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "default_wallpaper": "/walls/default.jpg",
  "rules": [
    {"wallpaper": "/walls/band.jpg", "match": {"artist_contains": "Band", "priority": 5}},
    {"wallpaper": "/walls/any.png", "priority": 2}
  ]
}`)
	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	want := &RulesConfig{
		DefaultWallpaper: "/walls/default.jpg",
		Rules: []RuleConfig{
			{Wallpaper: "/walls/band.jpg", Match: MatchConfig{ArtistContains: "Band", Priority: intPtr(5)}},
			{Wallpaper: "/walls/any.png", Priority: intPtr(2)},
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
	if got := cfg.Rules[0].EffectivePriority(); got != 5 {
		t.Fatalf("match priority = %d, want 5", got)
	}
	if got := cfg.Rules[1].EffectivePriority(); got != 2 {
		t.Fatalf("rule priority = %d, want 2", got)
	}
}

func TestLoadRulesTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
default_wallpaper = "/walls/default.jpg"

[[rules]]
name = "daft"
wallpaper = "/walls/daft.jpg"
[rules.match]
artist_contains = "Daft"
`)
	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Name != "daft" || cfg.Rules[0].Match.ArtistContains != "Daft" {
		t.Fatalf("unexpected rules: %#v", cfg.Rules)
	}
}

func TestLoadRulesExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	cfg, err := ParseRules([]byte(`{"default_wallpaper": "~/walls/d.jpg", "rules": [{"wallpaper": "~/walls/r.jpg"}]}`), FormatYAML)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if cfg.DefaultWallpaper != filepath.Join(home, "walls", "d.jpg") {
		t.Fatalf("default not expanded: %s", cfg.DefaultWallpaper)
	}
	if cfg.Rules[0].Wallpaper != filepath.Join(home, "walls", "r.jpg") {
		t.Fatalf("rule wallpaper not expanded: %s", cfg.Rules[0].Wallpaper)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	tests := map[string]struct {
		contents string
		want     string
	}{
		"missing wallpaper": {
			contents: `{"rules": [{"match": {"artist_contains": "x"}}]}`,
			want:     "rules[0].wallpaper: is required",
		},
		"malformed": {
			contents: `{"rules": [`,
			want:     "decode config",
		},
		"unknown key": {
			contents: `{"rules": [{"wallpaper": "a.jpg", "match": {"genre_contains": "rock"}}]}`,
			want:     "genre_contains",
		},
		"bad regex": {
			contents: `{"rules": [{"wallpaper": "a.jpg", "match": {"title_regex": "("}}]}`,
			want:     "title_regex",
		},
		"wrong shape": {
			contents: `{"rules": {"wallpaper": "a.jpg"}}`,
			want:     "decode config",
		},
		"empty": {
			contents: "  \n",
			want:     "config is empty",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tc.contents)
			_, err := LoadRules(path)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Path != path {
				t.Fatalf("error path = %q, want %q", cfgErr.Path, path)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.json"))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadTextDefaults(t *testing.T) {
	path := writeConfig(t, "settings.yaml", "font_size: 32\n")
	cfg, err := LoadText(path)
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if cfg.FontSize != 32 {
		t.Fatalf("font size = %d", cfg.FontSize)
	}
	if cfg.PaddingPx() != defaultPadding {
		t.Fatalf("padding = %d, want %d", cfg.PaddingPx(), defaultPadding)
	}
	if diff := cmp.Diff([]int{255, 255, 255}, cfg.TextColor); diff != "" {
		t.Fatalf("text colour default mismatch:\n%s", diff)
	}
	if cfg.OutputImage != DefaultOutputImage() {
		t.Fatalf("output = %s, want default", cfg.OutputImage)
	}
}

func TestLoadTextZeroPaddingIsKept(t *testing.T) {
	cfg, err := ParseText([]byte(`{"padding": 0, "output_image": "/tmp/out.png"}`), FormatYAML)
	if err != nil {
		t.Fatalf("ParseText: %v", err)
	}
	if cfg.PaddingPx() != 0 {
		t.Fatalf("explicit zero padding replaced by default: %d", cfg.PaddingPx())
	}
}

func TestTextLintCollectsAllIssues(t *testing.T) {
	_, err := ParseText([]byte(`{"font_size": -1, "text_color": [1, 2], "shadow_color": [0, 0, 300], "output_image": "out.gif"}`), FormatYAML)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	var paths []string
	for _, issue := range cfgErr.Issues {
		paths = append(paths, issue.Path)
	}
	want := []string{"font_size", "text_color", "shadow_color", "output_image"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("unexpected lint paths (-want +got):\n%s", diff)
	}
}

func TestLintFile(t *testing.T) {
	good := writeConfig(t, "good.json", `{"rules": [{"wallpaper": "a.jpg"}]}`)
	issues, err := LintFile(good, ModeRules)
	if err != nil || len(issues) != 0 {
		t.Fatalf("expected clean lint, got %v / %v", issues, err)
	}

	bad := writeConfig(t, "bad.json", `{"rules": [{"name": "x"}, {"wallpaper": ""}]}`)
	issues, err = LintFile(bad, ModeRules)
	if err != nil {
		t.Fatalf("LintFile: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %v", issues)
	}
	if issues[0].Error() != "rules[0](x).wallpaper: is required" {
		t.Fatalf("unexpected first issue: %s", issues[0].Error())
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("TEXT"); err != nil || m != ModeText {
		t.Fatalf("ParseMode(TEXT) = %q, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeRules {
		t.Fatalf("ParseMode(\"\") = %q, %v", m, err)
	}
	if _, err := ParseMode("slideshow"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestLoadRulesJSONEscapesAndDuplicateKeys(t *testing.T) {
	path := writeConfig(t, "config.json", `{
	"default_wallpaper": "C:\/old\/d.jpg",
	"default_wallpaper": "C:\/w\/d.jpg",
	"rules": [{"wallpaper": "C:\/w\/r.jpg", "match": {"title_regex": "^live\\b"}}]
}`)
	cfg, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if cfg.DefaultWallpaper != "C:/w/d.jpg" {
		t.Fatalf("default = %q, want last duplicate with unescaped slashes", cfg.DefaultWallpaper)
	}
	if cfg.Rules[0].Wallpaper != "C:/w/r.jpg" || cfg.Rules[0].Match.TitleRegex != `^live\b` {
		t.Fatalf("unexpected rule: %#v", cfg.Rules[0])
	}
}

func TestFormatForPath(t *testing.T) {
	cases := map[string]Format{
		"config.json":  FormatJSON,
		"CONFIG.JSON":  FormatJSON,
		"config.toml":  FormatTOML,
		"config.yaml":  FormatYAML,
		"config.yml":   FormatYAML,
		"config":       FormatYAML,
		"settings.ini": FormatYAML,
	}
	for path, want := range cases {
		if got := FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %d, want %d", path, got, want)
		}
	}
}

func TestParseRulesJSONRejectsTrailingDocument(t *testing.T) {
	_, err := ParseRules([]byte(`{"rules": []} {"rules": []}`), FormatJSON)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || !strings.Contains(err.Error(), "trailing data") {
		t.Fatalf("expected trailing data ConfigError, got %v", err)
	}
}
