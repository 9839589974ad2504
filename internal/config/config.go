package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const appName = "wallmusic"

// Mode selects how a wallpaper is produced for a track.
type Mode string

const (
	ModeRules Mode = "rules"
	ModeText  Mode = "text"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeRules, "":
		return ModeRules, nil
	case ModeText:
		return ModeText, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want rules or text)", s)
	}
}

// Format identifies the serialization of a configuration file.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
	FormatJSON
)

// FormatForPath picks the decoder from the file extension. Unknown
// extensions are read as YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// RulesConfig is the rule-mode configuration document.
type RulesConfig struct {
	DefaultWallpaper string       `json:"default_wallpaper" yaml:"default_wallpaper" toml:"default_wallpaper"`
	Rules            []RuleConfig `json:"rules" yaml:"rules" toml:"rules"`
}

// RuleConfig describes a wallpaper and the conditions selecting it.
type RuleConfig struct {
	Name      string      `json:"name" yaml:"name" toml:"name"`
	Wallpaper string      `json:"wallpaper" yaml:"wallpaper" toml:"wallpaper"`
	Priority  *int        `json:"priority" yaml:"priority" toml:"priority"`
	Match     MatchConfig `json:"match" yaml:"match" toml:"match"`
}

// MatchConfig holds the optional filters of a rule. Empty filters always pass.
type MatchConfig struct {
	ArtistContains string `json:"artist_contains" yaml:"artist_contains" toml:"artist_contains"`
	TitleContains  string `json:"title_contains" yaml:"title_contains" toml:"title_contains"`
	AlbumContains  string `json:"album_contains" yaml:"album_contains" toml:"album_contains"`
	AppIDContains  string `json:"app_id_contains" yaml:"app_id_contains" toml:"app_id_contains"`
	TitleRegex     string `json:"title_regex" yaml:"title_regex" toml:"title_regex"`
	ArtistRegex    string `json:"artist_regex" yaml:"artist_regex" toml:"artist_regex"`
	AlbumRegex     string `json:"album_regex" yaml:"album_regex" toml:"album_regex"`
	Priority       *int   `json:"priority" yaml:"priority" toml:"priority"`
}

// EffectivePriority returns the match-block priority, then the rule priority, then 0.
func (r RuleConfig) EffectivePriority() int {
	switch {
	case r.Match.Priority != nil:
		return *r.Match.Priority
	case r.Priority != nil:
		return *r.Priority
	default:
		return 0
	}
}

// TextConfig is the text-mode configuration document.
type TextConfig struct {
	BackgroundImage string `json:"background_image" yaml:"background_image" toml:"background_image"`
	OutputImage     string `json:"output_image" yaml:"output_image" toml:"output_image"`
	FontPath        string `json:"font_path" yaml:"font_path" toml:"font_path"`
	FontSize        int    `json:"font_size" yaml:"font_size" toml:"font_size"`
	TextColor       []int  `json:"text_color" yaml:"text_color" toml:"text_color"`
	ShadowColor     []int  `json:"shadow_color" yaml:"shadow_color" toml:"shadow_color"`
	BackgroundColor []int  `json:"background_color" yaml:"background_color" toml:"background_color"`
	Padding         *int   `json:"padding" yaml:"padding" toml:"padding"`
}

const (
	defaultFontSize = 48
	defaultPadding  = 40
)

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

// DefaultOutputImage returns where text mode writes generated wallpapers by default.
func DefaultOutputImage() string {
	return filepath.Join(xdg.CacheHome, appName, "current_wallpaper.bmp")
}

// LoadRules reads, decodes and validates a rule-mode configuration file.
func LoadRules(path string) (*RulesConfig, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseRules(data, FormatForPath(path))
	if err != nil {
		return nil, WithPath(err, path)
	}
	return cfg, nil
}

// ParseRules decodes and validates rule-mode configuration bytes.
func ParseRules(data []byte, format Format) (*RulesConfig, error) {
	var cfg RulesConfig
	if err := decode(data, format, &cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	if errs := cfg.Lint(); len(errs) > 0 {
		return nil, &ConfigError{Issues: errs}
	}
	return &cfg, nil
}

// LoadText reads, decodes and validates a text-mode configuration file.
func LoadText(path string) (*TextConfig, error) {
	data, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseText(data, FormatForPath(path))
	if err != nil {
		return nil, WithPath(err, path)
	}
	return cfg, nil
}

// ParseText decodes and validates text-mode configuration bytes, applying defaults.
func ParseText(data []byte, format Format) (*TextConfig, error) {
	var cfg TextConfig
	if err := decode(data, format, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.expandPaths()
	if errs := cfg.Lint(); len(errs) > 0 {
		return nil, &ConfigError{Issues: errs}
	}
	return &cfg, nil
}

// ReadFile reads a configuration file, reporting failures as *ConfigError.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("missing settings file: %w", err)}
		}
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("read config: %w", err)}
	}
	return data, nil
}

func decode(data []byte, format Format, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &ConfigError{Err: errors.New("config is empty")}
	}
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return &ConfigError{Err: fmt.Errorf("decode toml: %w", err)}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return &ConfigError{Err: fmt.Errorf("decode config: %w", err)}
		}
		if dec.More() {
			return &ConfigError{Err: errors.New("decode config: trailing data after document")}
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return &ConfigError{Err: fmt.Errorf("decode config: %w", err)}
		}
	}
	return nil
}

// WithPath attaches path to a *ConfigError that does not carry one yet.
func WithPath(err error, path string) error {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Path == "" {
		cfgErr.Path = path
	}
	return err
}

func (c *RulesConfig) expandPaths() {
	c.DefaultWallpaper = ExpandPath(c.DefaultWallpaper)
	for i := range c.Rules {
		c.Rules[i].Wallpaper = ExpandPath(c.Rules[i].Wallpaper)
	}
}

func (c *TextConfig) applyDefaults() {
	if c.OutputImage == "" {
		c.OutputImage = DefaultOutputImage()
	}
	if c.FontSize == 0 {
		c.FontSize = defaultFontSize
	}
	if c.TextColor == nil {
		c.TextColor = []int{255, 255, 255}
	}
	if c.ShadowColor == nil {
		c.ShadowColor = []int{0, 0, 0}
	}
	if c.BackgroundColor == nil {
		c.BackgroundColor = []int{0, 0, 0}
	}
	if c.Padding == nil {
		padding := defaultPadding
		c.Padding = &padding
	}
}

func (c *TextConfig) expandPaths() {
	c.BackgroundImage = ExpandPath(c.BackgroundImage)
	c.OutputImage = ExpandPath(c.OutputImage)
	c.FontPath = ExpandPath(c.FontPath)
}

// PaddingPx returns the configured padding, defaulting when unset.
func (c *TextConfig) PaddingPx() int {
	if c.Padding == nil {
		return defaultPadding
	}
	return *c.Padding
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// CompileFilterRegex compiles a rule regex with case-insensitive search semantics.
func CompileFilterRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
