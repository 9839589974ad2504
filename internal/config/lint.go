package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var supportedOutputExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
}

// Lint reports every problem in the rule configuration instead of stopping at the first.
func (c *RulesConfig) Lint() []LintError {
	var errs []LintError
	for i, rule := range c.Rules {
		path := fmt.Sprintf("rules[%d]", i)
		if rule.Name != "" {
			path = fmt.Sprintf("rules[%d](%s)", i, rule.Name)
		}
		if strings.TrimSpace(rule.Wallpaper) == "" {
			errs = append(errs, LintError{Path: path + ".wallpaper", Message: "is required"})
		}
		patterns := []struct {
			key, value string
		}{
			{"title_regex", rule.Match.TitleRegex},
			{"artist_regex", rule.Match.ArtistRegex},
			{"album_regex", rule.Match.AlbumRegex},
		}
		for _, p := range patterns {
			if p.value == "" {
				continue
			}
			if _, err := CompileFilterRegex(p.value); err != nil {
				errs = append(errs, LintError{Path: path + ".match." + p.key, Message: err.Error()})
			}
		}
	}
	return errs
}

// Lint reports every problem in the text-mode configuration.
func (c *TextConfig) Lint() []LintError {
	var errs []LintError
	if c.FontSize <= 0 {
		errs = append(errs, LintError{Path: "font_size", Message: fmt.Sprintf("must be positive, got %d", c.FontSize)})
	}
	if c.Padding != nil && *c.Padding < 0 {
		errs = append(errs, LintError{Path: "padding", Message: fmt.Sprintf("cannot be negative, got %d", *c.Padding)})
	}
	for _, col := range []struct {
		key   string
		value []int
	}{
		{"text_color", c.TextColor},
		{"shadow_color", c.ShadowColor},
		{"background_color", c.BackgroundColor},
	} {
		if err := validateColor(col.value); err != nil {
			errs = append(errs, LintError{Path: col.key, Message: err.Error()})
		}
	}
	if c.OutputImage != "" {
		ext := strings.ToLower(filepath.Ext(c.OutputImage))
		if _, ok := supportedOutputExtensions[ext]; !ok {
			errs = append(errs, LintError{Path: "output_image", Message: fmt.Sprintf("unsupported extension %q", ext)})
		}
	}
	return errs
}

func validateColor(rgb []int) error {
	if rgb == nil {
		return nil
	}
	if len(rgb) != 3 {
		return fmt.Errorf("must have 3 components [r, g, b], got %d", len(rgb))
	}
	for _, v := range rgb {
		if v < 0 || v > 255 {
			return fmt.Errorf("component %d out of range 0-255", v)
		}
	}
	return nil
}

// LintFile decodes a configuration file for the given mode and returns its
// validation issues. Decode and read failures are returned as errors.
func LintFile(path string, mode Mode) ([]LintError, error) {
	var err error
	switch mode {
	case ModeText:
		_, err = LoadText(path)
	default:
		_, err = LoadRules(path)
	}
	if err == nil {
		return nil, nil
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) && len(cfgErr.Issues) > 0 {
		return cfgErr.Issues, nil
	}
	return nil, err
}
