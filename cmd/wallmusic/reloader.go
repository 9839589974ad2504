package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/engine"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/textwall"
	"github.com/giledward/wallmusic/internal/util"
)

// loadedConfig is the runtime form of one configuration file revision.
type loadedConfig struct {
	rules *rules.RuleSet
	text  *textwall.Builder
	raw   []byte
}

func buildConfig(raw []byte, path string, mode config.Mode, logger *util.Logger) (loadedConfig, error) {
	out := loadedConfig{raw: append([]byte(nil), raw...)}
	switch mode {
	case config.ModeText:
		cfg, err := config.ParseText(raw, config.FormatForPath(path))
		if err != nil {
			return loadedConfig{}, config.WithPath(err, path)
		}
		out.text = textwall.NewBuilder(cfg, logger.Named("textwall"))
	default:
		cfg, err := config.ParseRules(raw, config.FormatForPath(path))
		if err != nil {
			return loadedConfig{}, config.WithPath(err, path)
		}
		rs, err := rules.Build(cfg)
		if err != nil {
			return loadedConfig{}, fmt.Errorf("compile rules: %w", err)
		}
		out.rules = rs
	}
	return out, nil
}

func loadConfig(path string, mode config.Mode, logger *util.Logger) (loadedConfig, error) {
	raw, err := config.ReadFile(path)
	if err != nil {
		return loadedConfig{}, err
	}
	return buildConfig(raw, path, mode, logger)
}

type reloadTarget interface {
	SetRuleSet(*rules.RuleSet)
	SetTextBuilder(engine.TextBuilder)
}

// configReloader is shared by the file watcher, SIGHUP and the control socket.
type configReloader struct {
	mu             sync.Mutex
	path           string
	mode           config.Mode
	logger         *util.Logger
	target         reloadTarget
	afterReload    func()
	lastSerialized []byte
}

func newConfigReloader(path string, mode config.Mode, logger *util.Logger, target reloadTarget, serialized []byte, afterReload func()) *configReloader {
	return &configReloader{
		path:           path,
		mode:           mode,
		logger:         logger,
		target:         target,
		afterReload:    afterReload,
		lastSerialized: append([]byte(nil), serialized...),
	}
}

func (r *configReloader) Reload(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Infof("%s, reloading config", reason)
	raw, err := config.ReadFile(r.path)
	if err != nil {
		return err
	}
	loaded, err := buildConfig(raw, r.path, r.mode, r.logger)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) && len(cfgErr.Issues) > 0 {
			r.logLintErrors(cfgErr.Issues)
		}
		r.logDiff(raw)
		return err
	}

	switch r.mode {
	case config.ModeText:
		r.target.SetTextBuilder(loaded.text)
		r.logger.Infof("reloaded text wallpaper settings (output %s)", loaded.text.OutputPath())
	default:
		r.target.SetRuleSet(loaded.rules)
		r.logger.Infof("reloaded %d rule(s)", loaded.rules.Len())
	}
	r.lastSerialized = loaded.raw
	if r.afterReload != nil {
		r.afterReload()
	}
	return nil
}

func (r *configReloader) logDiff(current []byte) {
	diff := config.DiffSerialized(r.lastSerialized, current)
	if diff == "" {
		r.logger.Warnf("config change rejected; unable to compute diff vs last valid config")
		return
	}
	r.logger.Warnf("config change rejected; diff vs last valid config:\n%s", diff)
}

func (r *configReloader) logLintErrors(errs []config.LintError) {
	r.logger.Warnf("config validation failed with %d issue(s):", len(errs))
	for _, lintErr := range errs {
		if lintErr.Path != "" {
			r.logger.Warnf(" - %s: %s", lintErr.Path, lintErr.Message)
			continue
		}
		r.logger.Warnf(" - %s", lintErr.Message)
	}
}
