package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/metrics"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/util"
	"github.com/giledward/wallmusic/internal/wallpaper"
)

const (
	spotifyApp  = "spotify"
	defaultRule = "default"
	textRule    = "text"
)

// Applier is the idempotent wallpaper gate.
type Applier interface {
	SetWallpaper(ctx context.Context, path string) (bool, error)
}

// TextBuilder renders a wallpaper for a track and returns its path.
type TextBuilder interface {
	Build(track *media.Track) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	Mode        config.Mode
	SpotifyOnly bool
	// Verbose logs notifications that leave the wallpaper unchanged.
	Verbose bool
	Rules   *rules.RuleSet
	Text    TextBuilder
	Metrics *metrics.Collector
	Now     func() time.Time
}

// Status is the dispatcher's view of the most recent notification.
type Status struct {
	Mode        string       `json:"mode"`
	SpotifyOnly bool         `json:"spotifyOnly"`
	Track       *media.Track `json:"track,omitempty"`
	Wallpaper   string       `json:"wallpaper,omitempty"`
	Rule        string       `json:"rule,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Rules       int          `json:"rules"`
	UpdatedAt   time.Time    `json:"updatedAt,omitempty"`
}

// Dispatcher turns track notifications into wallpaper changes.
type Dispatcher struct {
	applier     Applier
	logger      *util.Logger
	mode        config.Mode
	spotifyOnly bool
	verbose     bool
	metrics     *metrics.Collector
	now         func() time.Time

	ruleSet atomic.Pointer[rules.RuleSet]

	mu        sync.Mutex
	text      TextBuilder
	track     *media.Track
	wallpaper string
	rule      string
	reason    string
	updatedAt time.Time

	history *decisionLog
	fatal   chan error
	failed  atomic.Bool
}

// New creates a dispatcher.
func New(applier Applier, logger *util.Logger, opts Options) *Dispatcher {
	mode := opts.Mode
	if mode == "" {
		mode = config.ModeRules
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	d := &Dispatcher{
		applier:     applier,
		logger:      logger,
		mode:        mode,
		spotifyOnly: opts.SpotifyOnly,
		verbose:     opts.Verbose,
		metrics:     opts.Metrics,
		now:         now,
		text:        opts.Text,
		history:     newDecisionLog(0),
		fatal:       make(chan error, 1),
	}
	rs := opts.Rules
	if rs == nil {
		rs = rules.NewRuleSet("", nil)
	}
	d.ruleSet.Store(rs)
	return d
}

// Mode returns the wallpaper mode.
func (d *Dispatcher) Mode() config.Mode {
	return d.mode
}

// RuleSet returns the active rule set.
func (d *Dispatcher) RuleSet() *rules.RuleSet {
	return d.ruleSet.Load()
}

// SetRuleSet swaps in a new rule set; in-flight matches keep the old one.
func (d *Dispatcher) SetRuleSet(rs *rules.RuleSet) {
	if rs == nil {
		return
	}
	d.ruleSet.Store(rs)
}

// SetTextBuilder replaces the text-mode renderer.
func (d *Dispatcher) SetTextBuilder(b TextBuilder) {
	d.mu.Lock()
	d.text = b
	d.mu.Unlock()
}

// Fatal delivers the first unrecoverable error (an OS wallpaper failure).
func (d *Dispatcher) Fatal() <-chan error {
	return d.fatal
}

// HandleTrack is the watcher subscriber. track is nil when nothing is playing.
func (d *Dispatcher) HandleTrack(ctx context.Context, track *media.Track) error {
	if track == nil {
		return d.handleNoMedia(ctx)
	}
	d.metrics.RecordTrack()
	if d.spotifyOnly && !track.FromApp(spotifyApp) {
		d.metrics.RecordFiltered()
		if d.verbose {
			d.logger.Infof("ignoring non-Spotify track from %q", track.AppID)
		}
		d.record(track, "", "", "spotify-only", DecisionFiltered, nil)
		return nil
	}

	switch d.mode {
	case config.ModeText:
		return d.handleText(ctx, track)
	default:
		return d.handleRules(ctx, track)
	}
}

func (d *Dispatcher) handleRules(ctx context.Context, track *media.Track) error {
	res := d.ruleSet.Load().Match(track)
	if !res.Found() {
		d.metrics.RecordUnmatched()
		if d.verbose {
			d.logger.Infof("no rule matched %s and no default wallpaper is configured", track)
		}
		d.setStatus(track, "", "", "no match")
		d.record(track, "", "", "no match", DecisionNoMatch, nil)
		return nil
	}
	rule, reason := res.Rule, fmt.Sprintf("rule %s", res.Rule)
	if res.Default {
		rule, reason = defaultRule, "default wallpaper"
	}
	d.metrics.RecordMatch(string(d.mode), rule)
	return d.apply(ctx, track, res.Path, rule, reason)
}

func (d *Dispatcher) handleText(ctx context.Context, track *media.Track) error {
	d.mu.Lock()
	builder := d.text
	d.mu.Unlock()
	if builder == nil {
		return errors.New("text mode without a text builder")
	}
	path, err := builder.Build(track)
	if err != nil {
		d.metrics.RecordApplyError(string(d.mode), textRule)
		d.record(track, textRule, "", "render", DecisionError, err)
		return fmt.Errorf("render text wallpaper: %w", err)
	}
	d.metrics.RecordMatch(string(d.mode), textRule)
	return d.apply(ctx, track, path, textRule, "text wallpaper")
}

// handleNoMedia applies the default wallpaper in rules mode; text mode has
// nothing to render.
func (d *Dispatcher) handleNoMedia(ctx context.Context) error {
	d.metrics.RecordNoMedia()
	if d.verbose {
		d.logger.Infof("no active media session")
	}
	def := d.ruleSet.Load().Default()
	if d.mode != config.ModeRules || def == "" {
		d.setStatus(nil, "", "", "no active media")
		d.record(nil, "", "", "no active media", DecisionIdle, nil)
		return nil
	}
	d.metrics.RecordMatch(string(d.mode), defaultRule)
	return d.apply(ctx, nil, def, defaultRule, "no active media")
}

func (d *Dispatcher) apply(ctx context.Context, track *media.Track, path, rule, reason string) error {
	changed, err := d.applier.SetWallpaper(ctx, path)
	if err != nil {
		d.metrics.RecordApplyError(string(d.mode), rule)
		d.record(track, rule, path, reason, DecisionError, err)
		var applyErr *wallpaper.ApplyError
		if errors.As(err, &applyErr) {
			d.signalFatal(err)
		}
		return err
	}
	d.setStatus(track, path, rule, reason)
	if !changed {
		if d.verbose {
			d.logger.Infof("wallpaper already set to %s", path)
		}
		d.record(track, rule, path, reason, DecisionUnchanged, nil)
		return nil
	}
	d.metrics.RecordApplied(string(d.mode), rule)
	if track != nil {
		d.logger.Infof("wallpaper updated to %s for %s (%s)", path, track, reason)
	} else {
		d.logger.Infof("wallpaper updated to %s (%s)", path, reason)
	}
	d.record(track, rule, path, reason, DecisionApplied, nil)
	return nil
}

func (d *Dispatcher) signalFatal(err error) {
	if !d.failed.CompareAndSwap(false, true) {
		return
	}
	d.logger.Errorf("fatal: %v", err)
	d.fatal <- err
}

func (d *Dispatcher) setStatus(track *media.Track, path, rule, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.track = media.Clone(track)
	if path != "" {
		d.wallpaper = path
	}
	d.rule = rule
	d.reason = reason
	d.updatedAt = d.now()
}

// Status returns a snapshot of the dispatcher state.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Mode:        string(d.mode),
		SpotifyOnly: d.spotifyOnly,
		Track:       media.Clone(d.track),
		Wallpaper:   d.wallpaper,
		Rule:        d.rule,
		Reason:      d.reason,
		Rules:       d.ruleSet.Load().Len(),
		UpdatedAt:   d.updatedAt,
	}
}

// History returns recent decisions, oldest first.
func (d *Dispatcher) History() []Decision {
	return d.history.snapshot()
}

// Explain traces rule evaluation for a hypothetical track.
func (d *Dispatcher) Explain(track *media.Track) rules.Explanation {
	return d.ruleSet.Load().Explain(track)
}

func (d *Dispatcher) record(track *media.Track, rule, path, reason string, status DecisionStatus, err error) {
	entry := Decision{
		Timestamp: d.now(),
		Track:     track.String(),
		Rule:      rule,
		Wallpaper: path,
		Reason:    reason,
		Status:    status,
	}
	if track != nil {
		entry.AppID = track.AppID
	}
	if err != nil {
		entry.Error = err.Error()
	}
	d.history.record(entry)
}
