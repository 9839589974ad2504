package rules

import (
	"fmt"
	"sort"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
)

// Rule is a compiled rule ready for evaluation.
type Rule struct {
	Name      string
	Wallpaper string
	Priority  int
	filters   []filter
}

// RuleSet is an immutable, priority-ordered list of rules with an optional
// default wallpaper. Reloads build a new RuleSet instead of editing one.
type RuleSet struct {
	defaultWallpaper string
	rules            []Rule
}

// Result is the outcome of matching a track against a RuleSet.
type Result struct {
	Path string `json:"path,omitempty"`
	// Rule names the matching rule; empty when the default or nothing was selected.
	Rule    string `json:"rule,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// Found reports whether the result selects a wallpaper.
func (r Result) Found() bool {
	return r.Path != ""
}

// Build compiles configuration into a RuleSet.
func Build(cfg *config.RulesConfig) (*RuleSet, error) {
	if cfg == nil {
		return NewRuleSet("", nil), nil
	}
	compiled := make([]Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		name := rc.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		if rc.Wallpaper == "" {
			return nil, fmt.Errorf("rule %s: wallpaper is required", name)
		}
		filters, err := compileFilters(rc.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		compiled = append(compiled, Rule{
			Name:      name,
			Wallpaper: rc.Wallpaper,
			Priority:  rc.EffectivePriority(),
			filters:   filters,
		})
	}
	return NewRuleSet(cfg.DefaultWallpaper, compiled), nil
}

// NewRuleSet sorts a copy of rules by priority (descending) while preserving
// the original order for rules with the same priority.
func NewRuleSet(defaultWallpaper string, rules []Rule) *RuleSet {
	sorted := append([]Rule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &RuleSet{defaultWallpaper: defaultWallpaper, rules: sorted}
}

// Default returns the fallback wallpaper, or "".
func (rs *RuleSet) Default() string {
	if rs == nil {
		return ""
	}
	return rs.defaultWallpaper
}

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	return append([]Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Match returns the wallpaper of the first matching rule, falling back to the
// default wallpaper, or an empty Result when neither exists.
func (rs *RuleSet) Match(track *media.Track) Result {
	if rs == nil || track == nil {
		return Result{}
	}
	for _, rule := range rs.rules {
		if rule.Matches(track) {
			return Result{Path: rule.Wallpaper, Rule: rule.Name}
		}
	}
	if rs.defaultWallpaper != "" {
		return Result{Path: rs.defaultWallpaper, Default: true}
	}
	return Result{}
}

// Paths lists the default wallpaper followed by every rule wallpaper.
func (rs *RuleSet) Paths() []string {
	if rs == nil {
		return nil
	}
	paths := make([]string, 0, len(rs.rules)+1)
	if rs.defaultWallpaper != "" {
		paths = append(paths, rs.defaultWallpaper)
	}
	for _, rule := range rs.rules {
		paths = append(paths, rule.Wallpaper)
	}
	return paths
}
