package rules

import (
	"fmt"

	"github.com/giledward/wallmusic/internal/media"
)

// FilterTrace records the outcome of a single filter.
type FilterTrace struct {
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Result   bool   `json:"result"`
}

// RuleTrace records how one rule evaluated against a track.
type RuleTrace struct {
	Rule      string        `json:"rule"`
	Wallpaper string        `json:"wallpaper"`
	Priority  int           `json:"priority"`
	Matched   bool          `json:"matched"`
	Selected  bool          `json:"selected"`
	Filters   []FilterTrace `json:"filters,omitempty"`
}

// Explanation is the full evaluation trace for a track.
type Explanation struct {
	Rules  []RuleTrace `json:"rules"`
	Result Result      `json:"result"`
}

// Explain evaluates every rule, without short-circuiting, and marks the one Match would select.
func (rs *RuleSet) Explain(track *media.Track) Explanation {
	exp := Explanation{Result: rs.Match(track)}
	if rs == nil || track == nil {
		return exp
	}
	selected := false
	exp.Rules = make([]RuleTrace, 0, len(rs.rules))
	for _, rule := range rs.rules {
		rt := RuleTrace{
			Rule:      rule.Name,
			Wallpaper: rule.Wallpaper,
			Priority:  rule.Priority,
			Matched:   true,
		}
		for _, f := range rule.filters {
			ok := f.test(track)
			rt.Filters = append(rt.Filters, FilterTrace{
				Kind:     f.kind,
				Expected: f.raw,
				Actual:   f.field.value(track),
				Result:   ok,
			})
			if !ok {
				rt.Matched = false
			}
		}
		if rt.Matched && !selected {
			rt.Selected = true
			selected = true
		}
		exp.Rules = append(exp.Rules, rt)
	}
	return exp
}

// SummarizeExplanation renders an explanation as human-readable lines.
func SummarizeExplanation(exp Explanation) []string {
	lines := make([]string, 0, len(exp.Rules)*2+1)
	for _, rt := range exp.Rules {
		marker := " "
		if rt.Selected {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s %s (priority %d) => %t [%s]", marker, rt.Rule, rt.Priority, rt.Matched, rt.Wallpaper))
		if len(rt.Filters) == 0 {
			lines = append(lines, "    (no filters)")
		}
		for _, ft := range rt.Filters {
			lines = append(lines, fmt.Sprintf("    %s %q vs %q => %t", ft.Kind, ft.Expected, ft.Actual, ft.Result))
		}
	}
	switch {
	case exp.Result.Rule != "":
		lines = append(lines, fmt.Sprintf("result: %s (rule %s)", exp.Result.Path, exp.Result.Rule))
	case exp.Result.Default:
		lines = append(lines, fmt.Sprintf("result: %s (default)", exp.Result.Path))
	default:
		lines = append(lines, "result: no wallpaper")
	}
	return lines
}
