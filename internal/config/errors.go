package config

import (
	"fmt"
	"strings"
)

// LintError describes a single validation issue found in a configuration document.
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ConfigError reports a configuration file that is missing, malformed or invalid.
// Startup treats it as fatal; reloads keep the previous configuration.
type ConfigError struct {
	Path   string
	Err    error
	Issues []LintError
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case len(e.Issues) == 1:
		fmt.Fprintf(&b, ": %s", e.Issues[0].Error())
	case len(e.Issues) > 1:
		fmt.Fprintf(&b, ": %d issues, first: %s", len(e.Issues), e.Issues[0].Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
