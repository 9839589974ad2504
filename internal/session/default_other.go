//go:build !linux

package session

import (
	"fmt"
	"runtime"

	"github.com/giledward/wallmusic/internal/util"
)

// NewDefaultSource returns the platform media-session source.
func NewDefaultSource(logger *util.Logger) (Source, error) {
	return nil, fmt.Errorf("%s: %w", runtime.GOOS, ErrUnsupported)
}
