package session

import "github.com/giledward/wallmusic/internal/util"

// NewDefaultSource returns the platform media-session source.
func NewDefaultSource(logger *util.Logger) (Source, error) {
	return NewMPRISSource(logger), nil
}
