package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/giledward/wallmusic/internal/media"
)

// ErrUnsupported is returned when the platform has no media session backend.
var ErrUnsupported = errors.New("media sessions are not supported on this platform")

// Source is the OS media-session collaborator the watcher polls.
type Source interface {
	// Connect acquires the session manager.
	Connect(ctx context.Context) error
	// RefreshSession re-selects the current session, e.g. after players appear or vanish.
	RefreshSession(ctx context.Context) error
	// Current reports the current session's properties; ok is false when no session exists.
	Current(ctx context.Context) (props media.Properties, ok bool, err error)
	Close() error
}

// EventKind identifies a push notification emitted by a Notifier.
type EventKind int

const (
	EventSessionChanged EventKind = iota
	EventMediaPropertiesChanged
	EventPlaybackInfoChanged
)

func (k EventKind) String() string {
	switch k {
	case EventSessionChanged:
		return "session-changed"
	case EventMediaPropertiesChanged:
		return "media-properties-changed"
	case EventPlaybackInfoChanged:
		return "playback-info-changed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Registration is the token returned by Register and required to undo it.
type Registration struct {
	Kind EventKind
	ID   uint64
}

// Notifier is implemented by sources that can push change events. Handlers
// run on the source's goroutine and must not block.
type Notifier interface {
	Register(kind EventKind, fn func()) (Registration, error)
	Unregister(reg Registration) error
}
