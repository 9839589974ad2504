package media

import (
	"fmt"
	"strings"
	"time"
)

// PlaybackStatus mirrors the playback states reported by media sessions.
type PlaybackStatus string

const (
	StatusPlaying PlaybackStatus = "Playing"
	StatusPaused  PlaybackStatus = "Paused"
	StatusStopped PlaybackStatus = "Stopped"
)

// ParsePlaybackStatus maps a session status string onto a known status,
// treating anything unrecognised as stopped.
func ParsePlaybackStatus(s string) PlaybackStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playing":
		return StatusPlaying
	case "paused":
		return StatusPaused
	default:
		return StatusStopped
	}
}

// Properties is the raw metadata a session source reports for the current
// session before it is normalised into a Track.
type Properties struct {
	Title  string
	Artist string
	Album  string
	AppID  string
	Status PlaybackStatus
}

// Track is an immutable snapshot of the current playback metadata.
type Track struct {
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	AppID      string    `json:"appId"`
	Playing    bool      `json:"playing"`
	ObservedAt time.Time `json:"observedAt"`
}

// Identity is the subset of track fields used for change detection.
type Identity struct {
	Present bool
	Title   string
	Artist  string
	Album   string
	AppID   string
	Playing bool
}

// NoTrack is the identity of "nothing is playing".
var NoTrack = Identity{}

// NewTrack normalises session properties into a Track. It returns nil when the
// properties carry no title, artist or album, which sessions report briefly
// during track transitions.
func NewTrack(props Properties, observedAt time.Time) *Track {
	title := strings.TrimSpace(props.Title)
	artist := strings.TrimSpace(props.Artist)
	album := strings.TrimSpace(props.Album)
	if title == "" && artist == "" && album == "" {
		return nil
	}
	return &Track{
		Title:      title,
		Artist:     artist,
		Album:      album,
		AppID:      strings.TrimSpace(props.AppID),
		Playing:    props.Status == StatusPlaying,
		ObservedAt: observedAt,
	}
}

// IdentityOf returns the change-detection identity of t; a nil track maps to NoTrack.
func IdentityOf(t *Track) Identity {
	if t == nil {
		return NoTrack
	}
	return Identity{
		Present: true,
		Title:   t.Title,
		Artist:  t.Artist,
		Album:   t.Album,
		AppID:   t.AppID,
		Playing: t.Playing,
	}
}

// Identity returns the change-detection identity of the track.
func (t *Track) Identity() Identity {
	return IdentityOf(t)
}

// FromApp reports whether the source application identifier contains needle,
// ignoring case.
func (t *Track) FromApp(needle string) bool {
	if t == nil {
		return false
	}
	return strings.Contains(strings.ToLower(t.AppID), strings.ToLower(needle))
}

// String renders the track as title and artist for log lines.
func (t *Track) String() string {
	if t == nil {
		return "(no track)"
	}
	switch {
	case t.Artist == "":
		return t.Title
	case t.Title == "":
		return t.Artist
	default:
		return fmt.Sprintf("%s — %s", t.Title, t.Artist)
	}
}

// Clone returns a copy of t, or nil.
func Clone(t *Track) *Track {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
