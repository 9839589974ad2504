package control

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/metrics"
	"github.com/giledward/wallmusic/internal/rules"
)

const (
	// SocketFileName is the filename of the control socket within the runtime dir.
	SocketFileName = "control.sock"
	// SocketEnv overrides the control socket location.
	SocketEnv = "WALLMUSIC_CONTROL_SOCKET"

	// Action names supported by the control protocol.
	ActionStatus = "status"
	ActionReload = "reload"
	ActionMatch  = "match"
	ActionPoll   = "poll"

	// Response statuses.
	StatusOK    = "ok"
	StatusError = "error"
)

// Request represents a control API request.
type Request struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Response represents a control API response.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// MetricsSnapshot mirrors the collector snapshot returned by the daemon.
type MetricsSnapshot = metrics.Snapshot

// Decision mirrors a dispatcher history entry.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	Track     string    `json:"track"`
	AppID     string    `json:"appId,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	Wallpaper string    `json:"wallpaper,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// DaemonStatus is the payload of the status and poll actions.
type DaemonStatus struct {
	Mode         string          `json:"mode"`
	SpotifyOnly  bool            `json:"spotifyOnly"`
	ConfigPath   string          `json:"configPath,omitempty"`
	PollInterval string          `json:"pollInterval,omitempty"`
	Track        *media.Track    `json:"track,omitempty"`
	Wallpaper    string          `json:"wallpaper,omitempty"`
	Rule         string          `json:"rule,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Rules        int             `json:"rules"`
	UpdatedAt    time.Time       `json:"updatedAt,omitempty"`
	Metrics      MetricsSnapshot `json:"metrics"`
	History      []Decision      `json:"history,omitempty"`
}

// MatchQuery is the hypothetical track evaluated by the match action.
type MatchQuery struct {
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	AppID   string `json:"app_id,omitempty"`
	Explain bool   `json:"explain,omitempty"`
}

// Params encodes the query as request parameters.
func (q MatchQuery) Params() map[string]any {
	return map[string]any{
		"title":   q.Title,
		"artist":  q.Artist,
		"album":   q.Album,
		"app_id":  q.AppID,
		"explain": q.Explain,
	}
}

// MatchResult reports which wallpaper the active rules select for a query.
type MatchResult struct {
	Result      rules.Result       `json:"result"`
	Summary     []string           `json:"summary,omitempty"`
	Explanation *rules.Explanation `json:"explanation,omitempty"`
}

// DefaultSocketPath returns the expected location of the wallmusic control socket.
func DefaultSocketPath() (string, error) {
	if env := os.Getenv(SocketEnv); env != "" {
		return env, nil
	}
	return filepath.Join(xdg.RuntimeDir, "wallmusic", SocketFileName), nil
}
