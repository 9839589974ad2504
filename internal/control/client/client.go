package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/giledward/wallmusic/internal/control"
)

const (
	// defaultTimeout is used when the caller does not provide a context deadline.
	defaultTimeout = 3 * time.Second
)

// Client talks to the running wallmusic daemon over its control socket.
type Client struct {
	socketPath string
}

type (
	// DaemonStatus mirrors the status payload returned by the daemon.
	DaemonStatus = control.DaemonStatus
	// Decision mirrors a dispatcher history entry.
	Decision = control.Decision
	// MatchQuery describes a hypothetical track to evaluate.
	MatchQuery = control.MatchQuery
	// MatchResult reports the wallpaper the daemon's rules select.
	MatchResult = control.MatchResult
)

// New creates a client that connects to the provided socket path. When path is
// empty, the default runtime path is used.
func New(path string) (*Client, error) {
	if path == "" {
		var err error
		path, err = control.DefaultSocketPath()
		if err != nil {
			return nil, err
		}
	}
	return &Client{socketPath: path}, nil
}

// Status retrieves the daemon's current track, wallpaper, metrics and history.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, control.Request{Action: control.ActionStatus}, &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// Reload asks the daemon to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	return c.do(ctx, control.Request{Action: control.ActionReload}, nil)
}

// Poll forces a detection pass and returns the resulting status.
func (c *Client) Poll(ctx context.Context) (DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, control.Request{Action: control.ActionPoll}, &status); err != nil {
		return DaemonStatus{}, err
	}
	return status, nil
}

// Match asks the daemon which wallpaper its rules select for query.
func (c *Client) Match(ctx context.Context, query MatchQuery) (MatchResult, error) {
	if query.Title == "" && query.Artist == "" && query.Album == "" {
		return MatchResult{}, errors.New("match needs a title, artist or album")
	}
	var result MatchResult
	if err := c.do(ctx, control.Request{Action: control.ActionMatch, Params: query.Params()}, &result); err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, req control.Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	var resp control.Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != control.StatusOK {
		if resp.Error == "" {
			resp.Error = "unknown control error"
		}
		return errors.New(resp.Error)
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
