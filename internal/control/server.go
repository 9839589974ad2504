package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/giledward/wallmusic/internal/engine"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/metrics"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/util"
)

// Hooks are daemon operations the server triggers on request.
type Hooks struct {
	Reload func(reason string) error
	Poll   func(ctx context.Context) error
	// Describe adds daemon-level fields such as the config path to a status.
	Describe func(*DaemonStatus)
}

// Server hosts the wallmusic control socket and serves requests.
type Server struct {
	dispatcher *engine.Dispatcher
	metrics    *metrics.Collector
	logger     *util.Logger
	hooks      Hooks
	socketPath string

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new control server on the default socket path.
func NewServer(d *engine.Dispatcher, collector *metrics.Collector, logger *util.Logger, hooks Hooks) (*Server, error) {
	path, err := DefaultSocketPath()
	if err != nil {
		return nil, err
	}
	return &Server{
		dispatcher: d,
		metrics:    collector,
		logger:     logger,
		hooks:      hooks,
		socketPath: path,
	}, nil
}

// SocketPath returns where the server listens.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve listens on the control socket until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.prepareSocket(); err != nil {
		return err
	}
	s.logger.Infof("control server listening on %s", s.socketPath)
	defer s.cleanup()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := s.accept(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Errorf("control accept error: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) accept(ctx context.Context) (net.Conn, error) {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return nil, context.Canceled
	}
	conn, err := listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}

func (s *Server) prepareSocket() error {
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create control dir: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

func (s *Server) cleanup() {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()
	if listener != nil {
		listener.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warnf("remove control socket: %v", err)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	var req Request
	if err := dec.Decode(&req); err != nil {
		s.writeError(conn, fmt.Errorf("decode request: %w", err))
		return
	}
	s.logger.Debugf("control request: %s", req.Action)
	switch req.Action {
	case ActionStatus:
		s.writeOK(conn, s.status())
	case ActionReload:
		s.handleReload(conn)
	case ActionMatch:
		s.handleMatch(conn, req.Params)
	case ActionPoll:
		s.handlePoll(ctx, conn)
	default:
		s.writeError(conn, fmt.Errorf("unknown action %q", req.Action))
	}
}

func (s *Server) status() DaemonStatus {
	st := s.dispatcher.Status()
	out := DaemonStatus{
		Mode:        st.Mode,
		SpotifyOnly: st.SpotifyOnly,
		Track:       st.Track,
		Wallpaper:   st.Wallpaper,
		Rule:        st.Rule,
		Reason:      st.Reason,
		Rules:       st.Rules,
		UpdatedAt:   st.UpdatedAt,
		Metrics:     s.metrics.Snapshot(),
	}
	history := s.dispatcher.History()
	if len(history) > 0 {
		out.History = make([]Decision, 0, len(history))
		for _, entry := range history {
			out.History = append(out.History, Decision{
				Timestamp: entry.Timestamp,
				Track:     entry.Track,
				AppID:     entry.AppID,
				Rule:      entry.Rule,
				Wallpaper: entry.Wallpaper,
				Reason:    entry.Reason,
				Status:    string(entry.Status),
				Error:     entry.Error,
			})
		}
	}
	if s.hooks.Describe != nil {
		s.hooks.Describe(&out)
	}
	return out
}

func (s *Server) handleReload(conn net.Conn) {
	if s.hooks.Reload == nil {
		s.writeError(conn, errors.New("reload not supported"))
		return
	}
	if err := s.hooks.Reload("control request"); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, nil)
}

func (s *Server) handlePoll(ctx context.Context, conn net.Conn) {
	if s.hooks.Poll == nil {
		s.writeError(conn, errors.New("poll not supported"))
		return
	}
	if err := s.hooks.Poll(ctx); err != nil {
		s.writeError(conn, err)
		return
	}
	s.writeOK(conn, s.status())
}

func (s *Server) handleMatch(conn net.Conn, params map[string]any) {
	track := media.NewTrack(media.Properties{
		Title:  stringParam(params, "title"),
		Artist: stringParam(params, "artist"),
		Album:  stringParam(params, "album"),
		AppID:  stringParam(params, "app_id"),
		Status: media.StatusPlaying,
	}, time.Now())
	if track == nil {
		s.writeError(conn, errors.New("match needs at least one of title, artist or album"))
		return
	}
	explain, _ := params["explain"].(bool)
	exp := s.dispatcher.Explain(track)
	result := MatchResult{Result: exp.Result}
	if explain {
		result.Explanation = &exp
		result.Summary = rules.SummarizeExplanation(exp)
	}
	s.writeOK(conn, result)
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func (s *Server) writeOK(conn net.Conn, data any) {
	resp := Response{Status: StatusOK}
	if data != nil {
		resp.Data = data
	}
	_ = json.NewEncoder(conn).Encode(resp)
}

func (s *Server) writeError(conn net.Conn, err error) {
	resp := Response{Status: StatusError}
	if err != nil {
		resp.Error = err.Error()
	}
	_ = json.NewEncoder(conn).Encode(resp)
}
