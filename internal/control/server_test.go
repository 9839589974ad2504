package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/giledward/wallmusic/internal/engine"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/metrics"
	"github.com/giledward/wallmusic/internal/rules"
	"github.com/giledward/wallmusic/internal/util"
)

type fakeApplier struct{}

func (fakeApplier) SetWallpaper(context.Context, string) (bool, error) { return true, nil }

func newTestServer(t *testing.T, hooks Hooks) (*Server, *engine.Dispatcher) {
	t.Helper()
	logger := util.NewLoggerWithWriter(util.LevelError, io.Discard)
	collector := metrics.NewCollector(true)
	rs := rules.NewRuleSet("/walls/default.jpg", []rules.Rule{{Name: "everything", Wallpaper: "/walls/all.jpg"}})
	d := engine.New(fakeApplier{}, logger, engine.Options{Rules: rs, Metrics: collector})
	t.Setenv(SocketEnv, filepath.Join(t.TempDir(), SocketFileName))
	srv, err := NewServer(d, collector, logger, hooks)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, d
}

// roundTrip sends req through handle over an in-memory pipe.
func roundTrip(t *testing.T, srv *Server, req Request, out any) Response {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	var resp Response
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := json.NewEncoder(clientConn).Encode(req); err != nil {
			t.Errorf("encode request: %v", err)
			return
		}
		var raw struct {
			Status string          `json:"status"`
			Error  string          `json:"error"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(clientConn).Decode(&raw); err != nil {
			t.Errorf("decode response: %v", err)
			return
		}
		resp = Response{Status: raw.Status, Error: raw.Error}
		if out != nil && len(raw.Data) > 0 {
			if err := json.Unmarshal(raw.Data, out); err != nil {
				t.Errorf("decode data: %v", err)
			}
		}
	}()

	srv.handle(context.Background(), serverConn)
	wg.Wait()
	return resp
}

func TestStatusReportsDispatcherState(t *testing.T) {
	srv, d := newTestServer(t, Hooks{Describe: func(st *DaemonStatus) { st.ConfigPath = "/etc/wallmusic.json" }})
	if err := d.HandleTrack(context.Background(), &media.Track{Title: "Song", Artist: "Band", AppID: "spotify"}); err != nil {
		t.Fatalf("HandleTrack: %v", err)
	}

	var status DaemonStatus
	resp := roundTrip(t, srv, Request{Action: ActionStatus}, &status)
	if resp.Status != StatusOK {
		t.Fatalf("expected ok, got %s (%s)", resp.Status, resp.Error)
	}
	if status.Wallpaper != "/walls/all.jpg" || status.Rule != "everything" || status.Rules != 1 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.Track == nil || status.Track.Title != "Song" {
		t.Fatalf("expected current track in status, got %#v", status.Track)
	}
	if status.ConfigPath != "/etc/wallmusic.json" {
		t.Fatalf("Describe hook not applied: %q", status.ConfigPath)
	}
	if len(status.History) != 1 || status.History[0].Status != string(engine.DecisionApplied) {
		t.Fatalf("unexpected history: %#v", status.History)
	}
	if status.Metrics.Totals.Applied != 1 {
		t.Fatalf("unexpected metrics: %#v", status.Metrics)
	}
}

func TestMatchExplains(t *testing.T) {
	srv, _ := newTestServer(t, Hooks{})
	var result MatchResult
	resp := roundTrip(t, srv, Request{Action: ActionMatch, Params: MatchQuery{Title: "Song", Explain: true}.Params()}, &result)
	if resp.Status != StatusOK {
		t.Fatalf("expected ok, got %s (%s)", resp.Status, resp.Error)
	}
	if result.Result.Path != "/walls/all.jpg" || result.Result.Rule != "everything" {
		t.Fatalf("unexpected match result: %#v", result.Result)
	}
	if result.Explanation == nil || len(result.Explanation.Rules) != 1 || len(result.Summary) == 0 {
		t.Fatalf("expected explanation, got %#v", result)
	}

	resp = roundTrip(t, srv, Request{Action: ActionMatch, Params: MatchQuery{AppID: "spotify"}.Params()}, nil)
	if resp.Status != StatusError {
		t.Fatalf("expected error for empty query, got %s", resp.Status)
	}
}

func TestReloadAndPollHooks(t *testing.T) {
	var reasons []string
	polls := 0
	srv, _ := newTestServer(t, Hooks{
		Reload: func(reason string) error {
			reasons = append(reasons, reason)
			if len(reasons) > 1 {
				return errors.New("bad config")
			}
			return nil
		},
		Poll: func(context.Context) error {
			polls++
			return nil
		},
	})

	if resp := roundTrip(t, srv, Request{Action: ActionReload}, nil); resp.Status != StatusOK {
		t.Fatalf("first reload: %s (%s)", resp.Status, resp.Error)
	}
	if resp := roundTrip(t, srv, Request{Action: ActionReload}, nil); resp.Status != StatusError || resp.Error != "bad config" {
		t.Fatalf("second reload: %#v", resp)
	}
	var status DaemonStatus
	if resp := roundTrip(t, srv, Request{Action: ActionPoll}, &status); resp.Status != StatusOK {
		t.Fatalf("poll: %s (%s)", resp.Status, resp.Error)
	}
	if polls != 1 || status.Mode != "rules" {
		t.Fatalf("polls=%d status=%#v", polls, status)
	}
	if resp := roundTrip(t, srv, Request{Action: "bogus"}, nil); resp.Status != StatusError {
		t.Fatalf("expected error for unknown action")
	}
}

func TestMissingHooksReportUnsupported(t *testing.T) {
	srv, _ := newTestServer(t, Hooks{})
	for _, action := range []string{ActionReload, ActionPoll} {
		if resp := roundTrip(t, srv, Request{Action: action}, nil); resp.Status != StatusError {
			t.Fatalf("%s: expected error without hook", action)
		}
	}
}

func TestServeCreatesAndRemovesSocket(t *testing.T) {
	srv, _ := newTestServer(t, Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var conn net.Conn
	var err error
	for i := 0; i < 100; i++ {
		conn, err = net.Dial("unix", srv.SocketPath())
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial control socket: %v", err)
	}
	if err := json.NewEncoder(conn).Encode(Request{Action: ActionStatus}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	conn.Close()
	if resp.Status != StatusOK {
		t.Fatalf("expected ok, got %#v", resp)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not stop")
	}
	if _, err := os.Stat(srv.SocketPath()); !os.IsNotExist(err) {
		t.Fatalf("expected socket removed, stat err = %v", err)
	}
}
