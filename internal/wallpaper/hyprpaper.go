package wallpaper

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/giledward/wallmusic/internal/util"
)

const hyprpaperRequestTimeout = 2 * time.Second

// hyprpaperSetter speaks hyprpaper's IPC socket directly. When the socket is
// missing (hyprpaper not running yet, or an older build) it falls back to the
// hyprctl command steps.
type hyprpaperSetter struct {
	socketPath string
	fallback   Setter
	logger     *util.Logger

	mu       sync.Mutex
	lastPath string
}

func newHyprpaperSetter(getenv func(string) string, fallback Setter, logger *util.Logger) *hyprpaperSetter {
	path, err := hyprpaperSocketPath(getenv)
	if err != nil {
		logger.Debugf("hyprpaper socket unavailable: %v", err)
	}
	return &hyprpaperSetter{socketPath: path, fallback: fallback, logger: logger}
}

func hyprpaperSocketPath(getenv func(string) string) (string, error) {
	sig := getenv("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return "", fmt.Errorf("HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	runtimeDir := getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR not set")
	}
	return filepath.Join(runtimeDir, "hypr", sig, ".hyprpaper.sock"), nil
}

func (h *hyprpaperSetter) Name() string {
	return string(BackendHyprpaper)
}

func (h *hyprpaperSetter) Set(ctx context.Context, path string) error {
	if h.socketPath == "" {
		return h.fallback.Set(ctx, path)
	}
	if _, err := os.Stat(h.socketPath); err != nil {
		h.logger.Debugf("hyprpaper socket %s not found, using hyprctl", h.socketPath)
		return h.fallback.Set(ctx, path)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	// hyprpaper caches images by path; a rewritten file is only re-read after unload.
	if path == h.lastPath {
		if err := h.request(ctx, "unload "+path); err != nil {
			h.logger.Debugf("hyprpaper unload %s failed (ignored): %v", path, err)
		}
	}
	if err := h.request(ctx, "preload "+path); err != nil {
		return err
	}
	if err := h.request(ctx, "wallpaper ,"+path); err != nil {
		return err
	}
	h.lastPath = path
	// Previously preloaded images stay in memory until unloaded.
	if err := h.request(ctx, "unload unused"); err != nil {
		h.logger.Debugf("hyprpaper unload failed (ignored): %v", err)
	}
	return nil
}

// request sends one command and expects hyprpaper's "ok" reply.
func (h *hyprpaperSetter) request(ctx context.Context, payload string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", h.socketPath)
	if err != nil {
		return fmt.Errorf("connect hyprpaper socket: %w", err)
	}
	defer conn.Close()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(hyprpaperRequestTimeout)
	}
	_ = conn.SetDeadline(deadline)

	h.logger.Tracef("hyprpaper <- %s", payload)
	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("write hyprpaper request: %w", err)
	}
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("read hyprpaper reply: %w", err)
	}
	reply := strings.TrimSpace(string(buf[:n]))
	if reply != "ok" {
		return fmt.Errorf("hyprpaper %s: %s", strings.Fields(payload)[0], reply)
	}
	return nil
}
