package wallpaper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/giledward/wallmusic/internal/util"
)

// step is one external command issued while setting a wallpaper.
type step struct {
	args []string
	// detach starts the process and leaves it running (swaybg must stay alive).
	detach bool
	// optional failures are logged and ignored.
	optional bool
}

type runner func(ctx context.Context, s step) ([]byte, error)

func execRunner(ctx context.Context, s step) ([]byte, error) {
	if s.detach {
		cmd := exec.Command(s.args[0], s.args[1:]...)
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		go cmd.Wait()
		return nil, nil
	}
	return exec.CommandContext(ctx, s.args[0], s.args[1:]...).CombinedOutput()
}

type commandSetter struct {
	backend  Backend
	template string
	run      runner
	logger   *util.Logger
}

func newCommandSetter(backend Backend, template string, run runner, logger *util.Logger) (*commandSetter, error) {
	if backend == BackendCommand && len(strings.Fields(template)) == 0 {
		return nil, errors.New("command backend requires --backend-command")
	}
	if _, err := steps(backend, template, "/dev/null"); err != nil {
		return nil, err
	}
	return &commandSetter{backend: backend, template: template, run: run, logger: logger}, nil
}

func (c *commandSetter) Name() string {
	return string(c.backend)
}

func (c *commandSetter) Set(ctx context.Context, path string) error {
	plan, err := steps(c.backend, c.template, path)
	if err != nil {
		return err
	}
	for _, s := range plan {
		c.logger.Debugf("exec %s", strings.Join(s.args, " "))
		out, err := c.run(ctx, s)
		if err == nil {
			continue
		}
		msg := strings.TrimSpace(string(out))
		if s.optional {
			c.logger.Debugf("%s failed (ignored): %v %s", s.args[0], err, msg)
			continue
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", s.args[0], err, msg)
		}
		return fmt.Errorf("%s: %w", s.args[0], err)
	}
	return nil
}

// steps returns the commands a backend runs to display path.
func steps(backend Backend, template, path string) ([]step, error) {
	switch backend {
	case BackendGNOME:
		uri := (&url.URL{Scheme: "file", Path: path}).String()
		return []step{
			{args: []string{"gsettings", "set", "org.gnome.desktop.background", "picture-uri", uri}},
			{args: []string{"gsettings", "set", "org.gnome.desktop.background", "picture-uri-dark", uri}, optional: true},
		}, nil
	case BackendSwww:
		return []step{{args: []string{"swww", "img", path, "--transition-type", "grow", "--transition-pos", "0.5,0.5"}}}, nil
	case BackendSwaybg:
		return []step{
			{args: []string{"pkill", "-x", "swaybg"}, optional: true},
			{args: []string{"swaybg", "-i", path, "-m", "fill"}, detach: true},
		}, nil
	case BackendFeh:
		return []step{{args: []string{"feh", "--no-fehbg", "--bg-fill", path}}}, nil
	case BackendHyprpaper:
		return []step{
			{args: []string{"hyprctl", "hyprpaper", "unload", path}, optional: true},
			{args: []string{"hyprctl", "hyprpaper", "preload", path}, optional: true},
			{args: []string{"hyprctl", "hyprpaper", "wallpaper", "," + path}},
		}, nil
	case BackendMacOS:
		script := fmt.Sprintf(`tell application "System Events" to tell every desktop to set picture to %q`, path)
		return []step{{args: []string{"osascript", "-e", script}}}, nil
	case BackendCommand:
		fields := strings.Fields(template)
		if len(fields) == 0 {
			return nil, errors.New("empty backend command")
		}
		args := make([]string, len(fields))
		for i, f := range fields {
			args[i] = strings.ReplaceAll(f, "%f", path)
		}
		return []step{{args: args}}, nil
	default:
		return nil, fmt.Errorf("backend %q is not command based", backend)
	}
}

// detectBackend guesses a Linux backend from the session environment.
func detectBackend(getenv func(string) string) (Backend, error) {
	desktop := strings.ToLower(getenv("XDG_CURRENT_DESKTOP"))
	if desktop == "" {
		desktop = strings.ToLower(getenv("DESKTOP_SESSION"))
	}
	switch {
	case getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" || strings.Contains(desktop, "hyprland"):
		return BackendHyprpaper, nil
	case strings.Contains(desktop, "gnome"), strings.Contains(desktop, "unity"),
		strings.Contains(desktop, "cinnamon"), strings.Contains(desktop, "budgie"):
		return BackendGNOME, nil
	case getenv("SWAYSOCK") != "" || strings.Contains(desktop, "sway"):
		return BackendSwaybg, nil
	case getenv("WAYLAND_DISPLAY") != "":
		return BackendSwww, nil
	case getenv("DISPLAY") != "":
		return BackendFeh, nil
	default:
		return "", fmt.Errorf("cannot detect a wallpaper backend for desktop %q; pass --backend", desktop)
	}
}
