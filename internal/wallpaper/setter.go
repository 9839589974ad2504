package wallpaper

import (
	"context"
	"fmt"
	"strings"

	"github.com/giledward/wallmusic/internal/util"
)

// Setter hands an image file to the desktop.
type Setter interface {
	Set(ctx context.Context, path string) error
	Name() string
}

// Backend names a wallpaper-setting mechanism.
type Backend string

const (
	BackendAuto      Backend = "auto"
	BackendGNOME     Backend = "gnome"
	BackendSwww      Backend = "swww"
	BackendSwaybg    Backend = "swaybg"
	BackendFeh       Backend = "feh"
	BackendHyprpaper Backend = "hyprpaper"
	BackendCommand   Backend = "command"
	BackendWindows   Backend = "windows"
	BackendMacOS     Backend = "macos"
)

var knownBackends = []Backend{
	BackendAuto, BackendGNOME, BackendSwww, BackendSwaybg, BackendFeh,
	BackendHyprpaper, BackendCommand, BackendWindows, BackendMacOS,
}

// ParseBackend validates a backend name; empty means auto.
func ParseBackend(s string) (Backend, error) {
	name := Backend(strings.ToLower(strings.TrimSpace(s)))
	if name == "" {
		return BackendAuto, nil
	}
	for _, b := range knownBackends {
		if b == name {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown wallpaper backend %q", s)
}

// SetterOptions selects and configures the OS setter.
type SetterOptions struct {
	Backend Backend
	// Command is the template for BackendCommand; %f is replaced by the image path.
	Command string
	Logger  *util.Logger
}

// NewSetter builds the setter for the running platform.
func NewSetter(opts SetterOptions) (Setter, error) {
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(util.LevelInfo)
	}
	if opts.Backend == BackendCommand {
		return newCommandSetter(opts.Backend, opts.Command, execRunner, opts.Logger)
	}
	return newPlatformSetter(opts)
}

// ApplyError reports that the OS refused to set the wallpaper.
type ApplyError struct {
	Path    string
	Backend string
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("set wallpaper %s via %s: %v", e.Path, e.Backend, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}
