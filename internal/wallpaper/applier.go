package wallpaper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/util"
)

// SupportedExtensions lists the image types the applier accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".bmp", ".png"}

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Applier sets the desktop wallpaper only when it differs from the one it
// last applied.
type Applier struct {
	setter Setter
	logger *util.Logger

	mu         sync.Mutex
	current    string
	currentMod time.Time
}

// NewApplier wraps setter with the set-if-different gate.
func NewApplier(setter Setter, logger *util.Logger) *Applier {
	return &Applier{setter: setter, logger: logger}
}

// Current returns the last successfully applied path, as requested.
func (a *Applier) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// SetWallpaper applies path unless it is already the current wallpaper. It
// returns true when the OS setter was called successfully. Missing or
// unsupported files are logged and reported as false with a nil error; an OS
// failure is returned as *ApplyError.
func (a *Applier) SetWallpaper(ctx context.Context, path string) (bool, error) {
	resolved, err := filepath.Abs(config.ExpandPath(path))
	if err != nil {
		a.logger.Warnf("cannot resolve wallpaper path %q: %v", path, err)
		return false, nil
	}
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.logger.Warnf("wallpaper file does not exist: %s", resolved)
		} else {
			a.logger.Warnf("cannot stat wallpaper %s: %v", resolved, err)
		}
		return false, nil
	}
	if info.IsDir() {
		a.logger.Warnf("wallpaper path is a directory: %s", resolved)
		return false, nil
	}
	if !IsSupported(resolved) {
		a.logger.Warnf("unsupported wallpaper format %q: %s", filepath.Ext(resolved), resolved)
		return false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if resolved == a.current && info.ModTime().Equal(a.currentMod) {
		a.logger.Debugf("wallpaper already set: %s", resolved)
		return false, nil
	}

	target := resolved
	if strings.EqualFold(filepath.Ext(resolved), ".png") {
		target = a.ensureBMP(resolved, info)
	}
	if err := a.setter.Set(ctx, target); err != nil {
		return false, &ApplyError{Path: target, Backend: a.setter.Name(), Err: err}
	}
	a.current = resolved
	a.currentMod = info.ModTime()
	a.logger.Infof("wallpaper set: %s", target)
	return true, nil
}
