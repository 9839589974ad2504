package wallpaper

import (
	"fmt"
	"os"
)

func newPlatformSetter(opts SetterOptions) (Setter, error) {
	backend := opts.Backend
	if backend == BackendAuto {
		detected, err := detectBackend(os.Getenv)
		if err != nil {
			return nil, err
		}
		opts.Logger.Debugf("detected %s wallpaper backend", detected)
		backend = detected
	}
	switch backend {
	case BackendWindows, BackendMacOS:
		return nil, fmt.Errorf("backend %s is not available on linux", backend)
	}
	cmd, err := newCommandSetter(backend, opts.Command, execRunner, opts.Logger)
	if err != nil {
		return nil, err
	}
	if backend == BackendHyprpaper {
		return newHyprpaperSetter(os.Getenv, cmd, opts.Logger), nil
	}
	return cmd, nil
}
