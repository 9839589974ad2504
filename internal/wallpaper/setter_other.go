//go:build !linux && !darwin && !windows

package wallpaper

import (
	"fmt"
	"runtime"
)

func newPlatformSetter(opts SetterOptions) (Setter, error) {
	if opts.Backend == BackendAuto {
		return nil, fmt.Errorf("no default wallpaper backend on %s; use --backend command", runtime.GOOS)
	}
	return newCommandSetter(opts.Backend, opts.Command, execRunner, opts.Logger)
}
