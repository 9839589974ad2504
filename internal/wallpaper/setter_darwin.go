package wallpaper

import "fmt"

func newPlatformSetter(opts SetterOptions) (Setter, error) {
	switch opts.Backend {
	case BackendAuto, BackendMacOS:
		return newCommandSetter(BackendMacOS, "", execRunner, opts.Logger)
	default:
		return nil, fmt.Errorf("backend %s is not available on macOS", opts.Backend)
	}
}
