package wallpaper

import (
	"context"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	spiSetDeskWallpaper  = 0x0014
	spifUpdateIniFile    = 0x01
	spifSendWinIniChange = 0x02
)

var (
	user32                    = windows.NewLazySystemDLL("user32.dll")
	procSystemParametersInfoW = user32.NewProc("SystemParametersInfoW")
)

type windowsSetter struct{}

func newPlatformSetter(opts SetterOptions) (Setter, error) {
	switch opts.Backend {
	case BackendAuto, BackendWindows:
		if err := procSystemParametersInfoW.Find(); err != nil {
			return nil, fmt.Errorf("load SystemParametersInfoW: %w", err)
		}
		return windowsSetter{}, nil
	default:
		return nil, fmt.Errorf("backend %s is not available on windows", opts.Backend)
	}
}

func (windowsSetter) Name() string {
	return string(BackendWindows)
}

func (windowsSetter) Set(_ context.Context, path string) error {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	ret, _, callErr := procSystemParametersInfoW.Call(
		spiSetDeskWallpaper,
		0,
		uintptr(unsafe.Pointer(ptr)),
		spifUpdateIniFile|spifSendWinIniChange,
	)
	if ret == 0 {
		if callErr != nil && callErr != windows.ERROR_SUCCESS {
			return fmt.Errorf("SystemParametersInfoW: %w", callErr)
		}
		return fmt.Errorf("SystemParametersInfoW failed")
	}
	return nil
}
