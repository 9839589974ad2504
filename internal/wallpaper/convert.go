package wallpaper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

// BMPSibling returns the .bmp path next to path.
func BMPSibling(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".bmp"
}

// ensureBMP returns a BMP copy of the PNG at path, converting only when no
// up-to-date sibling exists. On conversion failure the PNG itself is returned.
func (a *Applier) ensureBMP(path string, pngInfo os.FileInfo) string {
	bmpPath := BMPSibling(path)
	if info, err := os.Stat(bmpPath); err == nil && !info.ModTime().Before(pngInfo.ModTime()) {
		return bmpPath
	}
	if err := ConvertToBMP(path, bmpPath); err != nil {
		a.logger.Errorf("convert %s to bmp, using png: %v", path, err)
		return path
	}
	a.logger.Infof("converted %s to %s", path, bmpPath)
	return bmpPath
}

// ConvertToBMP decodes src and writes it to dst as a BMP. The file appears
// at dst atomically.
func ConvertToBMP(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".wallmusic-*.bmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := bmp.Encode(tmp, img); err != nil {
		tmp.Close()
		return fmt.Errorf("encode bmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write bmp: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename bmp: %w", err)
	}
	return nil
}
