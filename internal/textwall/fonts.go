package textwall

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

// systemFontNames are tried, relative to each font directory, when no font
// is configured or the configured one cannot be used.
var systemFontNames = []string{
	"arial.ttf",
	"Arial.ttf",
	"Supplemental/Arial.ttf",
	"truetype/dejavu/DejaVuSans.ttf",
	"TTF/DejaVuSans.ttf",
	"dejavu/DejaVuSans.ttf",
	"dejavu-sans-fonts/DejaVuSans.ttf",
	"truetype/liberation/LiberationSans-Regular.ttf",
	"liberation-sans/LiberationSans-Regular.ttf",
	"noto/NotoSans-Regular.ttf",
	"truetype/noto/NotoSans-Regular.ttf",
}

func systemFontCandidates() []string {
	var out []string
	for _, dir := range xdg.FontDirs {
		for _, name := range systemFontNames {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}

func loadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	return face, nil
}

// resolveFace walks configured font -> system font -> built-in bitmap font,
// logging each downgrade.
func (b *Builder) resolveFace() (font.Face, string) {
	size := float64(b.cfg.FontSize)
	if b.cfg.FontPath != "" {
		face, err := loadFace(b.cfg.FontPath, size)
		if err == nil {
			return face, b.cfg.FontPath
		}
		b.logger.Warnf("failed to load font %s: %v; falling back to a system font", b.cfg.FontPath, err)
	}
	for _, candidate := range b.fontCandidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		face, err := loadFace(candidate, size)
		if err != nil {
			b.logger.Debugf("skip system font %s: %v", candidate, err)
			continue
		}
		return face, candidate
	}
	b.logger.Warnf("no system font found; using the built-in bitmap font")
	return basicfont.Face7x13, "builtin"
}
