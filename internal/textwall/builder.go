package textwall

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
	"github.com/giledward/wallmusic/internal/util"
)

const (
	canvasWidth  = 1920
	canvasHeight = 1080
	lineSpacing  = 8
	shadowOffset = 2
)

// Builder renders track text onto a background image.
type Builder struct {
	cfg    config.TextConfig
	logger *util.Logger

	fontCandidates []string

	faceOnce sync.Once
	face     font.Face
}

// NewBuilder creates a builder for cfg.
func NewBuilder(cfg *config.TextConfig, logger *util.Logger) *Builder {
	return &Builder{
		cfg:            *cfg,
		logger:         logger,
		fontCandidates: systemFontCandidates(),
	}
}

// OutputPath is where Build writes the generated wallpaper.
func (b *Builder) OutputPath() string {
	return b.cfg.OutputImage
}

// Build draws the track onto the background, writes the output image and
// returns its path.
func (b *Builder) Build(track *media.Track) (string, error) {
	if track == nil {
		return "", errors.New("no track to render")
	}
	canvas := b.background()
	face := b.fontFace()
	drawText(canvas, face, Lines(track), b.cfg.PaddingPx(), rgb(b.cfg.TextColor), rgb(b.cfg.ShadowColor))
	if err := save(canvas, b.cfg.OutputImage); err != nil {
		return "", err
	}
	b.logger.Debugf("rendered %s to %s", track, b.cfg.OutputImage)
	return b.cfg.OutputImage, nil
}

func (b *Builder) fontFace() font.Face {
	b.faceOnce.Do(func() {
		var source string
		b.face, source = b.resolveFace()
		b.logger.Debugf("text font: %s", source)
	})
	return b.face
}

func (b *Builder) background() *image.NRGBA {
	if path := b.cfg.BackgroundImage; path != "" {
		img, err := imaging.Open(path)
		if err == nil {
			return imaging.Clone(img)
		}
		b.logger.Warnf("background image %s unusable: %v; using solid colour", path, err)
	}
	return imaging.New(canvasWidth, canvasHeight, rgb(b.cfg.BackgroundColor))
}

// Lines returns the non-empty text lines drawn for track: title, artist, album.
func Lines(track *media.Track) []string {
	var lines []string
	for _, s := range []string{track.Title, track.Artist, track.Album} {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}

// drawText anchors the block bottom-left, shadow first.
func drawText(dst *image.NRGBA, face font.Face, lines []string, padding int, fg, shadow color.Color) {
	if len(lines) == 0 {
		return
	}
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	ascent := metrics.Ascent.Ceil()
	blockHeight := len(lines)*lineHeight + (len(lines)-1)*lineSpacing
	top := dst.Bounds().Max.Y - blockHeight - padding
	left := dst.Bounds().Min.X + padding

	for _, pass := range []struct {
		offset int
		col    color.Color
	}{{shadowOffset, shadow}, {0, fg}} {
		d := &font.Drawer{Dst: dst, Src: image.NewUniform(pass.col), Face: face}
		for i, line := range lines {
			baseline := top + ascent + i*(lineHeight+lineSpacing)
			d.Dot = fixed.P(left+pass.offset, baseline+pass.offset)
			d.DrawString(line)
		}
	}
}

// save writes img next to path and renames it into place so readers never
// observe a partial file.
func save(img image.Image, path string) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return fmt.Errorf("output image %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".wallmusic-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := imaging.Encode(tmp, img, format); err != nil {
		tmp.Close()
		return fmt.Errorf("encode output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}

func rgb(c []int) color.NRGBA {
	if len(c) < 3 {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2]), A: 255}
}
