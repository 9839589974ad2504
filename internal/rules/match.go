package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/giledward/wallmusic/internal/config"
	"github.com/giledward/wallmusic/internal/media"
)

type field string

const (
	fieldTitle  field = "title"
	fieldArtist field = "artist"
	fieldAlbum  field = "album"
	fieldAppID  field = "app_id"
)

func (f field) value(t *media.Track) string {
	switch f {
	case fieldTitle:
		return t.Title
	case fieldArtist:
		return t.Artist
	case fieldAlbum:
		return t.Album
	case fieldAppID:
		return t.AppID
	}
	return ""
}

type filter struct {
	kind     string
	field    field
	raw      string
	contains string
	regex    *regexp.Regexp
}

func (f filter) test(t *media.Track) bool {
	actual := f.field.value(t)
	if f.regex != nil {
		return f.regex.MatchString(actual)
	}
	return strings.Contains(strings.ToLower(actual), f.contains)
}

// Matches reports whether every filter of the rule passes for track.
func (r Rule) Matches(track *media.Track) bool {
	if track == nil {
		return false
	}
	for _, f := range r.filters {
		if !f.test(track) {
			return false
		}
	}
	return true
}

func compileFilters(mc config.MatchConfig) ([]filter, error) {
	filters := make([]filter, 0, 7)
	substrings := []struct {
		kind  string
		field field
		value string
	}{
		{"artist_contains", fieldArtist, mc.ArtistContains},
		{"title_contains", fieldTitle, mc.TitleContains},
		{"album_contains", fieldAlbum, mc.AlbumContains},
		{"app_id_contains", fieldAppID, mc.AppIDContains},
	}
	for _, s := range substrings {
		if s.value == "" {
			continue
		}
		filters = append(filters, filter{
			kind:     s.kind,
			field:    s.field,
			raw:      s.value,
			contains: strings.ToLower(s.value),
		})
	}
	patterns := []struct {
		kind  string
		field field
		value string
	}{
		{"title_regex", fieldTitle, mc.TitleRegex},
		{"artist_regex", fieldArtist, mc.ArtistRegex},
		{"album_regex", fieldAlbum, mc.AlbumRegex},
	}
	for _, p := range patterns {
		if p.value == "" {
			continue
		}
		rgx, err := config.CompileFilterRegex(p.value)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", p.kind, err)
		}
		filters = append(filters, filter{kind: p.kind, field: p.field, raw: p.value, regex: rgx})
	}
	return filters, nil
}
