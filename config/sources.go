package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

//go:embed sources.yaml
var defaultSources []byte

// Render modes for a source page.
const (
	RenderHTTP    = "http"
	RenderBrowser = "browser"
)

// Source is one listing aggregator together with the declarative rules used
// to pull listings out of its pages.
type Source struct {
	ID        string `yaml:"id" validate:"required"`
	NameZh    string `yaml:"name_zh"`
	NameEn    string `yaml:"name_en"`
	URL       string `yaml:"url" validate:"required,url"`
	EstateURL string `yaml:"estate_url" validate:"omitempty,url"`
	Render    string `yaml:"render" validate:"oneof=http browser"`
	Disabled  bool   `yaml:"disabled"`

	// Anchors are regexps with one capture group holding the tower number.
	// Empty means the built-in tower anchors.
	Anchors      []string `yaml:"anchors"`
	WindowBefore int      `yaml:"window_before" validate:"gte=0"`
	WindowAfter  int      `yaml:"window_after" validate:"gte=0"`

	// Fields adds source-specific patterns next to the built-in ones; they win
	// when two hits start at the same offset. Keys are price_wan, price_yi,
	// price_million, price_plain, floor, floor_zone, unit, size and rooms.
	Fields map[string][]string `yaml:"fields"`

	BlockedMarkers []string `yaml:"blocked_markers"`
}

// Link is the URL recorded on listings from this source.
func (s Source) Link() string {
	if s.EstateURL != "" {
		return s.EstateURL
	}
	return s.URL
}

// DisplayName returns the bilingual name used in reports and email.
func (s Source) DisplayName() string {
	switch {
	case s.NameZh != "" && s.NameEn != "" && s.NameZh != s.NameEn:
		return s.NameZh + " " + s.NameEn
	case s.NameEn != "":
		return s.NameEn
	case s.NameZh != "":
		return s.NameZh
	}
	return s.ID
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources parses the rules file at path, or the built-in rules when path
// is empty. Disabled sources are dropped.
func LoadSources(path string) ([]Source, error) {
	data := defaultSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources file: %w", err)
		}
		data = b
	}
	return ParseSources(data)
}

// ParseSources decodes a YAML rules document and applies defaults.
func ParseSources(data []byte) ([]Source, error) {
	var f sourcesFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	out := make([]Source, 0, len(f.Sources))
	for _, s := range f.Sources {
		if s.Disabled {
			continue
		}
		if s.Render == "" {
			s.Render = RenderHTTP
		}
		if s.WindowBefore == 0 {
			s.WindowBefore = 80
		}
		if s.WindowAfter == 0 {
			s.WindowAfter = 240
		}
		if s.NameEn == "" {
			s.NameEn = s.ID
		}
		if s.NameZh == "" {
			s.NameZh = s.NameEn
		}
		out = append(out, s)
	}
	return out, nil
}
