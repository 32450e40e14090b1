// Package ingest loads training-methodology excerpts from a YAML manifest or
// a markdown book, embeds them and stores them for similarity search.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/coachctx/pkg/models"
)

// Entry is one excerpt as written in a manifest. Empty book fields inherit
// the manifest defaults.
type Entry struct {
	BookTitle    string   `yaml:"book_title,omitempty"`
	Methodology  string   `yaml:"methodology,omitempty"`
	Chapter      string   `yaml:"chapter,omitempty"`
	Section      string   `yaml:"section,omitempty"`
	Content      string   `yaml:"content"`
	Level        string   `yaml:"level,omitempty"`
	KeyRules     []string `yaml:"key_rules,omitempty"`
	Phases       []string `yaml:"phases,omitempty"`
	WorkoutTypes []string `yaml:"workout_types,omitempty"`
}

// Defaults apply to every entry that leaves the field empty.
type Defaults struct {
	BookTitle   string `yaml:"book_title"`
	Methodology string `yaml:"methodology"`
	Level       string `yaml:"level,omitempty"`
}

// Manifest is the on-disk format of a methodology corpus.
type Manifest struct {
	Defaults     Defaults `yaml:"defaults"`
	Instructions []Entry  `yaml:"instructions"`
	Version      int      `yaml:"version"`
}

// LoadManifest decodes a manifest from r and returns its instructions with
// defaults applied. Every invalid entry is reported.
func LoadManifest(r io.Reader) ([]models.BookInstruction, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version > 1 {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	out := make([]models.BookInstruction, 0, len(m.Instructions))
	var errs []error
	for i, e := range m.Instructions {
		in := e.toInstruction(m.Defaults)
		if err := Validate(in); err != nil {
			errs = append(errs, fmt.Errorf("instruction %d: %w", i, err))
			continue
		}
		out = append(out, in)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (e Entry) toInstruction(d Defaults) models.BookInstruction {
	return models.BookInstruction{
		BookTitle:    firstNonEmpty(e.BookTitle, d.BookTitle),
		Methodology:  firstNonEmpty(e.Methodology, d.Methodology),
		ChapterTitle: strings.TrimSpace(e.Chapter),
		SectionTitle: strings.TrimSpace(e.Section),
		Content:      strings.TrimSpace(e.Content),
		Level:        firstNonEmpty(e.Level, d.Level),
		KeyRules:     trimAll(e.KeyRules),
		Phases:       lowerAll(e.Phases),
		WorkoutTypes: lowerAll(e.WorkoutTypes),
	}
}

// Validate rejects instructions without a book title or content.
func Validate(in models.BookInstruction) error {
	switch {
	case in.BookTitle == "":
		return errors.New("book_title is required")
	case in.Content == "":
		return errors.New("content is required")
	}
	return nil
}

// EmbeddingText is the text embedded for an instruction: its chapter and
// section titles followed by the content.
func EmbeddingText(in models.BookInstruction) string {
	var parts []string
	if in.ChapterTitle != "" {
		parts = append(parts, in.ChapterTitle)
	}
	if in.SectionTitle != "" {
		parts = append(parts, in.SectionTitle)
	}
	parts = append(parts, in.Content)
	return strings.Join(parts, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := trimAll(in)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}
