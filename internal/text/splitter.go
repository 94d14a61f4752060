package text

import (
	"errors"
	"strings"
)

var ErrInvalidWindow = errors.New("chunk overlap must be non-negative and smaller than chunk size")

// Page is one page of extracted document text. Number is zero-based.
type Page struct {
	Number int
	Text   string
}

// Chunk is a contiguous window of a page's text.
type Chunk struct {
	Text  string
	Page  int
	Index int
}

// Splitter cuts text into windows of Size runes, each starting Size-Overlap
// runes after the previous one. The last window of a page may be shorter.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) (*Splitter, error) {
	s := &Splitter{Size: size, Overlap: overlap}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Splitter) validate() error {
	if s.Size <= 0 || s.Overlap < 0 || s.Overlap >= s.Size {
		return ErrInvalidWindow
	}
	return nil
}

// Split returns the windows of text. Whitespace-only input yields nothing.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	step := s.Size - s.Overlap

	var out []string
	for start := 0; ; start += step {
		end := start + s.Size
		if end >= len(runes) {
			out = append(out, string(runes[start:]))
			break
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// SplitPages splits every page independently and tags chunks with their page.
func (s *Splitter) SplitPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, p := range pages {
		for i, t := range s.Split(p.Text) {
			chunks = append(chunks, Chunk{Text: t, Page: p.Number, Index: i})
		}
	}
	return chunks
}

// Join reverses Split for a single page.
func (s *Splitter) Join(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(string([]rune(p)[s.Overlap:]))
	}
	return b.String()
}
