// Package loader turns an uploaded PDF into page text and overlapping chunks.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"docsearch/internal/apperr"
	"docsearch/internal/text"
)

var (
	ErrNotPDF    = errors.New("file is not a PDF")
	ErrNoContent = errors.New("document has no extractable text")
)

var pdfMagic = []byte("%PDF-")

// PageReader extracts page text from a file on disk.
type PageReader interface {
	ReadPages(ctx context.Context, path string) ([]text.Page, error)
}

type Result struct {
	PageCount int
	Chunks    []text.Chunk
}

type Loader struct {
	reader   PageReader
	splitter *text.Splitter
}

func New(reader PageReader, splitter *text.Splitter) *Loader {
	return &Loader{reader: reader, splitter: splitter}
}

// LoadAndChunk parses path into pages and splits each page with the
// configured window. Any failure is a KindLoad error and yields no chunks.
func (l *Loader) LoadAndChunk(ctx context.Context, path string) (*Result, error) {
	pages, err := l.reader.ReadPages(ctx, path)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, apperr.E(apperr.KindLoad, "loader.LoadAndChunk", err)
	}

	chunks := l.splitter.SplitPages(pages)
	if len(chunks) == 0 {
		return nil, apperr.E(apperr.KindLoad, "loader.LoadAndChunk", ErrNoContent)
	}

	return &Result{PageCount: len(pages), Chunks: chunks}, nil
}

// PDFReader reads pages with github.com/ledongthuc/pdf.
type PDFReader struct{}

func (PDFReader) ReadPages(ctx context.Context, path string) (pages []text.Page, err error) {
	if err := checkMagic(path); err != nil {
		return nil, err
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = apperr.Errorf(apperr.KindLoad, "pdf.ReadPages", "malformed pdf: %v", rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperr.E(apperr.KindLoad, "pdf.Open", err)
	}
	defer f.Close()

	n := r.NumPage()
	pages = make([]text.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, apperr.E(apperr.KindLoad, fmt.Sprintf("pdf.Page(%d)", i), err)
		}
		pages = append(pages, text.Page{Number: i - 1, Text: content})
	}
	return pages, nil
}

func checkMagic(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path is a server-side temp file
	if err != nil {
		return apperr.E(apperr.KindLoad, "pdf.Open", err)
	}
	defer f.Close()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, pdfMagic) {
		return apperr.E(apperr.KindLoad, "pdf.Open", ErrNotPDF)
	}
	return nil
}
