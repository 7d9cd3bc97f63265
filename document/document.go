// Package document implements PDF operations on in-memory documents:
// page counting, merging, splitting, optimizing, inspecting and building
// documents from images. All functions work on bytes and never touch the
// filesystem.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrInvalidPDF is returned when input cannot be parsed as a PDF.
	ErrInvalidPDF = errors.New("invalid or unreadable PDF")
	// ErrNoPages is returned when an operation would produce a document without pages.
	ErrNoPages = errors.New("no valid pages selected")
	// ErrNoInput is returned when an operation receives no documents or images.
	ErrNoInput = errors.New("no input documents")
	// ErrUnsupportedImage is returned for image formats that cannot be embedded.
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// Part is one output document of a split.
type Part struct {
	// Index is the zero-based position of the part in the split output.
	Index int
	// Pages holds the zero-based source page indices copied into the part.
	Pages []int
	// Label is the one-based page range of the part, e.g. "1-3".
	Label string
	Data  []byte
}

// Size returns the encoded size of the part in bytes.
func (p Part) Size() int { return len(p.Data) }

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// load parses and validates a document.
func load(rs io.ReadSeeker) (*model.Context, error) {
	if rs == nil {
		return nil, ErrNoInput
	}
	ctx, err := api.ReadValidateAndOptimize(rs, newConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return ctx, nil
}

// PageCount returns the number of pages in the document.
func PageCount(rs io.ReadSeeker) (int, error) {
	ctx, err := load(rs)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}

// extract writes a new document holding the given one-based page numbers of ctx.
func extract(ctx *model.Context, pageNumbers []int) ([]byte, error) {
	if len(pageNumbers) == 0 {
		return nil, ErrNoPages
	}
	out, err := pdfcpu.ExtractPages(ctx, pageNumbers, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extract pages: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(out, &buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return buf.Bytes(), nil
}
