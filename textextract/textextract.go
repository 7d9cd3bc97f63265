// Package textextract pulls plain text out of PDF documents page by page.
package textextract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// NoPagesMessage is the text reported for a document without pages.
	NoPagesMessage = "No text content found in PDF."
	// NoTextMessage is the text reported when no page carries extractable text.
	NoTextMessage = "No extractable text found in PDF. This may be a scanned/image PDF."
)

// ErrUnreadable is returned when the document cannot be parsed.
var ErrUnreadable = errors.New("failed to parse PDF")

// Page is the text of a single page.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Result is the extracted text of a document.
type Result struct {
	Text           string `json:"text"`
	Pages          []Page `json:"pages,omitempty"`
	CharacterCount int    `json:"characterCount"`
	WordCount      int    `json:"wordCount"`
	HasText        bool   `json:"hasText"`
}

// Extract reads every page of data and renders it as "Page N:\n<text>"
// blocks separated by blank lines. Runs of whitespace inside a page collapse
// to a single space. Pages without text read "Page N: No text found".
func Extract(ctx context.Context, data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	total := r.NumPage()
	if total == 0 {
		return newResult(NoPagesMessage, nil, false), nil
	}

	pages := make([]Page, 0, total)
	blocks := make([]string, 0, total)
	hasText := false

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := pageText(r.Page(i))
		pages = append(pages, Page{Number: i, Text: text})

		if text == "" {
			blocks = append(blocks, fmt.Sprintf("Page %d: No text found", i))
			continue
		}
		hasText = true
		blocks = append(blocks, fmt.Sprintf("Page %d:\n%s", i, text))
	}

	if !hasText {
		return newResult(NoTextMessage, pages, false), nil
	}
	return newResult(strings.Join(blocks, "\n\n"), pages, true), nil
}

func pageText(p pdf.Page) string {
	if p.V.IsNull() {
		return ""
	}
	raw, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return collapseWhitespace(raw)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newResult(text string, pages []Page, hasText bool) *Result {
	return &Result{
		Text:           text,
		Pages:          pages,
		CharacterCount: utf8.RuneCountInString(text),
		WordCount:      len(strings.Fields(text)),
		HasText:        hasText,
	}
}
