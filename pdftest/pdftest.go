// Package pdftest builds small PDF and image fixtures for tests.
package pdftest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strconv"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/primitives"
)

// PageText returns the text written on page n (one-based) by WritePDF.
func PageText(n int) string {
	return fmt.Sprintf("This is page %d", n)
}

// WritePDF writes an n-page document to w. Page i carries the text PageText(i).
func WritePDF(w io.Writer, n int) error {
	pages := make(map[string]*primitives.PDFPage, n)
	for i := range n {
		pageNumber := i + 1
		pages[strconv.Itoa(pageNumber)] = &primitives.PDFPage{
			Content: &primitives.Content{
				TextBoxes: []*primitives.TextBox{
					{
						Value:    PageText(pageNumber),
						Position: [2]float64{100, 100},
						Font: &primitives.FormFont{
							Name: "Helvetica",
							Size: 12,
						},
					},
				},
			},
		}
	}

	data, err := json.Marshal(primitives.PDF{Pages: pages})
	if err != nil {
		return err
	}
	return api.Create(nil, bytes.NewBuffer(data), w, nil)
}

// PDF returns an n-page document or fails the test.
func PDF(t testing.TB, n int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := WritePDF(&buf, n); err != nil {
		t.Fatalf("failed to create %d-page pdf: %v", n, err)
	}
	return buf.Bytes()
}

// PageCount returns the page count of data or fails the test.
func PageCount(t testing.TB, data []byte) int {
	t.Helper()

	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("failed to count pages: %v", err)
	}
	return n
}

// PNG returns a w x h PNG filled with a single color.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
