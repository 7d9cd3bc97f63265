// Package render rasterizes PDF pages to PNG or JPEG images.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"
)

// Format is an output image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

var (
	// ErrNoPages is returned when the page selection is empty after filtering.
	ErrNoPages = errors.New("no pages to render")
	// ErrTooManyPages is returned when the selection exceeds Options.MaxPages.
	ErrTooManyPages = errors.New("too many pages requested")
	// ErrInvalidFormat is returned for formats other than png and jpeg.
	ErrInvalidFormat = errors.New("format must be png or jpeg")
	// ErrUnreadable is returned when the renderer cannot open the document.
	ErrUnreadable = errors.New("document cannot be rendered")
)

// ParseFormat accepts "png", "jpeg" and "jpg" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return "png"
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Options control rendering.
type Options struct {
	Format Format
	// Scale multiplies the 72 DPI base resolution.
	Scale float64
	// Quality is the JPEG quality, 1-100.
	Quality int
	// Pages holds zero-based page indices. Nil renders every page.
	Pages []int
	// MaxWidth downsizes wider images, keeping the aspect ratio. Zero disables it.
	MaxWidth int
	// MaxPages caps the number of rendered pages. Zero disables it.
	MaxPages int
	// Workers bounds concurrent encoders.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = PNG
	}
	if o.Scale <= 0 {
		o.Scale = 2
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 100
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// Image is one rendered page.
type Image struct {
	// Page is the one-based page number.
	Page   int
	Format Format
	Width  int
	Height int
	Data   []byte
}

// Filename returns a name such as "page-3.png".
func (i Image) Filename() string {
	return fmt.Sprintf("page-%d.%s", i.Page, i.Format.Extension())
}

// Render rasterizes the selected pages of pdf. Pages outside the document
// are dropped. Images are returned in selection order.
func Render(ctx context.Context, pdf []byte, opts Options) ([]Image, error) {
	opts = opts.withDefaults()
	if opts.Format != PNG && opts.Format != JPEG {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, opts.Format)
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer doc.Close()

	pages := selectPages(opts.Pages, doc.NumPage())
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	if opts.MaxPages > 0 && len(pages) > opts.MaxPages {
		return nil, fmt.Errorf("%w: %d pages selected, limit is %d", ErrTooManyPages, len(pages), opts.MaxPages)
	}

	images := make([]Image, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	dpi := 72 * opts.Scale
	for i, page := range pages {
		if err := gctx.Err(); err != nil {
			break
		}

		// The fitz document is not safe for concurrent use; only encoding fans out.
		raster, err := doc.ImageDPI(page, dpi)
		if err != nil {
			g.Go(func() error { return fmt.Errorf("page %d: %w", page+1, err) })
			break
		}

		g.Go(func() error {
			img, err := encode(raster, opts)
			if err != nil {
				return fmt.Errorf("page %d: %w", page+1, err)
			}
			img.Page = page + 1
			images[i] = img
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

// PageCount returns the number of pages the renderer sees in pdf.
func PageCount(pdf []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// probe is a minimal one-page document used by Available.
const probe = "%PDF-1.4\n" +
	"1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n" +
	"2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n" +
	"3 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 72 72]>>endobj\n" +
	"trailer<</Root 1 0 R>>\n%%EOF\n"

var (
	availableOnce sync.Once
	available     bool
)

// Available reports whether the renderer can open documents. The result is
// computed once.
func Available() bool {
	availableOnce.Do(func() {
		n, err := PageCount([]byte(probe))
		available = err == nil && n == 1
	})
	return available
}

func selectPages(requested []int, total int) []int {
	if requested == nil {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i
		}
		return pages
	}

	pages := make([]int, 0, len(requested))
	for _, p := range requested {
		if p >= 0 && p < total {
			pages = append(pages, p)
		}
	}
	return pages
}

func encode(src image.Image, opts Options) (Image, error) {
	if opts.MaxWidth > 0 && src.Bounds().Dx() > opts.MaxWidth {
		src = imaging.Resize(src, opts.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	var err error
	switch opts.Format {
	case JPEG:
		err = imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
	default:
		err = imaging.Encode(&buf, src, imaging.PNG)
	}
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode image: %w", err)
	}

	b := src.Bounds()
	return Image{
		Format: opts.Format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Data:   buf.Bytes(),
	}, nil
}
