// Package service runs PDF operations for the HTTP API, the job queue and
// the CLI. Every operation gets its configured timeout, waits for a
// throttle slot and goes through the result cache.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/joeychilson/pdfworks/cache"
	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/document"
	"github.com/joeychilson/pdfworks/logger"
	"github.com/joeychilson/pdfworks/pagerange"
	"github.com/joeychilson/pdfworks/ratelimit"
	"github.com/joeychilson/pdfworks/render"
	"github.com/joeychilson/pdfworks/textextract"
)

// ErrInvalidParameter wraps rejected request parameters.
var ErrInvalidParameter = errors.New("invalid parameter")

const (
	contentTypePDF  = "application/pdf"
	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
)

// Service runs PDF operations.
type Service struct {
	cfg       *config.Config
	cache     cache.Cache
	limiter   *ratelimit.Limiter
	logger    logger.Logger
	sanitizer *bluemonday.Policy
}

// New creates a Service. A nil cache disables result caching; a nil
// limiter disables throttling.
func New(cfg *config.Config, c cache.Cache, limiter *ratelimit.Limiter, log logger.Logger) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Service{
		cfg:       cfg,
		cache:     c,
		limiter:   limiter,
		logger:    log,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Merge concatenates every page of every input in order.
func (s *Service) Merge(ctx context.Context, inputs [][]byte) (*Output, error) {
	if len(inputs) == 0 {
		return nil, document.ErrNoInput
	}
	return s.run(ctx, config.OpMerge, inputs, nil, func(ctx context.Context) (*Output, error) {
		readers := make([]io.ReadSeeker, len(inputs))
		for i, in := range inputs {
			readers[i] = bytes.NewReader(in)
		}
		data, err := document.Merge(readers)
		if err != nil {
			return nil, err
		}
		return &Output{
			ContentType: contentTypePDF,
			Filename:    "merged.pdf",
			Body:        data,
			Meta:        map[string]string{"files": strconv.Itoa(len(inputs))},
		}, nil
	})
}

// Split cuts input into documents of pagesPerSplit pages. A single
// resulting document is returned as split.pdf.
func (s *Service) Split(ctx context.Context, input []byte, pagesPerSplit int) (*Output, error) {
	if pagesPerSplit < 1 {
		pagesPerSplit = 1
	}
	params := []string{strconv.Itoa(pagesPerSplit)}
	return s.run(ctx, config.OpSplit, [][]byte{input}, params, func(ctx context.Context) (*Output, error) {
		parts, err := document.SplitEvery(bytes.NewReader(input), pagesPerSplit)
		if err != nil {
			return nil, err
		}
		return partsOutput(parts, "split.pdf", "split-part-%d.pdf"), nil
	})
}

// SplitByRanges extracts one document per run of consecutive pages selected
// by expr. A single run is returned as split.pdf; several are returned as
// split-range-N.pdf files. Meta["groups"] lists the runs, e.g. "1-3,5".
func (s *Service) SplitByRanges(ctx context.Context, input []byte, expr string, policy pagerange.Policy) (*Output, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: ranges is required", ErrInvalidParameter)
	}
	params := []string{expr, policy.String()}
	return s.run(ctx, config.OpSplitByRanges, [][]byte{input}, params, func(ctx context.Context) (*Output, error) {
		parts, err := document.SplitByRangesWithPolicy(bytes.NewReader(input), expr, policy)
		if err != nil {
			return nil, err
		}
		out := partsOutput(parts, "split.pdf", "split-range-%d.pdf")
		out.Meta["ranges"] = expr
		return out, nil
	})
}

// Compress optimizes input. Meta reports originalSize and compressedSize.
func (s *Service) Compress(ctx context.Context, input []byte) (*Output, error) {
	return s.run(ctx, config.OpCompress, [][]byte{input}, nil, func(ctx context.Context) (*Output, error) {
		result, err := document.Compress(bytes.NewReader(input))
		if err != nil {
			return nil, err
		}
		return &Output{
			ContentType: contentTypePDF,
			Filename:    "compressed.pdf",
			Body:        result.Data,
			Meta: map[string]string{
				"originalSize":   strconv.FormatInt(result.OriginalSize, 10),
				"compressedSize": strconv.Itoa(len(result.Data)),
				"ratio":          strconv.FormatFloat(result.Ratio(), 'f', 4, 64),
			},
		}, nil
	})
}

// Info returns document metadata as JSON. Text fields are stripped of markup.
func (s *Service) Info(ctx context.Context, input []byte) (*Output, error) {
	return s.run(ctx, config.OpInfo, [][]byte{input}, nil, func(ctx context.Context) (*Output, error) {
		info, err := document.Inspect(bytes.NewReader(input))
		if err != nil {
			return nil, err
		}
		for _, field := range []*string{&info.Title, &info.Author, &info.Subject, &info.Keywords, &info.Creator, &info.Producer} {
			*field = s.clean(*field)
		}
		return jsonOutput(info)
	})
}

// ImageOptions are the parameters of ToImages. Zero values fall back to the
// render section of the configuration.
type ImageOptions struct {
	Format  string
	Scale   float64
	Quality int
	// Pages is "all", a JSON array of one-based page numbers, or a range
	// expression.
	Pages string
}

func (o ImageOptions) params() []string {
	return []string{o.Format, strconv.FormatFloat(o.Scale, 'f', -1, 64), strconv.Itoa(o.Quality), o.Pages}
}

// ToImages rasterizes the selected pages. A single page is returned as
// converted.<ext>; several pages are returned as page-N.<ext> files.
func (s *Service) ToImages(ctx context.Context, input []byte, opts ImageOptions) (*Output, error) {
	rc := s.cfg.Render
	if opts.Format == "" {
		opts.Format = rc.GetFormat()
	}
	format, err := render.ParseFormat(opts.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	opts.Format = string(format)
	if opts.Scale == 0 {
		opts.Scale = rc.GetScale()
	}
	if opts.Scale < 0 || opts.Scale > 10 {
		return nil, fmt.Errorf("%w: scale must be between 0 and 10", ErrInvalidParameter)
	}
	if opts.Quality == 0 {
		opts.Quality = rc.GetQuality()
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("%w: quality must be between 1 and 100", ErrInvalidParameter)
	}

	return s.run(ctx, config.OpToImages, [][]byte{input}, opts.params(), func(ctx context.Context) (*Output, error) {
		total, err := render.PageCount(input)
		if err != nil {
			return nil, err
		}
		pages, err := pagerange.ParseList(opts.Pages, total)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		if len(pages) == 0 {
			return nil, render.ErrNoPages
		}

		images, err := render.Render(ctx, input, render.Options{
			Format:   format,
			Scale:    opts.Scale,
			Quality:  opts.Quality,
			Pages:    pages,
			MaxPages: rc.GetMaxPages(),
			Workers:  rc.GetWorkers(),
		})
		if err != nil {
			return nil, err
		}

		if len(images) == 1 {
			return &Output{
				ContentType: format.ContentType(),
				Filename:    "converted." + format.Extension(),
				Body:        images[0].Data,
				Meta:        map[string]string{"page": strconv.Itoa(images[0].Page)},
			}, nil
		}

		out := &Output{
			ContentType: contentTypeJSON,
			Meta: map[string]string{
				"message":    fmt.Sprintf("PDF converted to %d images", len(images)),
				"totalPages": strconv.Itoa(total),
			},
		}
		for _, img := range images {
			out.Files = append(out.Files, File{Name: img.Filename(), ContentType: format.ContentType(), Data: img.Data})
		}
		return out, nil
	})
}

// ToText extracts the document text. Body holds the JSON result; Files[0]
// holds the plain text as extracted.txt.
func (s *Service) ToText(ctx context.Context, input []byte) (*Output, error) {
	return s.run(ctx, config.OpToText, [][]byte{input}, nil, func(ctx context.Context) (*Output, error) {
		result, err := textextract.Extract(ctx, input)
		if err != nil {
			return nil, err
		}
		out, err := jsonOutput(struct {
			Text           string `json:"text"`
			CharacterCount int    `json:"characterCount"`
			WordCount      int    `json:"wordCount"`
			Pages          int    `json:"pages"`
			HasText        bool   `json:"hasText"`
		}{result.Text, result.CharacterCount, result.WordCount, len(result.Pages), result.HasText})
		if err != nil {
			return nil, err
		}
		out.Files = []File{{Name: "extracted.txt", ContentType: contentTypeText, Data: []byte(result.Text)}}
		return out, nil
	})
}

// ImagesToPDF builds a document with one page per image.
func (s *Service) ImagesToPDF(ctx context.Context, images []document.Image) (*Output, error) {
	if len(images) == 0 {
		return nil, document.ErrNoInput
	}
	inputs := make([][]byte, len(images))
	for i, img := range images {
		inputs[i] = img.Data
	}
	return s.run(ctx, config.OpImagesToPDF, inputs, nil, func(ctx context.Context) (*Output, error) {
		data, err := document.ImagesToPDF(images)
		if err != nil {
			return nil, err
		}
		return &Output{
			ContentType: contentTypePDF,
			Filename:    "images.pdf",
			Body:        data,
			Meta:        map[string]string{"images": strconv.Itoa(len(images))},
		}, nil
	})
}

// run applies the operation's timeout, cache and throttle around fn.
func (s *Service) run(ctx context.Context, op string, inputs [][]byte, params []string, fn func(context.Context) (*Output, error)) (*Output, error) {
	resolved := s.cfg.GetConfigForOperation(op)

	ctx, cancel := context.WithTimeout(ctx, resolved.GetTimeout())
	defer cancel()

	log := s.logger.WithContext(ctx).With("operation", op)
	start := time.Now()

	var key string
	if s.cache != nil && resolved.Cache.IsEnabled() {
		key = cache.Key(op, inputs, params...)
		entry, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Warn("cache get failed", "error", err)
		} else if entry != nil {
			log.Debug("cache hit", "key", key)
			out := FromEntry(entry)
			out.Cached = true
			return out, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, op); err != nil {
			log.Warn("operation throttled", "error", err, "duration", time.Since(start))
			return nil, err
		}
	}

	// The slot is held until fn returns, even when ctx expires first.
	out, err := await(ctx, func() (*Output, error) {
		if s.limiter != nil {
			defer s.limiter.Release(op)
		}
		return fn(ctx)
	})
	if err != nil {
		log.Warn("operation failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	if key != "" {
		if int64(out.Size()) > resolved.Cache.GetMaxEntrySize() {
			log.Debug("result too large to cache", "bytes", out.Size())
		} else {
			entry := out.Entry(key)
			entry.TTL = resolved.Cache.TTL
			if err := s.cache.Set(context.WithoutCancel(ctx), entry); err != nil {
				log.Warn("cache set failed", "error", err)
			}
		}
	}

	log.Info("operation completed", "duration", time.Since(start), "bytes", out.Size(), "files", len(out.Files))
	return out, nil
}

// await runs fn in its own goroutine so a blocked library call cannot hold
// the caller past ctx's deadline. The goroutine finishes on its own.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *Service) clean(v string) string {
	if v == "" {
		return v
	}
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(v)))
}

func partsOutput(parts []document.Part, single, pattern string) *Output {
	if len(parts) == 1 {
		return &Output{
			ContentType: contentTypePDF,
			Filename:    single,
			Body:        parts[0].Data,
			Meta:        map[string]string{"groups": parts[0].Label},
		}
	}

	out := &Output{
		ContentType: contentTypeJSON,
		Meta:        map[string]string{"message": fmt.Sprintf("PDF split into %d files", len(parts))},
	}
	labels := make([]string, len(parts))
	for i, p := range parts {
		out.Files = append(out.Files, File{Name: fmt.Sprintf(pattern, i+1), ContentType: contentTypePDF, Data: p.Data})
		labels[i] = p.Label
	}
	out.Meta["groups"] = strings.Join(labels, ",")
	return out
}

func jsonOutput(v any) (*Output, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &Output{ContentType: contentTypeJSON, Body: data}, nil
}
