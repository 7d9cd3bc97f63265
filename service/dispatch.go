package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joeychilson/pdfworks/config"
	"github.com/joeychilson/pdfworks/document"
	"github.com/joeychilson/pdfworks/pagerange"
	"github.com/joeychilson/pdfworks/queue"
)

// Dispatch runs a queued task by operation name. Parameter names match the
// multipart form fields of the synchronous endpoints.
func (s *Service) Dispatch(ctx context.Context, task queue.Task) (*Output, error) {
	data := task.Data()

	first := func() ([]byte, error) {
		if len(data) == 0 {
			return nil, document.ErrNoInput
		}
		return data[0], nil
	}

	switch task.Operation {
	case config.OpMerge:
		return s.Merge(ctx, data)

	case config.OpSplit:
		input, err := first()
		if err != nil {
			return nil, err
		}
		n, err := intParam(task, "pagesPerSplit", 1)
		if err != nil {
			return nil, err
		}
		return s.Split(ctx, input, n)

	case config.OpSplitByRanges:
		input, err := first()
		if err != nil {
			return nil, err
		}
		policy := pagerange.Lenient
		if strict, _ := strconv.ParseBool(task.Param("strict")); strict {
			policy = pagerange.Strict
		}
		return s.SplitByRanges(ctx, input, task.Param("ranges"), policy)

	case config.OpCompress:
		input, err := first()
		if err != nil {
			return nil, err
		}
		return s.Compress(ctx, input)

	case config.OpInfo:
		input, err := first()
		if err != nil {
			return nil, err
		}
		return s.Info(ctx, input)

	case config.OpToImages:
		input, err := first()
		if err != nil {
			return nil, err
		}
		opts, err := ImageOptionsFromParams(task.Params)
		if err != nil {
			return nil, err
		}
		return s.ToImages(ctx, input, opts)

	case config.OpToText:
		input, err := first()
		if err != nil {
			return nil, err
		}
		return s.ToText(ctx, input)

	case config.OpImagesToPDF:
		images := make([]document.Image, len(task.Inputs))
		for i, in := range task.Inputs {
			images[i] = document.Image{Name: in.Name, Data: in.Data}
		}
		return s.ImagesToPDF(ctx, images)

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidParameter, task.Operation)
	}
}

// ImageOptionsFromParams reads format, scale, quality and pages.
func ImageOptionsFromParams(params map[string]string) (ImageOptions, error) {
	opts := ImageOptions{
		Format: params["format"],
		Pages:  params["pages"],
	}
	if v := params["scale"]; v != "" {
		scale, err := strconv.ParseFloat(v, 64)
		if err != nil || scale <= 0 {
			return opts, fmt.Errorf("%w: scale must be a positive number", ErrInvalidParameter)
		}
		opts.Scale = scale
	}
	if v := params["quality"]; v != "" {
		quality, err := strconv.Atoi(v)
		if err != nil {
			return opts, fmt.Errorf("%w: quality must be an integer", ErrInvalidParameter)
		}
		opts.Quality = quality
	}
	return opts, nil
}

func intParam(task queue.Task, name string, def int) (int, error) {
	v := task.Param(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParameter, name)
	}
	return n, nil
}
