package document

import (
	"bytes"
	"fmt"
	"io"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

// Image is a named image to place on its own page.
type Image struct {
	Name string
	Data []byte
}

// ImageMIMETypes lists the image types ImagesToPDF accepts.
var ImageMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/bmp",
	"image/tiff",
}

// ImagesToPDF builds a document with one page per image, in order. Each page
// is sized to its image. JPEG and PNG data is embedded as is; GIF, BMP and
// TIFF images are converted to PNG first.
func ImagesToPDF(images []Image) ([]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoInput
	}

	normalized := make([][]byte, len(images))

	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, img := range images {
		g.Go(func() error {
			data, err := normalizeImage(img)
			if err != nil {
				return fmt.Errorf("%s: %w", img.Name, err)
			}
			normalized[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	readers := make([]io.Reader, len(normalized))
	for i, data := range normalized {
		readers[i] = bytes.NewReader(data)
	}

	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, nil, newConfig()); err != nil {
		return nil, fmt.Errorf("failed to import images: %w", err)
	}
	return out.Bytes(), nil
}

// IsSupportedImage reports whether data sniffs as an accepted image type.
func IsSupportedImage(data []byte) bool {
	mt := mimetype.Detect(data)
	for _, accepted := range ImageMIMETypes {
		if mt.Is(accepted) {
			return true
		}
	}
	return false
}

func normalizeImage(img Image) ([]byte, error) {
	mt := mimetype.Detect(img.Data)
	switch {
	case mt.Is("image/jpeg"), mt.Is("image/png"):
		return img.Data, nil
	case mt.Is("image/gif"), mt.Is("image/bmp"), mt.Is("image/tiff"):
		decoded, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, decoded, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
	}
}
