package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Compressed is the outcome of Compress.
type Compressed struct {
	Data         []byte
	OriginalSize int64
}

// Ratio returns the compressed size relative to the original (1.0 means unchanged).
func (c Compressed) Ratio() float64 {
	if c.OriginalSize == 0 {
		return 1
	}
	return float64(len(c.Data)) / float64(c.OriginalSize)
}

// Compress rewrites the document with duplicate resources merged, unused
// objects dropped and streams recompressed. If optimizing would grow the
// file the original bytes are returned unchanged.
func Compress(rs io.ReadSeeker) (*Compressed, error) {
	if rs == nil {
		return nil, ErrNoInput
	}

	original, err := io.ReadAll(rs)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(original), &out, newConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	result := &Compressed{Data: out.Bytes(), OriginalSize: int64(len(original))}
	if int64(out.Len()) > result.OriginalSize {
		result.Data = original
	}
	return result, nil
}
