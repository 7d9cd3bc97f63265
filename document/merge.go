package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merge concatenates every page of every input, in input order.
func Merge(inputs []io.ReadSeeker) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInput
	}

	for i, rs := range inputs {
		if _, err := load(rs); err != nil {
			return nil, fmt.Errorf("input %d: %w", i+1, err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("input %d: rewind failed: %w", i+1, err)
		}
	}

	var out bytes.Buffer
	if err := api.MergeRaw(inputs, &out, false, newConfig()); err != nil {
		return nil, fmt.Errorf("failed to merge documents: %w", err)
	}
	return out.Bytes(), nil
}
