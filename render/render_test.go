package render

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/pdfworks/pdftest"
)

// fixture returns an n-page document, skipping the test when MuPDF is not usable.
func fixture(t *testing.T, n int) []byte {
	t.Helper()

	if !Available() {
		t.Skip("renderer unavailable")
	}
	return pdftest.PDF(t, n)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"png", PNG, false},
		{"PNG", PNG, false},
		{"jpeg", JPEG, false},
		{"jpg", JPEG, false},
		{" Jpg ", JPEG, false},
		{"gif", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "png", PNG.Extension())
	assert.Equal(t, "jpg", JPEG.Extension())
	assert.Equal(t, "image/png", PNG.ContentType())
	assert.Equal(t, "image/jpeg", JPEG.ContentType())
	assert.Equal(t, "page-3.jpg", Image{Page: 3, Format: JPEG}.Filename())
}

func TestSelectPages(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, selectPages(nil, 3))
	assert.Equal(t, []int{2, 0}, selectPages([]int{2, 7, -1, 0}, 3))
	assert.Empty(t, selectPages([]int{}, 3))
}

func TestRenderAllPagesPNG(t *testing.T) {
	data := fixture(t, 3)

	images, err := Render(context.Background(), data, Options{Scale: 1})
	require.NoError(t, err)
	require.Len(t, images, 3)

	for i, img := range images {
		assert.Equal(t, i+1, img.Page)
		assert.Equal(t, PNG, img.Format)

		decoded, err := png.Decode(bytes.NewReader(img.Data))
		require.NoError(t, err)
		assert.Equal(t, img.Width, decoded.Bounds().Dx())
		assert.Equal(t, img.Height, decoded.Bounds().Dy())
	}
}

func TestRenderSelectedPagesJPEG(t *testing.T) {
	data := fixture(t, 4)

	images, err := Render(context.Background(), data, Options{
		Format:  JPEG,
		Scale:   1,
		Quality: 80,
		Pages:   []int{3, 1, 10},
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, 4, images[0].Page)
	assert.Equal(t, 2, images[1].Page)

	_, err = jpeg.Decode(bytes.NewReader(images[0].Data))
	assert.NoError(t, err)
}

func TestRenderScaleAndMaxWidth(t *testing.T) {
	data := fixture(t, 1)

	small, err := Render(context.Background(), data, Options{Scale: 1})
	require.NoError(t, err)
	large, err := Render(context.Background(), data, Options{Scale: 2})
	require.NoError(t, err)
	assert.Greater(t, large[0].Width, small[0].Width)

	capped, err := Render(context.Background(), data, Options{Scale: 2, MaxWidth: 100})
	require.NoError(t, err)
	assert.Equal(t, 100, capped[0].Width)
}

func TestRenderErrors(t *testing.T) {
	data := fixture(t, 2)

	t.Run("no pages in range", func(t *testing.T) {
		_, err := Render(context.Background(), data, Options{Pages: []int{5}})
		assert.True(t, errors.Is(err, ErrNoPages))
	})

	t.Run("too many pages", func(t *testing.T) {
		_, err := Render(context.Background(), data, Options{MaxPages: 1})
		assert.True(t, errors.Is(err, ErrTooManyPages))
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := Render(context.Background(), data, Options{Format: "tiff"})
		assert.True(t, errors.Is(err, ErrInvalidFormat))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Render(ctx, data, Options{})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRenderUnreadable(t *testing.T) {
	_, err := Render(context.Background(), []byte("definitely not a pdf"), Options{})
	assert.Error(t, err)
}
