package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/pdfworks/pdftest"
)

type part struct {
	name string
	data []byte
}

func buildForm(t *testing.T, field string, parts ...part) *multipart.Form {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile(field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), 1<<20, 3)
	require.NoError(t, err)
	return s
}

func TestSavePDF(t *testing.T) {
	s := newStore(t)
	data := pdftest.PDF(t, 2)
	form := buildForm(t, "file", part{"report.pdf", data})

	f, err := s.Save(form.File["file"][0], KindPDF)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, int64(len(data)), f.Size)
	assert.Equal(t, "application/pdf", f.MIME)
	assert.Equal(t, s.Dir, filepath.Dir(f.Path))
	assert.True(t, strings.HasSuffix(f.Path, "-report.pdf"))

	stored, err := f.Bytes()
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveRejectsWrongType(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name string
		data []byte
		kind Kind
	}{
		{"text as pdf", []byte("hello world, not a pdf"), KindPDF},
		{"png as pdf", pdftest.PNG(t, 4, 4), KindPDF},
		{"pdf as image", pdftest.PDF(t, 1), KindImage},
		{"empty", nil, KindPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := buildForm(t, "file", part{"upload.bin", tt.data})
			_, err := s.Save(form.File["file"][0], tt.kind)
			assert.True(t, errors.Is(err, ErrUnsupportedType), "got %v", err)
		})
	}

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveImage(t *testing.T) {
	s := newStore(t)
	form := buildForm(t, "images", part{"photo.png", pdftest.PNG(t, 8, 8)})

	f, err := s.Save(form.File["images"][0], KindImage)
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MIME)
}

func TestSaveTooLarge(t *testing.T) {
	s := newStore(t)
	s.MaxFileSize = 64

	form := buildForm(t, "file", part{"big.pdf", pdftest.PDF(t, 1)})
	_, err := s.Save(form.File["file"][0], KindPDF)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestSaveReaderLimit(t *testing.T) {
	s := newStore(t)
	data := pdftest.PDF(t, 1)
	s.MaxFileSize = int64(len(data) - 1)

	_, err := s.SaveReader(bytes.NewReader(data), "stream.pdf", KindPDF)
	assert.True(t, errors.Is(err, ErrTooLarge))

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "oversized upload should not be left on disk")
}

func TestSaveAll(t *testing.T) {
	s := newStore(t)
	a, b := pdftest.PDF(t, 1), pdftest.PDF(t, 2)

	t.Run("saves in order", func(t *testing.T) {
		form := buildForm(t, "files", part{"a.pdf", a}, part{"b.pdf", b})
		batch, err := s.SaveAll(form, "files", KindPDF, 2)
		require.NoError(t, err)
		require.Len(t, batch.Files, 2)
		assert.Equal(t, "a.pdf", batch.First().Name)

		all, err := batch.Bytes()
		require.NoError(t, err)
		assert.Equal(t, [][]byte{a, b}, all)

		require.NoError(t, batch.Cleanup())
		for _, f := range batch.Files {
			_, err := os.Stat(f.Path)
			assert.True(t, errors.Is(err, os.ErrNotExist))
		}
	})

	t.Run("too few", func(t *testing.T) {
		form := buildForm(t, "files", part{"a.pdf", a})
		_, err := s.SaveAll(form, "files", KindPDF, 2)
		assert.True(t, errors.Is(err, ErrNoFiles))
	})

	t.Run("missing field", func(t *testing.T) {
		form := buildForm(t, "other", part{"a.pdf", a})
		_, err := s.SaveAll(form, "files", KindPDF, 1)
		assert.True(t, errors.Is(err, ErrNoFiles))
	})

	t.Run("too many", func(t *testing.T) {
		form := buildForm(t, "files", part{"1.pdf", a}, part{"2.pdf", a}, part{"3.pdf", a}, part{"4.pdf", a})
		_, err := s.SaveAll(form, "files", KindPDF, 1)
		assert.True(t, errors.Is(err, ErrTooManyFiles))
	})

	t.Run("bad file removes earlier ones", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewStore(dir, 1<<20, 5)
		require.NoError(t, err)

		form := buildForm(t, "files", part{"a.pdf", a}, part{"b.txt", []byte("plain text")})
		_, err = store.SaveAll(form, "files", KindPDF, 1)
		assert.True(t, errors.Is(err, ErrUnsupportedType))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		kind Kind
		want string
	}{
		{"report.pdf", KindPDF, "report.pdf"},
		{"../../etc/passwd", KindPDF, "__etc_passwd"},
		{"dir\\file.pdf", KindPDF, "dir_file.pdf"},
		{"  spaced.pdf  ", KindPDF, "spaced.pdf"},
		{"", KindPDF, "document.pdf"},
		{"..", KindPDF, "document.pdf"},
		{"", KindImage, "image"},
		{"quote\".pdf", KindPDF, "quote.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in, tt.kind); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeFilename(long, KindPDF)
	assert.Len(t, got, 128)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "pdf", KindPDF.String())
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
