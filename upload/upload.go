// Package upload stores multipart uploads in a scratch directory, checks
// their type and size, and removes them again.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrNoFiles is returned when a request carries no file for a required field.
	ErrNoFiles = errors.New("no files uploaded")
	// ErrTooManyFiles is returned when a request exceeds the file count limit.
	ErrTooManyFiles = errors.New("too many files")
	// ErrTooLarge is returned when a single file exceeds the size limit.
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when a file is not of the expected kind.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Kind is the category of file a field accepts.
type Kind int

const (
	KindPDF Kind = iota
	KindImage
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

var (
	imageMIMETypes  = []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff"}
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff"}
)

// SupportedImageExtensions returns the image extensions accepted for KindImage.
func SupportedImageExtensions() []string {
	return slices.Clone(imageExtensions)
}

// File is an upload persisted to disk.
type File struct {
	Path string
	// Name is the sanitized client-side filename.
	Name string
	Size int64
	MIME string

	once sync.Once
}

// Bytes reads the whole file.
func (f *File) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Open opens the file for reading.
func (f *File) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Remove deletes the file. It is safe to call more than once.
func (f *File) Remove() error {
	var err error
	f.once.Do(func() {
		if rmErr := os.Remove(f.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = rmErr
		}
	})
	return err
}

// Store writes uploads into Dir.
type Store struct {
	Dir         string
	MaxFileSize int64
	MaxFiles    int
}

// NewStore creates the scratch directory if needed.
func NewStore(dir string, maxFileSize int64, maxFiles int) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{Dir: dir, MaxFileSize: maxFileSize, MaxFiles: maxFiles}, nil
}

// Save validates fh against kind and copies it into the store.
func (s *Store) Save(fh *multipart.FileHeader, kind Kind) (*File, error) {
	if fh == nil {
		return nil, ErrNoFiles
	}
	if s.MaxFileSize > 0 && fh.Size > s.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, fh.Filename, fh.Size, s.MaxFileSize)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := SanitizeFilename(fh.Filename, kind)
	return s.write(src, name, kind)
}

// SaveReader stores content read from r under name.
func (s *Store) SaveReader(r io.Reader, name string, kind Kind) (*File, error) {
	return s.write(r, SanitizeFilename(name, kind), kind)
}

func (s *Store) write(r io.Reader, name string, kind Kind) (*File, error) {
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if err := checkKind(head, mt, name, kind); err != nil {
		return nil, err
	}

	path := filepath.Join(s.Dir, uuid.NewString()+"-"+name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.MaxFileSize > 0 {
		src = io.LimitReader(src, s.MaxFileSize+1)
	}

	size, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	f := &File{Path: path, Name: name, Size: size, MIME: mt.String()}
	switch {
	case copyErr != nil:
		f.Remove()
		return nil, fmt.Errorf("failed to store upload: %w", copyErr)
	case closeErr != nil:
		f.Remove()
		return nil, fmt.Errorf("failed to store upload: %w", closeErr)
	case s.MaxFileSize > 0 && size > s.MaxFileSize:
		f.Remove()
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, s.MaxFileSize)
	}
	return f, nil
}

func checkKind(head []byte, mt *mimetype.MIME, name string, kind Kind) error {
	switch kind {
	case KindPDF:
		if !mt.Is("application/pdf") || !bytes.HasPrefix(head, []byte("%PDF")) {
			return fmt.Errorf("%w: %s is not a PDF (detected %s)", ErrUnsupportedType, name, mt.String())
		}
		return nil
	case KindImage:
		for _, accepted := range imageMIMETypes {
			if mt.Is(accepted) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s is not a supported image (detected %s); supported: %s",
			ErrUnsupportedType, name, mt.String(), strings.Join(imageExtensions, ", "))
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrUnsupportedType, kind)
	}
}

// SanitizeFilename strips directories and path traversal from a client
// filename. Empty names fall back to a default for the kind.
func SanitizeFilename(filename string, kind Kind) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.TrimSpace(filepath.Base(filename))

	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, filename)

	if filename == "" || filename == "." || filename == "_" {
		if kind == KindImage {
			return "image"
		}
		return "document.pdf"
	}
	if len(filename) > 128 {
		ext := filepath.Ext(filename)
		if len(ext) > 16 {
			ext = ""
		}
		filename = filename[:128-len(ext)] + ext
	}
	return filename
}

// Batch is the set of files saved from one request.
type Batch struct {
	Files []*File
	form  *multipart.Form
}

// SaveAll saves every file under field in form. It fails with ErrNoFiles
// when fewer than minFiles are present and ErrTooManyFiles above the store
// limit. On error, files saved so far are removed.
func (s *Store) SaveAll(form *multipart.Form, field string, kind Kind, minFiles int) (*Batch, error) {
	b := &Batch{form: form}
	if form == nil {
		return nil, ErrNoFiles
	}

	headers := form.File[field]
	if len(headers) == 0 || len(headers) < minFiles {
		return nil, fmt.Errorf("%w: field %q needs at least %d file(s), got %d", ErrNoFiles, field, max(minFiles, 1), len(headers))
	}
	if s.MaxFiles > 0 && len(headers) > s.MaxFiles {
		return nil, fmt.Errorf("%w: %d files uploaded, limit is %d", ErrTooManyFiles, len(headers), s.MaxFiles)
	}

	for _, fh := range headers {
		f, err := s.Save(fh, kind)
		if err != nil {
			b.Cleanup()
			return nil, err
		}
		b.Files = append(b.Files, f)
	}
	return b, nil
}

// First returns the first file, or nil for an empty batch.
func (b *Batch) First() *File {
	if b == nil || len(b.Files) == 0 {
		return nil
	}
	return b.Files[0]
}

// Bytes reads every file in order.
func (b *Batch) Bytes() ([][]byte, error) {
	out := make([][]byte, 0, len(b.Files))
	for _, f := range b.Files {
		data, err := f.Bytes()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Cleanup removes every stored file and the multipart spill files.
func (b *Batch) Cleanup() error {
	if b == nil {
		return nil
	}
	var errs []error
	for _, f := range b.Files {
		if err := f.Remove(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.form != nil {
		if err := b.form.RemoveAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
