package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeychilson/pdfworks/document"
	"github.com/joeychilson/pdfworks/pdftest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), err
}

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pdftest.PDF(t, pages), 0o644))
	return path
}

func pageCount(t *testing.T, path string) int {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return pdftest.PageCount(t, data)
}

func TestApp_Version(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "pdfworks version") {
		t.Errorf("version output missing 'pdfworks version', got: %s", out)
	}
}

func TestApp_Help(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)

	for _, name := range []string{"split-ranges", "merge", "compress", "from-images"} {
		assert.Contains(t, out, name)
	}
}

func TestApp_SplitRanges(t *testing.T) {
	dir := t.TempDir()
	input := writePDF(t, dir, "in.pdf", 10)

	t.Run("several runs", func(t *testing.T) {
		outDir := filepath.Join(dir, "several")
		_, err := run(t, "split-ranges", input, "1-3,5,8-10", "-o", outDir)
		require.NoError(t, err)

		assert.Equal(t, 3, pageCount(t, filepath.Join(outDir, "split-range-1.pdf")))
		assert.Equal(t, 1, pageCount(t, filepath.Join(outDir, "split-range-2.pdf")))
		assert.Equal(t, 3, pageCount(t, filepath.Join(outDir, "split-range-3.pdf")))
	})

	t.Run("one run", func(t *testing.T) {
		outDir := filepath.Join(dir, "one")
		_, err := run(t, "split-ranges", input, "4-6", "-o", outDir)
		require.NoError(t, err)
		assert.Equal(t, 3, pageCount(t, filepath.Join(outDir, "split.pdf")))
	})

	t.Run("lenient skips typos", func(t *testing.T) {
		outDir := filepath.Join(dir, "lenient")
		_, err := run(t, "split-ranges", input, "2,x", "-o", outDir)
		require.NoError(t, err)
		assert.Equal(t, 1, pageCount(t, filepath.Join(outDir, "split.pdf")))
	})

	t.Run("strict rejects typos", func(t *testing.T) {
		_, err := run(t, "split-ranges", input, "2,x", "--strict", "-o", filepath.Join(dir, "strict"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"x"`)
	})

	t.Run("nothing selected", func(t *testing.T) {
		_, err := run(t, "split-ranges", input, "20-30", "-o", filepath.Join(dir, "none"))
		assert.ErrorIs(t, err, document.ErrNoPages)
	})
}

func TestApp_SplitAndMerge(t *testing.T) {
	dir := t.TempDir()
	input := writePDF(t, dir, "in.pdf", 5)

	_, err := run(t, "split", input, "-n", "2", "-o", dir)
	require.NoError(t, err)
	for _, name := range []string{"split-part-1.pdf", "split-part-2.pdf", "split-part-3.pdf"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	merged := filepath.Join(dir, "merged.pdf")
	_, err = run(t, "merge", "-o", merged,
		filepath.Join(dir, "split-part-3.pdf"), filepath.Join(dir, "split-part-1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 3, pageCount(t, merged))
}

func TestApp_Info(t *testing.T) {
	input := writePDF(t, t.TempDir(), "in.pdf", 3)

	out, err := run(t, "info", input)
	require.NoError(t, err)

	var info document.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 3, info.PageCount)
}

func TestApp_Text(t *testing.T) {
	input := writePDF(t, t.TempDir(), "in.pdf", 2)

	out, err := run(t, "text", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Page 1:")
	assert.Contains(t, out, pdftest.PageText(2))
}

func TestApp_Compress(t *testing.T) {
	dir := t.TempDir()
	input := writePDF(t, dir, "in.pdf", 2)
	output := filepath.Join(dir, "small.pdf")

	out, err := run(t, "compress", input, "-o", output)
	require.NoError(t, err)
	assert.Contains(t, out, "bytes")
	assert.Equal(t, 2, pageCount(t, output))
}

func TestApp_FromImages(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(img, pdftest.PNG(t, 16, 16), 0o644))
	output := filepath.Join(dir, "out.pdf")

	_, err := run(t, "from-images", "-o", output, img, img)
	require.NoError(t, err)
	assert.Equal(t, 2, pageCount(t, output))
}

func TestApp_BadLogLevel(t *testing.T) {
	input := writePDF(t, t.TempDir(), "in.pdf", 1)

	_, err := run(t, "info", input, "--log-level", "loud")
	assert.Error(t, err)
}
