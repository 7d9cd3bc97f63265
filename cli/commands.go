package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joeychilson/pdfworks/document"
	"github.com/joeychilson/pdfworks/pagerange"
	"github.com/joeychilson/pdfworks/service"
)

func (a *App) newSplitRangesCmd() *cobra.Command {
	var (
		outDir string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "split-ranges <input.pdf> <ranges>",
		Short: "Extract one PDF per run of consecutive pages",
		Long: `Extract the pages selected by a range expression. Each run of
consecutive pages becomes its own file.

Malformed tokens and pages past the end are skipped unless --strict is set.

Examples:
  # Pages 1 to 5 and 9 to 12 as two files
  pdfworks split-ranges report.pdf "1-5,9-12" -o out/

  # Fail on typos instead of skipping them
  pdfworks split-ranges report.pdf "1-5,x" --strict`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			policy := pagerange.Lenient
			if strict {
				policy = pagerange.Strict
			}
			out, err := svc.SplitByRanges(cmd.Context(), input, args[1], policy)
			if err != nil {
				return err
			}
			return a.writeOutput(out, outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&strict, "strict", false, "Reject malformed or out-of-range tokens")
	return cmd
}

func (a *App) newSplitCmd() *cobra.Command {
	var (
		outDir        string
		pagesPerSplit int
	)

	cmd := &cobra.Command{
		Use:   "split <input.pdf>",
		Short: "Split a PDF into files of N pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := svc.Split(cmd.Context(), input, pagesPerSplit)
			if err != nil {
				return err
			}
			return a.writeOutput(out, outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory")
	cmd.Flags().IntVarP(&pagesPerSplit, "pages", "n", 1, "Pages per output file")
	return cmd
}

func (a *App) newMergeCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "merge <input.pdf>...",
		Short: "Concatenate PDFs in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			inputs, err := readAll(args)
			if err != nil {
				return err
			}
			out, err := svc.Merge(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			return a.writeFile(outFile, out.Body)
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "merged.pdf", "Output file")
	return cmd
}

func (a *App) newCompressCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "compress <input.pdf>",
		Short: "Optimize a PDF and report the size change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := svc.Compress(cmd.Context(), input)
			if err != nil {
				return err
			}
			if err := a.writeFile(outFile, out.Body); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d -> %d bytes\n", out.MetaInt("originalSize"), out.MetaInt("compressedSize"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "compressed.pdf", "Output file")
	return cmd
}

func (a *App) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <input.pdf>",
		Short: "Print document metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := svc.Info(cmd.Context(), input)
			if err != nil {
				return err
			}

			var info document.Info
			if err := json.Unmarshal(out.Body, &info); err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func (a *App) newTextCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "text <input.pdf>",
		Short: "Extract the text of every page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := svc.ToText(cmd.Context(), input)
			if err != nil {
				return err
			}

			text := out.Files[0].Data
			if outFile != "" {
				return a.writeFile(outFile, text)
			}
			_, err = fmt.Fprintln(a.stdout, string(text))
			return err
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write the text to a file instead of stdout")
	return cmd
}

func (a *App) newImagesCmd() *cobra.Command {
	var (
		outDir string
		opts   service.ImageOptions
	)

	cmd := &cobra.Command{
		Use:   "images <input.pdf>",
		Short: "Render pages to PNG or JPEG",
		Long: `Render pages to images. --pages accepts "all", a JSON array such as
"[1,3]" or a range expression such as "1-3,7".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			input, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out, err := svc.ToImages(cmd.Context(), input, opts)
			if err != nil {
				return err
			}
			return a.writeOutput(out, outDir)
		},
	}

	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Output directory")
	cmd.Flags().StringVar(&opts.Format, "format", "png", "Image format (png, jpeg)")
	cmd.Flags().Float64Var(&opts.Scale, "scale", 0, "Scale factor, 1.0 is 72 DPI (default from config)")
	cmd.Flags().IntVar(&opts.Quality, "quality", 0, "JPEG quality 1-100 (default from config)")
	cmd.Flags().StringVar(&opts.Pages, "pages", "all", "Pages to render")
	return cmd
}

func (a *App) newFromImagesCmd() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "from-images <image>...",
		Short: "Build a PDF with one page per image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			images := make([]document.Image, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				images = append(images, document.Image{Name: filepath.Base(path), Data: data})
			}
			out, err := svc.ImagesToPDF(cmd.Context(), images)
			if err != nil {
				return err
			}
			return a.writeFile(outFile, out.Body)
		},
	}

	cmd.Flags().StringVarP(&outFile, "output", "o", "images.pdf", "Output file")
	return cmd
}

// writeOutput writes every file of out into dir and lists them on stdout.
func (a *App) writeOutput(out *service.Output, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if len(out.Files) == 0 {
		return a.writeFile(filepath.Join(dir, out.Filename), out.Body)
	}
	for _, f := range out.Files {
		if err := a.writeFile(filepath.Join(dir, f.Name), f.Data); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(a.stdout, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}

func readAll(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
