package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ops"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

func init() {
	rootCmd.AddCommand(mergeCmd(), splitCmd(), rotateCmd(), watermarkCmd(), compressCmd())
}

func mergeCmd() *cobra.Command {
	var (
		order      string
		noMetadata bool
	)
	cmd := &cobra.Command{
		Use:   "merge <file.pdf>...",
		Short: "Combine PDF files into one document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := readFiles(args)
			if err != nil {
				return err
			}
			idx, err := parseOrder(order)
			if err != nil {
				return err
			}
			opts := ops.DefaultMergeOptions()
			opts.PreserveMetadata = !noMetadata
			res, err := execute(cmd, "merging", func(ctx context.Context, report progress.Func) (*ops.MergeResult, error) {
				opts.Progress = report
				if idx != nil {
					return engine.MergeWithOrder(ctx, files, idx, opts)
				}
				return engine.Merge(ctx, files, opts)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d pages\n", res.PagesMerged)
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "1-based file order, e.g. 2,1,3")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "do not copy title, author and subject from the first file")
	return cmd
}

func splitCmd() *cobra.Command {
	var (
		every  int
		ranges string
		pages  string
	)
	cmd := &cobra.Command{
		Use:   "split <file.pdf>",
		Short: "Split a PDF into several documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode ops.SplitMode
			switch {
			case ranges != "":
				rs, err := parseRanges(ranges)
				if err != nil {
					return err
				}
				mode = ops.Ranges{Ranges: rs}
			case pages != "":
				nums, err := parseNumbers(pages)
				if err != nil {
					return err
				}
				mode = ops.ExplicitPages{Pages: nums}
			default:
				mode = ops.FixedChunks{Size: every}
			}
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "splitting", func(ctx context.Context, report progress.Func) (*ops.SplitResult, error) {
				return engine.Split(ctx, file, ops.SplitOptions{Mode: mode, Progress: report})
			})
			if err != nil {
				return err
			}
			for _, out := range res.Outputs {
				if err := writeOutput(cmd, out.FileName, out.Data); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&every, "every", 1, "pages per output file")
	cmd.Flags().StringVar(&ranges, "ranges", "", "page ranges, e.g. 1-3,5,8-9")
	cmd.Flags().StringVar(&pages, "pages", "", "one output per listed page, e.g. 1,4")
	cmd.MarkFlagsMutuallyExclusive("every", "ranges", "pages")
	return cmd
}

func rotateCmd() *cobra.Command {
	var (
		angle int
		pages string
	)
	cmd := &cobra.Command{
		Use:   "rotate <file.pdf>",
		Short: "Rotate pages clockwise by 90, 180 or 270 degrees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parsePages(pages)
			if err != nil {
				return err
			}
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "rotating", func(ctx context.Context, report progress.Func) (*ops.RotateResult, error) {
				return engine.Rotate(ctx, file, ops.RotateOptions{Angle: angle, Pages: idx, Progress: report})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages\n", ops.RotationDescription(angle), res.PagesRotated)
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().IntVar(&angle, "angle", 90, "clockwise angle: 90, 180 or 270")
	cmd.Flags().StringVar(&pages, "pages", "", "1-based pages to rotate (default all)")
	return cmd
}

func watermarkCmd() *cobra.Command {
	var (
		text, imagePath, font, color, position, pages string
		size, opacity, rotation, scale                  float64
	)
	cmd := &cobra.Command{
		Use:   "watermark <file.pdf>",
		Short: "Stamp text or an image onto pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mark ops.Mark
			if imagePath != "" {
				data, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read watermark image: %w", err)
				}
				format := ops.FormatPNG
				if validation.DetectKind(imagePath, data) == validation.KindJPEG {
					format = ops.FormatJPEG
				}
				mark = ops.ImageMark{Data: data, Format: format}
			} else {
				c, err := parseColor(color)
				if err != nil {
					return err
				}
				mark = ops.TextMark{Text: text, Font: fonts.Family(font), Size: size, Color: c}
			}
			idx, err := parsePages(pages)
			if err != nil {
				return err
			}
			opts := ops.DefaultWatermarkOptions(mark)
			opts.Opacity = opacity
			opts.Position = ops.Position(strings.ToLower(position))
			opts.Rotation = rotation
			opts.Scale = scale
			opts.Pages = idx

			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "watermarking", func(ctx context.Context, report progress.Func) (*ops.WatermarkResult, error) {
				opts.Progress = report
				return engine.Watermark(ctx, file, opts)
			})
			if err != nil {
				return err
			}
			for _, o := range res.Failed() {
				warnSkipped(cmd, o.Index, o.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watermarked %d pages at %s\n", res.PagesProcessed, ops.PositionDescription(opts.Position))
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	f := cmd.Flags()
	f.StringVar(&text, "text", "", "watermark text")
	f.StringVar(&imagePath, "image", "", "JPEG or PNG watermark image")
	f.StringVar(&font, "font", string(fonts.Helvetica), "Helvetica, Times-Roman or Courier")
	f.Float64Var(&size, "size", 48, "font size in points")
	f.StringVar(&color, "color", "", "text color as #rrggbb (default gray)")
	f.Float64Var(&opacity, "opacity", 0.5, "opacity from 0 to 1")
	f.StringVar(&position, "position", string(ops.Center), "center, top-left, top-right, bottom-left or bottom-right")
	f.Float64Var(&rotation, "rotation", 0, "rotation of the mark in degrees")
	f.Float64Var(&scale, "scale", 1, "scale factor from 0.1 to 2")
	f.StringVar(&pages, "pages", "", "1-based pages to mark (default all)")
	cmd.MarkFlagsMutuallyExclusive("text", "image")
	cmd.MarkFlagsOneRequired("text", "image")
	return cmd
}

func compressCmd() *cobra.Command {
	var quality string
	cmd := &cobra.Command{
		Use:   "compress <file.pdf>",
		Short: "Reduce the size of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "compressing", func(ctx context.Context, report progress.Func) (*ops.CompressResult, error) {
				return engine.Compress(ctx, file, ops.CompressOptions{Quality: ops.Quality(quality), Progress: report})
			})
			if err != nil {
				return err
			}
			for _, o := range res.Outcomes {
				if o.Err != nil {
					warnSkipped(cmd, o.Index, o.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s using %s strategy\n", res.Message, res.Strategy)
			for _, n := range res.Notes {
				fmt.Fprintf(cmd.OutOrStdout(), "note: %s\n", n)
			}
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().StringVar(&quality, "quality", string(ops.QualityMedium), "low, medium or high")
	return cmd
}
