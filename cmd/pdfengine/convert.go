package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfengine/convert"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/progress"
)

func init() {
	rootCmd.AddCommand(imagesToPDFCmd(), toImagesCmd(), toTextCmd(), fromTextCmd())
}

func imagesToPDFCmd() *cobra.Command {
	var pageSize string
	cmd := &cobra.Command{
		Use:   "images-to-pdf <image>...",
		Short: "Place JPEG, PNG, GIF, WebP, BMP or TIFF images on PDF pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parsePageSize(pageSize)
			if err != nil {
				return err
			}
			files, err := readFiles(args)
			if err != nil {
				return err
			}
			res, err := execute(cmd, "converting", func(ctx context.Context, report progress.Func) (*convert.PDFResult, error) {
				return converter.ImagesToPDF(ctx, files, convert.ImagesOptions{PageSize: size, Progress: report})
			})
			if err != nil {
				return err
			}
			for _, o := range res.Failed() {
				warnSkipped(cmd, o.Index, o.Err)
			}
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().StringVar(&pageSize, "page-size", "a4", "a4 or letter")
	return cmd
}

func toImagesCmd() *cobra.Command {
	var (
		format, quality string
		placeholder     bool
	)
	cmd := &cobra.Command{
		Use:   "to-images <file.pdf>",
		Short: "Render every page as a JPEG or PNG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			c := converter
			if placeholder {
				c = convert.New(append(slices.Clip(converterOpts), convert.WithRasterizer(nil))...)
			}
			res, err := execute(cmd, "rendering", func(ctx context.Context, report progress.Func) (*convert.ImagesResult, error) {
				return c.PDFToImages(ctx, file, convert.ToImagesOptions{
					Format:   convert.ImageFormat(format),
					Quality:  convert.Quality(quality),
					Progress: report,
				})
			})
			if err != nil {
				return err
			}
			for _, o := range res.Outcomes {
				if o.Err != nil {
					warnSkipped(cmd, o.Index, o.Err)
				}
			}
			for _, img := range res.Images {
				if err := writeOutput(cmd, img.FileName, img.Data); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(convert.ImageJPEG), "jpg or png")
	cmd.Flags().StringVar(&quality, "quality", string(convert.QualityMedium), "low, medium or high")
	cmd.Flags().BoolVar(&placeholder, "placeholder", false, "draw labelled placeholder cards instead of page content")
	return cmd
}

func toTextCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "to-text <file.pdf>",
		Short: "Extract page text as plain text, RTF or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "extracting", func(ctx context.Context, report progress.Func) (*convert.TextResult, error) {
				return converter.PDFToText(ctx, file, convert.ToTextOptions{Format: convert.TextFormat(format), Progress: report})
			})
			if err != nil {
				return err
			}
			for _, o := range res.Outcomes {
				if o.Err != nil {
					warnSkipped(cmd, o.Index, o.Err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "extracted %d pages\n", res.PageCount)
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().StringVar(&format, "format", string(convert.TextRTF), "txt, rtf or html")
	return cmd
}

func fromTextCmd() *cobra.Command {
	var (
		input, font, pageSize string
		fontSize              float64
	)
	cmd := &cobra.Command{
		Use:   "from-text <file>",
		Short: "Lay out a text, Markdown, HTML or Word file as a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := parsePageSize(pageSize)
			if err != nil {
				return err
			}
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			res, err := execute(cmd, "laying out", func(ctx context.Context, report progress.Func) (*convert.PDFResult, error) {
				return converter.TextToPDF(ctx, file, convert.FromTextOptions{
					Input:    convert.InputFormat(input),
					Font:     fonts.Family(font),
					FontSize: fontSize,
					PageSize: size,
					Progress: report,
				})
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "laid out %d pages\n", res.PageCount)
			return writeOutput(cmd, res.FileName, res.Data)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "plain, markdown or html (default from the file extension)")
	cmd.Flags().StringVar(&font, "font", string(fonts.Helvetica), "Helvetica, Times-Roman or Courier")
	cmd.Flags().Float64Var(&fontSize, "font-size", 12, "font size in points")
	cmd.Flags().StringVar(&pageSize, "page-size", "letter", "a4 or letter")
	return cmd
}
