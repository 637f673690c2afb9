package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/extractor"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/validation"
)

type sectionSelection struct {
	Pages     bool
	Text      bool
	Metadata  bool
	Bookmarks bool
	TOC       bool
	Fonts     bool
}

func (s sectionSelection) none() bool {
	return !s.Pages && !s.Text && !s.Metadata && !s.Bookmarks && !s.TOC && !s.Fonts
}

type pageSummary struct {
	Page     int     `json:"page"`
	Label    string  `json:"label,omitempty"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

func init() {
	rootCmd.AddCommand(infoCmd())
}

func infoCmd() *cobra.Command {
	var sel sectionSelection
	cmd := &cobra.Command{
		Use:   "info <file.pdf>",
		Short: "Describe a PDF: pages, metadata, outline, fonts and text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readFile(args[0])
			if err != nil {
				return err
			}
			if sel.none() {
				sel = sectionSelection{Pages: true, Metadata: true, Bookmarks: true, TOC: true, Fonts: true}
			}
			return describe(cmd.Context(), cmd.OutOrStdout(), file, sel)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&sel.Pages, "pages", false, "list page sizes and rotations")
	f.BoolVar(&sel.Text, "text", false, "extract text per page")
	f.BoolVar(&sel.Metadata, "metadata", false, "dump document metadata")
	f.BoolVar(&sel.Bookmarks, "bookmarks", false, "dump the outline tree")
	f.BoolVar(&sel.TOC, "toc", false, "emit a flattened table of contents")
	f.BoolVar(&sel.Fonts, "fonts", false, "report fonts used across pages")
	return cmd
}

func describe(ctx context.Context, w io.Writer, file validation.File, sel sectionSelection) error {
	if err := validation.One(file, cfg.LimitsFor("split").MaxSize, validation.KindPDF); err != nil {
		return err
	}
	doc, err := document.Load(ctx, file.Data, document.LoadOptions{Lenient: lenient, Logger: logger})
	if err != nil {
		return pdferr.Load(file.Name, err)
	}
	ext, err := extractor.New(doc.Raw(), doc.Filters())
	if err != nil {
		return fmt.Errorf("new extractor: %w", err)
	}

	if sel.Pages {
		labels := ext.PageLabels()
		pages := make([]pageSummary, 0, doc.PageCount())
		for i, p := range doc.Pages() {
			wd, ht := p.Size()
			pages = append(pages, pageSummary{Page: i + 1, Label: labels[i], Width: wd, Height: ht, Rotation: p.Rotation()})
		}
		if err := emitSection(w, "pages", pages); err != nil {
			return err
		}
	}
	if sel.Metadata {
		if err := emitSection(w, "metadata", ext.ExtractMetadata()); err != nil {
			return err
		}
	}
	if sel.Bookmarks {
		if err := emitSection(w, "bookmarks", ext.ExtractBookmarks()); err != nil {
			return err
		}
	}
	if sel.TOC {
		if err := emitSection(w, "table_of_contents", ext.ExtractTableOfContents()); err != nil {
			return err
		}
	}
	if sel.Fonts {
		if err := emitSection(w, "fonts", ext.ExtractFonts()); err != nil {
			return err
		}
	}
	if sel.Text {
		text := make([]string, ext.PageCount())
		for i := range text {
			if text[i], err = ext.PageText(ctx, i); err != nil {
				return fmt.Errorf("extract text of page %d: %w", i+1, err)
			}
		}
		if err := emitSection(w, "text", text); err != nil {
			return err
		}
	}
	return nil
}

func emitSection(w io.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	_, err = fmt.Fprintf(w, "== %s ==\n%s\n\n", name, data)
	return err
}
