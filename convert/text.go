package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfengine/document"
	"github.com/wudi/pdfengine/extractor"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/layout"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/pdferr"
	"github.com/wudi/pdfengine/progress"
	"github.com/wudi/pdfengine/validation"
)

type TextFormat string

const (
	TextPlain TextFormat = "txt"
	TextRTF   TextFormat = "rtf"
	TextHTML  TextFormat = "html"
)

func (f TextFormat) valid() bool { return f == TextPlain || f == TextRTF || f == TextHTML }

type ToTextOptions struct {
	// Format defaults to RTF.
	Format   TextFormat
	Progress progress.Func
}

type TextResult struct {
	Data          []byte
	FileName      string
	Format        TextFormat
	OriginalSize  int64
	ProcessedSize int64
	PageCount     int
	Outcomes      []PageOutcome
}

// PDFToText extracts the text of every page and wraps it as plain text,
// RTF or HTML. Pages whose text cannot be extracted are left empty and
// recorded in Outcomes.
func (c *Converter) PDFToText(ctx context.Context, file validation.File, opts ToTextOptions) (*TextResult, error) {
	if opts.Format == "" {
		opts.Format = TextRTF
	}
	if !opts.Format.valid() {
		return nil, pdferr.Validationf("Output format must be txt, rtf, or html")
	}
	if err := validation.One(file, c.limitsFor(budgetOp).MaxSize, validation.KindPDF); err != nil {
		return nil, err
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, c, "pdf-to-text", tracker, func(ctx context.Context) (*TextResult, error) {
		tracker.Report(10)
		defer c.release(file)
		doc, err := c.load(ctx, file)
		if err != nil {
			return nil, err
		}
		tracker.Report(30)
		ex, err := extractor.New(doc.Raw(), doc.Filters())
		if err != nil {
			return nil, pdferr.Processing("pdf-to-text", err)
		}

		n := ex.PageCount()
		res := &TextResult{Format: opts.Format, OriginalSize: file.Size(), PageCount: n}
		pages := make([]string, n)
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			text, err := ex.PageText(ctx, i)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.logger.Warn("text extraction failed",
					observability.Int("page", i+1), observability.Error("error", err))
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: i, Err: pdferr.PageFailure("pdf-to-text", i, err)})
			} else {
				res.Outcomes = append(res.Outcomes, PageOutcome{Index: i})
			}
			pages[i] = text
			tracker.Fraction(i+1, n, 30, 85)
		}

		tracker.Report(90)
		var data []byte
		switch opts.Format {
		case TextPlain:
			data = []byte(strings.Join(pages, "\n\n"))
		case TextHTML:
			data, err = htmlDocument(stem(file.Name), pages)
		default:
			data = rtfDocument(pages)
		}
		if err != nil {
			return nil, pdferr.Processing("pdf-to-text", err)
		}
		res.Data = data
		res.ProcessedSize = int64(len(data))
		res.FileName = fmt.Sprintf("%s.%s", stem(file.Name), opts.Format)
		return res, nil
	})
}

// rtfDocument writes pages as paragraphs of a single-font RTF document,
// one page break between pages.
func rtfDocument(pages []string) []byte {
	var b bytes.Buffer
	b.WriteString(`{\rtf1\ansi\deff0 {\fonttbl {\f0 Helvetica;}}\f0\fs24 `)
	for i, page := range pages {
		if i > 0 {
			b.WriteString(`\page `)
		}
		for _, line := range strings.Split(page, "\n") {
			writeRTFText(&b, line)
			b.WriteString("\\par\n")
		}
	}
	b.WriteString("}")
	return b.Bytes()
}

func writeRTFText(b *bytes.Buffer, s string) {
	for _, r := range s {
		switch {
		case r == '\\' || r == '{' || r == '}':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\t':
			b.WriteString(`\tab `)
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			// RTF \u takes a signed 16-bit value, so write a surrogate pair.
			r -= 0x10000
			fmt.Fprintf(b, `\u%d?\u%d?`, int16(0xD800+(r>>10)), int16(0xDC00+(r&0x3FF)))
		default:
			fmt.Fprintf(b, `\u%d?`, int16(r))
		}
	}
}

// htmlDocument builds one section per page with a paragraph per blank-line
// separated block and line breaks inside it.
func htmlDocument(title string, pages []string) ([]byte, error) {
	el := func(a atom.Atom, attrs ...html.Attribute) *html.Node {
		return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
	}
	text := func(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

	root := &html.Node{Type: html.DocumentNode}
	root.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	htm := el(atom.Html)
	root.AppendChild(htm)
	head := el(atom.Head)
	htm.AppendChild(head)
	head.AppendChild(el(atom.Meta, html.Attribute{Key: "charset", Val: "utf-8"}))
	t := el(atom.Title)
	t.AppendChild(text(title))
	head.AppendChild(t)
	body := el(atom.Body)
	htm.AppendChild(body)

	for i, page := range pages {
		sec := el(atom.Section, html.Attribute{Key: "id", Val: fmt.Sprintf("page-%d", i+1)})
		body.AppendChild(sec)
		for _, para := range strings.Split(page, "\n\n") {
			if strings.TrimSpace(para) == "" {
				continue
			}
			p := el(atom.P)
			for j, line := range strings.Split(para, "\n") {
				if j > 0 {
					p.AppendChild(el(atom.Br))
				}
				p.AppendChild(text(line))
			}
			sec.AppendChild(p)
		}
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type InputFormat string

const (
	// InputAuto picks the format from the file extension.
	InputAuto     InputFormat = ""
	InputPlain    InputFormat = "plain"
	InputMarkdown InputFormat = "markdown"
	InputHTML     InputFormat = "html"
)

type FromTextOptions struct {
	Input InputFormat
	// Font defaults to Helvetica, FontSize to 12 and PageSize to Letter.
	Font     fonts.Family
	FontSize float64
	PageSize [2]float64
	Progress progress.Func
}

// TextToPDF lays out a text, Markdown, HTML or Word document onto new
// pages. Word documents contribute their plain text only.
func (c *Converter) TextToPDF(ctx context.Context, file validation.File, opts FromTextOptions) (*PDFResult, error) {
	if err := validation.One(file, c.limitsFor(budgetOp).MaxSize, validation.KindText, validation.KindWord); err != nil {
		return nil, err
	}
	if opts.FontSize != 0 && (opts.FontSize < 6 || opts.FontSize > 72) {
		return nil, pdferr.Validationf("Font size must be between 6 and 72")
	}
	if opts.Font != "" {
		if _, err := fonts.Lookup(opts.Font); err != nil {
			return nil, pdferr.Validationf("Unsupported font: %s", opts.Font)
		}
	}
	input := opts.Input
	switch input {
	case InputAuto, InputPlain, InputMarkdown, InputHTML:
	default:
		return nil, pdferr.Validationf("Input format must be plain, markdown, or html")
	}
	if input == InputAuto {
		input = inputFromName(file.Name)
	}
	tracker := progress.New(opts.Progress)
	return run(ctx, c, "text-to-pdf", tracker, func(ctx context.Context) (*PDFResult, error) {
		tracker.Report(10)
		blocks, err := textBlocks(file, input)
		if err != nil {
			return nil, pdferr.Load(file.Name, err)
		}
		tracker.Report(30)

		doc := document.NewEmpty()
		doc.SetMetadata(document.Metadata{Title: stem(file.Name), Creator: Producer, Producer: Producer})
		var lopts []layout.Option
		if opts.Font != "" {
			lopts = append(lopts, layout.WithFont(opts.Font))
		}
		if opts.FontSize != 0 {
			lopts = append(lopts, layout.WithFontSize(opts.FontSize))
		}
		if opts.PageSize != ([2]float64{}) {
			lopts = append(lopts, layout.WithPageSize(opts.PageSize))
		}
		eng := layout.NewEngine(doc, lopts...)
		if err := eng.Render(ctx, blocks); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, pdferr.Processing("text-to-pdf", err)
		}
		tracker.Report(85)

		data, err := c.save(ctx, "text-to-pdf", doc, tracker)
		if err != nil {
			return nil, err
		}
		return &PDFResult{
			Data:          data,
			FileName:      stem(file.Name) + ".pdf",
			OriginalSize:  file.Size(),
			ProcessedSize: int64(len(data)),
			PageCount:     eng.Pages(),
			Outcomes:      []PageOutcome{{Index: 0}},
		}, nil
	})
}

func inputFromName(name string) InputFormat {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return InputMarkdown
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return InputHTML
	}
	return InputPlain
}

func textBlocks(file validation.File, input InputFormat) ([]layout.Block, error) {
	if validation.DetectKind(file.Name, file.Data) == validation.KindWord {
		text, err := wordText(file.Data)
		if err != nil {
			return nil, err
		}
		return layout.PlainBlocks(text), nil
	}
	if !utf8.Valid(file.Data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", file.Name)
	}
	switch input {
	case InputMarkdown:
		return layout.MarkdownBlocks(file.Data), nil
	case InputHTML:
		return layout.HTMLBlocks(bytes.NewReader(file.Data))
	}
	return layout.PlainBlocks(string(file.Data)), nil
}
