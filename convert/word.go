package convert

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// minWordRun is the shortest run of printable characters kept when
// scanning a binary .doc file.
const minWordRun = 4

var errNoWordText = errors.New("no readable text found in Word document")

// wordText pulls the plain text out of a Word document. DOCX paragraphs are
// read from word/document.xml; legacy .doc files are scanned for runs of
// printable UTF-16LE or single-byte text. Formatting is discarded.
func wordText(data []byte) (string, error) {
	var (
		text string
		err  error
	)
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		text, err = docxText(data)
	} else {
		text = binaryDocText(data)
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errNoWordText
	}
	return text, nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		return documentXMLText(rc)
	}
	return "", errors.New("docx has no word/document.xml")
}

// documentXMLText walks WordprocessingML with the HTML tokenizer, which
// reports namespaced tags such as w:t by their full name.
func documentXMLText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	inText := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return b.String(), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "w:t":
				inText = true
			case "w:tab":
				b.WriteByte('\t')
			case "w:br", "w:cr":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "w:t":
				inText = false
			case "w:p":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if inText {
				b.Write(z.Text())
			}
		}
	}
}

// binaryDocText keeps whichever of the UTF-16LE and single-byte readings
// yields more characters. Word stores text in either, depending on the
// characters used.
func binaryDocText(data []byte) string {
	wide := printableRuns(decodeUTF16LE(data))
	narrow := printableRuns(latin1(data))
	if utf8.RuneCountInString(wide) >= utf8.RuneCountInString(narrow) {
		return wide
	}
	return narrow
}

func decodeUTF16LE(data []byte) []rune {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = uint16(data[2*i]) | uint16(data[2*i+1])<<8
	}
	return utf16.Decode(units)
}

func latin1(data []byte) []rune {
	out := make([]rune, len(data))
	for i, c := range data {
		out[i] = rune(c)
	}
	return out
}

func printableRuns(rs []rune) string {
	var b strings.Builder
	var run []rune
	flush := func() {
		if len(run) >= minWordRun {
			b.WriteString(strings.TrimSpace(string(run)))
			b.WriteByte('\n')
		}
		run = run[:0]
	}
	for _, r := range rs {
		switch {
		case r == '\r':
			run = append(run, '\n')
		case r == '\t' || (unicode.IsPrint(r) && r != unicode.ReplacementChar):
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()
	return b.String()
}
