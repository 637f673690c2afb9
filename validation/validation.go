// Package validation checks operation inputs before any document is loaded.
package validation

import (
	"bytes"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wudi/pdfengine/pdferr"
)

// File is one named input.
type File struct {
	Name string
	Data []byte
}

func (f File) Size() int64 { return int64(len(f.Data)) }

type Kind string

const (
	KindPDF     Kind = "pdf"
	KindJPEG    Kind = "jpeg"
	KindPNG     Kind = "png"
	KindGIF     Kind = "gif"
	KindWebP    Kind = "webp"
	KindBMP     Kind = "bmp"
	KindTIFF    Kind = "tiff"
	KindText    Kind = "text"
	KindWord    Kind = "word"
	KindUnknown Kind = "unknown"
)

// ImageKinds are the raster formats accepted by image conversion.
var ImageKinds = []Kind{KindJPEG, KindPNG, KindGIF, KindWebP, KindBMP, KindTIFF}

var magic = []struct {
	kind   Kind
	prefix []byte
}{
	{KindJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{KindPNG, []byte("\x89PNG\r\n\x1a\n")},
	{KindGIF, []byte("GIF87a")},
	{KindGIF, []byte("GIF89a")},
	{KindBMP, []byte("BM")},
	{KindTIFF, []byte("II*\x00")},
	{KindTIFF, []byte("MM\x00*")},
	{KindWord, []byte{0xD0, 0xCF, 0x11, 0xE0}},
}

// DetectKind identifies data by its leading bytes, then by the extension of
// name. A PDF header may follow up to 1KiB of junk, as readers allow.
func DetectKind(name string, data []byte) Kind {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.Contains(head, []byte("%PDF-")) {
		return KindPDF
	}
	for _, m := range magic {
		if bytes.HasPrefix(data, m.prefix) {
			return m.kind
		}
	}
	if len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return KindWebP
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "pdf":
		return KindPDF
	case "doc", "docx":
		return KindWord
	case "txt", "md", "markdown", "html", "htm":
		return KindText
	}
	if len(data) > 0 && utf8.Valid(head) && !bytes.ContainsRune(head, 0) {
		return KindText
	}
	return KindUnknown
}

// Limits bounds the inputs of one operation.
type Limits struct {
	MaxFiles int   `yaml:"max_files"`
	MaxSize  int64 `yaml:"max_size"`
}

const mb = 1024 * 1024

var defaultLimits = map[string]Limits{
	"merge":         {MaxFiles: 20, MaxSize: 50 * mb},
	"split":         {MaxFiles: 1, MaxSize: 100 * mb},
	"compress":      {MaxFiles: 1, MaxSize: 50 * mb},
	"convert":       {MaxFiles: 1, MaxSize: 25 * mb},
	"watermark":     {MaxFiles: 1, MaxSize: 50 * mb},
	"rotate":        {MaxFiles: 1, MaxSize: 100 * mb},
	"image-convert": {MaxFiles: 10, MaxSize: 25 * mb},
}

// DefaultLimits returns the stock limits for op; unknown operations get
// 10 files of 50MB.
func DefaultLimits(op string) Limits {
	if l, ok := defaultLimits[op]; ok {
		return l
	}
	return Limits{MaxFiles: 10, MaxSize: 50 * mb}
}

// Operations lists the operation names that carry default limits.
func Operations() []string {
	return []string{"merge", "split", "compress", "convert", "watermark", "rotate", "image-convert"}
}

// Files validates count, kind and size of files. The first failure wins.
func Files(files []File, limits Limits, allowed ...Kind) error {
	if len(files) == 0 {
		return pdferr.Validationf("No files provided")
	}
	if limits.MaxFiles > 0 && len(files) > limits.MaxFiles {
		return pdferr.Validationf("Too many files. Maximum allowed: %d, provided: %d", limits.MaxFiles, len(files))
	}
	for _, f := range files {
		if err := One(f, limits.MaxSize, allowed...); err != nil {
			return err
		}
	}
	return nil
}

// One validates a single file.
func One(f File, maxSize int64, allowed ...Kind) error {
	if len(f.Data) == 0 {
		return pdferr.InvalidFile(f.Name, 0, "File %s is empty", f.Name)
	}
	if len(allowed) > 0 {
		kind := DetectKind(f.Name, f.Data)
		if !containsKind(allowed, kind) {
			return pdferr.InvalidFile(f.Name, f.Size(), "File type %s is not supported. Allowed types: %s", kind, joinKinds(allowed))
		}
	}
	if maxSize > 0 && f.Size() > maxSize {
		return pdferr.InvalidFile(f.Name, f.Size(), "File size %dMB exceeds maximum allowed size of %dMB",
			roundMB(f.Size()), roundMB(maxSize))
	}
	return nil
}

func roundMB(n int64) int64 { return int64(math.Round(float64(n) / mb)) }

func containsKind(kinds []Kind, k Kind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

func joinKinds(kinds []Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatSize renders n with binary units and at most two decimals.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	v, i := float64(n), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// BaseName strips directories and the extension from a file name.
func BaseName(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "document"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
