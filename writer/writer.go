package writer

import (
	"bytes"
	"context"
	"io"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
)

type PDFVersion string

const (
	PDF14 PDFVersion = "1.4"
	PDF15 PDFVersion = "1.5"
	PDF17 PDFVersion = "1.7"
)

// ProgressFunc receives the number of objects written so far and the total.
type ProgressFunc func(written, total int)

type Config struct {
	// Version overrides the document's header version. Object and xref
	// streams raise it to at least 1.5.
	Version PDFVersion
	// Compression is the zlib level applied to unfiltered streams. Zero
	// leaves them as they are.
	Compression   int
	XRefStreams   bool
	ObjectStreams bool
	// ObjectsPerTick is how many objects are written between progress
	// reports and cancellation checks.
	ObjectsPerTick int
	Deterministic  bool
	// UpdateFieldAppearances asks viewers to regenerate form field
	// appearances by setting /NeedAppearances.
	UpdateFieldAppearances bool
	Progress               ProgressFunc
	Logger                 observability.Logger
}

const (
	defaultObjectsPerTick = 50
	objectStreamCapacity  = 100
)

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, w io.Writer, cfg Config) error
	SerializeObject(ref raw.ObjectRef, obj raw.Object) ([]byte, error)
}

func New() Writer { return &impl{} }

// Bytes serializes doc into memory.
func Bytes(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := New().Write(ctx, doc, &buf, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
