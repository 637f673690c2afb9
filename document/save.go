package document

import (
	"context"

	"github.com/wudi/pdfengine/optimize"
	"github.com/wudi/pdfengine/writer"
)

// SaveOptions are serialization hints trading size against compatibility.
type SaveOptions struct {
	// UseObjectStreams packs non-stream objects into compressed object
	// streams. It implies UseXRefStreams and a 1.5+ header.
	UseObjectStreams bool
	UseXRefStreams   bool
	// ObjectsPerTick is how many objects are written between progress
	// reports and cancellation checks.
	ObjectsPerTick int
	// CompressionLevel Flate-compresses unfiltered streams; zero leaves
	// them untouched.
	CompressionLevel int
	// UpdateFieldAppearances asks viewers to rebuild form field appearances.
	UpdateFieldAppearances bool
	Deterministic          bool
	Progress               func(written, total int)
}

// Save writes the document. Objects no longer reachable from the catalog or
// the information dictionary are left out.
func (d *Document) Save(ctx context.Context, opts SaveOptions) ([]byte, error) {
	d.syncPageTree()
	if _, err := optimize.New(optimize.Config{PruneUnreachable: true, Logger: d.logger}).Optimize(ctx, d.raw); err != nil {
		return nil, err
	}
	cfg := writer.Config{
		Compression:            opts.CompressionLevel,
		XRefStreams:            opts.UseXRefStreams || opts.UseObjectStreams,
		ObjectStreams:          opts.UseObjectStreams,
		ObjectsPerTick:         opts.ObjectsPerTick,
		Deterministic:          opts.Deterministic,
		UpdateFieldAppearances: opts.UpdateFieldAppearances,
		Logger:                 d.logger,
	}
	if opts.Progress != nil {
		cfg.Progress = writer.ProgressFunc(opts.Progress)
	}
	return writer.Bytes(ctx, d.raw, cfg)
}
