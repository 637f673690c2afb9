// Package optimize reduces the serialized size of a raw document in place.
package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
)

type Config struct {
	PruneUnreachable  bool
	CombineDuplicates bool
	CompressStreams   bool
	// CompressionLevel is the zlib level used when recompressing streams.
	CompressionLevel int
	// StripMetadata removes XMP packets, page thumbnails and PieceInfo.
	StripMetadata bool
	Filters       *filters.Pipeline
	Logger        observability.Logger
}

// Report counts what each pass changed.
type Report struct {
	Stripped     int
	Pruned       int
	Combined     int
	Recompressed int
	// SkippedImages counts image streams left untouched because their
	// codec cannot be re-encoded.
	SkippedImages int
}

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	if config.Filters == nil {
		config.Filters = filters.Standard()
	}
	config.Logger = observability.OrNop(config.Logger)
	return &Optimizer{config: config}
}

func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document) (Report, error) {
	var rep Report
	if o.config.StripMetadata {
		rep.Stripped = stripMetadata(doc)
	}
	// combining first leaves orphans for the prune pass to collect
	if o.config.CombineDuplicates {
		n, err := combineIdenticalObjects(ctx, doc)
		if err != nil {
			return rep, fmt.Errorf("failed to combine identical objects: %w", err)
		}
		rep.Combined = n
	}
	if o.config.PruneUnreachable {
		rep.Pruned = pruneUnreachable(doc)
	}
	if o.config.CompressStreams {
		n, skipped, err := o.compressStreams(ctx, doc)
		if err != nil {
			return rep, fmt.Errorf("failed to compress streams: %w", err)
		}
		rep.Recompressed, rep.SkippedImages = n, skipped
	}
	o.config.Logger.Debug("optimized document",
		observability.Int("stripped", rep.Stripped),
		observability.Int("combined", rep.Combined),
		observability.Int("pruned", rep.Pruned),
		observability.Int("recompressed", rep.Recompressed),
		observability.Int("skipped_images", rep.SkippedImages))
	return rep, nil
}
