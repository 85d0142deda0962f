package engine

import (
	"context"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
)

// Analyzer is the downstream collaborator that consumes decoded-row
// batches. The engine guarantees delivery of complete batches in
// ingestion (or match) order; everything past that - duplicate flagging,
// output, further processing - is the analyzer's business.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, rows []*common.Row) error
}

// NoopAnalyzer discards batches.
type NoopAnalyzer struct{}

// AnalyzeBatch does nothing.
func (NoopAnalyzer) AnalyzeBatch(context.Context, []*common.Row) error { return nil }

// analyzerSink adapts an Analyzer to the executor's result sink.
type analyzerSink struct {
	a Analyzer
}

func (s analyzerSink) FlushBatch(ctx context.Context, rows []*common.Row) error {
	return s.a.AnalyzeBatch(ctx, rows)
}
