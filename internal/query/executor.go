package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/indexer"
)

// DefaultBatchSize is how many matched rows accumulate before a flush to
// the result sink.
const DefaultBatchSize = 500

// RowLoader resolves a row ID to its decoded row, via cache or a
// random-access re-read of the source file.
type RowLoader interface {
	LoadRow(ctx context.Context, id common.RowID) (*common.Row, error)
}

// Sink receives completed result batches in match order.
type Sink interface {
	FlushBatch(ctx context.Context, rows []*common.Row) error
}

// Executor answers parsed queries in two stages. The index stage
// compares value keys as strings, so for numeric and date fields it only
// approximates the requested ordering ("9" > "10" lexicographically);
// the per-row typed re-check afterwards is authoritative and corrects
// any over- or under-selection.
type Executor struct {
	idx       *indexer.InvertedIndex
	loader    RowLoader
	sink      Sink
	batchSize int
	logger    *slog.Logger
}

// NewExecutor wires an executor. sink may be nil when no downstream
// consumer wants batches; batchSize <= 0 selects the default.
func NewExecutor(idx *indexer.InvertedIndex, loader RowLoader, sink Sink, batchSize int, logger *slog.Logger) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		idx:       idx,
		loader:    loader,
		sink:      sink,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Execute parses and runs a textual query, returning every row that
// survives typed re-validation. Zero survivors is a present-but-empty
// result, not an error; an unparseable query or an unknown field aborts.
func (e *Executor) Execute(ctx context.Context, q string) ([]*common.Row, error) {
	conds, err := Parse(q)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, conds)
}

// Run executes pre-parsed conditions: coarse candidate lookup per
// condition, intersection, then reload and re-validate each survivor.
func (e *Executor) Run(ctx context.Context, conds []Condition) ([]*common.Row, error) {
	candidates, err := e.candidates(conds)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("index stage complete",
		"conditions", len(conds),
		"candidates", candidates.GetCardinality(),
	)

	// Zero survivors is an empty-but-present result, never nil.
	results := make([]*common.Row, 0)
	batch := make([]*common.Row, 0, e.batchSize)

	it := candidates.Iterator()
	for it.HasNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := common.RowID(it.Next())

		row, err := e.loader.LoadRow(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load row %d: %w", id, err)
		}
		if !e.revalidate(row, conds) {
			continue
		}

		results = append(results, row)
		batch = append(batch, row)
		if len(batch) >= e.batchSize {
			if err := e.flush(ctx, batch); err != nil {
				return nil, err
			}
			batch = batch[:0]
		}
	}
	if err := e.flush(ctx, batch); err != nil {
		return nil, err
	}

	e.logger.Debug("search complete", "matched", len(results))
	return results, nil
}

// candidates intersects the per-condition coarse sets. The first
// condition seeds the set; each further condition narrows it. A field
// missing from the index aborts the whole query.
func (e *Executor) candidates(conds []Condition) (*roaring.Bitmap, error) {
	var out *roaring.Bitmap
	for _, c := range conds {
		if !e.idx.HasField(c.Field) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, strings.TrimSpace(c.Field))
		}

		var set *roaring.Bitmap
		switch c.Op {
		case OpEquals:
			bm, ok := e.idx.LookupExact(c.Field, c.Value)
			if !ok {
				bm = roaring.New()
			}
			set = bm
		case OpLess:
			set = e.idx.LookupLess(c.Field, normalize(c.Value))
		case OpGreater:
			set = e.idx.LookupGreater(c.Field, normalize(c.Value))
		case OpRange:
			set = e.idx.LookupRange(c.Field, normalize(c.Low), normalize(c.High))
		}

		if out == nil {
			out = set.Clone()
		} else {
			out.And(set)
		}
	}
	if out == nil {
		out = roaring.New()
	}
	return out, nil
}

// revalidate checks every condition against the row's typed values.
func (e *Executor) revalidate(row *common.Row, conds []Condition) bool {
	for _, c := range conds {
		if !matches(row, c) {
			return false
		}
	}
	return true
}

func matches(row *common.Row, c Condition) bool {
	v, ok := row.Fields[normalize(c.Field)]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEquals:
		return v.Compare(common.Detect(normalize(c.Value))) == 0
	case OpLess:
		return v.Compare(common.Detect(normalize(c.Value))) < 0
	case OpGreater:
		return v.Compare(common.Detect(normalize(c.Value))) > 0
	case OpRange:
		return v.Compare(common.Detect(normalize(c.Low))) >= 0 &&
			v.Compare(common.Detect(normalize(c.High))) <= 0
	}
	return false
}

// normalize applies the same folding the tokenizer applied at ingestion,
// so comparison values line up with indexed ones.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (e *Executor) flush(ctx context.Context, batch []*common.Row) error {
	if e.sink == nil || len(batch) == 0 {
		return nil
	}
	out := make([]*common.Row, len(batch))
	copy(out, batch)
	if err := e.sink.FlushBatch(ctx, out); err != nil {
		return fmt.Errorf("flush result batch: %w", err)
	}
	return nil
}
