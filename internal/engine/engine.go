// Package engine wires the streaming reader, tokenizer, inverted index,
// persistence, and query executor into the public surface: Initialize,
// ParseHeaders, ProcessRows, Search.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/indexer"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/query"
)

// Stats are ingestion counters, valid after ProcessRows.
type Stats struct {
	RowsIndexed int64
	RowsSkipped int64
	BytesRead   int64
	Elapsed     time.Duration
}

// Engine is the single-flight search engine over one delimited source
// file. One ingestion or one search runs at a time; there is no internal
// locking because no concurrent mutation is supported.
type Engine struct {
	opts   options
	logger *slog.Logger

	path      string
	f         *os.File
	reader    *indexer.ChunkReader
	header    []string
	dataStart int64

	idx  *indexer.InvertedIndex // live index, mutated by ingestion only
	snap *indexer.Snapshotter

	// searchIdx is rebuilt from persisted snapshots; Search never looks
	// at the live index.
	searchIdx *indexer.InvertedIndex
	reloader  *indexer.ChunkReader
	mmapData  []byte
	mmapTried bool

	stats Stats
}

// New creates an engine. See the Option functions for configuration.
func New(opts ...Option) *Engine {
	o := applyOptions(opts)
	return &Engine{
		opts:   o,
		logger: o.logger,
		idx:    indexer.NewInvertedIndex(o.rowCacheSize),
		snap:   indexer.NewSnapshotter(o.storageDir, o.codec),
	}
}

// Initialize opens the source file and prepares the streaming reader.
func (e *Engine) Initialize(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	e.path = path
	e.f = f
	e.reader = indexer.NewChunkReader(f, e.opts.chunkSize)
	e.logger.Info("source file opened", "path", path)
	return nil
}

// Close releases the file handle and any mapping.
func (e *Engine) Close() error {
	if e.mmapData != nil {
		_ = indexer.MunmapFile(e.mmapData)
		e.mmapData = nil
	}
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}

// Index exposes the live inverted index for the direct programmatic
// operations (duplicates, unique values, fuzzy match, ...).
func (e *Engine) Index() *indexer.InvertedIndex {
	return e.idx
}

// Header returns the parsed lowercase field names.
func (e *Engine) Header() []string {
	return e.header
}

// Stats returns ingestion counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// ParseHeaders reads and records the header line. Headers are lowercased
// and fix the field count every record must match. Fewer than two
// columns is rejected.
func (e *Engine) ParseHeaders() error {
	if e.reader == nil {
		return ErrNotInitialized
	}
	e.reader.Seek(0)
	line, _, next, err := e.reader.Next(context.Background())
	if err != nil {
		return fmt.Errorf("read header line: %w", err)
	}
	header := indexer.SplitFields(indexer.TrimBOM(line))
	if len(header) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewColumns, len(header))
	}
	e.header = header
	e.dataStart = next
	e.logger.Info("headers parsed", "columns", len(header))
	return nil
}

// ProcessRows streams the file once, indexing every well-formed record
// and handing decoded rows to the analyzer in batches of batchSize.
// Records whose field count does not match the header are skipped, not
// fatal. The index and offset map are re-saved wholesale every
// checkpoint interval so a crash loses only the unflushed tail.
//
// Row IDs are spreadsheet row numbers: the first data record is 2, and
// skipped records still consume their ID.
func (e *Engine) ProcessRows(ctx context.Context, batchSize int) error {
	if e.reader == nil {
		return ErrNotInitialized
	}
	if len(e.header) == 0 {
		return ErrNoHeaders
	}
	if batchSize <= 0 {
		batchSize = e.opts.checkpointInterval
	}

	start := time.Now()
	e.reader.Seek(e.dataStart)

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []*common.Row, 4)
	g.Go(func() error {
		for batch := range batches {
			if err := e.opts.analyzer.AnalyzeBatch(gctx, batch); err != nil {
				return fmt.Errorf("analyze batch: %w", err)
			}
		}
		return nil
	})

	batch := make([]*common.Row, 0, batchSize)
	id := common.FirstRowID
	var indexed, skipped int64
	lastOffset := e.dataStart

	scanErr := func() error {
		for {
			line, offset, next, err := e.reader.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			lastOffset = next
			fields := indexer.SplitFields(line)
			if len(fields) != len(e.header) {
				skipped++
				e.logger.Debug("skipping malformed record",
					"row", id, "fields", len(fields), "want", len(e.header))
				id++
				continue
			}

			row := &common.Row{ID: id, Fields: make(map[string]common.Value, len(fields))}
			for i, name := range e.header {
				row.Fields[name] = common.Detect(fields[i])
			}
			for i, name := range e.header {
				e.idx.Index(name, fields[i], id, row)
			}
			e.idx.SetOffset(id, uint64(offset))

			batch = append(batch, row)
			if len(batch) >= batchSize {
				out := batch
				batch = make([]*common.Row, 0, batchSize)
				select {
				case batches <- out:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			indexed++
			id++
			if indexed%int64(e.opts.checkpointInterval) == 0 {
				e.checkpoint()
			}
		}
	}()

	if scanErr == nil && len(batch) > 0 {
		select {
		case batches <- batch:
		case <-gctx.Done():
			scanErr = gctx.Err()
		}
	}
	close(batches)
	if err := g.Wait(); scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		return scanErr
	}

	// Final full snapshot. Failure is reported, not fatal: the in-memory
	// index is intact and ingestion itself succeeded.
	e.checkpoint()

	e.stats = Stats{
		RowsIndexed: indexed,
		RowsSkipped: skipped,
		BytesRead:   lastOffset - e.dataStart,
		Elapsed:     time.Since(start),
	}
	e.logger.Info("ingestion complete",
		"rows", indexed, "skipped", skipped,
		"bytes", e.stats.BytesRead, "elapsed", e.stats.Elapsed)
	return nil
}

// checkpoint re-saves both snapshots; errors are logged and swallowed so
// a bad disk never aborts ingestion.
func (e *Engine) checkpoint() {
	if err := e.snap.SaveIndex(e.idx); err != nil {
		e.logger.Warn("index checkpoint failed", "error", err)
		return
	}
	if err := e.snap.SaveOffsets(e.idx); err != nil {
		e.logger.Warn("offsets checkpoint failed", "error", err)
	}
}

// Search answers a textual query against the last persisted snapshots.
// If no snapshot has been loaded yet it loads one now; failure to load
// is ErrIndexUnavailable, distinct from both an invalid query and a
// query matching zero rows. Matching rows go to the analyzer in batches
// and come back flattened in the result.
func (e *Engine) Search(ctx context.Context, q string) ([]*common.Row, error) {
	if e.reader == nil {
		return nil, ErrNotInitialized
	}
	if len(e.header) == 0 {
		return nil, ErrNoHeaders
	}
	if e.searchIdx == nil {
		if err := e.loadSnapshots(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
	}

	exec := query.NewExecutor(e.searchIdx, e, analyzerSink{e.opts.analyzer},
		e.opts.checkpointInterval, e.logger)
	return exec.Execute(ctx, q)
}

// FuzzyMatch answers an approximate value lookup against the last
// persisted snapshots, returning the IDs of rows whose indexed value is
// within threshold edits of the query value. A negative threshold
// selects the default distance.
func (e *Engine) FuzzyMatch(field, value string, threshold int) ([]common.RowID, error) {
	if e.reader == nil {
		return nil, ErrNotInitialized
	}
	if e.searchIdx == nil {
		if err := e.loadSnapshots(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
	}
	if !e.searchIdx.HasField(field) {
		return nil, fmt.Errorf("%w: %q", query.ErrUnknownField, field)
	}

	bm := e.searchIdx.FuzzyMatch(field, value, threshold)
	out := make([]common.RowID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, common.RowID(it.Next()))
	}
	return out, nil
}

// loadSnapshots rebuilds the search index from the persisted files.
func (e *Engine) loadSnapshots() error {
	idx := indexer.NewInvertedIndex(e.opts.rowCacheSize)
	if err := e.snap.LoadIndex(idx); err != nil {
		return err
	}
	if err := e.snap.LoadOffsets(idx); err != nil {
		return err
	}
	e.searchIdx = idx
	e.logger.Info("search index loaded", "fields", len(idx.Fields()))
	return nil
}

// ResetSearchIndex forces the next Search to re-load snapshots.
func (e *Engine) ResetSearchIndex() {
	e.searchIdx = nil
}

// LoadRow resolves a row ID for the executor: row cache first, then a
// random-access re-read at the recorded offset, decoded through the same
// tokenizer and type detector as ingestion. Re-reads prefer the mmap
// fast path and fall back to chunked reads at the stored offset.
func (e *Engine) LoadRow(ctx context.Context, id common.RowID) (*common.Row, error) {
	if row, ok := e.searchIdx.CachedRow(id); ok {
		return row, nil
	}
	offset, ok := e.searchIdx.Offset(id)
	if !ok {
		return nil, fmt.Errorf("no offset recorded for row %d", id)
	}

	line, err := e.readRecordAt(ctx, int64(offset))
	if err != nil {
		return nil, err
	}
	fields := indexer.SplitFields(line)
	if len(fields) != len(e.header) {
		return nil, fmt.Errorf("row %d: field count changed since ingestion (%d != %d)",
			id, len(fields), len(e.header))
	}

	row := &common.Row{ID: id, Fields: make(map[string]common.Value, len(fields))}
	for i, name := range e.header {
		row.Fields[name] = common.Detect(fields[i])
	}
	e.searchIdx.CacheRow(id, row)
	return row, nil
}

func (e *Engine) readRecordAt(ctx context.Context, offset int64) ([]byte, error) {
	if !e.mmapTried {
		e.mmapTried = true
		if data, err := indexer.MmapFile(e.f); err == nil {
			e.mmapData = data
		} else {
			e.logger.Debug("mmap unavailable, using chunked re-reads", "error", err)
		}
	}
	if e.mmapData != nil {
		if offset >= int64(len(e.mmapData)) {
			return nil, fmt.Errorf("offset %d beyond end of file", offset)
		}
		rest := e.mmapData[offset:]
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if n := len(rest); n > 0 && rest[n-1] == '\r' {
			rest = rest[:n-1]
		}
		return rest, nil
	}

	// Dedicated reader keeps random access from disturbing the
	// ingestion cursor.
	if e.reloader == nil {
		e.reloader = indexer.NewChunkReader(e.f, e.opts.chunkSize)
	}
	e.reloader.Seek(offset)
	line, _, _, err := e.reloader.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("re-read at offset %d: %w", offset, err)
	}
	return line, nil
}
