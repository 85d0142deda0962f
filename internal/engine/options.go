package engine

import (
	"log/slog"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/indexer"
)

// DefaultCheckpointInterval is how many processed rows pass between full
// snapshot re-saves during ingestion.
const DefaultCheckpointInterval = 500

type options struct {
	logger             *slog.Logger
	storageDir         string
	chunkSize          int
	checkpointInterval int
	rowCacheSize       int
	codec              indexer.Codec
	analyzer           Analyzer
}

// Option configures an Engine at construction.
type Option func(*options)

// WithLogger sets the structured logger. nil keeps logging disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStorageDir sets the root directory for persisted snapshots.
func WithStorageDir(dir string) Option {
	return func(o *options) {
		o.storageDir = dir
	}
}

// WithChunkSize sets the streaming reader's read granularity.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithCheckpointInterval sets how many rows pass between snapshot
// re-saves during ingestion, and between result-batch flushes during
// search. <= 0 restores the default.
func WithCheckpointInterval(n int) Option {
	return func(o *options) {
		o.checkpointInterval = n
	}
}

// WithRowCacheSize bounds the row cache to n entries (LRU). 0, the
// default, keeps every row ever fetched.
func WithRowCacheSize(n int) Option {
	return func(o *options) {
		o.rowCacheSize = n
	}
}

// WithCodec overrides the snapshot encoding.
func WithCodec(c indexer.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithAnalyzer sets the downstream consumer that receives decoded-row
// batches during ingestion and search.
func WithAnalyzer(a Analyzer) Option {
	return func(o *options) {
		if a != nil {
			o.analyzer = a
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:             slog.New(slog.DiscardHandler),
		storageDir:         ".",
		checkpointInterval: DefaultCheckpointInterval,
		analyzer:           NoopAnalyzer{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.checkpointInterval <= 0 {
		o.checkpointInterval = DefaultCheckpointInterval
	}
	return o
}
