package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/query"
)

type recordingAnalyzer struct {
	batches [][]*common.Row
}

func (a *recordingAnalyzer) AnalyzeBatch(_ context.Context, rows []*common.Row) error {
	a.batches = append(a.batches, rows)
	return nil
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestEngine(t *testing.T, csv, storage string, opts ...Option) *Engine {
	t.Helper()
	opts = append(opts, WithStorageDir(storage))
	e := New(opts...)
	require.NoError(t, e.Initialize(csv))
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.ParseHeaders())
	return e
}

const fixtureCSV = "id,name,age\n1,dave,30\n2,dave,40\n3,carol,\n"

func ingest(t *testing.T, e *Engine) {
	t.Helper()
	require.NoError(t, e.ProcessRows(context.Background(), 500))
}

func TestEngine_ParseHeaders(t *testing.T) {
	csv := writeCSV(t, "ID,Name,AGE\n1,dave,30\n")
	e := newTestEngine(t, csv, t.TempDir())
	require.Equal(t, []string{"id", "name", "age"}, e.Header(), "headers are lowercased")
}

func TestEngine_ParseHeaders_TooFewColumns(t *testing.T) {
	csv := writeCSV(t, "lonely\n1\n")
	e := New(WithStorageDir(t.TempDir()))
	require.NoError(t, e.Initialize(csv))
	defer e.Close()
	require.ErrorIs(t, e.ParseHeaders(), ErrTooFewColumns)
}

func TestEngine_ProcessRows_IndexesInFileOrder(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	idx := e.Index()

	// Row IDs start at 2: the header is spreadsheet row 1.
	bm, ok := idx.LookupExact("name", "dave")
	require.True(t, ok)
	require.Equal(t, []uint32{2, 3}, bm.ToArray())

	require.Equal(t, map[string][]common.RowID{"dave": {2, 3}}, idx.Duplicates("name"))

	// Empty age is bucketed under the null sentinel.
	require.Equal(t, []common.RowID{4}, idx.MissingValueRows("age"))

	st := e.Stats()
	require.Equal(t, int64(3), st.RowsIndexed)
	require.Zero(t, st.RowsSkipped)
}

func TestEngine_ProcessRows_SkipsMalformedRecords(t *testing.T) {
	csv := writeCSV(t, "id,name,age\n1,dave,30\nonly,two\n3,carol,22\n")
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	st := e.Stats()
	require.Equal(t, int64(2), st.RowsIndexed)
	require.Equal(t, int64(1), st.RowsSkipped)

	// The skipped record still consumed its spreadsheet row number.
	bm, ok := e.Index().LookupExact("name", "carol")
	require.True(t, ok)
	require.Equal(t, []uint32{4}, bm.ToArray())
}

func TestEngine_ProcessRows_DeliversBatchesInOrder(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	analyzer := &recordingAnalyzer{}
	e := newTestEngine(t, csv, t.TempDir(), WithAnalyzer(analyzer))
	require.NoError(t, e.ProcessRows(context.Background(), 2))

	require.Len(t, analyzer.batches, 2)
	require.Len(t, analyzer.batches[0], 2)
	require.Len(t, analyzer.batches[1], 1)
	require.Equal(t, common.RowID(2), analyzer.batches[0][0].ID)
	require.Equal(t, common.RowID(3), analyzer.batches[0][1].ID)
	require.Equal(t, common.RowID(4), analyzer.batches[1][0].ID)
}

func TestEngine_FuzzyMatch(t *testing.T) {
	csv := writeCSV(t, "id,name,age\n1,dave,30\n2,dav,40\n3,davos,22\n")
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	ids, err := e.FuzzyMatch("name", "dave", 1)
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2, 3}, ids)

	// Negative threshold selects the default distance of 2.
	ids, err = e.FuzzyMatch("name", "dave", -1)
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2, 3, 4}, ids)

	_, err = e.FuzzyMatch("ghost", "dave", 1)
	require.ErrorIs(t, err, query.ErrUnknownField)
}

func TestEngine_SearchBeforeLoadFails(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	e := newTestEngine(t, csv, t.TempDir()) // nothing persisted here yet

	_, err := e.Search(context.Background(), "name=dave")
	require.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestEngine_Search_TypedRevalidation(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	storage := t.TempDir()
	e := newTestEngine(t, csv, storage)
	ingest(t, e)

	// Numeric, not lexicographic: only the age-40 row exceeds 35.
	rows, err := e.Search(context.Background(), "age>35")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, common.RowID(3), rows[0].ID)
	require.Equal(t, "dave", rows[0].Fields["name"].Raw)
	require.Equal(t, int64(40), rows[0].Fields["age"].Int)
}

func TestEngine_Search_Conjunction(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	rows, err := e.Search(context.Background(), "name=dave and age<35")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, common.RowID(2), rows[0].ID)
}

func TestEngine_Search_FreshInstanceLoadsSnapshot(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	storage := t.TempDir()
	ingest(t, newTestEngine(t, csv, storage))

	// A brand-new engine sees only what was persisted.
	fresh := newTestEngine(t, csv, storage)
	rows, err := fresh.Search(context.Background(), "name=dave")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Round trip: re-read rows carry the same typed values detected at
	// ingestion.
	require.Equal(t, int64(30), rows[0].Fields["age"].Int)
	require.Equal(t, int64(40), rows[1].Fields["age"].Int)
	require.Equal(t, common.KindInteger, rows[0].Fields["age"].Kind)
	require.Equal(t, common.KindText, rows[0].Fields["name"].Kind)
}

func TestEngine_Search_ErrorTaxonomy(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	_, err := e.Search(context.Background(), "gibberish")
	require.ErrorIs(t, err, query.ErrInvalidQuery)

	_, err = e.Search(context.Background(), "ghost=1")
	require.ErrorIs(t, err, query.ErrUnknownField)

	// Zero matches is a present, empty result.
	rows, err := e.Search(context.Background(), "name=nobody")
	require.NoError(t, err)
	require.NotNil(t, rows)
	require.Empty(t, rows)
}

func TestEngine_Search_FlushesResultBatches(t *testing.T) {
	csv := writeCSV(t, fixtureCSV)
	analyzer := &recordingAnalyzer{}
	e := newTestEngine(t, csv, t.TempDir(),
		WithAnalyzer(analyzer), WithCheckpointInterval(1))
	ingest(t, e)

	ingestBatches := len(analyzer.batches)
	rows, err := e.Search(context.Background(), "name=dave")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Interval 1 means one flushed batch per matched row.
	require.Equal(t, ingestBatches+2, len(analyzer.batches))
}

func TestEngine_Search_QuotedFieldsSurviveReread(t *testing.T) {
	csv := writeCSV(t, "id,title\n1,\"hello, world\"\n2,plain\n")
	e := newTestEngine(t, csv, t.TempDir())
	ingest(t, e)

	rows, err := e.Search(context.Background(), "title=plain")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// The embedded comma survives the offset-based re-read: the record
	// is re-tokenized, not naively re-split.
	bm, ok := e.Index().LookupExact("title", "hello, world")
	require.True(t, ok)
	require.Equal(t, []uint32{2}, bm.ToArray())
}
