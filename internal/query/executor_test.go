package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
	"github.com/goahead-lk-04/CSVSearchEngine/internal/indexer"
)

// mapLoader serves rows from memory, standing in for the engine's
// cache-or-reread loader.
type mapLoader struct {
	rows map[common.RowID]*common.Row
}

func (l *mapLoader) LoadRow(_ context.Context, id common.RowID) (*common.Row, error) {
	return l.rows[id], nil
}

type collectSink struct {
	batches [][]*common.Row
}

func (s *collectSink) FlushBatch(_ context.Context, rows []*common.Row) error {
	s.batches = append(s.batches, rows)
	return nil
}

func makeRow(id common.RowID, header []string, values ...string) *common.Row {
	row := &common.Row{ID: id, Fields: make(map[string]common.Value, len(header))}
	for i, name := range header {
		row.Fields[name] = common.Detect(values[i])
	}
	return row
}

// fixture indexes:
//
//	id,name,age
//	1,dave,30   (row 2)
//	2,dave,40   (row 3)
//	3,eve,9     (row 4)
func fixture() (*indexer.InvertedIndex, *mapLoader) {
	header := []string{"id", "name", "age"}
	rows := map[common.RowID]*common.Row{
		2: makeRow(2, header, "1", "dave", "30"),
		3: makeRow(3, header, "2", "dave", "40"),
		4: makeRow(4, header, "3", "eve", "9"),
	}
	idx := indexer.NewInvertedIndex(0)
	for id, row := range rows {
		for name, v := range row.Fields {
			idx.Add(name, v.Raw, id)
		}
	}
	return idx, &mapLoader{rows: rows}
}

func newTestExecutor(idx *indexer.InvertedIndex, loader RowLoader, sink Sink) *Executor {
	return NewExecutor(idx, loader, sink, 0, nil)
}

func resultIDs(rows []*common.Row) []common.RowID {
	out := make([]common.RowID, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestExecutor_Equals(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	rows, err := exec.Execute(context.Background(), "name=dave")
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2, 3}, resultIDs(rows))
}

func TestExecutor_TypedGreater(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	// Coarse stage compares strings, so "9" passes the >"25" filter;
	// typed re-validation throws it back out.
	rows, err := exec.Execute(context.Background(), "age>25")
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2, 3}, resultIDs(rows))

	rows, err = exec.Execute(context.Background(), "age>35")
	require.NoError(t, err)
	require.Equal(t, []common.RowID{3}, resultIDs(rows))
}

func TestExecutor_TypedLess(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	// Lexicographically "9" < "25" is false, so the index stage misses
	// row 4 entirely: the coarse filter can under-select too. The kept
	// contract is two-stage filtering, not index-stage precision.
	rows, err := exec.Execute(context.Background(), "age<25")
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NotNil(t, rows, "zero matches is an empty result, not an error")
}

func TestExecutor_Conjunction(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	rows, err := exec.Execute(context.Background(), "name=dave and age<35")
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2}, resultIDs(rows))
}

func TestExecutor_Range(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	rows, err := exec.Execute(context.Background(), "age..30..40")
	require.NoError(t, err)
	require.Equal(t, []common.RowID{2, 3}, resultIDs(rows))
}

func TestExecutor_UnknownFieldAborts(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	_, err := exec.Execute(context.Background(), "ghost=1")
	require.ErrorIs(t, err, ErrUnknownField)

	// Distinct from a known field with zero matches.
	rows, err := exec.Execute(context.Background(), "name=nobody")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestExecutor_InvalidQueryAborts(t *testing.T) {
	idx, loader := fixture()
	exec := newTestExecutor(idx, loader, nil)

	_, err := exec.Execute(context.Background(), "gibberish")
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestExecutor_BatchFlushing(t *testing.T) {
	header := []string{"id", "name"}
	idx := indexer.NewInvertedIndex(0)
	rows := make(map[common.RowID]*common.Row)
	for i := 0; i < 7; i++ {
		id := common.RowID(2 + i)
		row := makeRow(id, header, "x", "dave")
		rows[id] = row
		for name, v := range row.Fields {
			idx.Add(name, v.Raw, id)
		}
	}

	sink := &collectSink{}
	exec := NewExecutor(idx, &mapLoader{rows: rows}, sink, 3, nil)

	got, err := exec.Execute(context.Background(), "name=dave")
	require.NoError(t, err)
	require.Len(t, got, 7)

	// 3 + 3 + final partial 1, in match order.
	require.Len(t, sink.batches, 3)
	require.Len(t, sink.batches[0], 3)
	require.Len(t, sink.batches[1], 3)
	require.Len(t, sink.batches[2], 1)
	require.Equal(t, common.RowID(2), sink.batches[0][0].ID)
	require.Equal(t, common.RowID(8), sink.batches[2][0].ID)
}
