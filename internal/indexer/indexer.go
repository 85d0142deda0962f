package indexer

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
)

// InvertedIndex maps field -> value -> set of row IDs, alongside the
// row-ID -> byte-offset map needed for random-access re-reads and a
// cache of decoded rows.
//
// Value buckets are roaring bitmaps: a row ID appears at most once per
// bucket and always iterates in ascending discovery order. Field and
// value keys are lowercased; empty values are bucketed under "null".
//
// The index is mutated only by a single ingestion or search flow at a
// time; there is no internal locking. Re-ingesting a file without
// Reset unions new postings into the existing buckets - clearing first
// is the caller's responsibility.
type InvertedIndex struct {
	fields  map[string]map[string]*roaring.Bitmap
	offsets map[common.RowID]uint64
	cache   *RowCache
}

// NewInvertedIndex creates an empty index. cacheSize bounds the row
// cache (0 means unbounded).
func NewInvertedIndex(cacheSize int) *InvertedIndex {
	return &InvertedIndex{
		fields:  make(map[string]map[string]*roaring.Bitmap),
		offsets: make(map[common.RowID]uint64),
		cache:   NewRowCache(cacheSize),
	}
}

// Reset drops all postings, offsets, and cached rows.
func (idx *InvertedIndex) Reset() {
	idx.fields = make(map[string]map[string]*roaring.Bitmap)
	idx.offsets = make(map[common.RowID]uint64)
	idx.cache.Clear()
}

func normalizeField(field string) string {
	return strings.ToLower(strings.TrimSpace(field))
}

func normalizeValue(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return common.NullValue
	}
	return value
}

// Add records that the given row carries the given value in the given
// field.
func (idx *InvertedIndex) Add(field, value string, id common.RowID) {
	field = normalizeField(field)
	value = normalizeValue(value)

	buckets, ok := idx.fields[field]
	if !ok {
		buckets = make(map[string]*roaring.Bitmap)
		idx.fields[field] = buckets
	}
	bm, ok := buckets[value]
	if !ok {
		bm = roaring.New()
		buckets[value] = bm
	}
	bm.Add(uint32(id))
}

// Index adds one field of a row and stores the decoded row. The row map
// is last-writer-wins: indexing the same ID repeatedly while assembling
// a record leaves the final union of its fields cached.
func (idx *InvertedIndex) Index(field, value string, id common.RowID, row *common.Row) {
	idx.Add(field, value, id)
	if row != nil {
		idx.cache.Put(id, row)
	}
}

// HasField reports whether any value was ever indexed under the field.
func (idx *InvertedIndex) HasField(field string) bool {
	_, ok := idx.fields[normalizeField(field)]
	return ok
}

// Fields returns the indexed field names, sorted for deterministic
// output. Nothing else in the index promises iteration order.
func (idx *InvertedIndex) Fields() []string {
	out := make([]string, 0, len(idx.fields))
	for f := range idx.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// LookupExact returns the row-ID set for an exact field/value pair.
func (idx *InvertedIndex) LookupExact(field, value string) (*roaring.Bitmap, bool) {
	buckets, ok := idx.fields[normalizeField(field)]
	if !ok {
		return nil, false
	}
	bm, ok := buckets[normalizeValue(value)]
	if !ok {
		return nil, false
	}
	return bm, true
}

// LookupLess unions the buckets whose value key is lexicographically
// below the bound. This is the coarse index stage: key strings, not
// parsed values, so "10" < "9" here. The executor's typed re-check makes
// the final call.
func (idx *InvertedIndex) LookupLess(field, bound string) *roaring.Bitmap {
	return idx.lookupKeys(field, func(key string) bool {
		return key < bound
	})
}

// LookupGreater is the lexicographic counterpart of LookupLess.
func (idx *InvertedIndex) LookupGreater(field, bound string) *roaring.Bitmap {
	return idx.lookupKeys(field, func(key string) bool {
		return key > bound
	})
}

// LookupRange unions buckets with low <= key <= high, lexicographically.
func (idx *InvertedIndex) LookupRange(field, low, high string) *roaring.Bitmap {
	return idx.lookupKeys(field, func(key string) bool {
		return key >= low && key <= high
	})
}

func (idx *InvertedIndex) lookupKeys(field string, match func(string) bool) *roaring.Bitmap {
	out := roaring.New()
	buckets, ok := idx.fields[normalizeField(field)]
	if !ok {
		return out
	}
	for key, bm := range buckets {
		if match(key) {
			out.Or(bm)
		}
	}
	return out
}

// Duplicates returns every value bucket of the field holding more than
// one row.
func (idx *InvertedIndex) Duplicates(field string) map[string][]common.RowID {
	out := make(map[string][]common.RowID)
	for key, bm := range idx.fields[normalizeField(field)] {
		if bm.GetCardinality() > 1 {
			out[key] = rowIDs(bm)
		}
	}
	return out
}

// MissingValueRows returns the rows whose field was empty at ingestion.
func (idx *InvertedIndex) MissingValueRows(field string) []common.RowID {
	bm, ok := idx.LookupExact(field, common.NullValue)
	if !ok {
		return nil
	}
	return rowIDs(bm)
}

// UniqueValues returns the distinct value keys indexed under the field.
// No output order is promised.
func (idx *InvertedIndex) UniqueValues(field string) []string {
	buckets := idx.fields[normalizeField(field)]
	out := make([]string, 0, len(buckets))
	for key := range buckets {
		out = append(out, key)
	}
	return out
}

// Count returns the bucket size for a field/value pair, 0 if absent.
func (idx *InvertedIndex) Count(field, value string) int {
	bm, ok := idx.LookupExact(field, value)
	if !ok {
		return 0
	}
	return int(bm.GetCardinality())
}

// SortedRowIDs flattens all row IDs under the field across every value
// bucket, numerically sorted.
func (idx *InvertedIndex) SortedRowIDs(field string, ascending bool) []common.RowID {
	all := roaring.New()
	for _, bm := range idx.fields[normalizeField(field)] {
		all.Or(bm)
	}
	ids := rowIDs(all)
	if !ascending {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	return ids
}

// FieldWithMostDuplicates returns the field with the highest number of
// distinct values that hold more than one row, and that count. Ties keep
// whichever field was seen first during iteration; field iteration order
// is not specified.
func (idx *InvertedIndex) FieldWithMostDuplicates() (string, int) {
	var bestField string
	bestCount := -1
	for field, buckets := range idx.fields {
		count := 0
		for _, bm := range buckets {
			if bm.GetCardinality() > 1 {
				count++
			}
		}
		if count > bestCount {
			bestField = field
			bestCount = count
		}
	}
	if bestCount < 0 {
		return "", 0
	}
	return bestField, bestCount
}

// DefaultFuzzyThreshold is the edit distance used when the caller does
// not pick one.
const DefaultFuzzyThreshold = 2

// FuzzyMatch unions the row IDs of every value bucket within the given
// Levenshtein distance of the query value. A threshold below zero
// selects the default.
func (idx *InvertedIndex) FuzzyMatch(field, value string, threshold int) *roaring.Bitmap {
	if threshold < 0 {
		threshold = DefaultFuzzyThreshold
	}
	out := roaring.New()
	value = normalizeValue(value)
	for key, bm := range idx.fields[normalizeField(field)] {
		if common.Levenshtein(key, value) <= threshold {
			out.Or(bm)
		}
	}
	return out
}

// SetOffset records the byte offset of a row's first byte in the source
// file.
func (idx *InvertedIndex) SetOffset(id common.RowID, offset uint64) {
	idx.offsets[id] = offset
}

// Offset returns the recorded byte offset for a row.
func (idx *InvertedIndex) Offset(id common.RowID) (uint64, bool) {
	off, ok := idx.offsets[id]
	return off, ok
}

// CachedRow returns the memoized decoded row, if any.
func (idx *InvertedIndex) CachedRow(id common.RowID) (*common.Row, bool) {
	return idx.cache.Get(id)
}

// CacheRow memoizes a decoded row for later random access.
func (idx *InvertedIndex) CacheRow(id common.RowID, row *common.Row) {
	idx.cache.Put(id, row)
}

func rowIDs(bm *roaring.Bitmap) []common.RowID {
	out := make([]common.RowID, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, common.RowID(it.Next()))
	}
	return out
}
