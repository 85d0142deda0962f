package indexer

import (
	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
)

// rowCacheEntry holds one memoized decoded row.
type rowCacheEntry struct {
	id   common.RowID
	row  *common.Row
	prev *rowCacheEntry
	next *rowCacheEntry
}

// RowCache memoizes decoded rows by ID. With maxEntries == 0 it grows
// without bound, keeping every row ever fetched - the historical
// behavior. A positive bound turns it into an LRU: entries promote on
// hit and the least-recently-used row is evicted when full.
type RowCache struct {
	items      map[common.RowID]*rowCacheEntry
	head       *rowCacheEntry // most recent
	tail       *rowCacheEntry // least recent
	maxEntries int
}

// NewRowCache creates a cache. maxEntries == 0 disables eviction.
func NewRowCache(maxEntries int) *RowCache {
	return &RowCache{
		items:      make(map[common.RowID]*rowCacheEntry),
		maxEntries: maxEntries,
	}
}

// Get retrieves a cached row. Promotes the entry on hit.
func (rc *RowCache) Get(id common.RowID) (*common.Row, bool) {
	entry, ok := rc.items[id]
	if !ok {
		return nil, false
	}
	rc.moveToHead(entry)
	return entry.row, true
}

// Put stores a decoded row, replacing any previous entry for the ID.
func (rc *RowCache) Put(id common.RowID, row *common.Row) {
	if entry, ok := rc.items[id]; ok {
		entry.row = row
		rc.moveToHead(entry)
		return
	}

	if rc.maxEntries > 0 && len(rc.items) >= rc.maxEntries {
		rc.evict()
	}

	entry := &rowCacheEntry{id: id, row: row}
	rc.items[id] = entry
	rc.addToHead(entry)
}

// Len returns the number of cached rows.
func (rc *RowCache) Len() int {
	return len(rc.items)
}

// Clear drops every cached row.
func (rc *RowCache) Clear() {
	rc.items = make(map[common.RowID]*rowCacheEntry)
	rc.head = nil
	rc.tail = nil
}

func (rc *RowCache) addToHead(entry *rowCacheEntry) {
	entry.prev = nil
	entry.next = rc.head
	if rc.head != nil {
		rc.head.prev = entry
	}
	rc.head = entry
	if rc.tail == nil {
		rc.tail = entry
	}
}

func (rc *RowCache) moveToHead(entry *rowCacheEntry) {
	if entry == rc.head {
		return
	}
	rc.removeFromList(entry)
	rc.addToHead(entry)
}

func (rc *RowCache) removeFromList(entry *rowCacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		rc.head = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		rc.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

func (rc *RowCache) evict() {
	if rc.tail == nil {
		return
	}
	victim := rc.tail
	rc.removeFromList(victim)
	delete(rc.items, victim.id)
}
