package indexer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/pierrec/lz4/v4"

	"github.com/goahead-lk-04/CSVSearchEngine/internal/common"
)

const (
	// MagicIndex and MagicOffsets identify the two snapshot file kinds.
	MagicIndex   = "CSIX"
	MagicOffsets = "CSOF"

	// SnapshotVersion guards against decoding a newer layout.
	SnapshotVersion = 1

	// IndexSnapshotName and OffsetsSnapshotName are the fixed file names
	// under the storage root.
	IndexSnapshotName   = "index.snap"
	OffsetsSnapshotName = "offsets.snap"
)

// Codec encodes and decodes snapshot bodies. Kept as an explicit seam so
// the wire encoding can change without touching the index itself.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default snapshot codec.
type JSONCodec struct{}

// Marshal encodes the value to JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON data into v.
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the codec's stable name.
func (JSONCodec) Name() string { return "json" }

// indexSnapshot is the on-disk shape of the inverted index: field ->
// value -> ascending row IDs.
type indexSnapshot map[string]map[string][]uint32

// offsetsSnapshot is the on-disk shape of the offset map.
type offsetsSnapshot map[common.RowID]uint64

// Snapshotter persists the inverted index and the offset map under an
// injected storage root. Each save rewrites the whole structure; there
// is no incremental or merge persistence.
type Snapshotter struct {
	dir   string
	codec Codec
}

// NewSnapshotter creates a Snapshotter rooted at dir. A nil codec
// selects JSON.
func NewSnapshotter(dir string, codec Codec) *Snapshotter {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Snapshotter{dir: dir, codec: codec}
}

// SaveIndex serializes the current field/value/row-ID structure.
func (s *Snapshotter) SaveIndex(idx *InvertedIndex) error {
	snap := make(indexSnapshot, len(idx.fields))
	for field, buckets := range idx.fields {
		values := make(map[string][]uint32, len(buckets))
		for key, bm := range buckets {
			values[key] = bm.ToArray()
		}
		snap[field] = values
	}
	return s.write(IndexSnapshotName, MagicIndex, snap)
}

// LoadIndex replaces the in-memory postings wholesale with the persisted
// snapshot. Offsets and the row cache are untouched; a missing or
// undecodable file is an error and leaves the index as it was.
func (s *Snapshotter) LoadIndex(idx *InvertedIndex) error {
	var snap indexSnapshot
	if err := s.read(IndexSnapshotName, MagicIndex, &snap); err != nil {
		return err
	}

	fields := make(map[string]map[string]*roaring.Bitmap, len(snap))
	for field, values := range snap {
		buckets := make(map[string]*roaring.Bitmap, len(values))
		for key, ids := range values {
			buckets[key] = roaring.BitmapOf(ids...)
		}
		fields[field] = buckets
	}
	idx.fields = fields
	return nil
}

// SaveOffsets serializes the row-ID -> byte-offset map.
func (s *Snapshotter) SaveOffsets(idx *InvertedIndex) error {
	return s.write(OffsetsSnapshotName, MagicOffsets, offsetsSnapshot(idx.offsets))
}

// LoadOffsets replaces the in-memory offset map with the persisted one.
func (s *Snapshotter) LoadOffsets(idx *InvertedIndex) error {
	var snap offsetsSnapshot
	if err := s.read(OffsetsSnapshotName, MagicOffsets, &snap); err != nil {
		return err
	}
	idx.offsets = map[common.RowID]uint64(snap)
	return nil
}

// write encodes v through the codec, compresses it, and atomically
// replaces the named snapshot file.
func (s *Snapshotter) write(name, magic string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create storage root: %w", err)
	}

	body, err := s.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	if err := writeSnapshotTo(f, magic, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	// Rename last so a crash mid-write never clobbers the previous
	// checkpoint.
	return os.Rename(tmp, path)
}

func writeSnapshotTo(w io.Writer, magic string, body []byte) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{SnapshotVersion}); err != nil {
		return err
	}
	lw := lz4.NewWriter(w)
	_ = lw.Apply(lz4.BlockSizeOption(lz4.Block64Kb))
	if _, err := lw.Write(body); err != nil {
		return err
	}
	return lw.Close()
}

// read opens the named snapshot, validates its header, and decodes the
// compressed body into v.
func (s *Snapshotter) read(name, magic string, v any) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if string(header[:len(magic)]) != magic {
		return fmt.Errorf("snapshot %s: bad magic %q", name, header[:len(magic)])
	}
	if header[len(magic)] != SnapshotVersion {
		return fmt.Errorf("snapshot %s: unsupported version %d", name, header[len(magic)])
	}

	body, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		return fmt.Errorf("decompress snapshot %s: %w", name, err)
	}
	if err := s.codec.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return nil
}
