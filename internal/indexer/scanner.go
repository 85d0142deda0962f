// Package indexer builds and queries the inverted index over a delimited
// source file: streaming record reads, quote-aware tokenization, the
// field -> value -> row-ID structure, the row cache, and snapshot
// persistence.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultChunkSize is the read granularity of the streaming reader.
const DefaultChunkSize = 64 * 1024

// ChunkReader yields successive newline-terminated records from a file
// along with their byte offsets, without loading the whole file. Records
// longer than the chunk size are accumulated across reads; a trailing
// record without a final newline is returned as-is at EOF.
//
// The reader is strictly sequential: one cursor, no concurrent use. Seek
// repositions the cursor for random-access re-reads.
type ChunkReader struct {
	f         *os.File
	chunkSize int

	pending []byte // unconsumed bytes already read from the file
	start   int64  // file offset of pending[0]
	readPos int64  // next file offset to read from
	eof     bool
}

// NewChunkReader wraps an open file. chunkSize <= 0 selects the default.
func NewChunkReader(f *os.File, chunkSize int) *ChunkReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkReader{f: f, chunkSize: chunkSize}
}

// Seek repositions the cursor to an absolute byte offset, discarding any
// buffered data.
func (r *ChunkReader) Seek(offset int64) {
	r.pending = r.pending[:0]
	r.start = offset
	r.readPos = offset
	r.eof = false
}

// Next returns the next record (without its trailing newline or CR), the
// offset of its first byte, and the offset immediately after it. At end
// of input it returns io.EOF.
func (r *ChunkReader) Next(ctx context.Context) (line []byte, start, next int64, err error) {
	for {
		if i := bytes.IndexByte(r.pending, '\n'); i >= 0 {
			line = trimCR(r.pending[:i])
			start = r.start
			next = r.start + int64(i) + 1
			r.pending = r.pending[i+1:]
			r.start = next
			return line, start, next, nil
		}
		if r.eof {
			if len(r.pending) == 0 {
				return nil, 0, 0, io.EOF
			}
			// Final partial record without a newline.
			line = trimCR(r.pending)
			start = r.start
			next = r.start + int64(len(r.pending))
			r.pending = nil
			r.start = next
			return line, start, next, nil
		}
		if err := r.fill(ctx); err != nil {
			return nil, 0, 0, err
		}
	}
}

// fill reads one more chunk into the pending buffer.
func (r *ChunkReader) fill(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, r.chunkSize)
	n, err := r.f.ReadAt(buf, r.readPos)
	if n > 0 {
		r.pending = append(r.pending, buf[:n]...)
		r.readPos += int64(n)
	}
	switch {
	case err == io.EOF:
		r.eof = true
		return nil
	case err != nil:
		return fmt.Errorf("read at offset %d: %w", r.readPos, err)
	}
	return nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

// TrimBOM strips a UTF-8 byte order mark from the start of a record.
// Only the first record of a file can carry one.
func TrimBOM(line []byte) []byte {
	if len(line) >= 3 && line[0] == 0xEF && line[1] == 0xBB && line[2] == 0xBF {
		return line[3:]
	}
	return line
}

// SplitFields tokenizes one record into ordered field values. Comma is
// the delimiter; double-quoted fields may embed commas, and a doubled
// quote inside a quoted field encodes one literal quote. An unescaped
// quote mid-field just toggles quoted mode, matching spreadsheet
// behavior rather than rejecting the record.
//
// All output is folded to lowercase. Original casing is destroyed here
// and is not recoverable anywhere downstream.
func SplitFields(line []byte) []string {
	var fields []string
	var cur []byte
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur = append(cur, '"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == ',' && !inQuotes:
			fields = append(fields, strings.ToLower(string(cur)))
			cur = cur[:0]
		default:
			cur = append(cur, c)
		}
	}
	fields = append(fields, strings.ToLower(string(cur)))
	return fields
}
