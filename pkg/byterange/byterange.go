// Package byterange parses single HTTP byte ranges and copies the selected
// bytes in fixed-size blocks.
package byterange

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BlockSize is the read size used when streaming a range
const BlockSize = 8 * 1024

// Range is an inclusive byte interval
type Range struct {
	Start int64
	End   int64
}

// Length is the number of bytes covered
func (r Range) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value
func (r Range) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Parse resolves a Range header against a file of the given size. It accepts
// bytes=S-E, bytes=S- and bytes=-N. ok is false for anything malformed,
// multi-range, or out of bounds; callers then serve the whole file.
func Parse(header string, size int64) (Range, bool) {
	const prefix = "bytes="
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) || size <= 0 {
		return Range{}, false
	}
	set := strings.TrimSpace(header[len(prefix):])
	if strings.Contains(set, ",") {
		return Range{}, false
	}

	dash := strings.IndexByte(set, '-')
	if dash < 0 {
		return Range{}, false
	}
	startStr := strings.TrimSpace(set[:dash])
	endStr := strings.TrimSpace(set[dash+1:])

	var start, end int64
	switch {
	case startStr == "":
		if endStr == "" {
			return Range{}, false
		}
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return Range{}, false
		}
		start = size - suffix
		if start < 0 {
			start = 0
		}
		end = size - 1
	case endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return Range{}, false
		}
		start, end = s, size-1
	default:
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return Range{}, false
		}
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return Range{}, false
		}
		start, end = s, e
	}

	if start < 0 || end >= size || start > end {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

// Copy seeks src to the start of r once and copies exactly r.Length() bytes
// to dst in BlockSize blocks.
func Copy(dst io.Writer, src io.ReadSeeker, r Range) (int64, error) {
	if _, err := src.Seek(r.Start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek to %d: %w", r.Start, err)
	}
	return CopyBlocks(dst, io.LimitReader(src, r.Length()))
}

// CopyBlocks copies src to dst using a BlockSize buffer
func CopyBlocks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, BlockSize)
	return io.CopyBuffer(struct{ io.Writer }{dst}, struct{ io.Reader }{src}, buf)
}
