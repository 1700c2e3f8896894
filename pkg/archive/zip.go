// Package archive builds ZIP bundles on a temporary spool file and streams
// them out in fixed-size blocks.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/zots0127/filevault/pkg/byterange"
)

// EntryOverhead is the per-entry allowance added by size estimates for local
// headers and the central directory
const EntryOverhead = 1024

// Entry is one file going into an archive
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// UniqueNames renames colliding entry names to {stem}_{n}{ext}, counting up
// from 1 until the name is unused. Order is preserved.
func UniqueNames(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		candidate := name
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 1; used[candidate]; n++ {
			candidate = stem + "_" + strconv.Itoa(n) + ext
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}

// EstimateSize sums the entry sizes plus EntryOverhead per entry. It ignores
// compression, which cannot be known up front.
func EstimateSize(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size + EntryOverhead
	}
	return total
}

// Stream writes entries as a deflated ZIP into a spool file under spoolDir,
// then copies the spool to w in byterange.BlockSize blocks. The spool file
// is removed on every path.
func Stream(ctx context.Context, w io.Writer, spoolDir string, entries []Entry) (int64, error) {
	spool, err := os.CreateTemp(spoolDir, "batch-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if err := build(ctx, spool, entries); err != nil {
		return 0, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to rewind spool file: %w", err)
	}
	return byterange.CopyBlocks(w, spool)
}

func build(ctx context.Context, dst io.Writer, entries []Entry) error {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	names = UniqueNames(names)

	zw := zip.NewWriter(dst)
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addEntry(zw, names[i], e); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, name string, e Entry) error {
	src, err := e.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	header := &zip.FileHeader{Name: name, Method: zip.Deflate}
	if !e.Modified.IsZero() {
		header.Modified = e.Modified
	}
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := byterange.CopyBlocks(fw, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Filename names the finished archive: {stem}_{ts}.zip for a single display
// name, batch_download_{ts}.zip otherwise. The timestamp is UTC.
func Filename(displayNames []string, now time.Time) string {
	ts := now.UTC().Format("20060102_150405")
	if len(displayNames) == 1 {
		name := path.Base(displayNames[0])
		stem := strings.TrimSuffix(name, path.Ext(name))
		if stem != "" && stem != "." && stem != "/" {
			return stem + "_" + ts + ".zip"
		}
	}
	return "batch_download_" + ts + ".zip"
}
