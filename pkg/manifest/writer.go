// Package manifest writes and reads per-partition object manifests.
//
// A manifest is a UTF-8 text file named "{partition}.txt" under the output
// root. The first line is the header "key,size,timestamp"; each following
// line describes one object in listing order. Keys are written verbatim, with
// no quoting or escaping.
package manifest

import (
	"bufio"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/3leaps/objmanifest/pkg/listing"
)

// Header is the first line of every manifest.
const Header = "key,size,timestamp"

// Extension is appended to the partition name to form the file name.
const Extension = ".txt"

const dirMode = 0o755

// WriteError describes a failed manifest write.
type WriteError struct {
	Partition string
	Op        string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("manifest %s: %s: %v", e.Partition, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Writer creates manifest files inside a filesystem rooted at the output
// directory.
//
// Each partition's file is touched by exactly one Write call, so concurrent
// Writes for distinct partitions are safe on filesystems that allow
// concurrent file creation (the OS filesystem does).
type Writer struct {
	fs billy.Filesystem

	prepareOnce sync.Once
	prepareErr  error
}

// NewWriter returns a writer over fs.
func NewWriter(fs billy.Filesystem) *Writer {
	return &Writer{fs: fs}
}

// NewOSWriter returns a writer for the directory root on the local disk.
func NewOSWriter(root string) *Writer {
	return NewWriter(osfs.New(root))
}

// Root returns the output root as reported by the filesystem.
func (w *Writer) Root() string {
	return w.fs.Root()
}

// Path returns the manifest path for partition, relative to the root.
func Path(partition string) string {
	return partition + Extension
}

// Prepare creates the output root. It runs once per Writer; later calls
// return the first result.
func (w *Writer) Prepare() error {
	w.prepareOnce.Do(func() {
		if err := w.fs.MkdirAll(".", dirMode); err != nil {
			w.prepareErr = fmt.Errorf("create output root %s: %w", w.fs.Root(), err)
		}
	})
	return w.prepareErr
}

// Write stores the manifest for partition.
//
// A result with no objects leaves the filesystem untouched and returns
// written=false. Otherwise the file is created or truncated, filled, flushed,
// synced when the file supports it, and closed. On any failure the partial
// file is removed so a manifest is either complete or absent.
func (w *Writer) Write(partition string, result *listing.Result) (bool, error) {
	if result.Empty() {
		return false, nil
	}

	name := Path(partition)
	f, err := w.fs.Create(name)
	if err != nil {
		return false, &WriteError{Partition: partition, Op: "create", Err: err}
	}

	if err := writeRecords(f, result.Objects); err != nil {
		_ = f.Close()
		_ = w.fs.Remove(name)
		return false, &WriteError{Partition: partition, Op: "write", Err: err}
	}

	if err := f.Close(); err != nil {
		_ = w.fs.Remove(name)
		return false, &WriteError{Partition: partition, Op: "close", Err: err}
	}
	return true, nil
}

// writeRecords streams the header and records to f, then flushes and syncs.
func writeRecords(f billy.File, objects []listing.ObjectRecord) error {
	bw := bufio.NewWriter(f)
	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	var buf []byte
	for _, obj := range objects {
		buf = appendRecord(buf[:0], obj)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if s, ok := f.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}

func appendRecord(buf []byte, obj listing.ObjectRecord) []byte {
	buf = append(buf, obj.Key...)
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, obj.Size, 10)
	buf = append(buf, ',')
	buf = append(buf, obj.Timestamp...)
	return append(buf, '\n')
}
