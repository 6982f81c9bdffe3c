package export

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

const writeBufferSize = 64 * 1024

// atomicFile writes to a temp file in the destination directory and renames
// it into place on Commit, so readers never observe a partial file
type atomicFile struct {
	dest string
	tmp  *os.File
	w    *bufio.Writer
}

func createAtomic(dest string) (*atomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	_ = os.Chmod(tmp.Name(), 0644)
	return &atomicFile{
		dest: dest,
		tmp:  tmp,
		w:    bufio.NewWriterSize(tmp, writeBufferSize),
	}, nil
}

func (f *atomicFile) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f *atomicFile) WriteString(s string) (int, error) {
	return f.w.WriteString(s)
}

// Commit flushes, syncs and renames the temp file to its destination
func (f *atomicFile) Commit() error {
	if err := f.w.Flush(); err != nil {
		f.Abort()
		return fmt.Errorf("failed to flush %s: %w", f.dest, err)
	}
	if err := f.tmp.Sync(); err != nil {
		f.Abort()
		return fmt.Errorf("failed to sync %s: %w", f.dest, err)
	}
	if err := f.tmp.Close(); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("failed to close %s: %w", f.dest, err)
	}
	if err := os.Rename(f.tmp.Name(), f.dest); err != nil {
		_ = os.Remove(f.tmp.Name())
		return fmt.Errorf("failed to write %s: %w", f.dest, err)
	}
	return nil
}

// Abort discards the temp file
func (f *atomicFile) Abort() {
	_ = f.tmp.Close()
	_ = os.Remove(f.tmp.Name())
}

func writeFileAtomic(dest string, data []byte) error {
	f, err := createAtomic(dest)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Abort()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Commit()
}
