package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter appends to a log file and rolls it over to numbered
// backups (name.1 is the newest) once maxSize bytes would be exceeded.
// Safe for concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	written    int64
}

// NewRotatingWriter opens filePath for appending. Zero or negative limits
// fall back to 10 MB and 3 backups.
func NewRotatingWriter(filePath string, maxSizeMB int, maxBackups int) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	rw := &RotatingWriter{
		filePath:   filePath,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.written > 0 && rw.written+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation: %w", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

// TeeWriter returns an io.Writer that writes to both w1 and w2.
func TeeWriter(w1, w2 io.Writer) io.Writer {
	return io.MultiWriter(w1, w2)
}

func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	rw.file = f
	rw.written = info.Size()
	return nil
}

func (rw *RotatingWriter) rotate() error {
	if rw.file != nil {
		rw.file.Close()
		rw.file = nil
	}
	if err := ShiftBackups(rw.filePath, rw.maxBackups); err != nil {
		return err
	}
	return rw.open()
}

// BackupName returns the name of the index-th backup of filePath
// (filePath itself for index 0).
func BackupName(filePath string, index int) string {
	if index == 0 {
		return filePath
	}
	return fmt.Sprintf("%s.%d", filePath, index)
}

// ShiftBackups moves filePath to filePath.1, shifting older backups up by
// one and dropping the one past maxBackups. Missing files are skipped.
func ShiftBackups(filePath string, maxBackups int) error {
	if maxBackups < 1 {
		maxBackups = 1
	}
	if err := os.Remove(BackupName(filePath, maxBackups)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove oldest backup: %w", err)
	}
	for i := maxBackups - 1; i >= 1; i-- {
		if err := os.Rename(BackupName(filePath, i), BackupName(filePath, i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shift backup %d: %w", i, err)
		}
	}
	if err := os.Rename(filePath, BackupName(filePath, 1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename current file: %w", err)
	}
	return nil
}
