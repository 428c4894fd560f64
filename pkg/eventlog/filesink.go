package eventlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("log file sink is closed")

// FileSink appends JSON lines to a file and rotates it to a single backup
// ("<path>.1") when the byte budget would be exceeded.
type FileSink struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	f        *os.File
	written  int64
}

// OpenFileSink opens path for appending, creating parent directories.
// maxBytes <= 0 disables rotation.
func OpenFileSink(path string, maxBytes int64) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileSink{path: path, maxBytes: maxBytes, f: f}, nil
}

// Path returns the active file path.
func (s *FileSink) Path() string {
	return s.path
}

// BackupPath returns the rotation target.
func (s *FileSink) BackupPath() string {
	return s.path + ".1"
}

// Write appends one line. The byte count tracks what this sink wrote since it
// was opened or last rotated; rotation only happens when that count is
// non-zero, so a single oversized line never produces an empty backup.
// A failed rotation is reported but the line is still written to the current file.
func (s *FileSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return ErrSinkClosed
	}

	var rotateErr error
	if s.maxBytes > 0 && s.written > 0 && s.written+int64(len(line)) > s.maxBytes {
		rotateErr = s.rotate()
		if s.f == nil {
			return rotateErr
		}
	}

	n, err := s.f.Write(line)
	s.written += int64(n)
	if err != nil {
		err = fmt.Errorf("write log file: %w", err)
	}
	return errors.Join(rotateErr, err)
}

// rotate moves the active file to the backup path and opens a fresh file.
// Caller holds s.mu.
func (s *FileSink) rotate() error {
	if err := s.f.Close(); err != nil {
		return s.reopen(fmt.Errorf("close log file: %w", err), 0)
	}
	if err := os.Remove(s.BackupPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return s.reopen(fmt.Errorf("remove log backup: %w", err), 0)
	}
	if err := os.Rename(s.path, s.BackupPath()); err != nil {
		return s.reopen(fmt.Errorf("rotate log file: %w", err), 0)
	}
	s.written = 0
	return s.reopen(nil, os.O_TRUNC)
}

// reopen opens the active path again after a rotation step, keeping cause as
// the reported error.
func (s *FileSink) reopen(cause error, mode int) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|mode, 0o644)
	if err != nil {
		s.f = nil
		return errors.Join(cause, fmt.Errorf("reopen log file: %w", err))
	}
	s.f = f
	return cause
}

// Close closes the file. Further writes fail with ErrSinkClosed.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
