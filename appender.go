package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// An Appender persists generated lines somewhere
type Appender interface {
	Append(line string) error
}

// A FileAppender appends each line to a plain text file. The file is opened
// and closed on every call so external rotation or deletion is picked up.
type FileAppender struct {
	Path string

	lock sync.Mutex
}

func NewFileAppender(path string) *FileAppender {
	return &FileAppender{Path: path}
}

// EnsureDir creates the parent directory of the log file, including any
// intermediate directories. It is safe to call repeatedly.
func (a *FileAppender) EnsureDir() error {
	dir := filepath.Dir(a.Path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	return nil
}

// Touch creates the log file if it doesn't exist yet
func (a *FileAppender) Touch() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	logF, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", a.Path, err)
	}

	return logF.Close()
}

// Append writes the line plus a newline in a single write. Calls are
// serialized so lines from concurrent requests never interleave.
func (a *FileAppender) Append(line string) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	err := a.EnsureDir()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", a.Path, err)
	}

	logF, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", a.Path, err)
	}

	_, err = logF.WriteString(line + "\n")
	if err != nil {
		_ = logF.Close()
		return fmt.Errorf("failed to append to %s: %w", a.Path, err)
	}

	err = logF.Close()
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", a.Path, err)
	}

	return nil
}
