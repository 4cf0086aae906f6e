package service

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// NewLogger returns the run logger writing to out and, when logFile is set,
// appending to that file as well. The returned close func is never nil.
func NewLogger(out io.Writer, logFile string) (*log.Logger, func() error, error) {
	if logFile == "" {
		return log.New(out, "[LEARNUS] ", log.LstdFlags), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir %s: %w", filepath.Dir(logFile), err)
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}

	mw := io.MultiWriter(out, f)
	return log.New(mw, "[LEARNUS] ", log.LstdFlags), f.Close, nil
}
