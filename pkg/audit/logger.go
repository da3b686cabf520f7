package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/newtron-network/lookupclass/pkg/util"
)

// Logger defines the interface for audit logging backends
type Logger interface {
	Log(event *Event) error
	Query(filter Filter) ([]*Event, error)
	Close() error
}

// FileLogger logs audit events to a JSON-lines file, rotating it by size.
type FileLogger struct {
	path     string
	file     *os.File
	encoder  *json.Encoder
	mu       sync.RWMutex
	rotation RotationConfig
}

// RotationConfig configures log file rotation
type RotationConfig struct {
	MaxSize    int64 // Max file size in bytes before rotation
	MaxBackups int   // Max number of old files to retain
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(path string, rotation RotationConfig) (*FileLogger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	return &FileLogger{
		path:     path,
		file:     file,
		encoder:  json.NewEncoder(file),
		rotation: rotation,
	}, nil
}

// Log writes an audit event to the log file
func (l *FileLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotation.MaxSize > 0 {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.rotation.MaxSize {
			if err := l.rotate(); err != nil {
				return fmt.Errorf("rotating audit log: %w", err)
			}
		}
	}
	return l.encoder.Encode(event)
}

// Query returns the events matching filter, oldest first, from the rotated
// backups still on disk and the live file.
func (l *FileLogger) Query(filter Filter) ([]*Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	paths, err := l.backups()
	if err != nil {
		return nil, err
	}
	paths = append(paths, l.path)

	var events []*Event
	for _, path := range paths {
		events, err = appendMatching(events, path, filter)
		if err != nil {
			return nil, err
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(events) {
			return nil, nil
		}
		events = events[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(events) {
		events = events[:filter.Limit]
	}
	return events, nil
}

// appendMatching scans one JSON-lines file. A file removed by a concurrent
// rotation is treated as empty.
func appendMatching(events []*Event, path string, filter Filter) ([]*Event, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return events, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			util.WithField("file", filepath.Base(path)).Warnf("audit: skipping malformed entry at line %d: %v", line, err)
			continue
		}
		if event.matches(filter) {
			events = append(events, &event)
		}
	}
	return events, scanner.Err()
}

// backups lists the rotated files, oldest first. Backup names end in a
// fixed-width timestamp, so name order is age order.
func (l *FileLogger) backups() ([]string, error) {
	matches, err := filepath.Glob(l.path + ".*")
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *FileLogger) rotate() error {
	// Close current file
	if err := l.file.Close(); err != nil {
		return err
	}

	// Rename current file with timestamp
	timestamp := time.Now().Format("20060102-150405.000000000")
	rotatedPath := l.path + "." + timestamp

	if err := os.Rename(l.path, rotatedPath); err != nil {
		return err
	}

	// Open new file
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	l.file = file
	l.encoder = json.NewEncoder(file)

	// Cleanup old files if configured
	if l.rotation.MaxBackups > 0 {
		l.cleanupOldFiles()
	}

	return nil
}

// cleanupOldFiles keeps the newest MaxBackups rotated files.
func (l *FileLogger) cleanupOldFiles() {
	matches, err := l.backups()
	if err != nil || len(matches) <= l.rotation.MaxBackups {
		return
	}
	for _, path := range matches[:len(matches)-l.rotation.MaxBackups] {
		if err := os.Remove(path); err != nil {
			util.Warnf("audit: removing old log %s: %v", path, err)
		}
	}
}
