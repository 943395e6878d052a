package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileLogger appends audit events to a file as JSON lines.
type FileLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileLogger opens (or creates) the given file for appending audit
// events.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}
	return &FileLogger{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

func (f *FileLogger) Log(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(event); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

func (f *FileLogger) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
