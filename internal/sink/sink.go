package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/your-org/procwatch/internal/model"
)

type record struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      model.EventType `json:"type"`
	Event     model.Event     `json:"event"`
}

// FileWriter appends decoded events to a JSON lines file.
type FileWriter struct {
	mu      sync.Mutex
	f       *os.File
	encoder *json.Encoder
}

func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event file: %w", err)
	}
	return &FileWriter{
		f:       f,
		encoder: json.NewEncoder(f),
	}, nil
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *FileWriter) Write(ev model.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return fmt.Errorf("event writer closed")
	}

	rec := record{
		Timestamp: time.Now().UTC(),
		Type:      ev.Type(),
		Event:     ev,
	}
	if err := w.encoder.Encode(rec); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}
