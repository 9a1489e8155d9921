package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// batchSize is the number of buffered events that triggers an HTTP flush.
const batchSize = 100

// Exporter journals registry events outside the process.
type Exporter interface {
	// LogEvent records an event with the given name and data.
	LogEvent(name string, data map[string]interface{})
	// Flush sends any buffered data.
	Flush() error
	// Close flushes and releases the exporter.
	Close() error
}

// Event is one journaled registry event.
type Event struct {
	Name      string                 `json:"name"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewExporter creates an exporter for the given protocol: "http" posts JSON
// batches to endpoint, "file" appends JSON lines to the file at endpoint.
func NewExporter(protocol, endpoint string) (Exporter, error) {
	switch protocol {
	case "http":
		if endpoint == "" {
			return nil, fmt.Errorf("http event exporter requires an endpoint")
		}
		return NewHTTPExporter(endpoint), nil
	case "file":
		return NewFileExporter(endpoint)
	case "noop", "":
		return NewNoopExporter(), nil
	default:
		return nil, fmt.Errorf("unknown event exporter protocol: %s", protocol)
	}
}

// --- HTTP Exporter ---

// HTTPExporter posts batches of events to an HTTP endpoint.
type HTTPExporter struct {
	endpoint string
	client   *http.Client
	buffer   []Event
	mu       sync.Mutex
}

// NewHTTPExporter creates a new HTTP exporter.
func NewHTTPExporter(endpoint string) *HTTPExporter {
	return &HTTPExporter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		buffer: make([]Event, 0, batchSize),
	}
}

func (e *HTTPExporter) LogEvent(name string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, Event{
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if len(e.buffer) >= batchSize {
		// A failed flush keeps the batch for the next attempt.
		_ = e.flush()
	}
}

func (e *HTTPExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

func (e *HTTPExporter) flush() error {
	if len(e.buffer) == 0 {
		return nil
	}

	data, err := json.Marshal(e.buffer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("event endpoint returned %d", resp.StatusCode)
	}

	e.buffer = e.buffer[:0]
	return nil
}

func (e *HTTPExporter) Close() error {
	return e.Flush()
}

// --- File Exporter ---

// FileExporter appends events to a file as JSON lines.
type FileExporter struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileExporter creates a new file exporter.
func NewFileExporter(path string) (*FileExporter, error) {
	if path == "" {
		return nil, fmt.Errorf("file event exporter requires a path")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}
	return &FileExporter{file: file}, nil
}

func (e *FileExporter) LogEvent(name string, data map[string]interface{}) {
	line, err := json.Marshal(Event{
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(line)
}

func (e *FileExporter) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file.Sync()
}

func (e *FileExporter) Close() error {
	e.Flush()
	return e.file.Close()
}

// --- Noop Exporter ---

// NoopExporter discards all events.
type NoopExporter struct{}

// NewNoopExporter creates a new noop exporter.
func NewNoopExporter() *NoopExporter {
	return &NoopExporter{}
}

func (e *NoopExporter) LogEvent(name string, data map[string]interface{}) {}
func (e *NoopExporter) Flush() error                                      { return nil }
func (e *NoopExporter) Close() error                                      { return nil }
