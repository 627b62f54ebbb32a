package events

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type identifies the kind of event being emitted.
type Type string

const (
	TypeLLMUsage    Type = "llm_usage"
	TypeToolError   Type = "tool_error"
	TypeToolTimeout Type = "tool_timeout"
	TypeRound       Type = "round"
)

// Event is a structured record for the supervisor event stream.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"ts"`
	TaskID    string                 `json:"task_id,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// AuditRecord is one entry in the tool invocation audit log.
type AuditRecord struct {
	ID            string                 `json:"id"`
	Tool          string                 `json:"tool"`
	TaskID        string                 `json:"task_id,omitempty"`
	Args          map[string]interface{} `json:"args"`
	ResultPreview string                 `json:"result_preview"`
}

// Sink writes append-only JSONL event and audit streams.
// Emit and Audit are safe for concurrent use.
type Sink struct {
	mu        sync.Mutex
	events    zerolog.Logger
	audit     zerolog.Logger
	eventFile *os.File
	auditFile *os.File
}

// NewSink opens events.jsonl and tools.jsonl under dir, creating it if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	eventFile, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	auditFile, err := os.OpenFile(filepath.Join(dir, "tools.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		eventFile.Close()
		return nil, err
	}

	return &Sink{
		events:    zerolog.New(eventFile),
		audit:     zerolog.New(auditFile),
		eventFile: eventFile,
		auditFile: auditFile,
	}, nil
}

// NewDiscardSink returns a sink that drops everything. Useful in tests.
func NewDiscardSink() *Sink {
	nop := zerolog.Nop()
	return &Sink{events: nop, audit: nop}
}

// Emit appends one event to the event stream.
func (s *Sink) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.events.Log().
		Str("type", string(event.Type)).
		Time("ts", event.Timestamp).
		Str("task_id", event.TaskID).
		Str("category", event.Category)

	for key, value := range event.Fields {
		entry = entry.Interface(key, value)
	}

	entry.Msg("")
}

// Audit appends one tool invocation record to the audit stream. Records
// without an ID are assigned one so entries can be referenced later.
func (s *Sink) Audit(record AuditRecord) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit.Log().
		Time("ts", time.Now().UTC()).
		Str("id", record.ID).
		Str("tool", record.Tool).
		Str("task_id", record.TaskID).
		Interface("args", record.Args).
		Str("result_preview", record.ResultPreview).
		Msg("")
}

// Close closes the underlying log files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.eventFile != nil {
		err = s.eventFile.Close()
		s.eventFile = nil
	}
	if s.auditFile != nil {
		if cerr := s.auditFile.Close(); err == nil {
			err = cerr
		}
		s.auditFile = nil
	}
	return err
}
