package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kenneth/splitstore/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeUpload represents one archive's upload pass.
	EventTypeUpload EventType = "upload"
	// EventTypeRestore represents one restore stream.
	EventTypeRestore EventType = "restore"
	// EventTypeDelete represents an archive deletion pass.
	EventTypeDelete EventType = "delete"
	// EventTypeMirror represents a mirror-sync operation on one part.
	EventTypeMirror EventType = "mirror"
	// EventTypeAccess represents a general archive-access operation.
	EventTypeAccess EventType = "access"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Operation string                 `json:"operation"`
	ArchiveID string                 `json:"archive_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	ClientIP  string                 `json:"client_ip,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Provider  string                 `json:"provider,omitempty"`
	PartIndex int                    `json:"part_index,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogUpload logs one archive's upload pass.
	LogUpload(archiveID, userID string, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogRestore logs a restore stream (whole, bundle entry, or range).
	LogRestore(archiveID, userID, mode string, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogDelete logs an archive deletion pass.
	LogDelete(archiveID, userID string, success bool, err error)

	// LogMirror logs a mirror-sync operation on one part.
	LogMirror(archiveID string, partIndex int, provider string, success bool, err error, duration time.Duration)

	// LogAccess logs a general access operation.
	LogAccess(eventType, archiveID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration)

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu         sync.Mutex
	events     []*AuditEvent
	maxEvents  int
	writer     EventWriter
	redactKeys []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger with redaction keys.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactKeys []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:     make([]*AuditEvent, 0, maxEvents),
		maxEvents:  maxEvents,
		writer:     writer,
		redactKeys: redactKeys,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

	// Wrap with batch sink if configured
	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactMetadataKeys), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// best-effort: a sink outage must not block the caller's archive operation
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)

	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata removes sensitive keys from metadata.
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactKeys) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for _, k := range l.redactKeys {
		if _, ok := metadata[k]; ok {
			needsRedaction = true
			break
		}
	}

	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		clone[k] = v
	}

	for _, key := range l.redactKeys {
		if _, ok := clone[key]; ok {
			clone[key] = "[REDACTED]"
		}
	}
	return clone
}

// LogUpload logs one archive's upload pass.
func (l *auditLogger) LogUpload(archiveID, userID string, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeUpload,
		Operation: "upload",
		ArchiveID: archiveID,
		UserID:    userID,
		Success:   success,
		Duration:  duration,
		Metadata:  l.redactMetadata(metadata),
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogRestore logs a restore stream (whole, bundle entry, or range).
func (l *auditLogger) LogRestore(archiveID, userID, mode string, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	md := l.redactMetadata(metadata)
	if md == nil {
		md = map[string]interface{}{}
	}
	md["mode"] = mode

	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeRestore,
		Operation: "restore",
		ArchiveID: archiveID,
		UserID:    userID,
		Success:   success,
		Duration:  duration,
		Metadata:  md,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogDelete logs an archive deletion pass.
func (l *auditLogger) LogDelete(archiveID, userID string, success bool, err error) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeDelete,
		Operation: "delete",
		ArchiveID: archiveID,
		UserID:    userID,
		Success:   success,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogMirror logs a mirror-sync operation on one part.
func (l *auditLogger) LogMirror(archiveID string, partIndex int, provider string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeMirror,
		Operation: "mirror_sync",
		ArchiveID: archiveID,
		PartIndex: partIndex,
		Provider:  provider,
		Success:   success,
		Duration:  duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogAccess logs a general access operation.
func (l *auditLogger) LogAccess(eventType, archiveID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventType(eventType),
		Operation: eventType,
		ArchiveID: archiveID,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		RequestID: requestID,
		Success:   success,
		Duration:  duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	fmt.Printf("%s\n", string(data))
	return nil
}
