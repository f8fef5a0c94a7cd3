package audit

import (
	"errors"
	"testing"
	"time"
)

type recordingWriter struct {
	events []*AuditEvent
}

func (w *recordingWriter) WriteEvent(event *AuditEvent) error {
	w.events = append(w.events, event)
	return nil
}

func TestAuditLogger_LogUpload_RecordsEvent(t *testing.T) {
	w := &recordingWriter{}
	logger := NewLogger(10, w)

	logger.LogUpload("arc1", "user1", true, nil, 50*time.Millisecond, map[string]interface{}{"parts": 3})

	events := logger.GetEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.EventType != EventTypeUpload || e.ArchiveID != "arc1" || e.UserID != "user1" || !e.Success {
		t.Errorf("unexpected event: %+v", e)
	}
	if len(w.events) != 1 {
		t.Errorf("expected writer to receive 1 event, got %d", len(w.events))
	}
}

func TestAuditLogger_LogRestore_TagsMode(t *testing.T) {
	logger := NewLogger(10, &recordingWriter{})

	logger.LogRestore("arc1", "user1", "range", true, nil, 10*time.Millisecond, nil)

	events := logger.GetEvents()
	if events[0].Metadata["mode"] != "range" {
		t.Errorf("expected mode=range in metadata, got %+v", events[0].Metadata)
	}
}

func TestAuditLogger_LogDelete_CapturesError(t *testing.T) {
	logger := NewLogger(10, &recordingWriter{})

	logger.LogDelete("arc1", "user1", false, errors.New("provider unavailable"))

	events := logger.GetEvents()
	if events[0].Success {
		t.Error("expected Success=false")
	}
	if events[0].Error != "provider unavailable" {
		t.Errorf("expected error captured, got %q", events[0].Error)
	}
}

func TestAuditLogger_LogMirror_IncludesPartIndexAndProvider(t *testing.T) {
	logger := NewLogger(10, &recordingWriter{})

	logger.LogMirror("arc1", 4, "bot", true, nil, 5*time.Millisecond)

	events := logger.GetEvents()
	if events[0].PartIndex != 4 || events[0].Provider != "bot" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestAuditLogger_RedactsMetadataKeys(t *testing.T) {
	logger := NewLoggerWithRedaction(10, &recordingWriter{}, []string{"secret"})

	logger.LogUpload("arc1", "user1", true, nil, time.Millisecond, map[string]interface{}{"secret": "shhh", "size": 100})

	events := logger.GetEvents()
	if events[0].Metadata["secret"] != "[REDACTED]" {
		t.Errorf("expected secret redacted, got %+v", events[0].Metadata)
	}
	if events[0].Metadata["size"] != 100 {
		t.Errorf("expected non-redacted key preserved, got %+v", events[0].Metadata)
	}
}

func TestAuditLogger_MaxEventsTrimsOldest(t *testing.T) {
	logger := NewLogger(2, &recordingWriter{})

	logger.LogDelete("arc1", "user1", true, nil)
	logger.LogDelete("arc2", "user1", true, nil)
	logger.LogDelete("arc3", "user1", true, nil)

	events := logger.GetEvents()
	if len(events) != 2 {
		t.Fatalf("expected 2 events retained, got %d", len(events))
	}
	if events[0].ArchiveID != "arc2" || events[1].ArchiveID != "arc3" {
		t.Errorf("expected oldest event trimmed, got %+v", events)
	}
}
