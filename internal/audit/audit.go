package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/kenchrcum/steam-cdn-client/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeManifestFetch represents a depot manifest download.
	EventTypeManifestFetch EventType = "manifest_fetch"
	// EventTypeChunkFetch represents a chunk download from an edge server.
	EventTypeChunkFetch EventType = "chunk_fetch"
	// EventTypeServerPenalize represents a server being penalized by the pool.
	EventTypeServerPenalize EventType = "server_penalize"
	// EventTypePoolRefresh represents a server-directory refresh.
	EventTypePoolRefresh EventType = "pool_refresh"
	// EventTypeAccess represents a general control-plane access operation.
	EventTypeAccess EventType = "access"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   EventType              `json:"event_type"`
	Operation   string                 `json:"operation"`
	AppID       uint32                 `json:"app_id,omitempty"`
	DepotID     uint32                 `json:"depot_id,omitempty"`
	ManifestGID uint64                 `json:"manifest_gid,omitempty"`
	ChunkSHA    string                 `json:"chunk_sha,omitempty"`
	ServerHost  string                 `json:"server_host,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogManifestFetch logs a manifest download.
	LogManifestFetch(appID, depotID uint32, manifestGID uint64, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogChunkFetch logs a chunk download.
	LogChunkFetch(depotID uint32, chunkSHA, serverHost string, success bool, err error, duration time.Duration)

	// LogServerPenalize logs a server being penalized by the pool.
	LogServerPenalize(serverHost string, err error)

	// LogAccess logs a general control-plane access operation.
	LogAccess(eventType, serverHost, requestID string, success bool, err error, duration time.Duration)

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
		writer = &StdoutSink{}
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
		writer = &StdoutSink{}
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

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
		l.writer.WriteEvent(event)
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

// LogManifestFetch logs a manifest download.
func (l *auditLogger) LogManifestFetch(appID, depotID uint32, manifestGID uint64, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   EventTypeManifestFetch,
		Operation:   "manifest_fetch",
		AppID:       appID,
		DepotID:     depotID,
		ManifestGID: manifestGID,
		Success:     success,
		Duration:    duration,
		Metadata:    l.redactMetadata(metadata),
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogChunkFetch logs a chunk download.
func (l *auditLogger) LogChunkFetch(depotID uint32, chunkSHA, serverHost string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeChunkFetch,
		Operation:  "chunk_fetch",
		DepotID:    depotID,
		ChunkSHA:   chunkSHA,
		ServerHost: serverHost,
		Success:    success,
		Duration:   duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogServerPenalize logs a server being penalized by the pool.
func (l *auditLogger) LogServerPenalize(serverHost string, err error) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventTypeServerPenalize,
		Operation:  "server_penalize",
		ServerHost: serverHost,
		Success:    err == nil,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogAccess logs a general control-plane access operation.
func (l *auditLogger) LogAccess(eventType, serverHost, requestID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  EventType(eventType),
		Operation:  eventType,
		ServerHost: serverHost,
		RequestID:  requestID,
		Success:    success,
		Duration:   duration,
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

