package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Sink is an EventWriter that owns resources and must be closed.
type Sink interface {
	EventWriter
	Close() error
}

// BatchWriter is implemented by sinks that can flush many events in one
// operation; BatchSink prefers it over per-event writes when available.
type BatchWriter interface {
	WriteBatch(events []*AuditEvent) error
}

// BatchSink accumulates events and flushes them to the wrapped writer when
// the batch fills or the flush interval elapses, retrying failed flushes
// with exponential backoff. Events are accepted on a buffered channel so
// the CDN request path never blocks on a slow sink; if the channel fills,
// the incoming event is dropped and the call returns an error, and the
// first such drop is reported on stderr.
type BatchSink struct {
	wrapped   EventWriter
	incoming  chan *AuditEvent
	batchSize int
	interval  time.Duration
	retries   int
	backoff   time.Duration

	done     chan struct{}
	dropOnce sync.Once
}

// NewBatchSink wraps writer with batching. Zero or negative size/interval
// fall back to 100 events / 5 seconds.
func NewBatchSink(writer EventWriter, size int, interval time.Duration, retries int, backoff time.Duration) *BatchSink {
	if size <= 0 {
		size = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &BatchSink{
		wrapped:   writer,
		incoming:  make(chan *AuditEvent, 4*size),
		batchSize: size,
		interval:  interval,
		retries:   retries,
		backoff:   backoff,
		done:      make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// WriteEvent queues event for the next flush. It never blocks the caller.
func (s *BatchSink) WriteEvent(event *AuditEvent) error {
	select {
	case s.incoming <- event:
		return nil
	default:
		s.dropOnce.Do(func() {
			fmt.Fprintln(os.Stderr, "audit: batch sink backlog full, dropping events")
		})
		return fmt.Errorf("audit: batch sink backlog full")
	}
}

// Close flushes everything still queued and stops the flush loop.
func (s *BatchSink) Close() error {
	close(s.incoming)
	<-s.done
	return nil
}

func (s *BatchSink) flushLoop() {
	defer close(s.done)

	batch := make([]*AuditEvent, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flushWithRetry(batch)
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-s.incoming:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *BatchSink) flushWithRetry(events []*AuditEvent) {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 && s.backoff > 0 {
			time.Sleep(s.backoff * time.Duration(1<<uint(attempt-1)))
		}
		err = s.writeAll(events)
		if err == nil {
			return
		}
	}
	fmt.Fprintf(os.Stderr, "audit: dropping %d events after %d retries: %v\n", len(events), s.retries, err)
}

func (s *BatchSink) writeAll(events []*AuditEvent) error {
	if bw, ok := s.wrapped.(BatchWriter); ok {
		return bw.WriteBatch(events)
	}
	for _, ev := range events {
		if err := s.wrapped.WriteEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// HTTPSink POSTs event batches as a JSON array to a collector endpoint.
type HTTPSink struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewHTTPSink constructs an HTTPSink. headers are applied to every request
// (e.g. an authorization header for the collector).
func NewHTTPSink(endpoint string, headers map[string]string) *HTTPSink {
	return &HTTPSink{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSink) WriteEvent(event *AuditEvent) error {
	return s.WriteBatch([]*AuditEvent{event})
}

func (s *HTTPSink) WriteBatch(events []*AuditEvent) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("audit: encoding batch: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("audit: building collector request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit: posting to collector: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("audit: collector returned %s", resp.Status)
	}
	return nil
}

// FileSink appends events to a local file, one JSON object per line. The
// file is opened lazily on first write and held open until Close.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// NewFileSink constructs a FileSink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) WriteEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("audit: opening %s: %w", s.path, err)
		}
		s.f = f
		s.enc = json.NewEncoder(f)
	}
	if err := s.enc.Encode(event); err != nil {
		return fmt.Errorf("audit: appending to %s: %w", s.path, err)
	}
	return nil
}

// Close closes the underlying file, if one was ever opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.enc = nil
	return err
}

// StdoutSink writes one JSON object per line to stdout.
type StdoutSink struct{}

func (s *StdoutSink) WriteEvent(event *AuditEvent) error {
	return json.NewEncoder(os.Stdout).Encode(event)
}
