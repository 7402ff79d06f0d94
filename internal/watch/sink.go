package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RecordType tags one line of a watch log.
type RecordType string

const (
	RecordStarted         RecordType = "WATCH_STARTED"
	RecordComponentUpdate RecordType = "COMPONENT_UPDATE"
	RecordListUpdate      RecordType = "LIST_UPDATE"
	RecordError           RecordType = "WATCH_ERROR"
)

// TimestampLayout is the time format at the start of every record.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Record is one parsed log line.
type Record struct {
	Time    time.Time
	Type    RecordType
	Payload json.RawMessage
}

// Sink appends records to one watch log file. The file is created on the
// first append. Each record is a single write followed by a sync, so a
// reader never sees half a line and a crash loses at most the record being
// written.
type Sink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewSink returns a sink for path. Nothing touches the disk yet.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Path returns the log file path.
func (s *Sink) Path() string { return s.path }

// Append writes one record: "[timestamp] TYPE: json\n".
func (s *Sink) Append(typ RecordType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", typ, err)
	}
	line := FormatRecord(timeNow(), typ, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening watch log: %w", err)
		}
		s.f = f
	}

	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("writing watch log: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("syncing watch log: %w", err)
	}
	return nil
}

// Close releases the file handle. Appending after Close reopens the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// FormatRecord renders one log line, newline included.
func FormatRecord(t time.Time, typ RecordType, payload []byte) string {
	return fmt.Sprintf("[%s] %s: %s\n", t.Format(TimestampLayout), typ, payload)
}

// ParseRecord parses one log line as written by FormatRecord.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "[") {
		return Record{}, fmt.Errorf("record %q: missing timestamp", line)
	}
	end := strings.Index(line, "] ")
	if end < 0 {
		return Record{}, fmt.Errorf("record %q: unterminated timestamp", line)
	}
	ts, err := time.ParseInLocation(TimestampLayout, line[1:end], time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("record %q: %w", line, err)
	}

	rest := line[end+2:]
	sep := strings.Index(rest, ": ")
	if sep < 0 {
		return Record{}, fmt.Errorf("record %q: missing type", line)
	}
	payload := json.RawMessage(rest[sep+2:])
	if !json.Valid(payload) {
		return Record{}, fmt.Errorf("record %q: payload is not JSON", line)
	}
	return Record{Time: ts, Type: RecordType(rest[:sep]), Payload: payload}, nil
}
