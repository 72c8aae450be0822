// Package auditlog writes JSON Lines records of scan decisions to a local
// event log, so "why did sapo block this yesterday" has an answer.
package auditlog

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Salta1414/sapo-cli/internal/risk"
)

// Level represents log level
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Logger appends JSON Lines events to a writer. Writes are serialized; the
// log is shared between the wrap and scan paths of one process.
type Logger struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
}

// New creates a Logger over an arbitrary writer
func New(writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stderr
	}
	return &Logger{writer: writer}
}

// Open appends to the event log file at path, creating parent directories
// as needed.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &Logger{writer: f, closer: f}, nil
}

// Close releases the underlying file, if any
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// SignalRecord is the logged form of one detector signal
type SignalRecord struct {
	Detector string `json:"detector"`
	Severity int    `json:"severity"`
	Category string `json:"category"`
	Evidence string `json:"evidence,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// DecisionEvent records one per-package verdict
type DecisionEvent struct {
	Timestamp string         `json:"ts"`
	Level     string         `json:"level"`
	Event     string         `json:"event"`
	Registry  string         `json:"registry"`
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Score     int            `json:"score"`
	Decision  string         `json:"decision"`
	Trusted   bool           `json:"trusted,omitempty"`
	Cached    bool           `json:"cached,omitempty"`
	Signals   []SignalRecord `json:"signals"`
}

// OperationEvent records the final outcome of one wrapped invocation
type OperationEvent struct {
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Event     string `json:"event"`
	Manager   string `json:"manager"`
	Decision  string `json:"decision"`
	Outcome   string `json:"outcome"` // forwarded | aborted
	Packages  int    `json:"packages"`
	ExitCode  int    `json:"exit_code"`
}

// GenericEvent carries everything else worth a line
type GenericEvent struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// LogVerdict records a per-package verdict. cached marks verdicts served
// from the local cache rather than a fresh detector run.
func (l *Logger) LogVerdict(v risk.PackageVerdict, cached bool) {
	signals := make([]SignalRecord, len(v.Signals))
	for i, s := range v.Signals {
		signals[i] = SignalRecord{
			Detector: string(s.Detector),
			Severity: s.Severity,
			Category: string(s.Category),
			Evidence: s.Evidence,
			Degraded: s.Degraded,
		}
	}

	level := LevelInfo
	if v.Decision != risk.DecisionAllow {
		level = LevelWarn
	}

	l.writeJSON(DecisionEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     "package_verdict",
		Registry:  v.Package.Registry,
		Name:      v.Package.Name,
		Version:   v.Package.Version,
		Score:     v.Score,
		Decision:  string(v.Decision),
		Trusted:   v.Trusted,
		Cached:    cached,
		Signals:   signals,
	})
}

// LogOperation records the terminal outcome of one wrapped invocation
func (l *Logger) LogOperation(manager string, decision risk.Decision, forwarded bool, packages, exitCode int) {
	outcome := "aborted"
	if forwarded {
		outcome = "forwarded"
	}

	level := LevelInfo
	if decision == risk.DecisionBlock {
		level = LevelWarn
	}

	l.writeJSON(OperationEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     "operation",
		Manager:   manager,
		Decision:  string(decision),
		Outcome:   outcome,
		Packages:  packages,
		ExitCode:  exitCode,
	})
}

// Info logs a generic informational event
func (l *Logger) Info(event, message string, data map[string]interface{}) {
	l.log(LevelInfo, event, message, data)
}

// Warn logs a warning event
func (l *Logger) Warn(event, message string, data map[string]interface{}) {
	l.log(LevelWarn, event, message, data)
}

// Error logs an error event
func (l *Logger) Error(event, message string, data map[string]interface{}) {
	l.log(LevelError, event, message, data)
}

func (l *Logger) log(level Level, event, message string, data map[string]interface{}) {
	l.writeJSON(GenericEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     event,
		Message:   message,
		Data:      data,
	})
}

// writeJSON writes a single JSON line
func (l *Logger) writeJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		// Fallback to stderr if marshal fails
		os.Stderr.WriteString("failed to marshal audit event: " + err.Error() + "\n")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}
