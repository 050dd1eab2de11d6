package types

import (
	"time"

	"github.com/google/uuid"
)

// Severity tags a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityAction  Severity = "action"
)

// LogEntry is one line of the autopilot activity stream.
type LogEntry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
}

// NewLogEntry creates an entry stamped with a fresh id.
func NewLogEntry(at time.Time, severity Severity, msg string) LogEntry {
	return LogEntry{
		ID:       uuid.NewString(),
		Time:     at,
		Message:  msg,
		Severity: severity,
	}
}
