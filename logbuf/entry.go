package logbuf

import (
	"strings"
	"time"
)

// Level classifies a log entry for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

const (
	okPrefix    = "OK:"
	errorPrefix = "ERROR:"

	defaultAckMessage   = "Command acknowledged"
	defaultErrorMessage = "Unknown error"
	emptyResponseText   = "Empty response"
)

// Entry is one immutable, timestamped robot response line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// NewEntry builds an entry stamped with the current time.
func NewEntry(level Level, message string) Entry {
	return Entry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
	}
}

// Classify converts one raw inbound text unit into a log entry.
//
// The robot's acknowledgment convention is recognized but not required:
// "OK:<text>" becomes a success entry, "ERROR:<text>" an error entry, and
// anything else an info entry carrying the text verbatim.
func Classify(raw string) Entry {
	switch {
	case strings.HasPrefix(raw, okPrefix):
		rest := strings.TrimSpace(raw[len(okPrefix):])
		if rest == "" {
			return NewEntry(LevelSuccess, defaultAckMessage)
		}
		return NewEntry(LevelSuccess, okPrefix+" "+rest)
	case strings.HasPrefix(raw, errorPrefix):
		rest := strings.TrimSpace(raw[len(errorPrefix):])
		if rest == "" {
			return NewEntry(LevelError, defaultErrorMessage)
		}
		return NewEntry(LevelError, rest)
	case strings.TrimSpace(raw) == "":
		return NewEntry(LevelInfo, emptyResponseText)
	default:
		return NewEntry(LevelInfo, raw)
	}
}
