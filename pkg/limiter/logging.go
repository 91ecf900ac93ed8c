package limiter

import (
	"io"
	"log"

	json "github.com/goccy/go-json"
)

// Logger provides structured logging hooks.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}

// StdLogger writes one JSON object per line to an io.Writer.
type StdLogger struct {
	l *log.Logger
}

// NewStdLogger constructs a StdLogger.
func NewStdLogger(w io.Writer) *StdLogger {
	return &StdLogger{l: log.New(w, "", log.LstdFlags)}
}

// Info logs an info message.
func (s *StdLogger) Info(msg string, fields map[string]any) {
	s.log("info", msg, fields)
}

// Error logs an error message.
func (s *StdLogger) Error(msg string, fields map[string]any) {
	s.log("error", msg, fields)
}

func (s *StdLogger) log(level string, msg string, fields map[string]any) {
	if s == nil || s.l == nil {
		return
	}
	payload := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		payload[key] = value
	}
	payload["level"] = level
	payload["msg"] = msg

	data, err := json.Marshal(payload)
	if err != nil {
		s.l.Println(msg)
		return
	}
	s.l.Println(string(data))
}
