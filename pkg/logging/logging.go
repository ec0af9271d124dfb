package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the structured log entry forwarded to an embedding host.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	defaultLogger  *slog.Logger
	hostLogChannel chan LogEntry
	isEmbedded     bool
)

const hostChannelBufferSize = 2048

// InitForCLI initializes the logging system for CLI mode. Entries are
// written to the provided output through a slog text handler.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	isEmbedded = false
	defaultLogger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: filterLevel.SlogLevel(),
	}))
	slog.SetDefault(defaultLogger)
}

// InitForHost initializes the logging system for embedded mode. Entries are
// forwarded over the returned channel so the embedding host UI can render
// them; nothing is written to stdio. The host is expected to drain the
// channel for the lifetime of the widget.
func InitForHost(bufferSize int) <-chan LogEntry {
	isEmbedded = true
	if bufferSize <= 0 {
		bufferSize = hostChannelBufferSize
	}
	hostLogChannel = make(chan LogEntry, bufferSize)
	defaultLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	slog.SetDefault(defaultLogger)
	return hostLogChannel
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if !isEmbedded {
		if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
			return
		}
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}
	now := time.Now()

	if isEmbedded {
		if hostLogChannel == nil {
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] embedded mode active but host channel is nil. Log: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
			return
		}
		entry := LogEntry{
			Timestamp: now,
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		select {
		case hostLogChannel <- entry:
		default:
			// Host is not draining; drop rather than block the widget.
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] host log channel full. Dropping: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		}
		return
	}

	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[LOGGING_ERROR] Logger not initialized. Log: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// CloseHostChannel closes the host log channel. Should be called when the
// embedding host shuts the widget down.
func CloseHostChannel() {
	if hostLogChannel != nil {
		close(hostLogChannel)
		hostLogChannel = nil
	}
}
