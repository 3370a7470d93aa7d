package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects how each log line is rendered.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	currentFmt   = FormatText
	logger       = stdlog.New(os.Stdout, "", 0)
	closer       io.Closer
)

func (l Level) String() string {
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

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	}
	return LevelInfo, false
}

func SetLevel(level string) {
	if l, ok := ParseLevel(level); ok {
		mu.Lock()
		currentLevel = l
		mu.Unlock()
	}
}

// SetFormat switches between "text" and "json" output. Unknown values are ignored.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(format) {
	case "text":
		currentFmt = FormatText
	case "json":
		currentFmt = FormatJSON
	}
}

// SetOutput redirects log lines to w. A previously opened log file is closed.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	logger = stdlog.New(w, "", 0)
}

// Configure applies the logging section of the configuration.
//
// Output may be "stdout", "stderr", or a file path. Files are opened in
// append mode and created with 0644 permissions.
func Configure(level, format, output string) error {
	var w io.Writer
	var c io.Closer

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", output, err)
		}
		w, c = f, f
	}

	SetOutput(w)
	mu.Lock()
	closer = c
	mu.Unlock()

	SetLevel(level)
	SetFormat(format)
	return nil
}

// Close releases the log file opened by Configure, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	logger = stdlog.New(os.Stdout, "", 0)
	return err
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func log(level Level, format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	if currentFmt == FormatJSON {
		line, err := json.Marshal(jsonLine{
			Time:    now.UTC().Format(time.RFC3339Nano),
			Level:   level.String(),
			Message: message,
		})
		if err == nil {
			logger.Println(string(line))
			return
		}
	}

	timestamp := now.Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
