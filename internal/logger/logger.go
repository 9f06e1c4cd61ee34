package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"livedetect/internal/config"
)

// Log file names, one per level. The /logs handlers serve them back.
const (
	InfoFile    = "info.log"
	WarningFile = "warning.log"
	ErrorFile   = "error.log"
)

// Logger writes leveled entries (info/warning/error) to per-level files in the
// log directory and mirrors them to stdout/stderr.
type Logger struct {
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	files      []*os.File
	logDir     string
	mu         sync.Mutex
}

// NewLogger creates a Logger in cfg.LogDirectory, creating the directory if needed.
func NewLogger(cfg *config.Config) (*Logger, error) {
	return newLogger(cfg.LogDirectory, os.Stdout, os.Stderr)
}

// NewQuiet is like NewLogger but does not echo to the console. Used by tests and
// the snapshot tool.
func NewQuiet(logDir string) (*Logger, error) {
	return newLogger(logDir, io.Discard, io.Discard)
}

func newLogger(logDir string, stdout, stderr io.Writer) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{logDir: logDir}

	infoFile, err := l.openLogFile(InfoFile)
	if err != nil {
		return nil, err
	}
	warningFile, err := l.openLogFile(WarningFile)
	if err != nil {
		l.Close()
		return nil, err
	}
	errorFile, err := l.openLogFile(ErrorFile)
	if err != nil {
		l.Close()
		return nil, err
	}

	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	l.infoLog = log.New(io.MultiWriter(stdout, infoFile), "ℹ️  INFO    ", flags)
	l.warningLog = log.New(io.MultiWriter(stdout, warningFile), "⚠️  WARNING ", flags)
	l.errorLog = log.New(io.MultiWriter(stderr, errorFile), "❌ ERROR   ", flags)
	return l, nil
}

func (l *Logger) openLogFile(name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", name, err)
	}
	l.files = append(l.files, f)
	return f, nil
}

// Info writes a formatted info-level entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLog.Printf(format, v...)
}

// Warning writes a formatted warning-level entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warningLog.Printf(format, v...)
}

// Error writes a formatted error-level entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLog.Printf(format, v...)
}

// Dir returns the directory holding the log files.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates one of the level files.
func (l *Logger) CleanLogs(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Truncate(filepath.Join(l.logDir, fileName), 0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", fileName, err)
	}
	return nil
}

// Close releases the log files.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
}
