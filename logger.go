package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

// Logger writes leveled diagnostics. User-facing output goes through fmt and
// the Theme instead.
type Logger struct {
	level       LogLevel
	infoLogger  *log.Logger
	errorLogger *log.Logger
	debugLogger *log.Logger
}

// NewLogger creates a logger writing to stderr so it never mixes with command output
func NewLogger(level string) *Logger {
	return newLoggerTo(os.Stderr, level)
}

func newLoggerTo(w io.Writer, level string) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	return &Logger{
		level:       parseLogLevel(level),
		infoLogger:  log.New(w, "INFO: ", flags),
		errorLogger: log.New(w, "ERROR: ", flags),
		debugLogger: log.New(w, "DEBUG: ", flags),
	}
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() *Logger {
	return &Logger{
		level:       LevelError,
		infoLogger:  log.New(io.Discard, "", 0),
		errorLogger: log.New(io.Discard, "", 0),
		debugLogger: log.New(io.Discard, "", 0),
	}
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// callerDepth makes Lshortfile report the caller of Info/Error/Debug
const callerDepth = 2

func (l *Logger) Info(format string, v ...any) {
	if l.level == LevelError {
		return
	}
	_ = l.infoLogger.Output(callerDepth, fmt.Sprintf(format, v...))
}

func (l *Logger) Error(format string, v ...any) {
	_ = l.errorLogger.Output(callerDepth, fmt.Sprintf(format, v...))
}

func (l *Logger) Debug(format string, v ...any) {
	if l.level != LevelDebug {
		return
	}
	_ = l.debugLogger.Output(callerDepth, fmt.Sprintf(format, v...))
}
