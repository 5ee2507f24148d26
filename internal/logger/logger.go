// Package logger provides leveled logging for the service.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes leveled log lines through a stdlib logger.
type Logger struct {
	level Level
	out   *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger. The "text" format adds source
// locations; any other value keeps the compact default.
func Init(level, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	defaultLogger = &Logger{
		level: parseLevel(level),
		out:   log.New(os.Stderr, "", flags),
	}
}

func emit(lvl Level, tag, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > lvl {
		return
	}
	_ = defaultLogger.out.Output(3, fmt.Sprintf(tag+format, args...))
}

func Debug(format string, args ...interface{}) { emit(DebugLevel, "[DEBUG] ", format, args...) }

func Info(format string, args ...interface{}) { emit(InfoLevel, "[INFO] ", format, args...) }

func Warn(format string, args ...interface{}) { emit(WarnLevel, "[WARN] ", format, args...) }

func Error(format string, args ...interface{}) { emit(ErrorLevel, "[ERROR] ", format, args...) }

// Fatal logs the message and exits the process.
func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		_ = defaultLogger.out.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	}
	os.Exit(1)
}
