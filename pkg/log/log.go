// Package log provides leveled logging for igord.
//
// Time/date are left to whatever supervises the process (systemd adds
// them); lines are instead prefixed with systemd's syslog priority codes
// so journald can filter by level without a separate parser.
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix = "<7>[DEBUG]   "
	InfoPrefix  = "<6>[INFO]    "
	WarnPrefix  = "<4>[WARNING] "
	ErrPrefix   = "<3>[ERROR]   "
)

var (
	debugLog = log.New(DebugWriter, DebugPrefix, 0)
	infoLog  = log.New(InfoWriter, InfoPrefix, 0)
	warnLog  = log.New(WarnWriter, WarnPrefix, log.Lshortfile)
	errLog   = log.New(ErrWriter, ErrPrefix, log.Llongfile)
)

// SetLevel silences everything below lvl ("debug", "info", "warn", "error").
func SetLevel(lvl string) {
	switch lvl {
	case "error", "err", "fatal", "crit":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
	}
	debugLog.SetOutput(DebugWriter)
	infoLog.SetOutput(InfoWriter)
	warnLog.SetOutput(WarnWriter)
	errLog.SetOutput(ErrWriter)
}

func Debugf(format string, args ...interface{}) { debugLog.Output(2, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { infoLog.Output(2, fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { warnLog.Output(2, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { errLog.Output(2, fmt.Sprintf(format, args...)) }

func Debug(args ...interface{}) { debugLog.Output(2, fmt.Sprint(args...)) }
func Info(args ...interface{})  { infoLog.Output(2, fmt.Sprint(args...)) }
func Warn(args ...interface{})  { warnLog.Output(2, fmt.Sprint(args...)) }
func Error(args ...interface{}) { errLog.Output(2, fmt.Sprint(args...)) }

// Abortf logs a critical error and terminates the process. Reserved for
// fatal startup errors (configuration, session root, event publisher,
// listening socket).
func Abortf(format string, args ...interface{}) {
	errLog.Output(2, fmt.Sprintf(format, args...))
	os.Exit(1)
}
