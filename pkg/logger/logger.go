// Package logger provides the colored, leveled logging surface used across
// this module. It keeps the API shape of the teacher's hand-rolled logger
// (Debug/Info/Warn/Error/Success/Fatal, Section, Banner) but is backed by
// logrus so callers can attach structured per-connection fields instead of
// only formatted strings.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// SetLevel sets the minimum logrus level that is emitted.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Fields is re-exported so callers don't need to import logrus directly for
// the common case of attaching structured context (ConnID, addr, mtu, ...).
type Fields = logrus.Fields

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	base.Debugf(format, args...)
}

// Info logs an informational message.
func Info(format string, args ...interface{}) {
	base.Infof(format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	base.Warnf(format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	base.Errorf(format, args...)
}

// Success logs an informational message tagged as a success, so a
// formatter or log shipper can key on the "status" field.
func Success(format string, args ...interface{}) {
	base.WithField("status", "success").Infof(format, args...)
}

// Fatal logs a fatal error and exits, matching the teacher's behavior.
func Fatal(format string, args ...interface{}) {
	base.Fatalf(format, args...)
}

// WithFields returns a structured entry carrying the given fields, for
// per-connection logging (ConnID, addr, mtu — SPEC_FULL.md §4.8).
func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// Section prints a section header, matching the teacher's banner style.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n\033[36m╔%s╗\033[0m\n", border)
	fmt.Printf("\033[36m║\033[0m %-57s \033[36m║\033[0m\n", title)
	fmt.Printf("\033[36m╚%s╝\033[0m\n\n", border)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗  █████╗ ██╗  ██╗███╗   ██╗███████╗████████╗    ║
║   ██╔══██╗██╔══██╗██║ ██╔╝████╗  ██║██╔════╝╚══██╔══╝    ║
║   ██████╔╝███████║█████╔╝ ██╔██╗ ██║█████╗     ██║       ║
║   ██╔══██╗██╔══██║██╔═██╗ ██║╚██╗██║██╔══╝     ██║       ║
║   ██║  ██║██║  ██║██║  ██╗██║ ╚████║███████╗   ██║       ║
║   ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝╚══════╝   ╚═╝       ║
║                                                           ║
║              %s%-37s%s║
║                    %sVersion %-7s%s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, "\033[36m", title, "\033[0m", "\033[32m", version, "\033[0m")
}
