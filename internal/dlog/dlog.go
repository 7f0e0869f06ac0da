// Package dlog is a small leveled logger for reporting the non-fatal
// conditions spec §7 calls out (unreduced regions after refinement,
// preserved Unused filler instructions) without aborting a run.
//
// Trimmed down from the pack's VictoriaMetrics/lib/logger: no log-rate
// throttling or JSON structured fields, since those serve a
// long-running server rather than a one-shot CLI decompile.
package dlog

import (
	"flag"
	"fmt"
	"log"
	"os"
)

var level = flag.String("logLevel", "INFO", "Minimum level to log: INFO, WARN, or ERROR")

const (
	levelInfo = iota
	levelWarn
	levelError
)

func minLevel() int {
	switch *level {
	case "WARN":
		return levelWarn
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}

var std = log.New(os.Stderr, "", log.LstdFlags)

// Infof logs an informational message.
func Infof(format string, args ...interface{}) {
	logAt(levelInfo, "INFO", format, args...)
}

// Warnf logs a non-fatal warning, e.g. a synthesized goto left behind
// by structural refinement.
func Warnf(format string, args ...interface{}) {
	logAt(levelWarn, "WARN", format, args...)
}

// Errorf logs an error that does not abort the current run.
func Errorf(format string, args ...interface{}) {
	logAt(levelError, "ERROR", format, args...)
}

func logAt(lvl int, tag, format string, args ...interface{}) {
	if lvl < minLevel() {
		return
	}
	std.Print(tag + ": " + fmt.Sprintf(format, args...))
}
