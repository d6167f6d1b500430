// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Thermoquad/adbhost/pkg/adb"
)

const envLogLevel = "ADBHOST_LOG_LEVEL"

// logger is replaced by setupLogging once flags are parsed
var logger = zerolog.Nop()

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info", "":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.NoLevel, false
	}
}

func newLogger(w io.Writer, level zerolog.Level, noColor bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func setupLogging(levelName string) error {
	level, ok := parseLevel(levelName)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelName)
	}
	logger = newLogger(os.Stderr, level, !term.IsTerminal(int(os.Stderr.Fd())))
	return nil
}

// logWarnings reports non-fatal response anomalies for command.
func logWarnings(command string, warnings []adb.Warning) {
	for _, w := range warnings {
		logger.Warn().
			Str("command", command).
			Int("declared", w.Declared).
			Int("actual", w.Actual).
			Msg(w.String())
	}
}
