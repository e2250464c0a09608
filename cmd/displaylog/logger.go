package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// configureRuntimeLogger points the global zerolog logger at the state-dir
// log file, falling back to stderr. The returned func closes the file.
func configureRuntimeLogger(level string) func() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	useStderr := func() func() {
		setLogOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return func() {}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return useStderr()
	}

	logDir := filepath.Join(home, ".local", "state", "displaylog")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return useStderr()
	}

	logPath := filepath.Join(logDir, "displaylog.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return useStderr()
	}

	setLogOutput(f)
	return func() {
		_ = f.Close()
	}
}

func setLogOutput(w io.Writer) {
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
