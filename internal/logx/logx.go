package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LevelEnv names the environment variable that overrides the log level.
const LevelEnv = "CHESSCNN_LOG_LEVEL"

// NewLogger returns a zerolog logger configured for console output on stderr.
// Stdout is left free for command output (exported CSV, usage text).
func NewLogger() zerolog.Logger {
	return newLogger(os.Stderr, os.Getenv(LevelEnv))
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		short := file
		if i := strings.LastIndexByte(file, '/'); i >= 0 {
			short = file[i+1:]
		}
		// Pad to 24 characters for alignment
		return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Caller().Logger()
}
