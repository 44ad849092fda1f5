package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
	sessionID string
)

const diagFileName = "diagnostics_log.txt"

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: CLACK_LOG_PATH environment variable
	if envPath := os.Getenv("CLACK_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: XDG state directory
	return defaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func defaultDir() (string, error) {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "clack"), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

// Init opens the diagnostics log. With verbose set, entries are also
// written to stderr.
func Init(verbose bool) error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	var out io.Writer = zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	level := zerolog.InfoLevel
	if verbose {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		level = zerolog.DebugLevel
	}

	sessionID = ulid.Make().String()
	diagLog = zerolog.New(out).Level(level).With().Timestamp().Int("pid", pid).Str("session", sessionID).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

// SessionID identifies the current run in the diagnostics log.
func SessionID() string {
	return sessionID
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(backend string, devices []string, voices int, volume float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("backend", backend).
		Strs("devices", devices).
		Int("voices", voices).
		Float64("volume", volume).
		Msg("session_start")
}

// Summary describes a finished session.
type Summary struct {
	Duration  time.Duration
	Events    uint64
	Plays     uint64
	Skipped   uint64
	Admitted  uint64
	Evicted   uint64
	Dropped   uint64
	Underruns uint64
}

func (s Summary) String() string {
	return fmt.Sprintf("%s key events, %s voices in %s",
		humanize.Comma(int64(s.Events)),
		humanize.Comma(int64(s.Admitted)),
		s.Duration.Round(time.Second))
}

func SessionEnd(s Summary) {
	if !logReady {
		return
	}
	diagLog.Info().
		Dur("duration", s.Duration).
		Uint64("events", s.Events).
		Uint64("plays", s.Plays).
		Uint64("skipped", s.Skipped).
		Uint64("admitted", s.Admitted).
		Uint64("evicted", s.Evicted).
		Uint64("dropped", s.Dropped).
		Uint64("underruns", s.Underruns).
		Msg("session_end")
}
