package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagFileName       = "diagnostics_log.txt"
	transcribeFileName = "transcribe_log.txt"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
	level          = zerolog.InfoLevel
)

// ResolveDir picks the log directory: flag, then MURMUR_LOG_PATH, then the
// OS default.
func ResolveDir(flagPath string) (string, error) {
	if flagPath != "" {
		return absolute(flagPath)
	}
	if envPath := os.Getenv("MURMUR_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
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

// SetLevel accepts debug, info, warn or error. Unknown names leave the
// level unchanged and return an error.
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("unknown log level %q", name)
	}
	logMu.Lock()
	level = lvl
	if logReady {
		diagLog = diagLog.Level(lvl)
	}
	logMu.Unlock()
	return nil
}

func Init() error {
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
	transcribeFile, err = os.OpenFile(filepath.Join(dir, transcribeFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

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
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func ready() bool {
	logMu.Lock()
	defer logMu.Unlock()
	return logReady
}

func Debugf(format string, args ...any) {
	if ready() {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if ready() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if ready() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if ready() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if ready() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if ready() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if ready() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

// Transition records a controller phase change caused by op.
func Transition(op, from, to string) {
	if !ready() {
		return
	}
	diagLog.Debug().
		Str("op", op).
		Str("from", from).
		Str("to", to).
		Msg("phase")
}

// Dictation records the metrics of one completed capture cycle.
func Dictation(rawLen, processedLen int, durationMs int64, targetApp string) {
	if !ready() {
		return
	}
	ev := diagLog.Info().
		Int("raw_chars", rawLen).
		Int("processed_chars", processedLen).
		Float64("audio_s", float64(durationMs)/1000)
	if targetApp != "" {
		ev = ev.Str("target_app", targetApp)
	}
	ev.Msg("dictation")
}

// TranscriptionText appends one line to the transcription log:
// timestamp, pid and text separated by tabs.
func TranscriptionText(text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady || transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

func SessionStart(provider, language, overlay string) {
	if !ready() {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("language", language).
		Str("overlay", overlay).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !ready() {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
