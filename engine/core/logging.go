package core

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
	seen sync.Map
}

var singleton *logger

// LogLevel mirrors the levels understood by the engine logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "Marionette 🎭 ",
				})
				l.SetLevel(log.DebugLevel)
				singleton = &logger{Logger: l}
			})
	}
	return singleton
}

// SetLogLevel changes the level of the engine logger. Unknown levels fall back to info.
func SetLogLevel(level LogLevel) {
	lvl, err := log.ParseLevel(strings.ToLower(string(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	getLogger().SetLevel(lvl)
}

// Logger returns a sub-logger tagged with the component name, for structured key/value logging.
func Logger(component string) *log.Logger {
	return getLogger().With("component", component)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Helper()
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Helper()
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Helper()
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Helper()
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Helper()
	getLogger().Fatalf(msg, args...)
}

// LogOnce emits a warning the first time key is seen and stays silent afterwards.
// Used for missing capabilities (absent bones, morph channels) that would
// otherwise be reported every frame.
func LogOnce(key string, msg string, args ...interface{}) bool {
	l := getLogger()
	if _, loaded := l.seen.LoadOrStore(key, struct{}{}); loaded {
		return false
	}
	l.Helper()
	l.Warnf(msg, args...)
	return true
}
