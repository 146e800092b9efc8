// Package logging provides pre-configured logrus loggers for ccb
// components. Loggers write to a per-project file sink under .ccb/logs
// and, depending on terminal state, to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/ccbridge/ccb/pkg/paths"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific
// component. It uses a singleton pattern per component to avoid
// re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	levelStr := os.Getenv("CCB_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("CCB_LOG_CALLER") == "true" {
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(&TextFormatter{})

	var writers []io.Writer
	if file := openLogFile(component); file != nil {
		writers = append(writers, file)
	}

	// Structured logs go to stderr when debugging or when stderr is not an
	// interactive terminal (piped, CI). Interactive use stays quiet.
	isDebug := level == logrus.DebugLevel
	isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if isDebug || !isInteractive {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// openLogFile opens the date-stamped log file for a component under
// .ccb/logs in the resolved working directory (CCB_WORK_DIR wins over
// the process cwd), falling back to the home directory.
func openLogFile(component string) io.Writer {
	base, err := paths.WorkDir()
	if err != nil {
		if home, homeErr := os.UserHomeDir(); homeErr == nil {
			base = home
		} else {
			return nil
		}
	}

	dateStr := time.Now().Format("2006-01-02")
	path := filepath.Join(base, ".ccb", "logs", fmt.Sprintf("%s-%s.log", component, dateStr))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	return file
}
