// Package logging configures the process-wide logrus logger and exposes the
// thin helpers the rest of the gateway logs through.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logDirName  = "logs"
	logFileName = "main.log"
)

var (
	setupOnce  sync.Once
	outputMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// LogFormatter renders entries as "[time] [level] [file:line] message key=value".
type LogFormatter struct{}

func (f *LogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	fmt.Fprintf(b, "[%s] [%s] ", timestamp, level)
	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b.WriteString(strings.TrimRight(entry.Message, "\n"))

	for key, value := range entry.Data {
		fmt.Fprintf(b, " %s=%v", key, value)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// SetupBaseLogger installs the formatter and stdout output. Safe to call repeatedly.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		logrus.SetOutput(os.Stdout)
		logrus.SetReportCaller(false)
		logrus.SetFormatter(&LogFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	})
}

// SetDebug toggles debug level logging.
func SetDebug(debug bool) {
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.InfoLevel)
}

// ConfigureLogOutput switches between stdout and a rotating file under ./logs.
func ConfigureLogOutput(loggingToFile bool) error {
	outputMu.Lock()
	defer outputMu.Unlock()

	if !loggingToFile {
		if fileWriter != nil {
			_ = fileWriter.Close()
			fileWriter = nil
		}
		logrus.SetOutput(os.Stdout)
		return nil
	}

	if fileWriter != nil {
		return nil
	}
	if err := os.MkdirAll(logDirName, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	fileWriter = &lumberjack.Logger{
		Filename:   filepath.Join(logDirName, logFileName),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   false,
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	return nil
}

func Debugf(format string, args ...any) { logrus.Debugf(format, args...) }
func Debug(args ...any)                 { logrus.Debug(args...) }
func Infof(format string, args ...any)  { logrus.Infof(format, args...) }
func Info(args ...any)                  { logrus.Info(args...) }
func Warnf(format string, args ...any)  { logrus.Warnf(format, args...) }
func Warn(args ...any)                  { logrus.Warn(args...) }
func Errorf(format string, args ...any) { logrus.Errorf(format, args...) }
func Fatalf(format string, args ...any) { logrus.Fatalf(format, args...) }

func WithError(err error) *logrus.Entry { return logrus.WithError(err) }

func WithField(key string, value any) *logrus.Entry { return logrus.WithField(key, value) }

func WithFields(fields logrus.Fields) *logrus.Entry { return logrus.WithFields(fields) }
