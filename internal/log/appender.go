package log

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

// buildOutput assembles the output writer from appender configs.
// With no appenders configured output goes to stdout.
func buildOutput(appenders []AppenderConfig) (io.Writer, error) {
	if len(appenders) == 0 {
		return os.Stdout, nil
	}
	mw := NewMultiWriter()
	for _, a := range appenders {
		switch a.Type {
		case "console":
			mw.Add(os.Stdout)
		case "file":
			if a.File == nil || a.File.Filename == "" {
				return nil, fmt.Errorf("file appender requires a filename")
			}
			mw.Add(&lumberjack.Logger{
				Filename:   a.File.Filename,
				MaxSize:    a.File.MaxSizeMB,
				MaxAge:     a.File.MaxAgeDays,
				MaxBackups: a.File.MaxBackups,
				Compress:   a.File.Compress,
			})
		default:
			return nil, fmt.Errorf("unknown appender type: %s", a.Type)
		}
	}
	return mw, nil
}
