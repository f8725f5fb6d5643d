package log

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// MultiWriter fans log output out to all configured appenders. A failed
// appender never short-circuits the others.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0, 2)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) AddConsoleAppender() *MultiWriter {
	m.writers = append(m.writers, os.Stdout)
	return m
}

// AddFileAppender attaches a size-rotated log file.
func (m *MultiWriter) AddFileAppender(cfg FileConfig) *MultiWriter {
	m.writers = append(m.writers, &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return m
}
