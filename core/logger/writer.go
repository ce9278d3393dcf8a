package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

const (
	sinkBufferSize = 64 * 1024
	lineQueueSize  = 256
)

// sink is one output stream; lines below min are not written to it.
type sink struct {
	w   *bufio.Writer
	min slog.Level
}

type line struct {
	level slog.Level
	data  []byte
}

// lineWriter serialises formatted lines onto its sinks from a single goroutine,
// so handlers never contend on file descriptors.
type lineWriter struct {
	lines   chan line
	flushes chan chan error
	done    chan struct{}
	once    sync.Once

	sinks []sink

	mu       sync.Mutex
	firstErr error
}

// newLineWriter starts the writer loop. The stream sink receives every line;
// the errors sink, when set, only lines at slog.LevelWarn or above.
func newLineWriter(stream, errorsOnly []io.Writer) *lineWriter {
	var sinks []sink
	for _, w := range stream {
		if w != nil {
			sinks = append(sinks, sink{w: bufio.NewWriterSize(w, sinkBufferSize), min: slog.LevelDebug - 4})
		}
	}
	for _, w := range errorsOnly {
		if w != nil {
			sinks = append(sinks, sink{w: bufio.NewWriterSize(w, sinkBufferSize), min: slog.LevelWarn})
		}
	}
	lw := &lineWriter{
		lines:   make(chan line, lineQueueSize),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		sinks:   sinks,
	}
	go lw.run()
	return lw
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.lines:
			if !ok {
				w.recordErr(w.flush())
				return
			}
			w.recordErr(w.write(l))
		case ack := <-w.flushes:
			ack <- w.flush()
		}
	}
}

// WriteLevel queues a copy of p. It blocks when the queue is full rather than
// dropping output.
func (w *lineWriter) WriteLevel(level slog.Level, p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- line{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush waits until everything queued so far reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and returns the first write error seen.
func (w *lineWriter) Close() error {
	w.once.Do(func() { close(w.lines) })
	<-w.done
	return w.err()
}

func (w *lineWriter) write(l line) error {
	for _, s := range w.sinks {
		if l.level < s.min {
			continue
		}
		if _, err := s.w.Write(l.data); err != nil {
			return err
		}
		if err := s.w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

func (w *lineWriter) recordErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.firstErr == nil {
		w.firstErr = err
	}
	w.mu.Unlock()
}
