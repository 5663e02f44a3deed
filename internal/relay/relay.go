// Package relay turns a worker's diagnostic byte stream into line events.
//
// A Relay runs two goroutines: a reader that drains the stream and splits it
// into lines, and a dispatcher that hands lines to the emit callback. They are
// joined by a bounded queue that drops the oldest undelivered line when the
// callback falls behind, so a slow consumer never stalls the reader and memory
// stays bounded regardless of how much the worker writes. The number of
// dropped lines is reported on the next delivered Line.
package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
)

// Default options.
const (
	DefaultQueueSize      = 256
	DefaultMaxLineBytes   = 64 * 1024
	DefaultReadBufferSize = 4096
)

// Line is one diagnostic line without its terminator.
type Line struct {
	Text string
	// Dropped is the number of older lines discarded since the previous delivered line.
	Dropped uint64
}

// Options configures a Relay.
type Options struct {
	// QueueSize bounds the number of undelivered lines.
	QueueSize int
	// MaxLineBytes caps a partial line; longer lines are emitted in pieces.
	MaxLineBytes int
	// ReadBufferSize is the size of each read from the stream.
	ReadBufferSize int
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	return o
}

// Relay drains one diagnostic stream.
type Relay struct {
	stream io.ReadCloser
	emit   func(Line)
	opts   Options
	queue  *lineQueue
	logger *slog.Logger

	lines atomic.Uint64
	err   error
	done  chan struct{}
}

// New creates a relay for stream. emit is called from a single goroutine, in stream order.
func New(stream io.ReadCloser, emit func(Line), opts Options, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Relay{
		stream: stream,
		emit:   emit,
		opts:   opts,
		queue:  newLineQueue(opts.QueueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Run starts the reader and dispatcher goroutines.
func (r *Relay) Run() {
	go r.read()
	go r.dispatch()
}

// Done is closed once the stream has ended and every queued line was delivered.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Err returns the read error that ended the stream, nil on a clean end of stream.
// Only valid after Done is closed.
func (r *Relay) Err() error {
	return r.err
}

// Delivered returns the number of lines handed to emit.
func (r *Relay) Delivered() uint64 {
	return r.lines.Load()
}

// Dropped returns the total number of lines discarded by the queue.
func (r *Relay) Dropped() uint64 {
	return r.queue.droppedTotal()
}

func (r *Relay) read() {
	defer r.queue.close()
	defer r.stream.Close()

	buf := make([]byte, r.opts.ReadBufferSize)
	split := lineSplitter{max: r.opts.MaxLineBytes}

	for {
		n, err := r.stream.Read(buf)
		if n > 0 {
			split.feed(buf[:n], r.queue.push)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
				r.logger.Debug("Diagnostic stream read failed", "error", err)
			}
			if split.partial() > 0 {
				r.logger.Debug("Discarding unterminated line at end of stream", "bytes", split.partial())
			}
			return
		}
	}
}

func (r *Relay) dispatch() {
	defer close(r.done)

	for {
		line, ok, closed := r.queue.pop()
		if ok {
			r.emit(line)
			r.lines.Add(1)
			continue
		}
		if closed {
			return
		}
		<-r.queue.notify
	}
}

// lineSplitter reassembles lines from arbitrary chunks.
// "\n", "\r" and "\r\n" each end a line.
type lineSplitter struct {
	buf    []byte
	max    int
	lastCR bool
}

func (s *lineSplitter) feed(chunk []byte, emit func(string)) {
	for len(chunk) > 0 {
		if s.lastCR {
			s.lastCR = false
			if chunk[0] == '\n' {
				chunk = chunk[1:]
				continue
			}
		}

		i := bytes.IndexAny(chunk, "\r\n")
		if i < 0 {
			s.appendPartial(chunk, emit)
			return
		}

		s.appendPartial(chunk[:i], emit)
		emit(string(s.buf))
		s.buf = s.buf[:0]
		s.lastCR = chunk[i] == '\r'
		chunk = chunk[i+1:]
	}
}

// appendPartial adds b to the current line, flushing whenever it reaches max.
func (s *lineSplitter) appendPartial(b []byte, emit func(string)) {
	for len(s.buf)+len(b) > s.max {
		n := s.max - len(s.buf)
		s.buf = append(s.buf, b[:n]...)
		emit(string(s.buf))
		s.buf = s.buf[:0]
		b = b[n:]
	}
	s.buf = append(s.buf, b...)
}

func (s *lineSplitter) partial() int {
	return len(s.buf)
}
