package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const writerQueueSize = 256

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter fans log lines out to one or more buffered sinks from a single
// goroutine. Lines are flushed to every sink as they are written so a crash
// loses at most what is still queued.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	// mu guards closed against concurrent Write/Flush; the queue is only
	// closed while it is held exclusively.
	mu     sync.RWMutex
	closed bool

	sinkMu   sync.Mutex
	sinks    []*bufio.Writer
	writeErr error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, writerQueueSize),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.writeAll(line))
		case ack := <-w.flushReq:
			w.drain()
			ack <- w.flushAll()
		}
	}
}

// drain writes lines already queued. Flush holds mu shared, so the queue
// cannot be closed while a flush is pending.
func (w *asyncWriter) drain() {
	for {
		select {
		case line := <-w.queue:
			w.setErr(w.writeAll(line))
		default:
			return
		}
	}
}

// Write copies p and enqueues it. A full queue blocks the caller rather than
// dropping log lines.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return w.getErr()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	if err := w.getErr(); err != nil {
		return err
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	if err := <-ack; err != nil {
		return err
	}
	return w.getErr()
}

// Close drains the queue and reports the first write error. It is safe to
// call more than once.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.getErr()
}

func (w *asyncWriter) writeAll(p []byte) error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushAll() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) getErr() error {
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	return w.writeErr
}

// setErr keeps the first error only.
func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.sinkMu.Lock()
	defer w.sinkMu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
