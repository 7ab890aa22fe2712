package engine

import (
	"io"
	"sync"
)

type streamState int

const (
	streamIdle streamState = iota
	streamOpen
	streamClosed
)

// ResponseStreamer writes the response: one-shot reply or streamed reply
// with backpressure, plus io.Reader-producer piping (spec §4.3). A
// streamer is owned by exactly one HttpContext at a time.
type ResponseStreamer struct {
	ctx   *HttpContext
	w     ResponseWriter
	state streamState

	started       bool
	hookInstalled bool

	mu         sync.Mutex
	writableCB func(offset int)

	// pipe state
	paused   bool
	producer io.Reader
}

func (s *ResponseStreamer) reset(ctx *HttpContext, w ResponseWriter) {
	s.ctx = ctx
	s.w = w
	s.state = streamIdle
	s.started = false
	s.hookInstalled = false
	s.writableCB = nil
	s.paused = false
	s.producer = nil
}

func (s *ResponseStreamer) clear() {
	s.ctx = nil
	s.w = nil
	s.producer = nil
	s.writableCB = nil
}

// begin emits the status line and headers inside the transport's cork
// section and arms the writable hook exactly once.
func (s *ResponseStreamer) begin(status int, preset HeaderPreset, headers map[string]string) {
	if s.w == nil {
		return
	}
	s.w.Cork(func() {
		s.w.WriteStatus(StatusLine(status))
		if ct := preset.ContentType(); ct != "" {
			s.w.WriteHeader("Content-Type", ct)
		}
		for k, v := range headers {
			s.w.WriteHeader(k, v)
		}
	})
	if !s.hookInstalled {
		s.w.OnWritable(s.onTransportWritable)
		s.hookInstalled = true
	}
	s.state = streamOpen
	s.started = true
}

// write emits a chunk; returns true if fully queued.
func (s *ResponseStreamer) write(chunk []byte) bool {
	if s.ctx == nil || s.ctx.aborted || s.state != streamOpen {
		return false
	}
	return s.w.Write(chunk)
}

// tryEnd emits a final chunk declaring the total response size.
func (s *ResponseStreamer) tryEnd(chunk []byte, totalSize int) (ok, done bool) {
	if s.ctx == nil || s.ctx.aborted || s.state != streamOpen {
		return false, false
	}
	ok, done = s.w.TryEnd(chunk, totalSize)
	if done {
		s.state = streamClosed
		s.ctx.finalize()
	}
	return ok, done
}

// end closes the response unconditionally, tolerating re-entry.
func (s *ResponseStreamer) end(chunk []byte) {
	if s.ctx == nil || s.ctx.aborted || s.state == streamClosed {
		return
	}
	s.w.End(chunk)
	s.state = streamClosed
	s.ctx.finalize()
}

// onWritable arms a single callback for the next writable event. Arming
// is single-shot: once fired the slot clears and the transport hook
// remains installed for future arming.
func (s *ResponseStreamer) onWritable(cb func(offset int)) {
	s.mu.Lock()
	s.writableCB = cb
	s.mu.Unlock()
}

func (s *ResponseStreamer) onTransportWritable(offset int) bool {
	s.mu.Lock()
	cb := s.writableCB
	s.writableCB = nil
	s.mu.Unlock()
	if cb != nil {
		cb(offset)
	}
	return true
}

func (s *ResponseStreamer) getWriteOffset() int {
	if s.w == nil {
		return 0
	}
	return s.w.GetWriteOffset()
}

// stream pipes producer into the response (spec §4.3 pipe algorithm).
// It blocks the calling goroutine until the producer is exhausted,
// the context aborts, or a read/write error occurs.
func (s *ResponseStreamer) stream(producer io.Reader, status int, preset HeaderPreset, headers map[string]string) error {
	s.producer = producer
	s.begin(status, preset, headers)

	buf := make([]byte, 32*1024)
	for {
		if s.ctx != nil && s.ctx.aborted {
			s.destroyProducer()
			return nil
		}

		n, readErr := producer.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !s.write(chunk) && !s.paused {
				if !s.awaitWritable() {
					s.destroyProducer()
					return nil
				}
			}
		}

		if readErr == io.EOF {
			if s.ctx == nil || !s.ctx.aborted {
				s.end(nil)
			}
			return nil
		}
		if readErr != nil {
			if s.ctx == nil || !s.ctx.aborted {
				s.end(nil) // best-effort; tolerate failure
			}
			s.state = streamClosed
			return readErr
		}
	}
}

// awaitWritable pauses the producer until the transport reports
// writable again, per the backpressure ordering guarantee. Returns
// false if the context aborted while waiting.
func (s *ResponseStreamer) awaitWritable() bool {
	s.paused = true
	resume := make(chan struct{})
	s.onWritable(func(offset int) {
		close(resume)
	})
	<-resume
	s.paused = false
	return s.ctx == nil || !s.ctx.aborted
}

func (s *ResponseStreamer) destroyProducer() {
	if closer, ok := s.producer.(io.Closer); ok {
		_ = closer.Close()
	}
	s.producer = nil
}
