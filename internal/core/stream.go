package core

import (
	"context"
	"sync"
)

// Stream is a finite, forward-only, pull-driven sequence of chunks fed by
// a background reader goroutine. It is not restartable.
//
// Chunk order within one stream is exactly the backend's emission order.
// Closing the stream before exhaustion cancels the associated context,
// which aborts the underlying HTTP response body read and releases the
// transport promptly. A transport fault surfaces twice: as exactly one
// terminal error chunk and through Err once the channel is drained.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	chunks chan StreamingChunk
	err    error
	closed bool
}

// NewStream builds a stream whose lifetime is scoped to ctx.
func NewStream(ctx context.Context, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	c, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:    c,
		cancel: cancel,
		chunks: make(chan StreamingChunk, buffer),
	}
}

// Context returns the stream-scoped context. Adapters build the HTTP
// request with it so that Close aborts the in-flight read.
func (s *Stream) Context() context.Context { return s.ctx }

// Chunks returns the receive channel. It is closed when the stream ends,
// after which Err reports any terminal failure.
func (s *Stream) Chunks() <-chan StreamingChunk { return s.chunks }

// Push appends a chunk. Pushes after Close are dropped.
//
// The mutex is held across the send so the channel can never be closed
// between the closed check and the send. A Push blocked on a full buffer
// cannot deadlock Close: Close cancels the context before taking the
// lock, which wakes the select.
func (s *Stream) Push(chunk StreamingChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.chunks <- chunk:
	case <-s.ctx.Done():
	}
}

// Close ends the stream and cancels its context. Safe to call repeatedly,
// from the producing side and from the consuming side to abandon
// iteration early, including concurrently with Push.
func (s *Stream) Close() error {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.chunks)
	return nil
}

// Fail records err, emits the single terminal error chunk, and closes the
// stream. Only the first failure is retained.
func (s *Stream) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.Push(StreamingChunk{Type: ChunkError, Err: err.Error()})
	_ = s.Close()
}

// Err returns the terminal error, if any. Meaningful once Chunks is
// closed; partial output already received stays valid regardless.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
