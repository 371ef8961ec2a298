package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func collect(s *Stream) []StreamingChunk {
	var chunks []StreamingChunk
	for c := range s.Chunks() {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestStreamOrderPreserved(t *testing.T) {
	s := NewStream(context.Background(), 4)
	go func() {
		for _, word := range []string{"the ", "answer ", "is ", "4"} {
			s.Push(StreamingChunk{Type: ChunkText, Content: word, Delta: true})
		}
		s.Close()
	}()

	var b strings.Builder
	for _, c := range collect(s) {
		b.WriteString(c.Content)
	}
	if got := b.String(); got != "the answer is 4" {
		t.Fatalf("concatenated %q", got)
	}
	if s.Err() != nil {
		t.Fatalf("unexpected terminal error: %v", s.Err())
	}
}

func TestStreamFail(t *testing.T) {
	s := NewStream(context.Background(), 4)
	s.Push(StreamingChunk{Type: ChunkText, Content: "partial", Delta: true})
	cause := errors.New("connection dropped")
	s.Fail(cause)
	s.Fail(errors.New("later failure"))

	chunks := collect(s)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want partial text plus one error chunk", len(chunks))
	}
	last := chunks[len(chunks)-1]
	if last.Type != ChunkError || last.Err == "" {
		t.Fatalf("terminal chunk = %+v, want error chunk", last)
	}
	if s.Err() != cause {
		t.Fatalf("Err() = %v, want first failure", s.Err())
	}
}

func TestStreamCloseIdempotent(t *testing.T) {
	s := NewStream(context.Background(), 1)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	s.Push(StreamingChunk{Type: ChunkText, Content: "dropped"})
	if chunks := collect(s); len(chunks) != 0 {
		t.Fatalf("pushes after close were delivered: %v", chunks)
	}
}

func TestStreamCloseCancelsContext(t *testing.T) {
	s := NewStream(context.Background(), 1)
	s.Close()
	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("stream context not canceled by Close")
	}
}

// A consumer may abandon iteration with Close while the reader goroutine
// is still pushing; no interleaving may panic or deadlock.
func TestStreamConcurrentPushClose(t *testing.T) {
	for i := 0; i < 500; i++ {
		s := NewStream(context.Background(), 1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				s.Push(StreamingChunk{Type: ChunkText, Content: "x", Delta: true})
			}
			s.Close()
		}()

		<-s.Chunks()
		s.Close()
		for range s.Chunks() {
		}

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("producer did not exit after consumer Close")
		}
	}
}

func TestStreamParentCancelUnblocksPush(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, 1)
	s.Push(StreamingChunk{Type: ChunkText, Content: "fills the buffer"})

	done := make(chan struct{})
	go func() {
		s.Push(StreamingChunk{Type: ChunkText, Content: "blocked"})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push did not return after context cancellation")
	}
}
