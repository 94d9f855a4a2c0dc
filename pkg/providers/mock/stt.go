// Package mock provides a deterministic in-memory STT session for
// tests: it echoes one finalized segment per audio chunk, in send
// order.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/transcript"
)

type Config struct {
	MeetingID uuid.UUID
	Speaker   string
	// TextFor renders the segment text for the nth chunk (0-based).
	// Defaults to "chunk-N".
	TextFor func(n int) string
}

type Session struct {
	cfg Config
	out chan transcript.Segment

	mu      sync.Mutex
	started bool
	closed  bool
	sent    int
	err     error
}

func NewSession(cfg Config) *Session {
	if cfg.MeetingID == uuid.Nil {
		cfg.MeetingID = uuid.New()
	}
	if cfg.TextFor == nil {
		cfg.TextFor = func(n int) string { return fmt.Sprintf("chunk-%d", n) }
	}
	return &Session{cfg: cfg, out: make(chan transcript.Segment, 64)}
}

func (s *Session) Name() string { return "mock" }

func (s *Session) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if s.started {
		return stt.ErrAlreadyStarted
	}
	s.started = true
	return nil
}

func (s *Session) SendAudio(pcm []byte) error {
	_ = pcm
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if !s.started {
		return stt.ErrNotStarted
	}
	start := float64(s.sent)
	seg := transcript.New(s.cfg.MeetingID, s.cfg.Speaker, s.cfg.TextFor(s.sent), start, start+1, 1.0)
	s.sent++
	s.out <- seg
	return nil
}

func (s *Session) Segments() <-chan transcript.Segment { return s.out }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetErr injects a terminal stream error for failure-path tests.
func (s *Session) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	close(s.out)
	return nil
}

// Sent reports how many chunks were forwarded.
func (s *Session) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

var _ stt.Session = (*Session)(nil)
