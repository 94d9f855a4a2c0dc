package whisper

import (
	"context"
	"errors"
	"testing"

	"github.com/strombecks/earshot/pkg/adapters/stt"
)

func TestParseTranscript(t *testing.T) {
	output := `
[00:00:00.000 --> 00:00:02.340]  and so we begin
[00:00:02.340 --> 00:01:05.120]  with the second span

whisper_print_timings: total time = 1234 ms
`
	spans := ParseTranscript(output)
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Start != 0 || spans[0].End != 2.34 {
		t.Fatalf("span 0 timing = %f..%f", spans[0].Start, spans[0].End)
	}
	if spans[0].Text != "and so we begin" {
		t.Fatalf("span 0 text = %q", spans[0].Text)
	}
	if spans[1].Start != 2.34 || spans[1].End != 65.12 {
		t.Fatalf("span 1 timing = %f..%f", spans[1].Start, spans[1].End)
	}
}

func TestParseTranscriptEmpty(t *testing.T) {
	if spans := ParseTranscript("no timestamps here\n"); len(spans) != 0 {
		t.Fatalf("got %d spans, want 0", len(spans))
	}
}

func TestStartRequiresModel(t *testing.T) {
	s := New(Config{ModelPath: "/nonexistent/ggml-base.bin"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected model error")
	}
}

func TestLifecycleWithoutModel(t *testing.T) {
	s := New(Config{ModelPath: "/nonexistent/ggml-base.bin"})
	if err := s.SendAudio([]byte{1}); !errors.Is(err, stt.ErrNotStarted) {
		t.Fatalf("send before start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("repeated close: %v", err)
	}
	if err := s.SendAudio([]byte{1}); !errors.Is(err, stt.ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, stt.ErrClosed) {
		t.Fatalf("start after close: %v", err)
	}
}

func TestSegmentsBeforeStartIsEmpty(t *testing.T) {
	s := New(Config{ModelPath: "/nonexistent/ggml-base.bin"})
	ch := s.Segments()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed empty channel")
	}
}

func TestBufferCapDropsOldest(t *testing.T) {
	s := New(Config{ModelPath: "model.bin", MaxBufferBytes: 8})
	// Bypass Start's model check; exercise the buffer directly.
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	if err := s.SendAudio([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.SendAudio([]byte{7, 8, 9, 10}); err != nil {
		t.Fatalf("send: %v", err)
	}
	s.mu.Lock()
	got := append([]byte(nil), s.buf...)
	s.mu.Unlock()
	if len(got) != 8 {
		t.Fatalf("buffer len = %d, want 8", len(got))
	}
	if got[0] != 3 || got[7] != 10 {
		t.Fatalf("unexpected window: %v", got)
	}
}
