// Package whisper implements the local batch STT session: audio is
// buffered in memory and transcribed with a local whisper.cpp build on
// demand. No network credential is required.
package whisper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/audio"
	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/transcript"
)

const (
	defaultBinary     = "whisper-cli"
	defaultSampleRate = 16000

	// defaultMaxBufferBytes caps the rolling audio window at roughly
	// ten minutes of PCM16 at 16 kHz. Oldest bytes are dropped on
	// overflow; 0 disables the cap.
	defaultMaxBufferBytes = 10 * 60 * defaultSampleRate * 2
)

type Config struct {
	ModelPath      string
	Binary         string
	Language       string
	Threads        int
	SampleRate     int
	MaxBufferBytes int
	MeetingID      uuid.UUID
	StreamID       string
}

// Session is the local-batch variant. SendAudio only appends to the
// buffer; Segments materializes a snapshot of everything buffered so
// far, so callers wanting continuous transcription invoke it
// repeatedly. Every yielded segment carries an empty speaker label
// since whisper performs no diarization. Once the rolling cap trims
// the buffer, span timings in later snapshots are relative to the
// window start rather than the stream start.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	buf       []byte
	started   bool
	closed    bool
	truncated bool
	err       error
}

func New(cfg Config) *Session {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.MaxBufferBytes == 0 {
		cfg.MaxBufferBytes = defaultMaxBufferBytes
	}
	if cfg.MeetingID == uuid.Nil {
		cfg.MeetingID = uuid.New()
	}
	return &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "whisper_stt"),
	}
}

func (s *Session) Name() string { return "whisper_local" }

// Start resets the buffer and verifies the model and binary exist.
// There is no connection to open; a missing model is this variant's
// connection-establishment failure.
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
	if _, err := os.Stat(s.cfg.ModelPath); err != nil {
		return errorsx.Wrap(fmt.Errorf("whisper model %s: %w", s.cfg.ModelPath, err), errorsx.ReasonWhisperModel)
	}
	if _, err := exec.LookPath(s.cfg.Binary); err != nil {
		return errorsx.Wrap(fmt.Errorf("whisper binary: %w", err), errorsx.ReasonWhisperModel)
	}
	s.buf = nil
	s.truncated = false
	s.started = true
	s.logger.Info("session started",
		slog.String("model", s.cfg.ModelPath),
		slog.String("stream_id", s.cfg.StreamID))
	return nil
}

// SendAudio appends to the rolling buffer. No network I/O, no remote
// backpressure; overflow drops the oldest audio.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if !s.started {
		return stt.ErrNotStarted
	}
	s.buf = append(s.buf, pcm...)
	if max := s.cfg.MaxBufferBytes; max > 0 && len(s.buf) > max {
		drop := len(s.buf) - max
		s.buf = append(s.buf[:0], s.buf[drop:]...)
		if !s.truncated {
			s.truncated = true
			s.logger.Warn("audio buffer cap reached, dropping oldest audio",
				slog.Int("cap_bytes", max),
				slog.String("stream_id", s.cfg.StreamID))
		}
	}
	return nil
}

// Segments snapshots the buffer and transcribes it off the caller's
// path. Each call returns a fresh channel; an empty buffer yields an
// immediately closed one.
func (s *Session) Segments() <-chan transcript.Segment {
	out := make(chan transcript.Segment, 16)

	s.mu.Lock()
	if !s.started && !s.closed {
		s.mu.Unlock()
		close(out)
		return out
	}
	snapshot := append([]byte(nil), s.buf...)
	s.mu.Unlock()

	if len(snapshot) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		spans, err := s.transcribe(snapshot)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.logger.Error("transcription failed",
				slog.String("error", err.Error()),
				slog.String("stream_id", s.cfg.StreamID))
			return
		}
		for _, sp := range spans {
			out <- transcript.New(s.cfg.MeetingID, "", sp.Text, sp.Start, sp.End, 1.0)
		}
	}()
	return out
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close clears the buffer and stops the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	s.buf = nil
	s.logger.Info("session closed", slog.String("stream_id", s.cfg.StreamID))
	return nil
}

// transcribe frames the snapshot as a WAV file and runs whisper-cli
// against it, parsing the timestamped transcript lines it prints.
func (s *Session) transcribe(pcm []byte) ([]Span, error) {
	wav, err := audio.EncodeWAV(pcm, s.cfg.SampleRate)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonWhisperTranscribe)
	}

	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("earshot-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(tmp, wav, 0o600); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("write temp wav: %w", err), errorsx.ReasonWhisperTranscribe)
	}
	defer os.Remove(tmp)

	lang := s.cfg.Language
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", s.cfg.ModelPath,
		"-l", lang,
		"-np",
		"-f", tmp,
	}
	if s.cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", s.cfg.Threads))
	}

	cmd := exec.Command(s.cfg.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Run(); err != nil {
		s.logger.Error("whisper-cli failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.String("stderr", stderr.String()))
		return nil, errorsx.Wrap(fmt.Errorf("whisper-cli: %w", err), errorsx.ReasonWhisperTranscribe)
	}

	spans := ParseTranscript(stdout.String())
	s.logger.Info("transcribed buffer",
		slog.Int("bytes", len(pcm)),
		slog.Int("segments", len(spans)),
		slog.Duration("elapsed", time.Since(started)))
	return spans, nil
}

var _ stt.Session = (*Session)(nil)
