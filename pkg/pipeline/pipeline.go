// Package pipeline binds one codec and one STT session together for
// the lifetime of a single call.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/codec"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/transcript"
)

// Pipeline pushes mu-law call audio into an STT session and exposes
// the session's finalized segments. It holds no audio state of its own
// beyond the started flag; all buffering belongs to the session, which
// keeps the pipeline identical across backend variants.
type Pipeline struct {
	session stt.Session
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
}

// New wraps an STT session. The session must be Unstarted; the
// pipeline starts it lazily on the first audio frame.
func New(session stt.Session) *Pipeline {
	return &Pipeline{
		session: session,
		logger:  logging.NewComponentLogger(slog.Default(), "pipeline"),
	}
}

// ProcessAudio transcodes one mu-law 8 kHz chunk to PCM16 16 kHz and
// forwards it to the session, starting the session on first use. Frames
// are forwarded in the exact order received.
func (p *Pipeline) ProcessAudio(ctx context.Context, chunk []byte) error {
	if err := p.ensureStarted(ctx); err != nil {
		return err
	}
	return p.session.SendAudio(codec.Transcode(chunk))
}

// Segments delegates to the session's finalized-segment stream,
// unmodified; the pipeline adds no buffering or reordering.
func (p *Pipeline) Segments() <-chan transcript.Segment {
	return p.session.Segments()
}

// Err reports the session's terminal stream error, if any.
func (p *Pipeline) Err() error {
	return p.session.Err()
}

// Close shuts down the session. Idempotent, and safe to call before
// any audio was processed; closing an unstarted session still closes
// its segment stream so downstream consumers unblock.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.session.Close(); err != nil {
		p.logger.Warn("session close failed",
			slog.String("session", p.session.Name()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (p *Pipeline) ensureStarted(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return stt.ErrClosed
	}
	if p.started {
		return nil
	}
	if err := p.session.Start(ctx); err != nil {
		return err
	}
	p.started = true
	p.logger.Info("session started", slog.String("session", p.session.Name()))
	return nil
}
