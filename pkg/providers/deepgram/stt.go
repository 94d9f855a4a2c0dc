// Package deepgram implements the streaming STT session against the
// Deepgram live transcription API.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/transcript"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

type Config struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
	MeetingID  uuid.UUID
	StreamID   string
	CallSID    string
}

// Session is the remote-duplex Deepgram variant: raw PCM frames go out
// over the persistent connection, finalized results come back with
// word-level timing and diarization labels.
type Session struct {
	cfg    Config
	logger *slog.Logger

	dgClient   *client.WSCallback
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	ctx        context.Context
	cancel     context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
	err     error

	out       chan transcript.Segment
	done      chan struct{}
	outMu     sync.Mutex
	outClosed bool
}

func New(cfg Config) *Session {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.MeetingID == uuid.Nil {
		cfg.MeetingID = uuid.New()
	}
	return &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
		out:    make(chan transcript.Segment, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) Name() string { return "deepgram_streaming" }

// Start opens the persistent connection with linear16 encoding,
// punctuation and diarization enabled, and begins the read loop that
// streams audio from the pipe.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if s.started {
		return stt.ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.pipeReader, s.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:      s.cfg.Model,
		Language:   s.cfg.Language,
		Encoding:   "linear16",
		SampleRate: s.cfg.SampleRate,
		Channels:   1,
		Punctuate:  true,
		Diarize:    true,
	}

	s.logger.Info("initializing deepgram connection",
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("call_sid", s.cfg.CallSID),
		slog.String("model", s.cfg.Model),
		slog.Int("sample_rate", s.cfg.SampleRate))

	cb := &callback{parent: s}
	dgClient, err := client.NewWSUsingCallback(s.ctx, s.cfg.APIKey, clientOptions, transcriptOptions, cb)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram client: %w", err), errorsx.ReasonSTTConnect)
	}
	s.dgClient = dgClient

	if connected := s.dgClient.Connect(); !connected {
		return errorsx.New(errorsx.ReasonSTTConnect, "deepgram connection failed")
	}
	s.started = true

	go func() {
		if err := s.dgClient.Stream(s.pipeReader); err != nil && s.ctx.Err() == nil {
			s.logger.Error("deepgram stream error",
				slog.String("error", err.Error()),
				slog.String("stream_id", s.cfg.StreamID))
		}
	}()
	return nil
}

// SendAudio writes one raw PCM chunk onto the pipe feeding the
// connection. Deepgram accepts binary frames directly, no wrapping.
// The write happens outside the lock; when the SDK stops draining the
// pipe, Close unblocks the in-flight write by closing the writer.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stt.ErrClosed
	}
	if !s.started {
		s.mu.Unlock()
		return stt.ErrNotStarted
	}
	w := s.pipeWriter
	s.mu.Unlock()

	if _, err := w.Write(pcm); err != nil {
		return errorsx.Wrap(fmt.Errorf("deepgram send: %w", err), errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *Session) Segments() <-chan transcript.Segment { return s.out }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the connection; the SDK sends the CloseStream
// message on Stop, best-effort.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	pw := s.pipeWriter
	s.mu.Unlock()

	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
	if pw != nil {
		_ = pw.Close()
	}
	if started && s.dgClient != nil {
		s.dgClient.Stop()
	}
	s.closeOut()
	s.logger.Info("session closed", slog.String("stream_id", s.cfg.StreamID))
	return nil
}

func (s *Session) closeOut() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if !s.outClosed {
		s.outClosed = true
		close(s.out)
	}
}

// emit delivers one finalized segment, blocking a slow consumer rather
// than dropping results. Close releases any blocked emit via done; the
// shared outMu keeps the send and the channel close ordered.
func (s *Session) emit(seg transcript.Segment) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.outClosed {
		return
	}
	select {
	case s.out <- seg:
	case <-s.done:
	}
}

// --- Callback implementation ---

type callback struct {
	parent *Session
	meta   bool
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram connection opened",
		slog.String("stream_id", c.parent.cfg.StreamID))
	return nil
}

// Message handles one transcription result. Interim results are
// discarded; finalized results become segments with word-level timing
// and speaker labels when diarization reports them.
func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if !mr.IsFinal {
		return nil
	}
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}

	start := mr.Start
	end := mr.Start + mr.Duration
	speaker := ""
	if len(alt.Words) > 0 {
		first := alt.Words[0]
		last := alt.Words[len(alt.Words)-1]
		start = first.Start
		end = last.End
		if first.Speaker != nil {
			speaker = fmt.Sprintf("speaker_%d", *first.Speaker)
		}
	}

	seg := transcript.New(c.parent.cfg.MeetingID, speaker, alt.Transcript, start, end, alt.Confidence)
	c.parent.emit(seg)
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if !c.meta {
		c.meta = true
		c.parent.logger.Info("deepgram metadata received",
			slog.String("stream_id", c.parent.cfg.StreamID),
			slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram connection closed",
		slog.String("stream_id", c.parent.cfg.StreamID))
	c.parent.closeOut()
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram error",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	c.parent.mu.Lock()
	if c.parent.err == nil {
		c.parent.err = errorsx.New(errorsx.ReasonSTTStream, er.ErrMsg)
	}
	c.parent.mu.Unlock()
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram unhandled event",
		slog.String("stream_id", c.parent.cfg.StreamID),
		slog.String("data", string(byData)))
	return nil
}

var _ stt.Session = (*Session)(nil)
