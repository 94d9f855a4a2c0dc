// Package assemblyai implements the streaming STT session against the
// AssemblyAI realtime websocket API.
package assemblyai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/transcript"
)

const defaultRealtimeURL = "wss://api.assemblyai.com/v2/realtime/ws"

type Config struct {
	APIKey      string
	URL         string
	SampleRate  int
	DialTimeout time.Duration
	MeetingID   uuid.UUID
	StreamID    string
	CallSID     string
}

// Session is the remote-duplex AssemblyAI variant: audio goes out as
// base64-wrapped JSON messages, finalized results come back as
// FinalTranscript messages with millisecond timings.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closed  bool
	err     error

	out  chan transcript.Segment
	done chan struct{}
	wg   sync.WaitGroup
}

// audioMessage is the outbound audio framing AssemblyAI expects.
type audioMessage struct {
	AudioData string `json:"audio_data"`
}

type terminateMessage struct {
	TerminateSession bool `json:"terminate_session"`
}

// realtimeMessage covers every inbound message shape we care about.
// Unknown message types are skipped.
type realtimeMessage struct {
	MessageType string  `json:"message_type"`
	SessionID   string  `json:"session_id"`
	Text        string  `json:"text"`
	AudioStart  float64 `json:"audio_start"`
	AudioEnd    float64 `json:"audio_end"`
	Confidence  float64 `json:"confidence"`
	Words       []struct {
		Speaker string `json:"speaker"`
	} `json:"words"`
}

func New(cfg Config) *Session {
	if cfg.URL == "" {
		cfg.URL = defaultRealtimeURL
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MeetingID == uuid.Nil {
		cfg.MeetingID = uuid.New()
	}
	return &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "assemblyai_stt"),
		out:    make(chan transcript.Segment, 64),
		done:   make(chan struct{}),
	}
}

func (s *Session) Name() string { return "assemblyai_realtime" }

// Start dials the realtime endpoint and waits for the SessionBegins
// acknowledgement before the session counts as Active.
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

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	headers := http.Header{}
	headers.Set("Authorization", s.cfg.APIKey)
	url := fmt.Sprintf("%s?sample_rate=%d", s.cfg.URL, s.cfg.SampleRate)

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			s.logger.Error("dial failed",
				slog.Int("status", resp.StatusCode),
				slog.String("stream_id", s.cfg.StreamID))
		}
		return errorsx.Wrap(fmt.Errorf("assemblyai dial: %w", err), errorsx.ReasonSTTConnect)
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.DialTimeout))
	var hello realtimeMessage
	if err := conn.ReadJSON(&hello); err != nil {
		_ = conn.Close()
		return errorsx.Wrap(fmt.Errorf("assemblyai handshake: %w", err), errorsx.ReasonSTTHandshake)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if hello.MessageType != "SessionBegins" {
		s.logger.Warn("unexpected handshake message",
			slog.String("message_type", hello.MessageType),
			slog.String("stream_id", s.cfg.StreamID))
	}
	s.logger.Info("session started",
		slog.String("session_id", hello.SessionID),
		slog.String("stream_id", s.cfg.StreamID),
		slog.String("call_sid", s.cfg.CallSID))

	s.conn = conn
	s.started = true
	s.wg.Add(1)
	go s.readLoop(conn)
	return nil
}

// SendAudio base64-wraps one PCM chunk and writes it as a JSON audio
// message. Fire-and-forget relative to results. Every write carries a
// deadline so a stalled peer cannot hold the lock indefinitely.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if !s.started {
		return stt.ErrNotStarted
	}
	msg := audioMessage{AudioData: base64.StdEncoding.EncodeToString(pcm)}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.DialTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return errorsx.Wrap(fmt.Errorf("assemblyai send: %w", err), errorsx.ReasonSTTSend)
	}
	return nil
}

func (s *Session) Segments() <-chan transcript.Segment { return s.out }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends the terminate message best-effort and releases the
// connection. Errors during termination are logged, not propagated.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	// Writes are serialized under mu, terminate included.
	if s.conn != nil {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.DialTimeout))
		if err := s.conn.WriteJSON(terminateMessage{TerminateSession: true}); err != nil {
			s.logger.Debug("terminate message failed",
				slog.String("error", err.Error()),
				slog.String("stream_id", s.cfg.StreamID))
		}
		_ = s.conn.Close()
	}
	s.mu.Unlock()

	close(s.done)
	if started {
		s.wg.Wait()
	} else {
		close(s.out)
	}
	s.logger.Info("session closed", slog.String("stream_id", s.cfg.StreamID))
	return nil
}

// readLoop drains backend messages until the session terminates.
// Malformed messages are skipped with a warning; only the connection
// dying mid-session is a terminal fault.
func (s *Session) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	defer close(s.out)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.err = errorsx.Wrap(fmt.Errorf("assemblyai stream: %w", err), errorsx.ReasonSTTStream)
			}
			s.mu.Unlock()
			return
		}
		var msg realtimeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("unparseable message skipped",
				slog.String("error", err.Error()),
				slog.String("stream_id", s.cfg.StreamID))
			continue
		}
		switch msg.MessageType {
		case "SessionTerminated":
			s.logger.Info("session terminated by backend",
				slog.String("stream_id", s.cfg.StreamID))
			return
		case "FinalTranscript":
			seg, ok := s.toSegment(msg)
			if !ok {
				continue
			}
			select {
			case s.out <- seg:
			case <-s.done:
				return
			}
		default:
			// Interim results and anything else.
		}
	}
}

// toSegment converts a FinalTranscript message, applying the ms -> s
// unit conversion and the minimal-duration correction.
func (s *Session) toSegment(msg realtimeMessage) (transcript.Segment, bool) {
	if msg.Text == "" {
		return transcript.Segment{}, false
	}
	speaker := ""
	if len(msg.Words) > 0 {
		speaker = msg.Words[0].Speaker
	}
	start := msg.AudioStart / 1000.0
	end := msg.AudioEnd / 1000.0
	return transcript.New(s.cfg.MeetingID, speaker, msg.Text, start, end, msg.Confidence), true
}

var _ stt.Session = (*Session)(nil)
