// Package twilio terminates Twilio Media Streams connections and
// drives one audio pipeline per bridged call.
package twilio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/pipeline"
	"github.com/strombecks/earshot/pkg/transports"
)

type Config struct {
	ServerAddr     string   `mapstructure:"server_addr"`
	PublicURL      string   `mapstructure:"public_url"`
	AccountSID     string   `mapstructure:"account_sid"`
	AuthToken      string   `mapstructure:"auth_token"`
	VoicePath      string   `mapstructure:"voice_path"`
	WebsocketPath  string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (c Config) withDefaults() Config {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.VoicePath == "" {
		c.VoicePath = "/voice"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/media"
	}
	if !c.AllowAnyOrigin && len(c.AllowedOrigins) == 0 {
		c.AllowAnyOrigin = true
	}
	return c
}

// PipelineFactory builds the per-call audio pipeline. A nil factory
// means no STT backend is configured; connections are then refused
// with a policy-violation close before any audio is accepted.
type PipelineFactory func(callSID, streamID string) (*pipeline.Pipeline, error)

// Transport serves the voice webhook and the media-stream websocket.
// One handler goroutine, one pipeline and one STT session exist per
// concurrent call; calls share no mutable state.
type Transport struct {
	cfg      Config
	factory  PipelineFactory
	sink     transports.SegmentSink
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	draining atomic.Bool
}

func New(cfg Config, factory PipelineFactory, sink transports.SegmentSink) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		cfg:     cfg,
		factory: factory,
		sink:    sink,
		logger:  logging.NewComponentLogger(slog.Default(), "twilio_transport"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	t.upgrader.CheckOrigin = t.checkOrigin
	return t
}

func (t *Transport) Name() string { return "twilio" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc(t.cfg.VoicePath, t.handleVoice)
	mux.Handle(t.cfg.WebsocketPath, t)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	t.server = &http.Server{
		Addr:              t.cfg.ServerAddr,
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()
	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.draining.Store(true)
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

// handleVoice answers Twilio's voice webhook with TwiML that bridges
// the call into the media-stream endpoint.
func (t *Transport) handleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if t.cfg.AuthToken != "" && !t.validateTwilioRequest(r) {
		t.logger.Warn("invalid webhook signature",
			slog.String("reason_code", string(errorsx.ReasonTransportInvalidSignature)))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	twiml := `<Response><Connect><Stream url="` + t.websocketURL(r) + `"/></Connect></Response>`
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(twiml))
}

// ServeHTTP terminates one media-stream connection. Whatever path the
// loop exits through, the pipeline is closed exactly once.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if t.factory == nil {
		t.logger.Warn("refusing stream",
			slog.String("reason_code", string(errorsx.ReasonNoBackend)))
		t.closeWith(conn, websocket.ClosePolicyViolation, "no stt backend configured")
		return
	}
	t.handleStream(r.Context(), conn)
}

// streamEvent is one framed Media Streams message. A single event
// field discriminates the shapes.
type streamEvent struct {
	Event string `json:"event"`
	Start *struct {
		CallSID  string `json:"callSid"`
		StreamID string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop *struct {
		Reason string `json:"reason"`
	} `json:"stop,omitempty"`
}

func (t *Transport) handleStream(ctx context.Context, conn *websocket.Conn) {
	var (
		p        *pipeline.Pipeline
		streamID string
		callSID  string
		traceID  string
	)
	defer func() {
		if p != nil {
			_ = p.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Abrupt disconnect without a stop event; the deferred
			// close still runs.
			t.logger.Info("peer disconnected",
				slog.String("stream_id", streamID),
				slog.String("trace_id", traceID))
			return
		}
		var evt streamEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.logger.Warn("malformed frame skipped",
				slog.String("error", err.Error()),
				slog.String("stream_id", streamID))
			continue
		}

		switch evt.Event {
		case "connected":
			t.logger.Info("media stream connected")

		case "start":
			if evt.Start == nil {
				continue
			}
			callSID = evt.Start.CallSID
			streamID = evt.Start.StreamID
			traceID = uuid.NewString()
			t.logger.Info("media stream started",
				slog.String("stream_id", streamID),
				slog.String("call_sid", callSID),
				slog.String("trace_id", traceID))
			built, err := t.factory(callSID, streamID)
			if err != nil {
				t.logger.Error("pipeline construction failed",
					slog.String("error", err.Error()),
					slog.String("stream_id", streamID))
				t.closeWith(conn, websocket.CloseInternalServerErr, "stt backend unavailable")
				return
			}
			p = built
			if t.sink != nil {
				call := transports.CallInfo{StreamID: streamID, CallSID: callSID, TraceID: traceID}
				go t.sink.HandleSegments(ctx, call, p.Segments())
			}

		case "media":
			if evt.Media == nil || p == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(evt.Media.Payload)
			if err != nil {
				t.logger.Warn("undecodable media payload skipped",
					slog.String("stream_id", streamID))
				continue
			}
			if err := p.ProcessAudio(ctx, payload); err != nil {
				// A backend fault mid-call tears the inbound
				// connection down promptly rather than hanging.
				t.logger.Error("audio forwarding failed",
					slog.String("error", err.Error()),
					slog.String("reason_code", string(errorsx.Reason(err))),
					slog.String("stream_id", streamID))
				t.closeWith(conn, websocket.CloseInternalServerErr, "stt backend failure")
				return
			}

		case "stop":
			t.logger.Info("media stream stopped",
				slog.String("stream_id", streamID),
				slog.String("trace_id", traceID))
			return

		default:
			t.logger.Debug("unknown event ignored",
				slog.String("event", evt.Event),
				slog.String("stream_id", streamID))
		}
	}
}

func (t *Transport) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (t *Transport) websocketURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return "wss://" + normalizePublicURL(t.cfg.PublicURL) + t.cfg.WebsocketPath
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return "wss://" + host + t.cfg.WebsocketPath
}

func (t *Transport) validateTwilioRequest(r *http.Request) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" || t.cfg.AuthToken == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	validator := twilioclient.NewRequestValidator(t.cfg.AuthToken)
	return validator.ValidateBody(t.requestURL(r), body, signature)
}

func (t *Transport) requestURL(r *http.Request) string {
	if t.cfg.PublicURL != "" {
		return strings.TrimRight(t.cfg.PublicURL, "/") + r.URL.RequestURI()
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = strings.TrimPrefix(t.cfg.ServerAddr, ":")
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func (t *Transport) checkOrigin(r *http.Request) bool {
	if t.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	for _, allowed := range t.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

func normalizePublicURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(v, "/")
}

var _ transports.Transport = (*Transport)(nil)
