package earshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/configutil"
	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/pipeline"
	"github.com/strombecks/earshot/pkg/transports"
	"github.com/strombecks/earshot/pkg/transports/twilio"
)

// EngineOptions carries everything NewEngine needs. Registry defaults
// to the built-in providers; Sink may be nil when no downstream
// consumer is attached.
type EngineOptions struct {
	Config   Config
	Registry *ProviderRegistry
	Sink     transports.SegmentSink
}

// Engine owns the transport and builds one pipeline per bridged call.
type Engine struct {
	cfg       Config
	registry  *ProviderRegistry
	transport transports.Transport
	dialer    *twilio.Dialer
	logger    *slog.Logger
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := logging.NewComponentLogger(slog.Default(), "engine")

	if !strings.EqualFold(strings.TrimSpace(cfg.Transports.Provider), "twilio") {
		return nil, fmt.Errorf("transport provider not supported: %s", cfg.Transports.Provider)
	}
	var twilioCfg twilio.Config
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &twilioCfg); err != nil {
		return nil, fmt.Errorf("transport settings: %w", err)
	}

	e := &Engine{cfg: cfg, registry: registry, logger: logger}

	// Preflight the configured backend once so connections from an
	// unconfigured deployment are refused instead of half-started.
	var factory twilio.PipelineFactory
	if registry.Known(cfg.Vendors.STT.Provider) {
		factory = e.buildPipeline
	} else {
		logger.Warn("no stt backend configured, streams will be refused",
			slog.String("provider", cfg.Vendors.STT.Provider),
			slog.String("reason_code", string(errorsx.ReasonNoBackend)))
	}

	e.transport = twilio.New(twilioCfg, factory, opts.Sink)
	e.dialer = twilio.NewDialer(twilioCfg)

	logger.Info("engine configured",
		slog.String("environment", cfg.Environment),
		slog.String("stt_provider", cfg.Vendors.STT.Provider),
		slog.String("transport", cfg.Transports.Provider))
	return e, nil
}

func (e *Engine) buildPipeline(callSID, streamID string) (*pipeline.Pipeline, error) {
	call := stt.Config{
		MeetingID:  uuid.New(),
		StreamID:   streamID,
		CallSID:    callSID,
		SampleRate: e.cfg.Audio.SampleRate,
		Language:   e.cfg.Audio.Language,
	}
	session, err := e.registry.Build(e.cfg.Vendors.STT.Provider, e.cfg.Vendors.STT.Settings, call)
	if err != nil {
		return nil, err
	}
	e.logger.Info("session built",
		slog.String("backend", session.Name()),
		slog.String("stream_id", streamID),
		slog.String("meeting_id", call.MeetingID.String()))
	return pipeline.New(session), nil
}

// Start brings the transport up. It returns once the listener is
// running; calls are served on background goroutines.
func (e *Engine) Start(ctx context.Context) error {
	return e.transport.Start(ctx)
}

func (e *Engine) Stop() error {
	return e.transport.Stop()
}

// Dialer places outbound calls that bridge back into this engine's
// media endpoint, typically to dial into a meeting.
func (e *Engine) Dialer() *twilio.Dialer {
	return e.dialer
}
