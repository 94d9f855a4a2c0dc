package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/strombecks/earshot/pkg/earshot"
	"github.com/strombecks/earshot/pkg/logging"
	"github.com/strombecks/earshot/pkg/runner"
	"github.com/strombecks/earshot/pkg/transcript"
	"github.com/strombecks/earshot/pkg/transports"
)

// logSink is the default downstream consumer: it logs every finalized
// segment. Deployments embedding the engine attach their own sink.
type logSink struct{}

func (logSink) HandleSegments(ctx context.Context, call transports.CallInfo, segments <-chan transcript.Segment) {
	logger := logging.NewComponentLogger(slog.Default(), "segment_sink")
	for seg := range segments {
		logger.Info("segment",
			slog.String("stream_id", call.StreamID),
			slog.String("meeting_id", seg.MeetingID.String()),
			slog.String("speaker", seg.Speaker),
			slog.Float64("start", seg.Start),
			slog.Float64("end", seg.End),
			slog.String("text", seg.Text))
	}
	logger.Info("segment stream ended", slog.String("stream_id", call.StreamID))
}

type engineDrainer struct {
	engine *earshot.Engine
}

func (d engineDrainer) Drain() error { return d.engine.Stop() }

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := earshot.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	engine, err := earshot.NewEngine(earshot.EngineOptions{Config: cfg, Sink: logSink{}})
	if err != nil {
		slog.Error("engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lifecycle := runner.NewLifecycleRunner(engineDrainer{engine}, runner.Hooks{
		OnStart: func() {
			if err := engine.Start(ctx); err != nil {
				slog.Error("transport start failed", slog.String("error", err.Error()))
				stop()
			}
		},
	}, 15*time.Second)

	if err := lifecycle.Run(ctx); err != nil {
		slog.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
