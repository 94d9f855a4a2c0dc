package earshot

import "testing"

func baseConfig() Config {
	return Config{
		Vendors:    VendorsConfig{STT: VendorConfig{Provider: "mock"}},
		Transports: TransportsConfig{Provider: "twilio"},
		Audio:      AudioConfig{SampleRate: 16000, Language: "en"},
	}
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(EngineOptions{Config: baseConfig()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if engine.Dialer() == nil {
		t.Fatalf("missing dialer")
	}
}

func TestNewEngineRejectsUnknownTransport(t *testing.T) {
	cfg := baseConfig()
	cfg.Transports.Provider = "grpc"
	if _, err := NewEngine(EngineOptions{Config: cfg}); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestNewEngineBuildsPipelinePerCall(t *testing.T) {
	engine, err := NewEngine(EngineOptions{Config: baseConfig()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	p, err := engine.buildPipeline("CA1", "MZ1")
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	if p == nil {
		t.Fatalf("nil pipeline")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewEngineUnknownProviderStillConstructs(t *testing.T) {
	// An unregistered provider is not a startup failure; streams get
	// refused by the transport instead.
	cfg := baseConfig()
	cfg.Vendors.STT.Provider = "nonexistent"
	if _, err := NewEngine(EngineOptions{Config: cfg}); err != nil {
		t.Fatalf("new engine: %v", err)
	}
}
