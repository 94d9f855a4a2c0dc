package earshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/configutil"
	"github.com/strombecks/earshot/pkg/errorsx"
	"github.com/strombecks/earshot/pkg/providers/assemblyai"
	"github.com/strombecks/earshot/pkg/providers/deepgram"
	"github.com/strombecks/earshot/pkg/providers/mock"
	"github.com/strombecks/earshot/pkg/providers/whisper"
)

// SessionBuilder builds one STT session from the provider's settings
// map and the per-call session config.
type SessionBuilder func(settings map[string]any, call stt.Config) (stt.Session, error)

// ProviderRegistry maps lowercase provider names to session builders.
type ProviderRegistry struct {
	builders map[string]SessionBuilder
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{builders: make(map[string]SessionBuilder)}
}

func (r *ProviderRegistry) Register(name string, builder SessionBuilder) {
	r.builders[strings.ToLower(strings.TrimSpace(name))] = builder
}

func (r *ProviderRegistry) Known(name string) bool {
	_, ok := r.builders[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (r *ProviderRegistry) Build(provider string, settings map[string]any, call stt.Config) (stt.Session, error) {
	fn := r.builders[strings.ToLower(strings.TrimSpace(provider))]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("stt provider not registered: %s", provider), errorsx.ReasonNoBackend)
	}
	return fn(settings, call)
}

// DefaultRegistry registers every built-in backend.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.Register("deepgram", buildDeepgram)
	r.Register("assemblyai", buildAssemblyAI)
	r.Register("whisper", buildWhisper)
	r.Register("mock", buildMock)
	return r
}

type deepgramSettings struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

func buildDeepgram(settings map[string]any, call stt.Config) (stt.Session, error) {
	schema := configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language"},
	}
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return nil, fmt.Errorf("deepgram settings: %w", err)
	}
	var s deepgramSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("deepgram settings: %w", err)
	}
	language := s.Language
	if language == "" {
		language = call.Language
	}
	return deepgram.New(deepgram.Config{
		APIKey:     s.APIKey,
		Model:      s.Model,
		Language:   language,
		SampleRate: call.SampleRate,
		MeetingID:  call.MeetingID,
		StreamID:   call.StreamID,
		CallSID:    call.CallSID,
	}), nil
}

type assemblyaiSettings struct {
	APIKey        string `mapstructure:"api_key"`
	URL           string `mapstructure:"url"`
	DialTimeoutMS int    `mapstructure:"dial_timeout_ms"`
}

func buildAssemblyAI(settings map[string]any, call stt.Config) (stt.Session, error) {
	schema := configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"url", "dial_timeout_ms"},
	}
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return nil, fmt.Errorf("assemblyai settings: %w", err)
	}
	var s assemblyaiSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("assemblyai settings: %w", err)
	}
	return assemblyai.New(assemblyai.Config{
		APIKey:      s.APIKey,
		URL:         s.URL,
		SampleRate:  call.SampleRate,
		DialTimeout: time.Duration(s.DialTimeoutMS) * time.Millisecond,
		MeetingID:   call.MeetingID,
		StreamID:    call.StreamID,
		CallSID:     call.CallSID,
	}), nil
}

type whisperSettings struct {
	ModelPath      string `mapstructure:"model_path"`
	Binary         string `mapstructure:"binary"`
	Language       string `mapstructure:"language"`
	Threads        int    `mapstructure:"threads"`
	MaxBufferBytes int    `mapstructure:"max_buffer_bytes"`
}

func buildWhisper(settings map[string]any, call stt.Config) (stt.Session, error) {
	schema := configutil.Schema{
		Required: []string{"model_path"},
		Optional: []string{"binary", "language", "threads", "max_buffer_bytes"},
	}
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return nil, fmt.Errorf("whisper settings: %w", err)
	}
	var s whisperSettings
	if err := configutil.DecodeSettings(settings, &s); err != nil {
		return nil, fmt.Errorf("whisper settings: %w", err)
	}
	language := s.Language
	if language == "" {
		language = call.Language
	}
	return whisper.New(whisper.Config{
		ModelPath:      s.ModelPath,
		Binary:         s.Binary,
		Language:       language,
		Threads:        s.Threads,
		SampleRate:     call.SampleRate,
		MaxBufferBytes: s.MaxBufferBytes,
		MeetingID:      call.MeetingID,
		StreamID:       call.StreamID,
	}), nil
}

func buildMock(settings map[string]any, call stt.Config) (stt.Session, error) {
	return mock.NewSession(mock.Config{MeetingID: call.MeetingID}), nil
}
