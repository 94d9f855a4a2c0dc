package earshot

import (
	"testing"

	"github.com/google/uuid"

	"github.com/strombecks/earshot/pkg/adapters/stt"
	"github.com/strombecks/earshot/pkg/errorsx"
)

func testCall() stt.Config {
	return stt.Config{
		MeetingID:  uuid.New(),
		StreamID:   "MZ1",
		CallSID:    "CA1",
		SampleRate: 16000,
		Language:   "en",
	}
}

func TestBuildUnknownProvider(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Build("nonexistent", nil, testCall())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonNoBackend) {
		t.Fatalf("missing no-backend reason: %v", err)
	}
}

func TestKnownIsCaseInsensitive(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"deepgram", "Deepgram", " ASSEMBLYAI ", "whisper", "mock"} {
		if !r.Known(name) {
			t.Fatalf("%q not known", name)
		}
	}
	if r.Known("elevenlabs") {
		t.Fatalf("unregistered provider reported known")
	}
}

func TestBuildDeepgramRequiresAPIKey(t *testing.T) {
	r := DefaultRegistry()
	if _, err := r.Build("deepgram", map[string]any{"model": "nova-2"}, testCall()); err == nil {
		t.Fatalf("expected missing api_key error")
	}
	sess, err := r.Build("deepgram", map[string]any{"api_key": "k"}, testCall())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sess.Name() != "deepgram_streaming" {
		t.Fatalf("backend = %q", sess.Name())
	}
}

func TestBuildAssemblyAIRejectsUnknownKeys(t *testing.T) {
	r := DefaultRegistry()
	settings := map[string]any{"api_key": "k", "bogus": true}
	if _, err := r.Build("assemblyai", settings, testCall()); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestBuildWhisper(t *testing.T) {
	r := DefaultRegistry()
	settings := map[string]any{
		"model_path": "/models/ggml-base.en.bin",
		"threads":    4,
	}
	sess, err := r.Build("whisper", settings, testCall())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sess.Name() != "whisper_local" {
		t.Fatalf("backend = %q", sess.Name())
	}
}

func TestBuildMock(t *testing.T) {
	r := DefaultRegistry()
	sess, err := r.Build("mock", nil, testCall())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sess.Name() != "mock" {
		t.Fatalf("backend = %q", sess.Name())
	}
}
