package configutil

import "testing"

type sampleSettings struct {
	APIKey     string `mapstructure:"api_key"`
	SampleRate int    `mapstructure:"sample_rate"`
	Language   string `mapstructure:"language"`
}

func TestDecodeSettingsKeyNormalization(t *testing.T) {
	input := map[string]any{
		"apiKey":      "secret",
		"SAMPLE-RATE": "16000",
		"language":    "en",
	}
	var out sampleSettings
	if err := DecodeSettings(input, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "secret" {
		t.Fatalf("api key = %q", out.APIKey)
	}
	if out.SampleRate != 16000 {
		t.Fatalf("sample rate = %d", out.SampleRate)
	}
	if out.Language != "en" {
		t.Fatalf("language = %q", out.Language)
	}
}

func TestDecodeSettingsEmptyInput(t *testing.T) {
	var out sampleSettings
	if err := DecodeSettings(nil, &out); err != nil {
		t.Fatalf("decode nil: %v", err)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{
		Required: []string{"api_key"},
		Optional: []string{"language", "sample_rate"},
	}

	if err := ValidateSettings(map[string]any{"api_key": "x", "language": "en"}, schema); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	if err := ValidateSettings(map[string]any{"language": "en"}, schema); err == nil {
		t.Fatalf("missing required key accepted")
	}
	if err := ValidateSettings(map[string]any{"api_key": "  "}, schema); err == nil {
		t.Fatalf("blank required key accepted")
	}
	if err := ValidateSettings(map[string]any{"api_key": "x", "bogus": 1}, schema); err == nil {
		t.Fatalf("unknown key accepted")
	}
	schema.AllowUnknown = true
	if err := ValidateSettings(map[string]any{"api_key": "x", "bogus": 1}, schema); err != nil {
		t.Fatalf("unknown key rejected with AllowUnknown: %v", err)
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("", "vendors.stt.provider"); err == nil {
		t.Fatalf("empty value accepted")
	}
	if err := RequireString("deepgram", "vendors.stt.provider"); err != nil {
		t.Fatalf("value rejected: %v", err)
	}
}
