package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect    ReasonCode = "stt_connect"
	ReasonSTTHandshake  ReasonCode = "stt_handshake"
	ReasonSTTSend       ReasonCode = "stt_send"
	ReasonSTTStream     ReasonCode = "stt_stream"
	ReasonSTTNotStarted ReasonCode = "stt_not_started"
	ReasonSTTClosed     ReasonCode = "stt_closed"

	ReasonWhisperModel      ReasonCode = "whisper_model"
	ReasonWhisperTranscribe ReasonCode = "whisper_transcribe"

	ReasonNoBackend ReasonCode = "no_backend"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
	ReasonDialFailed                ReasonCode = "dial_failed"
)
