// Package transcript defines the canonical unit of transcription
// output shared by every STT backend.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// minDuration is the widening applied to zero-length backend results.
const minDuration = 0.01

// Segment is one finalized span of transcribed speech. Start and End
// are seconds from stream start; Speaker is empty when the backend
// performs no diarization. Segments are immutable once produced and
// ownership transfers to the consumer on yield.
type Segment struct {
	ID         uuid.UUID `json:"id"`
	MeetingID  uuid.UUID `json:"meeting_id"`
	Speaker    string    `json:"speaker_id,omitempty"`
	Text       string    `json:"text"`
	Start      float64   `json:"start_time"`
	End        float64   `json:"end_time"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// New builds a normalized segment. Inverted or zero-length timings are
// widened to a minimal positive duration and confidence is clamped to
// [0, 1]; malformed backend timing is corrected here, never surfaced
// as an error.
func New(meetingID uuid.UUID, speaker, text string, start, end, confidence float64) Segment {
	if end <= start {
		end = start + minDuration
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Segment{
		ID:         uuid.New(),
		MeetingID:  meetingID,
		Speaker:    speaker,
		Text:       text,
		Start:      start,
		End:        end,
		Confidence: confidence,
		CreatedAt:  time.Now().UTC(),
	}
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.End - s.Start }
