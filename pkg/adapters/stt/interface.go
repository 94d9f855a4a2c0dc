// Package stt defines the session contract every speech-to-text
// backend implements.
package stt

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/strombecks/earshot/pkg/transcript"
)

// Lifecycle errors. Calling an operation in the wrong state is a
// programmer error, not a retryable fault.
var (
	ErrNotStarted     = errors.New("stt: session not started")
	ErrClosed         = errors.New("stt: session closed")
	ErrAlreadyStarted = errors.New("stt: session already started")
)

// Session is one transcription session bound to one call. A session
// moves Unstarted -> Active on Start, Active -> Closed on Close, and
// never leaves Closed; Close is idempotent but every other operation
// on a closed session fails with ErrClosed.
//
// Segments carries finalized results only. Streaming backends return
// the same live single-pass channel on every call; the channel closes
// when the backend terminates the session or Close is called. The
// local batch backend instead returns a fresh channel per call that
// materializes everything buffered so far. After the channel closes,
// Err reports the terminal fault, if any.
type Session interface {
	// Name identifies the backend variant for logging.
	Name() string
	// Start opens the backend connection or resets the local buffer.
	// A connection failure here is fatal to the session.
	Start(ctx context.Context) error
	// SendAudio forwards one PCM16 16 kHz mono chunk. Fire-and-forget
	// relative to results, which arrive asynchronously.
	SendAudio(pcm []byte) error
	// Segments returns the finalized-segment stream.
	Segments() <-chan transcript.Segment
	// Err reports the error that terminated the segment stream, or nil.
	Err() error
	// Close releases the connection or buffer. Safe to call twice and
	// concurrently with an in-flight SendAudio or Segments consumer.
	Close() error
}

// Config carries vendor-agnostic session settings.
type Config struct {
	MeetingID  uuid.UUID
	StreamID   string
	CallSID    string
	SampleRate int
	Language   string
}
