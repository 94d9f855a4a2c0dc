// Package transports defines the contract between the engine and the
// inbound call-audio transport.
package transports

import (
	"context"

	"github.com/strombecks/earshot/pkg/transcript"
)

// CallInfo identifies one bridged call.
type CallInfo struct {
	StreamID string
	CallSID  string
	TraceID  string
}

// SegmentSink is the downstream consumer attach point: it receives the
// lazy finalized-segment stream for one call and is responsible for its
// own windowing and batching. The stream closes when the call ends.
type SegmentSink interface {
	HandleSegments(ctx context.Context, call CallInfo, segments <-chan transcript.Segment)
}

// Transport terminates inbound call-audio connections.
type Transport interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// DialOptions carries optional outbound-call settings.
type DialOptions struct {
	// SendDigits are DTMF digits played after the call connects, used
	// to enter conference PINs.
	SendDigits string
}
