package assemblyai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/strombecks/earshot/pkg/adapters/stt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// mockRealtimeServer simulates the AssemblyAI realtime endpoint: it
// validates the auth header, sends SessionBegins, then hands the
// connection to the test.
func mockRealtimeServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing api key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{
			"message_type": "SessionBegins",
			"session_id":   "sess-1",
		})
		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStartWaitsForSessionBegins(t *testing.T) {
	server := mockRealtimeServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	s := New(Config{APIKey: "key", URL: wsURL(server)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStartFailsWithoutBackend(t *testing.T) {
	s := New(Config{APIKey: "key", URL: "ws://127.0.0.1:1", DialTimeout: time.Second})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestSendAudioWrapsBase64JSON(t *testing.T) {
	received := make(chan []byte, 1)
	server := mockRealtimeServer(t, func(conn *websocket.Conn) {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				AudioData string `json:"audio_data"`
			}
			if err := json.Unmarshal(raw, &msg); err != nil || msg.AudioData == "" {
				continue
			}
			decoded, _ := base64.StdEncoding.DecodeString(msg.AudioData)
			received <- decoded
		}
	})
	defer server.Close()

	s := New(Config{APIKey: "key", URL: wsURL(server)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	pcm := []byte{1, 2, 3, 4}
	if err := s.SendAudio(pcm); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(pcm) {
			t.Fatalf("server received %v, want %v", got, pcm)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio never reached server")
	}
}

func TestFinalTranscriptYieldsSegment(t *testing.T) {
	server := mockRealtimeServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{
			"message_type": "PartialTranscript",
			"text":         "hel",
		})
		_ = conn.WriteJSON(map[string]any{
			"message_type": "FinalTranscript",
			"text":         "hello world",
			"audio_start":  1000,
			"audio_end":    2500,
			"confidence":   0.93,
			"words":        []map[string]any{{"speaker": "A"}},
		})
		_ = conn.WriteJSON(map[string]any{"message_type": "SessionTerminated"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	s := New(Config{APIKey: "key", URL: wsURL(server)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	select {
	case seg, ok := <-s.Segments():
		if !ok {
			t.Fatalf("stream closed before segment")
		}
		if seg.Text != "hello world" {
			t.Fatalf("text = %q", seg.Text)
		}
		if seg.Start != 1.0 || seg.End != 2.5 {
			t.Fatalf("timing = %f..%f, want 1.0..2.5", seg.Start, seg.End)
		}
		if seg.Speaker != "A" {
			t.Fatalf("speaker = %q", seg.Speaker)
		}
		if seg.Confidence != 0.93 {
			t.Fatalf("confidence = %f", seg.Confidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no segment received")
	}

	// SessionTerminated ends the stream without an error.
	select {
	case _, ok := <-s.Segments():
		if ok {
			t.Fatalf("unexpected extra segment")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not terminate")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
}

func TestZeroDurationResultWidened(t *testing.T) {
	server := mockRealtimeServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{
			"message_type": "FinalTranscript",
			"text":         "blip",
			"audio_start":  500,
			"audio_end":    500,
			"confidence":   1.0,
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	s := New(Config{APIKey: "key", URL: wsURL(server)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	select {
	case seg := <-s.Segments():
		if seg.Start >= seg.End {
			t.Fatalf("zero-duration not widened: %f..%f", seg.Start, seg.End)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no segment received")
	}
}

func TestStalledPeerBoundsSendAndClose(t *testing.T) {
	// A peer that stops reading must fail sends at the write deadline
	// instead of blocking them forever, and Close must still return
	// promptly afterwards.
	release := make(chan struct{})
	server := mockRealtimeServer(t, func(conn *websocket.Conn) { <-release })
	defer server.Close()
	defer close(release)

	s := New(Config{APIKey: "key", URL: wsURL(server), DialTimeout: 300 * time.Millisecond})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	chunk := make([]byte, 1<<20)
	var sendErr error
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if sendErr = s.SendAudio(chunk); sendErr != nil {
			break
		}
	}
	if sendErr == nil {
		t.Fatalf("send never failed against a stalled peer")
	}

	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked behind a stalled send")
	}
}

func TestLifecycleStateMachine(t *testing.T) {
	server := mockRealtimeServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	s := New(Config{APIKey: "key", URL: wsURL(server)})

	if err := s.SendAudio([]byte{1}); !errors.Is(err, stt.ErrNotStarted) {
		t.Fatalf("send before start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, stt.ErrAlreadyStarted) {
		t.Fatalf("duplicate start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("repeated close: %v", err)
	}
	if err := s.SendAudio([]byte{1}); !errors.Is(err, stt.ErrClosed) {
		t.Fatalf("send after close: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, stt.ErrClosed) {
		t.Fatalf("start after close: %v", err)
	}
}
