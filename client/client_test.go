package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newStubServer runs a WebSocket endpoint that swallows binary frames until
// the control signal, then sends transcript in two chunks and closes.
func newStubServer(t *testing.T, transcript string, delay time.Duration) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType == websocket.TextMessage && strings.TrimSpace(string(data)) == "end" {
				break
			}
		}

		if transcript == "" {
			return
		}
		time.Sleep(delay)
		half := len(transcript) / 2
		conn.WriteMessage(websocket.TextMessage, []byte(transcript[:half]))
		conn.WriteMessage(websocket.TextMessage, []byte(transcript[half:]))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStreamReceivesTranscriptAndMetrics(t *testing.T) {
	const transcript = "four score and seven years ago"
	server := newStubServer(t, transcript, 20*time.Millisecond)

	c := NewClient(Options{
		URL:       "ws" + strings.TrimPrefix(server.URL, "http"),
		ChunkSize: 1000,
	})

	// one second of silent wire-format audio
	pcm := make([]byte, 32000)

	var got strings.Builder
	result, err := c.Stream(context.Background(), pcm, func(text string) {
		got.WriteString(text)
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if got.String() != transcript {
		t.Fatalf("transcript = %q, want %q", got.String(), transcript)
	}
	if !result.TTFBValid {
		t.Fatal("expected a TTFB measurement")
	}
	if result.TTFB < 20*time.Millisecond {
		t.Fatalf("TTFB = %v, want at least the stub delay", result.TTFB)
	}
	if result.AudioDuration != time.Second {
		t.Fatalf("audio duration = %v, want 1s", result.AudioDuration)
	}
	if result.RTF <= 0 {
		t.Fatalf("RTF = %f, want > 0", result.RTF)
	}
	if result.Total < result.TTFB {
		t.Fatalf("total %v < TTFB %v", result.Total, result.TTFB)
	}
}

func TestStreamNoTranscript(t *testing.T) {
	server := newStubServer(t, "", 0)

	c := NewClient(Options{URL: "ws" + strings.TrimPrefix(server.URL, "http")})

	result, err := c.Stream(context.Background(), nil, func(string) {
		t.Error("unexpected transcript chunk")
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if result.AudioDuration != 0 || result.RTF != 0 {
		t.Fatalf("expected zero metrics for empty audio, got %+v", result)
	}
}

func TestStreamDialFailure(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/stream"})
	if _, err := c.Stream(context.Background(), nil, func(string) {}); err == nil {
		t.Fatal("expected dial error")
	}
}
