package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mklatt/scribe/audio"
)

// DefaultChunkSize is the number of bytes per binary audio frame.
const DefaultChunkSize = 8192

const controlSignal = "end"

const utf8Replacement = "�"

// Client streams wire-format audio (s16le, 16 kHz, mono) to a scribe server
// and receives transcript chunks.
type Client struct {
	url       string
	chunkSize int
}

type Options struct {
	URL       string
	ChunkSize int
}

func NewClient(options Options) *Client {
	c := &Client{
		url:       options.URL,
		chunkSize: options.ChunkSize,
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultChunkSize
	}
	return c
}

// Result holds the latency metrics of one streaming run.
type Result struct {
	// TTFB is measured from the control signal being sent until the first
	// transcript chunk arrives. TTFBValid is false if nothing arrived.
	TTFB      time.Duration
	TTFBValid bool

	// Total is measured from the control signal until the connection closed.
	Total time.Duration

	AudioDuration time.Duration

	// RTF is Total divided by AudioDuration; <1 is faster than real time.
	RTF float64
}

// Stream sends pcm in fixed-size binary frames followed by one control
// signal, then invokes onText for every transcript chunk in arrival order
// until the server closes the connection.
func (c *Client) Stream(ctx context.Context, pcm []byte, onText func(string)) (*Result, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", c.url, err)
	}
	defer conn.Close()

	for offset := 0; offset < len(pcm); offset += c.chunkSize {
		end := min(offset+c.chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return nil, fmt.Errorf("sending audio frame: %w", err)
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(controlSignal)); err != nil {
		return nil, fmt.Errorf("sending control signal: %w", err)
	}
	controlSent := time.Now()

	result := &Result{
		AudioDuration: time.Duration(float64(len(pcm)) / audio.BytesPerSecond * float64(time.Second)),
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			// the server closing the connection ends the stream
			break
		}
		if !result.TTFBValid {
			result.TTFB = time.Since(controlSent)
			result.TTFBValid = true
		}
		switch messageType {
		case websocket.TextMessage:
			onText(string(data))
		case websocket.BinaryMessage:
			onText(strings.ToValidUTF8(string(data), utf8Replacement))
		}
	}

	result.Total = time.Since(controlSent)
	if seconds := result.AudioDuration.Seconds(); seconds > 0 {
		result.RTF = result.Total.Seconds() / seconds
	}

	return result, nil
}
