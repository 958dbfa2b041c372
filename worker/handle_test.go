package worker

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestASRArgs(t *testing.T) {
	got := strings.Join(ASRArgs("/models", 0), " ")
	if got != "-d /models --stdin --stream" {
		t.Fatalf("args without threads = %q", got)
	}

	got = strings.Join(ASRArgs("/models", 4), " ")
	if got != "-d /models --stdin --stream -t 4" {
		t.Fatalf("args with threads = %q", got)
	}
}

func TestStartBinaryNotFound(t *testing.T) {
	cases := []string{
		"scribe-test-no-such-binary",
		"/nonexistent/path/to/scribe-test-binary",
	}
	for _, path := range cases {
		_, err := Start(Command{Path: path})
		if !errors.Is(err, ErrBinaryNotFound) {
			t.Fatalf("Start(%q) error = %v, want ErrBinaryNotFound", path, err)
		}
	}
}

func TestEchoRoundTrip(t *testing.T) {
	h, err := Start(Command{Path: "cat"})
	if err != nil {
		t.Fatalf("starting cat: %v", err)
	}
	defer h.Release()

	if err := h.WriteInput([]byte("hello ")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.WriteInput([]byte("worker")); err != nil {
		t.Fatalf("write: %v", err)
	}
	h.CloseInput()

	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := h.ReadOutput(buf)
		out.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	if out.String() != "hello worker" {
		t.Fatalf("echoed output = %q", out.String())
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("worker exited with error: %v", err)
	}
}

func TestCloseInputIdempotent(t *testing.T) {
	h, err := Start(Command{Path: "cat"})
	if err != nil {
		t.Fatalf("starting cat: %v", err)
	}
	defer h.Release()

	h.CloseInput()
	h.CloseInput() // double close must be a no-op

	if err := h.WriteInput([]byte("late")); err == nil {
		t.Fatal("expected write after close to fail")
	}
	if err := h.Wait(); err != nil {
		t.Fatalf("worker exited with error: %v", err)
	}
}

func TestWaitTimeoutAndKill(t *testing.T) {
	h, err := Start(Command{Path: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("starting sleep: %v", err)
	}
	defer h.Release()

	if err := h.WaitTimeout(50 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("WaitTimeout = %v, want ErrWaitTimeout", err)
	}

	if err := h.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := h.Wait(); err == nil {
		t.Fatal("expected non-nil exit error after kill")
	}

	select {
	case <-h.Exited():
	default:
		t.Fatal("Exited channel not closed after Wait")
	}
}
