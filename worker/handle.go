package worker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"
)

var ErrBinaryNotFound = fmt.Errorf("worker binary not found")
var ErrWaitTimeout = fmt.Errorf("timed out waiting for worker exit")

// Handle owns one running worker process: write access to its stdin, read
// access to its stdout, and lifecycle control (kill, wait, reap).
type Handle struct {
	cmd *exec.Cmd

	stdin  *os.File
	stdout *os.File

	closeInputOnce sync.Once

	exited  chan struct{}
	waitErr error
}

// Start spawns the worker with its stdin and stdout attached to the handle.
// Stderr is discarded.
//
// The pipes are created with os.Pipe instead of exec's StdinPipe/StdoutPipe
// so that reaping the process never closes the parent's ends while output is
// still being drained.
func Start(command Command) (*Handle, error) {
	cmd := exec.Command(command.Path, command.Args...)

	stdinRead, stdinWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}

	cmd.Stdin = stdinRead
	cmd.Stdout = stdoutWrite

	if err := cmd.Start(); err != nil {
		stdinRead.Close()
		stdinWrite.Close()
		stdoutRead.Close()
		stdoutWrite.Close()
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrBinaryNotFound, command.Path)
		}
		return nil, fmt.Errorf("starting worker: %w", err)
	}

	// the child holds its own copies of these ends now
	stdinRead.Close()
	stdoutWrite.Close()

	h := &Handle{
		cmd:    cmd,
		stdin:  stdinWrite,
		stdout: stdoutRead,
		exited: make(chan struct{}),
	}

	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()

	return h, nil
}

func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// WriteInput writes audio bytes to the worker's stdin.
func (h *Handle) WriteInput(p []byte) error {
	if _, err := h.stdin.Write(p); err != nil {
		return fmt.Errorf("writing worker input: %w", err)
	}
	return nil
}

// ReadOutput reads decoded output bytes from the worker's stdout, blocking
// until data is available or the stream ends.
func (h *Handle) ReadOutput(p []byte) (int, error) {
	return h.stdout.Read(p)
}

// CloseInput closes the worker's stdin, signaling end of audio input.
// Multiple exit triggers may race to call this; only the first call closes.
func (h *Handle) CloseInput() {
	h.closeInputOnce.Do(func() {
		h.stdin.Close()
	})
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// WaitTimeout blocks until the process exits or d elapses, returning
// ErrWaitTimeout on expiry.
func (h *Handle) WaitTimeout(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-h.exited:
		return nil
	case <-t.C:
		return ErrWaitTimeout
	}
}

// Kill forcibly terminates the process.
func (h *Handle) Kill() error {
	return h.cmd.Process.Kill()
}

// Wait blocks until the process has been reaped and returns its exit error.
func (h *Handle) Wait() error {
	<-h.exited
	return h.waitErr
}

// Release closes the parent's remaining pipe ends. Call once the process has
// exited and no more output will be read.
func (h *Handle) Release() {
	h.CloseInput()
	h.stdout.Close()
}
