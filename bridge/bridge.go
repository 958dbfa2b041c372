package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mklatt/scribe/utils"
	"github.com/mklatt/scribe/worker"
	"go.uber.org/zap"
)

// block size for reads from the worker's output stream; each non-empty block
// is pushed to the connection immediately rather than buffered to a line
// boundary, trading partial-rune fidelity for time-to-first-byte
const outputBlockSize = 4096

const utf8Replacement = "�"

// Conn is the subset of *websocket.Conn the bridge touches. The owner of the
// connection (the gateway) remains responsible for closing it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// Policy holds the session-local timeout knobs.
type Policy struct {
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT" envDefault:"1h"`
	DrainTimeout      time.Duration `env:"DRAIN_TIMEOUT" envDefault:"60s"`
	ExitTimeout       time.Duration `env:"EXIT_TIMEOUT" envDefault:"30s"`
}

// Bridge runs one session: one connection bound to one worker process,
// audio forwarded in, transcript text forwarded out.
type Bridge struct {
	log *zap.Logger

	conn    Conn
	command worker.Command
	policy  Policy
}

type Options struct {
	ParentLogger *zap.Logger
	Conn         Conn
	Worker       worker.Command
	Policy       Policy
}

func New(options Options) *Bridge {
	return &Bridge{
		log: options.ParentLogger.Named("session").
			With(zap.String("session_id", uuid.NewString())),
		conn:    options.Conn,
		command: options.Worker,
		policy:  options.Policy,
	}
}

type frame struct {
	messageType int
	data        []byte
	err         error
}

// trigger names the first event that ended the streaming phase.
type trigger int

const (
	triggerControl trigger = iota
	triggerDisconnect
	triggerInactivity
	triggerWorkerDone
	triggerCanceled
)

func (t trigger) String() string {
	switch t {
	case triggerControl:
		return "control_signal"
	case triggerDisconnect:
		return "disconnect"
	case triggerInactivity:
		return "inactivity_timeout"
	case triggerWorkerDone:
		return "worker_done"
	case triggerCanceled:
		return "canceled"
	}
	return "unknown"
}

// isControlSignal reports whether a text frame means "no more audio input".
// Binary frames never carry the signal.
func isControlSignal(data []byte) bool {
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "end", "close", "done":
		return true
	}
	return false
}

// Run drives the session to completion: spawn the worker, stream both
// directions until the first exit trigger, then drain and reap. It returns
// once the worker has been reaped; the connection is still open and is
// closed by the caller.
func (b *Bridge) Run(ctx context.Context) error {
	log := utils.GetLogFromContext(ctx, b.log)

	h, err := worker.Start(b.command)
	if err != nil {
		log.Error("failed to spawn worker", zap.Error(err))

		diagnostic := fmt.Sprintf("Error: %v", err)
		if errors.Is(err, worker.ErrBinaryNotFound) {
			diagnostic = fmt.Sprintf("Error: %s binary not found", b.command.Path)
		}
		if writeErr := b.conn.WriteMessage(websocket.TextMessage, []byte(diagnostic)); writeErr != nil {
			log.Debug("failed to send spawn diagnostic", zap.Error(writeErr))
		}
		return fmt.Errorf("spawning worker: %w", err)
	}

	log = log.With(zap.Int("worker_pid", h.Pid()))
	log.Info("session streaming")

	done := make(chan struct{})
	defer close(done)

	outDone := make(chan struct{})
	go func() {
		defer utils.PanicRecovery(log)
		defer close(outDone)
		b.forwardOutput(log, h)
	}()

	reason := b.forwardInput(ctx, log, h, b.readFrames(log, done), outDone)
	log.Info("session draining", zap.String("trigger", reason.String()))

	b.drain(log, h, outDone)
	h.Release()

	log.Info("session closed")
	return nil
}

// readFrames pumps connection frames into a channel so the streaming loop
// can select over them alongside timers and the worker's state. The pump
// stops on the first read error or when done closes.
func (b *Bridge) readFrames(log *zap.Logger, done <-chan struct{}) <-chan frame {
	frames := make(chan frame)
	go func() {
		defer utils.PanicRecovery(log)
		defer close(frames)

		for {
			messageType, data, err := b.conn.ReadMessage()
			select {
			case frames <- frame{messageType: messageType, data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return frames
}

// forwardInput is the streaming loop: binary frames go to the worker's stdin
// in arrival order, text frames are checked for the control signal, and the
// first exit trigger wins.
func (b *Bridge) forwardInput(ctx context.Context, log *zap.Logger, h *worker.Handle, frames <-chan frame, outDone <-chan struct{}) trigger {
	idle := time.NewTimer(b.policy.InactivityTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return triggerCanceled
		case <-outDone:
			return triggerWorkerDone
		case <-idle.C:
			return triggerInactivity
		case f := <-frames:
			if f.err != nil {
				return triggerDisconnect
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(b.policy.InactivityTimeout)

			switch f.messageType {
			case websocket.TextMessage:
				if isControlSignal(f.data) {
					return triggerControl
				}
				// other text frames are reserved for future control use
			case websocket.BinaryMessage:
				if err := h.WriteInput(f.data); err != nil {
					log.Debug("worker input write failed", zap.Error(err))
					return triggerWorkerDone
				}
			}
		}
	}
}

// forwardOutput reads the worker's stdout in blocks and pushes each
// non-empty block to the connection as one text frame. Invalid byte
// sequences are replaced, never fatal. Returns on stdout end-of-stream or
// a failed push.
func (b *Bridge) forwardOutput(log *zap.Logger, h *worker.Handle) {
	buf := make([]byte, outputBlockSize)
	for {
		n, err := h.ReadOutput(buf)
		if n > 0 {
			text := strings.ToValidUTF8(string(buf[:n]), utf8Replacement)
			if text != "" {
				if writeErr := b.conn.WriteMessage(websocket.TextMessage, []byte(text)); writeErr != nil {
					log.Debug("transcript push failed", zap.Error(writeErr))
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("worker output read failed", zap.Error(err))
			}
			return
		}
	}
}

// drain closes the worker's stdin (end of input), gives the output forwarder
// a bounded window to deliver what's left, and guarantees the process is
// reaped, killing it if it outlives the exit timeout.
func (b *Bridge) drain(log *zap.Logger, h *worker.Handle, outDone <-chan struct{}) {
	h.CloseInput()

	exitDone := make(chan struct{})
	go func() {
		defer utils.PanicRecovery(log)
		defer close(exitDone)

		if err := h.WaitTimeout(b.policy.ExitTimeout); err != nil {
			log.Warn("worker exit timeout elapsed, killing process")
			if killErr := h.Kill(); killErr != nil {
				log.Error("failed to kill worker", zap.Error(killErr))
			}
		}
		if err := h.Wait(); err != nil {
			log.Debug("worker exited with error", zap.Error(err))
		}
	}()

	drainTimer := time.NewTimer(b.policy.DrainTimeout)
	defer drainTimer.Stop()
	select {
	case <-outDone:
	case <-drainTimer.C:
		// best effort: undelivered trailing output is discarded
		log.Warn("drain timeout elapsed, discarding undelivered output")
	}

	<-exitDone
}
