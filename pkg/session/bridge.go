package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/nava/internal/logger"
	"github.com/harun/nava/internal/observability"
	"github.com/harun/nava/internal/tracing"
	"github.com/harun/nava/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultDrainTimeout = 5 * time.Second

	cleanupTimeout = 30 * time.Second
)

// Conn is the subset of *websocket.Conn the bridge needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	Factory agent.Factory
	Logger  zerolog.Logger
	// Output is where incidental tool output goes besides the connection. May be nil.
	Output io.Writer
	// WriteTimeout bounds each frame write when the connection supports deadlines.
	WriteTimeout time.Duration
	// DrainTimeout bounds how long teardown waits for queued frames to be written.
	DrainTimeout time.Duration
	ID           string
}

// Bridge pairs one connection with one agent run.
type Bridge struct {
	conn   Conn
	cfg    BridgeConfig
	id     string
	logger zerolog.Logger
	out    *outbox

	mu      sync.Mutex
	pending *pendingInput

	readerDone chan struct{}
	served     atomic.Bool
	closing    atomic.Bool
}

type pendingInput struct {
	question string
	answer   chan string
	asked    bool // set once the input request frame is queued
}

// NewBridge creates a bridge for conn. Serve must be called exactly once.
func NewBridge(conn Conn, cfg BridgeConfig) (*Bridge, error) {
	if conn == nil {
		return nil, errors.New("connection is required")
	}
	if cfg.Factory == nil {
		return nil, errors.New("agent factory is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	id := cfg.ID
	if id == "" {
		var err error
		if id, err = gonanoid.New(); err != nil {
			return nil, fmt.Errorf("failed to generate session id: %w", err)
		}
	}

	return &Bridge{
		conn:       conn,
		cfg:        cfg,
		id:         id,
		logger:     cfg.Logger.With().Str("session_id", id).Logger(),
		out:        newOutbox(),
		readerDone: make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (b *Bridge) ID() string {
	return b.id
}

// Serve reads the task prompt, runs one agent while streaming its logs and
// output, sends the terminal frame and releases every resource. It returns
// the agent's failure, if any. Transport failures are logged, not returned.
func (b *Bridge) Serve(ctx context.Context) error {
	if !b.served.CompareAndSwap(false, true) {
		return errors.New("session already served")
	}

	ctx, cancel := context.WithCancel(tracing.WithSessionKey(ctx, b.id))
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "nava.session", "session.serve", attribute.String("session_id", b.id))
	defer span.End()

	observability.AddActiveSessions(1)
	defer observability.AddActiveSessions(-1)

	b.logger.Info().Msg("Session opened")

	fwdDone := make(chan struct{})
	go b.forward(cancel, fwdDone)

	_, msg, err := b.conn.ReadMessage()
	if err != nil {
		terr := &TransportError{Op: "read", Err: err}
		b.logTransport(terr)
		b.teardown(nil, nil, nil, errorFrame(terr), fwdDone)
		return nil
	}

	go b.readLoop(cancel)

	var (
		ag     *agent.Agent
		sink   *logger.Sink
		lw     *logger.LineWriter
		runErr error
	)

	prompt := strings.TrimSpace(string(msg))
	if prompt == "" {
		b.logger.Warn().Msg("Empty prompt provided")
		b.out.push(frame{kind: frameLog, data: []byte(EmptyPromptWarning)})
		runErr = ErrEmptyPrompt
	} else {
		sink = logger.NewSink(func(line string) {
			b.out.push(frame{kind: frameLog, data: []byte(line)})
		})
		lw = logger.NewLineWriter(b.cfg.Output, func(line string) {
			b.out.push(frame{kind: frameOutput, data: []byte(line)})
		})
		sessionLogger := logger.Tee(b.logger, sink)

		ag, runErr = b.cfg.Factory(ctx, agent.Env{Logger: sessionLogger, Output: lw, Input: b.AskUser})
		if runErr != nil {
			runErr = fmt.Errorf("failed to create agent: %w", runErr)
			sessionLogger.Error().Err(runErr).Msg("Agent unavailable")
		} else {
			sessionLogger.Info().Msg("Starting agent")
			if _, runErr = ag.Run(ctx, prompt); runErr != nil {
				sessionLogger.Error().Err(runErr).Msg("Agent run failed")
			} else {
				sessionLogger.Info().Msg("Request finished")
			}
		}
	}

	terminal := frame{kind: frameDone, data: []byte(DoneFrame)}
	if runErr != nil {
		tracing.RecordError(span, runErr)
		terminal = errorFrame(runErr)
	}
	b.teardown(ag, sink, lw, terminal, fwdDone)
	return runErr
}

func errorFrame(err error) frame {
	return frame{kind: frameError, data: []byte(ErrorMarker + logger.RedactString(err.Error()))}
}

// AskUser sends an input request frame and waits for the next inbound
// message. Only one question may be pending at a time.
func (b *Bridge) AskUser(ctx context.Context, question string) (string, error) {
	p := &pendingInput{question: question, answer: make(chan string, 1)}

	b.mu.Lock()
	if b.pending != nil {
		b.mu.Unlock()
		return "", ErrInputPending
	}
	b.pending = p
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.pending == p {
			b.pending = nil
		}
		b.mu.Unlock()
	}()

	b.logger.Debug().Str("question", question).Msg("Asking user")
	// Queue under mu so a reply can never be delivered before p is marked asked.
	b.mu.Lock()
	p.asked = b.out.push(inputRequestFrame(question))
	queued := p.asked
	b.mu.Unlock()
	if !queued {
		return "", ErrSessionClosed
	}

	select {
	case answer := <-p.answer:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.readerDone:
		select {
		case answer := <-p.answer:
			return answer, nil
		default:
			return "", ErrSessionClosed
		}
	}
}

// deliver resolves the pending question with msg, or discards msg when no
// input request has been queued yet.
func (b *Bridge) deliver(msg []byte) {
	b.mu.Lock()
	p := b.pending
	if p != nil && p.asked {
		b.pending = nil
	} else {
		p = nil
	}
	b.mu.Unlock()

	if p == nil {
		b.logger.Debug().Int("bytes", len(msg)).Msg("Discarding message with no pending input request")
		return
	}
	p.answer <- parseReply(msg)
}

func (b *Bridge) readLoop(cancel context.CancelFunc) {
	defer close(b.readerDone)
	for {
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			if !b.closing.Load() {
				b.logTransport(&TransportError{Op: "read", Err: err})
			}
			cancel()
			return
		}
		b.deliver(msg)
	}
}

// forward writes queued frames in order until the outbox is closed and empty
// or a write fails.
func (b *Bridge) forward(cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	for {
		frames, closed := b.out.drain()
		for _, f := range frames {
			if err := b.write(f); err != nil {
				b.logTransport(&TransportError{Op: "write", Err: err})
				cancel()
				return
			}
			observability.RecordSessionFrame(string(f.kind))
		}
		if closed {
			return
		}
		<-b.out.notify
	}
}

func (b *Bridge) write(f frame) error {
	if d, ok := b.conn.(deadlineSetter); ok {
		if err := d.SetWriteDeadline(time.Now().Add(b.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return b.conn.WriteMessage(websocket.TextMessage, f.data)
}

// teardown releases session resources in a fixed order. Every step runs even
// if an earlier one fails or panics.
func (b *Bridge) teardown(ag *agent.Agent, sink *logger.Sink, lw *logger.LineWriter, terminal frame, fwdDone <-chan struct{}) {
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if p := recover(); p != nil {
				errs = append(errs, fmt.Errorf("%s panicked: %v", name, p))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("restore output", func() error {
		if lw == nil {
			return nil
		}
		return lw.Restore()
	})
	step("close log sink", func() error {
		if sink == nil {
			return nil
		}
		return sink.Close()
	})
	step("send terminal frame", func() error {
		b.out.push(terminal)
		b.out.close()
		return nil
	})
	step("await forwarder", func() error {
		timer := time.NewTimer(b.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-fwdDone:
			return nil
		case <-timer.C:
			return errors.New("timed out writing queued frames")
		}
	})
	step("agent cleanup", func() error {
		if ag == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		return ag.Cleanup(ctx)
	})
	step("close connection", func() error {
		b.closing.Store(true)
		return b.conn.Close()
	})

	if err := errors.Join(errs...); err != nil {
		b.logger.Warn().Err(err).Msg("Session teardown incomplete")
	}
	b.logger.Info().Str("terminal", string(terminal.kind)).Msg("Session closed")
}

func (b *Bridge) logTransport(err *TransportError) {
	if websocket.IsCloseError(err.Err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		b.logger.Debug().Err(err).Msg("Connection closed by peer")
		return
	}
	b.logger.Warn().Err(err).Msg("Session transport failure")
}
