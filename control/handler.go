// Package control runs one command against one logger: it connects, listens
// on the reply topics, publishes, waits for the first classifiable reply and
// always releases the connection before returning.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"loggerctl/command"
	"loggerctl/transport"
)

// DefaultTimeout applies when SendCommand is given a non-positive timeout.
const DefaultTimeout = 20 * time.Second

// cleanupTimeout bounds unsubscribe calls made after the caller's context
// may already be done.
const cleanupTimeout = 5 * time.Second

// Handler correlates a published command with its reply. A Handler owns its
// transport and runs at most one command at a time.
type Handler struct {
	transport      transport.Transport
	logger         *slog.Logger
	publishQoS     transport.QoS
	subscribeQoS   transport.QoS
	defaultTimeout time.Duration
	onState        func(State)

	processingMutex sync.Mutex
	isProcessing    bool
	state           State
}

// Option configures a Handler.
type Option func(*Handler)

// WithSubscribeQoS sets the QoS of reply subscriptions.
func WithSubscribeQoS(q transport.QoS) Option {
	return func(h *Handler) { h.subscribeQoS = q }
}

// WithPublishQoS sets the QoS of command publishes.
func WithPublishQoS(q transport.QoS) Option {
	return func(h *Handler) { h.publishQoS = q }
}

// WithDefaultTimeout replaces DefaultTimeout for this handler.
func WithDefaultTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.defaultTimeout = d
		}
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(h *Handler) { h.onState = fn }
}

func NewHandler(t transport.Transport, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		transport:      t,
		logger:         logger.With("component", "command_handler"),
		publishQoS:     transport.AtLeastOnce,
		subscribeQoS:   transport.AtLeastOnce,
		defaultTimeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the phase of the current call, or Idle.
func (h *Handler) State() State {
	h.processingMutex.Lock()
	defer h.processingMutex.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.processingMutex.Lock()
	h.state = s
	h.processingMutex.Unlock()
	if h.onState != nil {
		h.onState(s)
	}
}

func (h *Handler) acquire() bool {
	h.processingMutex.Lock()
	defer h.processingMutex.Unlock()
	if h.isProcessing {
		return false
	}
	h.isProcessing = true
	return true
}

func (h *Handler) release() {
	h.processingMutex.Lock()
	h.isProcessing = false
	h.processingMutex.Unlock()
	h.setState(Idle)
}

// correlation is the single-assignment result slot of one call.
type correlation struct {
	once sync.Once
	done chan struct{}
	resp *command.Response
	err  error
}

func newCorrelation() *correlation {
	return &correlation{done: make(chan struct{})}
}

func (c *correlation) resolve(resp *command.Response, err error) bool {
	resolved := false
	c.once.Do(func() {
		c.resp, c.err = resp, err
		close(c.done)
		resolved = true
	})
	return resolved
}

func (c *correlation) resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// SendCommand publishes the payload built from args and blocks until the
// logger answers, the timeout elapses or ctx is done.
//
// A reply, successful or not, is returned as a Response. Otherwise the error
// is one of ErrNoResponse, *ConnectionError, *command.ProtocolError,
// *command.ValidationError, ErrBusy or the context error.
func (h *Handler) SendCommand(ctx context.Context, d command.Descriptor, args command.Args, timeout time.Duration) (*command.Response, error) {
	if !h.acquire() {
		h.logger.Warn("Command rejected: another command is currently processing", "command", d.Name())
		return nil, ErrBusy
	}
	defer h.release()

	if timeout <= 0 {
		timeout = h.defaultTimeout
	}
	logger := h.logger.With("command", d.Name(), "topic", d.PublishTopic())

	payload, err := d.BuildPayload(args)
	if err != nil {
		logger.Warn("Command arguments rejected", slog.Any("error", err))
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", d.Name(), err)
	}

	h.setState(Connecting)
	if err := h.transport.Connect(ctx); err != nil {
		h.setState(ConnectionFailed)
		logger.Error("Failed to connect", slog.Any("error", err))
		// A connect abandoned by ctx may still complete in the background.
		h.transport.Disconnect()
		return nil, &ConnectionError{Op: "connect", Err: err}
	}

	var subscribed []string
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		for _, topic := range subscribed {
			if err := h.transport.Unsubscribe(cctx, topic); err != nil {
				logger.Warn("Failed to unsubscribe", "subscription", topic, slog.Any("error", err))
			}
		}
		h.transport.Disconnect()
	}()

	call := newCorrelation()

	onResponse := func(topic string, raw []byte) {
		if call.resolved() {
			return
		}
		resp, err := d.Classify(topic, raw)
		if resp == nil && err == nil {
			logger.Debug("Ignoring unmatched message", "received_topic", topic)
			return
		}
		call.resolve(resp, err)
	}
	if err := h.transport.Subscribe(ctx, d.ResponseTopic(), h.subscribeQoS, onResponse); err != nil {
		h.setState(ConnectionFailed)
		logger.Error("Failed to subscribe", "subscription", d.ResponseTopic(), slog.Any("error", err))
		return nil, &ConnectionError{Op: "subscribe", Topic: d.ResponseTopic(), Err: err}
	}
	subscribed = append(subscribed, d.ResponseTopic())

	if matcher, ok := d.(command.StateMatcher); ok {
		onState := func(topic string, raw []byte) {
			if call.resolved() {
				return
			}
			if resp := matcher.MatchState(raw); resp != nil {
				call.resolve(resp, nil)
			}
		}
		if err := h.transport.Subscribe(ctx, d.StateTopic(), h.subscribeQoS, onState); err != nil {
			h.setState(ConnectionFailed)
			logger.Error("Failed to subscribe", "subscription", d.StateTopic(), slog.Any("error", err))
			return nil, &ConnectionError{Op: "subscribe", Topic: d.StateTopic(), Err: err}
		}
		subscribed = append(subscribed, d.StateTopic())
	}

	h.setState(AwaitingResponse)
	if err := h.transport.Publish(ctx, d.PublishTopic(), body, h.publishQoS); err != nil {
		h.setState(ConnectionFailed)
		logger.Error("Failed to publish", slog.Any("error", err))
		return nil, &ConnectionError{Op: "publish", Topic: d.PublishTopic(), Err: err}
	}
	logger.Info("Command published", "payload_size", len(body), "timeout", timeout.String())

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-call.done:
		if call.err != nil {
			h.setState(ProtocolViolation)
			logger.Error("Protocol violation", slog.Any("error", call.err))
			return nil, call.err
		}
		h.setState(Resolved)
		logger.Info("Command resolved", "success", call.resp.Success, "device_error", call.resp.Error)
		return call.resp, nil
	case <-timer.C:
		h.setState(TimedOut)
		logger.Warn("No response before deadline", "timeout", timeout.String())
		return nil, fmt.Errorf("%s: %w after %s", d.Name(), ErrNoResponse, timeout)
	case <-ctx.Done():
		h.setState(TimedOut)
		logger.Warn("Command abandoned", slog.Any("error", ctx.Err()))
		return nil, ctx.Err()
	}
}
