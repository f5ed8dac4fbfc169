package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"loggerctl/command"
	"loggerctl/config"
	"loggerctl/control"
	"loggerctl/metrics"
	"loggerctl/redis"
	"loggerctl/transport"

	"github.com/google/uuid"
)

// ErrUnknownCommand is returned for a kind missing from the catalog.
var ErrUnknownCommand = errors.New("unknown command")

// TransportFactory opens a transport for one command.
type TransportFactory func(cfg *config.Config, clientID string, logger *slog.Logger) (transport.Transport, transport.Kind, error)

// LeaseStore guards a logger against concurrent commands. A lease lives
// for ttl unless released first.
type LeaseStore interface {
	Acquire(ctx context.Context, target command.Target, ttl time.Duration) (Lease, error)
}

// Lease is released once the command holding it finishes.
type Lease interface {
	Release(ctx context.Context) error
}

type redisLeases struct {
	store *redis.LeaseStore
}

// RedisLeases adapts a redis.LeaseStore.
func RedisLeases(store *redis.LeaseStore) LeaseStore {
	return redisLeases{store: store}
}

func (r redisLeases) Acquire(ctx context.Context, target command.Target, ttl time.Duration) (Lease, error) {
	l, err := r.store.Acquire(ctx, target, ttl)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// CommandRequest names a catalog command and the logger to send it to.
type CommandRequest struct {
	Kind           string
	Serial         string
	Model          string
	Args           command.Args
	Timeout        time.Duration
	ResponseSuffix string
}

// ControlService runs catalog commands. Every call gets its own transport
// and command handler, so calls for different loggers run concurrently.
type ControlService struct {
	cfg          *config.Config
	logger       *slog.Logger
	leases       LeaseStore
	newTransport TransportFactory
}

type ServiceOption func(*ControlService)

// WithLeaseStore enables per-logger leases.
func WithLeaseStore(store LeaseStore) ServiceOption {
	return func(s *ControlService) { s.leases = store }
}

// WithTransportFactory replaces transport.New.
func WithTransportFactory(f TransportFactory) ServiceOption {
	return func(s *ControlService) { s.newTransport = f }
}

func NewControlService(cfg *config.Config, logger *slog.Logger, opts ...ServiceOption) *ControlService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ControlService{
		cfg:          cfg,
		logger:       logger.With("component", "control_service"),
		newTransport: transport.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the topic target for a logger serial number.
func (s *ControlService) Target(model, serial string) command.Target {
	if model == "" {
		model = s.cfg.Model
	}
	return command.Target{GroupID: s.cfg.Topic, DeviceID: command.DeviceID(model, serial)}
}

// Execute runs req and returns the logger's Response. Errors follow
// control.Handler.SendCommand, plus ErrUnknownCommand and
// redis.ErrLeaseHeld.
func (s *ControlService) Execute(ctx context.Context, req CommandRequest) (*command.Response, error) {
	entry, ok := command.Lookup(req.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, req.Kind)
	}
	if req.Serial == "" {
		return nil, &command.ValidationError{Command: req.Kind, Field: "serial", Message: "required argument missing"}
	}

	target := s.Target(req.Model, req.Serial)
	var opts []command.Option
	if req.ResponseSuffix != "" {
		opts = append(opts, command.WithResponseSuffix(req.ResponseSuffix))
	}
	d := entry.New(target, opts...)
	logger := s.logger.With("command", entry.Kind, "device", target.String())

	start := time.Now()
	if _, err := d.BuildPayload(req.Args); err != nil {
		metrics.ObserveCommand(entry.Kind, ResultOf(nil, err), time.Since(start))
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout()
	}

	if s.leases != nil {
		lease, err := s.leases.Acquire(ctx, target, s.cfg.LeaseTTLFor(timeout))
		if err != nil {
			if errors.Is(err, redis.ErrLeaseHeld) {
				metrics.IncLeaseRejected(entry.Kind)
			}
			return nil, err
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lease.Release(rctx); err != nil {
				logger.Error("Failed to release lease", slog.Any("error", err))
			}
		}()
	}

	tr, kind, err := s.newTransport(s.cfg, s.clientID(), logger)
	if err != nil {
		err = &control.ConnectionError{Op: "configure", Err: err}
		metrics.ObserveCommand(entry.Kind, ResultOf(nil, err), time.Since(start))
		return nil, err
	}

	h := control.NewHandler(tr, logger,
		control.WithSubscribeQoS(transport.SubscribeQoS(kind)),
		control.WithPublishQoS(transport.AtLeastOnce),
		control.WithDefaultTimeout(s.cfg.Timeout()),
	)
	resp, err := h.SendCommand(ctx, d, req.Args, timeout)
	metrics.ObserveCommand(entry.Kind, ResultOf(resp, err), time.Since(start))
	return resp, err
}

// clientID keeps the configured id for the cloud broker, whose policies
// bind it, and adds a random suffix elsewhere so parallel calls never
// kick each other off the broker.
func (s *ControlService) clientID() string {
	if s.cfg.IsCloud() {
		return s.cfg.ClientID
	}
	return fmt.Sprintf("%s-%s", s.cfg.ClientID, uuid.NewString()[:8])
}

// ResultOf maps the result of a command to a metrics label.
func ResultOf(resp *command.Response, err error) string {
	switch {
	case err == nil && resp != nil && resp.Success:
		return metrics.ResultSuccess
	case err == nil:
		return metrics.ResultFailure
	case errors.Is(err, control.ErrNoResponse):
		return metrics.ResultTimeout
	case errors.Is(err, control.ErrBusy), errors.Is(err, redis.ErrLeaseHeld):
		return metrics.ResultBusy
	case control.IsConnectionError(err):
		return metrics.ResultConnection
	case command.IsProtocolError(err):
		return metrics.ResultProtocol
	case command.IsValidationError(err):
		return metrics.ResultValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	default:
		return metrics.ResultError
	}
}
