package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/texcache/internal/config"
	ferrors "git.home.luguber.info/inful/texcache/internal/foundation/errors"
	"git.home.luguber.info/inful/texcache/internal/logfields"
	"git.home.luguber.info/inful/texcache/internal/metrics"
	"git.home.luguber.info/inful/texcache/internal/retry"
)

// HeaderEventType carries the event type so subscribers can filter without
// decoding the payload.
const HeaderEventType = "Texcache-Event-Type"

const retryOperation = "events_publish"

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes events to a core NATS subject.
type NATSPublisher struct {
	conn     conn
	subject  string
	policy   retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewNATSPublisher connects to the configured NATS server.
func NewNATSPublisher(cfg config.EventsConfig, logger *slog.Logger) (*NATSPublisher, error) {
	if !cfg.Enabled() {
		return nil, ferrors.EventsError("events are disabled").Build()
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("texcache"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryEvents, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).
			Retryable().
			Build()
	}
	p := newPublisher(nc, cfg, logger)
	p.logger.Info("NATS event publisher initialized",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.Subject))
	return p, nil
}

func newPublisher(c conn, cfg config.EventsConfig, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		conn:     c,
		subject:  cfg.Subject,
		policy:   retry.NewPolicy(retry.BackoffExponential, 100*time.Millisecond, 2*time.Second, cfg.MaxRetries),
		recorder: metrics.NoopRecorder{},
		logger:   logger,
	}
}

// WithRecorder sets the metrics recorder used for retry counters.
func (p *NATSPublisher) WithRecorder(r metrics.Recorder) *NATSPublisher {
	if r != nil {
		p.recorder = r
	}
	return p
}

// Publish marshals e and publishes it, retrying transient failures with
// backoff.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	retries, err := p.policy.Do(ctx, func(context.Context) error {
		msg := nats.NewMsg(p.subject)
		msg.Header.Set(HeaderEventType, string(e.Type))
		msg.Data = data
		return p.conn.PublishMsg(msg)
	})
	for range retries {
		p.recorder.IncRetry(retryOperation)
	}
	if err != nil {
		p.recorder.IncRetryExhausted(retryOperation)
		return ferrors.WrapError(err, ferrors.CategoryEvents, "failed to publish event").
			WithContext("type", string(e.Type)).
			WithContext("subject", p.subject).
			Warning().
			Build()
	}

	p.logger.Debug("Published event",
		slog.String("type", string(e.Type)),
		logfields.Fingerprint(e.Fingerprint))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.conn.FlushWithContext(ctx)
	p.conn.Close()
	return err
}
