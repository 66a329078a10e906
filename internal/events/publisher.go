// Package events publishes bootstrap outcomes to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"arc-framework/dbboot/internal/config"
	"arc-framework/dbboot/internal/orchestrator"
)

const (
	probeName  = "nats"
	streamName = "DB_BOOTSTRAP"
	maxAge     = 7 * 24 * time.Hour
)

// jsContext is the subset of nats.JetStreamContext used by Publisher.
// Defining an interface here allows test doubles to be injected without a live
// NATS server.
type jsContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher sends one message per bootstrap attempt on the configured subject.
// It satisfies orchestrator.Notifier and orchestrator.HealthProber.
type Publisher struct {
	url     string
	subject string
	cb      *gobreaker.CircuitBreaker
	newJS   func(url string) (jsContext, func(), error)
}

// NewPublisher constructs a Publisher. No connection is made at construction
// time; connections are opened lazily inside ProvisionStream, Publish and Probe.
func NewPublisher(cfg config.EventsConfig, cb *gobreaker.CircuitBreaker) *Publisher {
	return &Publisher{
		url:     cfg.NATSURL,
		subject: cfg.Subject,
		cb:      cb,
		newJS:   realNewJS,
	}
}

// ProvisionStream creates or updates the stream that retains outcome messages.
// It is idempotent.
func (p *Publisher) ProvisionStream(ctx context.Context) error {
	return p.execute(func(js jsContext) error {
		return provisionStream(js, p.streamConfig())
	})
}

// Publish sends res as JSON. The run id doubles as the JetStream message id so
// a retried publish is deduplicated.
func (p *Publisher) Publish(ctx context.Context, res *orchestrator.BootstrapResult) error {
	if res == nil {
		return errors.New("nil bootstrap result")
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding bootstrap result: %w", err)
	}

	return p.execute(func(js jsContext) error {
		opts := []nats.PubOpt{nats.Context(ctx)}
		if res.RunID != "" {
			opts = append(opts, nats.MsgId(res.RunID))
		}
		if _, err := js.Publish(p.subject, data, opts...); err != nil {
			return fmt.Errorf("publishing to %s: %w", p.subject, err)
		}
		return nil
	})
}

// Probe verifies NATS connectivity. A missing stream is not a failure; it is
// provisioned on the next start.
func (p *Publisher) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	err := p.execute(func(js jsContext) error {
		_, infoErr := js.StreamInfo(streamName, nats.Context(ctx))
		if infoErr != nil && !errors.Is(infoErr, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info: %w", infoErr)
		}
		return nil
	})

	latency := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			msg = "circuit open"
		}
		return orchestrator.ProbeResult{Name: probeName, LatencyMs: latency, Error: msg}
	}
	return orchestrator.ProbeResult{Name: probeName, OK: true, LatencyMs: latency}
}

func (p *Publisher) execute(fn func(js jsContext) error) error {
	_, err := p.cb.Execute(func() (any, error) {
		js, cleanup, err := p.newJS(p.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()
		return nil, fn(js)
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return fmt.Errorf("circuit open: %w", err)
	}
	return err
}

func (p *Publisher) streamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectFilter(p.subject)},
		Retention:  nats.LimitsPolicy,
		MaxAge:     maxAge,
		Duplicates: 2 * time.Minute,
	}
}

// subjectFilter widens "db.bootstrap.outcome" to "db.bootstrap.>" so sibling
// subjects share the stream.
func subjectFilter(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i > 0 {
		return subject[:i] + ".>"
	}
	return subject
}

// provisionStream creates the stream if it does not exist, or updates it if it
// does. nats.ErrStreamNotFound signals "create"; any other error is returned.
func provisionStream(js jsContext, cfg *nats.StreamConfig) error {
	_, err := js.StreamInfo(cfg.Name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, addErr := js.AddStream(cfg); addErr != nil {
			return fmt.Errorf("creating stream %s: %w", cfg.Name, addErr)
		}
	case err != nil:
		return fmt.Errorf("querying stream %s: %w", cfg.Name, err)
	default:
		if _, updErr := js.UpdateStream(cfg); updErr != nil {
			return fmt.Errorf("updating stream %s: %w", cfg.Name, updErr)
		}
	}
	return nil
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("arc-dbboot"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
