// Package status publishes deployment-status and advice events to Redis
// Pub/Sub so an external dashboard can tail a live feed of what the
// engine is doing. Observability only; nothing in the trading pipeline
// consults it.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"sdexalgo/internal/metrics"
	"sdexalgo/internal/model"
)

const (
	channelDeploymentStatus = "trading:deployment_status"
	channelAdvice           = "trading:advice"
)

// Channels returns the Pub/Sub channel names the Publisher writes to, for
// subscribers like cmd/statusserver.
func Channels() []string {
	return []string{channelDeploymentStatus, channelAdvice}
}

// Config configures the Publisher. An empty Addr means "no Redis
// configured"; New then returns a Publisher that is a safe no-op.
type Config struct {
	Addr     string
	Password string
}

// Publisher fans deployment status transitions and advice events out to
// Redis Pub/Sub channels. Publishes run through a circuit breaker so a
// dead Redis degrades to dropped events instead of a timeout per event.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New dials and pings Redis if cfg.Addr is set; otherwise it returns a
// Publisher whose Run/Publish* methods are no-ops.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	if cfg.Addr == "" {
		return &Publisher{log: log}, nil
	}
	breaker := NewCircuitBreaker(5, 10*time.Second)

	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("status: publisher connected to redis", "addr", cfg.Addr)
	return &Publisher{client: client, breaker: breaker, log: log}, nil
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (p *Publisher) SetMetrics(m *metrics.Metrics) { p.metrics = m }

// Client exposes the underlying client for health checks. Nil when no
// Redis address was configured.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Run drains statusCh and adviceCh until ctx is cancelled or both close,
// publishing each event as JSON. A nil client still drains both channels
// so upstream senders never block on a disabled publisher.
func (p *Publisher) Run(ctx context.Context, statusCh <-chan model.Deployment, adviceCh <-chan model.TradeAdvice) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-statusCh:
			if !ok {
				statusCh = nil
				if adviceCh == nil {
					return
				}
				continue
			}
			p.publish(ctx, channelDeploymentStatus, d)
		case a, ok := <-adviceCh:
			if !ok {
				adviceCh = nil
				if statusCh == nil {
					return
				}
				continue
			}
			p.publish(ctx, channelAdvice, a)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) {
	if p.client == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		p.log.Error("status: marshal event failed", "channel", channel, "err", err)
		return
	}
	err = p.breaker.Execute(func() error {
		return p.client.Publish(ctx, channel, data).Err()
	})
	if err != nil {
		p.metrics.RedisPublishError()
		p.log.Error("status: publish failed", "channel", channel, "err", err)
	}
}
