// Package bus fans accepted edits out to other relay instances over redis
// pub/sub and feeds edits from those instances back into the local relay.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/metrics"
	"github.com/james226/scene-relay/scene"
)

const publishTimeout = 2 * time.Second

// Applier receives edits published by other instances.
type Applier interface {
	ApplyRemote(ctx context.Context, ev scene.EditEvent) error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	// QueueSize bounds edits waiting to be published. Default: 256
	QueueSize int

	// FailureThreshold is the number of consecutive publish failures that
	// opens the circuit breaker. Default: 5
	FailureThreshold uint32

	// BreakerTimeout is how long the breaker stays open. Default: 30s
	BreakerTimeout time.Duration
}

type envelope struct {
	Origin string          `json:"origin"`
	Event  scene.EditEvent `json:"event"`
}

type Redis struct {
	client   *redis.Client
	channel  string
	instance string
	applier  Applier
	out      chan scene.EditEvent
	breaker  *gobreaker.CircuitBreaker[struct{}]
	log      zerolog.Logger
}

func NewRedis(cfg Config, applier Applier) *Redis {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	b := &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel:  cfg.Channel,
		instance: ksuid.New().String(),
		applier:  applier,
		out:      make(chan scene.EditEvent, cfg.QueueSize),
		log:      logging.WithComponent("bus"),
	}

	name := "redis-publish"
	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			b.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return b
}

// SetApplier installs the receiver of remote edits. Call before Serve.
func (b *Redis) SetApplier(a Applier) {
	b.applier = a
}

// InstanceID identifies this relay instance on the channel.
func (b *Redis) InstanceID() string {
	return b.instance
}

// Publish queues ev for other instances without blocking. When the queue is
// full the edit is dropped; local clients have already received it.
func (b *Redis) Publish(ev scene.EditEvent) {
	select {
	case b.out <- ev:
	default:
		metrics.BusMessagesTotal.WithLabelValues("out", "dropped").Inc()
		b.log.Warn().Str("target", ev.Target).Msg("publish queue full, edit not forwarded")
	}
}

// Serve implements suture.Service. It returns when ctx is done or the
// subscription fails.
func (b *Redis) Serve(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info().Str("channel", b.channel).Str("instance", b.instance).Msg("bus subscribed")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.publishLoop(ctx)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("bus subscription closed")
			}
			b.receive(ctx, []byte(msg.Payload))
		}
	}
}

func (b *Redis) String() string {
	return "redis-bus"
}

func (b *Redis) Close() error {
	return b.client.Close()
}

func (b *Redis) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.out:
			b.publish(ctx, ev)
		}
	}
}

func (b *Redis) publish(ctx context.Context, ev scene.EditEvent) {
	payload, err := b.encode(ev)
	if err != nil {
		metrics.BusMessagesTotal.WithLabelValues("out", "failed").Inc()
		b.log.Error().Err(err).Str("target", ev.Target).Msg("failed to encode edit")
		return
	}

	_, err = b.breaker.Execute(func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return struct{}{}, b.client.Publish(pctx, b.channel, payload).Err()
	})
	switch {
	case err == nil:
		metrics.BusMessagesTotal.WithLabelValues("out", "published").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.BusMessagesTotal.WithLabelValues("out", "circuit_open").Inc()
	default:
		metrics.BusMessagesTotal.WithLabelValues("out", "failed").Inc()
		b.log.Warn().Err(err).Str("target", ev.Target).Msg("publish failed")
	}
}

func (b *Redis) receive(ctx context.Context, payload []byte) {
	ev, foreign, err := b.decode(payload)
	if err != nil {
		metrics.BusMessagesTotal.WithLabelValues("in", "malformed").Inc()
		b.log.Warn().Err(err).Msg("dropping malformed bus message")
		return
	}
	if !foreign {
		metrics.BusMessagesTotal.WithLabelValues("in", "echo").Inc()
		return
	}
	if b.applier == nil {
		return
	}

	if err := b.applier.ApplyRemote(ctx, ev); err != nil {
		metrics.BusMessagesTotal.WithLabelValues("in", "rejected").Inc()
		b.log.Debug().Err(err).Str("target", ev.Target).Msg("remote edit not applied")
		return
	}
	metrics.BusMessagesTotal.WithLabelValues("in", "applied").Inc()
}

func (b *Redis) encode(ev scene.EditEvent) ([]byte, error) {
	return json.Marshal(envelope{Origin: b.instance, Event: ev})
}

// decode reports whether the message came from another instance.
func (b *Redis) decode(payload []byte) (scene.EditEvent, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return scene.EditEvent{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Origin == "" {
		return scene.EditEvent{}, false, errors.New("envelope has no origin")
	}
	return env.Event, env.Origin != b.instance, nil
}
