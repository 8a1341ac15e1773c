package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/courtdata/fastbreak/pkg/config"
	"github.com/courtdata/fastbreak/pkg/logger"
	"github.com/courtdata/fastbreak/pkg/metrics"
)

// RouterConfig holds configuration for the event router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish on close.
	CloseTimeout time.Duration

	// QueueSize is the per-subscriber channel buffer.
	QueueSize int64

	// Retry configuration for failing handlers.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonTopic receives messages that exhausted their retries.
	PoisonTopic string
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		QueueSize:            64,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		PoisonTopic:          "events.poison",
	}
}

// RouterConfigFrom maps application config onto router defaults.
func RouterConfigFrom(cfg *config.Config) RouterConfig {
	rc := DefaultRouterConfig()
	if cfg.Events.QueueSize > 0 {
		rc.QueueSize = int64(cfg.Events.QueueSize)
	}
	if cfg.Events.MaxRetries > 0 {
		rc.RetryMaxRetries = cfg.Events.MaxRetries
	}
	if cfg.Events.PoisonTopic != "" {
		rc.PoisonTopic = cfg.Events.PoisonTopic
	}
	return rc
}

// HandlerFunc processes one object event. Returning an error triggers
// retry with backoff; exhausting retries parks the message on the
// poison topic.
type HandlerFunc func(ctx context.Context, evt ObjectEvent) error

// Publisher emits object events. *Router satisfies it; writers depend
// on this narrow interface so tests can capture published events.
type Publisher interface {
	Publish(ctx context.Context, evt ObjectEvent) error
}

// Router fans object-creation events out to registered handlers over an
// in-process pub/sub. Every handler receives every event and drops the
// keys outside its filter, matching how bucket notifications behave.
type Router struct {
	router *message.Router
	pubsub *gochannel.GoChannel
	config RouterConfig
}

// NewRouter builds the router with panic recovery, retry, and poison
// queue middleware installed.
func NewRouter(rc RouterConfig, log *logger.Logger) (*Router, error) {
	wmLogger := NewWatermillLogger(log)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: rc.QueueSize,
	}, wmLogger)

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: rc.CloseTimeout,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	wmRouter.AddPlugin(plugin.SignalsHandler)

	// First added wraps outermost: poison queue catches errors that
	// survive retry, recoverer turns handler panics into retryable
	// errors.
	if rc.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(pubsub, rc.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	retry := middleware.Retry{
		MaxRetries:      rc.RetryMaxRetries,
		InitialInterval: rc.RetryInitialInterval,
		MaxInterval:     rc.RetryMaxInterval,
		Multiplier:      rc.RetryMultiplier,
		Logger:          wmLogger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	wmRouter.AddMiddleware(middleware.Recoverer)

	return &Router{
		router: wmRouter,
		pubsub: pubsub,
		config: rc,
	}, nil
}

// Publish emits an object event to every registered handler.
func (r *Router) Publish(ctx context.Context, evt ObjectEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if evt.SchemaVersion == 0 {
		evt.SchemaVersion = EventSchemaVersion
	}
	if evt.EventTime.IsZero() {
		evt.EventTime = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		return err
	}

	payload, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := r.pubsub.Publish(TopicObjectCreated, msg); err != nil {
		return fmt.Errorf("publish event for %s: %w", evt.Key, err)
	}

	metrics.RecordEventPublished()
	return nil
}

// AddObjectHandler subscribes a named handler to object events matching
// filter. Non-matching events are acknowledged and dropped.
func (r *Router) AddObjectHandler(name string, filter Filter, h HandlerFunc) {
	r.router.AddConsumerHandler(
		name,
		TopicObjectCreated,
		r.pubsub,
		func(msg *message.Message) error {
			evt, err := UnmarshalObjectEvent(msg.Payload)
			if err != nil {
				// A payload that cannot parse will never parse;
				// ack it instead of poisoning the queue forever.
				metrics.RecordEventHandled(name, "malformed")
				return nil
			}

			if !filter.Matches(evt.Key) {
				return nil
			}

			if err := h(msg.Context(), evt); err != nil {
				metrics.RecordEventHandled(name, "error")
				return err
			}
			metrics.RecordEventHandled(name, "ok")
			return nil
		},
	)
}

// PoisonSubscriber exposes the poison topic for draining and inspection.
func (r *Router) PoisonSubscriber() message.Subscriber {
	return r.pubsub
}

// PoisonTopic names the topic exhausted messages land on.
func (r *Router) PoisonTopic() string {
	return r.config.PoisonTopic
}

// Run starts the router and blocks until the context is canceled.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// RunAsync starts the router in the background and returns once it is
// consuming, so callers can publish without racing the subscription.
func (r *Router) RunAsync(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.router.Run(ctx)
	}()
	<-r.router.Running()
	return errCh
}

// Running returns a channel that closes once handlers are attached and
// consuming.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router and the underlying pub/sub.
func (r *Router) Close() error {
	if err := r.router.Close(); err != nil {
		return err
	}
	return r.pubsub.Close()
}
