package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/model"
)

// Handler receives the user id and raw payload of a bus message
type Handler func(userID string, payload json.RawMessage)

// Handlers groups typed callbacks for the three lifecycle channels. Nil
// entries are not subscribed.
type Handlers struct {
	OnStarted   func(userID string, p model.GenerationStartedPayload)
	OnCompleted func(userID string, p model.GenerationCompletedPayload)
	OnFailed    func(userID string, p model.GenerationFailedPayload)
}

// Bus fans lifecycle events out across processes over Redis pub/sub.
// Publishing and subscribing use separate connections because a Redis
// connection in subscribe mode cannot issue other commands.
type Bus struct {
	opts    *redis.Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	publisher  *redis.Client
	subscriber *redis.Client
	pubsub     *redis.PubSub
	handlers   map[string]Handler
	done       chan struct{}
	closed     bool
}

// NewBus creates a bus; no connection is made until Initialize
func NewBus(opts *redis.Options, log *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		opts:     opts,
		log:      log.With("component", "pubsub"),
		metrics:  m,
		handlers: make(map[string]Handler),
	}
}

// Initialize connects the publisher and subscriber clients
func (b *Bus) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.publisher != nil {
		return nil
	}

	pub := redis.NewClient(b.opts)
	if err := pub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		return fmt.Errorf("failed to connect publisher: %w", err)
	}

	sub := redis.NewClient(b.opts)
	if err := sub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return fmt.Errorf("failed to connect subscriber: %w", err)
	}

	b.publisher = pub
	b.subscriber = sub
	b.closed = false
	b.log.Info("Event bus initialized", "addr", b.opts.Addr)
	return nil
}

// Publish sends {userId, payload} on channel. Failures are logged and
// returned as *model.PublishError; callers treat them as non-fatal.
func (b *Bus) Publish(ctx context.Context, channel, userID string, payload interface{}) error {
	b.mu.Lock()
	pub := b.publisher
	b.mu.Unlock()

	err := b.publish(ctx, pub, channel, userID, payload)
	b.metrics.EventPublished(channel, err)
	if err != nil {
		b.log.Error("Failed to publish event", "channel", channel, "userId", userID, "error", err)
		return &model.PublishError{Channel: channel, Err: err}
	}
	b.log.Debug("Published event", "channel", channel, "userId", userID)
	return nil
}

func (b *Bus) publish(ctx context.Context, pub *redis.Client, channel, userID string, payload interface{}) error {
	if pub == nil {
		return model.ErrBusNotInitialized
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg, err := json.Marshal(model.EventMessage{UserID: userID, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return pub.Publish(ctx, channel, msg).Err()
}

// Subscribe registers handler for channel, replacing any previous handler
func (b *Bus) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscriber == nil {
		return model.ErrBusNotInitialized
	}

	if b.pubsub == nil {
		b.pubsub = b.subscriber.Subscribe(ctx, channel)
		// Wait for the subscription to be confirmed
		if _, err := b.pubsub.Receive(ctx); err != nil {
			_ = b.pubsub.Close()
			b.pubsub = nil
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		b.done = make(chan struct{})
		go b.listen(b.pubsub.Channel(), b.done)
	} else if _, exists := b.handlers[channel]; !exists {
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
	}

	b.handlers[channel] = handler
	b.log.Info("Subscribed to channel", "channel", channel)
	return nil
}

// SubscribeToAll subscribes the non-nil handlers to their lifecycle channels
func (b *Bus) SubscribeToAll(ctx context.Context, h Handlers) error {
	if h.OnStarted != nil {
		if err := b.Subscribe(ctx, model.EventGenerationStarted, typed(b, h.OnStarted)); err != nil {
			return err
		}
	}
	if h.OnCompleted != nil {
		if err := b.Subscribe(ctx, model.EventGenerationCompleted, typed(b, h.OnCompleted)); err != nil {
			return err
		}
	}
	if h.OnFailed != nil {
		if err := b.Subscribe(ctx, model.EventGenerationFailed, typed(b, h.OnFailed)); err != nil {
			return err
		}
	}
	return nil
}

func typed[T any](b *Bus, fn func(string, T)) Handler {
	return func(userID string, raw json.RawMessage) {
		var p T
		if err := json.Unmarshal(raw, &p); err != nil {
			b.log.Warn("Dropping event with malformed payload", "userId", userID, "error", err)
			return
		}
		fn(userID, p)
	}
}

func (b *Bus) listen(ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		b.dispatch(msg.Channel, []byte(msg.Payload))
	}
}

// dispatch decodes one message and runs the channel's handler
func (b *Bus) dispatch(channel string, data []byte) {
	b.mu.Lock()
	handler := b.handlers[channel]
	b.mu.Unlock()

	if handler == nil {
		return
	}

	var msg model.EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Warn("Dropping malformed event", "channel", channel, "error", err)
		return
	}
	if msg.UserID == "" || len(msg.Payload) == 0 {
		b.log.Warn("Dropping event without userId or payload", "channel", channel)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked", "channel", channel, "panic", r)
		}
	}()
	handler(msg.UserID, msg.Payload)
}

// Shutdown closes both connections. Safe to call more than once and before
// Initialize.
func (b *Bus) Shutdown() error {
	if b == nil {
		return nil
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var errs []error
	ps, done := b.pubsub, b.done
	if ps != nil {
		errs = append(errs, ps.Close())
	}
	if b.subscriber != nil {
		errs = append(errs, b.subscriber.Close())
	}
	if b.publisher != nil {
		errs = append(errs, b.publisher.Close())
	}
	b.pubsub = nil
	b.subscriber = nil
	b.publisher = nil
	b.handlers = make(map[string]Handler)
	b.mu.Unlock()

	if done != nil {
		<-done
	}
	b.log.Info("Event bus shut down")
	return errors.Join(errs...)
}
