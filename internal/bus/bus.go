// Package bus provides the in-process publish/subscribe event bus that
// connects the focus state machine to its analytics engines.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/vthunder/focuswatch/internal/telemetry"
)

// Topic names an event stream. Topics are not validated.
type Topic string

const (
	// Focus state machine
	TopicFocusChanged       Topic = "FocusChanged"
	TopicIdleChanged        Topic = "IdleChanged"
	TopicApplicationChanged Topic = "ApplicationChanged"

	// Behavioral analytics
	TopicRewardEvent             Topic = "RewardEvent"
	TopicDisplayRewardUI         Topic = "displayRewardUI"
	TopicProductivityDegradation Topic = "ProductivityDegradation"

	// Cognitive load and breaks
	TopicNeuralPatternDisruptor Topic = "NeuralPatternDisruptor"
	TopicMicroBreak             Topic = "MicroBreak"
	TopicComplianceTracking     Topic = "ComplianceTracking"
	TopicBreakScheduled         Topic = "BreakScheduled"
	TopicBreakAccepted          Topic = "BreakAccepted"
	TopicBreakDismissed         Topic = "BreakDismissed"
	TopicSkippedBreak           Topic = "SkippedBreak"
	TopicBreakCompliance        Topic = "BreakCompliance"

	// Inference and timers
	TopicDistractionProbabilityUpdated Topic = "DistractionProbabilityUpdated"
	TopicFocusTimerTick                Topic = "FocusTimerTick"
)

// Handler receives a published payload
type Handler func(payload any)

// SubscriptionID identifies one Subscribe call
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Bus delivers payloads synchronously, on the publisher's goroutine, to every
// handler registered for the topic at publish time, in registration order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	topics map[SubscriptionID]Topic
	nextID SubscriptionID

	log       zerolog.Logger
	published metric.Int64Counter
}

// New creates an empty bus
func New(log zerolog.Logger) *Bus {
	b := &Bus{
		subs:   make(map[Topic][]subscription),
		topics: make(map[SubscriptionID]Topic),
		log:    log,
	}

	counter, err := telemetry.Meter("github.com/vthunder/focuswatch/bus").Int64Counter(
		"focuswatch.bus.published",
		metric.WithDescription("Events published on the bus"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("bus metrics disabled")
		b.published = noop.Int64Counter{}
	} else {
		b.published = counter
	}
	return b
}

// Subscribe registers handler for topic and returns its subscription id
func (b *Bus) Subscribe(topic Topic, handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.topics[id] = topic
	return id
}

// Unsubscribe removes a subscription. Returns false if the id is unknown.
// A dispatch already in progress still reaches the removed handler.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.topics[id]
	if !ok {
		return false
	}
	delete(b.topics, id)

	old := b.subs[topic]
	kept := make([]subscription, 0, len(old))
	for _, s := range old {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, topic)
	} else {
		b.subs[topic] = kept
	}
	return true
}

// Publish delivers payload to every current subscriber of topic.
// A panicking handler is logged and skipped; delivery continues.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.subs[topic]))
	copy(handlers, b.subs[topic])
	b.mu.RUnlock()

	b.published.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", string(topic))))

	for _, s := range handlers {
		b.dispatch(topic, s, payload)
	}
}

func (b *Bus) dispatch(topic Topic, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("topic", string(topic)).
				Uint64("subscription", uint64(s.id)).
				Str("panic", fmt.Sprint(r)).
				Msg("handler panicked")
		}
	}()
	s.handler(payload)
}

// Subscribers returns the number of handlers registered for topic
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// On subscribes a typed handler. Payloads of another type are logged and dropped.
func On[T any](b *Bus, topic Topic, fn func(T)) SubscriptionID {
	return b.Subscribe(topic, func(payload any) {
		v, ok := payload.(T)
		if !ok {
			b.log.Warn().
				Str("topic", string(topic)).
				Str("payload", fmt.Sprintf("%T", payload)).
				Msg("unexpected payload type")
			return
		}
		fn(v)
	})
}
