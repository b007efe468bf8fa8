// Package effectors turns bus events into user-facing notifications.
package effectors

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vthunder/focuswatch/internal/bus"
	"github.com/vthunder/focuswatch/internal/cognitive"
	"github.com/vthunder/focuswatch/internal/logging"
)

// Message is one notification
type Message struct {
	EventID string    // originating event
	Topic   bus.Topic // originating topic
	Text    string
	Short   string // compact form used at reduced UI density
	Prompt  bool   // break prompt expecting an accept/dismiss response
}

// Sender delivers a message and returns its remote id
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// LoadSource supplies the current alert scaling
type LoadSource interface {
	AdjustCognitiveLoad() cognitive.Load
}

// presentationTopics are forwarded to the user
var presentationTopics = []bus.Topic{
	bus.TopicFocusChanged,
	bus.TopicIdleChanged,
	bus.TopicRewardEvent,
	bus.TopicDisplayRewardUI,
	bus.TopicProductivityDegradation,
	bus.TopicNeuralPatternDisruptor,
	bus.TopicMicroBreak,
	bus.TopicBreakScheduled,
	bus.TopicBreakCompliance,
	bus.TopicDistractionProbabilityUpdated,
}

const maxAttempts = 3

type queued struct {
	msg      Message
	attempts int
}

// Notifier queues presentation events and delivers them from a poll loop
type Notifier struct {
	bus          *bus.Bus
	sender       Sender
	load         LoadSource
	pollInterval time.Duration
	log          zerolog.Logger

	mu     sync.Mutex
	queue  []queued
	credit float64 // alert budget, refilled by AlertFrequency per alert

	subs     []bus.SubscriptionID
	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewNotifier creates a notifier. load may be nil.
func NewNotifier(b *bus.Bus, sender Sender, load LoadSource, log zerolog.Logger) *Notifier {
	return &Notifier{
		bus:          b,
		sender:       sender,
		load:         load,
		pollInterval: 250 * time.Millisecond,
		log:          log,
	}
}

// Start subscribes to presentation topics and begins delivery
func (n *Notifier) Start() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.running {
		return
	}
	n.running = true
	n.stopChan = make(chan struct{})
	n.done = make(chan struct{})

	for _, topic := range presentationTopics {
		topic := topic
		n.subs = append(n.subs, n.bus.Subscribe(topic, func(payload any) {
			n.enqueue(topic, payload)
		}))
	}
	go n.pollLoop(n.stopChan, n.done)
	n.log.Info().Int("topics", len(presentationTopics)).Msg("started")
}

// Stop unsubscribes and halts delivery. Queued messages are discarded.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if !n.running {
		return
	}
	for _, id := range n.subs {
		n.bus.Unsubscribe(id)
	}
	n.subs = nil
	close(n.stopChan)
	<-n.done
	n.running = false
}

func (n *Notifier) enqueue(topic bus.Topic, payload any) {
	msg, ok := Format(topic, payload)
	if !ok {
		return
	}
	if !msg.Prompt && !n.allow() {
		n.log.Debug().Str("topic", string(topic)).Msg("alert suppressed by cognitive load")
		return
	}
	if n.reducedDensity() && msg.Short != "" {
		msg.Text = msg.Short
	}

	n.mu.Lock()
	n.queue = append(n.queue, queued{msg: msg})
	n.mu.Unlock()
}

// allow spends alert budget; at AlertFrequency 0.5 every other alert passes
func (n *Notifier) allow() bool {
	freq := 1.0
	if n.load != nil {
		freq = n.load.AdjustCognitiveLoad().AlertFrequency
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.credit += freq
	if n.credit < 1 {
		return false
	}
	n.credit--
	return true
}

func (n *Notifier) reducedDensity() bool {
	return n.load != nil && n.load.AdjustCognitiveLoad().UIDensity < 1
}

func (n *Notifier) pollLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.deliver()
		}
	}
}

// deliver sends every queued message. Failures are retried on the next
// poll unless the error is permanent or attempts run out.
func (n *Notifier) deliver() {
	n.mu.Lock()
	batch := n.queue
	n.queue = nil
	n.mu.Unlock()

	var retry []queued
	for _, q := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := n.sender.Send(ctx, q.msg)
		cancel()
		if err == nil {
			continue
		}

		q.attempts++
		if isNonRetryableError(err) || q.attempts >= maxAttempts {
			n.log.Error().Err(err).Str("topic", string(q.msg.Topic)).Int("attempts", q.attempts).
				Str("text", logging.Truncate(q.msg.Text, 80)).Msg("dropping notification")
			continue
		}
		n.log.Warn().Err(err).Str("topic", string(q.msg.Topic)).Msg("notification failed, will retry")
		retry = append(retry, q)
	}

	if len(retry) > 0 {
		n.mu.Lock()
		n.queue = append(retry, n.queue...)
		n.mu.Unlock()
	}
}

// Pending returns the number of undelivered messages
func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}
