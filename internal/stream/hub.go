// Package stream fans placed orders out to live subscribers.
package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"instabot-trader/internal/ids"
	"instabot-trader/internal/models"
)

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("stream hub closed")

// Journal is the order store the hub sits in front of.
type Journal interface {
	Append(ctx context.Context, rec models.OrderRecord) error
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	// SlowConsumerDropThreshold is the number of consecutive drops before logging.
	SlowConsumerDropThreshold int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SubscriberBufferSize:      100,
		SlowConsumerDropThreshold: 10,
	}
}

// Hub records orders in the next journal and broadcasts them to
// subscribers. A subscriber that falls behind loses orders rather than
// holding up trading.
type Hub struct {
	config HubConfig
	next   Journal
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	metricsMu sync.Mutex
	published uint64
	dropped   uint64
}

// Subscriber is one live listener.
type Subscriber struct {
	ID string
	// Exchange limits the subscription to one exchange; empty means all.
	Exchange     string
	Channel      chan models.OrderRecord
	DroppedCount int
	CreatedAt    time.Time
}

// HubMetrics is a snapshot of hub activity.
type HubMetrics struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// NewHub creates a hub in front of next, which may be nil.
func NewHub(next Journal, config HubConfig, logger zerolog.Logger) *Hub {
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = DefaultHubConfig().SubscriberBufferSize
	}
	if config.SlowConsumerDropThreshold <= 0 {
		config.SlowConsumerDropThreshold = DefaultHubConfig().SlowConsumerDropThreshold
	}
	return &Hub{
		config:      config,
		next:        next,
		logger:      logger.With().Str("component", "stream").Logger(),
		subscribers: make(map[string]*Subscriber),
	}
}

// Append records rec in the next journal and publishes it. The order is
// published even when the journal fails.
func (h *Hub) Append(ctx context.Context, rec models.OrderRecord) error {
	var err error
	if h.next != nil {
		err = h.next.Append(ctx, rec)
	}
	h.Publish(rec)
	return err
}

// Publish sends rec to every matching subscriber without blocking.
func (h *Hub) Publish(rec models.OrderRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sent, dropped uint64
	for _, sub := range h.subscribers {
		if sub.Exchange != "" && !strings.EqualFold(sub.Exchange, rec.Exchange) {
			continue
		}
		select {
		case sub.Channel <- rec:
			sub.DroppedCount = 0
			sent++
		default:
			sub.DroppedCount++
			dropped++
			if sub.DroppedCount == h.config.SlowConsumerDropThreshold {
				h.logger.Warn().Str("subscriber", sub.ID).Int("dropped", sub.DroppedCount).Msg("Slow order stream consumer")
			}
		}
	}

	h.metricsMu.Lock()
	h.published += sent
	h.dropped += dropped
	h.metricsMu.Unlock()
}

// Subscribe registers a listener for orders on exchange, or on every
// exchange when it is empty. The channel is closed when ctx is done or
// the hub closes.
func (h *Hub) Subscribe(ctx context.Context, exchange string) (<-chan models.OrderRecord, error) {
	sub := &Subscriber{
		ID:        ids.New(),
		Exchange:  exchange,
		Channel:   make(chan models.OrderRecord, h.config.SubscriberBufferSize),
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subscribers[sub.ID] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(sub.ID)
	}()
	return sub.Channel, nil
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.Channel)
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Metrics returns the hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	m := HubMetrics{Published: h.published, Dropped: h.dropped}
	h.metricsMu.Unlock()
	m.Subscribers = h.SubscriberCount()
	return m
}

// Close ends every subscription. Orders appended afterwards still reach
// the journal.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.Channel)
	}
}
