package changefeed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"trektrace/internal/util"
)

const (
	channelPrefix  = "trektrace:hike:"
	channelSuffix  = ":changes"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans out "hike changed" notifications to local subscribers and, when a
// Redis client is configured, to every other process sharing that Redis.
// Delivery is at-least-once and coalesced: a subscriber that has not drained
// its channel yet sees one pending notification, not one per write.
type Hub struct {
	redis  *redis.Client
	origin string
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}

	pubsub *redis.PubSub
	done   chan struct{}
}

// Subscription receives a signal on C whenever its hike changes.
type Subscription struct {
	HikeID string
	C      <-chan struct{}

	ch   chan struct{}
	once sync.Once
}

type message struct {
	Origin string    `json:"origin"`
	HikeID string    `json:"hike_id"`
	At     time.Time `json:"at"`
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		redis:  redisClient,
		origin: util.ShortUUID(),
		logger: logger.Named("changefeed"),
		subs:   map[string]map[*Subscription]struct{}{},
		done:   make(chan struct{}),
	}

	if redisClient == nil {
		close(h.done)
		return h
	}

	ctx := context.Background()
	h.pubsub = redisClient.PSubscribe(ctx, channelPattern)
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := h.pubsub.Receive(ctx); err != nil {
		h.logger.Warn("redis change feed unavailable", zap.Error(err))
	}
	go h.subscribeRedis()
	return h
}

func (h *Hub) Subscribe(hikeID string) *Subscription {
	ch := make(chan struct{}, 1)
	sub := &Subscription{HikeID: hikeID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[hikeID] == nil {
		h.subs[hikeID] = map[*Subscription]struct{}{}
	}
	h.subs[hikeID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if hikeSubs, ok := h.subs[sub.HikeID]; ok {
		delete(hikeSubs, sub)
		if len(hikeSubs) == 0 {
			delete(h.subs, sub.HikeID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

// SubscriberCount returns the number of live subscriptions for hikeID.
func (h *Hub) SubscriberCount(hikeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hikeID])
}

// Publish signals that hikeID changed.
func (h *Hub) Publish(ctx context.Context, hikeID string) {
	h.notifyLocal(hikeID)

	if h.redis == nil {
		return
	}
	payload, err := json.Marshal(message{Origin: h.origin, HikeID: hikeID, At: time.Now().UTC()})
	if err != nil {
		h.logger.Error("encode change notification", zap.Error(err))
		return
	}
	if err := h.redis.Publish(ctx, redisChannel(hikeID), payload).Err(); err != nil {
		h.logger.Warn("redis publish failed", zap.String("hike_id", hikeID), zap.Error(err))
	}
}

// Close stops the Redis listener. Local subscriptions keep working.
func (h *Hub) Close() {
	if h.pubsub != nil {
		if err := h.pubsub.Close(); err != nil {
			h.logger.Warn("close redis subscription", zap.Error(err))
		}
	}
	<-h.done
}

func (h *Hub) notifyLocal(hikeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[hikeID] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	defer close(h.done)

	for msg := range h.pubsub.Channel() {
		var m message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			h.logger.Warn("malformed change notification", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		if m.Origin == h.origin {
			continue
		}
		hikeID := m.HikeID
		if hikeID == "" {
			hikeID = hikeIDFromChannel(msg.Channel)
		}
		if hikeID != "" {
			h.notifyLocal(hikeID)
		}
	}
}

func redisChannel(hikeID string) string {
	return channelPrefix + hikeID + channelSuffix
}

func hikeIDFromChannel(ch string) string {
	// trektrace:hike:{id}:changes
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
