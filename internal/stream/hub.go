package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/Auchit011/Vistagram-Application/internal/logging"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix  = "albums:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans album events out to websocket clients. With Redis every replica publishes to and
// receives from the same channels, so a client sees events raised on any replica.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	log     zerolog.Logger
}

type Client struct {
	AlbumID string
	Send    chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		log:     logging.Component("stream"),
	}
	if redisClient == nil {
		return h
	}

	ctx := context.Background()
	pubsub := redisClient.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		h.log.Warn().Err(err).Msg("redis subscribe failed, album events stay local")
		_ = pubsub.Close()
		return h
	}
	h.redis = redisClient
	h.pubsub = pubsub
	go h.forward(pubsub.Channel())
	return h
}

func (h *Hub) Register(albumID string) *Client {
	client := &Client{
		AlbumID: albumID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[albumID] == nil {
		h.clients[albumID] = map[*Client]struct{}{}
	}
	h.clients[albumID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	albumClients, ok := h.clients[client.AlbumID]
	if !ok {
		return
	}
	if _, ok := albumClients[client]; !ok {
		return
	}
	delete(albumClients, client)
	if len(albumClients) == 0 {
		delete(h.clients, client.AlbumID)
	}
	close(client.Send)
}

// Broadcast delivers payload to every subscriber of albumID. Slow clients drop messages.
func (h *Hub) Broadcast(albumID string, payload []byte) {
	h.mu.RLock()
	rc := h.redis
	h.mu.RUnlock()
	if rc != nil {
		err := rc.Publish(context.Background(), redisChannel(albumID), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn().Err(err).Str("album_id", albumID).Msg("redis publish failed, delivering locally")
	}
	h.deliver(albumID, payload)
}

func (h *Hub) deliver(albumID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[albumID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) forward(msgs <-chan *redis.Message) {
	for msg := range msgs {
		albumID := albumIDFromChannel(msg.Channel)
		if albumID == "" {
			continue
		}
		h.deliver(albumID, []byte(msg.Payload))
	}
}

// Close stops the Redis subscription. Local delivery keeps working.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	h.mu.Lock()
	h.redis = nil
	h.mu.Unlock()
	return h.pubsub.Close()
}

func redisChannel(albumID string) string {
	return channelPrefix + albumID + channelSuffix
}

func albumIDFromChannel(ch string) string {
	// albums:{album}:events
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
