package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/retail-session-scraper/internal/models"
)

type EventType string

const (
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"
)

// RedisClient is the part of the redis client the publisher uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// ProductScrapedPayload is the JSON body of a PRODUCT_SCRAPED event.
type ProductScrapedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	ProductID   string    `json:"product_id"`
	Title       string    `json:"title"`
	Brand       string    `json:"brand,omitempty"`
	URL         string    `json:"url"`
	Price       *float64  `json:"price"`
	Currency    string    `json:"currency,omitempty"`
	Rating      *float64  `json:"rating"`
	ReviewCount int       `json:"review_count,omitempty"`
	Available   bool      `json:"available"`
	Images      []string  `json:"images,omitempty"`
	Source      string    `json:"source"`
}

func NewProductScrapedPayload(p *models.Product) *ProductScrapedPayload {
	return &ProductScrapedPayload{
		EventID:     uuid.New().String(),
		EventType:   string(EventTypeProductScraped),
		Timestamp:   time.Now().UTC(),
		ProductID:   p.ID,
		Title:       p.Title,
		Brand:       p.Brand,
		URL:         p.URL,
		Price:       p.Price,
		Currency:    p.Currency,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		Available:   p.Available,
		Images:      p.Images,
		Source:      "retail-scraper",
	}
}

// StreamPublisher appends scraped products to a Redis stream. Nothing is
// read back; the stream is for downstream consumers.
type StreamPublisher struct {
	redis  RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewStreamPublisher(client RedisClient, stream string, maxLen int64, logger *slog.Logger) *StreamPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPublisher{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "event_publisher", "stream", stream),
	}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return client, nil
}

func (p *StreamPublisher) PublishProduct(ctx context.Context, product *models.Product) error {
	if product == nil {
		return nil
	}
	return p.Publish(ctx, NewProductScrapedPayload(product))
}

func (p *StreamPublisher) Publish(ctx context.Context, payload *ProductScrapedPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"type":       payload.EventType,
			"event_id":   payload.EventID,
			"product_id": payload.ProductID,
			"timestamp":  fmt.Sprintf("%d", payload.Timestamp.UnixNano()),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published",
		"event_id", payload.EventID,
		"product_id", payload.ProductID,
		"stream_id", id)

	return nil
}

func (p *StreamPublisher) Close() error {
	return p.redis.Close()
}
