package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/retail-session-scraper/internal/models"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestStreamPublisher_PublishProduct(t *testing.T) {
	ctx := context.Background()
	price := 29.99

	product := models.NewProduct("B0AAAAAAA1")
	product.Title = "Blue Kettle"
	product.URL = "https://shop.test/dp/B0AAAAAAA1"
	product.Price = &price
	product.Currency = "EUR"

	t.Run("appends the product to the stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewStreamPublisher(mockRedis, "stream:retail:products", 1000, slog.Default())

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values, ok := args.Values.(map[string]interface{})
			if !ok || args.Stream != "stream:retail:products" || !args.Approx || args.MaxLen != 1000 {
				return false
			}
			if values["type"] != string(EventTypeProductScraped) || values["product_id"] != "B0AAAAAAA1" {
				return false
			}

			var payload ProductScrapedPayload
			if err := json.Unmarshal([]byte(values["data"].(string)), &payload); err != nil {
				return false
			}
			return payload.Title == "Blue Kettle" && payload.Price != nil && *payload.Price == price && payload.EventID != ""
		})).Return(nil)

		err := publisher.PublishProduct(ctx, product)

		require.NoError(t, err)
		mockRedis.AssertExpectations(t)
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewStreamPublisher(mockRedis, "stream:retail:products", 0, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.MaxLen == 0 && !args.Approx
		})).Return(errors.New("connection refused"))

		err := publisher.PublishProduct(ctx, product)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		mockRedis.AssertExpectations(t)
	})

	t.Run("nil product is ignored", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		publisher := NewStreamPublisher(mockRedis, "stream:retail:products", 0, nil)

		require.NoError(t, publisher.PublishProduct(ctx, nil))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestNewProductScrapedPayload(t *testing.T) {
	product := models.NewProduct("B0AAAAAAA1")
	product.Title = "Blue Kettle"

	payload := NewProductScrapedPayload(product)

	assert.Equal(t, string(EventTypeProductScraped), payload.EventType)
	assert.Equal(t, "B0AAAAAAA1", payload.ProductID)
	assert.Nil(t, payload.Price)
	assert.NotEmpty(t, payload.EventID)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestStreamPublisher_Close(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("Close").Return(nil)

	publisher := NewStreamPublisher(mockRedis, "s", 0, nil)

	require.NoError(t, publisher.Close())
	mockRedis.AssertExpectations(t)
}
