package fraud

import (
	"context"
	"testing"
	"time"

	"remit/internal/repositories/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	args := m.Called(ctx, exchange, routingKey, body)
	return args.Error(0)
}

func (m *MockPublisher) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

type MockDetectorMetrics struct {
	mock.Mock
}

func (m *MockDetectorMetrics) MessageProcessed() { m.Called() }
func (m *MockDetectorMetrics) FraudDetected()    { m.Called() }
func (m *MockDetectorMetrics) ProcessingError()  { m.Called() }
func (m *MockDetectorMetrics) DuplicateMessage() { m.Called() }

func newTestCache(t *testing.T) (*cache.CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewCacheService(client, 24*time.Hour), mr
}
