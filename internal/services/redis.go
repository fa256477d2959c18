package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

const disabledDatesTTL = 10 * time.Minute

// InitRedis initializes the Redis client
func InitRedis() error {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://redis:6379" // Default Redis address for Docker
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %v", err)
	}

	RedisClient = redis.NewClient(opt)

	// Test the connection
	ctx := context.Background()
	_, err = RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return nil
}

func disabledDatesKey(propertyID uint) string {
	return fmt.Sprintf("property:disabled-dates:%d", propertyID)
}

// GetCachedDisabledDates returns the cached calendar for a property. The
// second return is false on a miss or when Redis is not configured.
func GetCachedDisabledDates(ctx context.Context, propertyID uint) ([]string, bool) {
	if RedisClient == nil {
		return nil, false
	}

	data, err := RedisClient.Get(ctx, disabledDatesKey(propertyID)).Result()
	if err != nil {
		return nil, false
	}

	var dates []string
	if err := json.Unmarshal([]byte(data), &dates); err != nil {
		return nil, false
	}

	return dates, true
}

// CacheDisabledDates stores the computed calendar for a property
func CacheDisabledDates(ctx context.Context, propertyID uint, dates []string) {
	if RedisClient == nil {
		return
	}

	data, err := json.Marshal(dates)
	if err != nil {
		return
	}

	RedisClient.Set(ctx, disabledDatesKey(propertyID), data, disabledDatesTTL)
}

// InvalidateDisabledDates drops the cached calendar after a booking on the
// property changes state
func InvalidateDisabledDates(ctx context.Context, propertyID uint) {
	if RedisClient == nil {
		return
	}

	RedisClient.Del(ctx, disabledDatesKey(propertyID))
}
