package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"healthai/internal/models"

	"github.com/redis/go-redis/v9"
)

const alertListKey = "alerts"

// RedisCache кэш последних алертов с ограниченным временем жизни
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisCache создает новый Redis кэш и проверяет подключение
func NewRedisCache(ctx context.Context, addr, password string, db int, retention time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheFromClient(client, retention), nil
}

// NewRedisCacheFromClient оборачивает существующий клиент
func NewRedisCacheFromClient(client *redis.Client, retention time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		retention: retention,
	}
}

func alertKey(id string) string {
	return fmt.Sprintf("alert:%s", id)
}

// StoreAlert сохраняет алерт и индексирует его в sorted set по времени
func (r *RedisCache) StoreAlert(ctx context.Context, alert models.Alert) error {
	jsonData, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	key := alertKey(alert.ID)
	cutoff := alert.Timestamp.Add(-r.retention).UnixNano()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, jsonData, r.retention)
	pipe.ZAdd(ctx, alertListKey, redis.Z{Score: float64(alert.Timestamp.UnixNano()), Member: key})
	// Старые ссылки удаляются вместе с истекшими ключами
	pipe.ZRemRangeByScore(ctx, alertListKey, "-inf", fmt.Sprintf("(%d", cutoff))
	pipe.Expire(ctx, alertListKey, r.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// RecentAlerts возвращает последние алерты, новые первыми
func (r *RedisCache) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		return []models.Alert{}, nil
	}

	keys, err := r.client.ZRevRange(ctx, alertListKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerts: %w", err)
	}
	if len(keys) == 0 {
		return []models.Alert{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// ключ истек раньше индекса
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats возвращает статистику пула соединений
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
