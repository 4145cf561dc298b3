package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/taxi-dispatch/internal/models"
)

// RedisMirror keeps a live copy of driver positions in Redis GEO
// structures. It is maintained by the Kafka consumer and read by
// operational dashboards; the durable store stays the source of truth
// for the dispatch core.
type RedisMirror struct {
	client *redis.Client
	key    string
}

func NewRedisMirror(addr, password, key string) *RedisMirror {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisMirror{client: c, key: key}
}

func (r *RedisMirror) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisMirror) Close() error { return r.client.Close() }

func (r *RedisMirror) Upsert(ctx context.Context, loc *models.DriverLocation) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: loc.Loc.Lon,
		Latitude:  loc.Loc.Lat,
		Name:      loc.DriverID,
	}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(loc.DriverID), map[string]interface{}{
		"available": strconv.FormatBool(loc.Available),
		"updated":   loc.UpdatedAt.Format(time.RFC3339),
	}).Err()
}

func (r *RedisMirror) SetAvailability(ctx context.Context, driverID string, available bool) error {
	return r.client.HSet(ctx, metaKey(driverID), "available", strconv.FormatBool(available)).Err()
}

func metaKey(id string) string { return "driver:meta:" + id }
