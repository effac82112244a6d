package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gps_hyperlapse/internal/geo"
	"gps_hyperlapse/internal/hyperlapse"
)

const panoramaKeyPrefix = "hyperlapse:pano:"

// redisPanoramaCache remembers resolved panorama metadata in Redis so reruns
// over the same track skip the search API. Images are cached on disk by the
// wrapped service.
type redisPanoramaCache struct {
	next hyperlapse.PanoramaService
	rdb  *redis.Client
	ttl  time.Duration
}

func openRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func newRedisPanoramaCache(next hyperlapse.PanoramaService, rdb *redis.Client, ttl time.Duration) *redisPanoramaCache {
	return &redisPanoramaCache{next: next, rdb: rdb, ttl: ttl}
}

// panoramaKey rounds to about a meter so samples from repeated runs share
// entries.
func panoramaKey(p geo.Point) string {
	return fmt.Sprintf("%s%.5f,%.5f", panoramaKeyPrefix, p.Lat, p.Lng)
}

func (c *redisPanoramaCache) Resolve(ctx context.Context, p geo.Point) (hyperlapse.Panorama, error) {
	key := panoramaKey(p)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var pano hyperlapse.Panorama
		if err := json.Unmarshal(data, &pano); err == nil {
			return pano, nil
		}
		log.Printf("Dropping unreadable cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("Panorama cache lookup failed: %v", err)
	}

	pano, err := c.next.Resolve(ctx, p)
	if err != nil {
		return pano, err
	}
	if data, err := json.Marshal(pano); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("Panorama cache store failed: %v", err)
		}
	}
	return pano, nil
}

func (c *redisPanoramaCache) FetchImage(ctx context.Context, panoID string) (image.Image, error) {
	return c.next.FetchImage(ctx, panoID)
}
