// Package cache keeps resolved Maps websites in memcached so repeated runs over the same
// listings skip the expensive rendered fetch.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/email-harvester/config"
	"github.com/bradfitz/gomemcache/memcache"
)

type CachedClient interface {
	GetWebsite(mapsURL string) (string, bool)
	SaveWebsite(mapsURL, website string)
	Close()
}

// itemStore is the subset of memcache.Client used here.
type itemStore interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Close() error
}

type MemcachedClient struct {
	client itemStore
	ttl    time.Duration
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) (*MemcachedClient, error) {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("failed to set memcached servers: %w", err)
	}
	client := memcache.NewFromSelector(ss)
	log.Info("pinging the memcached.")
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("connection to the memcached is failed: %w", err)
	}
	log.Info("connected to memcached!")

	return &MemcachedClient{client: client, ttl: cacheConfig.TtlForWebsite, log: log}, nil
}

func (mc *MemcachedClient) GetWebsite(mapsURL string) (string, bool) {
	key := websiteKey(mapsURL)
	item, err := mc.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			mc.log.Warn("failed to read website from cache.", slog.String("key", key),
				slog.String("err", err.Error()))
		}
		return "", false
	}
	var website string
	if err := json.Unmarshal(item.Value, &website); err != nil || website == "" {
		return "", false
	}

	return website, true
}

func (mc *MemcachedClient) SaveWebsite(mapsURL, website string) {
	if website == "" {
		mc.log.Warn("website is empty. Skip saving to cache.")
		return
	}
	key := websiteKey(mapsURL)
	if err := mc.set(key, website, int32(mc.ttl.Seconds())); err != nil {
		mc.log.Error("failed to save website to cache.", slog.String("key", key),
			slog.String("err", err.Error()))
		return
	}
	mc.log.Debug("website saved to cache.")
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	if err := mc.client.Close(); err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func (mc *MemcachedClient) set(key string, value any, expiration int32) error {
	byteValue, err := json.Marshal(value)
	if err != nil {
		return err
	}
	item := &memcache.Item{
		Key:        key,
		Value:      byteValue,
		Expiration: expiration,
	}

	return mc.client.Set(item)
}

func websiteKey(mapsURL string) string {
	return fmt.Sprintf("%s-website", hashURL(strings.TrimSpace(mapsURL)))
}

func hashURL(url string) string {
	hash := sha256.New()
	hash.Write([]byte(url))
	return hex.EncodeToString(hash.Sum(nil))
}
