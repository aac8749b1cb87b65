package mapper

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/metrics"
)

// cachedConnection is the Redis-serializable form of Connection, mirroring
// the read-through cache the session repository keeps for resolved
// container locations.
type cachedConnection struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	URL       string `json:"url"`
	Kind      int    `json:"kind"`
	PoolID    string `json:"poolId,omitempty"`
	SlotIndex int    `json:"slotIndex,omitempty"`
	Container string `json:"containerName,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

func connectionCacheKey(instanceID string) string {
	return "conn:" + instanceID + ":location"
}

func (m *Mapper) cacheGet(ctx context.Context, instanceID string) (Connection, bool) {
	if m.redis == nil {
		return Connection{}, false
	}
	val, err := m.redis.Get(ctx, connectionCacheKey(instanceID)).Result()
	if err != nil {
		metrics.ConnectionCacheMisses.Inc()
		return Connection{}, false
	}
	var c cachedConnection
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		metrics.ConnectionCacheMisses.Inc()
		return Connection{}, false
	}
	metrics.ConnectionCacheHits.Inc()
	conn := Connection{
		Host:     c.Host,
		Port:     c.Port,
		URL:      c.URL,
		Username: c.Username,
		Password: c.Password,
	}
	switch PlacementKind(c.Kind) {
	case PlacementPooled:
		conn.Placement = NewPooled(c.PoolID, c.SlotIndex)
	case PlacementDedicated:
		conn.Placement = NewDedicated(c.Container)
	}
	return conn, true
}

func (m *Mapper) cacheSet(ctx context.Context, instanceID string, conn Connection, ttl time.Duration) {
	if m.redis == nil {
		return
	}
	c := cachedConnection{
		Host:     conn.Host,
		Port:     conn.Port,
		URL:      conn.URL,
		Kind:     int(conn.Placement.Kind()),
		Username: conn.Username,
		Password: conn.Password,
	}
	if pooled, ok := conn.Placement.Pooled(); ok {
		c.PoolID = pooled.PoolID
		c.SlotIndex = pooled.SlotIndex
	}
	if dedicated, ok := conn.Placement.Dedicated(); ok {
		c.Container = dedicated.ContainerName
	}
	if data, err := json.Marshal(c); err == nil {
		_ = m.redis.Set(ctx, connectionCacheKey(instanceID), data, ttl).Err()
	}
}

func (m *Mapper) cacheInvalidate(ctx context.Context, instanceID string) {
	if m.redis == nil {
		return
	}
	_ = m.redis.Del(ctx, connectionCacheKey(instanceID)).Err()
}

// RedisFromAddr is a small convenience constructor for a go-redis client
// from an address, password and DB number.
func RedisFromAddr(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}
