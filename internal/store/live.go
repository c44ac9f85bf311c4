package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/RysZx1/Dashbort-monitoring-iot/internal/telemetry"
)

// Klíče ve Valkey. Každé zařízení má vlastní hash (seq + record) s vlastním TTL,
// množina devices slouží jen jako index pro Latest. Hash tag {live} drží všechny klíče
// ve stejném slotu, skript pak funguje i v clusteru.
const (
	liveKeyPrefix  = "telemetry:{live}:device:"
	liveDevicesKey = "telemetry:{live}:devices"
)

func liveDeviceKey(deviceID string) string {
	return liveKeyPrefix + deviceID
}

// putLatest zapíše záznam jen tehdy, když je novější než ten uložený.
// Bez této kontroly by souběžné zápisy mohly přepsat novější hodnotu starší.
var putLatest = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'seq') or '0')
if cur >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'record', ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('EXPIRE', KEYS[1], ttl)
end
redis.call('SADD', KEYS[2], ARGV[4])
return 1
`)

// pruneExpired vyřadí z indexu zařízení, jejichž hash mezitím vypršel. EXISTS se ověřuje
// až ve skriptu, aby souběžný Put, který zařízení právě vrátil, nepřišel o záznam v indexu.
var pruneExpired = redis.NewScript(`
local removed = 0
for i = 2, #ARGV do
	if redis.call('EXISTS', ARGV[1] .. ARGV[i]) == 0 then
		removed = removed + redis.call('SREM', KEYS[1], ARGV[i])
	end
end
return removed
`)

// LiveCache je "Hot Storage" ve Valkey: poslední záznam každého zařízení.
// Zdrojem pravdy zůstává Postgres, cache slouží pro rychlý dashboard (/api/live).
type LiveCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// NewLiveCache - ttl určuje, za jak dlouho zmizí zařízení, která nic neposílají.
func NewLiveCache(rdb redis.UniversalClient, ttl time.Duration) *LiveCache {
	return &LiveCache{rdb: rdb, ttl: ttl}
}

// Put uloží záznam, pokud má vyšší SequenceID než ten aktuální.
// Vrací true, pokud se hodnota opravdu změnila.
func (c *LiveCache) Put(ctx context.Context, rec telemetry.Record) (bool, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("serializace záznamu: %w", err)
	}

	res, err := putLatest.Run(ctx, c.rdb,
		[]string{liveDeviceKey(rec.DeviceID), liveDevicesKey},
		rec.SequenceID, b, int64(c.ttl/time.Second), rec.DeviceID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("chyba update Valkey: %w", err)
	}
	return res == 1, nil
}

// Latest vrátí poslední záznam každého zařízení, seřazeno podle device_id.
// Zařízení, kterým vypršel TTL, se z indexu průběžně odstraní.
func (c *LiveCache) Latest(ctx context.Context) ([]telemetry.Record, error) {
	devices, err := c.rdb.SMembers(ctx, liveDevicesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("chyba čtení z Valkey: %w", err)
	}
	if len(devices) == 0 {
		return []telemetry.Record{}, nil
	}

	cmds := make([]*redis.StringCmd, len(devices))
	_, err = c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range devices {
			cmds[i] = p.HGet(ctx, liveDeviceKey(id), "record")
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("chyba čtení z Valkey: %w", err)
	}

	out := make([]telemetry.Record, 0, len(devices))
	var expired []any
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			expired = append(expired, devices[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chyba čtení z Valkey: %w", err)
		}
		var rec telemetry.Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			// Poškozenou položku přeskočíme, zbytek dat je stále užitečný.
			continue
		}
		out = append(out, rec)
	}

	if len(expired) > 0 {
		// Úklid indexu. Když selže, zkusí se to při dalším čtení.
		args := append([]any{liveKeyPrefix}, expired...)
		pruneExpired.Run(ctx, c.rdb, []string{liveDevicesKey}, args...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}
