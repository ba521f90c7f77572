package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"textaipro-gateway/proxy/keyrotation/domain"

	"github.com/redis/go-redis/v9"
)

// RedisUsageStats grava contadores de uso em hashes do Redis:
//
//	<prefix>:total              outcome -> n
//	<prefix>:minute:<yyyymmddhhmm> outcome -> n   (expira em ttl)
//	<prefix>:action             <action>:<outcome> -> n
//	<prefix>:key:<index>        outcome -> n
//
// O pool é pequeno, então o contador por índice não tem problema de cardinalidade.
type RedisUsageStats struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas nos buckets por minuto. total/action/key são cumulativos.
	ttl    time.Duration
	bucket string // "minute" (padrão) ou "none"
}

type RedisStatsOption func(*RedisUsageStats)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisUsageStats) {
		if p := strings.Trim(prefix, ": "); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisUsageStats) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisUsageStats) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedisUsageStats(rdb *redis.Client, opts ...RedisStatsOption) *RedisUsageStats {
	s := &RedisUsageStats{
		rdb:    rdb,
		prefix: "textaipro:usage",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisUsageStats) Record(ctx context.Context, ev domain.UsageEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)
	if field == "" {
		field = string(domain.OutcomeOK)
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Action != "" {
		pipe.HIncrBy(ctx, s.prefix+":action", string(ev.Action)+":"+field, 1)
	}

	pipe.HIncrBy(ctx, s.prefix+":key:"+strconv.FormatInt(int64(ev.KeyIndex), 10), field, 1)
	if ev.Retried {
		pipe.HIncrBy(ctx, s.prefix+":total", "retried", 1)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// KeyCounters lê os contadores por índice (usado por `gateway keys status`).
func (s *RedisUsageStats) KeyCounters(ctx context.Context, idx domain.Index) (Counters, error) {
	m, err := s.rdb.HGetAll(ctx, s.prefix+":key:"+strconv.FormatInt(int64(idx), 10)).Result()
	if err != nil {
		return Counters{}, err
	}
	return countersFromHash(m), nil
}

func countersFromHash(m map[string]string) Counters {
	parse := func(k string) int64 {
		n, _ := strconv.ParseInt(m[k], 10, 64)
		return n
	}
	return Counters{
		OK:      parse(string(domain.OutcomeOK)),
		DeadKey: parse(string(domain.OutcomeDeadKey)),
		Error:   parse(string(domain.OutcomeError)),
	}
}
