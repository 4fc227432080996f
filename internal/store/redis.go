package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tequalsme/hadoop-examples/internal/logging"
)

const DefaultPrefix = "wordcount"

// DB wraps a redis client with the key layout used for word count runs:
//
//	<prefix>:runs                set of run ids that published counters
//	<prefix>:<run id>:counters   hash counter name -> value
//	<prefix>:<name>              hash word -> total, written by the redis sink
type DB struct {
	*redis.Client
	ctx    context.Context
	prefix string
	logger *logging.MLogger
}

func MakeRedisDB(addr, prefix string, logger *logging.MLogger) *DB {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DB{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: "",
			DB:       0,
		}),
		ctx:    context.Background(),
		prefix: prefix,
		logger: logger,
	}
}

// WithContext returns a copy of d issuing its commands under ctx.
func (d *DB) WithContext(ctx context.Context) *DB {
	c := *d
	c.ctx = ctx
	return &c
}

func (d *DB) Ping() error {
	if err := d.Client.Ping(d.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", d.Options().Addr, err)
	}
	return nil
}

func (d *DB) HSet(key string, field string, value interface{}) error {
	err := d.Client.HSet(d.ctx, key, field, value).Err()
	if err != nil {
		d.logger.Errorf("redis hset key %s failed: %v", key, err)
		return err
	}
	return nil
}

func (d *DB) HSetAll(key string, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	err := d.Client.HSet(d.ctx, key, values).Err()
	if err != nil {
		d.logger.Errorf("redis hset %d fields of key %s failed: %v", len(values), key, err)
		return err
	}
	return nil
}

func (d *DB) HGetAll(key string) (map[string]string, error) {
	val, err := d.Client.HGetAll(d.ctx, key).Result()
	if err != nil {
		d.logger.Errorf("redis hgetall key %s failed: %v", key, err)
		return nil, err
	}
	return val, nil
}

func (d *DB) Rename(from, to string) error {
	err := d.Client.Rename(d.ctx, from, to).Err()
	if err != nil {
		d.logger.Errorf("redis rename %s to %s failed: %v", from, to, err)
		return err
	}
	return nil
}

func (d *DB) Del(keys ...string) error {
	err := d.Client.Del(d.ctx, keys...).Err()
	if err != nil {
		d.logger.Errorf("redis del %v failed: %v", keys, err)
		return err
	}
	return nil
}

func (d *DB) SMembers(key string) []string {
	val, err := d.Client.SMembers(d.ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		d.logger.Errorf("redis get members of set %s failed: %v", key, err)
		return nil
	}
	return val
}

// keys //

func (d *DB) RunsKey() string {
	return d.prefix + ":runs"
}

func (d *DB) CountersKeyOfRun(runID string) string {
	return fmt.Sprintf("%s:%s:counters", d.prefix, runID)
}

func (d *DB) OutputKey(name string) string {
	return d.prefix + ":" + name
}

// PublishCounters stores the counters of a run and records the run id.
func (d *DB) PublishCounters(ctx context.Context, runID string, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(counters))
	for name, v := range counters {
		values[name] = v
	}
	_, err := d.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, d.CountersKeyOfRun(runID), values)
		pipe.SAdd(ctx, d.RunsKey(), runID)
		return nil
	})
	if err != nil {
		d.logger.Errorf("redis publish counters of run %s failed: %v", runID, err)
		return err
	}
	return nil
}

// Counters reads back the counters published for a run.
func (d *DB) Counters(runID string) (map[string]string, error) {
	return d.HGetAll(d.CountersKeyOfRun(runID))
}
