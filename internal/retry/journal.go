package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Journal stores snapshots of the registry.
type Journal interface {
	Save(ctx context.Context, entries []Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// DefaultKey is the redis key used when RedisJournal.Key is empty.
const DefaultKey = "ferry:retry"

// RedisJournal keeps the registry in a redis list, one JSON entry per
// element, in insertion order.
type RedisJournal struct {
	client *redis.Client
	key    string
}

// RedisOptions configures NewRedisJournal.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Key holds the list. Default: ferry:retry
	Key string
}

// NewRedisJournal connects to redis and checks the connection.
func NewRedisJournal(ctx context.Context, opts RedisOptions) (*RedisJournal, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("retry: connect to redis at %s: %w", opts.Addr, err)
	}

	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	return &RedisJournal{client: client, key: key}, nil
}

// Save replaces the stored snapshot atomically.
func (j *RedisJournal) Save(ctx context.Context, entries []Entry) error {
	values := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("retry: marshal entry %s: %w", e.TaskID, err)
		}
		values = append(values, data)
	}

	pipe := j.client.TxPipeline()
	pipe.Del(ctx, j.key)
	if len(values) > 0 {
		pipe.RPush(ctx, j.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry: save journal: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. Entries that fail to decode are skipped.
func (j *RedisJournal) Load(ctx context.Context) ([]Entry, error) {
	values, err := j.client.LRange(ctx, j.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("retry: load journal: %w", err)
	}

	out := make([]Entry, 0, len(values))
	for _, v := range values {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"key":      j.key,
				"error":    err.Error(),
			}).Warn("Skipping corrupt retry entry")
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Close closes the redis connection.
func (j *RedisJournal) Close() error {
	return j.client.Close()
}

// Persist saves a snapshot of c to j after every mutation. Save errors are
// logged. Call the returned function to stop.
func Persist(ctx context.Context, c *Coordinator, j Journal) func() {
	// Snapshot and save under one lock so an older snapshot never lands
	// after a newer one.
	var mu sync.Mutex
	id := c.Subscribe(func() {
		mu.Lock()
		defer mu.Unlock()
		if err := j.Save(ctx, c.GetFiles()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Persist",
				"error":    err.Error(),
			}).Error("Failed to save retry journal")
		}
	})
	return func() { c.Unsubscribe(id) }
}

// Restore loads the journal into c. Restored entries are marked failed,
// since a retry that was running when the journal was written did not finish.
func Restore(ctx context.Context, c *Coordinator, j Journal) error {
	entries, err := j.Load(ctx)
	if err != nil {
		return err
	}
	c.AddFiles(entries)
	return nil
}
