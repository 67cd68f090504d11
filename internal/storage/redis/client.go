package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/storage"
)

const (
	// InvalidateChannel — pub/sub канал, через который все инстансы API узнают об изменениях.
	InvalidateChannel = "live:invalidate"
	cachePrefix       = "cache:"
	tagPrefix         = "tag:"
	genPrefix         = "gen:"
	subscriberBuffer  = 256
	// maxTxRetries — сколько раз Invalidate повторяет транзакцию, если тег изменился под WATCH.
	maxTxRetries = 10
)

// Client — LiveStore на Redis: кеш запросов (SET с TTL), теги topic -> ключи (SET),
// поколения topic (INCR, без TTL), инвалидация через DEL + PUBLISH.
// SetCached и Invalidate — оптимистичные транзакции (WATCH): запись в кеш, начатая до
// инвалидации, не переживает её.
type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

var _ storage.LiveStore = (*Client)(nil)

func (c *Client) Close() error {
	return c.cli.Close()
}

// GetCached читает cache:{key}. Промах и истёкший TTL дают false без ошибки.
func (c *Client) GetCached(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.cli.Get(ctx, cachePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return true, nil
}

// Snapshot читает gen:{topic}. Отсутствующий ключ — поколение 0.
func (c *Client) Snapshot(ctx context.Context, topics ...string) (storage.Snapshot, error) {
	return readGenerations(ctx, c.cli, topics)
}

func readGenerations(ctx context.Context, cmd redis.Cmdable, topics []string) (storage.Snapshot, error) {
	snap := make(storage.Snapshot, len(topics))
	if len(topics) == 0 {
		return snap, nil
	}
	keys := make([]string, len(topics))
	for i, t := range topics {
		keys[i] = genPrefix + t
	}
	vals, err := cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget generations: %w", err)
	}
	for i, v := range vals {
		var gen int64
		if str, ok := v.(string); ok {
			if gen, err = strconv.ParseInt(str, 10, 64); err != nil {
				return nil, fmt.Errorf("redis generation %s: %w", topics[i], err)
			}
		}
		snap[topics[i]] = gen
	}
	return snap, nil
}

// SetCached пишет значение и добавляет ключ в tag:{topic}, если поколения topic не изменились
// с момента snap. TTL тега продлевается до TTL значения.
func (c *Client) SetCached(ctx context.Context, key string, val any, ttl time.Duration, snap storage.Snapshot) (bool, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("redis encode %s: %w", key, err)
	}
	topics := make([]string, 0, len(snap))
	watch := make([]string, 0, len(snap))
	for t := range snap {
		topics = append(topics, t)
		watch = append(watch, genPrefix+t)
	}
	stored := false
	err = c.cli.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGenerations(ctx, tx, topics)
		if err != nil {
			return err
		}
		for t, gen := range snap {
			if current[t] != gen {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cachePrefix+key, data, ttl)
			for _, t := range topics {
				pipe.SAdd(ctx, tagPrefix+t, key)
				pipe.Expire(ctx, tagPrefix+t, ttl)
			}
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, watch...)
	if errors.Is(err, redis.TxFailedErr) {
		// поколение сменилось между проверкой и EXEC
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return stored, nil
}

// Invalidate увеличивает gen:{topic}, удаляет ключи topic и публикует событие в InvalidateChannel.
// Тег под WATCH: если SetCached успел добавить ключ между SMEMBERS и EXEC, транзакция повторяется.
func (c *Client) Invalidate(ctx context.Context, ev storage.Event) error {
	tag := tagPrefix + ev.Topic
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = c.cli.Watch(ctx, func(tx *redis.Tx) error {
			keys, err := tx.SMembers(ctx, tag).Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Incr(ctx, genPrefix+ev.Topic)
				for _, k := range keys {
					pipe.Del(ctx, cachePrefix+k)
				}
				pipe.Del(ctx, tag)
				return nil
			})
			return err
		}, tag)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("redis invalidate %s: %w", ev.Topic, err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := c.cli.Publish(ctx, InvalidateChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe подписывается на InvalidateChannel. Канал закрывается после отмены ctx.
func (c *Client) Subscribe(ctx context.Context) (<-chan storage.Event, error) {
	ps := c.cli.Subscribe(ctx, InvalidateChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan storage.Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev storage.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("live: bad invalidate payload: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FlushDB очищает текущую БД Redis (для тестов и сброса кеша при перезапуске в -dev).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
