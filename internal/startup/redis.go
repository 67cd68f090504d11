package startup

import (
	"context"
	"time"

	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/storage"
	"github.com/teamchat/internal/storage/memory"
	redisstorage "github.com/teamchat/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
// logPrefix добавляется к сообщениям лога (например "api: ").
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	withRetry("redis connect", maxWait, logPrefix, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client
}

// OpenLiveStore выбирает кеш и шину инвалидаций: Redis при заданном URL, иначе память процесса
// (годится только для одного инстанса API).
func OpenLiveStore(redisURL string, maxWait time.Duration, logPrefix string) storage.LiveStore {
	if redisURL == "" {
		logger.Info("live store: in-memory (REDIS_URL not set)")
		return memory.New()
	}
	client := ConnectRedisWithRetry(redisURL, maxWait, logPrefix)
	logger.Info("live store: redis")
	return client
}
