package startup

import (
	"os"
	"time"

	"github.com/teamchat/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// withRetry повторяет attempt с экспоненциальной задержкой (2s, 4s ... 30s) до истечения maxWait.
// После дедлайна пишет ошибку и завершает процесс: без БД или Redis сервису работать не с чем.
func withRetry(what string, maxWait time.Duration, logPrefix string, attempt func() error) {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for {
		err := attempt()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s (gave up after %v): %v", logPrefix, what, maxWait, err)
			logger.Flush(2 * time.Second)
			os.Exit(1)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
