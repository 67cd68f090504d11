// Package logger — логирование с префиксом сервиса. Запись идёт асинхронно через буферизированный
// канал, чтобы обработчики запросов не ждали stderr. Поддерживается логирование длительности вызовов.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	asyncBufferSize = 8192
	slowThreshold   = 100 * time.Millisecond
)

var (
	prefix   string
	logLevel = levelInfo
	ch       chan string
	drained  chan struct{}
	once     sync.Once
	levelMu  sync.RWMutex
	closeMu  sync.RWMutex
	stopped  bool
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return levelDebug
	default:
		return levelInfo
	}
}

func initWorker() {
	levelMu.Lock()
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logLevel = parseLevel(v)
	}
	levelMu.Unlock()
	ch = make(chan string, asyncBufferSize)
	drained = make(chan struct{})
	go func() {
		defer close(drained)
		for msg := range ch {
			log.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	once.Do(initWorker)
	closeMu.RLock()
	defer closeMu.RUnlock()
	if stopped {
		return
	}
	select {
	case ch <- msg:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

func debugEnabled() bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return logLevel == levelDebug
}

// SetPrefix задаёт префикс для всех последующих логов (например "api", "devtoken").
func SetPrefix(p string) {
	prefix = p
}

// SetLevel переключает уровень ("debug" или "info"); перекрывает LOG_LEVEL из окружения.
func SetLevel(s string) {
	once.Do(initWorker)
	levelMu.Lock()
	logLevel = parseLevel(s)
	levelMu.Unlock()
}

func tag() string {
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf пишет только при уровне debug.
func Debugf(format string, v ...any) {
	if debugEnabled() {
		enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
	}
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При уровне info логирует только вызовы дольше 100ms; при debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if debugEnabled() || elapsed >= slowThreshold {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("workspace.Create", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}

// Flush закрывает очередь и ждёт записи накопленных строк (не дольше timeout).
// Вызывается один раз при остановке процесса; после Flush логи не пишутся.
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	closeMu.Lock()
	if !stopped {
		stopped = true
		close(ch)
	}
	closeMu.Unlock()
	select {
	case <-drained:
	case <-time.After(timeout):
	}
}
