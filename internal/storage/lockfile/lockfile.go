// Пакет lockfile — эксклюзивная межпроцессная блокировка через flock()
// на файле в общем контейнере.
//
// Алгоритм:
//  1. Открыть (создать) lock-файл
//  2. Неблокирующая попытка LOCK_EX|LOCK_NB
//  3. Если занято — повтор через retryInterval, пока не отменён ctx
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultRetryInterval — интервал повторных попыток захвата.
const DefaultRetryInterval = 25 * time.Millisecond

// Lock — захваченная блокировка. Освобождается Release.
type Lock struct {
	f *os.File
}

// Acquire захватывает эксклюзивную блокировку на path.
// Ожидание ограничено ctx.
func Acquire(ctx context.Context, path string, retryInterval time.Duration) (*Lock, error) {
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}

	lock, err := TryAcquire(path)
	if err != nil || lock != nil {
		return lock, err
	}

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ожидание блокировки %s: %w", path, ctx.Err())
		case <-ticker.C:
			lock, err := TryAcquire(path)
			if err != nil || lock != nil {
				return lock, err
			}
		}
	}
}

// TryAcquire делает одну неблокирующую попытку.
// Возвращает nil, nil, если блокировка занята другим владельцем.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть lock-файл %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка flock %s: %w", path, err)
	}

	return &Lock{f: f}, nil
}

// Release снимает flock и закрывает файл. Повторный вызов — no-op.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	fd := int(l.f.Fd())
	_ = unix.Flock(fd, unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
