// Пакет expiry — вычисление статуса живой/истёкшей записи.
// Единственный источник истины для понятия «живая запись»:
// его используют список, виджет, допуск новых снимков и очистка.
// Все функции чистые, текущее время передаёт вызывающий код.
package expiry

import (
	"fmt"
	"time"

	"github.com/ADA-Batagor/batagor/internal/domain/model"
)

// IsExpired возвращает true, если now строго позже ExpiredAt.
// При now == ExpiredAt запись ещё живая.
func IsExpired(rec *model.MediaRecord, now time.Time) bool {
	return now.After(rec.ExpiredAt)
}

// TimeRemaining возвращает оставшееся время жизни, не меньше нуля.
func TimeRemaining(rec *model.MediaRecord, now time.Time) time.Duration {
	d := rec.ExpiredAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Partition делит записи на истёкшие и живые, сохраняя исходный порядок.
func Partition(records []*model.MediaRecord, now time.Time) (expired, live []*model.MediaRecord) {
	for _, rec := range records {
		if IsExpired(rec, now) {
			expired = append(expired, rec)
		} else {
			live = append(live, rec)
		}
	}
	return expired, live
}

// CountLive возвращает количество живых записей.
func CountLive(records []*model.MediaRecord, now time.Time) int {
	n := 0
	for _, rec := range records {
		if !IsExpired(rec, now) {
			n++
		}
	}
	return n
}

// FormatRemaining форматирует остаток для подписи: "5h" или "< 1h".
func FormatRemaining(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours >= 1 {
		return fmt.Sprintf("%dh", hours)
	}
	return "< 1h"
}
