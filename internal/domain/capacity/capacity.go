// Пакет capacity — ограничение размера медиатеки.
package capacity

// DefaultCeiling — максимальное число одновременно живых записей.
const DefaultCeiling = 24

// CanAdmit сообщает, можно ли принять новый снимок при liveCount живых записях.
func CanAdmit(liveCount, ceiling int) bool {
	return liveCount < ceiling
}

// Remaining возвращает число свободных мест, не меньше нуля.
func Remaining(liveCount, ceiling int) int {
	if r := ceiling - liveCount; r > 0 {
		return r
	}
	return 0
}
