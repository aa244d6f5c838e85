//go:build !windows

package filestore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DiskUsage возвращает ёмкость файловой системы контейнера в байтах.
// available — место, доступное непривилегированному процессу (Bavail).
func DiskUsage(path string) (total, used, available int64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, 0, fmt.Errorf("ошибка statfs %s: %w", path, err)
	}

	bsize := int64(stat.Bsize) //nolint:unconvert
	total = int64(stat.Blocks) * bsize
	available = int64(stat.Bavail) * bsize
	used = total - int64(stat.Bfree)*bsize
	return total, used, available, nil
}
