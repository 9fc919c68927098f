package storage

import (
	"context"
	"strings"
	"time"
)

// IsSQLiteBusyError 是否为 SQLITE_BUSY 错误
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError 是否为 database is locked 错误
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError 并发冲突类错误，可以重试
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// 写操作重试参数
const (
	writeMaxRetries     = 3
	writeRetryBaseDelay = 50 * time.Millisecond
)

// retryOnConflict 遇到锁冲突时指数退避重试
func retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = fn()
		if err == nil || !IsSQLiteConflictError(err) || i == writeMaxRetries-1 {
			return err
		}

		delay := writeRetryBaseDelay * time.Duration(1<<i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
