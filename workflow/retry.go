package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/boh_backend/config"
	"bitbucket.org/mmdatafocus/boh_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const txRetryAttempts = 3

func isRetryableTxErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1213 deadlock, 1205 lock wait timeout
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}

// RunInTxWithRetry runs fn in a transaction, retrying deadlocks and lock wait
// timeouts up to three attempts with a short backoff. Anything still failing
// after that surfaces as CONCURRENCY_CONFLICT for the caller to retry.
func RunInTxWithRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()
	var lastErr error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		lastErr = db.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableTxErr(lastErr) {
			return lastErr
		}
	}
	return utils.NewAppError(utils.CodeConcurrencyConflict,
		"transaction kept conflicting with concurrent writes",
		"retry the request; contention should be transient")
}
