package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"lexnexy/models"
)

// retentionAge is how long read notifications are kept before the purge.
const retentionAge = 30 * 24 * time.Hour

// RetentionWorker purges read notifications past the retention age. Unread
// notifications are never purged.
type RetentionWorker struct {
	DB     *gorm.DB
	Logger *log.Logger

	Interval time.Duration
}

func NewRetentionWorker(db *gorm.DB, logger *log.Logger) *RetentionWorker {
	return &RetentionWorker{
		DB:       db,
		Logger:   logger,
		Interval: 24 * time.Hour,
	}
}

func (rw *RetentionWorker) Start(ctx context.Context) {
	time.Sleep(10 * time.Second)

	rw.Logger.Println("Retention worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Println("Retention worker shutting down...")
			return
		case <-ticker.C:
			rw.Purge()
		}
	}
}

// Purge deletes read notifications older than the retention age and
// reports how many rows went.
func (rw *RetentionWorker) Purge() int64 {
	cutoff := time.Now().Add(-retentionAge)

	res := rw.DB.Unscoped().
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		rw.Logger.Printf("Error purging notifications: %v", res.Error)
		return 0
	}

	if res.RowsAffected > 0 {
		rw.Logger.Printf("Purged %d read notifications", res.RowsAffected)
	}
	return res.RowsAffected
}
