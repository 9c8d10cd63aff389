package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/utils"
)

// DeadlineWorker periodically sweeps open tasks and alerts assignees about
// approaching and missed deadlines. Each task carries watermarks for both
// notices so repeated sweeps never alert twice for the same deadline.
type DeadlineWorker struct {
	DB       *gorm.DB
	Notifier *utils.Notifier
	Logger   *log.Logger

	// Interval overrides the hourly default, used by tests
	Interval time.Duration
}

func NewDeadlineWorker(db *gorm.DB, notifier *utils.Notifier, logger *log.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		DB:       db,
		Notifier: notifier,
		Logger:   logger,
		Interval: time.Hour,
	}
}

func (dw *DeadlineWorker) Start(ctx context.Context) {
	// Initial delay to let the server start up
	time.Sleep(10 * time.Second)

	dw.Logger.Println("Deadline worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Deadline worker shutting down...")
			return
		case <-ticker.C:
			dw.Sweep()
		}
	}
}

// Sweep runs one pass over both windows.
func (dw *DeadlineWorker) Sweep() {
	dw.sweepApproaching()
	dw.sweepOverdue()
}

// sweepApproaching notifies assignees of unfinished tasks due within the
// next 24 hours that have not been alerted yet.
func (dw *DeadlineWorker) sweepApproaching() {
	now := time.Now()
	windowEnd := now.Add(24 * time.Hour)

	var tasks []models.Task
	err := dw.DB.Where("status <> ?", models.TaskStatusCompleted).
		Where("assigned_to IS NOT NULL").
		Where("due_date > ? AND due_date <= ?", now, windowEnd).
		Where("deadline_notified_at IS NULL").
		Find(&tasks).Error
	if err != nil {
		dw.Logger.Printf("Error fetching approaching tasks: %v", err)
		return
	}

	for i := range tasks {
		dw.Notifier.NotifyTaskDeadline(&tasks[i])

		// stamp the watermark so the next sweep skips this task
		if err := dw.DB.Model(&tasks[i]).
			Update("deadline_notified_at", time.Now()).Error; err != nil {
			dw.Logger.Printf("Error stamping deadline notice for task %d: %v", tasks[i].ID, err)
		}
	}

	if len(tasks) > 0 {
		dw.Logger.Printf("Sent %d deadline notices", len(tasks))
	}
}

// sweepOverdue notifies assignees of unfinished tasks already past their
// due date that have not been alerted yet.
func (dw *DeadlineWorker) sweepOverdue() {
	var tasks []models.Task
	err := dw.DB.Where("status <> ?", models.TaskStatusCompleted).
		Where("assigned_to IS NOT NULL").
		Where("due_date < ?", time.Now()).
		Where("overdue_notified_at IS NULL").
		Find(&tasks).Error
	if err != nil {
		dw.Logger.Printf("Error fetching overdue tasks: %v", err)
		return
	}

	for i := range tasks {
		dw.Notifier.NotifyTaskOverdue(&tasks[i])

		if err := dw.DB.Model(&tasks[i]).
			Update("overdue_notified_at", time.Now()).Error; err != nil {
			dw.Logger.Printf("Error stamping overdue notice for task %d: %v", tasks[i].ID, err)
		}
	}

	if len(tasks) > 0 {
		dw.Logger.Printf("Sent %d overdue notices", len(tasks))
	}
}
