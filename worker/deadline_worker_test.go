package worker

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lexnexy/config"
	"lexnexy/models"
	"lexnexy/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func newTestDeadlineWorker(t *testing.T, db *gorm.DB) *DeadlineWorker {
	t.Helper()
	structured := logrus.New()
	structured.SetLevel(logrus.PanicLevel)
	notifier := utils.NewNotifier(db, structured, nil, nil, nil)
	return NewDeadlineWorker(db, notifier, log.New(os.Stdout, "TEST: ", log.LstdFlags))
}

func seedAssignedTask(t *testing.T, db *gorm.DB, due time.Time, status string) (*models.Task, *models.User) {
	t.Helper()

	firm := &models.LawFirm{Name: "Sweep Firm"}
	require.NoError(t, db.Create(firm).Error)

	user := &models.User{
		Email:        time.Now().Format("150405.000000000") + "@example.com",
		PasswordHash: "x",
		Name:         "Assignee",
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)

	member := &models.FirmMember{
		LawFirmID: firm.ID,
		UserID:    &user.ID,
		Role:      models.MemberRoleStaff,
		Status:    models.MemberStatusActive,
	}
	require.NoError(t, db.Create(member).Error)

	task := &models.Task{
		LawFirmID:  firm.ID,
		AssignedTo: &member.ID,
		Title:      "Sweep target",
		DueDate:    &due,
		Priority:   models.TaskPriorityMedium,
		Status:     status,
	}
	require.NoError(t, db.Create(task).Error)
	return task, user
}

func countByType(t *testing.T, db *gorm.DB, userID uint, notifType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", userID, notifType).
		Count(&count).Error)
	return count
}

func TestSweepNotifiesOverdueExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	dw := newTestDeadlineWorker(t, db)

	_, user := seedAssignedTask(t, db, time.Now().Add(-2*time.Hour), models.TaskStatusPending)

	dw.Sweep()
	dw.Sweep()
	dw.Sweep()

	// the watermark keeps repeated sweeps from duplicating the alert
	require.EqualValues(t, 1, countByType(t, db, user.ID, models.NotificationTypeTaskOverdue))

	var got models.Notification
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&got).Error)
	require.Equal(t, models.NotificationPriorityHigh, got.Priority)
}

func TestSweepApproachingWindow(t *testing.T) {
	db := newTestDB(t)
	dw := newTestDeadlineWorker(t, db)

	_, inWindow := seedAssignedTask(t, db, time.Now().Add(12*time.Hour), models.TaskStatusPending)
	_, outOfWindow := seedAssignedTask(t, db, time.Now().Add(48*time.Hour), models.TaskStatusPending)

	dw.Sweep()
	dw.Sweep()

	require.EqualValues(t, 1, countByType(t, db, inWindow.ID, models.NotificationTypeTaskDeadline))
	require.EqualValues(t, 0, countByType(t, db, outOfWindow.ID, models.NotificationTypeTaskDeadline))
}

func TestSweepSkipsCompletedTasks(t *testing.T) {
	db := newTestDB(t)
	dw := newTestDeadlineWorker(t, db)

	_, user := seedAssignedTask(t, db, time.Now().Add(-time.Hour), models.TaskStatusCompleted)

	dw.Sweep()

	require.EqualValues(t, 0, countByType(t, db, user.ID, models.NotificationTypeTaskOverdue))
}

func TestSweepSkipsUnassignedTasks(t *testing.T) {
	db := newTestDB(t)
	dw := newTestDeadlineWorker(t, db)

	firm := &models.LawFirm{Name: "Unassigned Firm"}
	require.NoError(t, db.Create(firm).Error)
	due := time.Now().Add(-time.Hour)
	task := &models.Task{
		LawFirmID: firm.ID,
		Title:     "Nobody's problem",
		DueDate:   &due,
		Priority:  models.TaskPriorityHigh,
		Status:    models.TaskStatusPending,
	}
	require.NoError(t, db.Create(task).Error)

	dw.Sweep()

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.EqualValues(t, 0, count)
}
