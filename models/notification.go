package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification types
const (
	NotificationTypeCaseAssignment   = "case_assignment"
	NotificationTypeTaskAssignment   = "task_assignment"
	NotificationTypeTaskReassignment = "task_reassignment"
	NotificationTypeTaskDeadline     = "task_deadline_approaching"
	NotificationTypeTaskOverdue      = "task_overdue"
	NotificationTypeDocumentAnalysis = "document_analysis"
	NotificationTypeCaseDocument     = "case_document_analyzed"
	NotificationTypeCaseConversation = "case_conversation"
	NotificationTypeFirmAnnouncement = "firm_announcement"
	NotificationTypeKnowledgeBase    = "knowledge_base_update"
	NotificationTypeEmergency        = "emergency"
)

// Notification priorities
const (
	NotificationPriorityLow      = "low"
	NotificationPriorityNormal   = "normal"
	NotificationPriorityHigh     = "high"
	NotificationPriorityCritical = "critical"
)

// Notification is one durable alert for one recipient. Rows are created by
// the fan-out engine, mutated only to set or clear ReadAt, and deleted by
// their owner or the retention sweep.
type Notification struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Type      string         `gorm:"not null;index" json:"type"`
	Title     string         `gorm:"not null" json:"title"`
	Message   string         `json:"message"`
	ActionURL string         `json:"action_url"`
	Priority  string         `gorm:"not null;default:'normal';index" json:"priority"`
	Metadata  datatypes.JSON `json:"metadata"`
	ReadAt    *time.Time     `json:"read_at"`

	User User `json:"-"`
}

func (n *Notification) IsRead() bool { return n.ReadAt != nil }

func (n *Notification) IsHighPriority() bool {
	return n.Priority == NotificationPriorityHigh || n.Priority == NotificationPriorityCritical
}

// ValidNotificationPriority reports whether p is one of the priorities.
func ValidNotificationPriority(p string) bool {
	switch p {
	case NotificationPriorityLow, NotificationPriorityNormal,
		NotificationPriorityHigh, NotificationPriorityCritical:
		return true
	}
	return false
}

// UnreadNotificationCount returns the number of unread notifications owned
// by the user.
func UnreadNotificationCount(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// MarkAllNotificationsRead stamps ReadAt on every unread notification owned
// by the user and reports how many rows changed.
func MarkAllNotificationsRead(db *gorm.DB, userID uint) (int64, error) {
	res := db.Model(&Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}
