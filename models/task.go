package models

import (
	"time"

	"gorm.io/gorm"
)

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

// Task statuses
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusDeferred   = "deferred"
)

// Task belongs to a firm and optionally a case. AssignedTo and CreatedBy
// reference firm members, not users; deleting a member nulls them out
// instead of cascading into the task.
type Task struct {
	gorm.Model
	LawFirmID   uint  `gorm:"not null;index" json:"law_firm_id"`
	LegalCaseID *uint `gorm:"index" json:"legal_case_id"`
	AssignedTo  *uint `gorm:"index" json:"assigned_to"`
	CreatedBy   *uint `gorm:"index" json:"created_by"`

	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	Priority    string     `gorm:"not null;default:'medium'" json:"priority"`
	Status      string     `gorm:"not null;default:'pending';index" json:"status"`
	CompletedAt *time.Time `json:"completed_at"`

	// Sweep watermarks so repeated deadline sweeps do not duplicate alerts
	DeadlineNotifiedAt *time.Time `json:"-"`
	OverdueNotifiedAt  *time.Time `json:"-"`

	// Relations
	LawFirm        LawFirm     `json:"-"`
	LegalCase      *LegalCase  `json:"legal_case,omitempty"`
	AssignedMember *FirmMember `gorm:"foreignKey:AssignedTo;constraint:OnDelete:SET NULL" json:"assigned_member,omitempty"`
	Creator        *FirmMember `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"creator,omitempty"`
}

func (t *Task) IsCompleted() bool { return t.Status == TaskStatusCompleted }

func (t *Task) IsOverdue() bool {
	return !t.IsCompleted() && t.DueDate != nil && t.DueDate.Before(time.Now())
}

func (t *Task) IsUrgent() bool { return t.Priority == TaskPriorityUrgent }

// ValidTaskPriority reports whether p is one of the task priorities.
func ValidTaskPriority(p string) bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

// ValidTaskStatus reports whether s is one of the task statuses.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusDeferred:
		return true
	}
	return false
}
