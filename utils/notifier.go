package utils

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lexnexy/models"
)

// EmailSender delivers a notification by email.
type EmailSender interface {
	SendNotificationEmail(user *models.User, notification *models.Notification) error
}

// PushSender delivers a notification to the user's device.
type PushSender interface {
	SendPush(user *models.User, notification *models.Notification) error
}

// Broadcaster delivers a notification over the realtime stream.
type Broadcaster interface {
	Broadcast(userID uint, notification *models.Notification)
}

// Notifier is the fan-out engine. Each Notify method resolves the recipient
// set for one domain event, persists one Notification row per recipient, and
// then pushes the row through the delivery channels. The database row always
// wins: channel failures are logged and swallowed, and callers invoke the
// engine strictly after their own transaction has committed.
type Notifier struct {
	DB          *gorm.DB
	Email       EmailSender
	Push        PushSender
	Broadcaster Broadcaster
	logger      *logrus.Entry
}

func NewNotifier(db *gorm.DB, logger *logrus.Logger, email EmailSender, push PushSender, broadcaster Broadcaster) *Notifier {
	return &Notifier{
		DB:          db,
		Email:       email,
		Push:        push,
		Broadcaster: broadcaster,
		logger:      logger.WithField("component", "notifier"),
	}
}

// taskPriorityToNotification maps a task priority onto the notification
// priority scale.
func taskPriorityToNotification(taskPriority string) string {
	switch taskPriority {
	case models.TaskPriorityUrgent, models.TaskPriorityHigh:
		return models.NotificationPriorityHigh
	case models.TaskPriorityLow:
		return models.NotificationPriorityLow
	default:
		return models.NotificationPriorityNormal
	}
}

// NotifyCaseAssignment alerts one newly assigned member of a case.
func (n *Notifier) NotifyCaseAssignment(legalCase *models.LegalCase, assignment *models.CaseAssignment) {
	userID, ok := n.memberUserID(assignment.FirmMemberID)
	if !ok {
		return
	}
	n.create(&models.Notification{
		UserID:    userID,
		Type:      models.NotificationTypeCaseAssignment,
		Title:     "New Case Assignment",
		Message:   fmt.Sprintf("You have been assigned to case: %s (%s)", legalCase.Title, assignment.Role),
		ActionURL: fmt.Sprintf("/cases/%d", legalCase.ID),
		Priority:  models.NotificationPriorityHigh,
		Metadata: mustMetadata(map[string]any{
			"case_id": legalCase.ID,
			"role":    assignment.Role,
		}),
	})
}

// NotifyTaskAssignment alerts the task's new assignee. When the task was
// reassigned away from a previous member, that member gets a secondary
// notification of a different type with no priority escalation.
func (n *Notifier) NotifyTaskAssignment(task *models.Task, previousAssignee *uint) {
	if task.AssignedTo == nil {
		return
	}

	if userID, ok := n.memberUserID(*task.AssignedTo); ok {
		n.create(&models.Notification{
			UserID:    userID,
			Type:      models.NotificationTypeTaskAssignment,
			Title:     "New Task Assignment",
			Message:   fmt.Sprintf("You have been assigned a task: %s", task.Title),
			ActionURL: fmt.Sprintf("/tasks/%d", task.ID),
			Priority:  taskPriorityToNotification(task.Priority),
			Metadata: mustMetadata(map[string]any{
				"task_id":  task.ID,
				"priority": task.Priority,
				"due_date": task.DueDate,
			}),
		})
	}

	if previousAssignee != nil && *previousAssignee != *task.AssignedTo {
		if userID, ok := n.memberUserID(*previousAssignee); ok {
			n.create(&models.Notification{
				UserID:    userID,
				Type:      models.NotificationTypeTaskReassignment,
				Title:     "Task Reassigned",
				Message:   fmt.Sprintf("The task '%s' has been reassigned to someone else", task.Title),
				ActionURL: fmt.Sprintf("/tasks/%d", task.ID),
				Priority:  models.NotificationPriorityNormal,
				Metadata:  mustMetadata(map[string]any{"task_id": task.ID}),
			})
		}
	}
}

// NotifyTaskDeadline alerts the assignee that the task's due date is inside
// the approaching window.
func (n *Notifier) NotifyTaskDeadline(task *models.Task) {
	if task.AssignedTo == nil {
		return
	}
	userID, ok := n.memberUserID(*task.AssignedTo)
	if !ok {
		return
	}
	n.create(&models.Notification{
		UserID:    userID,
		Type:      models.NotificationTypeTaskDeadline,
		Title:     "Task Deadline Approaching",
		Message:   fmt.Sprintf("The task '%s' is due within 24 hours", task.Title),
		ActionURL: fmt.Sprintf("/tasks/%d", task.ID),
		Priority:  taskPriorityToNotification(task.Priority),
		Metadata: mustMetadata(map[string]any{
			"task_id":  task.ID,
			"due_date": task.DueDate,
		}),
	})
}

// NotifyTaskOverdue alerts the assignee about a task past its due date.
// Priority is high at minimum, regardless of the task's own priority.
func (n *Notifier) NotifyTaskOverdue(task *models.Task) {
	if task.AssignedTo == nil {
		return
	}
	userID, ok := n.memberUserID(*task.AssignedTo)
	if !ok {
		return
	}
	priority := taskPriorityToNotification(task.Priority)
	if priority != models.NotificationPriorityCritical {
		priority = models.NotificationPriorityHigh
	}
	n.create(&models.Notification{
		UserID:    userID,
		Type:      models.NotificationTypeTaskOverdue,
		Title:     "Task Overdue",
		Message:   fmt.Sprintf("The task '%s' is overdue", task.Title),
		ActionURL: fmt.Sprintf("/tasks/%d", task.ID),
		Priority:  priority,
		Metadata: mustMetadata(map[string]any{
			"task_id":  task.ID,
			"due_date": task.DueDate,
		}),
	})
}

// NotifyDocumentAnalyzed alerts the uploader that analysis finished and, when
// the document belongs to a case, alerts every active team member except the
// uploader.
func (n *Notifier) NotifyDocumentAnalyzed(document *models.LegalDocument) {
	n.create(&models.Notification{
		UserID:    document.UserID,
		Type:      models.NotificationTypeDocumentAnalysis,
		Title:     "Document Analysis Complete",
		Message:   fmt.Sprintf("Analysis of '%s' is ready", document.Title),
		ActionURL: fmt.Sprintf("/documents/%d", document.ID),
		Priority:  models.NotificationPriorityNormal,
		Metadata:  mustMetadata(map[string]any{"document_id": document.ID, "type": document.Type}),
	})

	if document.LegalCaseID == nil {
		return
	}
	for _, userID := range n.caseTeamUserIDs(*document.LegalCaseID, document.UserID) {
		n.create(&models.Notification{
			UserID:    userID,
			Type:      models.NotificationTypeCaseDocument,
			Title:     "Case Document Analyzed",
			Message:   fmt.Sprintf("A new analyzed document '%s' was added to your case", document.Title),
			ActionURL: fmt.Sprintf("/cases/%d/documents/%d", *document.LegalCaseID, document.ID),
			Priority:  models.NotificationPriorityNormal,
			Metadata:  mustMetadata(map[string]any{"document_id": document.ID, "case_id": *document.LegalCaseID}),
		})
	}
}

// NotifyCaseConversation alerts every active team member of the case about a
// new conversation, except its creator.
func (n *Notifier) NotifyCaseConversation(conversation *models.Conversation) {
	if conversation.LegalCaseID == nil {
		return
	}
	for _, userID := range n.caseTeamUserIDs(*conversation.LegalCaseID, conversation.UserID) {
		n.create(&models.Notification{
			UserID:    userID,
			Type:      models.NotificationTypeCaseConversation,
			Title:     "New Case Conversation",
			Message:   fmt.Sprintf("A new conversation '%s' was started on your case", conversation.Title),
			ActionURL: fmt.Sprintf("/conversations/%d", conversation.ID),
			Priority:  models.NotificationPriorityNormal,
			Metadata:  mustMetadata(map[string]any{"conversation_id": conversation.ID, "case_id": *conversation.LegalCaseID}),
		})
	}
}

// SendFirmAnnouncement fans out to every active member of the firm.
func (n *Notifier) SendFirmAnnouncement(firmID uint, title, message string) int {
	count := 0
	for _, userID := range n.firmUserIDs(firmID) {
		n.create(&models.Notification{
			UserID:   userID,
			Type:     models.NotificationTypeFirmAnnouncement,
			Title:    title,
			Message:  message,
			Priority: models.NotificationPriorityNormal,
			Metadata: mustMetadata(map[string]any{"firm_id": firmID}),
		})
		count++
	}
	return count
}

// SendEmergency fans out a critical alert to every active member of the
// firm. Critical priority forces delivery on every channel.
func (n *Notifier) SendEmergency(firmID uint, title, message string) int {
	count := 0
	for _, userID := range n.firmUserIDs(firmID) {
		n.create(&models.Notification{
			UserID:   userID,
			Type:     models.NotificationTypeEmergency,
			Title:    title,
			Message:  message,
			Priority: models.NotificationPriorityCritical,
			Metadata: mustMetadata(map[string]any{"firm_id": firmID}),
		})
		count++
	}
	return count
}

// NotifyKnowledgeBaseUpdate fans out to every active member of the firm
// except the author, honoring each recipient's category preference.
func (n *Notifier) NotifyKnowledgeBaseUpdate(entry *models.KnowledgeEntry) {
	for _, userID := range n.firmUserIDs(entry.LawFirmID) {
		if userID == entry.UserID {
			continue
		}
		var user models.User
		if err := n.DB.First(&user, userID).Error; err != nil {
			continue
		}
		if !user.WantsNotification("knowledge_base_updates") {
			continue
		}
		n.createFor(&user, &models.Notification{
			UserID:    userID,
			Type:      models.NotificationTypeKnowledgeBase,
			Title:     "Knowledge Base Update",
			Message:   fmt.Sprintf("New %s added: %s", entry.Type, entry.Title),
			ActionURL: fmt.Sprintf("/knowledge/%d", entry.ID),
			Priority:  models.NotificationPriorityLow,
			Metadata:  mustMetadata(map[string]any{"entry_id": entry.ID, "category": entry.Category}),
		})
	}
}

// memberUserID resolves a firm member to their linked user account. Members
// still in the invited state have no account and produce no notification.
func (n *Notifier) memberUserID(memberID uint) (uint, bool) {
	var member models.FirmMember
	if err := n.DB.First(&member, memberID).Error; err != nil {
		n.logger.WithError(err).WithField("member_id", memberID).Warn("failed to resolve member")
		return 0, false
	}
	if member.UserID == nil {
		return 0, false
	}
	return *member.UserID, true
}

// caseTeamUserIDs returns the user IDs of the case's active team members,
// leaving out excludeUserID.
func (n *Notifier) caseTeamUserIDs(caseID, excludeUserID uint) []uint {
	var userIDs []uint
	err := n.DB.Model(&models.CaseAssignment{}).
		Joins("JOIN firm_members ON firm_members.id = case_assignments.firm_member_id").
		Where("case_assignments.legal_case_id = ?", caseID).
		Where("firm_members.status = ?", models.MemberStatusActive).
		Where("firm_members.user_id IS NOT NULL AND firm_members.user_id <> ?", excludeUserID).
		Where("case_assignments.deleted_at IS NULL AND firm_members.deleted_at IS NULL").
		Pluck("firm_members.user_id", &userIDs).Error
	if err != nil {
		n.logger.WithError(err).WithField("case_id", caseID).Error("failed to resolve case team")
		return nil
	}
	return userIDs
}

// firmUserIDs returns the user IDs of every active member of the firm.
func (n *Notifier) firmUserIDs(firmID uint) []uint {
	var userIDs []uint
	err := n.DB.Model(&models.FirmMember{}).
		Where("law_firm_id = ? AND status = ? AND user_id IS NOT NULL",
			firmID, models.MemberStatusActive).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		n.logger.WithError(err).WithField("firm_id", firmID).Error("failed to resolve firm members")
		return nil
	}
	return userIDs
}

// create persists the notification and dispatches delivery channels.
func (n *Notifier) create(notification *models.Notification) {
	var user models.User
	if err := n.DB.First(&user, notification.UserID).Error; err != nil {
		n.logger.WithError(err).WithField("user_id", notification.UserID).Warn("failed to load recipient")
		return
	}
	n.createFor(&user, notification)
}

// createFor persists the notification for an already loaded recipient and
// dispatches delivery channels. Persistence failures are the only errors
// that abort delivery; channel failures are logged and swallowed.
func (n *Notifier) createFor(user *models.User, notification *models.Notification) {
	if err := n.DB.Create(notification).Error; err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": notification.UserID,
			"type":    notification.Type,
		}).Error("failed to persist notification")
		return
	}

	if n.Broadcaster != nil {
		n.Broadcaster.Broadcast(notification.UserID, notification)
	}

	if !notification.IsHighPriority() {
		return
	}
	if n.Email != nil {
		if err := n.Email.SendNotificationEmail(user, notification); err != nil {
			n.logger.WithError(err).WithField("user_id", user.ID).Warn("email delivery failed")
		}
	}
	if n.Push != nil {
		if err := n.Push.SendPush(user, notification); err != nil {
			n.logger.WithError(err).WithField("user_id", user.ID).Warn("push delivery failed")
		}
	}
}

func mustMetadata(m map[string]any) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
