package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type TaskController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Notifier *utils.Notifier
}

func NewTaskController(db *gorm.DB, logger *log.Logger, notifier *utils.Notifier) *TaskController {
	return &TaskController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Notifier: notifier,
	}
}

// ListTasks returns the firm's tasks visible to the caller: everything for
// admins, otherwise tasks they created, are assigned to, or that belong to
// a case they are on.
func (tc *TaskController) ListTasks(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := tc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	member, err := models.ActiveMemberOf(tc.DB, user.ID, firm.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := tc.DB.Model(&models.Task{}).Where("tasks.law_firm_id = ?", firm.ID)

	if !member.IsAdmin() {
		query = query.Where(
			"tasks.created_by = ? OR tasks.assigned_to = ? OR tasks.legal_case_id IN (?)",
			member.ID, member.ID,
			tc.DB.Model(&models.CaseAssignment{}).
				Select("legal_case_id").
				Where("firm_member_id = ?", member.ID),
		)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("tasks.status = ?", status)
	}
	if priority := c.Query("priority"); priority != "" {
		query = query.Where("tasks.priority = ?", priority)
	}
	if assignedTo := c.Query("assigned_to"); assignedTo != "" {
		query = query.Where("tasks.assigned_to = ?", assignedTo)
	}
	if caseID := c.Query("case_id"); caseID != "" {
		query = query.Where("tasks.legal_case_id = ?", caseID)
	}
	if dueBefore := c.Query("due_before"); dueBefore != "" {
		if t, err := time.Parse(time.RFC3339, dueBefore); err == nil {
			query = query.Where("tasks.due_date <= ?", t)
		}
	}
	if dueAfter := c.Query("due_after"); dueAfter != "" {
		if t, err := time.Parse(time.RFC3339, dueAfter); err == nil {
			query = query.Where("tasks.due_date >= ?", t)
		}
	}
	if c.Query("overdue") == "true" {
		query = query.Where("tasks.due_date < ? AND tasks.status <> ?",
			time.Now(), models.TaskStatusCompleted)
	}

	var tasks []models.Task
	err = query.Preload("AssignedMember.User").Preload("LegalCase").
		Order("tasks.due_date ASC NULLS LAST, tasks.created_at DESC").
		Offset(offset).Limit(limit).Find(&tasks).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch tasks", err)
	}

	var total int64
	query.Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  tasks,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// CreateTask creates a task, optionally attached to a case and assigned
// to a member. Any active member may create tasks.
func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := tc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if !tc.Policy.Can(user.ID, policy.ActionCreateTask, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	creator, err := models.ActiveMemberOf(tc.DB, user.ID, firm.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	var input struct {
		Title       string     `json:"title" validate:"required,max=255"`
		Description string     `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		LegalCaseID *uint      `json:"legal_case_id"`
		AssignedTo  *uint      `json:"assigned_to"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Priority == "" {
		input.Priority = models.TaskPriorityMedium
	}

	if input.LegalCaseID != nil {
		var legalCase models.LegalCase
		err := tc.DB.Where("id = ? AND law_firm_id = ?", *input.LegalCaseID, firm.ID).
			First(&legalCase).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
	}

	if input.AssignedTo != nil {
		var assignee models.FirmMember
		err := tc.DB.Where("id = ? AND law_firm_id = ? AND status = ?",
			*input.AssignedTo, firm.ID, models.MemberStatusActive).First(&assignee).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Assignee not found", nil)
		}
	}

	task := models.Task{
		LawFirmID:   firm.ID,
		LegalCaseID: input.LegalCaseID,
		AssignedTo:  input.AssignedTo,
		CreatedBy:   &creator.ID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Priority:    input.Priority,
		Status:      models.TaskStatusPending,
	}

	if err := tc.DB.Create(&task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create task", err)
	}

	// Self-assigned tasks produce no notification
	if task.AssignedTo != nil && *task.AssignedTo != creator.ID {
		tc.Notifier.NotifyTaskAssignment(&task, nil)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(task))
}

// GetTask returns one task.
func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var task models.Task
	err := tc.DB.Preload("AssignedMember.User").Preload("Creator.User").Preload("LegalCase").
		First(&task, c.Params("id")).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}

	if !tc.Policy.Can(user.ID, policy.ActionView, policy.TaskResource{Task: &task}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}

	return c.JSON(utils.SuccessResponse(task))
}

// UpdateTask updates task fields. Reassignment notifies the new assignee
// and, with a separate non-escalated notice, the previous one.
func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var task models.Task
	if err := tc.DB.First(&task, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}

	if _, err := models.ActiveMemberOf(tc.DB, user.ID, task.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	if !tc.Policy.Can(user.ID, policy.ActionUpdate, policy.TaskResource{Task: &task}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot update this task", nil)
	}

	var input struct {
		Title       *string    `json:"title" validate:"omitempty,max=255"`
		Description *string    `json:"description"`
		DueDate     *time.Time `json:"due_date"`
		Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
		Status      *string    `json:"status" validate:"omitempty,oneof=pending in_progress completed deferred"`
		LegalCaseID *uint      `json:"legal_case_id"`
		AssignedTo  *uint      `json:"assigned_to"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.LegalCaseID != nil {
		var legalCase models.LegalCase
		err := tc.DB.Where("id = ? AND law_firm_id = ?", *input.LegalCaseID, task.LawFirmID).
			First(&legalCase).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
	}

	previousAssignee := task.AssignedTo
	reassigned := false
	if input.AssignedTo != nil {
		var assignee models.FirmMember
		err := tc.DB.Where("id = ? AND law_firm_id = ? AND status = ?",
			*input.AssignedTo, task.LawFirmID, models.MemberStatusActive).First(&assignee).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Assignee not found", nil)
		}
		reassigned = previousAssignee == nil || *previousAssignee != *input.AssignedTo
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.DueDate != nil {
		updates["due_date"] = *input.DueDate
		// a moved deadline re-arms the sweep notices
		updates["deadline_notified_at"] = nil
		updates["overdue_notified_at"] = nil
	}
	if input.Priority != nil {
		updates["priority"] = *input.Priority
	}
	if input.Status != nil {
		updates["status"] = *input.Status
		applyCompletionStamp(updates, task.Status, *input.Status)
	}
	if input.LegalCaseID != nil {
		updates["legal_case_id"] = *input.LegalCaseID
	}
	if input.AssignedTo != nil {
		updates["assigned_to"] = *input.AssignedTo
	}

	if len(updates) > 0 {
		if err := tc.DB.Model(&task).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", err)
		}
	}

	if reassigned {
		tc.Notifier.NotifyTaskAssignment(&task, previousAssignee)
	}

	return c.JSON(utils.SuccessResponse(task))
}

// UpdateTaskStatus transitions the task's status only. CompletedAt is
// stamped exactly when the task moves into completed and cleared when it
// moves back out.
func (tc *TaskController) UpdateTaskStatus(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var task models.Task
	if err := tc.DB.First(&task, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}

	if _, err := models.ActiveMemberOf(tc.DB, user.ID, task.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	if !tc.Policy.Can(user.ID, policy.ActionUpdate, policy.TaskResource{Task: &task}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot update this task", nil)
	}

	var input struct {
		Status string `json:"status" validate:"required,oneof=pending in_progress completed deferred"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{"status": input.Status}
	applyCompletionStamp(updates, task.Status, input.Status)

	if err := tc.DB.Model(&task).Updates(updates).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update task", err)
	}

	return c.JSON(utils.SuccessResponse(task))
}

// applyCompletionStamp sets completed_at on the transition into completed
// and clears it on the way out. Re-completing an already completed task
// keeps the original timestamp.
func applyCompletionStamp(updates map[string]interface{}, oldStatus, newStatus string) {
	if newStatus == models.TaskStatusCompleted && oldStatus != models.TaskStatusCompleted {
		updates["completed_at"] = time.Now()
	}
	if newStatus != models.TaskStatusCompleted && oldStatus == models.TaskStatusCompleted {
		updates["completed_at"] = nil
	}
}

// DeleteTask deletes the task.
func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var task models.Task
	if err := tc.DB.First(&task, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}

	if _, err := models.ActiveMemberOf(tc.DB, user.ID, task.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Task not found", nil)
	}
	if !tc.Policy.Can(user.ID, policy.ActionDelete, policy.TaskResource{Task: &task}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot delete this task", nil)
	}

	if err := tc.DB.Delete(&task).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete task", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Task deleted"}))
}
