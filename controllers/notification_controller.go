package controller

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type NotificationController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Notifier *utils.Notifier
}

func NewNotificationController(db *gorm.DB, logger *log.Logger, notifier *utils.Notifier) *NotificationController {
	return &NotificationController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Notifier: notifier,
	}
}

// ListNotifications returns the caller's notifications, newest first, with
// type, priority and read filters. Page size is bounded to 5..100.
func (nc *NotificationController) ListNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.Query("per_page", "20"))
	if perPage < 5 {
		perPage = 5
	}
	if perPage > 100 {
		perPage = 100
	}
	offset := (page - 1) * perPage

	query := nc.DB.Where("user_id = ?", user.ID)

	if notifType := c.Query("type"); notifType != "" {
		query = query.Where("type = ?", notifType)
	}
	if priority := c.Query("priority"); priority != "" {
		if !models.ValidNotificationPriority(priority) {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid priority", nil)
		}
		query = query.Where("priority = ?", priority)
	}
	switch c.Query("read") {
	case "true":
		query = query.Where("read_at IS NOT NULL")
	case "false":
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Offset(offset).Limit(perPage).
		Find(&notifications).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notifications", err)
	}

	var total int64
	query.Model(&models.Notification{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  notifications,
		Total: total,
		Page:  page,
		Limit: perPage,
	})
}

// RecentNotifications returns the newest notifications, capped at 50.
func (nc *NotificationController) RecentNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	var notifications []models.Notification
	if err := nc.DB.Where("user_id = ?", user.ID).
		Order("created_at DESC").Limit(limit).
		Find(&notifications).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch notifications", err)
	}

	unread, err := models.UnreadNotificationCount(nc.DB, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notifications", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"notifications": notifications,
		"unread_count":  unread,
	}))
}

// NotificationStats returns total/unread counts and a per-priority breakdown.
func (nc *NotificationController) NotificationStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var total int64
	if err := nc.DB.Model(&models.Notification{}).
		Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notifications", err)
	}

	unread, err := models.UnreadNotificationCount(nc.DB, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notifications", err)
	}

	type priorityCount struct {
		Priority string `json:"priority"`
		Count    int64  `json:"count"`
	}
	var byPriority []priorityCount
	err = nc.DB.Model(&models.Notification{}).
		Select("priority, COUNT(*) as count").
		Where("user_id = ?", user.ID).
		Group("priority").Scan(&byPriority).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count notifications", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"total":       total,
		"unread":      unread,
		"by_priority": byPriority,
	}))
}

// MarkRead stamps read_at on one notification.
func (nc *NotificationController) MarkRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	res := nc.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Notification marked as read"}))
}

// MarkUnread clears read_at on one notification.
func (nc *NotificationController) MarkUnread(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	res := nc.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Update("read_at", nil)
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Notification marked as unread"}))
}

// MarkAllRead stamps read_at on every unread notification of the caller.
func (nc *NotificationController) MarkAllRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	updated, err := models.MarkAllNotificationsRead(nc.DB, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update notifications", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"updated": updated}))
}

// DeleteNotification removes one notification owned by the caller.
func (nc *NotificationController) DeleteNotification(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	res := nc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete notification", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Notification not found", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Notification deleted"}))
}

// BulkDeleteNotifications removes a batch of the caller's notifications.
func (nc *NotificationController) BulkDeleteNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		IDs []uint `json:"ids" validate:"required,min=1,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	res := nc.DB.Where("id IN ? AND user_id = ?", input.IDs, user.ID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete notifications", res.Error)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": res.RowsAffected}))
}

// GetPreferences returns the caller's notification preference flags.
func (nc *NotificationController) GetPreferences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"preferences": user.NotificationPreferences,
	}))
}

// UpdatePreferences replaces the caller's preference flags and optionally
// registers a push token.
func (nc *NotificationController) UpdatePreferences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Preferences map[string]bool `json:"preferences"`
		FCMToken    *string         `json:"fcm_token"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	updates := map[string]interface{}{}
	if input.Preferences != nil {
		prefs := datatypes.JSONMap{}
		for k, v := range input.Preferences {
			prefs[k] = v
		}
		updates["notification_preferences"] = prefs
	}
	if input.FCMToken != nil {
		updates["fcm_token"] = *input.FCMToken
	}

	if len(updates) > 0 {
		if err := nc.DB.Model(user).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update preferences", err)
		}
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"preferences": user.NotificationPreferences,
	}))
}

// SendAnnouncement fans an announcement out to every active member of the
// firm. Admin only.
func (nc *NotificationController) SendAnnouncement(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := nc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(nc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !nc.Policy.Can(user.ID, policy.ActionAnnounce, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can send announcements", nil)
	}

	var input struct {
		Title   string `json:"title" validate:"required,max=255"`
		Message string `json:"message" validate:"required,max=2000"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	recipients := nc.Notifier.SendFirmAnnouncement(firm.ID, input.Title, input.Message)

	nc.Logger.Printf("announcement sent to %d members of firm %d by user %d", recipients, firm.ID, user.ID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"recipients": recipients}))
}

// SendEmergency fans a critical alert out to every active member of the
// firm on every channel. Admin only.
func (nc *NotificationController) SendEmergency(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := nc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(nc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !nc.Policy.Can(user.ID, policy.ActionAnnounce, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can send emergency alerts", nil)
	}

	var input struct {
		Title   string `json:"title" validate:"required,max=255"`
		Message string `json:"message" validate:"required,max=2000"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	recipients := nc.Notifier.SendEmergency(firm.ID, input.Title, input.Message)

	nc.Logger.Printf("emergency alert sent to %d members of firm %d by user %d", recipients, firm.ID, user.ID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"recipients": recipients}))
}
