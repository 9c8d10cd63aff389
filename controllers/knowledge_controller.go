package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type KnowledgeController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Notifier *utils.Notifier
}

func NewKnowledgeController(db *gorm.DB, logger *log.Logger, notifier *utils.Notifier) *KnowledgeController {
	return &KnowledgeController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Notifier: notifier,
	}
}

// CreateEntry adds a knowledge base entry and notifies the rest of the
// firm, honoring per-user preferences.
func (kc *KnowledgeController) CreateEntry(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := kc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(kc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	var input struct {
		Title    string `json:"title" validate:"required,max=255"`
		Type     string `json:"type" validate:"omitempty,max=50"`
		Category string `json:"category" validate:"omitempty,max=100"`
		Content  string `json:"content" validate:"required"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Type == "" {
		input.Type = "article"
	}

	entry := models.KnowledgeEntry{
		LawFirmID: firm.ID,
		UserID:    user.ID,
		Title:     input.Title,
		Type:      input.Type,
		Category:  input.Category,
		Content:   input.Content,
	}

	if err := kc.DB.Create(&entry).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create entry", err)
	}

	kc.Notifier.NotifyKnowledgeBaseUpdate(&entry)

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(entry))
}

// ListEntries returns the firm's knowledge base entries.
func (kc *KnowledgeController) ListEntries(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := kc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(kc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := kc.DB.Where("law_firm_id = ?", firm.ID)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if entryType := c.Query("type"); entryType != "" {
		query = query.Where("type = ?", entryType)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}

	var entries []models.KnowledgeEntry
	if err := query.Preload("User").Order("created_at DESC").
		Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch entries", err)
	}

	var total int64
	query.Model(&models.KnowledgeEntry{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  entries,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetEntry returns one knowledge base entry.
func (kc *KnowledgeController) GetEntry(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var entry models.KnowledgeEntry
	if err := kc.DB.Preload("User").First(&entry, c.Params("entryID")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Entry not found", nil)
	}

	if _, err := models.ActiveMemberOf(kc.DB, user.ID, entry.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Entry not found", nil)
	}

	return c.JSON(utils.SuccessResponse(entry))
}

// DeleteEntry removes an entry. Author or firm admin only.
func (kc *KnowledgeController) DeleteEntry(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var entry models.KnowledgeEntry
	if err := kc.DB.First(&entry, c.Params("entryID")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Entry not found", nil)
	}

	member, err := models.ActiveMemberOf(kc.DB, user.ID, entry.LawFirmID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Entry not found", nil)
	}
	if entry.UserID != user.ID && !member.IsAdmin() {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot delete this entry", nil)
	}

	if err := kc.DB.Delete(&entry).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete entry", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Entry deleted"}))
}
