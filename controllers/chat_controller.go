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

type ChatController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Analyzer *utils.AnalyzerClient
	Notifier *utils.Notifier
}

func NewChatController(db *gorm.DB, logger *log.Logger, analyzer *utils.AnalyzerClient, notifier *utils.Notifier) *ChatController {
	return &ChatController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Analyzer: analyzer,
		Notifier: notifier,
	}
}

// CreateConversation starts a conversation, optionally linked to a case.
// Case-linked conversations notify the rest of the case team.
func (cc *ChatController) CreateConversation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Title       string `json:"title" validate:"required,max=255"`
		LegalCaseID *uint  `json:"legal_case_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.LegalCaseID != nil {
		var legalCase models.LegalCase
		if err := cc.DB.First(&legalCase, *input.LegalCaseID).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
		if !cc.Policy.Can(user.ID, policy.ActionView, policy.CaseResource{Case: &legalCase}) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
	}

	conversation := models.Conversation{
		UserID:      user.ID,
		LegalCaseID: input.LegalCaseID,
		Title:       input.Title,
	}

	if err := cc.DB.Create(&conversation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create conversation", err)
	}

	cc.Notifier.NotifyCaseConversation(&conversation)

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(conversation))
}

// ListConversations returns the caller's conversations.
func (cc *ChatController) ListConversations(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := cc.DB.Where("user_id = ?", user.ID)
	if caseID := c.Query("case_id"); caseID != "" {
		query = query.Where("legal_case_id = ?", caseID)
	}

	var conversations []models.Conversation
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).
		Find(&conversations).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch conversations", err)
	}

	var total int64
	query.Model(&models.Conversation{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  conversations,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetConversation returns the conversation with its messages. Owner only.
func (cc *ChatController) GetConversation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var conversation models.Conversation
	err := cc.DB.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&conversation).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
	}

	return c.JSON(utils.SuccessResponse(conversation))
}

// AddMessage appends the caller's message. When the message references an
// analyzed document the analysis service produces an assistant reply, which
// is stored and returned alongside.
func (cc *ChatController) AddMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var conversation models.Conversation
	err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&conversation).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
	}

	var input struct {
		Content    string `json:"content" validate:"required,max=4000"`
		DocumentID *uint  `json:"document_id"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	userMessage := models.Message{
		ConversationID: conversation.ID,
		Role:           models.MessageRoleUser,
		Content:        input.Content,
	}
	if err := cc.DB.Create(&userMessage).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save message", err)
	}

	messages := []models.Message{userMessage}

	if input.DocumentID != nil {
		var document models.LegalDocument
		err := cc.DB.Where("id = ? AND user_id = ?", *input.DocumentID, user.ID).
			First(&document).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
		}

		answer, err := cc.Analyzer.Ask(c.UserContext(), document.APIDocumentID, input.Content)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to get an answer", err)
		}

		assistantMessage := models.Message{
			ConversationID: conversation.ID,
			Role:           models.MessageRoleAssistant,
			Content:        answer,
		}
		if err := cc.DB.Create(&assistantMessage).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save reply", err)
		}
		messages = append(messages, assistantMessage)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(messages))
}

// DeleteConversation removes the conversation and its messages. Owner only.
func (cc *ChatController) DeleteConversation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var conversation models.Conversation
	err := cc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&conversation).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Conversation not found", nil)
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}
	if err := tx.Where("conversation_id = ?", conversation.ID).
		Delete(&models.Message{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete messages", err)
	}
	if err := tx.Delete(&conversation).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete conversation", err)
	}
	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Conversation deleted"}))
}
