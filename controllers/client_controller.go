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

type ClientController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Policy *policy.Engine
}

func NewClientController(db *gorm.DB, logger *log.Logger) *ClientController {
	return &ClientController{
		DB:     db,
		Logger: logger,
		Policy: policy.NewEngine(db),
	}
}

// ListClients returns paginated clients of the firm.
func (cc *ClientController) ListClients(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := cc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if !cc.Policy.Can(user.ID, policy.ActionViewClients, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := cc.DB.Where("law_firm_id = ?", firm.ID)

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if clientType := c.Query("type"); clientType != "" {
		query = query.Where("type = ?", clientType)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var clients []models.Client
	if err := query.Order("name ASC").Offset(offset).Limit(limit).Find(&clients).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch clients", err)
	}

	var total int64
	query.Model(&models.Client{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  clients,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// CreateClient creates a firm client. Any active member may create one.
func (cc *ClientController) CreateClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := cc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if !cc.Policy.Can(user.ID, policy.ActionCreateClient, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	var input struct {
		Name        string `json:"name" validate:"required,max=200"`
		Type        string `json:"type" validate:"omitempty,oneof=individual organization"`
		ContactName string `json:"contact_name" validate:"omitempty,max=200"`
		Email       string `json:"email" validate:"omitempty,email"`
		Phone       string `json:"phone" validate:"omitempty,max=30"`
		Address     string `json:"address" validate:"omitempty,max=255"`
		City        string `json:"city" validate:"omitempty,max=100"`
		State       string `json:"state" validate:"omitempty,max=100"`
		Zip         string `json:"zip" validate:"omitempty,max=20"`
		Notes       string `json:"notes"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Type == "" {
		input.Type = models.ClientTypeIndividual
	}

	client := models.Client{
		LawFirmID:   firm.ID,
		Name:        input.Name,
		Type:        input.Type,
		ContactName: input.ContactName,
		Email:       input.Email,
		Phone:       input.Phone,
		Address:     input.Address,
		City:        input.City,
		State:       input.State,
		Zip:         input.Zip,
		Status:      models.ClientStatusActive,
		Notes:       input.Notes,
	}

	if err := cc.DB.Create(&client).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create client", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(client))
}

// GetClient returns one client with its cases.
func (cc *ClientController) GetClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var client models.Client
	if err := cc.DB.Preload("Cases").First(&client, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}

	if !cc.Policy.Can(user.ID, policy.ActionView, policy.ClientResource{Client: &client}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}

	return c.JSON(utils.SuccessResponse(client))
}

// UpdateClient updates client fields. Admins and attorneys only.
func (cc *ClientController) UpdateClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var client models.Client
	if err := cc.DB.First(&client, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}

	if _, err := models.ActiveMemberOf(cc.DB, user.ID, client.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}
	if !cc.Policy.Can(user.ID, policy.ActionUpdate, policy.ClientResource{Client: &client}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot update this client", nil)
	}

	var input struct {
		Name        *string `json:"name" validate:"omitempty,max=200"`
		Type        *string `json:"type" validate:"omitempty,oneof=individual organization"`
		ContactName *string `json:"contact_name" validate:"omitempty,max=200"`
		Email       *string `json:"email" validate:"omitempty,email"`
		Phone       *string `json:"phone" validate:"omitempty,max=30"`
		Address     *string `json:"address" validate:"omitempty,max=255"`
		City        *string `json:"city" validate:"omitempty,max=100"`
		State       *string `json:"state" validate:"omitempty,max=100"`
		Zip         *string `json:"zip" validate:"omitempty,max=20"`
		Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
		Notes       *string `json:"notes"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Type != nil {
		updates["type"] = *input.Type
	}
	if input.ContactName != nil {
		updates["contact_name"] = *input.ContactName
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Address != nil {
		updates["address"] = *input.Address
	}
	if input.City != nil {
		updates["city"] = *input.City
	}
	if input.State != nil {
		updates["state"] = *input.State
	}
	if input.Zip != nil {
		updates["zip"] = *input.Zip
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}

	if len(updates) > 0 {
		if err := cc.DB.Model(&client).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update client", err)
		}
	}

	return c.JSON(utils.SuccessResponse(client))
}

// DeleteClient soft deletes the client. Admin only.
func (cc *ClientController) DeleteClient(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var client models.Client
	if err := cc.DB.First(&client, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}

	if _, err := models.ActiveMemberOf(cc.DB, user.ID, client.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
	}
	if !cc.Policy.Can(user.ID, policy.ActionDelete, policy.ClientResource{Client: &client}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can delete clients", nil)
	}

	if err := cc.DB.Delete(&client).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete client", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Client deleted"}))
}
