package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type FirmController struct {
	DB     *gorm.DB
	Logger *log.Logger
	Policy *policy.Engine
}

func NewFirmController(db *gorm.DB, logger *log.Logger) *FirmController {
	return &FirmController{
		DB:     db,
		Logger: logger,
		Policy: policy.NewEngine(db),
	}
}

// CreateFirm creates a new firm with the caller as its first active admin.
// Firm and membership are committed together so the firm is never without
// an admin.
func (fc *FirmController) CreateFirm(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name    string `json:"name" validate:"required,max=200"`
		Address string `json:"address" validate:"omitempty,max=255"`
		City    string `json:"city" validate:"omitempty,max=100"`
		State   string `json:"state" validate:"omitempty,max=100"`
		Zip     string `json:"zip" validate:"omitempty,max=20"`
		Phone   string `json:"phone" validate:"omitempty,max=30"`
		Email   string `json:"email" validate:"omitempty,email"`
		Website string `json:"website" validate:"omitempty,max=255"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	firm := models.LawFirm{
		Name:    input.Name,
		Address: input.Address,
		City:    input.City,
		State:   input.State,
		Zip:     input.Zip,
		Phone:   input.Phone,
		Email:   input.Email,
		Website: input.Website,
	}

	tx := fc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if err := tx.Create(&firm).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create firm", err)
	}

	founder := models.FirmMember{
		LawFirmID: firm.ID,
		UserID:    &user.ID,
		Role:      models.MemberRoleAdmin,
		Status:    models.MemberStatusActive,
	}
	if err := tx.Create(&founder).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create founding membership", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	fc.Logger.Printf("firm %d created by user %d", firm.ID, user.ID)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(firm))
}

// GetFirm returns one firm the caller belongs to.
func (fc *FirmController) GetFirm(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := fc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if !fc.Policy.Can(user.ID, policy.ActionView, policy.FirmResource{Firm: &firm}) {
		// non-members cannot probe for firm existence
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	return c.JSON(utils.SuccessResponse(firm))
}

// UpdateFirm updates firm profile fields. Admin only.
func (fc *FirmController) UpdateFirm(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := fc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(fc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !fc.Policy.Can(user.ID, policy.ActionUpdate, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can update the firm", nil)
	}

	var input struct {
		Name    *string `json:"name" validate:"omitempty,max=200"`
		Address *string `json:"address" validate:"omitempty,max=255"`
		City    *string `json:"city" validate:"omitempty,max=100"`
		State   *string `json:"state" validate:"omitempty,max=100"`
		Zip     *string `json:"zip" validate:"omitempty,max=20"`
		Phone   *string `json:"phone" validate:"omitempty,max=30"`
		Email   *string `json:"email" validate:"omitempty,email"`
		Website *string `json:"website" validate:"omitempty,max=255"`
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
	if input.Phone != nil {
		updates["phone"] = *input.Phone
	}
	if input.Email != nil {
		updates["email"] = *input.Email
	}
	if input.Website != nil {
		updates["website"] = *input.Website
	}

	if len(updates) > 0 {
		if err := fc.DB.Model(&firm).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update firm", err)
		}
	}

	return c.JSON(utils.SuccessResponse(firm))
}

// DeleteFirm soft deletes the firm. Admin only.
func (fc *FirmController) DeleteFirm(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := fc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(fc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !fc.Policy.Can(user.ID, policy.ActionDelete, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can delete the firm", nil)
	}

	// The firm owns all of its data; everything goes in one transaction so
	// no membership or case survives the tenant.
	tx := fc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	firmCases := fc.DB.Model(&models.LegalCase{}).Select("id").Where("law_firm_id = ?", firm.ID)
	if err := tx.Where("legal_case_id IN (?)", firmCases).
		Delete(&models.CaseAssignment{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete case assignments", err)
	}

	for _, owned := range []interface{}{
		&models.Task{},
		&models.LegalCase{},
		&models.Client{},
		&models.FirmMember{},
	} {
		if err := tx.Where("law_firm_id = ?", firm.ID).Delete(owned).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete firm data", err)
		}
	}

	if err := tx.Delete(&firm).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete firm", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	fc.Logger.Printf("firm %d deleted by user %d", firm.ID, user.ID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Firm deleted"}))
}
