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

type CaseController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Notifier *utils.Notifier
}

func NewCaseController(db *gorm.DB, logger *log.Logger, notifier *utils.Notifier) *CaseController {
	return &CaseController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Notifier: notifier,
	}
}

type caseTeamInput struct {
	FirmMemberID uint   `json:"firm_member_id" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=lead associate paralegal support"`
}

// ListCases returns the firm's cases the caller may see: all of them for
// admins, otherwise cases they created or are assigned to.
func (cc *CaseController) ListCases(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := cc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	member, err := models.ActiveMemberOf(cc.DB, user.ID, firm.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := cc.DB.Model(&models.LegalCase{}).Where("legal_cases.law_firm_id = ?", firm.ID)

	if !member.IsAdmin() {
		query = query.Where(
			"legal_cases.user_id = ? OR legal_cases.id IN (?)",
			user.ID,
			cc.DB.Model(&models.CaseAssignment{}).
				Select("legal_case_id").
				Where("firm_member_id = ?", member.ID),
		)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("legal_cases.status = ?", status)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("legal_cases.category = ?", category)
	}
	if clientID := c.Query("client_id"); clientID != "" {
		query = query.Where("legal_cases.client_id = ?", clientID)
	}

	var cases []models.LegalCase
	err = query.Preload("Client").Preload("TeamMembers.FirmMember.User").
		Order("legal_cases.created_at DESC").
		Offset(offset).Limit(limit).Find(&cases).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch cases", err)
	}

	var total int64
	query.Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  cases,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// CreateCase creates a case with its initial team. The creator always ends
// up on the team, as lead unless the submitted team already includes them.
func (cc *CaseController) CreateCase(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := cc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	creator, err := models.ActiveMemberOf(cc.DB, user.ID, firm.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !cc.Policy.Can(user.ID, policy.ActionCreateCase, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only admins and attorneys can create cases", nil)
	}

	var input struct {
		Title        string          `json:"title" validate:"required,max=255"`
		Description  string          `json:"description"`
		CaseNumber   string          `json:"case_number" validate:"omitempty,max=100"`
		Jurisdiction string          `json:"jurisdiction" validate:"omitempty,max=100"`
		Status       string          `json:"status" validate:"omitempty,oneof=active pending closed"`
		Category     string          `json:"category" validate:"omitempty,max=100"`
		ClientID     *uint           `json:"client_id"`
		TeamMembers  []caseTeamInput `json:"team_members" validate:"omitempty,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.Status == "" {
		input.Status = models.CaseStatusActive
	}

	// The client reference must stay inside the firm
	if input.ClientID != nil {
		var client models.Client
		err := cc.DB.Where("id = ? AND law_firm_id = ?", *input.ClientID, firm.ID).
			First(&client).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
		}
	}

	team, err := cc.resolveTeam(firm.ID, creator.ID, input.TeamMembers)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Team member not found", nil)
	}

	legalCase := models.LegalCase{
		UserID:       user.ID,
		LawFirmID:    firm.ID,
		ClientID:     input.ClientID,
		Title:        input.Title,
		Description:  input.Description,
		CaseNumber:   input.CaseNumber,
		Jurisdiction: input.Jurisdiction,
		Status:       input.Status,
		Category:     input.Category,
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if err := tx.Create(&legalCase).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create case", err)
	}

	var assignments []models.CaseAssignment
	for _, t := range team {
		assignment := models.CaseAssignment{
			LegalCaseID:  legalCase.ID,
			FirmMemberID: t.FirmMemberID,
			Role:         t.Role,
		}
		if err := tx.Create(&assignment).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to assign team", err)
		}
		assignments = append(assignments, assignment)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	// Fan-out runs strictly after commit; the creator is not notified about
	// their own action
	for i := range assignments {
		if assignments[i].FirmMemberID == creator.ID {
			continue
		}
		cc.Notifier.NotifyCaseAssignment(&legalCase, &assignments[i])
	}

	cc.Logger.Printf("case %d created in firm %d by user %d", legalCase.ID, firm.ID, user.ID)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(legalCase))
}

// resolveTeam validates the submitted team against the firm and guarantees
// the creator is on it, defaulting them to lead.
func (cc *CaseController) resolveTeam(firmID, creatorMemberID uint, team []caseTeamInput) ([]caseTeamInput, error) {
	seen := map[uint]bool{}
	resolved := make([]caseTeamInput, 0, len(team)+1)

	for _, t := range team {
		if seen[t.FirmMemberID] {
			continue
		}
		var member models.FirmMember
		err := cc.DB.Where("id = ? AND law_firm_id = ? AND status = ?",
			t.FirmMemberID, firmID, models.MemberStatusActive).First(&member).Error
		if err != nil {
			return nil, err
		}
		seen[t.FirmMemberID] = true
		resolved = append(resolved, t)
	}

	if !seen[creatorMemberID] {
		resolved = append(resolved, caseTeamInput{
			FirmMemberID: creatorMemberID,
			Role:         models.AssignmentRoleLead,
		})
	}
	return resolved, nil
}

// GetCase returns one case with team, client, tasks and documents.
func (cc *CaseController) GetCase(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var legalCase models.LegalCase
	err := cc.DB.Preload("Client").
		Preload("TeamMembers.FirmMember.User").
		Preload("Tasks").
		Preload("Documents").
		First(&legalCase, c.Params("id")).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}

	if !cc.Policy.Can(user.ID, policy.ActionView, policy.CaseResource{Case: &legalCase}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}

	return c.JSON(utils.SuccessResponse(legalCase))
}

// UpdateCase updates case fields and, when a team list is submitted,
// replaces the whole team in one transaction so a partial list is never
// visible.
func (cc *CaseController) UpdateCase(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var legalCase models.LegalCase
	if err := cc.DB.First(&legalCase, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}

	if _, err := models.ActiveMemberOf(cc.DB, user.ID, legalCase.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}
	if !cc.Policy.Can(user.ID, policy.ActionUpdate, policy.CaseResource{Case: &legalCase}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot update this case", nil)
	}

	var input struct {
		Title        *string          `json:"title" validate:"omitempty,max=255"`
		Description  *string          `json:"description"`
		CaseNumber   *string          `json:"case_number" validate:"omitempty,max=100"`
		Jurisdiction *string          `json:"jurisdiction" validate:"omitempty,max=100"`
		Status       *string          `json:"status" validate:"omitempty,oneof=active pending closed"`
		Category     *string          `json:"category" validate:"omitempty,max=100"`
		ClientID     *uint            `json:"client_id"`
		TeamMembers  *[]caseTeamInput `json:"team_members" validate:"omitempty,dive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if input.ClientID != nil {
		var client models.Client
		err := cc.DB.Where("id = ? AND law_firm_id = ?", *input.ClientID, legalCase.LawFirmID).
			First(&client).Error
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Client not found", nil)
		}
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.CaseNumber != nil {
		updates["case_number"] = *input.CaseNumber
	}
	if input.Jurisdiction != nil {
		updates["jurisdiction"] = *input.Jurisdiction
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.ClientID != nil {
		updates["client_id"] = *input.ClientID
	}

	// Remember who was on the team so only the newcomers get notified
	priorTeam := map[uint]bool{}
	var newAssignments []models.CaseAssignment

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if len(updates) > 0 {
		if err := tx.Model(&legalCase).Updates(updates).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update case", err)
		}
	}

	if input.TeamMembers != nil {
		var prior []models.CaseAssignment
		if err := tx.Where("legal_case_id = ?", legalCase.ID).Find(&prior).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load team", err)
		}
		for _, a := range prior {
			priorTeam[a.FirmMemberID] = true
		}

		seen := map[uint]bool{}
		for _, t := range *input.TeamMembers {
			if seen[t.FirmMemberID] {
				tx.Rollback()
				return utils.ErrorResponse(c, fiber.StatusBadRequest, "Duplicate team member", nil)
			}
			seen[t.FirmMemberID] = true

			var member models.FirmMember
			err := tx.Where("id = ? AND law_firm_id = ? AND status = ?",
				t.FirmMemberID, legalCase.LawFirmID, models.MemberStatusActive).
				First(&member).Error
			if err != nil {
				tx.Rollback()
				return utils.ErrorResponse(c, fiber.StatusNotFound, "Team member not found", nil)
			}
		}

		// Replace the whole team: delete everything, then recreate
		if err := tx.Unscoped().Where("legal_case_id = ?", legalCase.ID).
			Delete(&models.CaseAssignment{}).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to replace team", err)
		}

		for _, t := range *input.TeamMembers {
			assignment := models.CaseAssignment{
				LegalCaseID:  legalCase.ID,
				FirmMemberID: t.FirmMemberID,
				Role:         t.Role,
			}
			if err := tx.Create(&assignment).Error; err != nil {
				tx.Rollback()
				return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to replace team", err)
			}
			newAssignments = append(newAssignments, assignment)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	actor, _ := models.ActiveMemberOf(cc.DB, user.ID, legalCase.LawFirmID)
	for i := range newAssignments {
		if priorTeam[newAssignments[i].FirmMemberID] {
			continue
		}
		if actor != nil && newAssignments[i].FirmMemberID == actor.ID {
			continue
		}
		cc.Notifier.NotifyCaseAssignment(&legalCase, &newAssignments[i])
	}

	return c.JSON(utils.SuccessResponse(legalCase))
}

// DeleteCase deletes the case and its assignments. Admin only.
func (cc *CaseController) DeleteCase(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var legalCase models.LegalCase
	if err := cc.DB.First(&legalCase, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}

	if _, err := models.ActiveMemberOf(cc.DB, user.ID, legalCase.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
	}
	if !cc.Policy.Can(user.ID, policy.ActionDelete, policy.CaseResource{Case: &legalCase}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can delete cases", nil)
	}

	tx := cc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if err := tx.Where("legal_case_id = ?", legalCase.ID).
		Delete(&models.CaseAssignment{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete assignments", err)
	}

	if err := tx.Delete(&legalCase).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete case", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	cc.Logger.Printf("case %d deleted by user %d", legalCase.ID, user.ID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Case deleted"}))
}
