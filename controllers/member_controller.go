package controller

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type MemberController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Mailer   *utils.Mailer
	Notifier *utils.Notifier
}

func NewMemberController(db *gorm.DB, logger *log.Logger, mailer *utils.Mailer, notifier *utils.Notifier) *MemberController {
	return &MemberController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Mailer:   mailer,
		Notifier: notifier,
	}
}

// ListMembers returns the firm's members, active and invited.
func (mc *MemberController) ListMembers(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := mc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if !mc.Policy.Can(user.ID, policy.ActionViewMembers, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	var members []models.FirmMember
	if err := mc.DB.Preload("User").
		Where("law_firm_id = ?", firm.ID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch members", err)
	}

	return c.JSON(utils.SuccessResponse(members))
}

// InviteMember creates an invited membership and emails the join link.
func (mc *MemberController) InviteMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var firm models.LawFirm
	if err := mc.DB.First(&firm, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}

	if _, err := models.ActiveMemberOf(mc.DB, user.ID, firm.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Firm not found", nil)
	}
	if !mc.Policy.Can(user.ID, policy.ActionInviteMembers, policy.FirmResource{Firm: &firm}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only admins and attorneys can invite members", nil)
	}

	var input struct {
		Email      string `json:"email" validate:"required,email"`
		Role       string `json:"role" validate:"required,oneof=admin attorney staff"`
		Title      string `json:"title" validate:"omitempty,max=100"`
		Department string `json:"department" validate:"omitempty,max=100"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", err)
	}

	// If an account exists for the address, bind it now; otherwise the row
	// stays unbound until acceptance.
	var invitedUserID *uint
	var invitedUser models.User
	if err := mc.DB.Where("email = ?", input.Email).First(&invitedUser).Error; err == nil {
		invitedUserID = &invitedUser.ID

		var existing models.FirmMember
		err := mc.DB.Where("law_firm_id = ? AND user_id = ?", firm.ID, invitedUser.ID).
			First(&existing).Error
		if err == nil {
			return utils.ErrorResponse(c, fiber.StatusConflict, "User is already a member of this firm", nil)
		}
	}

	// A pending invite to the same address is also a duplicate
	var pending models.FirmMember
	err := mc.DB.Where("law_firm_id = ? AND invitation_email = ? AND status = ?",
		firm.ID, input.Email, models.MemberStatusInvited).First(&pending).Error
	if err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "An invitation for this email is already pending", nil)
	}

	token, err := utils.GenerateInvitationToken()
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate invitation token", err)
	}

	member := models.FirmMember{
		LawFirmID:       firm.ID,
		UserID:          invitedUserID,
		Role:            input.Role,
		Title:           input.Title,
		Department:      input.Department,
		Status:          models.MemberStatusInvited,
		InvitationToken: &token,
		InvitationEmail: input.Email,
	}

	if err := mc.DB.Create(&member).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create invitation", err)
	}

	// Email delivery is best effort; the invitation stands either way
	if err := mc.Mailer.SendInvitationEmail(input.Email, firm.Name, token); err != nil {
		mc.Logger.Printf("failed to send invitation email to %s: %v", input.Email, err)
	}

	mc.Logger.Printf("user %d invited %s to firm %d as %s", user.ID, input.Email, firm.ID, input.Role)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(member))
}

// GetInvitation returns invitation details for the join landing page.
func (mc *MemberController) GetInvitation(c *fiber.Ctx) error {
	token := c.Params("token")

	var member models.FirmMember
	err := mc.DB.Preload("LawFirm").
		Where("invitation_token = ? AND status = ?", token, models.MemberStatusInvited).
		First(&member).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Invalid or already used invitation", nil)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"firm_name": member.LawFirm.Name,
		"role":      member.Role,
		"email":     member.InvitationEmail,
	}))
}

// AcceptInvitation binds the authenticated caller to the invited membership.
func (mc *MemberController) AcceptInvitation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	token := c.Params("token")

	member, err := ConsumeInvitation(mc.DB, token, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Invalid or already used invitation", nil)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.ErrorResponse(c, fiber.StatusConflict, "You are already a member of this firm", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to accept invitation", err)
	}

	mc.Logger.Printf("user %d accepted invitation into firm %d", user.ID, member.LawFirmID)
	return c.JSON(utils.SuccessResponse(member))
}

// ConsumeInvitation atomically spends an invitation token for the given
// user. The conditional update is the arbiter: only rows still in the
// invited state match, so of two concurrent accepts exactly one sees a
// nonzero row count. A token that never existed and a token already spent
// both come back as gorm.ErrRecordNotFound.
func ConsumeInvitation(db *gorm.DB, token string, userID uint) (*models.FirmMember, error) {
	var member models.FirmMember
	err := db.Where("invitation_token = ? AND status = ?", token, models.MemberStatusInvited).
		First(&member).Error
	if err != nil {
		return nil, err
	}

	res := db.Model(&models.FirmMember{}).
		Where("id = ? AND status = ? AND invitation_token = ?",
			member.ID, models.MemberStatusInvited, token).
		Updates(map[string]interface{}{
			"user_id":                userID,
			"status":                 models.MemberStatusActive,
			"invitation_token":       nil,
			"invitation_accepted_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race to a concurrent accept
		return nil, gorm.ErrRecordNotFound
	}

	if err := db.First(&member, member.ID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMember changes a member's role, title, department or active status.
// Demoting or deactivating an admin is refused when it would leave the firm
// without one.
func (mc *MemberController) UpdateMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var member models.FirmMember
	if err := mc.DB.First(&member, c.Params("memberID")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Member not found", nil)
	}

	// outsiders see nothing, members without privilege are refused
	if _, err := models.ActiveMemberOf(mc.DB, user.ID, member.LawFirmID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Member not found", nil)
	}
	if !mc.Policy.Can(user.ID, policy.ActionUpdate, policy.MemberResource{Member: &member}) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can update members", nil)
	}

	var input struct {
		Role       *string `json:"role" validate:"omitempty,oneof=admin attorney staff"`
		Title      *string `json:"title" validate:"omitempty,max=100"`
		Department *string `json:"department" validate:"omitempty,max=100"`
		Status     *string `json:"status" validate:"omitempty,oneof=active inactive"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	// a role change away from admin and a deactivation both shrink the
	// active admin pool
	demotesAdmin := member.IsAdmin() && member.IsActive() &&
		((input.Role != nil && *input.Role != models.MemberRoleAdmin) ||
			(input.Status != nil && *input.Status != models.MemberStatusActive))

	tx := mc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if demotesAdmin {
		// the count must run in the same transaction as the write
		remaining, err := models.ActiveAdminCountExcluding(tx, member.LawFirmID, member.ID)
		if err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check admin count", err)
		}
		if remaining == 0 {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, models.ErrLastAdmin.Error(), nil)
		}
	}

	updates := map[string]interface{}{}
	if input.Role != nil {
		updates["role"] = *input.Role
	}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Department != nil {
		updates["department"] = *input.Department
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}

	if len(updates) > 0 {
		if err := tx.Model(&member).Updates(updates).Error; err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update member", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	return c.JSON(utils.SuccessResponse(member))
}

// RemoveMember removes a member from the firm. Admins cannot remove
// themselves, and the last active admin cannot be removed.
func (mc *MemberController) RemoveMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var member models.FirmMember
	if err := mc.DB.First(&member, c.Params("memberID")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Member not found", nil)
	}

	actor, err := models.ActiveMemberOf(mc.DB, user.ID, member.LawFirmID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Member not found", nil)
	}
	if !actor.IsAdmin() {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Only firm admins can remove members", nil)
	}
	if actor.ID == member.ID {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "You cannot remove yourself from the firm", nil)
	}

	tx := mc.DB.Begin()
	if tx.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to start transaction", tx.Error)
	}

	if member.IsAdmin() && member.IsActive() {
		remaining, err := models.ActiveAdminCountExcluding(tx, member.LawFirmID, member.ID)
		if err != nil {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check admin count", err)
		}
		if remaining == 0 {
			tx.Rollback()
			return utils.ErrorResponse(c, fiber.StatusUnprocessableEntity, models.ErrLastAdmin.Error(), nil)
		}
	}

	// Release the member's case assignments along with the membership
	if err := tx.Where("firm_member_id = ?", member.ID).
		Delete(&models.CaseAssignment{}).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove case assignments", err)
	}

	if err := tx.Delete(&member).Error; err != nil {
		tx.Rollback()
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to remove member", err)
	}

	if err := tx.Commit().Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to commit", err)
	}

	mc.Logger.Printf("member %d removed from firm %d by user %d", member.ID, member.LawFirmID, user.ID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Member removed"}))
}
