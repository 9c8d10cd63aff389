package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrLastAdmin is returned when a mutation would leave a firm without any
// active admin member. It is a business-rule violation, not a permission
// failure, and must surface to the caller as such.
var ErrLastAdmin = errors.New("cannot demote or remove the last admin of the firm")

// LawFirm is the tenant boundary: every piece of firm data is scoped to one
type LawFirm struct {
	gorm.Model
	Name     string `gorm:"not null" json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Website  string `json:"website"`
	LogoPath string `json:"logo_path"`

	// Relations
	Members []FirmMember `gorm:"foreignKey:LawFirmID" json:"members,omitempty"`
	Clients []Client     `gorm:"foreignKey:LawFirmID" json:"clients,omitempty"`
	Cases   []LegalCase  `gorm:"foreignKey:LawFirmID" json:"cases,omitempty"`
}

// Firm member roles
const (
	MemberRoleAdmin    = "admin"
	MemberRoleAttorney = "attorney"
	MemberRoleStaff    = "staff"
)

// Firm member lifecycle statuses
const (
	MemberStatusInvited  = "invited"
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
)

// FirmMember pairs one user with one firm. While the member is still
// invited, UserID may be nil and the row is identified by the invitation
// token alone.
type FirmMember struct {
	gorm.Model
	// The uniqueness of (firm, user) only holds among live rows so a removed
	// member can be invited back.
	LawFirmID uint  `gorm:"not null;index;uniqueIndex:idx_firm_user,where:deleted_at IS NULL" json:"law_firm_id"`
	UserID    *uint `gorm:"index;uniqueIndex:idx_firm_user" json:"user_id"`

	Role       string `gorm:"not null;default:'staff'" json:"role"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Status     string `gorm:"not null;default:'invited';index" json:"status"`

	// Present only while status is invited; cleared on acceptance
	InvitationToken      *string    `gorm:"uniqueIndex" json:"-"`
	InvitationEmail      string     `gorm:"index" json:"invitation_email,omitempty"`
	InvitationAcceptedAt *time.Time `json:"invitation_accepted_at,omitempty"`

	// Relations
	LawFirm LawFirm `json:"-"`
	User    *User   `json:"user,omitempty"`
}

func (m *FirmMember) IsAdmin() bool    { return m.Role == MemberRoleAdmin }
func (m *FirmMember) IsAttorney() bool { return m.Role == MemberRoleAttorney }
func (m *FirmMember) IsStaff() bool    { return m.Role == MemberRoleStaff }
func (m *FirmMember) IsActive() bool   { return m.Status == MemberStatusActive }

// ValidMemberRole reports whether role is one of the firm member roles.
func ValidMemberRole(role string) bool {
	switch role {
	case MemberRoleAdmin, MemberRoleAttorney, MemberRoleStaff:
		return true
	}
	return false
}

// ActiveAdminCountExcluding counts the firm's active admin members leaving
// out the member being mutated. It must run inside the same transaction as
// the demotion or removal write so two concurrent demotions cannot both pass.
func ActiveAdminCountExcluding(tx *gorm.DB, firmID, memberID uint) (int64, error) {
	var count int64
	err := tx.Model(&FirmMember{}).
		Where("law_firm_id = ? AND role = ? AND status = ? AND id <> ?",
			firmID, MemberRoleAdmin, MemberStatusActive, memberID).
		Count(&count).Error
	return count, err
}

// ActiveMemberOf returns the user's active membership within the given firm,
// or gorm.ErrRecordNotFound when the user has none. Inactive and invited
// memberships carry no capability and are never returned.
func ActiveMemberOf(db *gorm.DB, userID, firmID uint) (*FirmMember, error) {
	var member FirmMember
	err := db.Where("user_id = ? AND law_firm_id = ? AND status = ?",
		userID, firmID, MemberStatusActive).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}
