package models

import "gorm.io/gorm"

// Legal case statuses
const (
	CaseStatusActive  = "active"
	CaseStatusPending = "pending"
	CaseStatusClosed  = "closed"
)

// Case team roles
const (
	AssignmentRoleLead      = "lead"
	AssignmentRoleAssociate = "associate"
	AssignmentRoleParalegal = "paralegal"
	AssignmentRoleSupport   = "support"
)

// LegalCase belongs to a firm and optionally a client. UserID is the
// creator, who keeps view access regardless of team membership.
type LegalCase struct {
	gorm.Model
	UserID    uint  `gorm:"not null;index" json:"user_id"`
	LawFirmID uint  `gorm:"not null;index" json:"law_firm_id"`
	ClientID  *uint `gorm:"index" json:"client_id"`

	Title        string `gorm:"not null" json:"title"`
	Description  string `json:"description"`
	CaseNumber   string `json:"case_number"`
	Jurisdiction string `json:"jurisdiction"`
	Status       string `gorm:"not null;default:'active'" json:"status"`
	Category     string `json:"category"`

	// Relations
	LawFirm       LawFirm          `json:"-"`
	Client        *Client          `json:"client,omitempty"`
	TeamMembers   []CaseAssignment `gorm:"foreignKey:LegalCaseID" json:"team_members,omitempty"`
	Tasks         []Task           `gorm:"foreignKey:LegalCaseID" json:"tasks,omitempty"`
	Documents     []LegalDocument  `gorm:"foreignKey:LegalCaseID" json:"documents,omitempty"`
	Conversations []Conversation   `gorm:"foreignKey:LegalCaseID" json:"conversations,omitempty"`
}

func (lc *LegalCase) IsActive() bool  { return lc.Status == CaseStatusActive }
func (lc *LegalCase) IsPending() bool { return lc.Status == CaseStatusPending }
func (lc *LegalCase) IsClosed() bool  { return lc.Status == CaseStatusClosed }

// ValidCaseStatus reports whether status is one of the case statuses.
func ValidCaseStatus(status string) bool {
	switch status {
	case CaseStatusActive, CaseStatusPending, CaseStatusClosed:
		return true
	}
	return false
}

// ValidAssignmentRole reports whether role is one of the case team roles.
func ValidAssignmentRole(role string) bool {
	switch role {
	case AssignmentRoleLead, AssignmentRoleAssociate, AssignmentRoleParalegal, AssignmentRoleSupport:
		return true
	}
	return false
}

// CaseAssignment attaches one firm member to one case with a team role.
// At most one row may exist per (case, member) pair.
type CaseAssignment struct {
	gorm.Model
	LegalCaseID  uint   `gorm:"not null;index;uniqueIndex:idx_case_member" json:"legal_case_id"`
	FirmMemberID uint   `gorm:"not null;index;uniqueIndex:idx_case_member" json:"firm_member_id"`
	Role         string `gorm:"not null;default:'support'" json:"role"`

	// Relations
	LegalCase  LegalCase  `json:"-"`
	FirmMember FirmMember `json:"firm_member,omitempty"`
}

func (a *CaseAssignment) IsLead() bool { return a.Role == AssignmentRoleLead }
