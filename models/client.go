package models

import "gorm.io/gorm"

// Client types
const (
	ClientTypeIndividual   = "individual"
	ClientTypeOrganization = "organization"
)

// Client statuses
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
)

// Client represents a person or organization the firm works for
type Client struct {
	gorm.Model
	LawFirmID uint `gorm:"not null;index" json:"law_firm_id"`

	Name        string `gorm:"not null" json:"name"`
	Type        string `gorm:"not null;default:'individual'" json:"type"`
	ContactName string `json:"contact_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	Status      string `gorm:"not null;default:'active'" json:"status"`
	Notes       string `json:"notes"`

	// Relations
	LawFirm LawFirm     `json:"-"`
	Cases   []LegalCase `gorm:"foreignKey:ClientID" json:"cases,omitempty"`
}

func (c *Client) IsActive() bool { return c.Status == ClientStatusActive }
