package models

import "gorm.io/gorm"

// KnowledgeEntry is a firm-scoped reference item. Creating one fans out a
// notification to every other active member, filtered by their
// knowledge_base_updates preference.
type KnowledgeEntry struct {
	gorm.Model
	LawFirmID uint `gorm:"not null;index" json:"law_firm_id"`
	UserID    uint `gorm:"not null;index" json:"user_id"`

	Title    string `gorm:"not null" json:"title"`
	Type     string `gorm:"not null;default:'article'" json:"type"`
	Category string `json:"category"`
	Content  string `json:"content"`

	// Relations
	LawFirm LawFirm `json:"-"`
	User    User    `json:"user,omitempty"`
}
