package models

import "gorm.io/gorm"

// Conversation is an AI chat transcript, optionally linked to a case.
// Creating a case-linked conversation notifies the case team.
type Conversation struct {
	gorm.Model
	UserID      uint  `gorm:"not null;index" json:"user_id"`
	LegalCaseID *uint `gorm:"index" json:"legal_case_id"`

	Title string `gorm:"not null" json:"title"`

	// Relations
	User      User       `json:"-"`
	LegalCase *LegalCase `json:"legal_case,omitempty"`
	Messages  []Message  `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// Message roles
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Message struct {
	gorm.Model
	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	Role           string `gorm:"not null" json:"role"`
	Content        string `gorm:"not null" json:"content"`

	Conversation Conversation `json:"-"`
}
