package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document analysis types
const (
	DocumentTypeGeneral   = "general"
	DocumentTypeContract  = "contract"
	DocumentTypeCase      = "case"
	DocumentTypeDiscovery = "discovery"
)

// LegalDocument is an uploaded file plus the opaque analysis payload the
// external analysis service returned for it. The payload schema is the
// collaborator's business; we only store and display it.
type LegalDocument struct {
	gorm.Model
	UserID      uint  `gorm:"not null;index" json:"user_id"`
	LegalCaseID *uint `gorm:"index" json:"legal_case_id"`

	Title         string         `gorm:"not null" json:"title"`
	FilePath      string         `gorm:"not null" json:"file_path"`
	Type          string         `gorm:"not null;default:'general'" json:"type"`
	Analysis      datatypes.JSON `json:"analysis"`
	APIDocumentID string         `json:"api_document_id"`

	// Relations
	User      User       `json:"-"`
	LegalCase *LegalCase `json:"legal_case,omitempty"`
}

// ValidDocumentType reports whether t is one of the analysis types.
func ValidDocumentType(t string) bool {
	switch t {
	case DocumentTypeGeneral, DocumentTypeContract, DocumentTypeCase, DocumentTypeDiscovery:
		return true
	}
	return false
}
