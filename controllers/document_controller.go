package controller

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lexnexy/config"
	"lexnexy/models"
	"lexnexy/policy"
	"lexnexy/utils"
)

type DocumentController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Policy   *policy.Engine
	Analyzer *utils.AnalyzerClient
	Notifier *utils.Notifier
}

func NewDocumentController(db *gorm.DB, logger *log.Logger, analyzer *utils.AnalyzerClient, notifier *utils.Notifier) *DocumentController {
	return &DocumentController{
		DB:       db,
		Logger:   logger,
		Policy:   policy.NewEngine(db),
		Analyzer: analyzer,
		Notifier: notifier,
	}
}

// UploadDocument stores the file, runs it through the analysis service and
// persists the result. An analysis failure rolls the upload back so no
// document row is left without an analysis.
func (dc *DocumentController) UploadDocument(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "A document file is required", err)
	}

	title := c.FormValue("title")
	if title == "" {
		title = fileHeader.Filename
	}

	docType := c.FormValue("type", models.DocumentTypeGeneral)
	if !models.ValidDocumentType(docType) {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid document type", nil)
	}

	// A case-linked document requires view access on that case
	var caseID *uint
	if raw := c.FormValue("legal_case_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid case ID", err)
		}
		var legalCase models.LegalCase
		if err := dc.DB.First(&legalCase, uint(parsed)).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
		if !dc.Policy.Can(user.ID, policy.ActionView, policy.CaseResource{Case: &legalCase}) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Case not found", nil)
		}
		caseID = utils.Pointer(uint(parsed))
	}

	if err := os.MkdirAll(config.AppConfig.StoragePath, 0o755); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to prepare storage", err)
	}

	filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename))
	storedPath := filepath.Join(config.AppConfig.StoragePath, filename)
	if err := c.SaveFile(fileHeader, storedPath); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store file", err)
	}

	result, err := dc.Analyzer.Analyze(c.UserContext(), storedPath, docType)
	if err != nil {
		// no orphan artifacts on analysis failure
		if rmErr := os.Remove(storedPath); rmErr != nil {
			dc.Logger.Printf("failed to clean up %s: %v", storedPath, rmErr)
		}
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Document analysis failed", err)
	}

	document := models.LegalDocument{
		UserID:        user.ID,
		LegalCaseID:   caseID,
		Title:         title,
		FilePath:      storedPath,
		Type:          docType,
		Analysis:      datatypes.JSON(result.Analysis),
		APIDocumentID: result.DocumentID,
	}

	if err := dc.DB.Create(&document).Error; err != nil {
		if rmErr := os.Remove(storedPath); rmErr != nil {
			dc.Logger.Printf("failed to clean up %s: %v", storedPath, rmErr)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to save document", err)
	}

	dc.Notifier.NotifyDocumentAnalyzed(&document)

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(document))
}

// ListDocuments returns the caller's documents.
func (dc *DocumentController) ListDocuments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query := dc.DB.Where("user_id = ?", user.ID)
	if docType := c.Query("type"); docType != "" {
		query = query.Where("type = ?", docType)
	}
	if caseID := c.Query("case_id"); caseID != "" {
		query = query.Where("legal_case_id = ?", caseID)
	}

	var documents []models.LegalDocument
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&documents).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch documents", err)
	}

	var total int64
	query.Model(&models.LegalDocument{}).Count(&total)

	return c.JSON(utils.PaginatedResponse{
		Data:  documents,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetDocument returns one document. The uploader always has access; for
// case-linked documents anyone who can view the case can view the document.
func (dc *DocumentController) GetDocument(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var document models.LegalDocument
	if err := dc.DB.First(&document, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
	}

	if !dc.canViewDocument(user.ID, &document) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
	}

	return c.JSON(utils.SuccessResponse(document))
}

// AskDocument forwards a follow-up question about an analyzed document to
// the analysis service.
func (dc *DocumentController) AskDocument(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var document models.LegalDocument
	if err := dc.DB.First(&document, c.Params("id")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
	}

	if !dc.canViewDocument(user.ID, &document) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
	}

	var input struct {
		Question string `json:"question" validate:"required,max=2000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	answer, err := dc.Analyzer.Ask(c.UserContext(), document.APIDocumentID, input.Question)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "Failed to get an answer", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"answer": answer}))
}

// DeleteDocument removes the document row and its stored file. Uploader only.
func (dc *DocumentController) DeleteDocument(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var document models.LegalDocument
	if err := dc.DB.Where("id = ? AND user_id = ?", c.Params("id"), user.ID).
		First(&document).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Document not found", nil)
	}

	if err := dc.DB.Delete(&document).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete document", err)
	}

	if err := os.Remove(document.FilePath); err != nil && !os.IsNotExist(err) {
		dc.Logger.Printf("failed to remove file %s: %v", document.FilePath, err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Document deleted"}))
}

func (dc *DocumentController) canViewDocument(userID uint, document *models.LegalDocument) bool {
	if document.UserID == userID {
		return true
	}
	if document.LegalCaseID == nil {
		return false
	}
	var legalCase models.LegalCase
	if err := dc.DB.First(&legalCase, *document.LegalCaseID).Error; err != nil {
		return false
	}
	return dc.Policy.Can(userID, policy.ActionView, policy.CaseResource{Case: &legalCase})
}
