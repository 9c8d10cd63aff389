package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"lexnexy/config"
	"lexnexy/models"
)

// AnalyzerClient talks to the external document analysis service. Each
// document type maps to its own analysis endpoint.
type AnalyzerClient struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Entry
}

// AnalysisResult is the raw analysis payload returned by the service plus
// the identifier it assigned to the uploaded document.
type AnalysisResult struct {
	DocumentID string
	Analysis   json.RawMessage
}

func NewAnalyzerClient(logger *logrus.Logger) *AnalyzerClient {
	return &AnalyzerClient{
		baseURL: config.AppConfig.AnalyzerURL,
		client:  &http.Client{Timeout: config.AppConfig.AnalyzerTimeout},
		logger:  logger.WithField("component", "analyzer"),
	}
}

var analyzerEndpoints = map[string]string{
	models.DocumentTypeGeneral:   "/analyze/general",
	models.DocumentTypeContract:  "/analyze/contract",
	models.DocumentTypeCase:      "/analyze/case",
	models.DocumentTypeDiscovery: "/analyze/discovery",
}

// Analyze uploads the stored file to the endpoint matching the document
// type and returns the parsed analysis.
func (a *AnalyzerClient) Analyze(ctx context.Context, filePath, documentType string) (*AnalysisResult, error) {
	if a.baseURL == "" {
		return nil, fmt.Errorf("analyzer service is not configured")
	}

	endpoint, ok := analyzerEndpoints[documentType]
	if !ok {
		return nil, fmt.Errorf("unsupported document type: %s", documentType)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		a.reportFailure(err, documentType)
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analyzer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, string(respBody))
		a.reportFailure(err, documentType)
		return nil, err
	}

	var parsed struct {
		DocumentID string          `json:"document_id"`
		Analysis   json.RawMessage `json:"analysis"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode analyzer response: %w", err)
	}

	return &AnalysisResult{
		DocumentID: parsed.DocumentID,
		Analysis:   parsed.Analysis,
	}, nil
}

// Ask sends a follow-up question about a previously analyzed document and
// returns the assistant's answer.
func (a *AnalyzerClient) Ask(ctx context.Context, apiDocumentID, question string) (string, error) {
	if a.baseURL == "" {
		return "", fmt.Errorf("analyzer service is not configured")
	}

	body, err := json.Marshal(map[string]string{
		"document_id": apiDocumentID,
		"question":    question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/ask", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.reportFailure(err, "ask")
		return "", fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read analyzer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("analyzer returned status %d: %s", resp.StatusCode, string(respBody))
		a.reportFailure(err, "ask")
		return "", err
	}

	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	return parsed.Answer, nil
}

func (a *AnalyzerClient) reportFailure(err error, operation string) {
	a.logger.WithError(err).WithField("operation", operation).Error("analyzer call failed")
	sentry.CaptureException(err)
}
