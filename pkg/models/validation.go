package models

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

type ValidationError struct {
	Code     string   `json:"code"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

type ValidationWarning struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Impact  string `json:"impact"`
}

// ValidationResult is the outcome of a fiscal validation run. It is built once
// and then only read; IsValid is true iff Errors is empty.
type ValidationResult struct {
	AccessKey    string              `json:"accessKey"`
	DocumentType DocumentType        `json:"documentType"`
	IsValid      bool                `json:"isValid"`
	Errors       []ValidationError   `json:"errors"`
	Warnings     []ValidationWarning `json:"warnings"`
	Suggestions  []string            `json:"suggestions"`
	ValidatedAt  time.Time           `json:"validatedAt"`
}

// ProcessingResult is what the orchestrator returns for one ingested payload.
type ProcessingResult struct {
	DocumentType DocumentType      `json:"documentType"`
	AccessKey    string            `json:"accessKey"`
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Validation   *ValidationResult `json:"validation,omitempty"`
	Duplicate    bool              `json:"duplicate"`
}
