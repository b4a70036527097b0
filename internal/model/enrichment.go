package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrichmentLog is the audit record written once per enrichment run.
type EnrichmentLog struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SearchID       uuid.UUID `json:"search_id" db:"search_id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Provider       string    `json:"provider" db:"provider"`
	SuccessCount   int       `json:"success_count" db:"success_count"`
	FailureCount   int       `json:"failure_count" db:"failure_count"`
	Cost           int64     `json:"cost" db:"cost"`
	CompletedAt    time.Time `json:"completed_at" db:"completed_at"`
}

// EnrichmentJob is the queue payload handed to the worker.
type EnrichmentJob struct {
	JobID          uuid.UUID `json:"job_id"`
	SearchID       uuid.UUID `json:"search_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	NotifyEmail    string    `json:"notify_email,omitempty"`
}

// ContactResult is what the external provider returns for one contact.
type ContactResult struct {
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	Phone         string  `json:"phone"`
	MobilePhone   string  `json:"mobile_phone"`
	LinkedIn      string  `json:"linkedin"`
	JobTitle      string  `json:"job_title"`
	Confidence    float64 `json:"confidence"`
}
