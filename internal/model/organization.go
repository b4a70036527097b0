package model

import (
	"time"

	"github.com/google/uuid"
)

// Organization owns a credit balance. Balance changes only go through the
// ledger, which appends a CreditTransaction in the same unit of work.
type Organization struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Name           string     `json:"name" db:"name"`
	Plan           Plan       `json:"plan" db:"plan"`
	Status         string     `json:"status" db:"status"`
	CreditBalance  int64      `json:"credit_balance" db:"credit_balance"`
	MonthlyCredits int64      `json:"monthly_credits" db:"monthly_credits"`
	CreditsResetAt *time.Time `json:"credits_reset_at" db:"credits_reset_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanBasic      Plan = "BASIC"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// AllowsEnrichment reports whether the plan includes contact enrichment.
func (p Plan) AllowsEnrichment() bool {
	return p == PlanPro || p == PlanEnterprise
}

type OrganizationStatus string

const (
	OrganizationStatusActive   OrganizationStatus = "active"
	OrganizationStatusInactive OrganizationStatus = "inactive"
)
