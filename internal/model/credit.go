package model

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionPurchase       TransactionType = "PURCHASE"
	TransactionSubscription   TransactionType = "SUBSCRIPTION"
	TransactionSearchCost     TransactionType = "SEARCH_COST"
	TransactionEnrichmentCost TransactionType = "ENRICHMENT_COST"
	TransactionRefund         TransactionType = "REFUND"
	TransactionAdjustment     TransactionType = "ADJUSTMENT"
)

// CreditTransaction is one immutable entry in an organization's ledger.
// Credits carry a positive amount, debits a negative one; the sum of all
// entries reconciles to the current balance minus the balance at creation.
type CreditTransaction struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	Amount         int64           `json:"amount" db:"amount"`
	Type           TransactionType `json:"type" db:"type"`
	Description    string          `json:"description" db:"description"`
	SearchID       *uuid.UUID      `json:"search_id,omitempty" db:"search_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
