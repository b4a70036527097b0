package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SearchStatus values follow the metered lifecycle:
//
//	ESTIMATED ──► VALIDATED ──► COMPLETED ──► ENRICHING ──► ENRICHED
//
// Transitions are guarded by conditional updates keyed on the expected
// current status, so exactly one of several concurrent callers wins.
type SearchStatus string

const (
	SearchStatusEstimated SearchStatus = "ESTIMATED"
	SearchStatusValidated SearchStatus = "VALIDATED"
	SearchStatusCompleted SearchStatus = "COMPLETED"
	SearchStatusEnriching SearchStatus = "ENRICHING"
	SearchStatusEnriched  SearchStatus = "ENRICHED"
)

// ParseSearchStatus converts a raw string to a SearchStatus.
func ParseSearchStatus(s string) (SearchStatus, error) {
	st := SearchStatus(s)
	switch st {
	case SearchStatusEstimated, SearchStatusValidated, SearchStatusCompleted,
		SearchStatusEnriching, SearchStatusEnriched:
		return st, nil
	}
	return "", fmt.Errorf("unknown search status %q", s)
}

// Search is created at Estimate and mutated only by the state machine.
type Search struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrganizationID uuid.UUID       `json:"organization_id" db:"organization_id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	Type           SearchType      `json:"type" db:"type"`
	Criteria       json.RawMessage `json:"criteria" db:"criteria"`
	Status         SearchStatus    `json:"status" db:"status"`
	EstimatedRows  int64           `json:"estimated_rows" db:"estimated_rows"`
	EstimatedCost  int64           `json:"estimated_cost" db:"estimated_cost"`
	ActualRows     int64           `json:"actual_rows" db:"actual_rows"`
	ActualCost     int64           `json:"actual_cost" db:"actual_cost"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	ValidatedAt    *time.Time      `json:"validated_at,omitempty" db:"validated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	EnrichedAt     *time.Time      `json:"enriched_at,omitempty" db:"enriched_at"`
}

// ParsedCriteria decodes the stored criteria back into the typed union.
func (s *Search) ParsedCriteria() (*Criteria, error) {
	return ParseCriteria(s.Type, s.Criteria)
}
