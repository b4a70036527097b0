package model

import (
	"time"

	"github.com/google/uuid"
)

// Property is one result row of an executed search. Rows are bulk-created at
// Execute and mutated in place, one by one, by the enrichment worker.
type Property struct {
	ID       uuid.UUID `json:"id" db:"id"`
	SearchID uuid.UUID `json:"search_id" db:"search_id"`

	Address       string   `json:"address" db:"address"`
	PostalCode    string   `json:"postal_code" db:"postal_code"`
	City          string   `json:"city" db:"city"`
	Owner         string   `json:"owner" db:"owner"`
	SIREN         string   `json:"siren" db:"siren"`
	Latitude      *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude     *float64 `json:"longitude,omitempty" db:"longitude"`
	ParcelSection string   `json:"parcel_section" db:"parcel_section"`
	ParcelNumber  string   `json:"parcel_number" db:"parcel_number"`
	Surface       *float64 `json:"surface,omitempty" db:"surface"`
	PropertyType  string   `json:"property_type" db:"property_type"`

	// Attached by the registry cross-reference at Execute.
	CompanyName      string `json:"company_name" db:"company_name"`
	ContactLastName  string `json:"contact_last_name" db:"contact_last_name"`
	ContactFirstName string `json:"contact_first_name" db:"contact_first_name"`
	ContactRole      string `json:"contact_role" db:"contact_role"`

	// Written row by row by the enrichment worker.
	Email         string     `json:"email" db:"email"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	Phone         string     `json:"phone" db:"phone"`
	MobilePhone   string     `json:"mobile_phone" db:"mobile_phone"`
	LinkedIn      string     `json:"linkedin" db:"linkedin"`
	JobTitle      string     `json:"job_title" db:"job_title"`
	Confidence    float64    `json:"confidence" db:"confidence"`
	EnrichedAt    *time.Time `json:"enriched_at,omitempty" db:"enriched_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
