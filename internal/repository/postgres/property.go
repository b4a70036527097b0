package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	"github.com/proprios/search-api/internal/repository"
)

type propertyRepository struct {
	BaseRepository
}

func NewPropertyRepository(base BaseRepository) repository.PropertyRepository {
	return &propertyRepository{base}
}

// insertPropertiesTx bulk-inserts the result rows of one Execute inside the
// caller's transaction.
func insertPropertiesTx(ctx context.Context, tx *sqlx.Tx, properties []*model.Property) error {
	if len(properties) == 0 {
		return nil
	}

	now := time.Now()
	for _, p := range properties {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
	}

	query := `
		INSERT INTO properties (
			id, search_id, address, postal_code, city, owner, siren,
			latitude, longitude, parcel_section, parcel_number, surface,
			property_type, company_name, contact_last_name,
			contact_first_name, contact_role, created_at
		) VALUES (
			:id, :search_id, :address, :postal_code, :city, :owner, :siren,
			:latitude, :longitude, :parcel_section, :parcel_number, :surface,
			:property_type, :company_name, :contact_last_name,
			:contact_first_name, :contact_role, :created_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, properties); err != nil {
		return fmt.Errorf("failed to insert properties: %w", err)
	}
	return nil
}

func (r *propertyRepository) ListBySearch(ctx context.Context, searchID uuid.UUID) ([]*model.Property, error) {
	query := `
		SELECT * FROM properties
		WHERE search_id = $1
		ORDER BY created_at
	`
	var properties []*model.Property
	if err := r.GetDB().SelectContext(ctx, &properties, query, searchID); err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return properties, nil
}

func (r *propertyRepository) ListUnenriched(ctx context.Context, searchID uuid.UUID) ([]*model.Property, error) {
	query := `
		SELECT * FROM properties
		WHERE search_id = $1 AND enriched_at IS NULL
		ORDER BY created_at
	`
	var properties []*model.Property
	if err := r.GetDB().SelectContext(ctx, &properties, query, searchID); err != nil {
		return nil, fmt.Errorf("failed to list unenriched properties: %w", err)
	}
	return properties, nil
}

// MarkEnriched persists one contact result durably; the enrichment run is
// only charged for rows this write succeeded for.
func (r *propertyRepository) MarkEnriched(ctx context.Context, id uuid.UUID, result *model.ContactResult, at time.Time) error {
	query := `
		UPDATE properties
		SET email = $1, email_verified = $2, phone = $3, mobile_phone = $4,
		    linkedin = $5, job_title = $6, confidence = $7, enriched_at = $8
		WHERE id = $9
	`
	res, err := r.GetDB().ExecContext(ctx, query,
		result.Email,
		result.EmailVerified,
		result.Phone,
		result.MobilePhone,
		result.LinkedIn,
		result.JobTitle,
		result.Confidence,
		at,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark property enriched: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("property not found")
	}
	return nil
}

type enrichmentLogRepository struct {
	BaseRepository
}

func NewEnrichmentLogRepository(base BaseRepository) repository.EnrichmentLogRepository {
	return &enrichmentLogRepository{base}
}

func (r *enrichmentLogRepository) Create(ctx context.Context, log *model.EnrichmentLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CompletedAt.IsZero() {
		log.CompletedAt = time.Now()
	}

	query := `
		INSERT INTO enrichment_logs (
			id, search_id, organization_id, provider,
			success_count, failure_count, cost, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		log.ID,
		log.SearchID,
		log.OrganizationID,
		log.Provider,
		log.SuccessCount,
		log.FailureCount,
		log.Cost,
		log.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create enrichment log: %w", err)
	}
	return nil
}
