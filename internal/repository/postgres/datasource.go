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

type dataSourceRepository struct {
	BaseRepository
}

func NewDataSourceRepository(base BaseRepository) repository.DataSourceRepository {
	return &dataSourceRepository{base}
}

func (r *dataSourceRepository) Create(ctx context.Context, ds *model.DataSource) error {
	query := `
		INSERT INTO data_sources (
			id, name, kind, host, port, database, username, password,
			schema, table_name, sslmode, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	ds.CreatedAt = time.Now()
	ds.UpdatedAt = time.Now()
	if ds.Status == "" {
		ds.Status = model.DataSourceStatusTesting
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			ds.ID,
			ds.Name,
			ds.Kind,
			ds.Host,
			ds.Port,
			ds.Database,
			ds.Username,
			ds.Password,
			ds.Schema,
			ds.Table,
			ds.SSLMode,
			ds.Status,
			ds.CreatedAt,
			ds.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create data source: %w", err)
		}
		return replaceMappingsTx(ctx, tx, ds.ID, ds.Mappings)
	})
}

func (r *dataSourceRepository) Get(ctx context.Context, id uuid.UUID) (*model.DataSource, error) {
	query := `
		SELECT * FROM data_sources
		WHERE id = $1
	`
	var ds model.DataSource
	if err := r.GetDB().GetContext(ctx, &ds, query, id); err != nil {
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	if err := r.loadMappings(ctx, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) Update(ctx context.Context, ds *model.DataSource) error {
	query := `
		UPDATE data_sources
		SET name = $1, kind = $2, host = $3, port = $4, database = $5,
		    username = $6, password = $7, schema = $8, table_name = $9,
		    sslmode = $10, status = $11, updated_at = $12
		WHERE id = $13
	`
	ds.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, query,
			ds.Name,
			ds.Kind,
			ds.Host,
			ds.Port,
			ds.Database,
			ds.Username,
			ds.Password,
			ds.Schema,
			ds.Table,
			ds.SSLMode,
			ds.Status,
			ds.UpdatedAt,
			ds.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update data source: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("data source not found")
		}
		return replaceMappingsTx(ctx, tx, ds.ID, ds.Mappings)
	})
}

func (r *dataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM column_mappings WHERE data_source_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete mappings: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete data source: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("data source not found")
		}
		return nil
	})
}

func (r *dataSourceRepository) List(ctx context.Context) ([]*model.DataSource, error) {
	return r.list(ctx, `SELECT * FROM data_sources ORDER BY created_at`)
}

func (r *dataSourceRepository) ListActive(ctx context.Context) ([]*model.DataSource, error) {
	return r.list(ctx, `SELECT * FROM data_sources WHERE status = 'ACTIVE' ORDER BY created_at`)
}

func (r *dataSourceRepository) list(ctx context.Context, query string) ([]*model.DataSource, error) {
	var sources []*model.DataSource
	if err := r.GetDB().SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	for _, ds := range sources {
		if err := r.loadMappings(ctx, ds); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func (r *dataSourceRepository) loadMappings(ctx context.Context, ds *model.DataSource) error {
	var mappings []*model.ColumnMapping
	query := `SELECT * FROM column_mappings WHERE data_source_id = $1`
	if err := r.GetDB().SelectContext(ctx, &mappings, query, ds.ID); err != nil {
		return fmt.Errorf("failed to load mappings: %w", err)
	}

	ds.Mappings = make(map[string]string, len(mappings))
	for _, m := range mappings {
		ds.Mappings[m.TargetField] = m.SourceColumn
	}
	return nil
}

func (r *dataSourceRepository) ReplaceMappings(ctx context.Context, dataSourceID uuid.UUID, mappings map[string]string) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return replaceMappingsTx(ctx, tx, dataSourceID, mappings)
	})
}

func replaceMappingsTx(ctx context.Context, tx *sqlx.Tx, dataSourceID uuid.UUID, mappings map[string]string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM column_mappings WHERE data_source_id = $1`, dataSourceID); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}

	for field, column := range mappings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO column_mappings (id, data_source_id, target_field, source_column)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), dataSourceID, field, column)
		if err != nil {
			return fmt.Errorf("failed to insert mapping: %w", err)
		}
	}
	return nil
}

func (r *dataSourceRepository) UpdateTestResult(ctx context.Context, id uuid.UUID, status model.DataSourceStatus, result *model.TestResult, at time.Time) error {
	testStatus := "success"
	if !result.Success {
		testStatus = "error"
	}

	query := `
		UPDATE data_sources
		SET status = $1, record_count = COALESCE($2, record_count),
		    last_tested_at = $3, last_test_status = $4, last_test_error = $5,
		    updated_at = NOW()
		WHERE id = $6
	`
	testError := ""
	if !result.Success {
		testError = result.Message
	}

	_, err := r.GetDB().ExecContext(ctx, query, status, result.RecordCount, at, testStatus, testError, id)
	if err != nil {
		return fmt.Errorf("failed to update test result: %w", err)
	}
	return nil
}
