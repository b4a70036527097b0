package model

import (
	"time"

	"github.com/google/uuid"
)

type DataSourceStatus string

const (
	DataSourceStatusActive   DataSourceStatus = "ACTIVE"
	DataSourceStatusInactive DataSourceStatus = "INACTIVE"
	DataSourceStatusTesting  DataSourceStatus = "TESTING"
	DataSourceStatusError    DataSourceStatus = "ERROR"
)

// DataSourceKind tells the router which role a source plays: "owners" is the
// primary property/owner table, "registry" is the company registry used for
// cross-referencing identifiers.
type DataSourceKind string

const (
	DataSourceOwners   DataSourceKind = "owners"
	DataSourceRegistry DataSourceKind = "registry"
)

// DataSource is an externally configured relational backend. Platform-scoped:
// shared across organizations and managed by an administrator; the query
// router consumes it read-only. Password is stored encrypted and decrypted
// only to open a connection.
type DataSource struct {
	ID       uuid.UUID        `json:"id" db:"id"`
	Name     string           `json:"name" db:"name"`
	Kind     DataSourceKind   `json:"kind" db:"kind"`
	Host     string           `json:"host" db:"host"`
	Port     int              `json:"port" db:"port"`
	Database string           `json:"database" db:"database"`
	Username string           `json:"username" db:"username"`
	Password string           `json:"-" db:"password"`
	Schema   string           `json:"schema" db:"schema"`
	Table    string           `json:"table_name" db:"table_name"`
	SSLMode  string           `json:"sslmode" db:"sslmode"`
	Status   DataSourceStatus `json:"status" db:"status"`

	RecordCount    *int64     `json:"record_count,omitempty" db:"record_count"`
	LastTestedAt   *time.Time `json:"last_tested_at,omitempty" db:"last_tested_at"`
	LastTestStatus string     `json:"last_test_status" db:"last_test_status"`
	LastTestError  string     `json:"last_test_error,omitempty" db:"last_test_error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Semantic field -> source column. Loaded from the mappings table;
	// unmapped fields fall back to documented defaults.
	Mappings map[string]string `json:"mappings" db:"-"`
}

// ColumnMapping is one row of a data source's mapping table.
type ColumnMapping struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DataSourceID uuid.UUID `json:"data_source_id" db:"data_source_id"`
	TargetField  string    `json:"target_field" db:"target_field"`
	SourceColumn string    `json:"source_column" db:"source_column"`
}

// SourceColumnInfo describes one column reported by introspection, with the
// semantic field currently mapped to it when one exists.
type SourceColumnInfo struct {
	Name        string `json:"column_name" db:"column_name"`
	DataType    string `json:"data_type" db:"data_type"`
	Nullable    string `json:"is_nullable" db:"is_nullable"`
	MappedField string `json:"mapped_field,omitempty" db:"-"`
}

// TestResult is the outcome of a connection probe.
type TestResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RecordCount *int64 `json:"record_count,omitempty"`
}
