package datasource

import (
	"fmt"
	"regexp"

	"github.com/proprios/search-api/internal/model"
)

// Semantic fields resolved against a data source's column mappings.
const (
	FieldAddress          = "address"
	FieldPostalCode       = "postalCode"
	FieldCity             = "city"
	FieldOwner            = "owner"
	FieldIdentifier       = "identifier"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldParcelSection    = "parcelSection"
	FieldParcelNumber     = "parcelNumber"
	FieldSurface          = "surface"
	FieldPropertyType     = "propertyType"
	FieldCompanyName      = "companyName"
	FieldContactLastName  = "contactLastName"
	FieldContactFirstName = "contactFirstName"
	FieldContactRole      = "contactRole"
)

// defaultColumns are the documented fallback column names used when a data
// source carries no mapping for a semantic field. They match the layout of
// the French cadastre and SIRENE exports most sources derive from.
var defaultColumns = map[string]string{
	FieldAddress:          "adresse",
	FieldPostalCode:       "code_postal",
	FieldCity:             "ville",
	FieldOwner:            "proprietaire",
	FieldIdentifier:       "siren",
	FieldLatitude:         "latitude",
	FieldLongitude:        "longitude",
	FieldParcelSection:    "section",
	FieldParcelNumber:     "numero_parcelle",
	FieldSurface:          "surface",
	FieldPropertyType:     "type_local",
	FieldCompanyName:      "denomination",
	FieldContactLastName:  "dirigeant_nom",
	FieldContactFirstName: "dirigeant_prenom",
	FieldContactRole:      "dirigeant_qualite",
}

// ResolveColumn returns the source column for a semantic field: the
// configured mapping when present, the documented default otherwise.
func ResolveColumn(ds *model.DataSource, field string) (string, error) {
	if ds.Mappings != nil {
		if col, ok := ds.Mappings[field]; ok && col != "" {
			return col, nil
		}
	}
	col, ok := defaultColumns[field]
	if !ok {
		return "", fmt.Errorf("unknown semantic field %q", field)
	}
	return col, nil
}

// SemanticFields lists every supported semantic field.
func SemanticFields() []string {
	fields := make([]string, 0, len(defaultColumns))
	for f := range defaultColumns {
		fields = append(fields, f)
	}
	return fields
}

// identPattern constrains schema, table and column identifiers. Identifiers
// come only from stored, admin-validated configuration, never from caller
// input; this check rejects a bad configuration before it reaches SQL.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdent(s string) bool {
	return identPattern.MatchString(s)
}

// ValidateIdentifiers rejects a data source whose schema, table or mapped
// columns are not plain SQL identifiers.
func ValidateIdentifiers(ds *model.DataSource) error {
	if ds.Table == "" {
		return fmt.Errorf("table name is required")
	}
	if !validIdent(ds.Table) {
		return fmt.Errorf("invalid table name %q", ds.Table)
	}
	if ds.Schema != "" && !validIdent(ds.Schema) {
		return fmt.Errorf("invalid schema name %q", ds.Schema)
	}
	for field, col := range ds.Mappings {
		if _, ok := defaultColumns[field]; !ok {
			return fmt.Errorf("unknown semantic field %q", field)
		}
		if !validIdent(col) {
			return fmt.Errorf("invalid column name %q for field %q", col, field)
		}
	}
	return nil
}

// qualifiedTable renders the quoted schema.table pair, defaulting the schema
// to public.
func qualifiedTable(ds *model.DataSource) string {
	schema := ds.Schema
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("%q.%q", schema, ds.Table)
}
