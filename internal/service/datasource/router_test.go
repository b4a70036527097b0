package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
)

func ownersSource() *model.DataSource {
	return &model.DataSource{Schema: "cadastre", Table: "parcelles"}
}

func TestBuildCountQueryByAddress(t *testing.T) {
	criteria := &model.Criteria{Address: &model.AddressCriteria{
		Address:    "12 Rue de la Paix",
		PostalCode: "75002",
	}}

	query, args, err := buildCountQuery(ownersSource(), criteria)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM "cadastre"."parcelles" WHERE LOWER("adresse") LIKE LOWER($1) AND "code_postal" = $2`,
		query)
	assert.Equal(t, []interface{}{"%12 Rue de la Paix%", "75002"}, args)
}

func TestBuildCountQueryByAddressWithoutPostalCode(t *testing.T) {
	criteria := &model.Criteria{Address: &model.AddressCriteria{Address: "Rue Victor Hugo"}}

	query, args, err := buildCountQuery(ownersSource(), criteria)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM "cadastre"."parcelles" WHERE LOWER("adresse") LIKE LOWER($1)`,
		query)
	assert.Equal(t, []interface{}{"%Rue Victor Hugo%"}, args)
}

func TestBuildWhereByOwnerNameAndSiren(t *testing.T) {
	criteria := &model.Criteria{Owner: &model.OwnerCriteria{Name: "SCI Dupont", SIREN: "123456789"}}

	where, args, err := buildWhere(ownersSource(), criteria)
	require.NoError(t, err)
	assert.Equal(t, `LOWER("proprietaire") LIKE LOWER($1) AND "siren" = $2`, where)
	assert.Equal(t, []interface{}{"%SCI Dupont%", "123456789"}, args)
}

func TestBuildWhereByOwnerSirenOnly(t *testing.T) {
	criteria := &model.Criteria{Owner: &model.OwnerCriteria{SIREN: "552100554"}}

	where, args, err := buildWhere(ownersSource(), criteria)
	require.NoError(t, err)
	assert.Equal(t, `"siren" = $1`, where)
	assert.Equal(t, []interface{}{"552100554"}, args)
}

func TestBuildWhereByZoneUsesBoundingBox(t *testing.T) {
	criteria := &model.Criteria{Zone: &model.ZoneCriteria{Polygon: []model.Vertex{
		{Lat: 48.85, Lng: 2.29},
		{Lat: 48.87, Lng: 2.35},
		{Lat: 48.84, Lng: 2.33},
	}}}

	where, args, err := buildWhere(ownersSource(), criteria)
	require.NoError(t, err)
	assert.Equal(t, `"latitude" BETWEEN $1 AND $2 AND "longitude" BETWEEN $3 AND $4`, where)
	assert.Equal(t, []interface{}{48.84, 48.87, 2.29, 2.35}, args)
}

func TestBuildWhereEmptyCriteria(t *testing.T) {
	_, _, err := buildWhere(ownersSource(), &model.Criteria{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestBuildFetchQueryUsesMappingsAndLimit(t *testing.T) {
	ds := ownersSource()
	ds.Mappings = map[string]string{
		FieldAddress: "addr_complete",
		FieldOwner:   "nom_proprietaire",
	}
	criteria := &model.Criteria{Owner: &model.OwnerCriteria{Name: "Martin"}}

	query, args, err := buildFetchQuery(ds, criteria)
	require.NoError(t, err)
	assert.Contains(t, query, `"addr_complete" AS address`)
	assert.Contains(t, query, `"nom_proprietaire" AS owner`)
	assert.Contains(t, query, `"code_postal" AS postal_code`)
	assert.Contains(t, query, `LOWER("nom_proprietaire") LIKE LOWER($1)`)
	assert.Contains(t, query, "LIMIT 10000")
	assert.Equal(t, []interface{}{"%Martin%"}, args)
}

func TestBuildRegistryQueryBatchesPlaceholders(t *testing.T) {
	ds := &model.DataSource{Table: "sirene"}
	sirens := []string{"123456789", "987654321"}

	query, args, err := buildRegistryQuery(ds, sirens)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "siren" AS identifier, "denomination" AS company_name, `+
			`"dirigeant_nom" AS contact_last_name, "dirigeant_prenom" AS contact_first_name, `+
			`"dirigeant_qualite" AS contact_role FROM "public"."sirene" WHERE "siren" IN ($1, $2)`,
		query)
	assert.Equal(t, []interface{}{"123456789", "987654321"}, args)
}

func TestSourceRowToPropertyHandlesNulls(t *testing.T) {
	lat := 43.6
	row := sourceRow{Latitude: &lat}

	p := row.toProperty()
	assert.Empty(t, p.Address)
	assert.Empty(t, p.Owner)
	require.NotNil(t, p.Latitude)
	assert.Equal(t, 43.6, *p.Latitude)
	assert.Nil(t, p.Surface)
}
