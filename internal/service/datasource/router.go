package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/proprios/search-api/internal/model"
	apperrors "github.com/proprios/search-api/pkg/errors"
	"github.com/proprios/search-api/pkg/logger"
	"github.com/proprios/search-api/pkg/metrics"
)

const (
	// fetchLimit caps the rows a single execution may pull from a source.
	fetchLimit = 10000
	// sirenBatchSize bounds the IN list of one registry lookup.
	sirenBatchSize = 500

	queryTimeout = 30 * time.Second
)

// Router translates search criteria into parameterized queries against the
// active owners source and cross-references results against the registry
// source.
type Router struct {
	registry *Registry
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewRouter(registry *Registry, log *logger.Logger) *Router {
	return &Router{registry: registry, logger: log}
}

// WithMetrics attaches prometheus instrumentation. Optional; tests run
// without it.
func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	r.metrics = m
	return r
}

func (r *Router) observe(source, operation string, started time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.SourceQueries.WithLabelValues(source, operation, status).Inc()
	r.metrics.SourceLatency.WithLabelValues(source, operation).Observe(time.Since(started).Seconds())
}

// Count returns how many rows the criteria would match, capped at the fetch
// limit so estimates never promise more than an execution can deliver.
func (r *Router) Count(ctx context.Context, criteria *model.Criteria) (int64, error) {
	ds, err := r.registry.ActiveSource(ctx, model.DataSourceOwners)
	if err != nil {
		return 0, err
	}
	query, args, err := buildCountQuery(ds, criteria)
	if err != nil {
		return 0, err
	}
	db, err := r.registry.Pool(ctx, ds)
	if err != nil {
		return 0, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	started := time.Now()
	var count int64
	err = db.GetContext(queryCtx, &count, query, args...)
	r.observe(ds.Name, "count", started, err)
	if err != nil {
		return 0, apperrors.ExternalService(ds.Name, err)
	}
	if count > fetchLimit {
		count = fetchLimit
	}
	return count, nil
}

// Fetch pulls the matching rows, maps source columns to the canonical
// property shape and attaches company details from the registry source.
func (r *Router) Fetch(ctx context.Context, criteria *model.Criteria) ([]*model.Property, error) {
	ds, err := r.registry.ActiveSource(ctx, model.DataSourceOwners)
	if err != nil {
		return nil, err
	}
	query, args, err := buildFetchQuery(ds, criteria)
	if err != nil {
		return nil, err
	}
	db, err := r.registry.Pool(ctx, ds)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	started := time.Now()
	var rows []sourceRow
	err = db.SelectContext(queryCtx, &rows, query, args...)
	r.observe(ds.Name, "fetch", started, err)
	if err != nil {
		return nil, apperrors.ExternalService(ds.Name, err)
	}

	properties := make([]*model.Property, 0, len(rows))
	for _, row := range rows {
		properties = append(properties, row.toProperty())
	}
	r.crossReference(ctx, properties)
	return properties, nil
}

// sourceRow is the aliased projection every owners query selects into.
// Everything beyond the address is nullable on real cadastre exports.
type sourceRow struct {
	Address       *string  `db:"address"`
	PostalCode    *string  `db:"postal_code"`
	City          *string  `db:"city"`
	Owner         *string  `db:"owner"`
	Identifier    *string  `db:"identifier"`
	Latitude      *float64 `db:"latitude"`
	Longitude     *float64 `db:"longitude"`
	ParcelSection *string  `db:"parcel_section"`
	ParcelNumber  *string  `db:"parcel_number"`
	Surface       *float64 `db:"surface"`
	PropertyType  *string  `db:"property_type"`
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (row sourceRow) toProperty() *model.Property {
	return &model.Property{
		Address:       text(row.Address),
		PostalCode:    text(row.PostalCode),
		City:          text(row.City),
		Owner:         text(row.Owner),
		SIREN:         text(row.Identifier),
		Latitude:      row.Latitude,
		Longitude:     row.Longitude,
		ParcelSection: text(row.ParcelSection),
		ParcelNumber:  text(row.ParcelNumber),
		Surface:       row.Surface,
		PropertyType:  text(row.PropertyType),
	}
}

// fetchFields and their aliases, in projection order.
var fetchFields = []struct {
	field string
	alias string
}{
	{FieldAddress, "address"},
	{FieldPostalCode, "postal_code"},
	{FieldCity, "city"},
	{FieldOwner, "owner"},
	{FieldIdentifier, "identifier"},
	{FieldLatitude, "latitude"},
	{FieldLongitude, "longitude"},
	{FieldParcelSection, "parcel_section"},
	{FieldParcelNumber, "parcel_number"},
	{FieldSurface, "surface"},
	{FieldPropertyType, "property_type"},
}

func buildCountQuery(ds *model.DataSource, criteria *model.Criteria) (string, []interface{}, error) {
	where, args, err := buildWhere(ds, criteria)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", qualifiedTable(ds), where)
	return query, args, nil
}

func buildFetchQuery(ds *model.DataSource, criteria *model.Criteria) (string, []interface{}, error) {
	where, args, err := buildWhere(ds, criteria)
	if err != nil {
		return "", nil, err
	}
	projection := make([]string, 0, len(fetchFields))
	for _, f := range fetchFields {
		col, err := ResolveColumn(ds, f.field)
		if err != nil {
			return "", nil, err
		}
		projection = append(projection, fmt.Sprintf("%q AS %s", col, f.alias))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIMIT %d",
		strings.Join(projection, ", "), qualifiedTable(ds), where, fetchLimit)
	return query, args, nil
}

// buildWhere renders the criteria-specific filter. Column identifiers come
// from stored configuration; every value travels as a bind parameter.
func buildWhere(ds *model.DataSource, criteria *model.Criteria) (string, []interface{}, error) {
	switch {
	case criteria.Address != nil:
		addressCol, err := ResolveColumn(ds, FieldAddress)
		if err != nil {
			return "", nil, err
		}
		conds := []string{fmt.Sprintf("LOWER(%q) LIKE LOWER($1)", addressCol)}
		args := []interface{}{"%" + criteria.Address.Address + "%"}
		if criteria.Address.PostalCode != "" {
			postalCol, err := ResolveColumn(ds, FieldPostalCode)
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, fmt.Sprintf("%q = $2", postalCol))
			args = append(args, criteria.Address.PostalCode)
		}
		return strings.Join(conds, " AND "), args, nil

	case criteria.Owner != nil:
		var conds []string
		var args []interface{}
		if criteria.Owner.Name != "" {
			ownerCol, err := ResolveColumn(ds, FieldOwner)
			if err != nil {
				return "", nil, err
			}
			args = append(args, "%"+criteria.Owner.Name+"%")
			conds = append(conds, fmt.Sprintf("LOWER(%q) LIKE LOWER($%d)", ownerCol, len(args)))
		}
		if criteria.Owner.SIREN != "" {
			idCol, err := ResolveColumn(ds, FieldIdentifier)
			if err != nil {
				return "", nil, err
			}
			args = append(args, criteria.Owner.SIREN)
			conds = append(conds, fmt.Sprintf("%q = $%d", idCol, len(args)))
		}
		if len(conds) == 0 {
			return "", nil, apperrors.Validation("owner criteria requires a name or siren", nil)
		}
		return strings.Join(conds, " AND "), args, nil

	case criteria.Zone != nil:
		latCol, err := ResolveColumn(ds, FieldLatitude)
		if err != nil {
			return "", nil, err
		}
		lngCol, err := ResolveColumn(ds, FieldLongitude)
		if err != nil {
			return "", nil, err
		}
		box := criteria.Zone.Bounds()
		where := fmt.Sprintf("%q BETWEEN $1 AND $2 AND %q BETWEEN $3 AND $4", latCol, lngCol)
		return where, []interface{}{box.MinLat, box.MaxLat, box.MinLng, box.MaxLng}, nil
	}
	return "", nil, apperrors.Validation("criteria matches no search type", nil)
}

// crossReference looks up distinct SIRENs against the registry source and
// attaches company name and lead contact to every matching property.
// Registry failures degrade to un-cross-referenced rows; they never fail the
// search.
func (r *Router) crossReference(ctx context.Context, properties []*model.Property) {
	seen := make(map[string]bool)
	var sirens []string
	for _, p := range properties {
		if len(p.SIREN) == 9 && !seen[p.SIREN] {
			seen[p.SIREN] = true
			sirens = append(sirens, p.SIREN)
		}
	}
	if len(sirens) == 0 {
		return
	}

	ds, err := r.registry.ActiveSource(ctx, model.DataSourceRegistry)
	if err != nil {
		r.logger.Warn("registry cross-reference skipped", "reason", err.Error())
		return
	}
	db, err := r.registry.Pool(ctx, ds)
	if err != nil {
		r.logger.Warn("registry cross-reference skipped", "reason", err.Error())
		return
	}

	companies := make(map[string]registryRow)
	for start := 0; start < len(sirens); start += sirenBatchSize {
		end := start + sirenBatchSize
		if end > len(sirens) {
			end = len(sirens)
		}
		if err := r.lookupBatch(ctx, db, ds, sirens[start:end], companies); err != nil {
			r.logger.Warn("registry batch lookup failed", "reason", err.Error())
			return
		}
	}

	for _, p := range properties {
		if row, ok := companies[p.SIREN]; ok {
			p.CompanyName = text(row.CompanyName)
			p.ContactLastName = text(row.ContactLastName)
			p.ContactFirstName = text(row.ContactFirstName)
			p.ContactRole = text(row.ContactRole)
		}
	}
}

type registryRow struct {
	Identifier       string  `db:"identifier"`
	CompanyName      *string `db:"company_name"`
	ContactLastName  *string `db:"contact_last_name"`
	ContactFirstName *string `db:"contact_first_name"`
	ContactRole      *string `db:"contact_role"`
}

func (r *Router) lookupBatch(ctx context.Context, db *sqlx.DB, ds *model.DataSource, sirens []string, out map[string]registryRow) error {
	query, args, err := buildRegistryQuery(ds, sirens)
	if err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var rows []registryRow
	if err := db.SelectContext(queryCtx, &rows, query, args...); err != nil {
		return err
	}
	for _, row := range rows {
		out[row.Identifier] = row
	}
	return nil
}

func buildRegistryQuery(ds *model.DataSource, sirens []string) (string, []interface{}, error) {
	cols := []struct {
		field string
		alias string
	}{
		{FieldIdentifier, "identifier"},
		{FieldCompanyName, "company_name"},
		{FieldContactLastName, "contact_last_name"},
		{FieldContactFirstName, "contact_first_name"},
		{FieldContactRole, "contact_role"},
	}
	projection := make([]string, 0, len(cols))
	for _, c := range cols {
		col, err := ResolveColumn(ds, c.field)
		if err != nil {
			return "", nil, err
		}
		projection = append(projection, fmt.Sprintf("%q AS %s", col, c.alias))
	}
	idCol, err := ResolveColumn(ds, FieldIdentifier)
	if err != nil {
		return "", nil, err
	}

	placeholders := make([]string, len(sirens))
	args := make([]interface{}, len(sirens))
	for i, s := range sirens {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %q IN (%s)",
		strings.Join(projection, ", "), qualifiedTable(ds), idCol, strings.Join(placeholders, ", "))
	return query, args, nil
}
