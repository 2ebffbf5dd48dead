// Package filter compiles a FilterSpec and a column selection into a bounded,
// parameterized query over the fixed CNPJ join.
package filter

import (
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/catalog"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const (
	// MaxRows is the hard ceiling of every compiled query
	MaxRows = 10000
	// PreviewRows bounds preview queries
	PreviewRows = 50
)

// Field roles reported by InvalidFieldError
const (
	RoleFilter = "filter"
	RoleColumn = "column"
)

// InvalidFieldError is returned when a filter or column references a field
// outside the catalog
type InvalidFieldError struct {
	Field string
	Role  string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s field: %q", e.Role, e.Field)
}

// Options tune a compilation
type Options struct {
	// Limit lowers the row ceiling. Zero or values above MaxRows mean MaxRows.
	Limit int
}

// Query is a compiled, parameterized statement
type Query struct {
	SQL     string
	Args    []any
	Columns []string
	Labels  []string
	Limit   int
}

// CountSQL wraps the capped statement to count its rows
func (q *Query) CountSQL() string {
	return "SELECT COUNT(*) FROM (\n" + q.SQL + "\n)"
}

var baseJoin = fmt.Sprintf(
	"FROM %s %s\nJOIN %s %s ON %s.%s = %s.%s\nJOIN %s %s ON %s.%s = %s.%s",
	catalog.TableEntity, catalog.AliasEntity,
	catalog.TableEstablishment, catalog.AliasEstablishment,
	catalog.AliasEntity, catalog.JoinKey, catalog.AliasEstablishment, catalog.JoinKey,
	catalog.TableTaxRegime, catalog.AliasTaxRegime,
	catalog.AliasEntity, catalog.JoinKey, catalog.AliasTaxRegime, catalog.JoinKey,
)

const orderBy = "ORDER BY e.cnpj_basico, est.cnpj_ordem, est.cnpj_dv"

// Compile builds the query. Every referenced field must resolve in cat;
// patterns are bound as %pattern% arguments and never spliced into the text.
func Compile(cat *catalog.Catalog, spec models.FilterSpec, columns []string, opts Options) (*Query, error) {
	if cat == nil {
		cat = catalog.Full()
	}

	selected, err := resolveColumns(cat, columns)
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []any
	for _, fp := range spec {
		field, ok := cat.Lookup(fp.Field)
		if !ok {
			return nil, &InvalidFieldError{Field: fp.Field, Role: RoleFilter}
		}
		pattern := strings.TrimSpace(fp.Pattern)
		if pattern == "" {
			continue
		}
		conds = append(conds, field.Expr()+" LIKE ?")
		args = append(args, "%"+pattern+"%")
	}

	limit := MaxRows
	if opts.Limit > 0 && opts.Limit < MaxRows {
		limit = opts.Limit
	}

	q := &Query{
		Args:    args,
		Columns: make([]string, 0, len(selected)),
		Labels:  make([]string, 0, len(selected)),
		Limit:   limit,
	}

	exprs := make([]string, 0, len(selected))
	for _, f := range selected {
		if f.Synthetic() {
			exprs = append(exprs, f.Expr()+" AS "+string(f.ID))
		} else {
			exprs = append(exprs, f.Expr())
		}
		q.Columns = append(q.Columns, string(f.ID))
		q.Labels = append(q.Labels, f.Label)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString("\n")
	b.WriteString(baseJoin)
	for i, cond := range conds {
		if i == 0 {
			b.WriteString("\nWHERE ")
		} else {
			b.WriteString("\n  AND ")
		}
		b.WriteString(cond)
	}
	b.WriteString("\n")
	b.WriteString(orderBy)
	fmt.Fprintf(&b, "\nLIMIT %d", limit)

	q.SQL = b.String()
	return q, nil
}

// resolveColumns maps the requested ids onto catalog fields, dropping repeats.
// An empty selection yields the catalog defaults.
func resolveColumns(cat *catalog.Catalog, columns []string) ([]catalog.Field, error) {
	if len(columns) == 0 {
		for _, id := range cat.Defaults() {
			columns = append(columns, string(id))
		}
	}

	seen := make(map[catalog.FieldID]bool, len(columns))
	fields := make([]catalog.Field, 0, len(columns))
	for _, col := range columns {
		f, ok := cat.Lookup(col)
		if !ok {
			return nil, &InvalidFieldError{Field: col, Role: RoleColumn}
		}
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, &InvalidFieldError{Field: "", Role: RoleColumn}
	}
	return fields, nil
}
