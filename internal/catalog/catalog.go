// Package catalog maps the logical field ids that filters and column selections
// may reference onto the physical columns of the CNPJ dataset.
//
// Physical references come only from the closed table below and are never
// derived from caller input.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// FieldID is a logical field identifier
type FieldID string

// Table aliases of the fixed join
const (
	AliasEntity        = "e"
	AliasEstablishment = "est"
	AliasTaxRegime     = "s"
)

// Physical table names of the fixed join
const (
	TableEntity        = "empresas"
	TableEstablishment = "estabelecimento"
	TableTaxRegime     = "simples"
)

// JoinKey is the shared business-entity identifier column
const JoinKey = "cnpj_basico"

// FullIdentifier is the synthetic field built from the three CNPJ parts
const FullIdentifier FieldID = "cnpj_completo"

// Field describes one selectable and filterable field
type Field struct {
	ID     FieldID `json:"id"`
	Label  string  `json:"label"`
	Alias  string  `json:"-"`
	Column string  `json:"-"`
	// Parts lists the alias.column references concatenated by a synthetic field
	Parts []string `json:"-"`
}

// Synthetic reports whether the field is computed rather than stored
func (f Field) Synthetic() bool {
	return len(f.Parts) > 0
}

// Ref returns the alias-qualified column reference, e.g. "est.uf"
func (f Field) Ref() string {
	if f.Synthetic() {
		return string(f.ID)
	}
	return f.Alias + "." + f.Column
}

// Expr returns the SQL expression selecting the field
func (f Field) Expr() string {
	if f.Synthetic() {
		return "(" + strings.Join(f.Parts, " || ") + ")"
	}
	return f.Ref()
}

// aliasTables resolves join aliases to physical table names
var aliasTables = map[string]string{
	AliasEntity:        TableEntity,
	AliasEstablishment: TableEstablishment,
	AliasTaxRegime:     TableTaxRegime,
}

// TableFor returns the physical table of a join alias
func TableFor(alias string) string {
	return aliasTables[alias]
}

var allFields = []Field{
	{ID: "cnpj_basico", Label: "CNPJ Básico", Alias: AliasEntity, Column: "cnpj_basico"},
	{ID: "razao_social", Label: "Razão Social", Alias: AliasEntity, Column: "razao_social"},
	{ID: "natureza_juridica", Label: "Natureza Jurídica", Alias: AliasEntity, Column: "natureza_juridica"},
	{ID: "qualificacao_responsavel", Label: "Qualificação do Responsável", Alias: AliasEntity, Column: "qualificacao_responsavel"},
	{ID: "porte_empresa", Label: "Porte da Empresa", Alias: AliasEntity, Column: "porte_empresa"},

	{ID: "cnpj_ordem", Label: "CNPJ Ordem", Alias: AliasEstablishment, Column: "cnpj_ordem"},
	{ID: "cnpj_dv", Label: "CNPJ DV", Alias: AliasEstablishment, Column: "cnpj_dv"},
	{ID: "identificador_matriz_filial", Label: "Matriz/Filial", Alias: AliasEstablishment, Column: "identificador_matriz_filial"},
	{ID: "nome_fantasia", Label: "Nome Fantasia", Alias: AliasEstablishment, Column: "nome_fantasia"},
	{ID: "situacao_cadastral", Label: "Situação Cadastral", Alias: AliasEstablishment, Column: "situacao_cadastral"},
	{ID: "data_situacao_cadastral", Label: "Data Situação Cadastral", Alias: AliasEstablishment, Column: "data_situacao_cadastral"},
	{ID: "data_inicio_atividade", Label: "Data Início Atividade", Alias: AliasEstablishment, Column: "data_inicio_atividade"},
	{ID: "cnae_fiscal_principal", Label: "CNAE Principal", Alias: AliasEstablishment, Column: "cnae_fiscal_principal"},
	{ID: "tipo_logradouro", Label: "Tipo Logradouro", Alias: AliasEstablishment, Column: "tipo_logradouro"},
	{ID: "logradouro", Label: "Logradouro", Alias: AliasEstablishment, Column: "logradouro"},
	{ID: "numero", Label: "Número", Alias: AliasEstablishment, Column: "numero"},
	{ID: "complemento", Label: "Complemento", Alias: AliasEstablishment, Column: "complemento"},
	{ID: "bairro", Label: "Bairro", Alias: AliasEstablishment, Column: "bairro"},
	{ID: "cep", Label: "CEP", Alias: AliasEstablishment, Column: "cep"},
	{ID: "uf", Label: "UF", Alias: AliasEstablishment, Column: "uf"},
	{ID: "municipio", Label: "Município", Alias: AliasEstablishment, Column: "municipio"},
	{ID: "ddd_1", Label: "DDD 1", Alias: AliasEstablishment, Column: "ddd_1"},
	{ID: "telefone_1", Label: "Telefone 1", Alias: AliasEstablishment, Column: "telefone_1"},
	{ID: "ddd_2", Label: "DDD 2", Alias: AliasEstablishment, Column: "ddd_2"},
	{ID: "telefone_2", Label: "Telefone 2", Alias: AliasEstablishment, Column: "telefone_2"},
	{ID: "correio_eletronico", Label: "Email", Alias: AliasEstablishment, Column: "correio_eletronico"},

	{ID: "opcao_simples", Label: "Optante Simples", Alias: AliasTaxRegime, Column: "opcao_simples"},
	{ID: "data_opcao_simples", Label: "Data Opção Simples", Alias: AliasTaxRegime, Column: "data_opcao_simples"},
	{ID: "opcao_mei", Label: "Optante MEI", Alias: AliasTaxRegime, Column: "opcao_mei"},

	{ID: FullIdentifier, Label: "CNPJ Completo", Parts: []string{"e.cnpj_basico", "est.cnpj_ordem", "est.cnpj_dv"}},
}

// DefaultColumns is used when a request selects no output columns
var DefaultColumns = []FieldID{"cnpj_basico", "razao_social", "nome_fantasia", "uf", "opcao_simples"}

// minimalFields is served when the dataset schema cannot be inspected
var minimalFields = DefaultColumns

// Catalog is an immutable set of fields
type Catalog struct {
	fields []Field
	byID   map[FieldID]Field
	byRef  map[string]FieldID
}

func newCatalog(fields []Field) *Catalog {
	c := &Catalog{
		fields: fields,
		byID:   make(map[FieldID]Field, len(fields)),
		byRef:  make(map[string]FieldID, len(fields)),
	}
	for _, f := range fields {
		c.byID[f.ID] = f
		c.byRef[f.Ref()] = f.ID
	}
	return c
}

// Full returns the complete catalog of the CNPJ schema
func Full() *Catalog {
	return newCatalog(allFields)
}

// Minimal returns the hard-coded fallback subset
func Minimal() *Catalog {
	return FromIDs(minimalFields)
}

// FromIDs builds a catalog restricted to the given known ids, in catalog order
func FromIDs(ids []FieldID) *Catalog {
	want := make(map[FieldID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var fields []Field
	for _, f := range allFields {
		if want[f.ID] {
			fields = append(fields, f)
		}
	}
	return newCatalog(fields)
}

// Lookup resolves a logical id. The alias-qualified spelling ("est.uf") is
// accepted for clients of the original portal.
func (c *Catalog) Lookup(id string) (Field, bool) {
	id = strings.TrimSpace(id)
	if f, ok := c.byID[FieldID(id)]; ok {
		return f, true
	}
	if fid, ok := c.byRef[id]; ok {
		return c.byID[fid], true
	}
	return Field{}, false
}

// Fields returns the fields in catalog order
func (c *Catalog) Fields() []Field {
	out := make([]Field, len(c.fields))
	copy(out, c.fields)
	return out
}

// IDs returns the field ids in catalog order
func (c *Catalog) IDs() []FieldID {
	ids := make([]FieldID, 0, len(c.fields))
	for _, f := range c.fields {
		ids = append(ids, f.ID)
	}
	return ids
}

// Len returns the number of fields
func (c *Catalog) Len() int {
	return len(c.fields)
}

// Defaults returns the default output columns available in this catalog
func (c *Catalog) Defaults() []FieldID {
	var ids []FieldID
	for _, id := range DefaultColumns {
		if _, ok := c.byID[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Inspector reports the columns of each table of a dataset
type Inspector interface {
	TableColumns(ctx context.Context, tables []string) (map[string][]string, error)
}

// Inspect narrows the full catalog to the columns present in a dataset.
// The returned catalog is never empty: when inspection fails, or nothing
// matches, the minimal subset is returned alongside the cause.
func Inspect(ctx context.Context, insp Inspector) (*Catalog, error) {
	tables := []string{TableEntity, TableEstablishment, TableTaxRegime}
	columns, err := insp.TableColumns(ctx, tables)
	if err != nil {
		return Minimal(), fmt.Errorf("failed to inspect dataset schema: %w", err)
	}

	present := make(map[string]bool)
	for alias, table := range aliasTables {
		for _, col := range columns[table] {
			present[alias+"."+strings.ToLower(col)] = true
		}
	}

	var fields []Field
	for _, f := range allFields {
		if f.Synthetic() {
			ok := true
			for _, part := range f.Parts {
				ok = ok && present[part]
			}
			if ok {
				fields = append(fields, f)
			}
			continue
		}
		if present[f.Ref()] {
			fields = append(fields, f)
		}
	}

	if len(fields) == 0 {
		return Minimal(), fmt.Errorf("dataset exposes none of the catalog columns")
	}
	return newCatalog(fields), nil
}
