package dataset

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"
)

//go:embed seed_schema.sql
var seedSchemaSQL string

// Values drawn by the generator
var (
	seedStates     = []string{"SP", "RJ", "MG", "RS", "PR", "SC", "BA", "GO", "PE", "CE", "PA", "DF", "ES", "PB", "RN", "MT"}
	seedSituations = []string{"02", "03", "04", "08"}
	seedSizes      = []string{"1", "3", "5"}
	seedNatures    = []string{"206-2", "213-5", "321-2"}
	seedCNAEs      = []string{"4711-3/02", "6201-5/00", "7020-4/00", "5611-2/01"}
	seedDDDs       = []string{"11", "21", "31", "47"}

	seedActivities = []string{"Padaria", "Comercial", "Tecnologia", "Construtora", "Restaurante", "Farmácia", "Consultoria", "Mercado", "Auto Peças", "Distribuidora"}
	seedSurnames   = []string{"Silva", "Souza", "Oliveira", "Santos", "Pereira", "Lima", "Costa", "Almeida", "Ferreira", "Rodrigues"}
	seedSuffixes   = []string{"Ltda", "ME", "EIRELI", "S.A."}
	seedStreets    = []string{"das Flores", "XV de Novembro", "Sete de Setembro", "Brasil", "Paraná", "São João"}
	seedDistricts  = []string{"Centro", "Jardim América", "Vila Nova", "Boa Vista", "Santa Cruz"}
)

// SeedOptions controls synthetic dataset generation
type SeedOptions struct {
	Rows int
	Seed int64
	// States restricts the uf column. Empty means all sixteen generator states.
	States []string
	// Situations restricts situacao_cadastral. Empty means 02, 03, 04 and 08.
	Situations []string
}

// Seed writes Rows synthetic companies to the sqlite file at path, creating
// the schema when missing. Calling it again on the same file appends rows
// with fresh identifiers.
func Seed(ctx context.Context, path string, opts SeedOptions) error {
	if opts.Rows < 0 {
		return fmt.Errorf("rows must not be negative")
	}

	db, err := sql.Open("sqlite3", fileDSN(path, url.Values{"mode": {"rwc"}}))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, seedSchemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var existing int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM empresas").Scan(&existing); err != nil {
		return fmt.Errorf("failed to count companies: %w", err)
	}

	states := opts.States
	if len(states) == 0 {
		states = seedStates
	}
	situations := opts.Situations
	if len(situations) == 0 {
		situations = seedSituations
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := 0; i < opts.Rows; i++ {
		basico := fmt.Sprintf("%08d", 10000000+existing+i)
		if err := seedCompany(ctx, tx, rng, basico, states, situations); err != nil {
			return fmt.Errorf("failed to insert company %s: %w", basico, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}

func seedCompany(ctx context.Context, tx *sql.Tx, rng *rand.Rand, basico string, states, situations []string) error {
	pick := func(values []string) string { return values[rng.Intn(len(values))] }
	date := func(maxYears int) string {
		days := rng.Intn(maxYears * 365)
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days).Format("20060102")
	}

	name := fmt.Sprintf("%s %s %s", pick(seedActivities), pick(seedSurnames), pick(seedSuffixes))
	tradeName := name
	if rng.Intn(2) == 0 {
		tradeName = fmt.Sprintf("%s %s", pick(seedActivities), pick(seedSurnames))
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO empresas (cnpj_basico, razao_social, natureza_juridica, qualificacao_responsavel,
			capital_social, porte_empresa, ente_federativo_responsavel)
		VALUES (?, ?, ?, ?, ?, ?, '')`,
		basico, name, pick(seedNatures), pick([]string{"05", "22", "49"}),
		fmt.Sprintf("%.2f", 1000+rng.Float64()*999000), pick(seedSizes),
	)
	if err != nil {
		return err
	}

	ordem := "0001"
	dv := fmt.Sprintf("%02d", 10+rng.Intn(90))
	complemento := ""
	if rng.Intn(2) == 0 {
		complemento = fmt.Sprintf("Apto %d", 1+rng.Intn(999))
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO estabelecimento (cnpj_basico, cnpj_ordem, cnpj_dv, identificador_matriz_filial,
			nome_fantasia, situacao_cadastral, data_situacao_cadastral, motivo_situacao_cadastral,
			nome_cidade_exterior, pais, data_inicio_atividade, cnae_fiscal_principal, cnae_fiscal_secundaria,
			tipo_logradouro, logradouro, numero, complemento, bairro, cep, uf, municipio,
			ddd_1, telefone_1, ddd_2, telefone_2, ddd_fax, fax, correio_eletronico,
			situacao_especial, data_situacao_especial)
		VALUES (?, ?, ?, '1', ?, ?, ?, '', '', '076', ?, ?, '', 'RUA', ?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', '', ?, '', '')`,
		basico, ordem, dv,
		tradeName, pick(situations), date(5),
		date(20), pick(seedCNAEs),
		pick(seedStreets), fmt.Sprint(1+rng.Intn(9999)), complemento, pick(seedDistricts),
		fmt.Sprintf("%08d", rng.Intn(100000000)), pick(states), fmt.Sprint(1000+rng.Intn(9000)),
		pick(seedDDDs), fmt.Sprint(30000000+rng.Intn(969999999)),
		seedEmail(name, rng),
	)
	if err != nil {
		return err
	}

	opcao := pick([]string{"S", "N"})
	dataOpcao := ""
	if opcao == "S" {
		dataOpcao = date(10)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO simples (cnpj_basico, opcao_simples, data_opcao_simples, data_exclusao_simples,
			opcao_mei, data_opcao_mei, data_exclusao_mei)
		VALUES (?, ?, ?, '', ?, '', '')`,
		basico, opcao, dataOpcao, pick([]string{"S", "N"}),
	)
	if err != nil {
		return err
	}

	partners := 1 + rng.Intn(3)
	for j := 0; j < partners; j++ {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO socios (cnpj, cnpj_basico, identificador_de_socio, nome_socio, cnpj_cpf_socio,
				qualificacao_socio, data_entrada_sociedade, pais, representante_legal,
				nome_representante, qualificacao_representante, faixa_etaria)
			VALUES (?, ?, ?, ?, ?, ?, ?, '076', '', '', '', ?)`,
			basico+ordem+dv, basico, fmt.Sprint(j+1), pick(seedSurnames)+" "+pick(seedSurnames),
			fmt.Sprintf("%011d", rng.Int63n(100000000000)), pick([]string{"05", "22", "49"}),
			date(20), fmt.Sprint(1+rng.Intn(8)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedEmail(name string, rng *rand.Rand) string {
	clean := strings.ToLower(name)
	clean = strings.NewReplacer(" ", "", ".", "", ",", "").Replace(clean)
	if r := []rune(clean); len(r) > 10 {
		clean = string(r[:10])
	}
	return fmt.Sprintf("contato@%s.%s", clean, []string{"com.br", "net.br", "org.br"}[rng.Intn(3)])
}
