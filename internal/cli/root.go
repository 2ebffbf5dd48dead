package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json", "yaml"}

// Backend is the portal database as seen by the CLI
type Backend interface {
	Migrate(ctx context.Context) error
	GenerateKeys(ctx context.Context, count, units int) ([]*models.LicenseKey, error)
	CreateUser(ctx context.Context, user *models.User, password string) error
	Close()
}

// RootOptions holds global flags for all commands
type RootOptions struct {
	ConfigPath string
	Format     string

	// OpenBackend connects to the portal database. Tests replace it.
	OpenBackend func(ctx context.Context, configPath string) (Backend, error)
}

// NewRootCommand creates the leadctl root command
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{OpenBackend: openPostgres})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}

	cmd := &cobra.Command{
		Use:   "leadctl",
		Short: "Administer the CNPJ leads portal",
		Long:  "Maintenance commands for the CNPJ leads portal: schema migrations, product keys, administrators and dataset files.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfig, "path to the portal config file")
	cmd.PersistentFlags().StringVarP(&opts.Format, "output", "o", "text", "output format (text|json|yaml)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewDatasetCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

type postgresBackend struct {
	db   *database.DB
	repo *database.Repository
}

func openPostgres(ctx context.Context, configPath string) (Backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := database.NewRepository(db)
	repo.SetBcryptCost(cfg.Auth.BcryptCost)
	return &postgresBackend{db: db, repo: repo}, nil
}

func (b *postgresBackend) Migrate(ctx context.Context) error {
	return b.db.Migrate(ctx)
}

func (b *postgresBackend) GenerateKeys(ctx context.Context, count, units int) ([]*models.LicenseKey, error) {
	return b.repo.GenerateKeys(ctx, count, units)
}

func (b *postgresBackend) CreateUser(ctx context.Context, user *models.User, password string) error {
	return b.repo.CreateUser(ctx, user, password)
}

func (b *postgresBackend) Close() {
	b.db.Close()
}

// withBackend opens the backend for the duration of fn
func withBackend(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, b Backend) error) error {
	ctx := commandContext(cmd)

	b, err := opts.OpenBackend(ctx, opts.ConfigPath)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b)
}
