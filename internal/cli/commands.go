package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/dataset"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
)

const maxGeneratedKeys = 10000

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the portal database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				ctx, cancel := context.WithTimeout(ctx, time.Minute)
				defer cancel()

				if err := b.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

// NewKeysCommand creates the keys command group
func NewKeysCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage product keys",
	}

	var count, units int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate unbound product keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 || count > maxGeneratedKeys {
				return fmt.Errorf("--count must be between 1 and %d", maxGeneratedKeys)
			}
			if units < 1 {
				return errors.New("--units must be positive")
			}

			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				keys, err := b.GenerateKeys(ctx, count, units)
				if err != nil {
					return err
				}

				records := keyRecords(keys)
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Write(records, func(w io.Writer) error {
					return writeKeyTable(w, records)
				})
			})
		},
	}
	generate.Flags().IntVar(&count, "count", 1, "number of keys to generate")
	generate.Flags().IntVar(&units, "units", 1000, "lead units carried by each key")

	cmd.AddCommand(generate)
	return cmd
}

// NewDatasetCommand creates the dataset command group. These commands work
// on local sqlite files and need no database connection.
func NewDatasetCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Create and check dataset files",
	}

	var (
		seedPath   string
		rows       int
		seed       int64
		states     []string
		situations []string
	)
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic CNPJ dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows < 1 {
				return errors.New("--rows must be positive")
			}
			err := dataset.Seed(commandContext(cmd), seedPath, dataset.SeedOptions{
				Rows:       rows,
				Seed:       seed,
				States:     upper(states),
				Situations: situations,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d companies to %s\n", rows, seedPath)
			return nil
		},
	}
	seedCmd.Flags().StringVar(&seedPath, "path", "", "sqlite file to write")
	seedCmd.Flags().IntVar(&rows, "rows", 1000, "number of companies")
	seedCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	seedCmd.Flags().StringSliceVar(&states, "states", nil, "restrict the uf column (comma separated)")
	seedCmd.Flags().StringSliceVar(&situations, "situations", nil, "restrict situacao_cadastral codes (comma separated)")
	_ = seedCmd.MarkFlagRequired("path")

	var validatePath string
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a file is a usable CNPJ dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			executor := dataset.NewExecutor(dataset.Config{})

			if err := executor.Validate(ctx, validatePath); err != nil {
				return err
			}
			stats, err := executor.Stats(ctx, validatePath)
			if err != nil {
				return err
			}

			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return out.Write(stats, func(w io.Writer) error {
				return writeStats(w, validatePath, stats)
			})
		},
	}
	validateCmd.Flags().StringVar(&validatePath, "path", "", "sqlite file to check")
	_ = validateCmd.MarkFlagRequired("path")

	cmd.AddCommand(seedCmd, validateCmd)
	return cmd
}

// NewAdminCommand creates the admin command group
func NewAdminCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var username, email, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(strings.TrimSpace(username)) < 3 {
				return errors.New("--username must have at least 3 characters")
			}
			if !strings.Contains(email, "@") {
				return errors.New("--email must be an email address")
			}
			if len(password) < 6 {
				return errors.New("--password must have at least 6 characters")
			}

			return withBackend(cmd, opts, func(ctx context.Context, b Backend) error {
				user := &models.User{
					Username: strings.TrimSpace(username),
					Email:    strings.TrimSpace(email),
					IsAdmin:  true,
				}
				if err := b.CreateUser(ctx, user, password); err != nil {
					return err
				}

				record := adminRecord{ID: user.ID, Username: user.Username, Email: user.Email}
				out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return out.Write(record, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "created administrator %s (%s)\n", user.Username, user.ID)
					return err
				})
			})
		},
	}
	create.Flags().StringVar(&username, "username", "", "login name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "initial password")
	_ = create.MarkFlagRequired("username")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func upper(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}

func writeStats(w io.Writer, path string, stats *models.DatasetStats) error {
	fmt.Fprintf(w, "%s: valid dataset, %d companies\n", path, stats.TotalCompanies)
	fmt.Fprintf(w, "simples nacional: %d optante, %d nao optante\n",
		stats.SimplesDistribution.Optante, stats.SimplesDistribution.NaoOptante)

	states := make([]string, 0, len(stats.StateDistribution))
	for uf := range stats.StateDistribution {
		states = append(states, uf)
	}
	sort.Slice(states, func(i, j int) bool {
		a, b := stats.StateDistribution[states[i]], stats.StateDistribution[states[j]]
		if a != b {
			return a > b
		}
		return states[i] < states[j]
	})
	for _, uf := range states {
		fmt.Fprintf(w, "  %s  %d\n", uf, stats.StateDistribution[uf])
	}
	return nil
}
