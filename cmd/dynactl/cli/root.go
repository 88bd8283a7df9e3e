// Package cli implements the dynactl admin commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dynaclean/dynaflow/internal/app"
	"github.com/dynaclean/dynaflow/internal/platform/db"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/migrations"
)

// Env supplies the command tree with configuration and output.
type Env struct {
	LoadConfig func() (*app.Config, error)
	Logger     *slog.Logger
	Stdout     io.Writer
	Clock      func() time.Time
}

// NewRootCommand builds the dynactl command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.LoadConfig == nil {
		env.LoadConfig = app.LoadConfig
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if env.Clock == nil {
		env.Clock = func() time.Time { return time.Now().UTC() }
	}

	root := &cobra.Command{
		Use:           "dynactl",
		Short:         "Dynaflow administration tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if env.Stdout != nil {
		root.SetOut(env.Stdout)
	}
	root.AddCommand(migrateCommand(env), jobsCommand(env), tokenCommand(env))
	return root
}

func migrateCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	withMigrator := func(fn func(*db.Migrator) error) error {
		cfg, err := env.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		m, err := db.NewMigrator(migrations.FS, cfg.PGDSN, env.Logger, true)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				env.Logger.Warn("close migrator", slog.Any("error", err))
			}
		}()
		return fn(m)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return printVersion(c, m)
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			steps, _ := c.Flags().GetInt("steps")
			return withMigrator(func(m *db.Migrator) error {
				if err := m.Down(steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return printVersion(c, m)
			})
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withMigrator(func(m *db.Migrator) error {
				return printVersion(c, m)
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(c *cobra.Command, m *db.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := strconv.FormatUint(uint64(v), 10)
	if dirty {
		state += " (dirty)"
	}
	fmt.Fprintln(c.OutOrStdout(), "schema version", state)
	return nil
}

func jobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}
	withJobs := func(fn func(*JobsCLI) error) error {
		cfg, err := env.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		jc := NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := jc.Close(); err != nil {
				env.Logger.Warn("close jobs client", slog.Any("error", err))
			}
		}()
		return fn(jc)
	}

	trigger := &cobra.Command{
		Use:   "trigger <name>",
		Short: "Enqueue a maintenance job (stock:summary_rebuild, idempotency:cleanup)",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withJobs(func(jc *JobsCLI) error {
				info, err := jc.Trigger(c.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(c.OutOrStdout(), "enqueued", info.Type, info.ID)
				return nil
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withJobs(func(jc *JobsCLI) error {
				s, err := jc.InspectQueue(c.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			})
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}

func tokenCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development session tokens",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Mint a signed session token",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			username, _ := c.Flags().GetString("username")
			role, _ := c.Flags().GetString("role")
			cfg, err := env.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			verifier, err := shared.NewTokenVerifier(shared.TokenConfig{
				Secret:    cfg.JWTSecret,
				Algorithm: cfg.JWTAlgorithm,
				Issuer:    cfg.JWTIssuer,
				TTL:       cfg.JWTTTL,
			})
			if err != nil {
				return err
			}
			token, err := verifier.Issue(shared.Identity{Username: username, Role: role}, env.Clock())
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().String("username", "", "username carried by the token")
	issue.Flags().String("role", "", "role carried by the token")
	_ = issue.MarkFlagRequired("username")
	cmd.AddCommand(issue)
	return cmd
}
