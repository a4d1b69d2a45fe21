package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/subscription-snapshot/internal/app"
	"github.com/magabrotheeeer/subscription-snapshot/internal/app/exporter"
	"github.com/magabrotheeeer/subscription-snapshot/internal/config"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/password"
	"github.com/magabrotheeeer/subscription-snapshot/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-snapshot/internal/migrations"
	exporterservice "github.com/magabrotheeeer/subscription-snapshot/internal/services/exporter"
	"github.com/magabrotheeeer/subscription-snapshot/internal/snapshot"
	"github.com/magabrotheeeer/subscription-snapshot/internal/storage"
)

// ErrFileExists возвращается, если фикстура перезаписала бы существующий файл.
var ErrFileExists = errors.New("file already exists")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dashboardctl",
		Short:        "Subscription snapshot tooling",
		Long:         "Build snapshots, mint access tokens and create local fixture databases",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSnapshotCmd(),
		newExportCmd(),
		newTokenCmd(),
		newHashTokenCmd(),
		newFixtureCmd(),
	)
	return root
}

func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, sl.SetupLogger(cfg.Env, stderr), nil
}

func newSnapshotCmd() *cobra.Command {
	var (
		params snapshot.Params
		output string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build a snapshot and print it",
		Long:  "Build a snapshot from the configured bot database and print it as JSON, or write it to --output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			db, builder, err := app.OpenSnapshot(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			snap, err := builder.Build(cmd.Context(), params)
			if err != nil {
				return err
			}

			if output != "" {
				return exporterservice.WriteFile(output, snap)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}

	cmd.Flags().IntVar(&params.PaymentsLimit, "payments-limit", snapshot.DefaultPaymentsLimit, "number of recent payments (1..500)")
	cmd.Flags().IntVar(&params.ExpiringDays, "expiring-days", 0, "expiring window in days (1..90), 0 uses the configured default")
	cmd.Flags().BoolVar(&params.IncludeNonUser, "include-non-user", false, "include subscribers whose role is not \"user\"")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the snapshot to this file instead of stdout")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run a single export to every configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := exporter.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return a.RunOnce(cmd.Context())
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a dashboard JWT",
		Long:  "Mint a JWT accepted by the API, signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := jwt.NewJWTMaker(cfg.Auth.JWTSecret, ttl).GenerateToken(subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "dashboard", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to auth.token_ttl")
	return cmd
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print a bcrypt hash for auth.api_token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := password.GetHash(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func newFixtureCmd() *cobra.Command {
	var demo bool

	cmd := &cobra.Command{
		Use:   "fixture [path]",
		Short: "Create an SQLite database with the bot schema",
		Long:  "Create a new SQLite database with the bot schema for local development. An existing file is never touched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := createFixture(cmd.Context(), args[0], demo, time.Now()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			return err
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "fill the database with demo subscribers and payments")
	return cmd
}

func createFixture(ctx context.Context, path string, demo bool, now time.Time) error {
	const op = "dashboardctl.createFixture"

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s: %w: %s", op, ErrFileExists, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	db, err := sql.Open(storage.DriverSQLite, "file:"+path+"?mode=rwc")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err = migrations.Run(db, storage.DriverSQLite); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !demo {
		return nil
	}
	if err = seedDemo(ctx, db, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func seedDemo(ctx context.Context, db *sql.DB, now time.Time) error {
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format("2006-01-02") }
	stamp := func(offset int) string { return now.AddDate(0, 0, offset).UTC().Format("2006-01-02 15:04:05") }

	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO settings (key, value) VALUES ('channel', ?)`, []any{`[{"name":"A"},{"name":"B"}]`}},
		{`INSERT INTO users (telegram_id, user_name, first_name, subscription_plan, subscription_end, job_title) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{1001, "alice", "Alice", `["A","B"]`, day(40), "user"}},
		{`INSERT INTO users (telegram_id, user_name, first_name, subscription_plan, subscription_end, job_title) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{1002, "bob", "Bob", `["A"]`, day(3), "user"}},
		{`INSERT INTO users (telegram_id, user_name, first_name, subscription_plan, subscription_end, job_title) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{1003, "carol", nil, `["B"]`, day(-10), "user"}},
		{`INSERT INTO users (telegram_id, user_name, first_name, subscription_plan, subscription_end, job_title) VALUES (?, ?, ?, ?, ?, ?)`,
			[]any{1004, "mod", "Mod", `[]`, nil, "moderator"}},
		{`INSERT INTO payments (telegram_id, method, plan, amount, status, user_name, paid_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{1001, "card", "A", 10.0, "paid", "alice", stamp(-1), stamp(-1), stamp(-1)}},
		{`INSERT INTO payments (telegram_id, method, plan, amount, status, user_name, paid_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{1002, "crypto", "A", 15.5, "paid", "bob", stamp(-20), stamp(-20), stamp(-20)}},
		{`INSERT INTO payments (telegram_id, method, plan, amount, status, user_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			[]any{1003, "card", "B", 9.99, "pending", "carol", stamp(0), stamp(0)}},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, st := range statements {
		if _, err = tx.ExecContext(ctx, st.query, st.args...); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
