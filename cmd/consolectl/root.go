package main

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	redisAddr string
	pgDSN     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "consolectl",
		Short:        "Operator tooling for the cinema permission console",
		Long:         `Inspect the permission catalog, run the assignment audit and manage background jobs.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address of the job queue")
	cmd.PersistentFlags().StringVar(&opts.pgDSN, "pg-dsn", os.Getenv("PG_DSN"), "PostgreSQL connection string")

	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newJobsCmd(opts, nil))
	cmd.AddCommand(newAuditCmd(opts))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
