package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/permissions"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/db"
	"github.com/hieuvqhe/SEP490-G163-sub001/jobs"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	var skipGrants bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run the assignment audit in-process and print findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.pgDSN == "" {
				return errors.New("audit: --pg-dsn or PG_DSN is required")
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, opts.pgDSN, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			job := jobs.NewAssignmentsAuditJob(assignments.NewRepository(pool), permissions.NewRepository(pool), nil, logger, nil)
			report, err := job.Run(ctx, jobs.AssignmentsAuditPayload{Trigger: jobs.TriggerManual, SkipGrants: skipGrants})
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if report.Findings() > 0 {
				return fmt.Errorf("audit: %d findings", report.Findings())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipGrants, "skip-grants", false, "Check assignment rows only")
	return cmd
}

func printReport(cmd *cobra.Command, report jobs.AuditReport) {
	out := cmd.OutOrStdout()
	for _, v := range report.Violations {
		fmt.Fprintf(out, "%s role=%s cinemas=%v employees=%v\n", v.Kind, v.RoleType, v.CinemaIDs, v.EmployeeIDs)
	}
	for _, g := range report.OrphanGrants {
		fmt.Fprintf(out, "%s employee=%d cinema=%d code=%s\n", jobs.FindingOrphanGrant, g.EmployeeID, g.CinemaID, g.PermissionCode)
	}
	fmt.Fprintf(out, "%d findings\n", report.Findings())
}
