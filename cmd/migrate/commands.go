package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/poolstate"
)

func dryRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show which bots would migrate, without changing containers or state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			plans, err := eng.DryRun(ctx)
			if err != nil {
				return fmt.Errorf("dry run: %w", err)
			}
			if len(plans) == 0 {
				fmt.Println("No dedicated bots pending migration.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Append([]string{"Instance ID", "User ID", "Placement"})
			for _, p := range plans {
				placement := p.PoolID
				if p.NewPool {
					placement = "(new pool)"
				}
				table.Append([]string{p.InstanceID, p.UserID, placement})
			}
			table.Render()
			return nil
		},
	}
}

func executeCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Migrate every not-yet-migrated dedicated bot into the pooled runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			spinner, _ := pterm.DefaultSpinner.Start("Migrating dedicated bots...")
			run, err := eng.MigrateAll(ctx)
			if err != nil {
				spinner.Fail(fmt.Sprintf("migration pass failed: %v", err))
				return err
			}

			if len(run.FailedBots) > 0 {
				spinner.Warning(fmt.Sprintf("%d migrated, %d failed", len(run.MigratedBots), len(run.FailedBots)))
			} else {
				spinner.Success(fmt.Sprintf("%d bot(s) migrated", len(run.MigratedBots)))
			}

			if verbose {
				printRecords("Migrated", run.MigratedBots)
				printRecords("Failed", run.FailedBots)
			}

			if len(run.FailedBots) > 0 {
				return fmt.Errorf("%d bot(s) failed to migrate", len(run.FailedBots))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Print a per-bot outcome table")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the migration ledger's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := eng.Ledger().Runs()
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("No migration runs recorded.")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Append([]string{"Started", "Completed", "Migrated", "Failed", "Rolled Back"})
			for _, run := range runs {
				table.Append([]string{
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.CompletedAt.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%d", len(run.MigratedBots)),
					fmt.Sprintf("%d", len(run.FailedBots)),
					fmt.Sprintf("%d", len(run.RollbackHistory)),
				})
			}
			table.Render()
			return nil
		},
	}
}

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <instanceId>",
		Short: "Reverse a previously migrated bot back to a dedicated container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background()
			eng, cleanup, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			record, err := eng.Rollback(ctx, args[0])
			if err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			pterm.Success.Printfln("rolled back %s (status: %s)", record.InstanceID, record.Status)
			return nil
		},
	}
}

func printRecords(label string, records []poolstate.MigrationRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	table := tablewriter.NewWriter(os.Stdout)
	table.Append([]string{"Instance ID", "User ID", "Status", "Error"})
	for _, r := range records {
		table.Append([]string{r.InstanceID, r.UserID, string(r.Status), r.Error})
	}
	table.Render()
}
