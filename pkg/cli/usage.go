package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/database"
	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
	"github.com/ekaya-inc/ekaya-drafts/pkg/repositories"
	"github.com/ekaya-inc/ekaya-drafts/pkg/services"
)

// NewUsageCommand groups operator commands for usage data.
func NewUsageCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect and export per-user usage",
	}
	cmd.AddCommand(
		newUsageExportCommand(version),
		newUsageQuotaCommand(version),
		newUsageSetTierCommand(version),
	)
	return cmd
}

func newUsageExportCommand(version string) *cobra.Command {
	var userID, format, from, to, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export usage records as CSV or JSON",
		Example: `  # Last 30 days as CSV
  ekaya-drafts usage export --user u_123

  # One month as JSON into a file
  ekaya-drafts usage export --user u_123 --format json --from 2026-05-01 --to 2026-05-31 --out may.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), version, func(ledger services.UsageLedger, _ repositories.TierRepository) error {
				data, err := ledger.ExportUsageData(cmd.Context(), userID, start, end, models.ExportFormat(format))
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, data)
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&format, "format", string(models.ExportCSV), "Export format: csv or json")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD), default 30 days before --to")
	cmd.Flags().StringVar(&to, "to", "", "End date inclusive (YYYY-MM-DD), default now")
	cmd.Flags().StringVar(&out, "out", "", "Write to file instead of stdout")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUsageQuotaCommand(version string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show a user's tier, usage and limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), version, func(ledger services.UsageLedger, _ repositories.TierRepository) error {
				check, err := ledger.CheckQuotas(cmd.Context(), userID, 0)
				if err != nil {
					return err
				}
				projection, err := ledger.GetCostProjection(cmd.Context(), userID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"quota": check, "projection": projection})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func newUsageSetTierCommand(version string) *cobra.Command {
	var userID, tier string

	cmd := &cobra.Command{
		Use:   "set-tier",
		Short: "Assign a subscription tier to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.Tier(tier)
			if !t.IsValid() {
				return fmt.Errorf("unknown tier %q (free, starter, pro, enterprise)", tier)
			}
			return withLedger(cmd.Context(), version, func(_ services.UsageLedger, tiers repositories.TierRepository) error {
				if err := tiers.SetTier(cmd.Context(), userID, t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now on the %s tier\n", userID, t)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&tier, "tier", "", "Tier: free, starter, pro or enterprise")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tier")

	return cmd
}

// withLedger connects to the database and hands fn a ledger over it.
func withLedger(ctx context.Context, version string, fn func(services.UsageLedger, repositories.TierRepository) error) error {
	cfg, logger, err := setup(version)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewConnection(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	tiers := repositories.NewTierRepository(db)
	return fn(newLedger(cfg, db, tiers, logger), tiers)
}

func newLedger(cfg *config.Config, db repositories.Querier, tiers repositories.TierRepository, logger *zap.Logger) services.UsageLedger {
	return services.NewUsageLedger(
		repositories.NewUsageRepository(db),
		tiers,
		services.LedgerConfig{QuotaOverrides: cfg.Quotas.Overrides()},
		logger,
	)
}

// parseRange resolves --from/--to. An empty to means now; a date-only to
// covers that whole day. An empty from is 30 days before to.
func parseRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q: %w", to, err)
		}
		end = t.AddDate(0, 0, 1)
	}

	start := end.AddDate(0, 0, -30)
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q: %w", from, err)
		}
		start = t
	}

	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must be after --from")
	}
	return start, end, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
