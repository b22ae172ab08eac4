package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigil-systems/vigil/cli/internal/seeder"
	"github.com/vigil-systems/vigil/cli/pkg/output"
)

var (
	seedURL        string
	seedAPIKey     string
	seedCount      int
	seedBatchSize  int
	seedTimeSpread string
	seedCategories string
	seedSeed       int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate and submit fake audit events",
	Long: `Generate realistic audit events and send them to a collector in
batches. Useful for exercising storage backends and dashboards.

Examples:
  # 100 events to the current profile's collector
  vigil seed

  # 5000 events spread over the last week
  vigil seed --count 5000 --time-spread 7d

  # Only auth and database events, reproducible
  vigil seed --categories AUTH,DATABASE --seed 42`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedURL, "url", "", "collector URL (default from profile)")
	seedCmd.Flags().StringVar(&seedAPIKey, "api-key", "", "collector API key (default from profile)")
	seedCmd.Flags().IntVarP(&seedCount, "count", "c", seeder.DefaultCount, "number of events to generate")
	seedCmd.Flags().IntVarP(&seedBatchSize, "batch-size", "b", seeder.DefaultBatchSize, "events per batch")
	seedCmd.Flags().StringVarP(&seedTimeSpread, "time-spread", "s", "", "spread events over a period (e.g. 24h, 7d)")
	seedCmd.Flags().StringVar(&seedCategories, "categories", "", "comma-separated categories to generate")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", 0, "random seed for reproducible runs")
}

func runSeed(cmd *cobra.Command, args []string) error {
	url, apiKey := seedURL, seedAPIKey
	if url == "" || apiKey == "" {
		profileName, _ := cmd.Flags().GetString("profile")
		profile, err := cliCfg.GetProfile(profileName)
		if err == nil {
			if url == "" {
				url = profile.CollectorURL
			}
			if apiKey == "" {
				apiKey = profile.APIKey
			}
		}
	}
	if url == "" {
		return fmt.Errorf("collector URL is required (use --url or 'vigil profile set')")
	}

	var timeSpread time.Duration
	if seedTimeSpread != "" {
		var err error
		timeSpread, err = parseDuration(seedTimeSpread)
		if err != nil {
			return fmt.Errorf("invalid time-spread: %w", err)
		}
	}

	var categories []string
	if seedCategories != "" {
		for _, c := range strings.Split(seedCategories, ",") {
			categories = append(categories, strings.ToUpper(strings.TrimSpace(c)))
		}
	}

	runner, err := seeder.NewRunner(seeder.Config{
		CollectorURL: url,
		APIKey:       apiKey,
		Count:        seedCount,
		BatchSize:    seedBatchSize,
		TimeSpread:   timeSpread,
		Categories:   categories,
		Seed:         seedSeed,
	})
	if err != nil {
		return err
	}

	output.Info("Seeding %d events to %s", seedCount, url)
	runner.OnProgress(func(sent, total int) {
		output.Info("  %d/%d events sent", sent, total)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if result.Failed > 0 {
		output.Warn("Sent %d events, %d failed (%d batches in %v)",
			result.Sent, result.Failed, result.Batches, result.Elapsed.Round(time.Millisecond))
		return nil
	}
	output.Success("Sent %d events in %d batches (%v)",
		result.Sent, result.Batches, result.Elapsed.Round(time.Millisecond))
	return nil
}

// parseDuration accepts time.ParseDuration formats plus a day suffix like
// "7d".
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(strings.TrimSuffix(s, "d"), "%d", &days); err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
