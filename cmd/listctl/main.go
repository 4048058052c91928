package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/list-builder/internal/api"
	"github.com/ignite/list-builder/internal/cache"
	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/mailinglist"
	"github.com/ignite/list-builder/internal/metabase"
	"github.com/ignite/list-builder/internal/pkg/distlock"
	"github.com/ignite/list-builder/internal/pkg/httputil"
	"github.com/ignite/list-builder/internal/pkg/logger"
	"github.com/ignite/list-builder/internal/segmentation"
)

var (
	cfgFile     string
	databaseID  int
	tableID     int
	filtersFile string

	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "listctl",
	Short: "listctl - mailing list builder",
	Long:  `listctl counts and exports mailing lists from BI tool tables without the HTTP server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		logger.Setup(level, true)
		return nil
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("listctl version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(versionCmd)
}

// addTargetFlags registers the flags that select a table and its filters.
func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&databaseID, "database", 0, "BI tool database id")
	cmd.Flags().IntVar(&tableID, "table", 0, "BI tool table id")
	cmd.Flags().StringVar(&filtersFile, "filters", "", "JSON file holding an array of filters")
	cmd.MarkFlagRequired("database")
	cmd.MarkFlagRequired("table")
}

// newService loads configuration and builds the list service the same way
// the server does.
func newService(ctx context.Context) (*mailinglist.Service, *config.Config, error) {
	cfg, err := config.LoadFromEnv(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Metabase.IsConfigured() {
		return nil, nil, metabase.ErrNotConfigured
	}

	client := metabase.NewClient(cfg.Metabase, nil)
	rdb := cache.Connect(ctx, cfg.Redis)
	if rdb != nil {
		client.WithCache(cache.NewMetadataCache(rdb, cfg.Redis.MetadataTTL()))
	}
	svc := mailinglist.NewService(client, cfg.Export, cfg.Suppression).
		WithLocks(distlock.NewFactory(rdb, 30*time.Minute))
	return svc, cfg, nil
}

// loadTarget reads --filters and validates it like the HTTP API does.
func loadTarget() (mailinglist.Target, error) {
	t := mailinglist.Target{DatabaseID: databaseID, TableID: tableID}
	if filtersFile == "" {
		return t, nil
	}

	data, err := os.ReadFile(filtersFile)
	if err != nil {
		return t, fmt.Errorf("failed to read filters: %w", err)
	}
	var in struct {
		Filters []segmentation.FilterValue `json:"filters" validate:"dive"`
	}
	if err := json.Unmarshal(data, &in.Filters); err != nil {
		return t, fmt.Errorf("filters must be a JSON array: %w", err)
	}
	if errs := httputil.Validate(&in); len(errs) > 0 {
		return t, fmt.Errorf("invalid filter %s: %s", errs[0].Field, errs[0].Message)
	}
	t.Filters = in.Filters
	return t, nil
}

// campaignFlags maps request field names back to the flags that set them.
var campaignFlags = map[string]string{
	"historyTableId": "history-table",
	"campaignCode":   "campaign",
	"lookbackDays":   "lookback",
}

// campaignOptions validates the campaign flags like the HTTP API validates
// a campaign export request. The default --lookback of -1 defers to config.
func campaignOptions() (api.CampaignOptions, error) {
	opts := api.CampaignOptions{
		HistoryTableID: historyTable,
		CampaignCode:   campaignCode,
		LogHistory:     logHistory,
	}
	if lookbackDays != -1 {
		days := lookbackDays
		opts.LookbackDays = &days
	}
	if errs := httputil.Validate(&opts); len(errs) > 0 {
		name := campaignFlags[errs[0].Field]
		if name == "" {
			name = errs[0].Field
		}
		return opts, fmt.Errorf("invalid --%s: %s", name, errs[0].Message)
	}
	return opts, nil
}
