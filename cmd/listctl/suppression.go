package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var suppressionCmd = &cobra.Command{
	Use:   "suppression",
	Short: "Show the size of a campaign's suppression set",
	RunE:  runSuppression,
}

func init() {
	suppressionCmd.Flags().IntVar(&historyTable, "history-table", 0, "campaign history table id (default from config)")
	suppressionCmd.Flags().StringVar(&campaignCode, "campaign", "", "campaign code")
	suppressionCmd.Flags().IntVar(&lookbackDays, "lookback", -1, "suppression window in days (default from config)")
	rootCmd.AddCommand(suppressionCmd)
}

func runSuppression(cmd *cobra.Command, args []string) error {
	opts, err := campaignOptions()
	if err != nil {
		return err
	}
	svc, cfg, err := newService(cmd.Context())
	if err != nil {
		return err
	}

	id := opts.HistoryTableID
	if id == 0 {
		id = cfg.Suppression.HistoryTableID
	}
	lookback := cfg.Suppression.LookbackDays
	if opts.LookbackDays != nil {
		lookback = *opts.LookbackDays
	}

	p := svc.Pipeline()
	history := p.ResolveHistoryTable(cmd.Context(), id)
	if history == nil {
		return fmt.Errorf("history table %d could not be resolved", id)
	}
	set := p.BuildSuppressionSet(cmd.Context(), history, lookback, opts.CampaignCode)

	fmt.Printf("History table: %s (id %d)\n", history.Name, history.TableID)
	fmt.Printf("Lookback days: %d\n", lookback)
	if opts.CampaignCode != "" {
		fmt.Printf("Campaign code: %s\n", opts.CampaignCode)
	}
	fmt.Printf("Suppressed contacts: %d\n", set.Len())
	return nil
}
