package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/list-builder/internal/mailinglist"
)

var (
	outFile      string
	historyTable int
	campaignCode string
	lookbackDays int
	logHistory   bool
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count rows matching the filters",
	RunE:  runCount,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the mailing list as CSV",
	Long: `Export the mailing list as CSV. With --campaign or --history-table the
list is suppressed against the campaign history table first, and --log
records the exported contacts under the campaign code.`,
	RunE: runExport,
}

func init() {
	addTargetFlags(countCmd)

	addTargetFlags(exportCmd)
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().IntVar(&historyTable, "history-table", 0, "campaign history table id (default from config)")
	exportCmd.Flags().StringVar(&campaignCode, "campaign", "", "campaign code")
	exportCmd.Flags().IntVar(&lookbackDays, "lookback", -1, "suppression window in days (default from config)")
	exportCmd.Flags().BoolVar(&logHistory, "log", false, "record exported contacts in the history table")

	rootCmd.AddCommand(countCmd, exportCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	svc, _, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	t, err := loadTarget()
	if err != nil {
		return err
	}

	n, err := svc.Count(cmd.Context(), t)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	opts, err := campaignOptions()
	if err != nil {
		return err
	}
	t, err := loadTarget()
	if err != nil {
		return err
	}
	svc, cfg, err := newService(cmd.Context())
	if err != nil {
		return err
	}

	var res *mailinglist.Result
	campaign := campaignCode != "" || historyTable > 0 || logHistory
	if campaign {
		lookback := cfg.Suppression.LookbackDays
		if opts.LookbackDays != nil {
			lookback = *opts.LookbackDays
		}
		cr, err := svc.CampaignExport(cmd.Context(), mailinglist.CampaignTarget{
			Target:         t,
			HistoryTableID: opts.HistoryTableID,
			CampaignCode:   opts.CampaignCode,
			LookbackDays:   lookback,
			LogHistory:     opts.LogHistory,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "total %d, suppressed %d, exported %d, logged %d\n",
			cr.Total, cr.Suppressed, len(cr.Entries), cr.Logged)
		if !cr.HistoryAvailable {
			fmt.Fprintln(os.Stderr, "warning: history table unavailable, nothing was suppressed")
		}
		res = cr.Result
	} else {
		res, err = svc.Export(cmd.Context(), t)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "total %d, exported %d\n", res.Count, len(res.Entries))
	}

	var w io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outFile, err)
		}
		defer f.Close()
		if _, err := io.WriteString(f, mailinglist.UTF8BOM); err != nil {
			return err
		}
		w = f
	}
	return mailinglist.WriteResult(w, res)
}
