package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/joshi-prasad/optbacktest"
	"github.com/spf13/cobra"
)

// runBatch finds the configured files, applies op to each and writes metrics.
func runBatch(cmd *cobra.Command, name string, op optbacktest.TableOp,
	write bool) (optbacktest.BatchReport, error) {

	files, err := optbacktest.FindOptionFiles(cfg.DataDir, cfg.Subdirs,
		cfg.FilePattern, tickers)
	if err != nil {
		return optbacktest.BatchReport{}, err
	}
	if len(files) == 0 {
		msg := fmt.Sprintf("No files matching %s under %s/<TICKER>/%v.",
			cfg.FilePattern, cfg.DataDir, cfg.Subdirs)
		glog.Error(msg)
		return optbacktest.BatchReport{}, errors.New(msg)
	}

	var sink optbacktest.TableSink = optbacktest.NewFileSink(cfg.DataDir,
		cfg.OutputDir)
	if cfg.DryRun || !write {
		sink = optbacktest.DiscardSink{}
	}

	metrics, err := optbacktest.NewBatchMetrics()
	if err != nil {
		return optbacktest.BatchReport{}, err
	}

	batch := optbacktest.NewBatch(cfg, sink, metrics)
	report, runErr := batch.Run(cmd.Context(), files, name, op)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			glog.Error(err)
		}
	}

	fmt.Println(report)
	for _, result := range report.Results {
		if result.Err != nil {
			fmt.Printf("  FAILED %s: %s\n", result.File, result.Err)
		}
	}
	if len(report.Outcomes) > 0 {
		fmt.Print("  IV outcomes:")
		for _, outcome := range optbacktest.AllIvOutcomes() {
			fmt.Printf(" %s=%d", outcome, report.Outcomes[outcome])
		}
		fmt.Println()
	}
	return report, runErr
}

var ivCmd = &cobra.Command{
	Use:   "iv",
	Short: "Recalculate implied_volatility and probability_itm",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onlyMissing, _ := cmd.Flags().GetBool("only-missing"); onlyMissing {
			cfg.OnlyMissing = true
		}
		_, err := runBatch(cmd, "iv", optbacktest.IvProbOp(cfg.IvProbOptions()),
			true)
		return err
	},
}

var splitsCmd = &cobra.Command{
	Use:   "splits",
	Short: "Divide strikes quoted before a stock split",
	RunE: func(cmd *cobra.Command, args []string) error {
		schedules, err := cfg.SplitSchedules()
		if err != nil {
			return err
		}
		columns, _ := cmd.Flags().GetStringSlice("columns")
		_, err = runBatch(cmd, "splits", optbacktest.SplitsOp(schedules, columns),
			true)
		return err
	},
}

var removePutsCmd = &cobra.Command{
	Use:   "remove-puts",
	Short: "Drop put rows from every file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBatch(cmd, "remove-puts", optbacktest.RemovePutsOp(), true)
		return err
	},
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Recompute otm_pct, ITM and premium yield columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBatch(cmd, "derive", optbacktest.DerivedOp(), true)
		return err
	},
}

var strikesCmd = &cobra.Command{
	Use:   "strikes",
	Short: "Rebuild strike, option_type and expiration_date from OCC tickers",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBatch(cmd, "strikes", optbacktest.StrikesOp(), true)
		return err
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Join HistoricalData_<TICKER>.csv underlying prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBatch(cmd, "merge", optbacktest.MergeOp(cfg.DataDir), true)
		return err
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report implied volatility and probability coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		collector := optbacktest.NewCoverageCollector(cfg.IvProbOptions())
		if _, err := runBatch(cmd, "coverage", collector.Op(), false); err != nil {
			return err
		}

		reports := collector.Reports()
		keys := make([]string, 0, len(reports))
		for key := range reports {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		total := optbacktest.CoverageReport{}
		minPct, _ := cmd.Flags().GetFloat64("min-pct")
		low := []string{}
		for _, key := range keys {
			report := reports[key]
			total = total.Add(report)
			fmt.Printf("%-24s %s\n", key, report)
			if report.IvPct() < minPct {
				low = append(low, key)
			}
		}
		fmt.Printf("%-24s %s\n", "TOTAL", total)
		if len(low) > 0 {
			fmt.Printf("Below %.0f%% IV coverage: %s\n", minPct,
				strings.Join(low, ", "))
		}
		return nil
	},
}

var yearlyCmd = &cobra.Command{
	Use:   "yearly",
	Short: "Per year ITM expirations and premium yield inside a probability band",
	Long: "Tickers whose mean monthly implied volatility reaches the median of all\n" +
		"monthly files are read from the weekly period, the rest from the monthly\n" +
		"one. --period weekly or --period monthly forces the choice.",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := cfg.YearlyPlan()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		period, _ := flags.GetString("period")
		if period != "auto" && period != "weekly" && period != "monthly" {
			return fmt.Errorf("--period must be auto, weekly or monthly, got %q", period)
		}
		pngDir, _ := flags.GetString("png-dir")
		htmlDir, _ := flags.GetString("html-dir")

		collector := optbacktest.NewTableCollector()
		if _, err := runBatch(cmd, "yearly", collector.Op(), false); err != nil {
			return err
		}

		tables := collector.Tables()
		fmt.Printf("IV threshold (median of monthly files): %.4f\n",
			plan.IvThreshold(tables))
		for _, choice := range plan.Choose(tables) {
			switch {
			case period == "weekly" && !choice.Weekly:
				choice.Period, choice.Band, choice.Weekly = plan.WeeklyPeriod, plan.WeeklyBand, true
			case period == "monthly" && choice.Weekly:
				choice.Period, choice.Weekly = plan.MonthlyPeriod, false
				choice.Band = plan.MonthlyBand
				if band, ok := plan.Bands[strings.ToUpper(choice.Ticker)]; ok {
					choice.Band = band
				}
			}
			band := choice.Band
			if flags.Changed("min-prob") {
				band.Min, _ = flags.GetFloat64("min-prob")
			}
			if flags.Changed("max-prob") {
				band.Max, _ = flags.GetFloat64("max-prob")
			}

			ticker := choice.Ticker
			summaries := optbacktest.YearlySummary(tables[ticker][choice.Period], band)
			fmt.Printf("\n== %s %s (mean monthly IV %.4f, probability %.0f%%-%.0f%%) ==\n",
				ticker, choice.Period, choice.MeanIv, band.Min*100, band.Max*100)
			optbacktest.PrintYearly(os.Stdout, summaries)
			if len(summaries) == 0 {
				continue
			}

			title := fmt.Sprintf("%s covered calls (%s)", ticker, choice.Period)
			if pngDir != "" {
				if err := os.MkdirAll(pngDir, 0o755); err != nil {
					return err
				}
				path := fmt.Sprintf("%s/%s_yearly.png", pngDir, ticker)
				if err := optbacktest.PlotYearly(path, title, summaries); err != nil {
					return err
				}
			}
			if htmlDir != "" {
				if err := renderHTML(htmlDir, ticker, title, summaries); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func renderHTML(dir, ticker, title string,
	summaries []optbacktest.YearSummary) error {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file, err := os.Create(fmt.Sprintf("%s/%s_yearly.html", dir, ticker))
	if err != nil {
		return err
	}
	defer file.Close()
	return optbacktest.RenderYearlyHTML(file, title, summaries)
}

var chartCmd = &cobra.Command{
	Use:   "chart FILE.csv OUT.png",
	Short: "Scatter implied volatility against OTM percent for one file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := optbacktest.ReadOptionsTableFile(args[0])
		if err != nil {
			return err
		}
		return optbacktest.PlotIvSmile(args[1], args[0], table)
	},
}

var showCmd = &cobra.Command{
	Use:   "show FILE.csv",
	Short: "Print a file as a coloured table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := optbacktest.ReadOptionsTableFile(args[0])
		if err != nil {
			return err
		}
		columns, _ := cmd.Flags().GetStringSlice("columns")
		limit, _ := cmd.Flags().GetInt("limit")
		optbacktest.PrintTable(os.Stdout, table, columns, limit)
		return nil
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Implied volatility and probability ITM of a single call",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		price, _ := flags.GetFloat64("price")
		spot, _ := flags.GetFloat64("spot")
		strike, _ := flags.GetFloat64("strike")
		days, _ := flags.GetFloat64("days")
		rate, _ := flags.GetFloat64("rate")

		quote := optbacktest.NewOptionQuoteFromDays(price, spot, strike, days,
			rate)
		result := cfg.IvSolver().Solve(quote)
		fmt.Println(quote)
		fmt.Printf("outcome=%s iterations=%d\n", result.Outcome,
			result.Iterations)
		if !result.Ok() {
			return nil
		}
		prob, _ := quote.ProbabilityItm(result.Sigma)
		fmt.Printf("implied_volatility=%.4f probability_itm=%.4f\n",
			result.Sigma, prob)
		return nil
	},
}

func init() {
	ivCmd.Flags().Bool("only-missing", false, "keep rows that already have an IV")
	splitsCmd.Flags().StringSlice("columns", []string{"strike"}, "columns to divide")
	coverageCmd.Flags().Float64("min-pct", 80, "flag groups below this IV coverage")
	yearlyCmd.Flags().String("period", "auto", "auto, weekly or monthly files per ticker")
	yearlyCmd.Flags().Float64("min-prob", 0, "override band minimum")
	yearlyCmd.Flags().Float64("max-prob", 0, "override band maximum")
	yearlyCmd.Flags().String("png-dir", "", "save a PNG chart per ticker here")
	yearlyCmd.Flags().String("html-dir", "", "save an HTML chart per ticker here")
	showCmd.Flags().StringSlice("columns", nil, "columns to print")
	showCmd.Flags().Int("limit", 50, "rows to print, 0 for all")

	qf := quoteCmd.Flags()
	qf.Float64("price", 0, "observed call premium")
	qf.Float64("spot", 0, "underlying price")
	qf.Float64("strike", 0, "strike")
	qf.Float64("days", 0, "calendar days to expiry")
	qf.Float64("rate", 0.02, "risk-free rate as a decimal")
	for _, name := range []string{"price", "spot", "strike", "days"} {
		quoteCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(ivCmd, splitsCmd, removePutsCmd, deriveCmd, strikesCmd,
		mergeCmd, coverageCmd, yearlyCmd, chartCmd, showCmd, quoteCmd)
}
