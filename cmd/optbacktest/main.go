package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang/glog"
	"github.com/joshi-prasad/optbacktest"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	dataDir     string
	outputDir   string
	tickers     []string
	subdirs     []string
	workers     int
	dryRun      bool
	metricsFile string

	cfg *optbacktest.Config
)

var rootCmd = &cobra.Command{
	Use:   "optbacktest",
	Short: "Option history maintenance and covered call backtest reports",
	Long: `optbacktest prices historical call quotes with Black-Scholes and keeps the
per ticker option CSV files consistent:
  iv           fill implied_volatility and probability_itm
  splits       divide pre-split strikes by the cumulative split ratio
  remove-puts  keep call rows only
  derive       recompute otm_pct, ITM and premium yields
  strikes      rebuild strike/type/expiry from OCC symbols
  merge        join the underlying's HistoricalData_<TICKER>.csv
  coverage     report how many rows carry IV and probability
  yearly       per year ITM and premium yield summary with charts`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// glog reads its settings from the Go flag set cobra already filled.
		flag.CommandLine.Parse([]string{})

		loaded, err := optbacktest.LoadConfig(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		glog.Flush()
	},
}

func applyFlagOverrides(cmd *cobra.Command, c *optbacktest.Config) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.DataDir = dataDir
	}
	if flags.Changed("output-dir") {
		c.OutputDir = outputDir
	}
	if flags.Changed("subdir") {
		c.Subdirs = subdirs
	}
	if flags.Changed("workers") {
		c.Workers = workers
	}
	if flags.Changed("dry-run") {
		c.DryRun = dryRun
	}
	if flags.Changed("metrics-file") {
		c.MetricsFile = metricsFile
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (default ./optbacktest.yaml)")
	pf.StringVar(&dataDir, "data-dir", "", "root of the <TICKER>/<period>/ data tree")
	pf.StringVar(&outputDir, "output-dir", "", "write results under this directory instead of in place")
	pf.StringSliceVar(&tickers, "ticker", nil, "restrict to these tickers")
	pf.StringSliceVar(&subdirs, "subdir", nil, "period subdirectories to scan")
	pf.IntVar(&workers, "workers", 4, "files processed concurrently")
	pf.BoolVar(&dryRun, "dry-run", false, "compute everything but write nothing")
	pf.StringVar(&metricsFile, "metrics-file", "", "write Prometheus textfile metrics here")
	pf.AddGoFlagSet(flag.CommandLine)
}

func main() {
	flag.Set("alsologtostderr", "true")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt,
		syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		glog.Flush()
		os.Exit(1)
	}
}
