package optbacktest

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/golang/glog"
)

func IvProbOp(opts IvProbOptions) TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		out, stats := EnrichIvProb(t, opts)
		return out, OpStats{
			RowsIn:     stats.Rows,
			RowsOut:    out.Len(),
			IvOutcomes: stats.Outcomes,
			Summary:    stats.String(),
		}, nil
	}
}

// SplitsOp adjusts files of tickers that have a schedule. Files of other
// tickers are inspected but not rewritten.
func SplitsOp(schedules map[string]*SplitSchedule, columns []string) TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		schedule, ok := schedules[strings.ToUpper(file.Ticker)]
		if !ok {
			return nil, OpStats{RowsIn: t.Len(), Summary: "no splits"}, nil
		}
		out, stats := ApplySplits(t, schedule, columns)
		return out, OpStats{
			RowsIn:  stats.Rows,
			RowsOut: out.Len(),
			Summary: fmt.Sprintf("adjusted=%d unparseable=%d", stats.Adjusted,
				stats.Unparseable),
		}, nil
	}
}

func RemovePutsOp() TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		out, stats := RemovePuts(t)
		if stats.Removed() == 0 {
			return nil, OpStats{RowsIn: stats.Before, Summary: "no puts"}, nil
		}
		return out, OpStats{
			RowsIn:  stats.Before,
			RowsOut: stats.After,
			Summary: fmt.Sprintf("removed %d puts", stats.Removed()),
		}, nil
	}
}

func DerivedOp() TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		out, stats := RecalculateDerived(t)
		return out, OpStats{
			RowsIn:  stats.Rows,
			RowsOut: out.Len(),
			Summary: fmt.Sprintf("otm=%d itm=%d (yes=%d) yield=%d",
				stats.OtmUpdated, stats.ItmUpdated, stats.ItmYes,
				stats.YieldUpdate),
		}, nil
	}
}

func StrikesOp() TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		out, stats := StrikesFromSymbols(t)
		return out, OpStats{
			RowsIn:  stats.Rows,
			RowsOut: out.Len(),
			Summary: fmt.Sprintf("parsed=%d invalid=%d", stats.Parsed,
				stats.Invalid),
		}, nil
	}
}

// historicalCache loads each ticker's price file once per run.
type historicalCache struct {
	baseDir string
	mu      sync.Mutex
	prices  map[string]*HistoricalPrices
}

func newHistoricalCache(baseDir string) *historicalCache {
	return &historicalCache{
		baseDir: baseDir,
		prices:  make(map[string]*HistoricalPrices),
	}
}

func (self *historicalCache) get(ticker string) (*HistoricalPrices, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if prices, ok := self.prices[ticker]; ok {
		return prices, nil
	}
	path := HistoricalPricesPath(self.baseDir, ticker)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("historical prices for %s: %w", ticker, err)
	}
	defer file.Close()
	prices, err := ReadHistoricalPrices(file)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	glog.Infof("Loaded %d historical bars for %s.", prices.Len(), ticker)
	self.prices[ticker] = prices
	return prices, nil
}

// MergeOp joins HistoricalData_<TICKER>.csv onto every file of that ticker
// and recomputes the derived columns that depend on the underlying.
func MergeOp(baseDir string) TableOp {
	cache := newHistoricalCache(baseDir)
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		prices, err := cache.get(file.Ticker)
		if err != nil {
			return nil, OpStats{}, err
		}
		merged, stats := MergeHistorical(t, prices)
		out, _ := RecalculateDerived(merged)
		return out, OpStats{
			RowsIn:  stats.Rows,
			RowsOut: out.Len(),
			Summary: fmt.Sprintf("matched=%d missing=%d at_expiry=%d",
				stats.Matched, stats.MissingQuote, stats.MatchedExpiry),
		}, nil
	}
}

// CoverageCollector accumulates coverage per ticker and period across a
// concurrent batch.
type CoverageCollector struct {
	opts    IvProbOptions
	mu      sync.Mutex
	reports map[string]CoverageReport
}

func NewCoverageCollector(opts IvProbOptions) *CoverageCollector {
	return &CoverageCollector{
		opts:    opts,
		reports: make(map[string]CoverageReport),
	}
}

func (self *CoverageCollector) Op() TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		report := Coverage(t, self.opts)
		key := file.Ticker + "/" + file.Period
		self.mu.Lock()
		self.reports[key] = self.reports[key].Add(report)
		self.mu.Unlock()
		return nil, OpStats{RowsIn: report.Rows, Summary: report.String()}, nil
	}
}

// Reports returns a copy of the per ticker/period coverage.
func (self *CoverageCollector) Reports() map[string]CoverageReport {
	self.mu.Lock()
	defer self.mu.Unlock()
	out := make(map[string]CoverageReport, len(self.reports))
	for k, v := range self.reports {
		out[k] = v
	}
	return out
}

// TableCollector keeps every table a batch reads, grouped by ticker and then
// period, for reports that need whole years at once.
type TableCollector struct {
	mu     sync.Mutex
	tables map[string]map[string][]*OptionsTable
}

func NewTableCollector() *TableCollector {
	return &TableCollector{tables: make(map[string]map[string][]*OptionsTable)}
}

func (self *TableCollector) Op() TableOp {
	return func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error) {
		self.mu.Lock()
		periods, ok := self.tables[file.Ticker]
		if !ok {
			periods = make(map[string][]*OptionsTable)
			self.tables[file.Ticker] = periods
		}
		periods[file.Period] = append(periods[file.Period], t)
		self.mu.Unlock()
		return nil, OpStats{RowsIn: t.Len()}, nil
	}
}

// Tables returns ticker -> period -> tables.
func (self *TableCollector) Tables() map[string]map[string][]*OptionsTable {
	self.mu.Lock()
	defer self.mu.Unlock()
	out := make(map[string]map[string][]*OptionsTable, len(self.tables))
	for ticker, periods := range self.tables {
		out[ticker] = make(map[string][]*OptionsTable, len(periods))
		for period, tables := range periods {
			out[ticker][period] = append([]*OptionsTable{}, tables...)
		}
	}
	return out
}
