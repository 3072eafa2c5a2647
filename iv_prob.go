package optbacktest

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/glog"
)

const (
	kDefaultRate     = 0.02
	kDefaultMinPrice = 0.01
	kDefaultDecimals = 4
)

type IvProbOptions struct {
	Solver      *IvSolver
	DefaultRate float64
	MinPrice    float64
	Decimals    int
	// OnlyMissing leaves rows that already carry an implied volatility alone.
	OnlyMissing bool
}

func NewIvProbOptions() IvProbOptions {
	return IvProbOptions{
		Solver:      NewIvSolver(),
		DefaultRate: kDefaultRate,
		MinPrice:    kDefaultMinPrice,
		Decimals:    kDefaultDecimals,
		OnlyMissing: false,
	}
}

// IvProbStats tallies one enrichment pass. Rows that could not be turned into
// a quote count as Skipped; every quote handed to the solver is counted once
// in Outcomes.
type IvProbStats struct {
	Rows     int
	Kept     int
	Skipped  int
	Eligible int
	Solved   int
	Outcomes map[IvOutcome]int
}

func newIvProbStats() IvProbStats {
	return IvProbStats{
		Rows:     0,
		Kept:     0,
		Skipped:  0,
		Eligible: 0,
		Solved:   0,
		Outcomes: make(map[IvOutcome]int),
	}
}

func (self IvProbStats) Failed() int {
	return self.Eligible - self.Solved
}

func (self IvProbStats) String() string {
	parts := []string{}
	for _, outcome := range AllIvOutcomes() {
		if n := self.Outcomes[outcome]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", outcome, n))
		}
	}
	return fmt.Sprintf("rows=%d kept=%d skipped=%d eligible=%d solved=%d [%s]",
		self.Rows, self.Kept, self.Skipped, self.Eligible, self.Solved,
		strings.Join(parts, " "))
}

// ObservedPrice picks the premium the solver should match: the mid price when
// quoted, else the midpoint of the day's range, else the close.
func ObservedPrice(t *OptionsTable, row int) (float64, bool) {
	if mid, ok := t.Float(row, kColMidPrice); ok && mid > 0 {
		return mid, true
	}
	high, hok := t.Float(row, kColHighPrice)
	low, lok := t.Float(row, kColLowPrice)
	if hok && lok && high > 0 && low > 0 {
		return (high + low) / 2, true
	}
	if closePrice, ok := t.Float(row, kColClosePrice); ok && closePrice > 0 {
		return closePrice, true
	}
	return math.NaN(), false
}

// QuoteForRow assembles the kernel input for one CSV row.
func QuoteForRow(t *OptionsTable, row int, opts IvProbOptions) (OptionQuote, bool) {
	price, ok := ObservedPrice(t, row)
	if !ok || price < opts.MinPrice {
		return OptionQuote{}, false
	}
	spot, ok := t.Float(row, kColUnderlyingSpot)
	if !ok {
		return OptionQuote{}, false
	}
	strike, ok := t.Float(row, kColStrike)
	if !ok {
		return OptionQuote{}, false
	}
	days, ok := t.Float(row, kColDaysToExpiry)
	if !ok {
		return OptionQuote{}, false
	}
	rate, ok := t.Float(row, kColFedFundsRate)
	if !ok {
		rate = opts.DefaultRate
	}
	return NewOptionQuoteFromDays(price, spot, strike, days, rate), true
}

// EnrichIvProb fills implied_volatility and probability_itm for every row.
// The input table is not modified. Rows without a usable quote, and rows the
// solver gives up on, end up with empty cells.
func EnrichIvProb(t *OptionsTable, opts IvProbOptions) (*OptionsTable, IvProbStats) {
	if opts.Solver == nil {
		opts.Solver = NewIvSolver()
	}
	out := t.Clone()
	out.EnsureColumn(kColImpliedVolatility)
	out.EnsureColumn(kColProbabilityItm)

	stats := newIvProbStats()
	for row := 0; row < out.Len(); row++ {
		stats.Rows++
		if opts.OnlyMissing {
			if _, ok := out.Float(row, kColImpliedVolatility); ok {
				stats.Kept++
				continue
			}
		}

		quote, ok := QuoteForRow(out, row, opts)
		if !ok {
			stats.Skipped++
			out.SetCell(row, kColImpliedVolatility, "")
			out.SetCell(row, kColProbabilityItm, "")
			continue
		}

		stats.Eligible++
		result := opts.Solver.Solve(quote)
		stats.Outcomes[result.Outcome]++
		if !result.Ok() {
			glog.V(2).Infof("Row %d: IV %s. %s", row, result.Outcome, quote)
			out.SetCell(row, kColImpliedVolatility, "")
			out.SetCell(row, kColProbabilityItm, "")
			continue
		}

		stats.Solved++
		out.SetFloat(row, kColImpliedVolatility, result.Sigma, opts.Decimals)
		prob, ok := quote.ProbabilityItm(result.Sigma)
		if !ok {
			prob = math.NaN()
		}
		out.SetFloat(row, kColProbabilityItm, prob, opts.Decimals)
	}
	return out, stats
}
