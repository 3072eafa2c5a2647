package optbacktest

import (
	"math"
	"sort"
	"strings"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/stat"
)

const (
	kWeeksPerYear  = 52
	kMonthsPerYear = 12

	// Used when no monthly file carries an implied volatility.
	kDefaultIvThreshold = 0.30
)

// ProbabilityBand selects the options a covered call seller would write: the
// ones whose probability of finishing in the money lies in [Min, Max]. Years
// with nothing inside the band are retried with [FallbackMin, FallbackMax].
type ProbabilityBand struct {
	Min            float64
	Max            float64
	FallbackMin    float64
	FallbackMax    float64
	PeriodsPerYear int
}

// WeeklyBand is used for volatile underlyings written every week.
func WeeklyBand() ProbabilityBand {
	return ProbabilityBand{
		Min:            0.04,
		Max:            0.07,
		FallbackMin:    0.03,
		FallbackMax:    0.08,
		PeriodsPerYear: kWeeksPerYear,
	}
}

func MonthlyBand() ProbabilityBand {
	return ProbabilityBand{
		Min:            0.10,
		Max:            0.13,
		FallbackMin:    0.08,
		FallbackMax:    0.13,
		PeriodsPerYear: kMonthsPerYear,
	}
}

func (self ProbabilityBand) contains(p float64, fallback bool) bool {
	if fallback {
		return p >= self.FallbackMin && p <= self.FallbackMax
	}
	return p >= self.Min && p <= self.Max
}

type YearSummary struct {
	Year           int
	Options        int
	Expirations    int
	ItmExpirations int
	MeanYield      float64
	MedianYield    float64
	// AnnualYield is the mean premium yield earned once per period.
	AnnualYield float64
	MeanIv      float64
	Fallback    bool
}

// ItmRate is the share of expirations in which at least one selected option
// was assigned.
func (self YearSummary) ItmRate() float64 {
	if self.Expirations == 0 {
		return 0
	}
	return float64(self.ItmExpirations) / float64(self.Expirations)
}

type yearAccumulator struct {
	options        int
	expirations    map[string]bool
	itmExpirations map[string]bool
	yields         []float64
	ivs            []float64
}

func newYearAccumulator() *yearAccumulator {
	return &yearAccumulator{
		options:        0,
		expirations:    make(map[string]bool),
		itmExpirations: make(map[string]bool),
		yields:         []float64{},
		ivs:            []float64{},
	}
}

func collectYears(
	tables []*OptionsTable,
	band ProbabilityBand,
	fallback bool,
	years map[int]*yearAccumulator,
	only map[int]bool) {

	for _, t := range tables {
		for row := 0; row < t.Len(); row++ {
			date, err := parseDate(t.Cell(row, kColDateOnly))
			if err != nil {
				continue
			}
			year := date.Year()
			if only != nil && !only[year] {
				continue
			}
			if _, ok := years[year]; !ok {
				years[year] = newYearAccumulator()
			}
			p, ok := t.Float(row, kColProbabilityItm)
			if !ok || !band.contains(p, fallback) {
				continue
			}

			acc := years[year]
			acc.options++
			expiration := t.Cell(row, kColExpirationDate)
			acc.expirations[expiration] = true
			if itm, ok := parseBoolCell(t.Cell(row, kColItm)); ok && itm {
				acc.itmExpirations[expiration] = true
			}
			if y, ok := t.Float(row, kColPremiumYieldPct); ok {
				acc.yields = append(acc.yields, y)
			}
			if iv, ok := t.Float(row, kColImpliedVolatility); ok {
				acc.ivs = append(acc.ivs, iv)
			}
		}
	}
}

// YearlySummary groups the option rows of all tables by calendar year of the
// quote date and summarises the rows inside band. Years seen in the data but
// empty inside the band are rescanned with the fallback range.
func YearlySummary(tables []*OptionsTable, band ProbabilityBand) []YearSummary {
	years := make(map[int]*yearAccumulator)
	collectYears(tables, band, false, years, nil)

	empty := make(map[int]bool)
	for year, acc := range years {
		if len(acc.expirations) == 0 {
			empty[year] = true
		}
	}
	if len(empty) > 0 && (band.FallbackMin != band.Min ||
		band.FallbackMax != band.Max) {

		collectYears(tables, band, true, years, empty)
	}

	summaries := make([]YearSummary, 0, len(years))
	for year, acc := range years {
		summary := YearSummary{
			Year:           year,
			Options:        acc.options,
			Expirations:    len(acc.expirations),
			ItmExpirations: len(acc.itmExpirations),
			MeanYield:      math.NaN(),
			MedianYield:    math.NaN(),
			AnnualYield:    math.NaN(),
			MeanIv:         math.NaN(),
			Fallback:       empty[year] && acc.options > 0,
		}
		if len(acc.yields) > 0 {
			sort.Float64s(acc.yields)
			summary.MeanYield = stat.Mean(acc.yields, nil)
			summary.MedianYield = stat.Quantile(0.5, stat.Empirical, acc.yields,
				nil)
			summary.AnnualYield = summary.MeanYield * float64(band.PeriodsPerYear)
		}
		if len(acc.ivs) > 0 {
			summary.MeanIv = stat.Mean(acc.ivs, nil)
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Year < summaries[j].Year
	})
	return summaries
}

// YearlyPlan decides which files of a ticker the yearly report reads. Tickers
// whose mean monthly implied volatility reaches the median of all monthly
// IVs are written weekly; the rest monthly, with an optional per ticker band.
type YearlyPlan struct {
	MonthlyPeriod string
	WeeklyPeriod  string
	MonthlyBand   ProbabilityBand
	WeeklyBand    ProbabilityBand
	// Bands overrides the monthly band of individual tickers.
	Bands map[string]ProbabilityBand
}

func NewYearlyPlan() YearlyPlan {
	return YearlyPlan{
		MonthlyPeriod: "monthly",
		WeeklyPeriod:  "holidays",
		MonthlyBand:   MonthlyBand(),
		WeeklyBand:    WeeklyBand(),
		Bands:         map[string]ProbabilityBand{},
	}
}

// PeriodChoice is the file set and band picked for one ticker.
type PeriodChoice struct {
	Ticker string
	Period string
	Band   ProbabilityBand
	// MeanIv is the ticker's mean monthly IV, NaN when it has none.
	MeanIv float64
	Weekly bool
}

func impliedVolatilities(tables []*OptionsTable) []float64 {
	ivs := []float64{}
	for _, t := range tables {
		for row := 0; row < t.Len(); row++ {
			if iv, ok := t.Float(row, kColImpliedVolatility); ok {
				ivs = append(ivs, iv)
			}
		}
	}
	return ivs
}

// median averages the two middle values of an even sized sample.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// IvThreshold is the median implied volatility over every monthly table of
// every ticker. tables is keyed by ticker, then period.
func (self YearlyPlan) IvThreshold(tables map[string]map[string][]*OptionsTable) float64 {
	all := []float64{}
	for _, periods := range tables {
		all = append(all, impliedVolatilities(periods[self.MonthlyPeriod])...)
	}
	if len(all) == 0 {
		return kDefaultIvThreshold
	}
	return median(all)
}

// Choose picks weekly or monthly files for every ticker, sorted by ticker.
func (self YearlyPlan) Choose(tables map[string]map[string][]*OptionsTable) []PeriodChoice {
	threshold := self.IvThreshold(tables)
	tickers := make([]string, 0, len(tables))
	for ticker := range tables {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	choices := make([]PeriodChoice, 0, len(tickers))
	for _, ticker := range tickers {
		choice := PeriodChoice{
			Ticker: ticker,
			Period: self.MonthlyPeriod,
			Band:   self.MonthlyBand,
			MeanIv: math.NaN(),
			Weekly: false,
		}
		if band, ok := self.Bands[strings.ToUpper(ticker)]; ok {
			choice.Band = band
		}
		ivs := impliedVolatilities(tables[ticker][self.MonthlyPeriod])
		if len(ivs) > 0 {
			choice.MeanIv = stat.Mean(ivs, nil)
			if choice.MeanIv >= threshold {
				choice.Period = self.WeeklyPeriod
				choice.Band = self.WeeklyBand
				choice.Weekly = true
			}
		}
		glog.V(1).Infof("%s: mean monthly IV %.4f, threshold %.4f, using %s.",
			ticker, choice.MeanIv, threshold, choice.Period)
		choices = append(choices, choice)
	}
	return choices
}
