package optbacktest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/golang/glog"
)

const (
	kHistDate   = "Date"
	kHistClose  = "Close/Last"
	kHistOpen   = "Open"
	kHistHigh   = "High"
	kHistLow    = "Low"
	kHistVolume = "Volume"

	kColUnderlyingOpen   = "underlying_open"
	kColUnderlyingClose  = "underlying_close"
	kColUnderlyingHigh   = "underlying_high"
	kColUnderlyingLow    = "underlying_low"
	kColUnderlyingVolume = "underlying_volume"
)

// PriceBar is one trading day of the underlying.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// HistoricalPrices indexes daily bars by YYYY-MM-DD.
type HistoricalPrices struct {
	bars map[string]PriceBar
}

func NewHistoricalPrices(bars ...PriceBar) *HistoricalPrices {
	prices := &HistoricalPrices{bars: make(map[string]PriceBar, len(bars))}
	for _, bar := range bars {
		prices.bars[bar.Date.Format(kDateLayout)] = bar
	}
	return prices
}

func (self *HistoricalPrices) Len() int {
	return len(self.bars)
}

func (self *HistoricalPrices) Bar(date string) (PriceBar, bool) {
	key, ok := dateKey(date)
	if !ok {
		return PriceBar{}, false
	}
	bar, ok := self.bars[key]
	return bar, ok
}

// Dates returns the trading days held, oldest first.
func (self *HistoricalPrices) Dates() []string {
	dates := make([]string, 0, len(self.bars))
	for date := range self.bars {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// ReadHistoricalPrices parses a HistoricalData_<TICKER>.csv download: Date,
// Close/Last, Volume, Open, High, Low with dollar prefixed prices. Rows with
// an unparseable date or close are dropped.
func ReadHistoricalPrices(r io.Reader) (*HistoricalPrices, error) {
	table, err := ReadOptionsTable(r)
	if err != nil {
		return nil, err
	}
	closeCol := kHistClose
	if !table.HasColumn(closeCol) {
		closeCol = "Close"
	}
	if !table.HasColumn(kHistDate) || !table.HasColumn(closeCol) {
		msg := fmt.Sprintf("Historical prices need %s and %s columns, got %v.",
			kHistDate, kHistClose, table.Header())
		glog.Error(msg)
		return nil, errors.New(msg)
	}

	prices := NewHistoricalPrices()
	dropped := 0
	for row := 0; row < table.Len(); row++ {
		date, err := parseDate(table.Cell(row, kHistDate))
		if err != nil {
			dropped++
			continue
		}
		closePrice, ok := table.Float(row, closeCol)
		if !ok {
			dropped++
			continue
		}
		bar := PriceBar{
			Date:   date,
			Open:   math.NaN(),
			High:   math.NaN(),
			Low:    math.NaN(),
			Close:  closePrice,
			Volume: math.NaN(),
		}
		if v, ok := table.Float(row, kHistOpen); ok {
			bar.Open = v
		}
		if v, ok := table.Float(row, kHistHigh); ok {
			bar.High = v
		}
		if v, ok := table.Float(row, kHistLow); ok {
			bar.Low = v
		}
		if v, ok := table.Float(row, kHistVolume); ok {
			bar.Volume = v
		}
		prices.bars[date.Format(kDateLayout)] = bar
	}
	if dropped > 0 {
		glog.Warningf("Dropped %d historical rows without date or close.", dropped)
	}
	return prices, nil
}

type MergeStats struct {
	Rows          int
	Matched       int
	MissingQuote  int
	MatchedExpiry int
}

// MergeHistorical left joins the underlying's daily bars onto the option rows,
// once on the quote date and once on the expiration date. Rows without a
// matching day keep their existing underlying columns. The result is sorted by
// quote date then strike.
func MergeHistorical(
	t *OptionsTable,
	prices *HistoricalPrices) (*OptionsTable, MergeStats) {

	out := t.Clone()
	stats := MergeStats{Rows: out.Len()}

	for row := 0; row < out.Len(); row++ {
		if bar, ok := prices.Bar(out.Cell(row, kColDateOnly)); ok {
			out.SetFloat(row, kColUnderlyingOpen, bar.Open, -1)
			out.SetFloat(row, kColUnderlyingClose, bar.Close, -1)
			out.SetFloat(row, kColUnderlyingHigh, bar.High, -1)
			out.SetFloat(row, kColUnderlyingLow, bar.Low, -1)
			out.SetFloat(row, kColUnderlyingVolume, bar.Volume, 0)
			out.SetFloat(row, kColUnderlyingSpot, bar.Close, -1)
			stats.Matched++
		} else {
			stats.MissingQuote++
		}

		if bar, ok := prices.Bar(out.Cell(row, kColExpirationDate)); ok {
			out.SetFloat(row, kColCloseAtExpiry, bar.Close, -1)
			out.SetFloat(row, kColHighAtExpiry, bar.High, -1)
			out.SetFloat(row, kColSpotAtExpiry, bar.Close, -1)
			stats.MatchedExpiry++
		}

		if _, ok := out.Float(row, kColDaysToExpiry); !ok {
			if days, ok := daysBetween(out.Cell(row, kColDateOnly),
				out.Cell(row, kColExpirationDate)); ok {
				out.SetFloat(row, kColDaysToExpiry, days, 0)
			}
		}
	}
	out.SortBy(kColDateOnly, kColStrike)

	if stats.MissingQuote > 0 {
		glog.Warningf("%d option rows have no historical price.",
			stats.MissingQuote)
	}
	return out, stats
}

func daysBetween(from, to string) (float64, bool) {
	start, err := parseDate(from)
	if err != nil {
		return 0, false
	}
	end, err := parseDate(to)
	if err != nil {
		return 0, false
	}
	return math.Round(end.Sub(start).Hours() / 24), true
}
