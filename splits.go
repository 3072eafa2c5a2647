package optbacktest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
)

const kSplitDecimals = 2

type SplitEvent struct {
	Date  time.Time
	Ratio float64
}

func NewSplitEvent(date string, ratio float64) (SplitEvent, error) {
	t, err := parseDate(date)
	if err != nil {
		return SplitEvent{}, err
	}
	if !isFinite(ratio) || ratio <= 0 {
		msg := fmt.Sprintf("Split on %s has invalid ratio %v.", date, ratio)
		glog.Error(msg)
		return SplitEvent{}, errors.New(msg)
	}
	return SplitEvent{Date: t, Ratio: ratio}, nil
}

// SplitSchedule is the split history of one underlying, oldest first.
type SplitSchedule struct {
	events []SplitEvent
}

func NewSplitSchedule(events ...SplitEvent) *SplitSchedule {
	sorted := append([]SplitEvent{}, events...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return &SplitSchedule{events: sorted}
}

func (self *SplitSchedule) Events() []SplitEvent {
	return append([]SplitEvent{}, self.events...)
}

// Divisor is the cumulative ratio of every split that happened strictly after
// date. Prices quoted before a split are divided by it to become comparable
// with today's share count.
func (self *SplitSchedule) Divisor(date time.Time) float64 {
	divisor := 1.0
	for _, event := range self.events {
		if event.Date.After(date) {
			divisor *= event.Ratio
		}
	}
	return divisor
}

type SplitStats struct {
	Rows        int
	Adjusted    int
	Unparseable int
}

// ApplySplits divides the given columns of each row by the divisor of the
// row's quote date. Rows whose date cannot be parsed are left untouched.
func ApplySplits(
	t *OptionsTable,
	schedule *SplitSchedule,
	columns []string) (*OptionsTable, SplitStats) {

	if len(columns) == 0 {
		columns = []string{kColStrike}
	}
	out := t.Clone()
	stats := SplitStats{Rows: out.Len(), Adjusted: 0, Unparseable: 0}
	if schedule == nil || len(schedule.events) == 0 {
		return out, stats
	}

	for row := 0; row < out.Len(); row++ {
		date, err := parseDate(out.Cell(row, kColDateOnly))
		if err != nil {
			stats.Unparseable++
			continue
		}
		divisor := schedule.Divisor(date)
		if divisor == 1 {
			continue
		}
		adjusted := false
		for _, col := range columns {
			value, ok := out.Float(row, col)
			if !ok {
				continue
			}
			out.SetFloat(row, col, value/divisor, kSplitDecimals)
			adjusted = true
		}
		if adjusted {
			stats.Adjusted++
		}
	}
	glog.Infof("Split adjusted %d of %d rows.", stats.Adjusted, stats.Rows)
	return out, stats
}
