package optbacktest

import (
	"strings"

	"github.com/golang/glog"
)

type FilterStats struct {
	Before int
	After  int
	Calls  int
	Puts   int
}

func (self FilterStats) Removed() int {
	return self.Before - self.After
}

func isCall(cell string) bool {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "C", "CALL", "CE":
		return true
	}
	return false
}

func isPut(cell string) bool {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "P", "PUT", "PE":
		return true
	}
	return false
}

// RemovePuts keeps only call rows. Tables without an option_type column are
// returned as they are.
func RemovePuts(t *OptionsTable) (*OptionsTable, FilterStats) {
	stats := FilterStats{Before: t.Len(), After: t.Len(), Calls: 0, Puts: 0}
	if !t.HasColumn(kColOptionType) {
		glog.V(1).Info("No option_type column, nothing to filter.")
		return t.Clone(), stats
	}

	out := t.Filter(func(row int) bool {
		cell := t.Cell(row, kColOptionType)
		if isPut(cell) {
			stats.Puts++
		}
		if isCall(cell) {
			stats.Calls++
			return true
		}
		return false
	})
	stats.After = out.Len()
	return out, stats
}
