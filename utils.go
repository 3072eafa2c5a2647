package optbacktest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/shopspring/decimal"
)

const kDateLayout = "2006-01-02"

var kDateLayouts = []string{
	kDateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func isMissing(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "", "nan", "none", "null", "n/a", "na", "-":
		return true
	}
	return false
}

// parseNumber reads a numeric CSV cell. Currency prefixes, thousands
// separators and percent suffixes found in downloaded price files are
// tolerated. Missing and non-finite values report false.
func parseNumber(cell string) (float64, bool) {
	if isMissing(cell) {
		return math.NaN(), false
	}
	s := strings.TrimSpace(cell)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(value) {
		return math.NaN(), false
	}
	return value, true
}

// formatNumber renders v rounded half away from zero to places decimals.
// Negative places keeps full precision. Non-finite values become an empty
// cell.
func formatNumber(v float64, places int) string {
	if !isFinite(v) {
		return ""
	}
	if places < 0 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).Round(int32(places)).String()
}

func roundTo(v float64, places int) float64 {
	if !isFinite(v) || places < 0 {
		return v
	}
	rounded, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return rounded
}

func parseDate(cell string) (time.Time, error) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range kDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	msg := fmt.Sprintf("Parsing date %q failed. Unknown layout.", s)
	glog.V(2).Info(msg)
	return time.Time{}, errors.New(msg)
}

// dateKey normalises any supported date cell to YYYY-MM-DD so dates coming
// from differently formatted files can be joined.
func dateKey(cell string) (string, bool) {
	t, err := parseDate(cell)
	if err != nil {
		return "", false
	}
	return t.Format(kDateLayout), true
}

func boolCell(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

func parseBoolCell(cell string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "YES", "Y", "TRUE", "T", "1":
		return true, true
	case "NO", "N", "FALSE", "F", "0":
		return false, true
	}
	return false, false
}

func percentOf(part, whole float64) float64 {
	if whole == 0 || !isFinite(part) || !isFinite(whole) {
		return math.NaN()
	}
	return part / whole * 100
}
