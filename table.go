package optbacktest

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/golang/glog"
)

// Column names shared by the option history files.
const (
	kColDateOnly          = "date_only"
	kColTicker            = "ticker"
	kColOptionType        = "option_type"
	kColStrike            = "strike"
	kColExpirationDate    = "expiration_date"
	kColDaysToExpiry      = "days_to_expiry"
	kColUnderlyingSpot    = "underlying_spot"
	kColClosePrice        = "close_price"
	kColHighPrice         = "high_price"
	kColLowPrice          = "low_price"
	kColOpenPrice         = "open_price"
	kColMidPrice          = "mid_price"
	kColPremium           = "premium"
	kColPremiumLow        = "premium_low"
	kColFedFundsRate      = "fedfunds_rate"
	kColImpliedVolatility = "implied_volatility"
	kColProbabilityItm    = "probability_itm"
	kColOtmPct            = "otm_pct"
	kColItm               = "ITM"
	kColPremiumYieldPct   = "premium_yield_pct"
	kColPremiumYieldLow   = "premium_yield_pct_low"
	kColIntrinsicValue    = "intrinsic_value"
	kColTimeValue         = "time_value"
	kColExtrinsicValue    = "extrinsic_value"
	kColSpotAtExpiry      = "underlying_spot_at_expiry"
	kColCloseAtExpiry     = "underlying_close_at_expiry"
	kColHighAtExpiry      = "underlying_high_at_expiry"
)

// OptionsTable is a whole CSV file held in memory. Column order and columns
// this package knows nothing about survive a read/write round trip. Every row
// has exactly one cell per header column.
type OptionsTable struct {
	header  []string
	indices map[string]int
	rows    [][]string
}

func NewOptionsTable(header []string) *OptionsTable {
	table := &OptionsTable{
		header:  append([]string{}, header...),
		indices: make(map[string]int),
		rows:    [][]string{},
	}
	table.reindex()
	return table
}

func (self *OptionsTable) reindex() {
	self.indices = make(map[string]int, len(self.header))
	for i, col := range self.header {
		if _, dup := self.indices[col]; !dup {
			self.indices[col] = i
		}
	}
}

func ReadOptionsTable(r io.Reader) (*OptionsTable, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return NewOptionsTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := NewOptionsTable(header)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(table.rows)+1, err)
		}
		table.AppendRow(row)
	}
	glog.V(2).Infof("Read %d rows with %d columns.", len(table.rows),
		len(table.header))
	return table, nil
}

// ReadOptionsTableFile loads a CSV file, transparently decompressing *.gz.
func ReadOptionsTableFile(path string) (*OptionsTable, error) {
	file, err := os.Open(path)
	if err != nil {
		msg := fmt.Sprintf("Opening %s failed with error=%s", path, err)
		glog.Error(msg)
		return nil, errors.New(msg)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			msg := fmt.Sprintf("Opening gzip %s failed with error=%s", path, err)
			glog.Error(msg)
			return nil, errors.New(msg)
		}
		defer gz.Close()
		reader = gz
	}

	table, err := ReadOptionsTable(reader)
	if err != nil {
		msg := fmt.Sprintf("Parsing %s failed with error=%s", path, err)
		glog.Error(msg)
		return nil, errors.New(msg)
	}
	return table, nil
}

func (self *OptionsTable) WriteTo(w io.Writer) (int64, error) {
	counter := &countingWriter{w: w}
	writer := csv.NewWriter(counter)
	if len(self.header) > 0 {
		if err := writer.Write(self.header); err != nil {
			return counter.n, err
		}
	}
	for _, row := range self.rows {
		if err := writer.Write(row); err != nil {
			return counter.n, err
		}
	}
	writer.Flush()
	return counter.n, writer.Error()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (self *countingWriter) Write(p []byte) (int, error) {
	n, err := self.w.Write(p)
	self.n += int64(n)
	return n, err
}

// AppendRow adds a row, padding or truncating it to the header width.
func (self *OptionsTable) AppendRow(row []string) {
	cells := make([]string, len(self.header))
	copy(cells, row)
	self.rows = append(self.rows, cells)
}

func (self *OptionsTable) Len() int {
	return len(self.rows)
}

func (self *OptionsTable) Header() []string {
	return append([]string{}, self.header...)
}

func (self *OptionsTable) HasColumn(col string) bool {
	_, ok := self.indices[col]
	return ok
}

// EnsureColumn returns the index of col, appending an empty column when the
// table does not have it yet.
func (self *OptionsTable) EnsureColumn(col string) int {
	if idx, ok := self.indices[col]; ok {
		return idx
	}
	self.header = append(self.header, col)
	idx := len(self.header) - 1
	self.indices[col] = idx
	for i := range self.rows {
		self.rows[i] = append(self.rows[i], "")
	}
	return idx
}

func (self *OptionsTable) DropColumn(col string) bool {
	idx, ok := self.indices[col]
	if !ok {
		return false
	}
	self.header = append(self.header[:idx:idx], self.header[idx+1:]...)
	for i, row := range self.rows {
		self.rows[i] = append(row[:idx:idx], row[idx+1:]...)
	}
	self.reindex()
	return true
}

func (self *OptionsTable) Cell(row int, col string) string {
	idx, ok := self.indices[col]
	if !ok || row < 0 || row >= len(self.rows) {
		return ""
	}
	return self.rows[row][idx]
}

func (self *OptionsTable) SetCell(row int, col string, value string) {
	idx := self.EnsureColumn(col)
	self.rows[row][idx] = value
}

// Float parses a numeric cell. Missing columns, empty cells and NaN all
// report false.
func (self *OptionsTable) Float(row int, col string) (float64, bool) {
	if !self.HasColumn(col) {
		return 0, false
	}
	return parseNumber(self.Cell(row, col))
}

// SetFloat stores v rounded to places decimals. NaN and infinities are
// written as an empty cell.
func (self *OptionsTable) SetFloat(row int, col string, v float64, places int) {
	self.SetCell(row, col, formatNumber(v, places))
}

func (self *OptionsTable) Clone() *OptionsTable {
	clone := NewOptionsTable(self.header)
	clone.rows = make([][]string, len(self.rows))
	for i, row := range self.rows {
		clone.rows[i] = append([]string{}, row...)
	}
	return clone
}

// Filter returns a copy holding the rows keep accepts, in order.
func (self *OptionsTable) Filter(keep func(row int) bool) *OptionsTable {
	out := NewOptionsTable(self.header)
	for i, row := range self.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string{}, row...))
		}
	}
	return out
}

// SortBy orders rows by the given columns in turn. Cells that parse as
// numbers compare numerically, others as strings; missing cells sort last.
func (self *OptionsTable) SortBy(cols ...string) {
	indices := []int{}
	for _, col := range cols {
		if idx, ok := self.indices[col]; ok {
			indices = append(indices, idx)
		}
	}
	sort.SliceStable(self.rows, func(i, j int) bool {
		for _, idx := range indices {
			if c := compareCells(self.rows[i][idx], self.rows[j][idx]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compareCells(a, b string) int {
	aMissing, bMissing := isMissing(a), isMissing(b)
	switch {
	case aMissing && bMissing:
		return 0
	case aMissing:
		return 1
	case bMissing:
		return -1
	}
	av, aok := parseNumber(a)
	bv, bok := parseNumber(b)
	if aok && bok {
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
