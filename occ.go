package optbacktest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

const kOccStrikeScale = 1000.0

// O:<root><YYMMDD><C|P><strike * 1000, 8 digits>
var occSymbolRe = regexp.MustCompile(`^(?:O:)?([A-Z0-9.]{1,6})(\d{6})([CP])(\d{8})$`)

type OccSymbol struct {
	Underlying string
	Expiration time.Time
	OptionType string
	Strike     float64
}

func ParseOccSymbol(symbol string) (OccSymbol, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), " ", ""))
	match := occSymbolRe.FindStringSubmatch(s)
	if match == nil {
		msg := fmt.Sprintf("Symbol %q is not an OCC option symbol.", symbol)
		glog.V(2).Info(msg)
		return OccSymbol{}, errors.New(msg)
	}
	expiration, err := time.Parse("060102", match[2])
	if err != nil {
		msg := fmt.Sprintf("Symbol %q has invalid expiration %s.", symbol,
			match[2])
		glog.V(2).Info(msg)
		return OccSymbol{}, errors.New(msg)
	}
	strike, _ := strconv.ParseInt(match[4], 10, 64)
	return OccSymbol{
		Underlying: match[1],
		Expiration: expiration,
		OptionType: match[3],
		Strike:     float64(strike) / kOccStrikeScale,
	}, nil
}

func (self OccSymbol) String() string {
	return fmt.Sprintf("O:%s%s%s%08d", self.Underlying,
		self.Expiration.Format("060102"), self.OptionType,
		int64(self.Strike*kOccStrikeScale+0.5))
}

type OccStats struct {
	Rows    int
	Parsed  int
	Invalid int
}

// StrikesFromSymbols rebuilds strike, option_type and expiration_date from the
// ticker column. Rows whose ticker does not parse are left as they are.
func StrikesFromSymbols(t *OptionsTable) (*OptionsTable, OccStats) {
	out := t.Clone()
	stats := OccStats{Rows: out.Len(), Parsed: 0, Invalid: 0}
	if !out.HasColumn(kColTicker) {
		glog.Warning("No ticker column, strikes left unchanged.")
		return out, stats
	}

	for row := 0; row < out.Len(); row++ {
		symbol, err := ParseOccSymbol(out.Cell(row, kColTicker))
		if err != nil {
			stats.Invalid++
			continue
		}
		out.SetFloat(row, kColStrike, symbol.Strike, -1)
		out.SetCell(row, kColOptionType, symbol.OptionType)
		out.SetCell(row, kColExpirationDate, symbol.Expiration.Format(kDateLayout))
		stats.Parsed++
	}
	return out, stats
}
