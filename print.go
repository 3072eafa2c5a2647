package optbacktest

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var kDefaultViewColumns = []string{
	kColDateOnly,
	kColExpirationDate,
	kColStrike,
	kColUnderlyingSpot,
	kColClosePrice,
	kColImpliedVolatility,
	kColProbabilityItm,
	kColOtmPct,
	kColPremiumYieldPct,
	kColItm,
}

// PrintTable writes up to limit rows of cols as an aligned table. In the money
// rows are yellow, the rest blue, and the strike column is highlighted. A
// non-positive limit prints every row; nil cols selects the default view.
func PrintTable(w io.Writer, t *OptionsTable, cols []string, limit int) {
	if len(cols) == 0 {
		cols = []string{}
		for _, col := range kDefaultViewColumns {
			if t.HasColumn(col) {
				cols = append(cols, col)
			}
		}
	}

	widths := make([]int, len(cols))
	rows := t.Len()
	if limit > 0 && limit < rows {
		rows = limit
	}
	for i, col := range cols {
		widths[i] = len(col)
		for row := 0; row < rows; row++ {
			if n := len(t.Cell(row, col)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	// Set color for ITM data
	yellowColor := color.New(color.FgYellow).SprintFunc()
	defaultColor := color.New(color.FgBlue).SprintFunc()
	strikeColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	headerColor := color.New(color.Bold).SprintFunc()

	header := make([]string, len(cols))
	for i, col := range cols {
		header[i] = fmt.Sprintf("%-*s", widths[i], col)
	}
	fmt.Fprintln(w, headerColor(strings.Join(header, " | ")))

	for row := 0; row < rows; row++ {
		rowColor := defaultColor
		if itm, ok := parseBoolCell(t.Cell(row, kColItm)); ok && itm {
			rowColor = yellowColor
		}
		cells := make([]string, len(cols))
		for i, col := range cols {
			cell := fmt.Sprintf("%-*s", widths[i], t.Cell(row, col))
			if col == kColStrike {
				cells[i] = strikeColor(cell)
			} else {
				cells[i] = rowColor(cell)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, " | "))
	}

	if rows < t.Len() {
		fmt.Fprintf(w, "... %d more rows\n", t.Len()-rows)
	}
	fmt.Fprintf(w, "\nTotal rows: %d\n", t.Len())
}

func PrintYearly(w io.Writer, summaries []YearSummary) {
	greenColor := color.New(color.FgGreen).SprintFunc()
	redColor := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(w, "%-6s %-8s %-6s %-6s %-8s %-10s %-10s %-10s %-8s\n",
		"Year", "Options", "Exp", "ItmExp", "ItmRate", "MeanYield",
		"MedYield", "AnnYield", "MeanIV")
	for _, s := range summaries {
		rateColor := greenColor
		if s.ItmRate() > 0.2 {
			rateColor = redColor
		}
		marker := ' '
		if s.Fallback {
			marker = '*'
		}
		fmt.Fprintf(w, "%-6d%c%-8d %-6d %-6d %s %-10.2f %-10.2f %-10.2f %-8.4f\n",
			s.Year, marker, s.Options, s.Expirations, s.ItmExpirations,
			rateColor(fmt.Sprintf("%-8.2f", s.ItmRate()*100)),
			s.MeanYield, s.MedianYield, s.AnnualYield, s.MeanIv)
	}
}
