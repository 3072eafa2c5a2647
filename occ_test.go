package optbacktest

import "testing"

func TestParseOccSymbol(t *testing.T) {
	symbol, err := ParseOccSymbol("O:TSLA230317C00200000")
	if err != nil {
		t.Fatalf("ParseOccSymbol: %v", err)
	}
	if symbol.Underlying != "TSLA" || symbol.OptionType != "C" ||
		symbol.Strike != 200 ||
		symbol.Expiration.Format(kDateLayout) != "2023-03-17" {
		t.Fatalf("parsed: %+v", symbol)
	}
	if got := symbol.String(); got != "O:TSLA230317C00200000" {
		t.Errorf("String: got=%s", got)
	}

	symbol, err = ParseOccSymbol("aapl 240119p00187500")
	if err != nil {
		t.Fatalf("lower case with space: %v", err)
	}
	if symbol.Strike != 187.5 || symbol.OptionType != "P" {
		t.Errorf("parsed: %+v", symbol)
	}

	for _, bad := range []string{"", "TSLA", "O:TSLA231317C00200000",
		"O:TSLA230317X00200000", "O:TOOLONGX230317C00200000"} {
		if _, err := ParseOccSymbol(bad); err == nil {
			t.Errorf("%q accepted", bad)
		}
	}
}

func TestStrikesFromSymbols(t *testing.T) {
	input := mustReadTable(t, "ticker,strike,option_type\n"+
		"O:NVDA240621C00130500,1305,\n"+
		"weird,42,C\n")

	out, stats := StrikesFromSymbols(input)
	if stats.Parsed != 1 || stats.Invalid != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if out.Cell(0, kColStrike) != "130.5" || out.Cell(0, kColOptionType) != "C" ||
		out.Cell(0, kColExpirationDate) != "2024-06-21" {
		t.Errorf("row 0: strike=%s type=%s exp=%s", out.Cell(0, kColStrike),
			out.Cell(0, kColOptionType), out.Cell(0, kColExpirationDate))
	}
	if out.Cell(1, kColStrike) != "42" {
		t.Errorf("invalid symbol row changed")
	}
}
