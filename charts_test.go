package optbacktest

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testSummaries() []YearSummary {
	return []YearSummary{
		{Year: 2021, Expirations: 12, ItmExpirations: 2, AnnualYield: 14.2,
			MedianYield: 1.1},
		{Year: 2022, Expirations: 12, ItmExpirations: 1, AnnualYield: math.NaN(),
			MedianYield: math.NaN()},
		{Year: 2023, Expirations: 12, ItmExpirations: 3, AnnualYield: 16.8,
			MedianYield: 1.3},
	}
}

func TestPlotYearly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yearly.png")
	if err := PlotYearly(path, "TSLA", testSummaries()); err != nil {
		t.Fatalf("PlotYearly: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
	if err := PlotYearly(path, "TSLA", nil); err == nil {
		t.Errorf("empty summaries accepted")
	}
}

func TestPlotIvSmile(t *testing.T) {
	table := mustReadTable(t, "otm_pct,implied_volatility\n-5,0.45\n0,0.4\n5,0.38\n10,\n")
	path := filepath.Join(t.TempDir(), "smile.png")
	if err := PlotIvSmile(path, "AAPL", table); err != nil {
		t.Fatalf("PlotIvSmile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("png not written: %v", err)
	}

	empty := mustReadTable(t, "otm_pct\n5\n")
	if err := PlotIvSmile(path, "AAPL", empty); err == nil {
		t.Errorf("table without IV accepted")
	}
}

func TestRenderYearlyHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderYearlyHTML(&buf, "TSLA covered calls", testSummaries()); err != nil {
		t.Fatalf("RenderYearlyHTML: %v", err)
	}
	html := buf.String()
	for _, want := range []string{"TSLA covered calls", "Annual yield", "2022"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestYearTicks(t *testing.T) {
	ticks := yearTicks{}.Ticks(2020.5, 2023.2)
	if len(ticks) != 3 || ticks[0].Label != "2021" || ticks[2].Label != "2023" {
		t.Fatalf("ticks: %+v", ticks)
	}
}
