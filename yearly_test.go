package optbacktest

import (
	"math"
	"testing"
)

const testYearlyHeader = "date_only,expiration_date,probability_itm,premium_yield_pct,implied_volatility,ITM\n"

func TestYearlySummary(t *testing.T) {
	a := mustReadTable(t, testYearlyHeader+
		"2021-01-04,2021-01-15,0.11,1.0,0.40,NO\n"+
		"2021-01-04,2021-01-15,0.12,2.0,0.50,YES\n"+
		"2021-02-01,2021-02-19,0.10,4.0,0.30,NO\n"+
		"2021-02-01,2021-02-19,0.30,9.0,0.90,YES\n")
	b := mustReadTable(t, testYearlyHeader+
		"2022-03-01,2022-03-18,0.14,3.0,0.60,NO\n"+
		"2022-03-01,2022-03-18,0.09,1.0,0.20,YES\n"+
		"2023-05-01,2023-05-19,0.50,5.0,0.70,YES\n"+
		"bad,2023-05-19,0.11,5.0,0.70,YES\n")

	summaries := YearlySummary([]*OptionsTable{a, b}, MonthlyBand())
	if len(summaries) != 3 {
		t.Fatalf("years: got=%d want=3 %+v", len(summaries), summaries)
	}

	y2021 := summaries[0]
	if y2021.Year != 2021 || y2021.Options != 3 || y2021.Expirations != 2 ||
		y2021.ItmExpirations != 1 || y2021.Fallback {
		t.Fatalf("2021: %+v", y2021)
	}
	if !almostEqual(y2021.MeanYield, 7.0/3, 1e-12) || y2021.MedianYield != 2 ||
		!almostEqual(y2021.AnnualYield, 28, 1e-9) ||
		!almostEqual(y2021.MeanIv, 0.4, 1e-12) || y2021.ItmRate() != 0.5 {
		t.Fatalf("2021 stats: %+v", y2021)
	}

	// Nothing in 10-13%, the fallback 8-13% picks the 0.09 row only.
	y2022 := summaries[1]
	if y2022.Year != 2022 || !y2022.Fallback || y2022.Options != 1 ||
		y2022.ItmExpirations != 1 || y2022.MeanYield != 1 {
		t.Fatalf("2022: %+v", y2022)
	}

	y2023 := summaries[2]
	if y2023.Options != 0 || y2023.Fallback || !math.IsNaN(y2023.MeanYield) ||
		y2023.ItmRate() != 0 {
		t.Fatalf("2023: %+v", y2023)
	}
}

func TestYearlySummary_WeeklyBand(t *testing.T) {
	band := WeeklyBand()
	if band.PeriodsPerYear != 52 || band.Min != 0.04 || band.Max != 0.07 {
		t.Fatalf("weekly band: %+v", band)
	}
	table := mustReadTable(t, testYearlyHeader+
		"2024-01-02,2024-01-05,0.05,0.5,0.8,NO\n")
	summaries := YearlySummary([]*OptionsTable{table}, band)
	if len(summaries) != 1 || !almostEqual(summaries[0].AnnualYield, 26, 1e-9) {
		t.Fatalf("weekly: %+v", summaries)
	}
}

func TestYearlySummary_Empty(t *testing.T) {
	if got := YearlySummary(nil, MonthlyBand()); len(got) != 0 {
		t.Fatalf("expected no years, got %+v", got)
	}
}

func ivTables(t *testing.T, ivs ...string) []*OptionsTable {
	content := "implied_volatility\n"
	for _, iv := range ivs {
		content += iv + "\n"
	}
	return []*OptionsTable{mustReadTable(t, content)}
}

func TestMedian(t *testing.T) {
	if !math.IsNaN(median(nil)) {
		t.Errorf("median of nothing should be NaN")
	}
	if got := median([]float64{0.8, 0.2, 0.4}); got != 0.4 {
		t.Errorf("odd: got=%v want=0.4", got)
	}
	if got := median([]float64{0.6, 0.2, 0.4, 0.3}); !almostEqual(got, 0.35, 1e-12) {
		t.Errorf("even: got=%v want=0.35", got)
	}
}

func TestYearlyPlan_IvThreshold(t *testing.T) {
	plan := NewYearlyPlan()
	tables := map[string]map[string][]*OptionsTable{
		"TSLA": {"monthly": ivTables(t, "0.6", ""), "holidays": ivTables(t, "0.05")},
		"AAPL": {"monthly": ivTables(t, "0.2", "0.3")},
	}
	// 0.2 0.3 0.6: weekly IVs and blanks do not count.
	if got := plan.IvThreshold(tables); got != 0.3 {
		t.Errorf("threshold: got=%v want=0.3", got)
	}

	tables["MSFT"] = map[string][]*OptionsTable{"monthly": ivTables(t, "0.4")}
	if got := plan.IvThreshold(tables); !almostEqual(got, 0.35, 1e-12) {
		t.Errorf("even count threshold: got=%v want=0.35", got)
	}

	weeklyOnly := map[string]map[string][]*OptionsTable{
		"NVDA": {"holidays": ivTables(t, "0.9")},
	}
	if got := plan.IvThreshold(weeklyOnly); got != kDefaultIvThreshold {
		t.Errorf("no monthly IV: got=%v want=%v", got, kDefaultIvThreshold)
	}
}

func TestYearlyPlan_Choose(t *testing.T) {
	plan := NewYearlyPlan()
	plan.Bands["AAPL"] = ProbabilityBand{Min: 0.07, Max: 0.11, FallbackMin: 0.04,
		FallbackMax: 0.11, PeriodsPerYear: kMonthsPerYear}
	tables := map[string]map[string][]*OptionsTable{
		"TSLA": {"monthly": ivTables(t, "0.6", "0.8")},
		"AAPL": {"monthly": ivTables(t, "0.2", "0.3")},
		"MSFT": {"monthly": ivTables(t, "0.4")},
		"NVDA": {"holidays": ivTables(t, "0.9")},
	}

	// Threshold is the median of 0.2 0.3 0.4 0.6 0.8.
	choices := plan.Choose(tables)
	if len(choices) != 4 {
		t.Fatalf("choices: %+v", choices)
	}
	byTicker := map[string]PeriodChoice{}
	for _, choice := range choices {
		byTicker[choice.Ticker] = choice
	}
	if choices[0].Ticker != "AAPL" || choices[3].Ticker != "TSLA" {
		t.Errorf("not sorted by ticker: %+v", choices)
	}

	tsla := byTicker["TSLA"]
	if !tsla.Weekly || tsla.Period != "holidays" || tsla.Band != WeeklyBand() ||
		!almostEqual(tsla.MeanIv, 0.7, 1e-12) {
		t.Errorf("TSLA: %+v", tsla)
	}
	if msft := byTicker["MSFT"]; !msft.Weekly {
		t.Errorf("mean equal to the threshold should go weekly: %+v", msft)
	}
	aapl := byTicker["AAPL"]
	if aapl.Weekly || aapl.Period != "monthly" || aapl.Band.Min != 0.07 ||
		aapl.Band.FallbackMin != 0.04 {
		t.Errorf("AAPL: %+v", aapl)
	}
	nvda := byTicker["NVDA"]
	if nvda.Weekly || nvda.Period != "monthly" || nvda.Band != MonthlyBand() ||
		!math.IsNaN(nvda.MeanIv) {
		t.Errorf("ticker without monthly IV should stay monthly: %+v", nvda)
	}
}
