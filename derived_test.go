package optbacktest

import "testing"

func TestRecalculateDerived(t *testing.T) {
	input := mustReadTable(t,
		"option_type,strike,underlying_spot,mid_price,low_price,underlying_spot_at_expiry,underlying_close_at_expiry,ITM\n"+
			"C,110,100,2,1.5,112,,\n"+
			"C,110,100,2,1.5,,105,\n"+
			"P,95,100,1,,94,,\n"+
			"C,90,100,12,,,,\n"+
			"C,,100,2,,,,YES\n")

	out, stats := RecalculateDerived(input)
	if stats.Rows != 5 || stats.OtmUpdated != 4 || stats.ItmUpdated != 4 ||
		stats.ItmMissing != 1 || stats.ItmYes != 4 {
		t.Fatalf("stats: %+v", stats)
	}

	expect := []struct {
		otm, itm, premium, yield, low string
	}{
		{"10", "YES", "2", "2", "1.5"},
		{"10", "NO", "2", "2", "1.5"},
		{"-5", "YES", "1", "1", ""},
		{"-10", "YES", "12", "12", ""},
		{"", "YES", "2", "2", ""},
	}
	for row, want := range expect {
		got := []string{
			out.Cell(row, kColOtmPct),
			out.Cell(row, kColItm),
			out.Cell(row, kColPremium),
			out.Cell(row, kColPremiumYieldPct),
			out.Cell(row, kColPremiumYieldLow),
		}
		wants := []string{want.otm, want.itm, want.premium, want.yield, want.low}
		for i := range got {
			if got[i] != wants[i] {
				t.Errorf("row %d column %d: got=%q want=%q", row, i, got[i],
					wants[i])
			}
		}
	}

	// Row 3 is 10 in the money and paid 12.
	if out.Cell(3, kColIntrinsicValue) != "10" ||
		out.Cell(3, kColTimeValue) != "2" ||
		out.Cell(3, kColExtrinsicValue) != "2" {
		t.Errorf("row 3 value split: %s %s %s", out.Cell(3, kColIntrinsicValue),
			out.Cell(3, kColTimeValue), out.Cell(3, kColExtrinsicValue))
	}
	if out.Cell(0, kColIntrinsicValue) != "0" || out.Cell(0, kColTimeValue) != "2" {
		t.Errorf("row 0 value split: %s %s", out.Cell(0, kColIntrinsicValue),
			out.Cell(0, kColTimeValue))
	}
	if input.HasColumn(kColOtmPct) {
		t.Errorf("input modified")
	}
}

func TestRecalculateDerived_KeepsExistingPremium(t *testing.T) {
	input := mustReadTable(t, "strike,underlying_spot,premium,mid_price\n105,200,3,9\n")
	out, _ := RecalculateDerived(input)
	if out.Cell(0, kColPremium) != "3" || out.Cell(0, kColPremiumYieldPct) != "1.5" {
		t.Fatalf("premium=%s yield=%s", out.Cell(0, kColPremium),
			out.Cell(0, kColPremiumYieldPct))
	}
}

func TestRecalculateDerived_PutIntrinsic(t *testing.T) {
	input := mustReadTable(t, "option_type,strike,underlying_spot,mid_price\n"+
		"P,105,100,6\n"+
		"P,95,100,1\n"+
		"C,105,100,6\n")
	out, _ := RecalculateDerived(input)

	expect := []struct{ intrinsic, time, extrinsic string }{
		{"5", "1", "1"},
		{"0", "1", "1"},
		{"0", "6", "6"},
	}
	for row, want := range expect {
		if out.Cell(row, kColIntrinsicValue) != want.intrinsic ||
			out.Cell(row, kColTimeValue) != want.time ||
			out.Cell(row, kColExtrinsicValue) != want.extrinsic {
			t.Errorf("row %d value split: got=%s %s %s want=%s %s %s", row,
				out.Cell(row, kColIntrinsicValue), out.Cell(row, kColTimeValue),
				out.Cell(row, kColExtrinsicValue), want.intrinsic, want.time,
				want.extrinsic)
		}
	}
}
