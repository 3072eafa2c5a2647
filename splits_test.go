package optbacktest

import (
	"testing"
	"time"
)

func mustSplit(t *testing.T, date string, ratio float64) SplitEvent {
	t.Helper()
	event, err := NewSplitEvent(date, ratio)
	if err != nil {
		t.Fatalf("NewSplitEvent(%s, %v): %v", date, ratio, err)
	}
	return event
}

func TestNewSplitEvent_Rejects(t *testing.T) {
	if _, err := NewSplitEvent("not a date", 2); err == nil {
		t.Errorf("bad date accepted")
	}
	for _, ratio := range []float64{0, -2} {
		if _, err := NewSplitEvent("2022-08-25", ratio); err == nil {
			t.Errorf("ratio %v accepted", ratio)
		}
	}
}

func TestSplitSchedule_Divisor(t *testing.T) {
	schedule := NewSplitSchedule(
		mustSplit(t, "2022-08-25", 3),
		mustSplit(t, "2020-08-31", 5),
	)
	events := schedule.Events()
	if len(events) != 2 || events[0].Ratio != 5 {
		t.Fatalf("events not sorted: %+v", events)
	}

	cases := []struct {
		date string
		want float64
	}{
		{"2019-12-31", 15},
		{"2020-08-30", 15},
		{"2020-08-31", 3},
		{"2021-06-01", 3},
		{"2022-08-25", 1},
		{"2024-01-02", 1},
	}
	for _, c := range cases {
		date, _ := time.Parse(kDateLayout, c.date)
		if got := schedule.Divisor(date); got != c.want {
			t.Errorf("%s: got=%v want=%v", c.date, got, c.want)
		}
	}
}

func TestApplySplits(t *testing.T) {
	input := mustReadTable(t, "date_only,strike,close_price\n"+
		"2020-08-28,1500,10\n"+
		"2021-03-01,700,5\n"+
		"2023-01-03,180,2\n"+
		"garbage,100,1\n"+
		"2021-03-01,,1\n")
	schedule := NewSplitSchedule(
		mustSplit(t, "2020-08-31", 5),
		mustSplit(t, "2022-08-25", 3),
	)

	out, stats := ApplySplits(input, schedule, nil)
	if stats.Rows != 5 || stats.Adjusted != 2 || stats.Unparseable != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	wants := []string{"100", "233.33", "180", "100", ""}
	for row, want := range wants {
		if got := out.Cell(row, kColStrike); got != want {
			t.Errorf("row %d strike: got=%q want=%q", row, got, want)
		}
	}
	if out.Cell(0, kColClosePrice) != "10" {
		t.Errorf("close_price changed without being requested")
	}
	if input.Cell(0, kColStrike) != "1500" {
		t.Errorf("input modified")
	}

	out, _ = ApplySplits(input, schedule, []string{kColStrike, kColClosePrice})
	if got := out.Cell(0, kColClosePrice); got != "0.67" {
		t.Errorf("close_price: got=%q", got)
	}
}

func TestApplySplits_EmptySchedule(t *testing.T) {
	input := mustReadTable(t, "date_only,strike\n2020-01-02,100\n")
	out, stats := ApplySplits(input, NewSplitSchedule(), nil)
	if stats.Adjusted != 0 || out.Cell(0, kColStrike) != "100" {
		t.Fatalf("empty schedule changed rows")
	}
}
