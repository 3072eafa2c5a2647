package optbacktest

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustReadTable(t *testing.T, text string) *OptionsTable {
	t.Helper()
	table, err := ReadOptionsTable(strings.NewReader(text))
	if err != nil {
		t.Fatalf("ReadOptionsTable failed: %v", err)
	}
	return table
}

func renderTable(t *testing.T, table *OptionsTable) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := table.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	return buf.String()
}

func TestOptionsTable_RoundTripKeepsUnknownColumns(t *testing.T) {
	text := "date_only,strike,vendor_note\n2023-01-03,100,\"a, b\"\n2023-01-04,105,x\n"
	table := mustReadTable(t, text)
	if table.Len() != 2 {
		t.Fatalf("Len: got=%d want=2", table.Len())
	}
	if got := renderTable(t, table); got != text {
		t.Fatalf("round trip mismatch:\n%s\nwant:\n%s", got, text)
	}
}

func TestOptionsTable_BomAndShortRows(t *testing.T) {
	table := mustReadTable(t, "\ufeffdate_only, strike,premium\n2023-01-03,100\n")
	if !table.HasColumn(kColDateOnly) || !table.HasColumn(kColStrike) {
		t.Fatalf("header not cleaned: %v", table.Header())
	}
	if got := table.Cell(0, kColPremium); got != "" {
		t.Fatalf("padded cell: got=%q", got)
	}
	if got := table.Cell(5, kColStrike); got != "" {
		t.Fatalf("out of range row: got=%q", got)
	}
}

func TestOptionsTable_Empty(t *testing.T) {
	table := mustReadTable(t, "")
	if table.Len() != 0 || len(table.Header()) != 0 {
		t.Fatalf("expected empty table, got %v rows=%d", table.Header(), table.Len())
	}
	if got := renderTable(t, table); got != "" {
		t.Fatalf("empty table rendered %q", got)
	}
}

func TestOptionsTable_Columns(t *testing.T) {
	table := mustReadTable(t, "a,b\n1,2\n3,4\n")
	idx := table.EnsureColumn("c")
	if idx != 2 || table.Cell(1, "c") != "" {
		t.Fatalf("EnsureColumn: idx=%d", idx)
	}
	if table.EnsureColumn("a") != 0 {
		t.Fatalf("EnsureColumn moved an existing column")
	}
	table.SetCell(0, "d", "x")
	if table.Cell(0, "d") != "x" || table.Cell(1, "d") != "" {
		t.Fatalf("SetCell on a new column failed")
	}
	if !table.DropColumn("b") || table.HasColumn("b") {
		t.Fatalf("DropColumn failed: %v", table.Header())
	}
	if table.DropColumn("missing") {
		t.Fatalf("DropColumn reported a missing column")
	}
	if got := renderTable(t, table); got != "a,c,d\n1,,x\n3,,\n" {
		t.Fatalf("after drop: %q", got)
	}
}

func TestOptionsTable_Floats(t *testing.T) {
	table := mustReadTable(t, "price,note\n\"$1,234.50\",x\nNaN,y\n,z\n")
	if v, ok := table.Float(0, "price"); !ok || v != 1234.5 {
		t.Fatalf("Float: got=%v ok=%v", v, ok)
	}
	for row := 1; row < 3; row++ {
		if _, ok := table.Float(row, "price"); ok {
			t.Fatalf("row %d should be missing", row)
		}
	}
	if _, ok := table.Float(0, "absent"); ok {
		t.Fatalf("absent column parsed")
	}
	table.SetFloat(0, "price", 1.23456, 2)
	if got := table.Cell(0, "price"); got != "1.23" {
		t.Fatalf("SetFloat: got=%q", got)
	}
}

func TestOptionsTable_CloneAndFilter(t *testing.T) {
	table := mustReadTable(t, "option_type,strike\nC,100\nP,100\nC,110\n")
	clone := table.Clone()
	clone.SetCell(0, kColStrike, "999")
	if table.Cell(0, kColStrike) != "100" {
		t.Fatalf("Clone shares rows with the source")
	}

	calls := table.Filter(func(row int) bool {
		return table.Cell(row, kColOptionType) == "C"
	})
	if calls.Len() != 2 || calls.Cell(1, kColStrike) != "110" {
		t.Fatalf("Filter: %q", renderTable(t, calls))
	}
}

func TestOptionsTable_SortBy(t *testing.T) {
	table := mustReadTable(t,
		"date_only,strike\n2023-01-04,95\n2023-01-03,110\n2023-01-03,\n2023-01-03,95\n")
	table.SortBy(kColDateOnly, kColStrike, "not_a_column")
	want := "date_only,strike\n2023-01-03,95\n2023-01-03,110\n2023-01-03,\n2023-01-04,95\n"
	if got := renderTable(t, table); got != want {
		t.Fatalf("SortBy:\n%s\nwant:\n%s", got, want)
	}
}

func TestReadOptionsTableFile_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AAPL_options.csv.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("strike\n100\n"))
	gz.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := ReadOptionsTableFile(path)
	if err != nil {
		t.Fatalf("ReadOptionsTableFile: %v", err)
	}
	if table.Cell(0, kColStrike) != "100" {
		t.Fatalf("gzip content not read")
	}

	if _, err := ReadOptionsTableFile(filepath.Join(dir, "missing.csv")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestWriteTableFile_GzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TSLA_options.csv.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("strike,close_price\n100,2.5\n"))
	gz.Close()
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	table, err := ReadOptionsTableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	table.SetCell(0, kColStrike, "20")
	if err := WriteTableFile(path, table); err != nil {
		t.Fatalf("WriteTableFile: %v", err)
	}

	reread, err := ReadOptionsTableFile(path)
	if err != nil {
		t.Fatalf("rewritten gzip file unreadable: %v", err)
	}
	if reread.Cell(0, kColStrike) != "20" || reread.Cell(0, kColClosePrice) != "2.5" {
		t.Fatalf("round trip: %q", renderTable(t, reread))
	}
}
