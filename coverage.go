package optbacktest

import "fmt"

// CoverageReport counts how many rows of one or more files carry the
// computed columns.
type CoverageReport struct {
	Files      int
	Rows       int
	IvValid    int
	ProbValid  int
	Computable int
	// Missing are rows with a usable quote but no implied volatility.
	Missing int
}

func (self CoverageReport) IvPct() float64 {
	if self.Rows == 0 {
		return 0
	}
	return float64(self.IvValid) / float64(self.Rows) * 100
}

func (self CoverageReport) ProbPct() float64 {
	if self.Rows == 0 {
		return 0
	}
	return float64(self.ProbValid) / float64(self.Rows) * 100
}

func (self CoverageReport) Add(other CoverageReport) CoverageReport {
	return CoverageReport{
		Files:      self.Files + other.Files,
		Rows:       self.Rows + other.Rows,
		IvValid:    self.IvValid + other.IvValid,
		ProbValid:  self.ProbValid + other.ProbValid,
		Computable: self.Computable + other.Computable,
		Missing:    self.Missing + other.Missing,
	}
}

func (self CoverageReport) String() string {
	return fmt.Sprintf("files=%d rows=%d iv=%d (%.1f%%) prob=%d (%.1f%%) "+
		"computable=%d missing=%d",
		self.Files, self.Rows, self.IvValid, self.IvPct(), self.ProbValid,
		self.ProbPct(), self.Computable, self.Missing)
}

func Coverage(t *OptionsTable, opts IvProbOptions) CoverageReport {
	report := CoverageReport{Files: 1, Rows: t.Len()}
	for row := 0; row < t.Len(); row++ {
		_, hasIv := t.Float(row, kColImpliedVolatility)
		if hasIv {
			report.IvValid++
		}
		if _, ok := t.Float(row, kColProbabilityItm); ok {
			report.ProbValid++
		}
		if _, ok := QuoteForRow(t, row, opts); ok {
			report.Computable++
			if !hasIv {
				report.Missing++
			}
		}
	}
	return report
}
