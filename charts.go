package optbacktest

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/golang/glog"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	kChartWidth  = 10 * vg.Inch
	kChartHeight = 6 * vg.Inch
)

func yearlyPoints(summaries []YearSummary, value func(YearSummary) float64) plotter.XYs {
	pts := plotter.XYs{}
	for _, s := range summaries {
		v := value(s)
		if !isFinite(v) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(s.Year), Y: v})
	}
	return pts
}

// PlotYearly saves a PNG with the annualised premium yield and the ITM
// expiration rate per year, both in percent.
func PlotYearly(path string, title string, summaries []YearSummary) error {
	if len(summaries) == 0 {
		msg := fmt.Sprintf("No yearly data to plot for %s.", title)
		glog.Error(msg)
		return errors.New(msg)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Year"
	p.Y.Label.Text = "%"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	yield := yearlyPoints(summaries, func(s YearSummary) float64 {
		return s.AnnualYield
	})
	itm := yearlyPoints(summaries, func(s YearSummary) float64 {
		return s.ItmRate() * 100
	})
	if err := plotutil.AddLinePoints(p,
		"Annual yield", yield,
		"ITM expirations", itm); err != nil {

		msg := fmt.Sprintf("Building yearly plot failed with error=%s", err)
		glog.Error(msg)
		return errors.New(msg)
	}
	p.X.Tick.Marker = yearTicks{}

	if err := p.Save(kChartWidth, kChartHeight, path); err != nil {
		msg := fmt.Sprintf("Saving %s failed with error=%s", path, err)
		glog.Error(msg)
		return errors.New(msg)
	}
	glog.Info("Saved yearly chart ", path)
	return nil
}

// yearTicks puts one integer label on every year.
type yearTicks struct{}

func (yearTicks) Ticks(min, max float64) []plot.Tick {
	ticks := []plot.Tick{}
	for year := int(min); year <= int(max); year++ {
		if float64(year) < min {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: float64(year),
			Label: strconv.Itoa(year)})
	}
	return ticks
}

// PlotIvSmile scatters implied volatility against otm_pct for every row that
// has both.
func PlotIvSmile(path string, title string, t *OptionsTable) error {
	pts := plotter.XYs{}
	for row := 0; row < t.Len(); row++ {
		otm, ok := t.Float(row, kColOtmPct)
		if !ok {
			continue
		}
		iv, ok := t.Float(row, kColImpliedVolatility)
		if !ok {
			continue
		}
		pts = append(pts, plotter.XY{X: otm, Y: iv})
	}
	if len(pts) == 0 {
		msg := fmt.Sprintf("No rows with %s and %s to plot.", kColOtmPct,
			kColImpliedVolatility)
		glog.Error(msg)
		return errors.New(msg)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "OTM %"
	p.Y.Label.Text = "Implied volatility"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		msg := fmt.Sprintf("Building IV scatter failed with error=%s", err)
		glog.Error(msg)
		return errors.New(msg)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(scatter)

	if err := p.Save(kChartWidth, kChartHeight, path); err != nil {
		msg := fmt.Sprintf("Saving %s failed with error=%s", path, err)
		glog.Error(msg)
		return errors.New(msg)
	}
	glog.Info("Saved IV smile chart ", path)
	return nil
}

func lineData(summaries []YearSummary, value func(YearSummary) float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(summaries))
	for _, s := range summaries {
		v := value(s)
		if !isFinite(v) {
			// NaN does not survive JSON; null leaves a gap.
			items = append(items, opts.LineData{Value: nil})
			continue
		}
		items = append(items, opts.LineData{Value: roundTo(v, 2)})
	}
	return items
}

// RenderYearlyHTML writes a self contained interactive page with the same
// series as PlotYearly plus the median yield.
func RenderYearlyHTML(w io.Writer, title string, summaries []YearSummary) error {
	years := make([]string, len(summaries))
	for i, s := range summaries {
		years[i] = strconv.Itoa(s.Year)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "Premium yield and ITM expirations per year",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: true, Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%"}),
	)
	line.SetXAxis(years).
		AddSeries("Annual yield", lineData(summaries, func(s YearSummary) float64 {
			return s.AnnualYield
		})).
		AddSeries("Median yield", lineData(summaries, func(s YearSummary) float64 {
			return s.MedianYield
		})).
		AddSeries("ITM expirations", lineData(summaries, func(s YearSummary) float64 {
			return s.ItmRate() * 100
		}))

	if err := line.Render(w); err != nil {
		msg := fmt.Sprintf("Rendering yearly chart failed with error=%s", err)
		glog.Error(msg)
		return errors.New(msg)
	}
	return nil
}
