package optbacktest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// OpStats is what a TableOp reports about one file.
type OpStats struct {
	RowsIn     int
	RowsOut    int
	IvOutcomes map[IvOutcome]int
	Summary    string
}

// TableOp transforms one file. Returning a nil table means the operation only
// inspects the file and nothing is written back.
type TableOp func(file OptionFile, t *OptionsTable) (*OptionsTable, OpStats, error)

type FileResult struct {
	File     OptionFile
	Stats    OpStats
	Duration time.Duration
	Err      error
}

type BatchReport struct {
	Name      string
	Files     int
	Succeeded int
	Failed    int
	RowsIn    int
	RowsOut   int
	Outcomes  map[IvOutcome]int
	Results   []FileResult
}

func (self BatchReport) String() string {
	return fmt.Sprintf("%s: files=%d ok=%d failed=%d rows=%d->%d",
		self.Name, self.Files, self.Succeeded, self.Failed, self.RowsIn,
		self.RowsOut)
}

// Batch applies one TableOp to many files. Rows within a file are processed
// in order by the op; files run concurrently, at most workers at a time.
type Batch struct {
	workers      int
	sink         TableSink
	metrics      *BatchMetrics
	progress     io.Writer
	showProgress bool
}

func NewBatch(cfg *Config, sink TableSink, metrics *BatchMetrics) *Batch {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Batch{
		workers:      workers,
		sink:         sink,
		metrics:      metrics,
		progress:     os.Stderr,
		showProgress: cfg.Progress,
	}
}

// SetProgressWriter redirects the progress bar, mostly for tests.
func (self *Batch) SetProgressWriter(w io.Writer) {
	self.progress = w
}

func (self *Batch) newProgressBar(total int, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(self.progress),
		progressbar.OptionSetDescription(name),
		progressbar.OptionSetVisibility(self.showProgress),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
}

// Run processes files with op. A file that fails to read, transform or write
// is logged and counted, and the batch moves on. Cancelling ctx stops new
// files from starting; Run then returns the partial report and ctx's error.
func (self *Batch) Run(
	ctx context.Context,
	files []OptionFile,
	name string,
	op TableOp) (BatchReport, error) {

	bar := self.newProgressBar(len(files), name)
	results := make([]FileResult, len(files))
	started := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(self.workers)
	for i, file := range files {
		if gctx.Err() != nil {
			break
		}
		i, file := i, file
		started[i] = true
		g.Go(func() error {
			results[i] = self.processFile(file, name, op)
			bar.Add(1)
			return nil
		})
	}
	g.Wait()
	bar.Finish()

	report := BatchReport{
		Name:     name,
		Files:    0,
		Outcomes: make(map[IvOutcome]int),
		Results:  []FileResult{},
	}
	for i, result := range results {
		if !started[i] {
			continue
		}
		report.Files++
		report.Results = append(report.Results, result)
		if result.Err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
		report.RowsIn += result.Stats.RowsIn
		report.RowsOut += result.Stats.RowsOut
		for outcome, n := range result.Stats.IvOutcomes {
			report.Outcomes[outcome] += n
		}
	}
	sort.SliceStable(report.Results, func(i, j int) bool {
		return report.Results[i].File.Path < report.Results[j].File.Path
	})

	if self.metrics != nil {
		self.metrics.ObserveIvOutcomes(report.Outcomes)
		self.metrics.MarkRun(time.Now())
	}
	glog.Info(report)

	if err := ctx.Err(); err != nil {
		glog.Warningf("%s cancelled after %d of %d files.", name, report.Files,
			len(files))
		return report, err
	}
	return report, nil
}

func (self *Batch) processFile(file OptionFile, name string, op TableOp) FileResult {
	start := time.Now()
	result := FileResult{File: file}

	finish := func(err error) FileResult {
		result.Err = err
		result.Duration = time.Since(start)
		status := "ok"
		if err != nil {
			status = "error"
			glog.Errorf("%s failed for %s: %s", name, file, err)
		}
		if self.metrics != nil {
			self.metrics.ObserveFile(name, status, result.Stats.RowsIn,
				result.Duration)
		}
		return result
	}

	table, err := ReadOptionsTableFile(file.Path)
	if err != nil {
		return finish(err)
	}

	out, stats, err := op(file, table)
	if stats.RowsIn == 0 {
		stats.RowsIn = table.Len()
	}
	result.Stats = stats
	if err != nil {
		return finish(err)
	}
	if out == nil {
		return finish(nil)
	}
	if result.Stats.RowsOut == 0 {
		result.Stats.RowsOut = out.Len()
	}

	if err := self.sink.Write(file.Path, out); err != nil {
		return finish(err)
	}
	glog.V(1).Infof("%s %s: %s", name, file, stats.Summary)
	return finish(nil)
}
