package optbacktest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang/glog"
)

const kHistoricalPrefix = "HistoricalData"

// OptionFile is one options CSV of the data tree
// <base>/<Ticker>/<Period>/<name>.
type OptionFile struct {
	Ticker string
	Period string
	Path   string
}

func (self OptionFile) Name() string {
	return filepath.Base(self.Path)
}

func (self OptionFile) String() string {
	return fmt.Sprintf("%s/%s/%s", self.Ticker, self.Period, self.Name())
}

// HistoricalPath is where the underlying's daily prices for this file live.
func (self OptionFile) HistoricalPath(baseDir string) string {
	return HistoricalPricesPath(baseDir, self.Ticker)
}

func HistoricalPricesPath(baseDir, ticker string) string {
	return filepath.Join(baseDir, ticker,
		fmt.Sprintf("%s_%s.csv", kHistoricalPrefix, ticker))
}

// FindOptionFiles lists every file matching pattern under the given period
// subdirectories of each ticker directory, sorted by path. Hidden ticker
// directories and historical price downloads are skipped. An empty tickers
// list selects every ticker.
func FindOptionFiles(
	baseDir string,
	subdirs []string,
	pattern string,
	tickers []string) ([]OptionFile, error) {

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		msg := fmt.Sprintf("Listing %s failed with error=%s", baseDir, err)
		glog.Error(msg)
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	wanted := make(map[string]bool, len(tickers))
	for _, ticker := range tickers {
		wanted[strings.ToUpper(ticker)] = true
	}

	files := []OptionFile{}
	for _, entry := range entries {
		ticker := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(ticker, ".") {
			continue
		}
		if len(wanted) > 0 && !wanted[strings.ToUpper(ticker)] {
			continue
		}
		for _, subdir := range subdirs {
			matches, err := filepath.Glob(filepath.Join(baseDir, ticker, subdir,
				pattern))
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			for _, path := range matches {
				if strings.HasPrefix(filepath.Base(path), kHistoricalPrefix) {
					continue
				}
				files = append(files, OptionFile{
					Ticker: ticker,
					Period: subdir,
					Path:   path,
				})
			}
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	glog.V(1).Infof("Found %d option files under %s.", len(files), baseDir)
	return files, nil
}
