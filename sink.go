package optbacktest

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// TableSink receives the transformed table of one file.
type TableSink interface {
	Write(path string, t *OptionsTable) error
}

// FileSink writes tables back to disk through a temporary file and a rename,
// so a crash never leaves a half written CSV. With an OutputDir the tree
// below BaseDir is mirrored there instead of overwriting the input.
type FileSink struct {
	BaseDir   string
	OutputDir string
}

func NewFileSink(baseDir, outputDir string) *FileSink {
	return &FileSink{
		BaseDir:   baseDir,
		OutputDir: outputDir,
	}
}

func (self *FileSink) Target(path string) (string, error) {
	if self.OutputDir == "" {
		return path, nil
	}
	rel, err := filepath.Rel(self.BaseDir, path)
	if err != nil {
		return "", fmt.Errorf("locating %s under %s: %w", path, self.BaseDir, err)
	}
	return filepath.Join(self.OutputDir, rel), nil
}

func (self *FileSink) Write(path string, t *OptionsTable) error {
	target, err := self.Target(path)
	if err != nil {
		return err
	}
	return WriteTableFile(target, t)
}

// WriteTableFile atomically replaces path with t. A *.gz path is written
// gzip compressed, matching ReadOptionsTableFile. An existing file keeps its
// permissions; new files get 0644.
func WriteTableFile(path string, t *OptionsTable) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeTableTo(tmp, path, t); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode of %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	glog.V(1).Infof("Wrote %d rows to %s.", t.Len(), path)
	return nil
}

func writeTableTo(w io.Writer, path string, t *OptionsTable) error {
	if !strings.HasSuffix(path, ".gz") {
		_, err := t.WriteTo(w)
		return err
	}
	gz := gzip.NewWriter(w)
	if _, err := t.WriteTo(gz); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

// DiscardSink renders tables without storing them, for dry runs.
type DiscardSink struct{}

func (DiscardSink) Write(path string, t *OptionsTable) error {
	if _, err := t.WriteTo(io.Discard); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	glog.V(1).Infof("Dry run, %d rows for %s discarded.", t.Len(), path)
	return nil
}
