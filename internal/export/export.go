// Package export dumps decoded archives to a Parquet file.
//
// One row per decoded sample: entity, data source, consolidation function
// and step identify the series; unknown cells keep value NaN with
// known=false so downstream tools can filter without guessing at
// sentinels. The writer is shared by every conversion worker of a run and
// serializes appends internally; Close finalizes the file footer.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/perfhist/rrdmig/internal/errors"
	"github.com/perfhist/rrdmig/internal/legacy"
)

// Row is one decoded sample in the dump.
type Row struct {
	Entity     string  `parquet:"entity,zstd"`
	DataSource string  `parquet:"data_source,zstd"`
	CF         string  `parquet:"cf,zstd"`
	Step       int64   `parquet:"step"`
	Time       int64   `parquet:"time"`
	Value      float64 `parquet:"value"`
	Known      bool    `parquet:"known"`
}

// Writer appends decoded archives to one Parquet file.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *parquet.GenericWriter[Row]
	rows   int64
	closed bool
}

// NewWriter creates the dump file, truncating any previous dump at the
// same path.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Tagf(errors.ErrWriteFailed, err, "create dump directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Tagf(errors.ErrWriteFailed, err, "create dump %s", path)
	}
	return &Writer{
		path:   path,
		file:   f,
		writer: parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd)),
	}, nil
}

// WriteArchive appends every sample of every ring of one archive. It
// implements the orchestrator's SampleSink hook.
func (w *Writer) WriteArchive(entityID string, a *legacy.Archive) error {
	total := 0
	for i := range a.RRAs {
		total += int(a.RRAs[i].Def.Rows) * len(a.DataSources)
	}

	rows := make([]Row, 0, total)
	for i := range a.RRAs {
		def := a.RRAs[i].Def
		step := def.RowStep(a.Header.Step)
		cf := def.CF.String()
		for ds := range a.DataSources {
			name := a.DataSources[ds].Name
			for _, s := range a.Samples(i, ds) {
				rows = append(rows, Row{
					Entity:     entityID,
					DataSource: name,
					CF:         cf,
					Step:       step,
					Time:       s.Time,
					Value:      s.Value,
					Known:      s.Known(),
				})
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("dump %s already closed: %w", w.path, errors.ErrWriteFailed)
	}
	if _, err := w.writer.Write(rows); err != nil {
		return errors.Tagf(errors.ErrWriteFailed, err, "append to dump %s", w.path)
	}
	w.rows += int64(len(rows))
	return nil
}

// RowCount returns how many sample rows have been appended.
func (w *Writer) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Path returns the dump file path.
func (w *Writer) Path() string {
	return w.path
}

// Close writes the Parquet footer and closes the file. Closing twice is
// harmless.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return errors.Tagf(errors.ErrWriteFailed, err, "finalize dump %s", w.path)
	}
	if err := w.file.Close(); err != nil {
		return errors.Tagf(errors.ErrWriteFailed, err, "close dump %s", w.path)
	}
	return nil
}
