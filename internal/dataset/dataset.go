// Package dataset renders run results as tabular CSV and hands them to a blob store.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
	"github.com/JakeFAU/delta-harvester/internal/hash/sha256"
)

// Header is the column order of every dataset file.
var Header = []string{"source", "url", "title", "content"}

const (
	contentType         = "text/csv; charset=utf-8"
	checksumContentType = "text/plain; charset=utf-8"
)

// Encode writes one row per document, preceded by Header.
func Encode(w io.Writer, docs []harvest.Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range docs {
		if err := cw.Write([]string{d.Source, d.URL, d.Title, d.Body}); err != nil {
			return fmt.Errorf("write row %s: %w", d.URL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ObjectPath returns <prefix>/<YYYY-MM-DD>/<runID>.csv using the UTC day of startedAt.
func ObjectPath(prefix string, startedAt time.Time, runID string) string {
	return path.Join(prefix, startedAt.UTC().Format(time.DateOnly), runID+".csv")
}

// Writer persists datasets for finished runs.
type Writer struct {
	store  harvest.BlobStore
	prefix string
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewWriter builds a Writer. prefix may be empty.
func NewWriter(store harvest.BlobStore, prefix string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: store, prefix: prefix, hasher: sha256.New(), logger: logger}
}

// Write stores report's documents and returns the object URI. A
// "<object>.sha256" sidecar follows the dataset. Runs without documents are
// not written and return an empty URI.
func (w *Writer) Write(ctx context.Context, report harvest.RunReport) (string, error) {
	if len(report.Result.Documents) == 0 {
		w.logger.Debug("no documents, dataset not written", zap.String("run_id", report.RunID))
		return "", nil
	}
	var buf bytes.Buffer
	if err := Encode(&buf, report.Result.Documents); err != nil {
		return "", err
	}
	data := buf.Bytes()
	objectPath := ObjectPath(w.prefix, report.StartedAt, report.RunID)
	uri, err := w.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("put dataset %s: %w", objectPath, err)
	}
	sidecar := w.hasher.Sidecar(objectPath, data)
	if _, err := w.store.PutObject(ctx, objectPath+".sha256", checksumContentType, bytes.NewReader(sidecar)); err != nil {
		// The dataset itself is in place.
		w.logger.Warn("dataset checksum not written", zap.String("path", objectPath), zap.Error(err))
	}
	w.logger.Info("dataset written",
		zap.String("run_id", report.RunID),
		zap.String("uri", uri),
		zap.String("sha256", w.hasher.Hash(data)),
		zap.Int("rows", len(report.Result.Documents)),
	)
	return uri, nil
}
