package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"veracity/internal/fusion"
)

// ReportWriter renders fusion results to durable JSON reports. The locator
// it returns is what the notification payload references.
type ReportWriter struct {
	store Store
}

// NewReportWriter builds a report writer over the given store.
func NewReportWriter(store Store) *ReportWriter {
	return &ReportWriter{store: store}
}

// Write persists the full fusion result as a report and returns its
// locator.
func (w *ReportWriter) Write(ctx context.Context, res *fusion.Result) (string, error) {
	encoded, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	locator := path.Join("reports", res.ID+".json")
	return w.store.Store(ctx, locator, bytes.NewReader(encoded))
}

// Read loads a previously written report.
func (w *ReportWriter) Read(ctx context.Context, locator string) (*fusion.Result, error) {
	r, err := w.store.Fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var res fusion.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", locator, err)
	}
	return &res, nil
}
