package artifacts_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"veracity/internal/artifacts"
	"veracity/internal/fusion"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := artifacts.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	locator, err := store.Store(ctx, "uploads/org-1/image.jpg", strings.NewReader("jpeg bytes"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if locator != "uploads/org-1/image.jpg" {
		t.Fatalf("locator = %q", locator)
	}

	r, err := store.Fetch(ctx, locator)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Fatalf("fetched %q", data)
	}
}

func TestFSStoreRejectsEscapingLocators(t *testing.T) {
	store, err := artifacts.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	for _, locator := range []string{"../outside", "/etc/passwd", "a/../../b", "."} {
		if _, err := store.Store(ctx, locator, strings.NewReader("x")); err == nil {
			t.Fatalf("locator %q accepted", locator)
		}
		if _, err := store.Fetch(ctx, locator); err == nil {
			t.Fatalf("fetch of locator %q accepted", locator)
		}
	}
}

func TestFSStoreFetchMissingBlob(t *testing.T) {
	store, err := artifacts.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Fetch(context.Background(), "uploads/missing.jpg"); err == nil {
		t.Fatal("fetch of missing blob succeeded")
	}
}

func TestReportWriterRoundTrip(t *testing.T) {
	store, err := artifacts.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	writer := artifacts.NewReportWriter(store)
	ctx := context.Background()

	res := &fusion.Result{
		ID:          "res-report",
		JobID:       9,
		Score:       42,
		Verdict:     fusion.VerdictSuspicious,
		Confidence:  66,
		RiskFactors: []string{"possible manipulation"},
	}

	locator, err := writer.Write(ctx, res)
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	if locator != "reports/res-report.json" {
		t.Fatalf("locator = %q", locator)
	}

	loaded, err := writer.Read(ctx, locator)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if loaded.ID != res.ID || loaded.Score != res.Score || loaded.Verdict != res.Verdict {
		t.Fatalf("loaded report = %+v", loaded)
	}
	if len(loaded.RiskFactors) != 1 || loaded.RiskFactors[0] != "possible manipulation" {
		t.Fatalf("risk factors = %v", loaded.RiskFactors)
	}
}
