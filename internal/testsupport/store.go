package testsupport

import (
	"context"
	"testing"

	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAnalysisJob enqueues an analysis job for tests using the provided
// store.
func NewAnalysisJob(t testing.TB, store *queue.Store, orgID, artifactRef string, attrs evidence.ArtifactAttrs) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queue.NewJob{
		Class:       queue.ClassAnalysis,
		OrgID:       orgID,
		ArtifactRef: artifactRef,
		Attrs:       attrs,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
