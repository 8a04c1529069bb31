package evidence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"veracity/internal/evidence"
	"veracity/internal/services"
)

type fakeAdapter struct {
	name    string
	factor  evidence.Factor
	timeout time.Duration
	check   func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error)
}

func (f *fakeAdapter) Name() string            { return f.name }
func (f *fakeAdapter) Factor() evidence.Factor { return f.factor }
func (f *fakeAdapter) Timeout() time.Duration  { return f.timeout }

func (f *fakeAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	return f.check(ctx, req)
}

func TestCollectSettlesEveryAdapter(t *testing.T) {
	adapters := []evidence.Adapter{
		&fakeAdapter{
			name:   "ok",
			factor: evidence.FactorManipulation,
			check: func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
				return &evidence.Evidence{
					Payload:  evidence.ManipulationPayload{Probability: 10, Confidence: 90},
					Provider: "acme",
				}, nil
			},
		},
		&fakeAdapter{
			name:   "failing",
			factor: evidence.FactorIdentity,
			check: func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
				return nil, errors.New("upstream 503")
			},
		},
		&fakeAdapter{
			name:   "panicking",
			factor: evidence.FactorVisual,
			check: func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
				panic("boom")
			},
		},
		&fakeAdapter{
			name:    "slow",
			factor:  evidence.FactorProvenance,
			timeout: 10 * time.Millisecond,
			check: func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	settled := evidence.Collect(context.Background(), adapters, evidence.Request{JobID: 1})
	if len(settled) != len(adapters) {
		t.Fatalf("settled %d of %d adapters", len(settled), len(adapters))
	}

	byName := make(map[string]evidence.Settled, len(settled))
	for _, s := range settled {
		byName[s.Adapter] = s
	}

	ok := byName["ok"]
	if ok.Outcome != evidence.OutcomeSuccess || ok.Provider != "acme" {
		t.Fatalf("ok adapter settled as %+v", ok)
	}

	failing := byName["failing"]
	if failing.Outcome != evidence.OutcomeFailure || failing.Err == nil {
		t.Fatalf("failing adapter settled as %+v", failing)
	}

	panicking := byName["panicking"]
	if panicking.Outcome != evidence.OutcomeFailure {
		t.Fatalf("panicking adapter settled as %+v", panicking)
	}
	if !errors.Is(panicking.Err, services.ErrInvalidEvidence) {
		t.Fatalf("panic error = %v", panicking.Err)
	}

	slow := byName["slow"]
	if slow.Outcome != evidence.OutcomeFailure {
		t.Fatalf("slow adapter settled as %+v", slow)
	}
	if !errors.Is(slow.Err, services.ErrAdapterUnavailable) {
		t.Fatalf("timeout error = %v", slow.Err)
	}
}

func TestRunRejectsNilEvidence(t *testing.T) {
	adapter := &fakeAdapter{
		name:   "empty",
		factor: evidence.FactorProvenance,
		check: func(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
			return nil, nil
		},
	}

	settled := evidence.Run(context.Background(), adapter, evidence.Request{JobID: 1})
	if settled.Outcome != evidence.OutcomeFailure {
		t.Fatalf("nil evidence settled as %+v", settled)
	}
}

func TestNewRecordDowngradesUnmarshalablePayload(t *testing.T) {
	rec := evidence.NewRecord(7, evidence.Settled{
		Adapter: "broken",
		Factor:  evidence.FactorIdentity,
		Outcome: evidence.OutcomeSuccess,
		Payload: make(chan int),
	})
	if rec.Outcome != evidence.OutcomeFailure {
		t.Fatalf("record outcome = %s, want failure", rec.Outcome)
	}
	if rec.Reason == "" {
		t.Fatal("downgraded record should carry a reason")
	}
}

func TestLatestKeepsNewestPerAdapter(t *testing.T) {
	records := []evidence.Record{
		{Adapter: "a", Outcome: evidence.OutcomeFailure},
		{Adapter: "b", Outcome: evidence.OutcomeSuccess},
		{Adapter: "a", Outcome: evidence.OutcomeSuccess},
	}

	latest := evidence.Latest(records)
	if len(latest) != 2 {
		t.Fatalf("latest has %d records, want 2", len(latest))
	}
	if latest[0].Adapter != "a" || latest[0].Outcome != evidence.OutcomeSuccess {
		t.Fatalf("latest[0] = %+v", latest[0])
	}

	rec, found := evidence.ByAdapter(records, "a")
	if !found || rec.Outcome != evidence.OutcomeSuccess {
		t.Fatalf("ByAdapter = %+v found=%v", rec, found)
	}
	if _, found := evidence.ByAdapter(records, "missing"); found {
		t.Fatal("ByAdapter found a record for an unknown adapter")
	}
}
