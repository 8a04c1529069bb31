package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"veracity/internal/services"
)

// Adapter wraps one external detection/verification provider behind a
// uniform contract: evidence, failure, or timeout within a declared
// deadline. Adapters are side-effect free from the coordinator's
// perspective and safe to retry.
type Adapter interface {
	Name() string
	Factor() Factor
	Timeout() time.Duration
	Check(ctx context.Context, req Request) (*Evidence, error)
}

// Settled is one adapter invocation after it has settled: success with a
// payload, or failure with a reason. Skips never pass through Collect.
type Settled struct {
	Adapter  string
	Factor   Factor
	Outcome  Outcome
	Payload  any
	Provider string
	Reason   string
	Err      error
	Latency  time.Duration
}

// Collect fans the request out to every adapter concurrently, each under
// its own timeout, and waits for all branches to settle. A failing or slow
// adapter never voids the others' evidence: errors, timeouts, and panics
// are converted to failure outcomes, never propagated.
func Collect(ctx context.Context, adapters []Adapter, req Request) []Settled {
	results := make([]Settled, len(adapters))

	var group errgroup.Group
	for i, adapter := range adapters {
		i, adapter := i, adapter
		group.Go(func() error {
			results[i] = settle(ctx, adapter, req)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// Run invokes a single adapter under its timeout and settles the result.
// The cheap stage uses it directly; the expensive stage goes through
// Collect.
func Run(ctx context.Context, adapter Adapter, req Request) Settled {
	return settle(ctx, adapter, req)
}

func settle(ctx context.Context, adapter Adapter, req Request) (settled Settled) {
	start := time.Now()
	settled = Settled{Adapter: adapter.Name(), Factor: adapter.Factor()}

	defer func() {
		settled.Latency = time.Since(start)
		if r := recover(); r != nil {
			settled.Outcome = OutcomeFailure
			settled.Err = services.Wrap(services.ErrInvalidEvidence, adapter.Name(), "check", fmt.Sprintf("adapter panic: %v", r), nil)
			settled.Reason = settled.Err.Error()
			settled.Payload = nil
		}
	}()

	checkCtx := ctx
	if timeout := adapter.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ev, err := adapter.Check(checkCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrAdapterUnavailable, adapter.Name(), "check", "deadline exceeded", err)
		}
		settled.Outcome = OutcomeFailure
		settled.Err = err
		settled.Reason = err.Error()
		return settled
	}
	if ev == nil {
		settled.Outcome = OutcomeFailure
		settled.Err = services.Wrap(services.ErrInvalidEvidence, adapter.Name(), "check", "nil evidence", nil)
		settled.Reason = settled.Err.Error()
		return settled
	}

	settled.Outcome = OutcomeSuccess
	settled.Payload = ev.Payload
	settled.Provider = ev.Provider
	return settled
}

// NewRecord converts a settled invocation into a persistable record. A
// payload that cannot be marshalled downgrades the record to a failure
// rather than aborting the job.
func NewRecord(jobID int64, settled Settled) Record {
	rec := Record{
		JobID:    jobID,
		Adapter:  settled.Adapter,
		Factor:   settled.Factor,
		Outcome:  settled.Outcome,
		Reason:   settled.Reason,
		Provider: settled.Provider,
		Latency:  settled.Latency,
	}
	if settled.Outcome == OutcomeSuccess && settled.Payload != nil {
		raw, err := json.Marshal(settled.Payload)
		if err != nil {
			rec.Outcome = OutcomeFailure
			rec.Reason = fmt.Sprintf("encode payload: %v", err)
			return rec
		}
		rec.Payload = raw
	}
	return rec
}

// SkippedRecord builds the record written for an adapter that was not
// invoked at all.
func SkippedRecord(jobID int64, adapter string, factor Factor, reason string) Record {
	return Record{
		JobID:   jobID,
		Adapter: adapter,
		Factor:  factor,
		Outcome: OutcomeSkipped,
		Reason:  reason,
	}
}
