// Package pipeline drives one analysis job from claimed to completed: the
// cheap evidence stage, the escalation decision, the concurrent expensive
// stage, fusion, review routing, and the follow-on webhook and billing
// jobs.
//
// The coordinator degrades instead of aborting: a failed adapter becomes a
// failure record and fusion runs on whatever evidence exists. The only
// outcomes without a fusion result are cancellation and a crash before the
// fusing phase.
package pipeline
