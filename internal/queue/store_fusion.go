package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"veracity/internal/fusion"
	"veracity/internal/services"
)

// CreateFusionResult persists the engine output for a job. The job_id
// uniqueness constraint enforces exactly one result per job.
func (s *Store) CreateFusionResult(ctx context.Context, res *fusion.Result) error {
	if res.ID == "" {
		return errors.New("fusion result id is required")
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}

	weightsJSON, err := json.Marshal(res.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	risksJSON, err := json.Marshal(res.RiskFactors)
	if err != nil {
		return fmt.Errorf("marshal risk factors: %w", err)
	}
	positivesJSON, err := json.Marshal(res.PositiveIndicators)
	if err != nil {
		return fmt.Errorf("marshal positive indicators: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO fusion_results (
            id, job_id, provenance_score, visual_score, manipulation_score, identity_score,
            weights_json, score, verdict, confidence, risk_factors_json, positive_indicators_json,
            analysis_partial, partial_reason, report_locator, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.JobID,
		res.Scores.Provenance,
		res.Scores.Visual,
		res.Scores.Manipulation,
		res.Scores.Identity,
		string(weightsJSON),
		res.Score,
		res.Verdict,
		res.Confidence,
		string(risksJSON),
		string(positivesJSON),
		boolToInt(res.Partial),
		nullableString(res.PartialReason),
		nullableString(res.ReportLocator),
		formatTime(res.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return services.Wrap(services.ErrInvalidEvidence, "queue", "create_fusion_result",
				fmt.Sprintf("job %d already has a fusion result", res.JobID), err)
		}
		return fmt.Errorf("insert fusion result: %w", err)
	}
	return nil
}

// GetFusionResult fetches the result for a job, or nil when the job has
// not completed fusion.
func (s *Store) GetFusionResult(ctx context.Context, jobID int64) (*fusion.Result, error) {
	return s.fusionResult(ctx, `job_id = ?`, jobID)
}

// GetFusionResultByID fetches a result by its identifier.
func (s *Store) GetFusionResultByID(ctx context.Context, id string) (*fusion.Result, error) {
	return s.fusionResult(ctx, `id = ?`, id)
}

func (s *Store) fusionResult(ctx context.Context, where string, arg any) (*fusion.Result, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, job_id, provenance_score, visual_score, manipulation_score, identity_score,
            weights_json, score, verdict, confidence, risk_factors_json, positive_indicators_json,
            analysis_partial, partial_reason, report_locator, created_at,
            override_verdict, override_prior_verdict, override_reason, override_actor, override_at
         FROM fusion_results WHERE `+where,
		arg,
	)

	var (
		res           fusion.Result
		weightsJSON   string
		risksJSON     sql.NullString
		positivesJSON sql.NullString
		partial       int
		partialReason sql.NullString
		reportLocator sql.NullString
		createdRaw    string
		ovVerdict     sql.NullString
		ovPrior       sql.NullString
		ovReason      sql.NullString
		ovActor       sql.NullString
		ovAtRaw       sql.NullString
	)
	err := row.Scan(
		&res.ID,
		&res.JobID,
		&res.Scores.Provenance,
		&res.Scores.Visual,
		&res.Scores.Manipulation,
		&res.Scores.Identity,
		&weightsJSON,
		&res.Score,
		&res.Verdict,
		&res.Confidence,
		&risksJSON,
		&positivesJSON,
		&partial,
		&partialReason,
		&reportLocator,
		&createdRaw,
		&ovVerdict,
		&ovPrior,
		&ovReason,
		&ovActor,
		&ovAtRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fusion result: %w", err)
	}

	if err := json.Unmarshal([]byte(weightsJSON), &res.Weights); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	if risksJSON.Valid {
		_ = json.Unmarshal([]byte(risksJSON.String), &res.RiskFactors)
	}
	if positivesJSON.Valid {
		_ = json.Unmarshal([]byte(positivesJSON.String), &res.PositiveIndicators)
	}
	res.Partial = partial != 0
	res.PartialReason = partialReason.String
	res.ReportLocator = reportLocator.String
	if t, err := parseTimeString(createdRaw); err == nil {
		res.CreatedAt = t
	}

	if ovVerdict.Valid {
		override := &fusion.Override{
			Verdict:      fusion.Verdict(ovVerdict.String),
			PriorVerdict: fusion.Verdict(ovPrior.String),
			Reason:       ovReason.String,
			Actor:        ovActor.String,
		}
		if ovAtRaw.Valid {
			if t, err := parseTimeString(ovAtRaw.String); err == nil {
				override.At = t
			}
		}
		res.Override = override
	}
	return &res, nil
}

// RecordOverride appends the single admin override allowed per fusion
// result. The conditional update keeps the first override authoritative: a
// second attempt affects zero rows and reports a conflict.
func (s *Store) RecordOverride(ctx context.Context, resultID string, override fusion.Override) error {
	if override.At.IsZero() {
		override.At = time.Now().UTC()
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE fusion_results
         SET override_verdict = ?, override_prior_verdict = ?, override_reason = ?,
             override_actor = ?, override_at = ?
         WHERE id = ? AND override_verdict IS NULL`,
		override.Verdict,
		override.PriorVerdict,
		override.Reason,
		override.Actor,
		formatTime(override.At),
		resultID,
	)
	if err != nil {
		return fmt.Errorf("record override: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("override rows affected: %w", err)
	}
	if affected == 0 {
		existing, lookupErr := s.GetFusionResultByID(ctx, resultID)
		if lookupErr != nil {
			return lookupErr
		}
		if existing == nil {
			return services.Wrap(services.ErrNotFound, "queue", "record_override",
				fmt.Sprintf("fusion result %s not found", resultID), nil)
		}
		return services.Wrap(services.ErrOverrideConflict, "queue", "record_override",
			fmt.Sprintf("fusion result %s already overridden", resultID), nil)
	}
	return nil
}
