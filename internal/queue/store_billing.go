package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BillingEvent is one usage charge recorded against an organization.
type BillingEvent struct {
	ID          int64
	OrgID       string
	JobID       int64
	AmountCents int
	Description string
	CreatedAt   time.Time
}

// AddBillingEvent records a usage charge for a completed analysis.
func (s *Store) AddBillingEvent(ctx context.Context, orgID string, jobID int64, amountCents int, description string) error {
	if orgID == "" {
		return fmt.Errorf("add billing event: org id is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO billing_events (org_id, job_id, amount_cents, description, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		orgID,
		jobID,
		amountCents,
		nullableString(description),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert billing event: %w", err)
	}
	return nil
}

// BillingTotal sums an organization's charges since the given time.
func (s *Store) BillingTotal(ctx context.Context, orgID string, since time.Time) (int64, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM billing_events WHERE org_id = ? AND created_at >= ?`,
		orgID,
		formatTime(since),
	)
	var total sql.NullInt64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("billing total: %w", err)
	}
	return total.Int64, nil
}
