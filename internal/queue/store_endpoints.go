package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Endpoint is one registered webhook destination for an organization.
type Endpoint struct {
	ID        int64
	OrgID     string
	URL       string
	Secret    string
	CreatedAt time.Time
}

// AddEndpoint registers a webhook destination. Re-registering the same URL
// updates the shared secret instead of duplicating the row.
func (s *Store) AddEndpoint(ctx context.Context, orgID, url, secret string) error {
	if orgID == "" || url == "" {
		return fmt.Errorf("add endpoint: org id and url are required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO org_endpoints (org_id, url, secret, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT (org_id, url) DO UPDATE SET secret = excluded.secret`,
		orgID,
		url,
		nullableString(secret),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

// RemoveEndpoint deletes a webhook destination.
func (s *Store) RemoveEndpoint(ctx context.Context, orgID, url string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM org_endpoints WHERE org_id = ? AND url = ?`,
		orgID, url,
	)
	if err != nil {
		return false, fmt.Errorf("remove endpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// EndpointsForOrg lists an organization's registered webhook destinations.
// Zero endpoints is a valid state; the dispatcher treats it as a no-op.
func (s *Store) EndpointsForOrg(ctx context.Context, orgID string) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, org_id, url, secret, created_at FROM org_endpoints WHERE org_id = ? ORDER BY id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []Endpoint
	for rows.Next() {
		var (
			endpoint   Endpoint
			secret     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&endpoint.ID, &endpoint.OrgID, &endpoint.URL, &secret, &createdRaw); err != nil {
			return nil, err
		}
		endpoint.Secret = secret.String
		if t, err := parseTimeString(createdRaw); err == nil {
			endpoint.CreatedAt = t
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, rows.Err()
}
