package queue

import (
	"context"
	"database/sql"
	"fmt"
	"math/bits"
	"strconv"
	"time"
)

// CatalogEntry is one known perceptual hash in the local duplicate catalog.
type CatalogEntry struct {
	ID        int64
	PHash     string
	Label     string
	Flagged   bool
	CreatedAt time.Time
}

// CatalogMatch pairs a catalog entry with its Hamming distance from a
// probe hash.
type CatalogMatch struct {
	Entry    CatalogEntry
	Distance int
}

// AddCatalogHash registers a perceptual hash in the duplicate catalog.
// Hashes are hex-encoded 64-bit values.
func (s *Store) AddCatalogHash(ctx context.Context, phash, label string, flagged bool) error {
	if _, err := parseHash(phash); err != nil {
		return fmt.Errorf("add catalog hash: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO hash_catalog (phash, label, flagged, created_at) VALUES (?, ?, ?, ?)`,
		phash,
		nullableString(label),
		boolToInt(flagged),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert catalog hash: %w", err)
	}
	return nil
}

// NearestHashes returns catalog entries within maxDistance Hamming bits of
// the probe hash, nearest first. SQLite cannot compute bit distance, so the
// scan happens in process; the catalog stays small enough for that.
func (s *Store) NearestHashes(ctx context.Context, phash string, maxDistance int) ([]CatalogMatch, error) {
	probe, err := parseHash(phash)
	if err != nil {
		return nil, fmt.Errorf("nearest hashes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, phash, label, flagged, created_at FROM hash_catalog`)
	if err != nil {
		return nil, fmt.Errorf("query hash catalog: %w", err)
	}
	defer rows.Close()

	var matches []CatalogMatch
	for rows.Next() {
		var (
			entry      CatalogEntry
			label      sql.NullString
			flagged    int
			createdRaw string
		)
		if err := rows.Scan(&entry.ID, &entry.PHash, &label, &flagged, &createdRaw); err != nil {
			return nil, err
		}
		entry.Label = label.String
		entry.Flagged = flagged != 0
		if t, err := parseTimeString(createdRaw); err == nil {
			entry.CreatedAt = t
		}

		candidate, err := parseHash(entry.PHash)
		if err != nil {
			continue // tolerate bad rows rather than failing the lookup
		}
		distance := bits.OnesCount64(probe ^ candidate)
		if distance <= maxDistance {
			matches = append(matches, CatalogMatch{Entry: entry, Distance: distance})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Distance < matches[j-1].Distance; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
	return matches, nil
}

func parseHash(value string) (uint64, error) {
	parsed, err := strconv.ParseUint(value, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("perceptual hash %q is not a hex-encoded 64-bit value", value)
	}
	return parsed, nil
}
