package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mandalnilabja/maptoken/internal/storage/models"
)

// LogIssuance stores an issuance log entry
func (s *Storage) LogIssuance(entry *models.Issuance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	if entry.Source == "" {
		return ErrInvalidInput
	}

	if entry.ID == "" {
		entry.ID = generateID("iss")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var expiresAt any
	if entry.ExpiresAt != nil {
		expiresAt = entry.ExpiresAt.UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO issuances (id, request_id, source, success, expires_at, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, nullString(entry.RequestID), entry.Source, boolToInt(entry.Success), expiresAt,
		nullString(entry.ErrorMessage), entry.DurationMs, entry.CreatedAt.UTC())

	return err
}

// GetIssuances retrieves issuance log entries, newest first.
func (s *Storage) GetIssuances(filter models.IssuanceFilter) ([]*models.Issuance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	query := `SELECT id, COALESCE(request_id, ''), source, success, expires_at,
		COALESCE(error_message, ''), duration_ms, created_at
		FROM issuances WHERE 1=1`

	var args []any

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, boolToInt(*filter.Success))
	}
	if filter.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += " AND created_at < ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.Issuance
	for rows.Next() {
		var entry models.Issuance
		var success int
		var expiresAt sql.NullTime

		err := rows.Scan(&entry.ID, &entry.RequestID, &entry.Source, &success, &expiresAt,
			&entry.ErrorMessage, &entry.DurationMs, &entry.CreatedAt)
		if err != nil {
			return nil, err
		}

		entry.Success = success == 1
		if expiresAt.Valid {
			t := expiresAt.Time
			entry.ExpiresAt = &t
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// DeleteIssuances removes entries created before the given time.
func (s *Storage) DeleteIssuances(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStorageClosed
	}

	result, err := s.db.Exec("DELETE FROM issuances WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// IssuanceStats summarizes the issuance log.
func (s *Storage) IssuanceStats() (*models.IssuanceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	stats := &models.IssuanceStats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(duration_ms), 0)
		FROM issuances
	`).Scan(&stats.Total, &stats.Failures, &stats.AvgLatencyMs)
	if err != nil {
		return nil, err
	}

	var last time.Time
	err = s.db.QueryRow(
		"SELECT created_at FROM issuances WHERE success = 1 ORDER BY created_at DESC LIMIT 1",
	).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		stats.LastSuccess = &last
	}

	return stats, nil
}
