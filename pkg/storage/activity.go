package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trackstackhq/trackstack/pkg/audit"
)

// Insert persists an activity record. Implements audit.Store.
func (s *SQLStore) Insert(ctx context.Context, rec *audit.Record) error {
	metadata, err := rec.MetadataJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO activity_records
			(timestamp, action, actor_type, actor_id, ip_address, user_agent, request_id, method, path, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		rec.Timestamp.UTC(),
		string(rec.Action),
		string(rec.ActorType),
		rec.ActorID,
		rec.IPAddress,
		rec.UserAgent,
		rec.RequestID,
		rec.Method,
		rec.Path,
		string(metadata),
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}

// List returns activity records matching the filter, newest first.
func (s *SQLStore) List(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	query := `
		SELECT id, timestamp, action, actor_type, actor_id,
			ip_address, user_agent, request_id, method, path, metadata
		FROM activity_records
		WHERE 1=1
	`
	args := []interface{}{}
	argCount := 1

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(filter.Action))
		argCount++
	}
	if filter.ActorType != "" {
		query += fmt.Sprintf(" AND actor_type = $%d", argCount)
		args = append(args, string(filter.ActorType))
		argCount++
	}
	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, filter.ActorID)
		argCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, filter.Since.UTC())
		argCount++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, filter.Until.UTC())
		argCount++
	}

	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity records: %w", err)
	}
	defer rows.Close()

	records := make([]*audit.Record, 0, limit)
	for rows.Next() {
		var rec audit.Record
		var metadata string
		err := rows.Scan(
			&rec.ID,
			&rec.Timestamp,
			&rec.Action,
			&rec.ActorType,
			&rec.ActorID,
			&rec.IPAddress,
			&rec.UserAgent,
			&rec.RequestID,
			&rec.Method,
			&rec.Path,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
				// Keep the record even if older metadata fails to parse.
				rec.Metadata = map[string]interface{}{"_raw": metadata}
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountSince counts records of a given action newer than since.
func (s *SQLStore) CountSince(ctx context.Context, action audit.Action, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM activity_records WHERE action = $1 AND timestamp >= $2`
	var n int64
	if err := s.db.QueryRowContext(ctx, query, string(action), since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count activity records: %w", err)
	}
	return n, nil
}
