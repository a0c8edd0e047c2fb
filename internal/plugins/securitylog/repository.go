package securitylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SecurityEventRepository defines the data access contract for security events.
type SecurityEventRepository interface {
	// Log inserts a new security event.
	Log(ctx context.Context, event *SecurityEvent) error

	// List returns paginated events, most recent first. An empty eventType
	// returns every type.
	List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error)

	// GetStats returns aggregates over events created at or after since.
	GetStats(ctx context.Context, since time.Time) (*SecurityStats, error)
}

// securityEventRepository implements SecurityEventRepository with MariaDB.
type securityEventRepository struct {
	db *sql.DB
}

// NewSecurityEventRepository creates a new repository backed by the given DB.
func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

// Log inserts a new security event. Details are serialized to JSON.
func (r *securityEventRepository) Log(ctx context.Context, event *SecurityEvent) error {
	query := `INSERT INTO security_events (event_type, user_id, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	var detailsJSON any
	if event.Details != nil {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling security event details: %w", err)
		}
		detailsJSON = string(data)
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Use NULL for an empty user ID (foreign key compatibility).
	var userID any
	if event.UserID != "" {
		userID = event.UserID
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, userID,
		event.IPAddress, event.UserAgent,
		detailsJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// List returns paginated security events with user display names.
func (r *securityEventRepository) List(ctx context.Context, eventType string, limit, offset int) ([]SecurityEvent, int, error) {
	countQuery := `SELECT COUNT(*) FROM security_events`
	countArgs := []any{}
	if eventType != "" {
		countQuery += ` WHERE event_type = ?`
		countArgs = append(countArgs, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	query := `SELECT se.id, se.event_type, COALESCE(se.user_id, ''),
	                 se.ip_address, COALESCE(se.user_agent, ''), se.details, se.created_at,
	                 COALESCE(u.display_name, '') AS user_name
	          FROM security_events se
	          LEFT JOIN users u ON u.id = se.user_id`

	args := []any{}
	if eventType != "" {
		query += ` WHERE se.event_type = ?`
		args = append(args, eventType)
	}

	query += ` ORDER BY se.created_at DESC, se.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var detailsJSON sql.NullString
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.UserID,
			&e.IPAddress, &e.UserAgent, &detailsJSON, &e.CreatedAt,
			&e.UserName,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}

		if detailsJSON.Valid && detailsJSON.String != "" {
			if jsonErr := json.Unmarshal([]byte(detailsJSON.String), &e.Details); jsonErr != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating security events: %w", err)
	}

	return events, total, nil
}

// GetStats returns aggregate security statistics.
func (r *securityEventRepository) GetStats(ctx context.Context, since time.Time) (*SecurityStats, error) {
	stats := &SecurityStats{}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`).Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("counting security events: %w", err)
	}

	counts := []struct {
		eventType string
		dest      *int
	}{
		{EventLoginFailed, &stats.FailedLogins24h},
		{EventLoginSuccess, &stats.SuccessfulLogins24h},
		{EventLoginThrottled, &stats.Throttled24h},
	}
	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM security_events WHERE event_type = ? AND created_at >= ?`,
			c.eventType, since,
		).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("counting %s events: %w", c.eventType, err)
		}
	}

	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT ip_address) FROM security_events WHERE created_at >= ? AND ip_address != ''`,
		since,
	).Scan(&stats.UniqueIPs24h); err != nil {
		return nil, fmt.Errorf("counting unique IPs: %w", err)
	}

	return stats, nil
}
