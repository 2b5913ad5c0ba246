package store

import (
	"context"
	"encoding/json"

	"github.com/agent-support/projectheritag/internal/domain"
)

// ListAdminLogs returns the latest admin audit rows, newest first.
func (r *PostgresRepository) ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, admin_id, action_type, target_user_id, details::text, created_at
		FROM admin_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AdminLog
	for rows.Next() {
		var entry domain.AdminLog
		var details string
		if err := rows.Scan(&entry.ID, &entry.AdminID, &entry.ActionType, &entry.TargetUserID, &details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Details = json.RawMessage(details)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
