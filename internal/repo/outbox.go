package repo

import (
	"context"
	"fmt"

	"coursebook/internal/model"
)

// FetchUndispatched returns up to limit outbox rows that have not been
// published yet, oldest first.
func (r *repository) FetchUndispatched(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	query := `
		SELECT id, queue_name, body, headers, created_at, dispatched_at
		FROM outbox_messages
		WHERE dispatched_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.OutboxMessage
	for rows.Next() {
		var m model.OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.QueueName, &m.Body, &m.Headers, &m.CreatedAt, &m.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (r *repository) MarkDispatched(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages SET dispatched_at = NOW() WHERE id = $1 AND dispatched_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message dispatched: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("outbox message %d already dispatched", id)
	}
	return nil
}
