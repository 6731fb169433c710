package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"netwatch/internal/client"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

type alertRepository struct {
	client *client.PostgresClient
}

func NewAlertRepository(pg *client.PostgresClient, logger *zap.Logger) AlertRepository {
	return &alertRepository{client: pg}
}

func (r *alertRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS alerts (
			id            BIGSERIAL PRIMARY KEY,
			node_id       BIGINT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
			alert_type    TEXT NOT NULL,
			alert_message TEXT NOT NULL,
			severity      TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'active',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := r.client.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure alerts table: %w", err)
	}
	if _, err := r.client.Pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_alerts_node_created ON alerts (node_id, created_at DESC)`); err != nil {
		return fmt.Errorf("failed to ensure alerts index: %w", err)
	}
	return nil
}

func (r *alertRepository) CreateAlert(ctx context.Context, alert *model.Alert) error {
	const query = `
		INSERT INTO alerts (node_id, alert_type, alert_message, severity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.client.Pool.QueryRow(ctx, query,
		alert.NodeID, alert.AlertType, alert.AlertMessage, alert.Severity, alert.Status,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		util.Error("Failed to create alert",
			zap.Int64("node_id", alert.NodeID),
			zap.String("alert_type", alert.AlertType),
			zap.Error(err))
		return fmt.Errorf("failed to create alert: %w", err)
	}

	util.Info("Alert recorded",
		zap.Int64("alert_id", alert.ID),
		zap.Int64("node_id", alert.NodeID),
		zap.String("severity", alert.Severity))
	return nil
}

// ListAlerts returns the newest alerts with node names resolved. A nil nodeIDs
// slice means no scoping; an empty slice matches nothing.
func (r *alertRepository) ListAlerts(ctx context.Context, nodeIDs []int64, limit int) ([]*model.Alert, error) {
	const base = `
		SELECT a.id, a.node_id, n.node_name, a.alert_type, a.alert_message,
		       a.severity, a.status, a.created_at
		FROM alerts a
		JOIN nodes n ON n.id = a.node_id`

	var (
		query string
		args  []interface{}
	)
	if nodeIDs == nil {
		query = base + ` ORDER BY a.created_at DESC LIMIT $1`
		args = []interface{}{limit}
	} else {
		if len(nodeIDs) == 0 {
			return nil, nil
		}
		query = base + ` WHERE a.node_id = ANY($1) ORDER BY a.created_at DESC LIMIT $2`
		args = []interface{}{nodeIDs, limit}
	}

	rows, err := r.client.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		alert := &model.Alert{}
		err := rows.Scan(
			&alert.ID, &alert.NodeID, &alert.NodeName, &alert.AlertType,
			&alert.AlertMessage, &alert.Severity, &alert.Status, &alert.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *alertRepository) CountActiveAlerts(ctx context.Context) (int64, error) {
	var count int64
	err := r.client.Pool.QueryRow(ctx,
		`SELECT count(*) FROM alerts WHERE status = 'active'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}
