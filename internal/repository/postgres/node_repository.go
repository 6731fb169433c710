package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"netwatch/internal/client"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

type nodeRepository struct {
	client *client.PostgresClient
}

func NewNodeRepository(pg *client.PostgresClient, logger *zap.Logger) NodeRepository {
	return &nodeRepository{client: pg}
}

func (r *nodeRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS nodes (
			id            BIGSERIAL PRIMARY KEY,
			node_name     TEXT NOT NULL,
			node_ip       TEXT NOT NULL,
			node_location TEXT NOT NULL DEFAULT '',
			node_status   TEXT NOT NULL DEFAULT 'active',
			api_key_hash  TEXT NOT NULL UNIQUE,
			created_by    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := r.client.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure nodes table: %w", err)
	}
	if _, err := r.client.Pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_nodes_created_by ON nodes (created_by)`); err != nil {
		return fmt.Errorf("failed to ensure nodes index: %w", err)
	}
	return nil
}

func (r *nodeRepository) CreateNode(ctx context.Context, node *model.Node) error {
	const query = `
		INSERT INTO nodes (node_name, node_ip, node_location, node_status, api_key_hash, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.client.Pool.QueryRow(ctx, query,
		node.NodeName, node.NodeIP, node.NodeLocation, node.NodeStatus,
		node.APIKeyHash, node.CreatedBy,
	).Scan(&node.ID, &node.CreatedAt)
	if err != nil {
		util.Error("Failed to create node",
			zap.String("node_name", node.NodeName),
			zap.Int64("created_by", node.CreatedBy),
			zap.Error(err))
		return fmt.Errorf("failed to create node: %w", err)
	}

	util.Info("Node created",
		zap.Int64("node_id", node.ID),
		zap.String("node_name", node.NodeName),
		zap.Int64("created_by", node.CreatedBy))
	return nil
}

const nodeColumns = `id, node_name, node_ip, node_location, node_status, api_key_hash, created_by, created_at`

func (r *nodeRepository) scanNode(row pgx.Row) (*model.Node, error) {
	node := &model.Node{}
	err := row.Scan(
		&node.ID, &node.NodeName, &node.NodeIP, &node.NodeLocation,
		&node.NodeStatus, &node.APIKeyHash, &node.CreatedBy, &node.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}
	return node, nil
}

func (r *nodeRepository) GetNodeByID(ctx context.Context, id int64) (*model.Node, error) {
	query := fmt.Sprintf(`SELECT %s FROM nodes WHERE id = $1`, nodeColumns)
	return r.scanNode(r.client.Pool.QueryRow(ctx, query, id))
}

func (r *nodeRepository) GetNodeByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.Node, error) {
	query := fmt.Sprintf(`SELECT %s FROM nodes WHERE api_key_hash = $1`, nodeColumns)
	return r.scanNode(r.client.Pool.QueryRow(ctx, query, apiKeyHash))
}

func (r *nodeRepository) ListNodesByOwner(ctx context.Context, ownerID int64) ([]*model.Node, error) {
	query := fmt.Sprintf(`SELECT %s FROM nodes WHERE created_by = $1 ORDER BY created_at DESC`, nodeColumns)
	rows, err := r.client.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		node, err := r.scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// ListAllNodes returns every node with its owner's username resolved.
func (r *nodeRepository) ListAllNodes(ctx context.Context) ([]*model.Node, error) {
	const query = `
		SELECT n.id, n.node_name, n.node_ip, n.node_location, n.node_status,
		       n.api_key_hash, n.created_by, n.created_at, COALESCE(u.username, '')
		FROM nodes n
		LEFT JOIN users u ON u.id = n.created_by
		ORDER BY n.created_at DESC`
	rows, err := r.client.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list all nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		node := &model.Node{}
		err := rows.Scan(
			&node.ID, &node.NodeName, &node.NodeIP, &node.NodeLocation,
			&node.NodeStatus, &node.APIKeyHash, &node.CreatedBy, &node.CreatedAt,
			&node.CreatedByName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (r *nodeRepository) ListNodeIDsByOwner(ctx context.Context, ownerID int64) ([]int64, error) {
	rows, err := r.client.Pool.Query(ctx, `SELECT id FROM nodes WHERE created_by = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node IDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *nodeRepository) CountNodesByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.client.Pool.QueryRow(ctx,
		`SELECT count(*) FROM nodes WHERE created_by = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

func (r *nodeRepository) UpdateNodeStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.client.Pool.Exec(ctx,
		`UPDATE nodes SET node_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		util.Error("Failed to update node status",
			zap.Int64("node_id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update node status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *nodeRepository) DeleteNode(ctx context.Context, id int64) error {
	// Alerts cascade through their foreign key.
	tag, err := r.client.Pool.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, id)
	if err != nil {
		util.Error("Failed to delete node", zap.Int64("node_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete node: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}

	util.Info("Node deleted", zap.Int64("node_id", id))
	return nil
}

func (r *nodeRepository) CountNodes(ctx context.Context) (int64, int64, error) {
	var total, active int64
	err := r.client.Pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE node_status = 'active') FROM nodes`,
	).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return total, active, nil
}
