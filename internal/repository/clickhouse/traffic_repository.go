package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"netwatch/internal/client"
	"netwatch/internal/model"
	"netwatch/internal/util"
)

// TrafficRepository defines operations over the append-only traffic store.
type TrafficRepository interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, record *model.TrafficRecord) error
	WindowUsage(ctx context.Context, nodeID int64, window time.Duration) (*model.WindowUsage, error)
	Summary(ctx context.Context, nodeIDs []int64, hours int) ([]*model.SummaryBucket, error)
	Bandwidth(ctx context.Context, nodeIDs []int64, hours int) ([]*model.BandwidthPoint, error)
	Recent(ctx context.Context, nodeIDs []int64, limit int) ([]*model.TrafficRecord, error)
	GlobalStats(ctx context.Context) (*model.TrafficTotal, error)
}

type trafficRepository struct {
	client *client.ClickHouseClient
}

func NewTrafficRepository(ch *client.ClickHouseClient, logger *zap.Logger) TrafficRepository {
	return &trafficRepository{client: ch}
}

func (r *trafficRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS traffic_data (
			id              UUID,
			node_id         Int64,
			timestamp       DateTime64(3, 'UTC'),
			source_ip       String,
			destination_ip  String,
			protocol        LowCardinality(String),
			port            UInt32,
			packet_size     UInt64,
			traffic_type    LowCardinality(String),
			bandwidth_usage Float64,
			created_at      DateTime64(3, 'UTC') DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (node_id, timestamp)`
	if err := r.client.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure traffic_data table: %w", err)
	}
	return nil
}

func (r *trafficRepository) Insert(ctx context.Context, record *model.TrafficRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO traffic_data
			(id, node_id, timestamp, source_ip, destination_ip, protocol, port, packet_size, traffic_type, bandwidth_usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.client.Exec(ctx, query,
		record.ID, record.NodeID, record.Timestamp, record.SourceIP,
		record.DestinationIP, record.Protocol, record.Port, record.PacketSize,
		record.TrafficType, record.BandwidthUsage, record.CreatedAt)
	if err != nil {
		util.Error("Failed to insert traffic record",
			zap.Int64("node_id", record.NodeID),
			zap.Error(err))
		return fmt.Errorf("failed to insert traffic record: %w", err)
	}
	return nil
}

// WindowUsage totals packets and bytes reported by a node over the trailing
// window, evaluated against the record timestamps.
func (r *trafficRepository) WindowUsage(ctx context.Context, nodeID int64, window time.Duration) (*model.WindowUsage, error) {
	const query = `
		SELECT count(), sum(packet_size)
		FROM traffic_data
		WHERE node_id = ? AND timestamp >= now64(3) - toIntervalSecond(?)`

	usage := &model.WindowUsage{}
	row := r.client.QueryRow(ctx, query, nodeID, int64(window.Seconds()))
	if err := row.Scan(&usage.PacketCount, &usage.TotalSize); err != nil {
		return nil, fmt.Errorf("failed to query window usage: %w", err)
	}
	return usage, nil
}

// nodeFilter renders an optional node_id condition. A nil slice means no
// scoping.
func nodeFilter(nodeIDs []int64) (string, []interface{}) {
	if nodeIDs == nil {
		return "", nil
	}
	placeholders := make([]string, len(nodeIDs))
	args := make([]interface{}, len(nodeIDs))
	for i, id := range nodeIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf("node_id IN (%s)", strings.Join(placeholders, ", ")), args
}

// whereClause joins non-empty conditions into a WHERE clause.
func whereClause(conds ...string) string {
	var kept []string
	for _, c := range conds {
		if c != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(kept, " AND ")
}

func (r *trafficRepository) Summary(ctx context.Context, nodeIDs []int64, hours int) ([]*model.SummaryBucket, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	scope, args := nodeFilter(nodeIDs)
	where := whereClause(scope, "timestamp >= now64(3) - toIntervalHour(?)")
	args = append(args, hours)

	query := fmt.Sprintf(`
		SELECT toStartOfHour(timestamp) AS hour_group, traffic_type, protocol,
		       count() AS packet_count, sum(packet_size) AS total_bytes,
		       avg(packet_size) AS avg_packet_size
		FROM traffic_data
		%s
		GROUP BY hour_group, traffic_type, protocol
		ORDER BY hour_group DESC`, where)

	rows, err := r.client.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic summary: %w", err)
	}
	defer rows.Close()

	var buckets []*model.SummaryBucket
	for rows.Next() {
		b := &model.SummaryBucket{}
		if err := rows.Scan(&b.HourGroup, &b.TrafficType, &b.Protocol,
			&b.PacketCount, &b.TotalBytes, &b.AvgPacketSize); err != nil {
			return nil, fmt.Errorf("failed to scan summary bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func (r *trafficRepository) Bandwidth(ctx context.Context, nodeIDs []int64, hours int) ([]*model.BandwidthPoint, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	scope, args := nodeFilter(nodeIDs)
	where := whereClause(scope, "timestamp >= now64(3) - toIntervalHour(?)")
	args = append(args, hours)

	query := fmt.Sprintf(`
		SELECT toStartOfHour(timestamp) AS time_interval,
		       sum(bandwidth_usage) AS total_bandwidth
		FROM traffic_data
		%s
		GROUP BY time_interval
		ORDER BY time_interval ASC`, where)

	rows, err := r.client.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bandwidth: %w", err)
	}
	defer rows.Close()

	var points []*model.BandwidthPoint
	for rows.Next() {
		p := &model.BandwidthPoint{}
		if err := rows.Scan(&p.TimeInterval, &p.TotalBandwidth); err != nil {
			return nil, fmt.Errorf("failed to scan bandwidth point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *trafficRepository) Recent(ctx context.Context, nodeIDs []int64, limit int) ([]*model.TrafficRecord, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	scope, args := nodeFilter(nodeIDs)
	where := whereClause(scope)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT toString(id), node_id, timestamp, source_ip, destination_ip,
		       protocol, port, packet_size, traffic_type, bandwidth_usage, created_at
		FROM traffic_data
		%s
		ORDER BY timestamp DESC
		LIMIT ?`, where)

	rows, err := r.client.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent traffic: %w", err)
	}
	defer rows.Close()

	var records []*model.TrafficRecord
	for rows.Next() {
		rec := &model.TrafficRecord{}
		if err := rows.Scan(&rec.ID, &rec.NodeID, &rec.Timestamp, &rec.SourceIP,
			&rec.DestinationIP, &rec.Protocol, &rec.Port, &rec.PacketSize,
			&rec.TrafficType, &rec.BandwidthUsage, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan traffic record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *trafficRepository) GlobalStats(ctx context.Context) (*model.TrafficTotal, error) {
	const query = `
		SELECT count(), sum(packet_size), max(timestamp)
		FROM traffic_data`

	var (
		total      model.TrafficTotal
		lastUpdate time.Time
	)
	row := r.client.QueryRow(ctx, query)
	if err := row.Scan(&total.Packets, &total.Data, &lastUpdate); err != nil {
		return nil, fmt.Errorf("failed to query traffic stats: %w", err)
	}
	if total.Packets > 0 {
		lastUpdate = lastUpdate.UTC()
		total.LastUpdate = &lastUpdate
	}
	return &total, nil
}
