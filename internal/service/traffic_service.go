package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"netwatch/internal/audit"
	"netwatch/internal/config"
	"netwatch/internal/model"
	"netwatch/internal/repository/clickhouse"
	"netwatch/internal/repository/postgres"
	"netwatch/internal/util"
)

const (
	defaultSummaryHours  = 24
	realtimeScopedLimit  = 50
	realtimeGlobalLimit  = 100
	defaultAlertLimit    = 20
	defaultNodeFeedLimit = 100
)

// RateLimiter gates ingestion per node.
type RateLimiter interface {
	AllowIngest(ctx context.Context, nodeID int64, limit int, window time.Duration) (bool, error)
}

// AlertPublisher pushes raised alerts to the streaming topic.
type AlertPublisher interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// IngestRequest is a reported traffic event before normalization.
type IngestRequest struct {
	Timestamp      time.Time `json:"timestamp"`
	SourceIP       string    `json:"source_ip"`
	DestinationIP  string    `json:"destination_ip"`
	Protocol       string    `json:"protocol"`
	Port           uint32    `json:"port"`
	PacketSize     uint64    `json:"packet_size"`
	TrafficType    string    `json:"traffic_type"`
	BandwidthUsage float64   `json:"bandwidth_usage"`
}

// TrafficService handles telemetry ingestion, aggregation, and alerting.
type TrafficService struct {
	traffic   clickhouse.TrafficRepository
	nodes     postgres.NodeRepository
	alerts    postgres.AlertRepository
	limiter   RateLimiter
	publisher AlertPublisher
	recorder  audit.Recorder
	config    *config.Config
}

func NewTrafficService(
	traffic clickhouse.TrafficRepository,
	nodes postgres.NodeRepository,
	alerts postgres.AlertRepository,
	limiter RateLimiter,
	publisher AlertPublisher,
	recorder audit.Recorder,
	cfg *config.Config,
) *TrafficService {
	return &TrafficService{
		traffic:   traffic,
		nodes:     nodes,
		alerts:    alerts,
		limiter:   limiter,
		publisher: publisher,
		recorder:  recorder,
		config:    cfg,
	}
}

// Ingest records one traffic event for the node identified by apiKeyHash's
// preimage and runs the anomaly check. Returns the raised alert, if any.
func (s *TrafficService) Ingest(ctx context.Context, node *model.Node, req *IngestRequest) (*model.TrafficRecord, *model.Alert, error) {
	if allowed, _ := s.limiter.AllowIngest(ctx, node.ID, s.config.Limits.IngestPerMinute, time.Minute); !allowed {
		return nil, nil, fmt.Errorf("%w: node %d", ErrRateLimited, node.ID)
	}

	record := s.normalize(node.ID, req)
	if err := s.traffic.Insert(ctx, record); err != nil {
		return nil, nil, err
	}

	alert, err := s.checkAnomaly(ctx, node)
	if err != nil {
		// The record is already persisted; a failed check only skips alerting.
		util.Warn("Anomaly check failed",
			zap.Int64("node_id", node.ID),
			zap.Error(err))
	}

	return record, alert, nil
}

func (s *TrafficService) normalize(nodeID int64, req *IngestRequest) *model.TrafficRecord {
	record := &model.TrafficRecord{
		NodeID:         nodeID,
		Timestamp:      req.Timestamp,
		SourceIP:       req.SourceIP,
		DestinationIP:  req.DestinationIP,
		Protocol:       req.Protocol,
		Port:           req.Port,
		PacketSize:     req.PacketSize,
		TrafficType:    req.TrafficType,
		BandwidthUsage: req.BandwidthUsage,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	if record.Protocol == "" {
		record.Protocol = "TCP"
	}
	if record.TrafficType == "" {
		record.TrafficType = "incoming"
	}
	return record
}

// checkAnomaly recomputes the trailing-window totals from storage and appends
// an alert when either threshold is exceeded. No deduplication: every
// triggering ingest produces its own alert.
func (s *TrafficService) checkAnomaly(ctx context.Context, node *model.Node) (*model.Alert, error) {
	usage, err := s.traffic.WindowUsage(ctx, node.ID, s.config.Anomaly.Window)
	if err != nil {
		return nil, err
	}

	if usage.PacketCount <= s.config.Anomaly.MaxPackets && usage.TotalSize <= s.config.Anomaly.MaxBytes {
		return nil, nil
	}

	alert := &model.Alert{
		NodeID:       node.ID,
		NodeName:     node.NodeName,
		AlertType:    "High traffic volume detected",
		AlertMessage: "Traffic exceeded normal thresholds",
		Severity:     "high",
		Status:       "active",
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	s.publishAlert(ctx, alert)
	s.recorder.Record(ctx, model.AuditEvent{
		Type:    model.EventAlertRaised,
		Message: fmt.Sprintf("high traffic alert for node %s", node.NodeName),
		NodeID:  node.ID,
	})

	util.Warn("Traffic anomaly detected",
		zap.Int64("node_id", node.ID),
		zap.Uint64("window_packets", usage.PacketCount),
		zap.Uint64("window_bytes", usage.TotalSize))
	return alert, nil
}

// publishAlert sends the alert to the streaming topic, fire and forget.
func (s *TrafficService) publishAlert(ctx context.Context, alert *model.Alert) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return
	}
	err = s.publisher.ProduceMessage(ctx, s.config.Kafka.AlertsTopic,
		[]byte(strconv.FormatInt(alert.NodeID, 10)), payload,
		map[string]string{"event": model.EventAlertRaised})
	if err != nil {
		util.Warn("Failed to publish alert",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err))
	}
}

// authorizeNode loads a node and checks the caller may read it.
func (s *TrafficService) authorizeNode(ctx context.Context, identity *model.Identity, nodeID int64) (*model.Node, error) {
	if err := RequireAuthenticated(identity); err != nil {
		return nil, err
	}
	node, err := s.nodes.GetNodeByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, fmt.Errorf("%w: node %d", ErrNotFound, nodeID)
		}
		return nil, err
	}
	if err := RequireOwnerOrAdmin(identity, node.CreatedBy); err != nil {
		return nil, err
	}
	return node, nil
}

// callerScope resolves the node_id set visible to the caller. Admins get a nil
// scope (everything); regular users get their own nodes, possibly empty.
func (s *TrafficService) callerScope(ctx context.Context, identity *model.Identity) ([]int64, error) {
	if identity.IsAdmin() {
		return nil, nil
	}
	ids, err := s.nodes.ListNodeIDsByOwner(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Summary aggregates one node's traffic over the trailing window into hourly
// buckets plus flattened per-protocol and per-type packet rollups.
func (s *TrafficService) Summary(ctx context.Context, identity *model.Identity, nodeID int64, hours int) ([]*model.SummaryBucket, *model.TrafficStats, error) {
	node, err := s.authorizeNode(ctx, identity, nodeID)
	if err != nil {
		return nil, nil, err
	}
	if hours <= 0 {
		hours = defaultSummaryHours
	}

	buckets, err := s.traffic.Summary(ctx, []int64{node.ID}, hours)
	if err != nil {
		return nil, nil, err
	}

	stats := &model.TrafficStats{
		ByProtocol: make(map[string]uint64),
		ByType:     make(map[string]uint64),
	}
	for _, b := range buckets {
		stats.TotalPackets += b.PacketCount
		stats.TotalBytes += b.TotalBytes
		stats.ByProtocol[b.Protocol] += b.PacketCount
		stats.ByType[b.TrafficType] += b.PacketCount
	}
	return buckets, stats, nil
}

// Realtime returns the newest records visible to the caller, node names
// attached. Scoped callers get 50 records, admins 100 across all nodes.
func (s *TrafficService) Realtime(ctx context.Context, identity *model.Identity) ([]*model.TrafficRecord, error) {
	if err := RequireAuthenticated(identity); err != nil {
		return nil, err
	}

	scope, err := s.callerScope(ctx, identity)
	if err != nil {
		return nil, err
	}
	limit := realtimeScopedLimit
	if scope == nil {
		limit = realtimeGlobalLimit
	}

	records, err := s.traffic.Recent(ctx, scope, limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachNodeNames(ctx, identity, records); err != nil {
		util.Warn("Failed to resolve node names", zap.Error(err))
	}
	return records, nil
}

func (s *TrafficService) attachNodeNames(ctx context.Context, identity *model.Identity, records []*model.TrafficRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		nodes []*model.Node
		err   error
	)
	if identity.IsAdmin() {
		nodes, err = s.nodes.ListAllNodes(ctx)
	} else {
		nodes, err = s.nodes.ListNodesByOwner(ctx, identity.UserID)
	}
	if err != nil {
		return err
	}

	names := make(map[int64]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.NodeName
	}
	for _, r := range records {
		r.NodeName = names[r.NodeID]
	}
	return nil
}

// Bandwidth returns hourly bandwidth sums for one node, oldest first.
func (s *TrafficService) Bandwidth(ctx context.Context, identity *model.Identity, nodeID int64, hours int) ([]*model.BandwidthPoint, error) {
	node, err := s.authorizeNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		hours = defaultSummaryHours
	}
	return s.traffic.Bandwidth(ctx, []int64{node.ID}, hours)
}

// TrafficByNode returns one node's newest raw records.
func (s *TrafficService) TrafficByNode(ctx context.Context, identity *model.Identity, nodeID int64, limit int) ([]*model.TrafficRecord, error) {
	node, err := s.authorizeNode(ctx, identity, nodeID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNodeFeedLimit
	}
	records, err := s.traffic.Recent(ctx, []int64{node.ID}, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		r.NodeName = node.NodeName
	}
	return records, nil
}

// Alerts lists the newest alerts visible to the caller, optionally narrowed
// to one node.
func (s *TrafficService) Alerts(ctx context.Context, identity *model.Identity, nodeID *int64, limit int) ([]*model.Alert, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}

	var scope []int64
	if nodeID != nil {
		node, err := s.authorizeNode(ctx, identity, *nodeID)
		if err != nil {
			return nil, err
		}
		scope = []int64{node.ID}
	} else {
		if err := RequireAuthenticated(identity); err != nil {
			return nil, err
		}
		var err error
		scope, err = s.callerScope(ctx, identity)
		if err != nil {
			return nil, err
		}
	}

	return s.alerts.ListAlerts(ctx, scope, limit)
}
