package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"netwatch/internal/audit"
	"netwatch/internal/config"
	"netwatch/internal/model"
)

type trafficFixture struct {
	svc     *TrafficService
	traffic *fakeTrafficRepo
	nodes   *fakeNodeRepo
	alerts  *fakeAlertRepo
	limiter *fakeRateLimiter
	pub     *fakePublisher
	cfg     *config.Config
}

func newTrafficFixture() *trafficFixture {
	cfg := newTestConfig()
	// Small thresholds keep the anomaly tests cheap.
	cfg.Anomaly.MaxPackets = 5
	cfg.Anomaly.MaxBytes = 1000

	f := &trafficFixture{
		traffic: newFakeTrafficRepo(),
		nodes:   newFakeNodeRepo(),
		alerts:  newFakeAlertRepo(),
		limiter: &fakeRateLimiter{allow: true},
		pub:     &fakePublisher{},
		cfg:     cfg,
	}
	f.svc = NewTrafficService(f.traffic, f.nodes, f.alerts, f.limiter, f.pub, audit.NopRecorder{}, cfg)
	return f
}

func (f *trafficFixture) addNode(t *testing.T, ownerID int64, name string) *model.Node {
	t.Helper()
	node := &model.Node{
		NodeName:   name,
		NodeIP:     "10.0.0.1",
		NodeStatus: model.NodeStatusActive,
		CreatedBy:  ownerID,
	}
	if err := f.nodes.CreateNode(context.Background(), node); err != nil {
		t.Fatalf("seed node: %v", err)
	}
	return node
}

func TestIngestAppliesDefaults(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	node := f.addNode(t, 2, "edge-1")

	before := time.Now().UTC()
	record, alert, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 64})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if alert != nil {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if record.Protocol != "TCP" {
		t.Fatalf("protocol %q, want TCP", record.Protocol)
	}
	if record.TrafficType != "incoming" {
		t.Fatalf("traffic type %q, want incoming", record.TrafficType)
	}
	if record.Timestamp.Before(before) {
		t.Fatalf("timestamp %v not defaulted to now", record.Timestamp)
	}
	if record.NodeID != node.ID {
		t.Fatalf("record node %d, want %d", record.NodeID, node.ID)
	}

	// Caller-supplied values survive normalization.
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record, _, err = f.svc.Ingest(ctx, node, &IngestRequest{
		Timestamp:   ts,
		Protocol:    "UDP",
		TrafficType: "outgoing",
		PacketSize:  64,
	})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if record.Protocol != "UDP" || record.TrafficType != "outgoing" || !record.Timestamp.Equal(ts) {
		t.Fatalf("normalization clobbered caller values: %+v", record)
	}
}

func TestIngestRateLimited(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	node := f.addNode(t, 2, "edge-1")
	f.limiter.allow = false

	_, _, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 64})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if usage, _ := f.traffic.WindowUsage(ctx, node.ID, time.Hour); usage.PacketCount != 0 {
		t.Fatal("rejected ingest was persisted")
	}
}

func TestIngestAnomalyThresholds(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	node := f.addNode(t, 2, "edge-1")

	// At the threshold (5 packets, well under the byte cap) nothing fires.
	for i := 0; i < 5; i++ {
		_, alert, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 10})
		if err != nil {
			t.Fatalf("ingest %d failed: %v", i+1, err)
		}
		if alert != nil {
			t.Fatalf("ingest %d raised an alert at or below threshold", i+1)
		}
	}

	// One more packet crosses the count threshold.
	_, alert, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 10})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if alert == nil {
		t.Fatal("expected an alert above threshold")
	}
	if alert.AlertType != "High traffic volume detected" {
		t.Fatalf("alert type %q", alert.AlertType)
	}
	if alert.AlertMessage != "Traffic exceeded normal thresholds" {
		t.Fatalf("alert message %q", alert.AlertMessage)
	}
	if alert.Severity != "high" || alert.Status != "active" {
		t.Fatalf("alert severity/status %q/%q", alert.Severity, alert.Status)
	}
	if alert.NodeID != node.ID {
		t.Fatalf("alert node %d, want %d", alert.NodeID, node.ID)
	}

	if count, _ := f.alerts.CountActiveAlerts(ctx); count != 1 {
		t.Fatalf("expected 1 persisted alert, got %d", count)
	}
	if len(f.pub.messages) != 1 {
		t.Fatalf("expected 1 published alert, got %d", len(f.pub.messages))
	}
}

func TestIngestAnomalyByteThreshold(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	node := f.addNode(t, 2, "edge-1")

	// A single oversized packet crosses the byte threshold alone.
	_, alert, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 2000})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if alert == nil {
		t.Fatal("expected a byte-threshold alert")
	}
}

func TestSummaryStats(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	owner := userIdentity(2)
	node := f.addNode(t, owner.UserID, "edge-1")

	seed := []struct {
		protocol string
		ttype    string
		size     uint64
	}{
		{"TCP", "incoming", 100},
		{"TCP", "incoming", 100},
		{"UDP", "incoming", 50},
		{"TCP", "outgoing", 25},
	}
	for _, rec := range seed {
		if _, _, err := f.svc.Ingest(ctx, node, &IngestRequest{
			Protocol:    rec.protocol,
			TrafficType: rec.ttype,
			PacketSize:  rec.size,
		}); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
	}

	buckets, stats, err := f.svc.Summary(ctx, owner, node.ID, 24)
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}

	var bucketPackets uint64
	for _, b := range buckets {
		bucketPackets += b.PacketCount
	}
	if bucketPackets != 4 {
		t.Fatalf("bucket packet total %d, want 4", bucketPackets)
	}
	if stats.TotalPackets != 4 {
		t.Fatalf("total packets %d, want 4", stats.TotalPackets)
	}
	if stats.TotalBytes != 275 {
		t.Fatalf("total bytes %d, want 275", stats.TotalBytes)
	}
	if stats.ByProtocol["TCP"] != 3 || stats.ByProtocol["UDP"] != 1 {
		t.Fatalf("by_protocol %+v", stats.ByProtocol)
	}
	if stats.ByType["incoming"] != 3 || stats.ByType["outgoing"] != 1 {
		t.Fatalf("by_type %+v", stats.ByType)
	}

	// A stranger cannot read the node's summary.
	if _, _, err := f.svc.Summary(ctx, userIdentity(3), node.ID, 24); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRealtimeScoping(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	mine := f.addNode(t, 2, "edge-1")
	other := f.addNode(t, 3, "edge-2")

	for _, node := range []*model.Node{mine, other} {
		if _, _, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 10}); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
	}

	records, err := f.svc.Realtime(ctx, userIdentity(2))
	if err != nil {
		t.Fatalf("realtime failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record in caller scope, got %d", len(records))
	}
	if records[0].NodeID != mine.ID {
		t.Fatalf("record from node %d, want %d", records[0].NodeID, mine.ID)
	}
	if records[0].NodeName != "edge-1" {
		t.Fatalf("node name %q not attached", records[0].NodeName)
	}

	all, err := f.svc.Realtime(ctx, adminIdentity())
	if err != nil {
		t.Fatalf("admin realtime failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records unscoped, got %d", len(all))
	}

	// A user with no nodes sees nothing, not everything.
	none, err := f.svc.Realtime(ctx, userIdentity(9))
	if err != nil {
		t.Fatalf("realtime failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty scope, got %d records", len(none))
	}
}

func TestAlertsScoping(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	mine := f.addNode(t, 2, "edge-1")
	other := f.addNode(t, 3, "edge-2")

	for _, nodeID := range []int64{mine.ID, other.ID} {
		err := f.alerts.CreateAlert(ctx, &model.Alert{
			NodeID:       nodeID,
			AlertType:    "High traffic volume detected",
			AlertMessage: "Traffic exceeded normal thresholds",
			Severity:     "high",
			Status:       "active",
		})
		if err != nil {
			t.Fatalf("seed alert: %v", err)
		}
	}

	owned, err := f.svc.Alerts(ctx, userIdentity(2), nil, 20)
	if err != nil {
		t.Fatalf("alerts failed: %v", err)
	}
	if len(owned) != 1 || owned[0].NodeID != mine.ID {
		t.Fatalf("expected only the caller's alert, got %+v", owned)
	}

	all, err := f.svc.Alerts(ctx, adminIdentity(), nil, 20)
	if err != nil {
		t.Fatalf("admin alerts failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 alerts unscoped, got %d", len(all))
	}

	none, err := f.svc.Alerts(ctx, userIdentity(9), nil, 20)
	if err != nil {
		t.Fatalf("alerts failed: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no alerts for nodeless user, got %d", len(none))
	}

	scoped, err := f.svc.Alerts(ctx, adminIdentity(), &other.ID, 20)
	if err != nil {
		t.Fatalf("node-scoped alerts failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].NodeID != other.ID {
		t.Fatalf("expected the one alert for node %d, got %+v", other.ID, scoped)
	}
}

func TestTrafficByNode(t *testing.T) {
	f := newTrafficFixture()
	ctx := context.Background()
	owner := userIdentity(2)
	node := f.addNode(t, owner.UserID, "edge-1")

	for i := 0; i < 3; i++ {
		if _, _, err := f.svc.Ingest(ctx, node, &IngestRequest{PacketSize: 10}); err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
	}

	records, err := f.svc.TrafficByNode(ctx, owner, node.ID, 2)
	if err != nil {
		t.Fatalf("traffic by node failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected limit applied, got %d records", len(records))
	}
	for _, r := range records {
		if r.NodeName != "edge-1" {
			t.Fatalf("node name %q not attached", r.NodeName)
		}
	}

	if _, err := f.svc.TrafficByNode(ctx, userIdentity(3), node.ID, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
