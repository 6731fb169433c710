package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"netwatch/internal/config"
	"netwatch/internal/model"
	"netwatch/internal/repository/postgres"
	redisrepo "netwatch/internal/repository/redis"
)

// In-memory repository fakes shared by the service tests.

func newTestConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.Auth.SessionTTL = 24 * time.Hour
	cfg.Auth.SessionCookie = "netwatch_session"
	cfg.Auth.MinPassword = 6
	cfg.Limits.MaxNodesPerUser = 5
	cfg.Limits.IngestPerMinute = 1200
	cfg.Anomaly.Window = 5 * time.Minute
	cfg.Anomaly.MaxPackets = 1000
	cfg.Anomaly.MaxBytes = 100_000_000
	cfg.Kafka.AlertsTopic = "netwatch.alerts"
	cfg.Bucketing.EventBuckets = 64
	return cfg
}

type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) EnsureSchema(context.Context) error { return nil }

func (r *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, postgres.ErrNoRows
}

func (r *fakeUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, postgres.ErrNoRows
}

func (r *fakeUserRepo) GetUserByEmailHash(_ context.Context, emailHash string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.EmailHash == emailHash {
			clone := *user
			return &clone, nil
		}
	}
	return nil, postgres.ErrNoRows
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return postgres.ErrNoRows
	}
	user.LastLogin = &at
	return nil
}

func (r *fakeUserRepo) UpdateUserRole(_ context.Context, id int64, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return postgres.ErrNoRows
	}
	user.Role = role
	return nil
}

func (r *fakeUserRepo) DeleteUser(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return postgres.ErrNoRows
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) ListUsers(context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []*model.User
	for _, user := range r.users {
		clone := *user
		users = append(users, &clone)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *fakeUserRepo) CountUsers(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

type fakeNodeRepo struct {
	mu     sync.Mutex
	nextID int64
	nodes  map[int64]*model.Node
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{nodes: make(map[int64]*model.Node)}
}

func (r *fakeNodeRepo) EnsureSchema(context.Context) error { return nil }

func (r *fakeNodeRepo) CreateNode(_ context.Context, node *model.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	node.ID = r.nextID
	node.CreatedAt = time.Now().UTC()
	clone := *node
	r.nodes[node.ID] = &clone
	return nil
}

func (r *fakeNodeRepo) GetNodeByID(_ context.Context, id int64) (*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if node, ok := r.nodes[id]; ok {
		clone := *node
		return &clone, nil
	}
	return nil, postgres.ErrNoRows
}

func (r *fakeNodeRepo) GetNodeByAPIKeyHash(_ context.Context, apiKeyHash string) (*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range r.nodes {
		if node.APIKeyHash == apiKeyHash {
			clone := *node
			return &clone, nil
		}
	}
	return nil, postgres.ErrNoRows
}

func (r *fakeNodeRepo) ListNodesByOwner(_ context.Context, ownerID int64) ([]*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var nodes []*model.Node
	for _, node := range r.nodes {
		if node.CreatedBy == ownerID {
			clone := *node
			nodes = append(nodes, &clone)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].CreatedAt.After(nodes[j].CreatedAt) })
	return nodes, nil
}

func (r *fakeNodeRepo) ListAllNodes(context.Context) ([]*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var nodes []*model.Node
	for _, node := range r.nodes {
		clone := *node
		nodes = append(nodes, &clone)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].CreatedAt.After(nodes[j].CreatedAt) })
	return nodes, nil
}

func (r *fakeNodeRepo) ListNodeIDsByOwner(_ context.Context, ownerID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for _, node := range r.nodes {
		if node.CreatedBy == ownerID {
			ids = append(ids, node.ID)
		}
	}
	return ids, nil
}

func (r *fakeNodeRepo) CountNodesByOwner(_ context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, node := range r.nodes {
		if node.CreatedBy == ownerID {
			count++
		}
	}
	return count, nil
}

func (r *fakeNodeRepo) UpdateNodeStatus(_ context.Context, id int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[id]
	if !ok {
		return postgres.ErrNoRows
	}
	node.NodeStatus = status
	return nil
}

func (r *fakeNodeRepo) DeleteNode(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[id]; !ok {
		return postgres.ErrNoRows
	}
	delete(r.nodes, id)
	return nil
}

func (r *fakeNodeRepo) CountNodes(context.Context) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total, active int64
	for _, node := range r.nodes {
		total++
		if node.NodeStatus == model.NodeStatusActive {
			active++
		}
	}
	return total, active, nil
}

type fakeAlertRepo struct {
	mu     sync.Mutex
	nextID int64
	alerts []*model.Alert
}

func newFakeAlertRepo() *fakeAlertRepo { return &fakeAlertRepo{} }

func (r *fakeAlertRepo) EnsureSchema(context.Context) error { return nil }

func (r *fakeAlertRepo) CreateAlert(_ context.Context, alert *model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	alert.ID = r.nextID
	alert.CreatedAt = time.Now().UTC()
	clone := *alert
	r.alerts = append(r.alerts, &clone)
	return nil
}

func (r *fakeAlertRepo) ListAlerts(_ context.Context, nodeIDs []int64, limit int) ([]*model.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inScope := func(nodeID int64) bool {
		if nodeIDs == nil {
			return true
		}
		for _, id := range nodeIDs {
			if id == nodeID {
				return true
			}
		}
		return false
	}

	var alerts []*model.Alert
	for i := len(r.alerts) - 1; i >= 0 && len(alerts) < limit; i-- {
		if inScope(r.alerts[i].NodeID) {
			clone := *r.alerts[i]
			alerts = append(alerts, &clone)
		}
	}
	return alerts, nil
}

func (r *fakeAlertRepo) CountActiveAlerts(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, alert := range r.alerts {
		if alert.Status == "active" {
			count++
		}
	}
	return count, nil
}

type fakeTrafficRepo struct {
	mu      sync.Mutex
	records []*model.TrafficRecord
}

func newFakeTrafficRepo() *fakeTrafficRepo { return &fakeTrafficRepo{} }

func (r *fakeTrafficRepo) EnsureSchema(context.Context) error { return nil }

func (r *fakeTrafficRepo) Insert(_ context.Context, record *model.TrafficRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	clone := *record
	r.records = append(r.records, &clone)
	return nil
}

func (r *fakeTrafficRepo) WindowUsage(_ context.Context, nodeID int64, window time.Duration) (*model.WindowUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	usage := &model.WindowUsage{}
	for _, rec := range r.records {
		if rec.NodeID == nodeID && !rec.Timestamp.Before(cutoff) {
			usage.PacketCount++
			usage.TotalSize += rec.PacketSize
		}
	}
	return usage, nil
}

func (r *fakeTrafficRepo) inScope(nodeIDs []int64, nodeID int64) bool {
	if nodeIDs == nil {
		return true
	}
	for _, id := range nodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

func (r *fakeTrafficRepo) Summary(_ context.Context, nodeIDs []int64, hours int) ([]*model.SummaryBucket, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	grouped := make(map[string]*model.SummaryBucket)
	for _, rec := range r.records {
		if !r.inScope(nodeIDs, rec.NodeID) || rec.Timestamp.Before(cutoff) {
			continue
		}
		hour := rec.Timestamp.Truncate(time.Hour)
		key := fmt.Sprintf("%d|%s|%s", hour.Unix(), rec.TrafficType, rec.Protocol)
		bucket, ok := grouped[key]
		if !ok {
			bucket = &model.SummaryBucket{
				HourGroup:   hour,
				TrafficType: rec.TrafficType,
				Protocol:    rec.Protocol,
			}
			grouped[key] = bucket
		}
		bucket.PacketCount++
		bucket.TotalBytes += rec.PacketSize
	}

	var buckets []*model.SummaryBucket
	for _, bucket := range grouped {
		if bucket.PacketCount > 0 {
			bucket.AvgPacketSize = float64(bucket.TotalBytes) / float64(bucket.PacketCount)
		}
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].HourGroup.After(buckets[j].HourGroup) })
	return buckets, nil
}

func (r *fakeTrafficRepo) Bandwidth(_ context.Context, nodeIDs []int64, hours int) ([]*model.BandwidthPoint, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	grouped := make(map[int64]*model.BandwidthPoint)
	for _, rec := range r.records {
		if !r.inScope(nodeIDs, rec.NodeID) || rec.Timestamp.Before(cutoff) {
			continue
		}
		hour := rec.Timestamp.Truncate(time.Hour)
		point, ok := grouped[hour.Unix()]
		if !ok {
			point = &model.BandwidthPoint{TimeInterval: hour}
			grouped[hour.Unix()] = point
		}
		point.TotalBandwidth += rec.BandwidthUsage
	}

	var points []*model.BandwidthPoint
	for _, point := range grouped {
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TimeInterval.Before(points[j].TimeInterval) })
	return points, nil
}

func (r *fakeTrafficRepo) Recent(_ context.Context, nodeIDs []int64, limit int) ([]*model.TrafficRecord, error) {
	if nodeIDs != nil && len(nodeIDs) == 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var records []*model.TrafficRecord
	for _, rec := range r.records {
		if r.inScope(nodeIDs, rec.NodeID) {
			clone := *rec
			records = append(records, &clone)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *fakeTrafficRepo) GlobalStats(context.Context) (*model.TrafficTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := &model.TrafficTotal{}
	for _, rec := range r.records {
		total.Packets++
		total.Data += rec.PacketSize
		if total.LastUpdate == nil || rec.Timestamp.After(*total.LastUpdate) {
			ts := rec.Timestamp
			total.LastUpdate = &ts
		}
	}
	return total, nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Identity
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.Identity)}
}

func (s *fakeSessionStore) Create(_ context.Context, identity *model.Identity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID := uuid.New().String()
	clone := *identity
	s.sessions[sessionID] = &clone
	return sessionID, nil
}

func (s *fakeSessionStore) Get(_ context.Context, sessionID string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.sessions[sessionID]; ok {
		clone := *identity
		return &clone, nil
	}
	return nil, redisrepo.ErrSessionNotFound
}

func (s *fakeSessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

type fakeRateLimiter struct {
	allow bool
}

func (l *fakeRateLimiter) AllowIngest(context.Context, int64, int, time.Duration) (bool, error) {
	return l.allow, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

func (p *fakePublisher) ProduceMessage(_ context.Context, _ string, _, value []byte, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, value)
	return nil
}
