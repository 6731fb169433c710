package model

import "time"

// Roles assignable to a user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Node statuses.
const (
	NodeStatusActive   = "active"
	NodeStatusInactive = "inactive"
	NodeStatusError    = "error"
)

// User is a dashboard account. The email is envelope-encrypted at rest;
// EmailHash is the blind index used for uniqueness and login lookup.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	EmailHash      string     `json:"-"`
	EmailEncrypted []byte     `json:"-"`
	EmailDEK       []byte     `json:"-"`
	EmailKeyID     string     `json:"-"`
	Password       string     `json:"-"`
	Role           string     `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// Node is a monitored host registered by a user. Only the SHA-256 digest of
// its API key is stored; the plaintext key is returned once at creation.
type Node struct {
	ID            int64     `json:"id"`
	NodeName      string    `json:"node_name"`
	NodeIP        string    `json:"node_ip"`
	NodeLocation  string    `json:"node_location"`
	NodeStatus    string    `json:"node_status"`
	APIKeyHash    string    `json:"-"`
	CreatedBy     int64     `json:"created_by"`
	CreatedByName string    `json:"created_by_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TrafficRecord is one reported network event, immutable once written.
type TrafficRecord struct {
	ID             string    `json:"id"`
	NodeID         int64     `json:"node_id"`
	NodeName       string    `json:"node_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	SourceIP       string    `json:"source_ip"`
	DestinationIP  string    `json:"destination_ip"`
	Protocol       string    `json:"protocol"`
	Port           uint32    `json:"port"`
	PacketSize     uint64    `json:"packet_size"`
	TrafficType    string    `json:"traffic_type"`
	BandwidthUsage float64   `json:"bandwidth_usage"`
	CreatedAt      time.Time `json:"created_at"`
}

// Alert is an append-only anomaly record attributed to a node.
type Alert struct {
	ID           int64     `json:"id"`
	NodeID       int64     `json:"node_id"`
	NodeName     string    `json:"node_name,omitempty"`
	AlertType    string    `json:"alert_type"`
	AlertMessage string    `json:"alert_message"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the request-scoped caller identity resolved from the session.
type Identity struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// SummaryBucket is one (hour, traffic_type, protocol) aggregation row.
type SummaryBucket struct {
	HourGroup     time.Time `json:"hour_group"`
	TrafficType   string    `json:"traffic_type"`
	Protocol      string    `json:"protocol"`
	PacketCount   uint64    `json:"packet_count"`
	TotalBytes    uint64    `json:"total_bytes"`
	AvgPacketSize float64   `json:"avg_packet_size"`
}

// TrafficStats is the flattened rollup across all summary buckets.
type TrafficStats struct {
	TotalPackets uint64            `json:"total_packets"`
	TotalBytes   uint64            `json:"total_bytes"`
	ByProtocol   map[string]uint64 `json:"by_protocol"`
	ByType       map[string]uint64 `json:"by_type"`
}

// BandwidthPoint is one hourly bandwidth sum.
type BandwidthPoint struct {
	TimeInterval   time.Time `json:"time_interval"`
	TotalBandwidth float64   `json:"total_bandwidth"`
}

// WindowUsage is the trailing-window totals the anomaly check evaluates.
type WindowUsage struct {
	PacketCount uint64 `json:"packet_count"`
	TotalSize   uint64 `json:"total_size"`
}

// SystemStats is the admin dashboard overview.
type SystemStats struct {
	Users   int64        `json:"users"`
	Nodes   NodeStats    `json:"nodes"`
	Traffic TrafficTotal `json:"traffic"`
	Alerts  int64        `json:"alerts"`
}

type NodeStats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

type TrafficTotal struct {
	Packets    uint64     `json:"packets"`
	Data       uint64     `json:"data"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// AuditEvent is one entry in the system activity log.
type AuditEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ActorID   int64     `json:"actor_id,omitempty"`
	NodeID    int64     `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit event types.
const (
	EventUserRegistered    = "user_registered"
	EventUserLogin         = "user_login"
	EventUserDeleted       = "user_deleted"
	EventUserRoleUpdated   = "user_role_updated"
	EventNodeCreated       = "node_created"
	EventNodeDeleted       = "node_deleted"
	EventNodeStatusUpdated = "node_status_updated"
	EventAlertRaised       = "alert_raised"
)
