package service

import (
	"go.uber.org/zap"

	"netwatch/internal/audit"
	"netwatch/internal/config"
	"netwatch/internal/encryption"
	"netwatch/internal/hashing"
	"netwatch/internal/repository/clickhouse"
	"netwatch/internal/repository/postgres"
)

// ServiceFactory creates and caches service instances.
type ServiceFactory struct {
	users     postgres.UserRepository
	nodes     postgres.NodeRepository
	alerts    postgres.AlertRepository
	traffic   clickhouse.TrafficRepository
	sessions  SessionStore
	limiter   RateLimiter
	publisher AlertPublisher
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	recorder  audit.Recorder
	config    *config.Config
	logger    *zap.Logger

	authService    *AuthService
	nodeService    *NodeService
	trafficService *TrafficService
	adminService   *AdminService
}

func NewServiceFactory(
	users postgres.UserRepository,
	nodes postgres.NodeRepository,
	alerts postgres.AlertRepository,
	traffic clickhouse.TrafficRepository,
	sessions SessionStore,
	limiter RateLimiter,
	publisher AlertPublisher,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	recorder audit.Recorder,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		users:     users,
		nodes:     nodes,
		alerts:    alerts,
		traffic:   traffic,
		sessions:  sessions,
		limiter:   limiter,
		publisher: publisher,
		hasher:    hasher,
		encryptor: encryptor,
		recorder:  recorder,
		config:    cfg,
		logger:    logger,
	}
}

// AuthService returns the auth service instance (singleton).
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(f.users, f.sessions, f.hasher, f.encryptor, f.recorder, f.config)
	}
	return f.authService
}

// NodeService returns the node service instance (singleton).
func (f *ServiceFactory) NodeService() *NodeService {
	if f.nodeService == nil {
		f.nodeService = NewNodeService(f.nodes, f.recorder, f.config)
	}
	return f.nodeService
}

// TrafficService returns the traffic service instance (singleton).
func (f *ServiceFactory) TrafficService() *TrafficService {
	if f.trafficService == nil {
		f.trafficService = NewTrafficService(f.traffic, f.nodes, f.alerts, f.limiter, f.publisher, f.recorder, f.config)
	}
	return f.trafficService
}

// AdminService returns the admin service instance (singleton).
func (f *ServiceFactory) AdminService() *AdminService {
	if f.adminService == nil {
		f.adminService = NewAdminService(f.users, f.nodes, f.alerts, f.traffic, f.encryptor, f.recorder)
	}
	return f.adminService
}

// Cleanup releases service-held resources.
func (f *ServiceFactory) Cleanup() {
	if f.encryptor != nil {
		f.encryptor.ClearCache()
	}
}
