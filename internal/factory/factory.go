package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"netwatch/internal/audit"
	"netwatch/internal/bucketing"
	"netwatch/internal/client"
	"netwatch/internal/config"
	"netwatch/internal/encryption"
	"netwatch/internal/hashing"
	chrepo "netwatch/internal/repository/clickhouse"
	pgrepo "netwatch/internal/repository/postgres"
	redisrepo "netwatch/internal/repository/redis"
	"netwatch/internal/service"
	"netwatch/internal/tls"
	"netwatch/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	postgresClient   *client.PostgresClient
	clickhouseClient *client.ClickHouseClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	kmsClient        *kms.Client

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Repositories
	userRepository    pgrepo.UserRepository
	nodeRepository    pgrepo.NodeRepository
	alertRepository   pgrepo.AlertRepository
	trafficRepository chrepo.TrafficRepository
	sessionCache      *redisrepo.SessionCache
	rateLimitCache    *redisrepo.RateLimitCache

	recorder       audit.Recorder
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration and initializes all application
// dependencies, including storage schemas.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	if err := factory.ensureSchemas(); err != nil {
		return nil, fmt.Errorf("failed to ensure storage schemas: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return factory, nil
}

// initializeClients brings up all external service clients with health
// checks. Kafka and Elasticsearch are optional; the stores are critical in
// production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Postgres
	if pg, err := client.NewPostgresClient(ctx, f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("postgres: %w", err))
	} else {
		f.postgresClient = pg
		util.Info("Postgres client initialized and healthy")
	}

	// ClickHouse
	if ch, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = ch
		util.Info("ClickHouse client initialized and healthy")
	}

	// Redis
	if rc, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// Kafka (optional, alerts are best effort)
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized")
	}

	// Elasticsearch (optional, audit log degrades to a no-op)
	if es, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		util.Warn("Elasticsearch initialization failed - audit logging disabled", util.ErrorField(err))
	} else {
		f.esClient = es
		util.Info("Elasticsearch client initialized")
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher()
	f.bucketingManager = bucketing.NewManager(f.config)

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Error("Failed to load AWS config - falling back to local encryption keys", util.ErrorField(err))
		} else {
			f.kmsClient = kms.NewFromConfig(awsCfg)
		}
	}
	f.encryptionManager = encryption.NewManager(f.config, f.kmsClient)

	util.Info("Managers initialized successfully",
		util.Bool("kms_client", f.kmsClient != nil),
	)
}

// ensureSchemas creates missing tables on startup.
func (f *Factory) ensureSchemas() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if f.postgresClient != nil {
		// Order matters: nodes and alerts reference users and nodes.
		if err := f.UserRepository().EnsureSchema(ctx); err != nil {
			return err
		}
		if err := f.NodeRepository().EnsureSchema(ctx); err != nil {
			return err
		}
		if err := f.AlertRepository().EnsureSchema(ctx); err != nil {
			return err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.TrafficRepository().EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) UserRepository() pgrepo.UserRepository {
	if f.userRepository == nil {
		f.userRepository = pgrepo.NewUserRepository(f.postgresClient, util.Get())
	}
	return f.userRepository
}

func (f *Factory) NodeRepository() pgrepo.NodeRepository {
	if f.nodeRepository == nil {
		f.nodeRepository = pgrepo.NewNodeRepository(f.postgresClient, util.Get())
	}
	return f.nodeRepository
}

func (f *Factory) AlertRepository() pgrepo.AlertRepository {
	if f.alertRepository == nil {
		f.alertRepository = pgrepo.NewAlertRepository(f.postgresClient, util.Get())
	}
	return f.alertRepository
}

func (f *Factory) TrafficRepository() chrepo.TrafficRepository {
	if f.trafficRepository == nil {
		f.trafficRepository = chrepo.NewTrafficRepository(f.clickhouseClient, util.Get())
	}
	return f.trafficRepository
}

func (f *Factory) SessionCache() *redisrepo.SessionCache {
	if f.sessionCache == nil {
		f.sessionCache = redisrepo.NewSessionCache(f.redisClient, f.config.Auth.SessionTTL)
	}
	return f.sessionCache
}

func (f *Factory) RateLimitCache() *redisrepo.RateLimitCache {
	if f.rateLimitCache == nil {
		f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient, f.bucketingManager)
	}
	return f.rateLimitCache
}

func (f *Factory) Recorder() audit.Recorder {
	if f.recorder == nil {
		if f.esClient != nil {
			f.recorder = audit.NewRecorder(f.esClient, f.bucketingManager, f.config)
		} else {
			f.recorder = audit.NopRecorder{}
		}
	}
	return f.recorder
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var publisher service.AlertPublisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		f.serviceFactory = service.NewServiceFactory(
			f.UserRepository(),
			f.NodeRepository(),
			f.AlertRepository(),
			f.TrafficRepository(),
			f.SessionCache(),
			f.RateLimitCache(),
			publisher,
			f.hasher,
			f.encryptionManager,
			f.Recorder(),
			f.config,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// HealthCheck probes every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.postgresClient != nil {
		if err := f.postgresClient.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	} else {
		healthErrors["clickhouse"] = fmt.Errorf("clickhouse client not initialized")
	}

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// HealthStatus renders the health check as dependency -> state strings for
// the health endpoint.
func (f *Factory) HealthStatus(ctx context.Context) map[string]string {
	status := map[string]string{
		"postgres":   "healthy",
		"clickhouse": "healthy",
		"redis":      "healthy",
	}
	if f.esClient != nil {
		status["elasticsearch"] = "healthy"
	}
	if f.kafkaProducer != nil {
		status["kafka"] = "healthy"
	}
	for name := range f.HealthCheck(ctx) {
		status[name] = "unhealthy"
	}
	return status
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
			util.Info("Postgres pool closed")
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
