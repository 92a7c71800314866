package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	OpenAI       OpenAIConfig
	Ingestion    IngestionConfig
	Enrichment   EnrichmentConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PHARMALINK_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"PHARMALINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PHARMALINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PHARMALINK_SERVICE_KIND" default:"engine"`
}

type DBConfig struct {
	DSN    string `envconfig:"PHARMALINK_DB_DSN"`
	Driver string `envconfig:"PHARMALINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PHARMALINK_DB_HOST"`
	LegacyPort     int    `envconfig:"PHARMALINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PHARMALINK_DB_USER"`
	LegacyPassword string `envconfig:"PHARMALINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"PHARMALINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"PHARMALINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PHARMALINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PHARMALINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PHARMALINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PHARMALINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PHARMALINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PHARMALINK_REDIS_ADDR"`
	Password     string        `envconfig:"PHARMALINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PHARMALINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PHARMALINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PHARMALINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PHARMALINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PHARMALINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PHARMALINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type OpenAIConfig struct {
	APIKey         string        `envconfig:"PHARMALINK_OPENAI_API_KEY"`
	BaseURL        string        `envconfig:"PHARMALINK_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	ChatModel      string        `envconfig:"PHARMALINK_OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel string        `envconfig:"PHARMALINK_OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
	RequestTimeout time.Duration `envconfig:"PHARMALINK_OPENAI_REQUEST_TIMEOUT" default:"60s"`
	MaxRetries     int           `envconfig:"PHARMALINK_OPENAI_MAX_RETRIES" default:"3"`
}

type IngestionConfig struct {
	InstantPublishThreshold float64 `envconfig:"PHARMALINK_INGEST_INSTANT_PUBLISH_THRESHOLD" default:"0.01"`
	MaxRowsPerUpload        int     `envconfig:"PHARMALINK_INGEST_MAX_ROWS" default:"5000"`
}

type EnrichmentConfig struct {
	LockTTL              time.Duration `envconfig:"PHARMALINK_ENRICH_LOCK_TTL" default:"15m"`
	WorkerLimit          int           `envconfig:"PHARMALINK_ENRICH_WORKER_LIMIT" default:"8"`
	SimilarityFloor      float64       `envconfig:"PHARMALINK_ENRICH_SIMILARITY_FLOOR" default:"0.4"`
	SweepInterval        time.Duration `envconfig:"PHARMALINK_ENRICH_SWEEP_INTERVAL" default:"10m"`
	SweepBatchSize       int           `envconfig:"PHARMALINK_ENRICH_SWEEP_BATCH_SIZE" default:"100"`
	EmbeddingCacheTTL    time.Duration `envconfig:"PHARMALINK_ENRICH_EMBEDDING_CACHE_TTL" default:"24h"`
	ImageConfidenceFloor int           `envconfig:"PHARMALINK_ENRICH_IMAGE_CONFIDENCE_FLOOR" default:"50"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PHARMALINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PHARMALINK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PHARMALINK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PHARMALINK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PHARMALINK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	CatalogTopic string `envconfig:"PHARMALINK_PUBSUB_CATALOG_TOPIC" default:"pl-catalog-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PHARMALINK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PHARMALINK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PHARMALINK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
