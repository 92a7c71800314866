package config

// EnvPrefix namespaces every environment variable consumed by the engine.
const EnvPrefix = "pharmalink"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "PHARMALINK_APP_ENV"
	EnvLogLevel = "PHARMALINK_LOG_LEVEL"

	EnvDBDSN  = "PHARMALINK_DB_DSN"
	EnvDBHost = "PHARMALINK_DB_HOST"
	EnvDBUser = "PHARMALINK_DB_USER"
	EnvDBName = "PHARMALINK_DB_NAME"

	EnvRedisURL = "PHARMALINK_REDIS_URL"

	EnvOpenAIAPIKey = "PHARMALINK_OPENAI_API_KEY"

	EnvGCPProjectID       = "PHARMALINK_GCP_PROJECT_ID"
	EnvPubSubCatalogTopic = "PHARMALINK_PUBSUB_CATALOG_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
