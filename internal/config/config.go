package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables DynamoTables

	// Binding handshake knobs.
	CodeLength      int
	CodeTTL         time.Duration
	JanitorInterval time.Duration

	// Shared token the bot transport presents on webhook calls.
	WebhookToken string

	// SNS topic the bot relay subscribes to for outbound messages.
	SNSRegion   string
	SNSTopicARN string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	// Config-provisioned operator account for the admin surface.
	OperatorName         string
	OperatorPasswordHash string // bcrypt hash; empty disables operator login

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Bindings string
	AuditLog string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			Bindings: getEnv("DYNAMO_TABLE_BINDINGS", "bindings"),
			AuditLog: getEnv("DYNAMO_TABLE_AUDIT_LOG", "binding_audit_log"),
		},

		CodeLength:      getEnvInt("BINDING_CODE_LENGTH", 6),
		CodeTTL:         time.Duration(getEnvInt("BINDING_CODE_TTL_MINUTES", 5)) * time.Minute,
		JanitorInterval: time.Duration(getEnvInt("JANITOR_INTERVAL_SECONDS", 60)) * time.Second,

		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),

		SNSRegion:   getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN: getEnv("SNS_TOPIC_ARN", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,

		OperatorName:         getEnv("OPERATOR_NAME", "admin"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
