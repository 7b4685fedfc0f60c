package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageBackendLocal = "local"
	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"
	StorageBackendS3    = "s3"

	QueueBackendNone     = "none"
	QueueBackendRabbitMQ = "rabbitmq"
	QueueBackendPubSub   = "pubsub"
	QueueBackendMemory   = "memory"
)

type Config struct {
	Env        string `env:"ENV" envDefault:"production"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	// PublicBaseURL prefixes the verification links sent by email.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// JWTSecret signs session tokens. It is required.
	JWTSecret string `env:"JWT_SECRET"`

	Database DatabaseConfig `envPrefix:"DB_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Mail     MailConfig     `envPrefix:"SMTP_"`
	Queue    QueueConfig    `envPrefix:"MAIL_QUEUE_"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"contacts"`
	Password string `env:"PASSWORD" envDefault:"password"`
	DBName   string `env:"NAME" envDefault:"contacts_db"`
	UseSSL   bool   `env:"USE_SSL" envDefault:"false"`
}

type StorageConfig struct {
	Backend string `env:"BACKEND" envDefault:"local"`

	// LocalDir is the root directory of the local backend. Avatars end up
	// under LocalDir/avatars and are served at /avatars/.
	LocalDir string `env:"LOCAL_DIR" envDefault:"public"`

	// URLPrefix is prepended to object keys to form the stored avatar URL.
	// Empty keeps the relative key, e.g. "avatars/<file>.jpg".
	URLPrefix string `env:"URL_PREFIX"`

	Minio MinioConfig `envPrefix:"MINIO_"`
	GCS   GCSConfig   `envPrefix:"GCS_"`
	S3    S3Config    `envPrefix:"S3_"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"BUCKET"`
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

type S3Config struct {
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Bucket       string `env:"BUCKET"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	BaseEndpoint string `env:"BASE_ENDPOINT"`
	UsePathStyle bool   `env:"USE_PATH_STYLE" envDefault:"false"`
}

type MailConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"465"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// QueueConfig controls whether verification mail is sent inline or queued.
// rabbitmq and pubsub are drained by the worker command; memory is drained
// by the server process itself.
type QueueConfig struct {
	Backend string `env:"BACKEND" envDefault:"none"`
	Channel string `env:"CHANNEL" envDefault:"mail.verification"`
}

type RabbitMQConfig struct {
	URL             string `env:"URL"`
	QueueDurable    bool   `env:"QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PROJECT_ID"`
	CredentialsFile    string `env:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"SUBSCRIPTION_SUFFIX" envDefault:"-sub"`

	// AckDeadline bounds one SMTP delivery attempt before Pub/Sub redelivers.
	AckDeadline    time.Duration `env:"ACK_DEADLINE" envDefault:"30s"`
	MinBackoff     time.Duration `env:"MIN_BACKOFF" envDefault:"10s"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF" envDefault:"10m"`
	MaxOutstanding int           `env:"MAX_OUTSTANDING" envDefault:"10"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Pretty bool   `env:"PRETTY" envDefault:"false"`
}

// LoadConfig reads the process configuration from the environment.
// In dev mode a .env file in the working directory is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.Storage.Backend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("STORAGE_LOCAL_DIR is required for the local storage backend")
		}
	case StorageBackendMinio, StorageBackendGCS, StorageBackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Queue.Backend {
	case QueueBackendNone, QueueBackendRabbitMQ, QueueBackendPubSub, QueueBackendMemory:
	default:
		return fmt.Errorf("unknown mail queue backend %q", c.Queue.Backend)
	}
	if c.Queue.Backend != QueueBackendNone && strings.TrimSpace(c.Queue.Channel) == "" {
		return errors.New("MAIL_QUEUE_CHANNEL is required when a mail queue is configured")
	}

	return nil
}

// IsDev reports whether the process runs in development mode.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}
