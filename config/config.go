package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/configparser"
)

// Flags
var (
	modeFlag    = flag.String("mode", "", "application mode: dispatch-service | location-ingest")
	envFileFlag = flag.String("env-file", ".env", "optional .env file loaded before config.yaml")
)

// Errors
var (
	ErrModeNotProvided  = errors.New("mode flag not provided")
	ErrInvalidMode      = errors.New("unknown application mode")
	ErrInvalidDispatch  = errors.New("invalid dispatch configuration")
	ErrInvalidCandidate = errors.New("invalid candidate source")
	ErrGeocoderKey      = errors.New("geocoder enabled without an api key")
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Mode types.ServiceMode

		Log      LogConfig
		Database DatabaseConfig
		Redis    RedisConfig
		RabbitMQ RabbitMQConfig
		Kafka    KafkaConfig
		HTTP     HTTPConfig
		Dispatch DispatchConfig
		Auth     Auth
		Jobs     JobsConfig
		Geocoder GeocoderConfig
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"taxi_user"`
		Password string `env:"DATABASE_PASSWORD" default:"taxi_pass"`
		Database string `env:"DATABASE_DATABASE" default:"taxi_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`

		// Apply embedded migrations on start
		Migrate bool `env:"DATABASE_MIGRATE" default:"true"`
	}

	RedisConfig struct {
		Enabled  bool   `env:"REDIS_ENABLED" default:"false"`
		Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD" default:""`
		DB       int    `env:"REDIS_DB" default:"0"`
	}

	RabbitMQConfig struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"false"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`

		// Orders created through the API are dispatched via the broker instead of a direct call
		DispatchViaBroker bool `env:"RABBITMQ_DISPATCH_VIA_BROKER" default:"false"`
	}

	KafkaConfig struct {
		Brokers []string `env:"KAFKA_BROKERS" default:"localhost:9092"`
		Topic   string   `env:"KAFKA_TOPIC" default:"driver-locations"`
		GroupID string   `env:"KAFKA_GROUP_ID" default:"location-ingest"`
	}

	HTTPConfig struct {
		Port            string        `env:"HTTP_PORT" default:"8000"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" default:"10s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" default:"10s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" default:"60s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
		AllowedOrigins  []string      `env:"HTTP_ALLOWED_ORIGINS" default:"*"`
	}

	DispatchConfig struct {
		BaseRadiusKm      float64               `env:"DISPATCH_BASE_RADIUS_KM" default:"5"`
		GrowthFactor      float64               `env:"DISPATCH_GROWTH_FACTOR" default:"1.5"`
		MaxRadiusKm       float64               `env:"DISPATCH_MAX_RADIUS_KM" default:"50"`
		OfferTimeout      time.Duration         `env:"DISPATCH_OFFER_TIMEOUT" default:"30s"`
		MaxSearchDuration time.Duration         `env:"DISPATCH_MAX_SEARCH_DURATION" default:"120s"`
		RoundDelay        time.Duration         `env:"DISPATCH_ROUND_DELAY" default:"10s"`
		CandidateLimit    int                   `env:"DISPATCH_CANDIDATE_LIMIT" default:"10"`
		LocationFreshness time.Duration         `env:"DISPATCH_LOCATION_FRESHNESS" default:"0s"`
		StoreRetryLimit   int                   `env:"DISPATCH_STORE_RETRY_LIMIT" default:"3"`
		CandidateSource   types.CandidateSource `env:"DISPATCH_CANDIDATE_SOURCE" default:"postgres"`
	}

	Auth struct {
		JWTSecret string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
		TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`
		Enabled   bool          `env:"AUTH_ENABLED" default:"true"`
	}

	// GeocoderConfig enables reverse geocoding of order addresses through LocationIQ
	GeocoderConfig struct {
		Enabled bool          `env:"GEOCODER_ENABLED" default:"false"`
		APIKey  string        `env:"GEOCODER_API_KEY" default:""`
		BaseURL string        `env:"GEOCODER_BASE_URL" default:"https://us1.locationiq.com"`
		Timeout time.Duration `env:"GEOCODER_TIMEOUT" default:"3s"`
	}

	JobsConfig struct {
		PingSpec      string `env:"JOBS_PING_SPEC" default:"*/30 * * * * *"`
		ReconcileSpec string `env:"JOBS_RECONCILE_SPEC" default:"*/30 * * * * *"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c DatabaseConfig) PoolLimits() (int32, int32, time.Duration, time.Duration) {
	return c.MaxConns, c.MinConns, c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c RedisConfig) GetAddr() string     { return c.Addr }
func (c RedisConfig) GetPassword() string { return c.Password }
func (c RedisConfig) GetDB() int          { return c.DB }

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	if err := configparser.LoadDotEnv(*envFileFlag); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	// Parsing flags
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFlags(cfg *Config) error {
	if modeFlag == nil || *modeFlag == "" {
		return ErrModeNotProvided
	}

	cfg.Mode = types.ServiceMode(*modeFlag)

	return nil
}

// Validate checks values that cannot be expressed by tags alone
func (c *Config) Validate() error {
	switch c.Mode {
	case types.DispatchService, types.LocationIngest:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}

	d := c.Dispatch
	switch {
	case d.BaseRadiusKm <= 0, d.MaxRadiusKm < d.BaseRadiusKm:
		return fmt.Errorf("%w: radius base=%v max=%v", ErrInvalidDispatch, d.BaseRadiusKm, d.MaxRadiusKm)
	case d.GrowthFactor < 1:
		return fmt.Errorf("%w: growth factor %v < 1", ErrInvalidDispatch, d.GrowthFactor)
	case d.OfferTimeout <= 0, d.MaxSearchDuration <= 0, d.RoundDelay < 0:
		return fmt.Errorf("%w: non-positive timeout", ErrInvalidDispatch)
	case d.CandidateLimit <= 0:
		return fmt.Errorf("%w: candidate limit %d", ErrInvalidDispatch, d.CandidateLimit)
	case d.LocationFreshness < 0:
		return fmt.Errorf("%w: negative location freshness", ErrInvalidDispatch)
	}

	if !d.CandidateSource.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCandidate, d.CandidateSource)
	}
	if d.CandidateSource == types.SourceRedis && !c.Redis.Enabled {
		return fmt.Errorf("%w: redis candidate source requires redis.enabled", ErrInvalidCandidate)
	}

	if c.Geocoder.Enabled && c.Geocoder.APIKey == "" {
		return ErrGeocoderKey
	}

	return nil
}

// PrintConfig renders the config with secrets masked
func (c *Config) PrintConfig() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s log_level=%s\n", c.Mode, c.Log.Level)
	fmt.Fprintf(&b, "database=%s:%s/%s user=%s password=%s migrate=%t\n",
		c.Database.Host, c.Database.Port, c.Database.Database, c.Database.User, mask(c.Database.Password), c.Database.Migrate)
	fmt.Fprintf(&b, "redis enabled=%t addr=%s password=%s\n", c.Redis.Enabled, c.Redis.Addr, mask(c.Redis.Password))
	fmt.Fprintf(&b, "rabbitmq enabled=%t %s:%s user=%s password=%s\n",
		c.RabbitMQ.Enabled, c.RabbitMQ.Host, c.RabbitMQ.Port, c.RabbitMQ.User, mask(c.RabbitMQ.Password))
	fmt.Fprintf(&b, "kafka brokers=%v topic=%s group=%s\n", c.Kafka.Brokers, c.Kafka.Topic, c.Kafka.GroupID)
	fmt.Fprintf(&b, "http port=%s\n", c.HTTP.Port)
	fmt.Fprintf(&b, "dispatch %+v\n", c.Dispatch)
	fmt.Fprintf(&b, "geocoder enabled=%t url=%s key=%s\n", c.Geocoder.Enabled, c.Geocoder.BaseURL, mask(c.Geocoder.APIKey))
	fmt.Fprintf(&b, "auth enabled=%t secret=%s ttl=%s\n", c.Auth.Enabled, mask(c.Auth.JWTSecret), c.Auth.TokenTTL)
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
