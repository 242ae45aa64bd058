package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/application"
)

type Config struct {
	ServiceID string
	Role      application.Role
	LogLevel  string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string
	MaxDBConns   int32

	RequestsTopic        string
	ResponsesTopic       string
	ResolverGroup        string
	ResponderGroup       string
	ConsumerPollInterval time.Duration
	ConsumerBatchSize    int

	ReplyTimeout      time.Duration
	DispatchTimeout   time.Duration
	WorkerTimeout     time.Duration
	WorkerMinLatency  time.Duration
	WorkerMaxLatency  time.Duration
	EntityIdleTimeout time.Duration

	InboxDedupTTL      time.Duration
	InboxPruneInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	HealthyServices []string
	FailedServices  []string
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Role     string `yaml:"role"`
		LogLevel string `yaml:"log_level"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		MaxDBConns   int32    `yaml:"max_db_conns"`
	} `yaml:"dependencies"`
	Bus struct {
		RequestsTopic  string        `yaml:"requests_topic"`
		ResponsesTopic string        `yaml:"responses_topic"`
		ResolverGroup  string        `yaml:"resolver_group"`
		ResponderGroup string        `yaml:"responder_group"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		BatchSize      int           `yaml:"batch_size"`
	} `yaml:"bus"`
	Resolution struct {
		ReplyTimeout       time.Duration `yaml:"reply_timeout"`
		DispatchTimeout    time.Duration `yaml:"dispatch_timeout"`
		WorkerTimeout      time.Duration `yaml:"worker_timeout"`
		WorkerMinLatency   time.Duration `yaml:"worker_min_latency"`
		WorkerMaxLatency   time.Duration `yaml:"worker_max_latency"`
		EntityIdleTimeout  time.Duration `yaml:"entity_idle_timeout"`
		InboxDedupTTL      time.Duration `yaml:"inbox_dedup_ttl"`
		InboxPruneInterval time.Duration `yaml:"inbox_prune_interval"`
	} `yaml:"resolution"`
	Gateway struct {
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`
	} `yaml:"gateway"`
	Responder struct {
		HealthyServices []string `yaml:"healthy_services"`
		FailedServices  []string `yaml:"failed_services"`
	} `yaml:"responder"`
}

// LoadConfig reads the YAML file at path when it exists, then applies
// environment overrides. roleOverride wins over both when set.
func LoadConfig(path, roleOverride string) (Config, error) {
	cfg := Config{
		ServiceID:            "M48-Case-Resolver",
		Role:                 application.RoleStandalone,
		LogLevel:             "info",
		HTTPPort:             8080,
		GRPCPort:             9090,
		MaxDBConns:           20,
		RequestsTopic:        "deployment.requests",
		ResponsesTopic:       "deployment.responses",
		ResolverGroup:        "m48-case-resolver",
		ResponderGroup:       "m48-deployment-responder",
		ConsumerPollInterval: 200 * time.Millisecond,
		ConsumerBatchSize:    50,
		ReplyTimeout:         30 * time.Second,
		DispatchTimeout:      5 * time.Second,
		WorkerTimeout:        10 * time.Second,
		WorkerMinLatency:     300 * time.Millisecond,
		WorkerMaxLatency:     2 * time.Second,
		EntityIdleTimeout:    2 * time.Minute,
		InboxDedupTTL:        24 * time.Hour,
		InboxPruneInterval:   10 * time.Minute,
		RateLimitRPS:         20,
		RateLimitBurst:       40,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.Role = application.Role(envOrDefault("SERVICE_ROLE", string(cfg.Role)))
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.RequestsTopic = envOrDefault("KAFKA_TOPIC_DEPLOYMENT_REQUESTS", cfg.RequestsTopic)
	cfg.ResponsesTopic = envOrDefault("KAFKA_TOPIC_DEPLOYMENT_RESPONSES", cfg.ResponsesTopic)
	cfg.ResolverGroup = envOrDefault("KAFKA_RESOLVER_GROUP", cfg.ResolverGroup)
	cfg.ResponderGroup = envOrDefault("KAFKA_RESPONDER_GROUP", cfg.ResponderGroup)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.ConsumerPollInterval = envDuration("CONSUMER_POLL_INTERVAL", cfg.ConsumerPollInterval)
	cfg.ConsumerBatchSize = envInt("CONSUMER_BATCH_SIZE", cfg.ConsumerBatchSize)
	cfg.ReplyTimeout = envDuration("REPLY_TIMEOUT", cfg.ReplyTimeout)
	cfg.DispatchTimeout = envDuration("DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	cfg.WorkerTimeout = envDuration("WORKER_TIMEOUT", cfg.WorkerTimeout)
	cfg.WorkerMinLatency = envDuration("WORKER_MIN_LATENCY", cfg.WorkerMinLatency)
	cfg.WorkerMaxLatency = envDuration("WORKER_MAX_LATENCY", cfg.WorkerMaxLatency)
	cfg.EntityIdleTimeout = envDuration("ENTITY_IDLE_TIMEOUT", cfg.EntityIdleTimeout)
	cfg.InboxDedupTTL = envDuration("INBOX_DEDUP_TTL", cfg.InboxDedupTTL)
	cfg.InboxPruneInterval = envDuration("INBOX_PRUNE_INTERVAL", cfg.InboxPruneInterval)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
	cfg.HealthyServices = envCSV("RESPONDER_HEALTHY_SERVICES", cfg.HealthyServices)
	cfg.FailedServices = envCSV("RESPONDER_FAILED_SERVICES", cfg.FailedServices)
	if roleOverride != "" {
		cfg.Role = application.Role(roleOverride)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.Role != "" {
		cfg.Role = application.Role(f.Service.Role)
	}
	if f.Service.LogLevel != "" {
		cfg.LogLevel = f.Service.LogLevel
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.MaxDBConns > 0 {
		cfg.MaxDBConns = f.Dependencies.MaxDBConns
	}
	if f.Bus.RequestsTopic != "" {
		cfg.RequestsTopic = f.Bus.RequestsTopic
	}
	if f.Bus.ResponsesTopic != "" {
		cfg.ResponsesTopic = f.Bus.ResponsesTopic
	}
	if f.Bus.ResolverGroup != "" {
		cfg.ResolverGroup = f.Bus.ResolverGroup
	}
	if f.Bus.ResponderGroup != "" {
		cfg.ResponderGroup = f.Bus.ResponderGroup
	}
	if f.Bus.PollInterval > 0 {
		cfg.ConsumerPollInterval = f.Bus.PollInterval
	}
	if f.Bus.BatchSize > 0 {
		cfg.ConsumerBatchSize = f.Bus.BatchSize
	}
	r := f.Resolution
	if r.ReplyTimeout > 0 {
		cfg.ReplyTimeout = r.ReplyTimeout
	}
	if r.DispatchTimeout > 0 {
		cfg.DispatchTimeout = r.DispatchTimeout
	}
	if r.WorkerTimeout > 0 {
		cfg.WorkerTimeout = r.WorkerTimeout
	}
	if r.WorkerMinLatency > 0 {
		cfg.WorkerMinLatency = r.WorkerMinLatency
	}
	if r.WorkerMaxLatency > 0 {
		cfg.WorkerMaxLatency = r.WorkerMaxLatency
	}
	if r.EntityIdleTimeout > 0 {
		cfg.EntityIdleTimeout = r.EntityIdleTimeout
	}
	if r.InboxDedupTTL > 0 {
		cfg.InboxDedupTTL = r.InboxDedupTTL
	}
	if r.InboxPruneInterval > 0 {
		cfg.InboxPruneInterval = r.InboxPruneInterval
	}
	if f.Gateway.RateLimitRPS > 0 {
		cfg.RateLimitRPS = f.Gateway.RateLimitRPS
	}
	if f.Gateway.RateLimitBurst > 0 {
		cfg.RateLimitBurst = f.Gateway.RateLimitBurst
	}
	if len(f.Responder.HealthyServices) > 0 {
		cfg.HealthyServices = trimNonEmpty(f.Responder.HealthyServices)
	}
	if f.Responder.FailedServices != nil {
		cfg.FailedServices = trimNonEmpty(f.Responder.FailedServices)
	}
}

func (c Config) validate() error {
	switch c.Role {
	case application.RoleResolver, application.RoleResponder, application.RoleStandalone:
	default:
		return fmt.Errorf("unknown service role %q", c.Role)
	}
	if c.Role.Resolves() && c.DatabaseURL == "" {
		return fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if c.RequestsTopic == "" || c.ResponsesTopic == "" {
		return fmt.Errorf("bus topics must not be empty")
	}
	if c.RequestsTopic == c.ResponsesTopic {
		return fmt.Errorf("requests and responses topics must differ")
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("reply timeout must be positive")
	}
	if c.WorkerMaxLatency < c.WorkerMinLatency {
		return fmt.Errorf("worker max latency must be >= min latency")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	items := strings.Split(raw, ",")
	return trimNonEmpty(items)
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
