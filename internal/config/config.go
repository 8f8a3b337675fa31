package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the orchestrator.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	CredentialKey string // base64 AES key for credential sealing
	Database      DatabaseConfig
	Redis         RedisConfig
	Registry      RegistryConfig
	Health        HealthConfig
	Failover      FailoverConfig
	Executor      ExecutorConfig
	Perf          PerfConfig
	Spend         SpendConfig
	Audit         AuditConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	BindingCacheSize int
	BindingCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RegistryConfig holds account registry settings
type RegistryConfig struct {
	ReloadInterval time.Duration // How often to reload the snapshot from storage
}

// HealthConfig holds health monitor settings
type HealthConfig struct {
	ProbeInterval      time.Duration // Background probe cycle period
	ProbeTimeout       time.Duration // Per-account probe deadline
	HealthyThreshold   int           // Consecutive successes to report healthy
	UnhealthyThreshold int           // Consecutive failures to report unhealthy
	HistorySize        int           // Bounded per-account probe history
}

// FailoverConfig holds failover manager settings
type FailoverConfig struct {
	FailureThreshold int           // Consecutive real-traffic failures before failover
	RecoveryWindow   time.Duration // Sustained healthy period before auto recovery
	CheckInterval    time.Duration // Recovery loop period
}

// ExecutorConfig holds execution coordinator settings
type ExecutorConfig struct {
	RequestTimeout time.Duration // Per-attempt executor deadline
	MaxRetries     int           // Alternate-candidate retries after the first attempt
	EnableFailover bool
}

// PerfConfig holds performance tracker settings
type PerfConfig struct {
	// WindowSize bounds the recent-outcome window per account.
	// 0 keeps cumulative counters with no decay.
	WindowSize int
	// EWMAAlpha weights the response-time moving average.
	EWMAAlpha float64
}

// SpendConfig holds cost accrual settings
type SpendConfig struct {
	Currency     string
	SyncInterval time.Duration // Redis -> Postgres snapshot period
}

// AuditConfig holds the decision/failover audit logger settings
type AuditConfig struct {
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration

	// Optional S3 archival of flushed audit batches
	S3Enabled bool
	S3Bucket  string
	S3Region  string
	S3Prefix  string
	NodeName  string
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvFloat(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:      getEnvString("HTTP_PORT", "8080"),
		JWTSecret:     []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		CredentialKey: getEnvString("CREDENTIAL_KEY", ""),
		Database: DatabaseConfig{
			URL:              dbURL,
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:  getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			BindingCacheSize: getEnvInt("CACHE_BINDING_SIZE", 500),
			BindingCacheTTL:  getEnvDuration("CACHE_BINDING_TTL", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Registry: RegistryConfig{
			ReloadInterval: getEnvDuration("REGISTRY_RELOAD_INTERVAL", 1*time.Minute),
		},
		Health: HealthConfig{
			ProbeInterval:      getEnvDuration("HEALTH_PROBE_INTERVAL", 30*time.Second),
			ProbeTimeout:       getEnvDuration("HEALTH_PROBE_TIMEOUT", 10*time.Second),
			HealthyThreshold:   getEnvInt("HEALTH_HEALTHY_THRESHOLD", 2),
			UnhealthyThreshold: getEnvInt("HEALTH_UNHEALTHY_THRESHOLD", 3),
			HistorySize:        getEnvInt("HEALTH_HISTORY_SIZE", 50),
		},
		Failover: FailoverConfig{
			FailureThreshold: getEnvInt("FAILOVER_FAILURE_THRESHOLD", 3),
			RecoveryWindow:   getEnvDuration("FAILOVER_RECOVERY_WINDOW", 1*time.Minute),
			CheckInterval:    getEnvDuration("FAILOVER_CHECK_INTERVAL", 15*time.Second),
		},
		Executor: ExecutorConfig{
			RequestTimeout: getEnvDuration("EXECUTOR_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:     getEnvInt("EXECUTOR_MAX_RETRIES", 1),
			EnableFailover: getEnvString("EXECUTOR_ENABLE_FAILOVER", "true") == "true",
		},
		Perf: PerfConfig{
			WindowSize: getEnvInt("PERF_WINDOW_SIZE", 0),
			EWMAAlpha:  getEnvFloat("PERF_EWMA_ALPHA", 0.3),
		},
		Spend: SpendConfig{
			Currency:     getEnvString("SPEND_CURRENCY", "USD"),
			SyncInterval: getEnvDuration("SPEND_SYNC_INTERVAL", 5*time.Minute),
		},
		Audit: AuditConfig{
			FilePathTemplate: getEnvString("AUDIT_FILE_PATH_TEMPLATE", "/var/log/genproxy/audit-%s.jsonl"),
			MaxSize:          getEnvInt64("AUDIT_MAX_SIZE", 10_485_760), // default 10 MB
			MaxFiles:         getEnvInt("AUDIT_MAX_FILES", 5),
			BufferSize:       getEnvInt("AUDIT_BUFFER_SIZE", 100),
			FlushInterval:    getEnvDuration("AUDIT_FLUSH_INTERVAL", 60*time.Second),
			S3Enabled:        getEnvString("AUDIT_S3_ENABLED", "false") == "true",
			S3Bucket:         getEnvString("AUDIT_S3_BUCKET", ""),
			S3Region:         getEnvString("AUDIT_S3_REGION", "us-east-1"),
			S3Prefix:         getEnvString("AUDIT_S3_PREFIX", "audit/"),
			NodeName:         getEnvString("NODE_NAME", "orchestrator-0"),
		},
	}

	return cfg, nil
}
