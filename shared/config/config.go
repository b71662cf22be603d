package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	JWTIssuer         string
	JWTAudience       string
	JWKSURL           string
	JWKSTTLSeconds    int
	JWTClockSkewSec   int
	JWTPrivateKeyPath string
	TokenTTLMinutes   int

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	AuditEnabled bool

	KafkaBrokers  []string
	KafkaClientID string
	KafkaGroupID  string
	KafkaRetryMax int
	KafkaWriteMS  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	DueSoonScanSec     int
	DueSoonWindowHours int

	ReportCacheTTLSec int

	IdentityURL       string
	CustomerURL       string
	SalesURL          string
	OpportunityURL    string
	UpstreamTimeoutMS int
	UpstreamRetryMax  int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:                envRaw,
		ServiceName:        serviceNameDefault,
		HTTPPort:           httpPortDefault,
		LogLevel:           "info",
		ConfigPath:         strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:   30000,
		JWTIssuer:          strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(os.Getenv("JWT_AUDIENCE")),
		JWKSURL:            strings.TrimSpace(os.Getenv("JWKS_URL")),
		JWKSTTLSeconds:     300,
		JWTClockSkewSec:    60,
		JWTPrivateKeyPath:  strings.TrimSpace(os.Getenv("JWT_PRIVATE_KEY_PATH")),
		TokenTTLMinutes:    480,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:         10,
		DBMinConns:         1,
		DBConnMaxIdleSec:   300,
		DBConnMaxLifeSec:   1800,
		AuditEnabled:       false,
		KafkaRetryMax:      5,
		KafkaWriteMS:       5000,
		AsynqQueue:         "default",
		AsynqConcurrency:   10,
		DueSoonScanSec:     3600,
		DueSoonWindowHours: 24,
		ReportCacheTTLSec:  300,
		IdentityURL:        strings.TrimSpace(os.Getenv("IDENTITY_URL")),
		CustomerURL:        strings.TrimSpace(os.Getenv("CUSTOMER_URL")),
		SalesURL:           strings.TrimSpace(os.Getenv("SALES_URL")),
		OpportunityURL:     strings.TrimSpace(os.Getenv("OPPORTUNITY_URL")),
		UpstreamTimeoutMS:  3000,
		UpstreamRetryMax:   2,
		OtelEnabled:        false,
		OtelInsecure:       true,
		OtelSampleRatio:    1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	// Default the JWKS endpoint off the issuer when not set explicitly.
	if cfg.JWTIssuer != "" && strings.TrimSpace(cfg.JWKSURL) == "" {
		cfg.JWKSURL = strings.TrimRight(cfg.JWTIssuer, "/") + "/.well-known/jwks.json"
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.JWKSTTLSeconds <= 0 {
		problems = append(problems, Problem{Field: "JWKS_CACHE_TTL_SECONDS", Message: "JWKS_CACHE_TTL_SECONDS must be > 0"})
		cfg.JWKSTTLSeconds = 300
	}
	if cfg.JWTClockSkewSec < 0 {
		problems = append(problems, Problem{Field: "JWT_CLOCK_SKEW_SECONDS", Message: "JWT_CLOCK_SKEW_SECONDS must be >= 0"})
		cfg.JWTClockSkewSec = 60
	}
	if cfg.TokenTTLMinutes <= 0 {
		problems = append(problems, Problem{Field: "TOKEN_TTL_MINUTES", Message: "TOKEN_TTL_MINUTES must be > 0"})
		cfg.TokenTTLMinutes = 480
	}
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		problems = append(problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		problems = append(problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.AsynqConcurrency <= 0 {
		problems = append(problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.DueSoonScanSec <= 0 {
		problems = append(problems, Problem{Field: "DUE_SOON_SCAN_INTERVAL_SECONDS", Message: "DUE_SOON_SCAN_INTERVAL_SECONDS must be > 0"})
		cfg.DueSoonScanSec = 3600
	}
	if cfg.DueSoonWindowHours <= 0 {
		problems = append(problems, Problem{Field: "DUE_SOON_WINDOW_HOURS", Message: "DUE_SOON_WINDOW_HOURS must be > 0"})
		cfg.DueSoonWindowHours = 24
	}
	if cfg.ReportCacheTTLSec <= 0 {
		problems = append(problems, Problem{Field: "REPORT_CACHE_TTL_SECONDS", Message: "REPORT_CACHE_TTL_SECONDS must be > 0"})
		cfg.ReportCacheTTLSec = 300
	}
	if cfg.UpstreamTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "UPSTREAM_TIMEOUT_MS", Message: "UPSTREAM_TIMEOUT_MS must be > 0"})
		cfg.UpstreamTimeoutMS = 3000
	}
	if cfg.UpstreamRetryMax < 0 {
		problems = append(problems, Problem{Field: "UPSTREAM_RETRY_MAX", Message: "UPSTREAM_RETRY_MAX must be >= 0"})
		cfg.UpstreamRetryMax = 2
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}

	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil || p <= 0 || p > 65535 {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		} else {
			cfg.HTTPPort = p
		}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	setIntEnv(cfg, problems, "REQUEST_TIMEOUT_MS", func(c *Config, n int) { c.RequestTimeoutMS = n })

	if v := strings.TrimSpace(os.Getenv("JWT_ISSUER")); v != "" {
		cfg.JWTIssuer = v
	}
	if v := strings.TrimSpace(os.Getenv("JWT_AUDIENCE")); v != "" {
		cfg.JWTAudience = v
	}
	if v := strings.TrimSpace(os.Getenv("JWKS_URL")); v != "" {
		cfg.JWKSURL = v
	}
	setIntEnv(cfg, problems, "JWKS_CACHE_TTL_SECONDS", func(c *Config, n int) { c.JWKSTTLSeconds = n })
	setIntEnv(cfg, problems, "JWT_CLOCK_SKEW_SECONDS", func(c *Config, n int) { c.JWTClockSkewSec = n })
	if v := strings.TrimSpace(os.Getenv("JWT_PRIVATE_KEY_PATH")); v != "" {
		cfg.JWTPrivateKeyPath = v
	}
	setIntEnv(cfg, problems, "TOKEN_TTL_MINUTES", func(c *Config, n int) { c.TokenTTLMinutes = n })

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	setIntEnv(cfg, problems, "DB_MAX_CONNS", func(c *Config, n int) { c.DBMaxConns = n })
	setIntEnv(cfg, problems, "DB_MIN_CONNS", func(c *Config, n int) { c.DBMinConns = n })
	setIntEnv(cfg, problems, "DB_CONN_MAX_IDLE_SECONDS", func(c *Config, n int) { c.DBConnMaxIdleSec = n })
	setIntEnv(cfg, problems, "DB_CONN_MAX_LIFETIME_SECONDS", func(c *Config, n int) { c.DBConnMaxLifeSec = n })

	setBoolEnv(cfg, problems, "AUDIT_ENABLED", func(c *Config, b bool) { c.AuditEnabled = b })

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")); v != "" {
		cfg.KafkaClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_CONSUMER_GROUP")); v != "" {
		cfg.KafkaGroupID = v
	}
	setIntEnv(cfg, problems, "KAFKA_RETRY_MAX", func(c *Config, n int) { c.KafkaRetryMax = n })
	setIntEnv(cfg, problems, "KAFKA_WRITE_TIMEOUT_MS", func(c *Config, n int) { c.KafkaWriteMS = n })

	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_PASSWORD")); v != "" {
		cfg.RedisPassword = v
	}
	setIntEnv(cfg, problems, "REDIS_DB", func(c *Config, n int) { c.RedisDB = n })

	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")); v != "" {
		cfg.AsynqRedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ASYNQ_REDIS_PASSWORD")); v != "" {
		cfg.AsynqRedisPass = v
	}
	setIntEnv(cfg, problems, "ASYNQ_REDIS_DB", func(c *Config, n int) { c.AsynqRedisDB = n })
	if v := strings.TrimSpace(os.Getenv("ASYNQ_QUEUE")); v != "" {
		cfg.AsynqQueue = v
	}
	setIntEnv(cfg, problems, "ASYNQ_CONCURRENCY", func(c *Config, n int) { c.AsynqConcurrency = n })

	setIntEnv(cfg, problems, "DUE_SOON_SCAN_INTERVAL_SECONDS", func(c *Config, n int) { c.DueSoonScanSec = n })
	setIntEnv(cfg, problems, "DUE_SOON_WINDOW_HOURS", func(c *Config, n int) { c.DueSoonWindowHours = n })
	setIntEnv(cfg, problems, "REPORT_CACHE_TTL_SECONDS", func(c *Config, n int) { c.ReportCacheTTLSec = n })

	if v := strings.TrimSpace(os.Getenv("IDENTITY_URL")); v != "" {
		cfg.IdentityURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CUSTOMER_URL")); v != "" {
		cfg.CustomerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SALES_URL")); v != "" {
		cfg.SalesURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPPORTUNITY_URL")); v != "" {
		cfg.OpportunityURL = v
	}
	setIntEnv(cfg, problems, "UPSTREAM_TIMEOUT_MS", func(c *Config, n int) { c.UpstreamTimeoutMS = n })
	setIntEnv(cfg, problems, "UPSTREAM_RETRY_MAX", func(c *Config, n int) { c.UpstreamRetryMax = n })

	setBoolEnv(cfg, problems, "OTEL_ENABLED", func(c *Config, b bool) { c.OtelEnabled = b })
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OtelEndpoint = v
	}
	setBoolEnv(cfg, problems, "OTEL_EXPORTER_OTLP_INSECURE", func(c *Config, b bool) { c.OtelInsecure = b })
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLE_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
		} else {
			cfg.OtelSampleRatio = f
		}
	}
}

func setIntEnv(cfg *Config, problems *[]Problem, key string, assign func(*Config, int)) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	assign(cfg, n)
}

func setBoolEnv(cfg *Config, problems *[]Problem, key string, assign func(*Config, bool)) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, ok := asBool(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		return
	}
	assign(cfg, b)
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch key {
		case "ENV":
			if s, ok := v.(string); ok {
				cfg.Env = strings.TrimSpace(s)
			}
		case "SERVICE_NAME":
			applyStringKey(v, func(s string) { cfg.ServiceName = s })
		case "HTTP_PORT":
			p, ok := asInt(v)
			if !ok || p <= 0 || p > 65535 {
				*problems = append(*problems, Problem{Field: key, Message: "HTTP_PORT must be 1-65535"})
			} else {
				cfg.HTTPPort = p
			}
		case "LOG_LEVEL":
			applyStringKey(v, func(s string) { cfg.LogLevel = s })
		case "REQUEST_TIMEOUT_MS":
			applyIntKey(key, v, problems, func(n int) { cfg.RequestTimeoutMS = n })
		case "JWT_ISSUER":
			applyStringKey(v, func(s string) { cfg.JWTIssuer = s })
		case "JWT_AUDIENCE":
			applyStringKey(v, func(s string) { cfg.JWTAudience = s })
		case "JWKS_URL":
			applyStringKey(v, func(s string) { cfg.JWKSURL = s })
		case "JWKS_CACHE_TTL_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.JWKSTTLSeconds = n })
		case "JWT_CLOCK_SKEW_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.JWTClockSkewSec = n })
		case "JWT_PRIVATE_KEY_PATH":
			applyStringKey(v, func(s string) { cfg.JWTPrivateKeyPath = s })
		case "TOKEN_TTL_MINUTES":
			applyIntKey(key, v, problems, func(n int) { cfg.TokenTTLMinutes = n })
		case "DATABASE_URL":
			applyStringKey(v, func(s string) { cfg.DatabaseURL = s })
		case "DB_MAX_CONNS":
			applyIntKey(key, v, problems, func(n int) { cfg.DBMaxConns = n })
		case "DB_MIN_CONNS":
			applyIntKey(key, v, problems, func(n int) { cfg.DBMinConns = n })
		case "DB_CONN_MAX_IDLE_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.DBConnMaxIdleSec = n })
		case "DB_CONN_MAX_LIFETIME_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.DBConnMaxLifeSec = n })
		case "AUDIT_ENABLED":
			applyBoolKey(key, v, problems, func(b bool) { cfg.AuditEnabled = b })
		case "KAFKA_BROKERS":
			if s, ok := v.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			} else if arr, ok := v.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(arr)
			}
		case "KAFKA_CLIENT_ID":
			applyStringKey(v, func(s string) { cfg.KafkaClientID = s })
		case "KAFKA_CONSUMER_GROUP":
			applyStringKey(v, func(s string) { cfg.KafkaGroupID = s })
		case "KAFKA_RETRY_MAX":
			applyIntKey(key, v, problems, func(n int) { cfg.KafkaRetryMax = n })
		case "KAFKA_WRITE_TIMEOUT_MS":
			applyIntKey(key, v, problems, func(n int) { cfg.KafkaWriteMS = n })
		case "REDIS_ADDR":
			applyStringKey(v, func(s string) { cfg.RedisAddr = s })
		case "REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.RedisPassword = s
			}
		case "REDIS_DB":
			applyIntKey(key, v, problems, func(n int) { cfg.RedisDB = n })
		case "ASYNQ_REDIS_ADDR":
			applyStringKey(v, func(s string) { cfg.AsynqRedisAddr = s })
		case "ASYNQ_REDIS_PASSWORD":
			if s, ok := v.(string); ok {
				cfg.AsynqRedisPass = s
			}
		case "ASYNQ_REDIS_DB":
			applyIntKey(key, v, problems, func(n int) { cfg.AsynqRedisDB = n })
		case "ASYNQ_QUEUE":
			applyStringKey(v, func(s string) { cfg.AsynqQueue = s })
		case "ASYNQ_CONCURRENCY":
			applyIntKey(key, v, problems, func(n int) { cfg.AsynqConcurrency = n })
		case "DUE_SOON_SCAN_INTERVAL_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.DueSoonScanSec = n })
		case "DUE_SOON_WINDOW_HOURS":
			applyIntKey(key, v, problems, func(n int) { cfg.DueSoonWindowHours = n })
		case "REPORT_CACHE_TTL_SECONDS":
			applyIntKey(key, v, problems, func(n int) { cfg.ReportCacheTTLSec = n })
		case "IDENTITY_URL":
			applyStringKey(v, func(s string) { cfg.IdentityURL = s })
		case "CUSTOMER_URL":
			applyStringKey(v, func(s string) { cfg.CustomerURL = s })
		case "SALES_URL":
			applyStringKey(v, func(s string) { cfg.SalesURL = s })
		case "OPPORTUNITY_URL":
			applyStringKey(v, func(s string) { cfg.OpportunityURL = s })
		case "UPSTREAM_TIMEOUT_MS":
			applyIntKey(key, v, problems, func(n int) { cfg.UpstreamTimeoutMS = n })
		case "UPSTREAM_RETRY_MAX":
			applyIntKey(key, v, problems, func(n int) { cfg.UpstreamRetryMax = n })
		case "OTEL_ENABLED":
			applyBoolKey(key, v, problems, func(b bool) { cfg.OtelEnabled = b })
		case "OTEL_EXPORTER_OTLP_ENDPOINT":
			applyStringKey(v, func(s string) { cfg.OtelEndpoint = s })
		case "OTEL_EXPORTER_OTLP_INSECURE":
			applyBoolKey(key, v, problems, func(b bool) { cfg.OtelInsecure = b })
		case "OTEL_SAMPLE_RATIO":
			if f, ok := asFloat(v); ok {
				cfg.OtelSampleRatio = f
			} else {
				*problems = append(*problems, Problem{Field: key, Message: "OTEL_SAMPLE_RATIO must be a number"})
			}
		}
	}
}

func applyStringKey(v any, assign func(string)) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		assign(strings.TrimSpace(s))
	}
}

func applyIntKey(key string, v any, problems *[]Problem, assign func(int)) {
	n, ok := asInt(v)
	if !ok {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	assign(n)
}

func applyBoolKey(key string, v any, problems *[]Problem, assign func(bool)) {
	switch t := v.(type) {
	case bool:
		assign(t)
	case string:
		if b, ok := asBool(t); ok {
			assign(b)
		} else {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		}
	default:
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
