package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SkyZonDev/scrappex/internal/auth"
	"github.com/SkyZonDev/scrappex/internal/race"
)

// ShopConfig identifies the remote shop and the buyer account.
type ShopConfig struct {
	BaseURL     string
	Credentials auth.Credentials
	LoginPath   string
}

// StoreConfig selects and configures the batch registry backend.
type StoreConfig struct {
	Backend        string
	TTL            time.Duration
	SweepInterval  time.Duration
	DynamoTable    string
	DynamoEndpoint string
	AWSRegion      string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
}

// KafkaConfig holds the queue pipeline settings.
type KafkaConfig struct {
	Brokers        []string
	BatchTopic     string
	ScheduledTopic string
	WorkerGroup    string
	SchedulerGroup string
	ScheduleLead   time.Duration
}

// NotifyConfig enables the batch summary e-mail when both fields are set.
type NotifyConfig struct {
	FromEmail string
	ToEmail   string
}

func (n NotifyConfig) Enabled() bool { return n.FromEmail != "" && n.ToEmail != "" }

// Config is the whole runtime configuration shared by every binary.
type Config struct {
	Environment string
	LogLevel    string
	APIAddr     string
	MetricsAddr string
	WorkerID    string
	Launcher    string
	JournalPath string

	Shop   ShopConfig
	Race   race.Config
	Pool   auth.PoolConfig
	Store  StoreConfig
	Kafka  KafkaConfig
	Notify NotifyConfig
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv builds a Config from environment variables without validating it.
func FromEnv() Config {
	rd := race.DefaultConfig()
	pd := auth.DefaultPoolConfig()
	password := GetString("PASSWORD", "")

	tieBreak, err := race.ParsePolicy(GetString("RACE_TIEBREAK", ""))
	if err != nil {
		tieBreak = race.Policy(GetString("RACE_TIEBREAK", ""))
	}

	return Config{
		Environment: GetString("APP_ENV", "development"),
		LogLevel:    GetString("LOG_LEVEL", "info"),
		APIAddr:     GetString("API_ADDR", ":8000"),
		MetricsAddr: GetString("METRICS_ADDR", ""),
		WorkerID:    GetString("WORKER_ID", "worker-1"),
		Launcher:    strings.ToLower(GetString("LAUNCHER", "inprocess")),
		JournalPath: GetString("JOURNAL_PATH", ""),
		Shop: ShopConfig{
			BaseURL: GetString("BASE_URL", ""),
			Credentials: auth.Credentials{
				Login:     GetString("LOGIN", ""),
				Password:  password,
				BuyerCode: GetString("BUYER_CODE", password),
			},
			LoginPath: GetString("LOGIN_PATH", rd.LoginPath),
		},
		Race: race.Config{
			Attempts:        GetInt("RACE_ATTEMPTS", rd.Attempts),
			AttemptTimeout:  GetDuration("RACE_ATTEMPT_TIMEOUT", rd.AttemptTimeout),
			PurchasePath:    GetString("RACE_PURCHASE_PATH", rd.PurchasePath),
			MaxBodyBytes:    rd.MaxBodyBytes,
			CoarseThreshold: GetDuration("RACE_COARSE_THRESHOLD", rd.CoarseThreshold),
			CoarseInterval:  GetDuration("RACE_COARSE_INTERVAL", rd.CoarseInterval),
			FineStep:        GetDuration("RACE_FINE_STEP", rd.FineStep),
			SpinWindow:      GetDuration("RACE_SPIN_WINDOW", rd.SpinWindow),
			WarmupPath:      GetString("RACE_WARMUP_PATH", rd.WarmupPath),
			WarmupTimeout:   GetDuration("RACE_WARMUP_TIMEOUT", rd.WarmupTimeout),
			SuccessStatuses: GetList("RACE_SUCCESS_STATUSES", rd.SuccessStatuses),
			LoginPath:       GetString("LOGIN_PATH", rd.LoginPath),
			TieBreak:        tieBreak,
		},
		Pool: auth.PoolConfig{
			MaxIdleConns:        GetInt("POOL_MAX_CONNS", pd.MaxIdleConns),
			MaxIdleConnsPerHost: GetInt("POOL_MAX_CONNS_PER_HOST", pd.MaxIdleConnsPerHost),
			MaxConnsPerHost:     GetInt("POOL_MAX_CONNS_PER_HOST", pd.MaxConnsPerHost),
			IdleConnTimeout:     GetDuration("POOL_IDLE_TIMEOUT", pd.IdleConnTimeout),
			TLSHandshakeTimeout: pd.TLSHandshakeTimeout,
			InsecureSkipVerify:  GetBool("POOL_INSECURE_TLS", false),
			UserAgent:           GetString("POOL_USER_AGENT", pd.UserAgent),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(GetString("STORE_BACKEND", "memory")),
			TTL:            GetDuration("BATCH_TTL", 24*time.Hour),
			SweepInterval:  GetDuration("BATCH_SWEEP_INTERVAL", time.Minute),
			DynamoTable:    GetString("DYNAMO_TABLE", "scrappex-batches"),
			DynamoEndpoint: GetString("DYNAMO_ENDPOINT", ""),
			AWSRegion:      GetString("AWS_REGION", "eu-west-3"),
			RedisAddr:      GetString("REDIS_ADDR", "localhost:6379"),
			RedisPassword:  GetString("REDIS_PASSWORD", ""),
			RedisDB:        GetInt("REDIS_DB", 0),
			RedisPrefix:    GetString("REDIS_PREFIX", "scrappex"),
		},
		Kafka: KafkaConfig{
			Brokers:        GetList("KAFKA_BROKERS", []string{"localhost:9092"}),
			BatchTopic:     GetString("KAFKA_TOPIC_BATCHES", "scrappex-batches"),
			ScheduledTopic: GetString("KAFKA_TOPIC_SCHEDULED", "scrappex-scheduled"),
			WorkerGroup:    GetString("KAFKA_GROUP_ID", "scrappex-workers"),
			SchedulerGroup: GetString("KAFKA_SCHEDULER_GROUP", "scrappex-scheduler"),
			ScheduleLead:   GetDuration("SCHEDULE_LEAD", 60*time.Second),
		},
		Notify: NotifyConfig{
			FromEmail: GetString("SES_FROM_EMAIL", ""),
			ToEmail:   GetString("NOTIFY_EMAIL", ""),
		},
	}
}

// Validate checks the settings every binary depends on.
func (c Config) Validate() error {
	var errs []error
	if c.Shop.BaseURL == "" {
		errs = append(errs, errors.New("BASE_URL is required"))
	} else if u, err := url.Parse(c.Shop.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BASE_URL %q is not an absolute url", c.Shop.BaseURL))
	}
	if c.Shop.Credentials.Login == "" {
		errs = append(errs, errors.New("LOGIN is required"))
	}
	if c.Shop.Credentials.Password == "" {
		errs = append(errs, errors.New("PASSWORD is required"))
	}
	if err := c.Race.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Backend {
	case "memory", "dynamo", "redis":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q must be memory, dynamo or redis", c.Store.Backend))
	}
	switch c.Launcher {
	case "inprocess", "queue":
	default:
		errs = append(errs, fmt.Errorf("LAUNCHER %q must be inprocess or queue", c.Launcher))
	}
	return errors.Join(errs...)
}
