package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"LatentTrader/pkg/util"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level      string            `yaml:"level" default:"info"`
		Format     string            `yaml:"format" default:"console"`
		Output     string            `yaml:"output" default:"stdout"`
		Components map[string]string `yaml:"components"`
		Collector  struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine struct {
		WindowSize      int     `yaml:"window_size" default:"90"`
		Clusters        int     `yaml:"clusters" default:"20"`
		Policy          string  `yaml:"policy" default:"dot_product"`
		Weight          float64 `yaml:"weight" default:"1"`
		Normalizer      string  `yaml:"normalizer" default:"zscore"`
		TypeFilter      string  `yaml:"type_filter" default:"all"`
		SetFilter       string  `yaml:"set_filter" default:"all"`
		Workers         int     `yaml:"workers"`
		Seed            uint64  `yaml:"seed"`
		MaxIterations   int     `yaml:"max_iterations" default:"500"`
		VolumeWeighting bool    `yaml:"volume_weighting"`
	} `yaml:"engine"`
	Agent struct {
		Product   string  `yaml:"product" default:"BTC-USD"`
		Cash      float64 `yaml:"cash" default:"100"`
		Asset     float64 `yaml:"asset" default:"1"`
		Capacity  int     `yaml:"capacity" default:"90"`
		SellQty   float64 `yaml:"sell_qty" default:"0.012"`
		BuyCash   float64 `yaml:"buy_cash" default:"3"`
		Policy    string  `yaml:"policy" default:"crossover"`
		Threshold float64 `yaml:"threshold"`
		Source    string  `yaml:"source" default:"websocket"`
		Throttle  struct {
			PerSecond float64  `yaml:"per_second"`
			Burst     int      `yaml:"burst" default:"10"`
			Kinds     []string `yaml:"kinds"`
		} `yaml:"throttle"`
		BufferSize int `yaml:"buffer_size" default:"4096"`
	} `yaml:"agent"`
	History struct {
		Source      string        `yaml:"source" default:"coinbase"`
		Granularity int           `yaml:"granularity" default:"60"`
		Lookback    time.Duration `yaml:"lookback" default:"24h"`
		Bootstrap   bool          `yaml:"bootstrap"`
	} `yaml:"history"`
	Coinbase struct {
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws-feed.exchange.coinbase.com"`
		RESTURL        string        `yaml:"rest_url" default:"https://api.exchange.coinbase.com"`
		Channels       []string      `yaml:"channels"`
		RatePerSecond  float64       `yaml:"rate_per_second" default:"3"`
		RateBurst      int           `yaml:"rate_burst" default:"1"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"1s"`
	} `yaml:"coinbase"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		IntentsTopic string   `yaml:"intents_topic" default:"latenttrader.intents"`
		AnomalyTopic string   `yaml:"anomaly_topic" default:"latenttrader.anomalies"`
		EventsTopic  string   `yaml:"events_topic" default:"coinbase.full"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id" default:"latenttrader-agent"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest"`
			Workers         int           `yaml:"workers" default:"1"`
			BufferSize      int           `yaml:"buffer_size" default:"1000"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic        string        `yaml:"dlq_topic"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		Table            string        `yaml:"table" default:"candles_1m"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Cache struct {
		Driver     string        `yaml:"driver" default:"layered"`
		MemorySize int           `yaml:"memory_size" default:"64"`
		MemoryTTL  time.Duration `yaml:"memory_ttl" default:"1m"`
		ModelTTL   time.Duration `yaml:"model_ttl" default:"168h"`
		LockTTL    time.Duration `yaml:"lock_ttl" default:"10m"`
	} `yaml:"cache"`
	Queue struct {
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		JobTimeout time.Duration `yaml:"job_timeout" default:"15m"`
	} `yaml:"queue"`
}

// Load reads and parses a YAML configuration file. Fields left empty in the
// file take their `default` tag.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML and applies defaults without validating.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment
// variables and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
	if v := getenv("PRODUCT"); v != "" {
		c.Agent.Product = v
	}
	if v := getenv("AGENT_SOURCE"); v != "" {
		c.Agent.Source = v
	}
	if v := getenv("AGENT_POLICY"); v != "" {
		c.Agent.Policy = v
	}
	c.Agent.Threshold = util.ParseFloatDefault(getenv("AGENT_THRESHOLD"), c.Agent.Threshold)
	if v := getenv("HISTORY_SOURCE"); v != "" {
		c.History.Source = v
	}
	c.History.Lookback = util.ParseDurationDefault(getenv("HISTORY_LOOKBACK"), c.History.Lookback)
	if v := util.SplitList(getenv("KAFKA_BROKERS")); len(v) > 0 {
		c.Kafka.Brokers = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Engine.WindowSize < 2 {
		return fmt.Errorf("engine.window_size must be at least 2, got %d", c.Engine.WindowSize)
	}
	if c.Engine.Clusters <= 0 {
		return fmt.Errorf("engine.clusters must be positive, got %d", c.Engine.Clusters)
	}
	if c.Agent.Product == "" {
		return fmt.Errorf("agent.product is required")
	}
	if c.Agent.Capacity <= 0 {
		return fmt.Errorf("agent.capacity must be positive, got %d", c.Agent.Capacity)
	}
	if c.Agent.SellQty <= 0 || c.Agent.BuyCash <= 0 {
		return fmt.Errorf("agent.sell_qty and agent.buy_cash must be positive")
	}
	if c.Agent.Cash < 0 || c.Agent.Asset < 0 {
		return fmt.Errorf("agent.cash and agent.asset cannot be negative")
	}
	if err := oneOf("agent.policy", c.Agent.Policy, "crossover", "latent_source"); err != nil {
		return err
	}
	if c.Agent.Policy == "latent_source" && c.Agent.Capacity < c.Engine.WindowSize {
		return fmt.Errorf("agent.capacity %d must hold engine.window_size %d", c.Agent.Capacity, c.Engine.WindowSize)
	}
	if err := oneOf("agent.source", c.Agent.Source, "websocket", "kafka"); err != nil {
		return err
	}
	if err := oneOf("history.source", c.History.Source, "coinbase", "clickhouse"); err != nil {
		return err
	}
	if err := oneOf("cache.driver", c.Cache.Driver, "memory", "redis", "layered"); err != nil {
		return err
	}
	if c.Agent.Source == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when agent.source is kafka")
	}
	if c.Agent.Source == "kafka" && c.Kafka.EventsTopic == "" {
		return fmt.Errorf("kafka.events_topic is required when agent.source is kafka")
	}
	return nil
}

func oneOf(field, v string, allowed ...string) error {
	if !slices.Contains(allowed, v) {
		return fmt.Errorf("%s must be one of %v, got '%s'", field, allowed, v)
	}
	return nil
}
