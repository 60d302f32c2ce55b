package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	OSRM     OSRMConfig     `yaml:"osrm"`
	RouteBox RouteBoxConfig `yaml:"routebox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	JourneyEventsTopicName   string `yaml:"journey_events_topic_name"`
	DriverPositionsTopicName string `yaml:"driver_positions_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type OSRMConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

type RouteBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	MatrixCacheTTLSeconds   int `yaml:"matrix_cache_ttl_seconds"`
	PositionTTLSeconds      int `yaml:"position_ttl_seconds"`
	SolveTimeoutSeconds     int `yaml:"solve_timeout_seconds"`
	ExactSearchLimit        int `yaml:"exact_search_limit"`
	PriorityTieTolerancePct int `yaml:"priority_tie_tolerance_pct"`

	// Journey execution thresholds (minutes).
	DelayReasonThresholdMinutes int `yaml:"delay_reason_threshold_minutes"`
	AutoReplanThresholdMinutes  int `yaml:"auto_replan_threshold_minutes"`
	ReplanCooldownMinutes       int `yaml:"replan_cooldown_minutes"`

	WatchdogHTTPAddr            string `yaml:"watchdog_http_addr"`
	WatchdogPollIntervalSeconds int    `yaml:"watchdog_poll_interval_seconds"`
	WatchdogBatchSize           int    `yaml:"watchdog_batch_size"`
	WatchdogConcurrency         int    `yaml:"watchdog_concurrency"`
	WatchdogLeaseSeconds        int    `yaml:"watchdog_lease_seconds"`
	WatchdogRateLimitPerMinute  int    `yaml:"watchdog_rate_limit_per_minute"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.RouteBox.SolveTimeoutSeconds <= 0 {
		c.RouteBox.SolveTimeoutSeconds = 30
	}
	if c.RouteBox.PriorityTieTolerancePct <= 0 {
		c.RouteBox.PriorityTieTolerancePct = 5
	}
	if c.RouteBox.DelayReasonThresholdMinutes <= 0 {
		c.RouteBox.DelayReasonThresholdMinutes = 15
	}
	if c.RouteBox.AutoReplanThresholdMinutes <= 0 {
		c.RouteBox.AutoReplanThresholdMinutes = 20
	}
	if c.RouteBox.ReplanCooldownMinutes <= 0 {
		c.RouteBox.ReplanCooldownMinutes = 10
	}
	if c.RouteBox.PositionTTLSeconds <= 0 {
		c.RouteBox.PositionTTLSeconds = 600
	}
	if c.RouteBox.MatrixCacheTTLSeconds <= 0 {
		c.RouteBox.MatrixCacheTTLSeconds = 300
	}
}
