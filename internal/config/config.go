package config

import (
	"fmt"
	"time"
)

type AppConfig struct {
	Env                    string `mapstructure:"env"`
	Port                   int    `mapstructure:"port"`
	NodeID                 string `mapstructure:"node_id"`
	BaseURL                string `mapstructure:"base_url"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

func (a AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a AppConfig) IsDev() bool { return a.Env == "dev" || a.Env == "development" }

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
	RatePerSecond        int   `mapstructure:"rate_per_second"`
	Burst                int   `mapstructure:"burst"`
}

type RedisConfig struct {
	Addr               string `mapstructure:"addr"`
	Pass               string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	Prefix             string `mapstructure:"prefix"`
	PresenceTTLSeconds int    `mapstructure:"presence_ttl_seconds"`
	RelayChannel       string `mapstructure:"relay_channel"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

type KafkaConfig struct {
	Brokers             []string `mapstructure:"brokers"`
	TopicMessageSent    string   `mapstructure:"topic_message_sent"`
	TopicMessageCreated string   `mapstructure:"topic_message_created"`
	GroupID             string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL                        string `mapstructure:"url"`
	SubjectConversationCreated string `mapstructure:"subject_conversation_created"`
	SubjectConversationUpdated string `mapstructure:"subject_conversation_updated"`
	QueueGroup                 string `mapstructure:"queue_group"`
}

type MongoConfig struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type S3Config struct {
	Region            string `mapstructure:"region"`
	Bucket            string `mapstructure:"bucket"`
	Endpoint          string `mapstructure:"endpoint"`
	PublicRead        bool   `mapstructure:"public_read"`
	PresignTTLMinutes int    `mapstructure:"presign_ttl_minutes"`
}

type PushConfig struct {
	Enabled                bool   `mapstructure:"enabled"`
	BaseURL                string `mapstructure:"base_url"`
	IIDURL                 string `mapstructure:"iid_url"`
	ProjectID              string `mapstructure:"project_id"`
	ServerKey              string `mapstructure:"server_key"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	RetryMaxElapsedSeconds int    `mapstructure:"retry_max_elapsed_seconds"`
}

type BreakerConfig struct {
	MaxFailures int `mapstructure:"max_failures"`
	IntervalSec int `mapstructure:"interval_seconds"`
	TimeoutSec  int `mapstructure:"timeout_seconds"`
}

type UploadConfig struct {
	MaxFileSizeBytes int64 `mapstructure:"max_file_size_bytes"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	WS      WSConfig      `mapstructure:"ws"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	S3      S3Config      `mapstructure:"s3"`
	Push    PushConfig    `mapstructure:"push"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// derived
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	PresenceTTL     time.Duration `mapstructure:"-"`
	PresignTTL      time.Duration `mapstructure:"-"`
	TokenTTL        time.Duration `mapstructure:"-"`
	ShutdownTimeout time.Duration `mapstructure:"-"`
}
