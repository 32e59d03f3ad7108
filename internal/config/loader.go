package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "RELAY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "production")
	v.SetDefault("app.port", 3001)
	v.SetDefault("app.node_id", "")
	v.SetDefault("app.base_url", "http://localhost:3001")
	v.SetDefault("app.shutdown_timeout_seconds", 10)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "chat-relay")
	v.SetDefault("jwt.ttl_minutes", 60)

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer", 256)
	v.SetDefault("ws.rate_per_second", 20)
	v.SetDefault("ws.burst", 40)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "relay")
	v.SetDefault("redis.presence_ttl_seconds", 120)
	v.SetDefault("redis.relay_channel", "relay:rooms")
	v.SetDefault("redis.rate_limit_per_minute", 120)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_message_sent", "chat.message.sent")
	v.SetDefault("kafka.topic_message_created", "chat.message.created")
	v.SetDefault("kafka.group_id", "chat-relay")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_conversation_created", "conversation.created")
	v.SetDefault("nats.subject_conversation_updated", "conversation.updated")
	v.SetDefault("nats.queue_group", "chat-relay")

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.db", "chat_relay")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "chat-relay-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.public_read", false)
	v.SetDefault("s3.presign_ttl_minutes", 15)

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.base_url", "https://fcm.googleapis.com")
	v.SetDefault("push.iid_url", "https://iid.googleapis.com")
	v.SetDefault("push.project_id", "")
	v.SetDefault("push.server_key", "")
	v.SetDefault("push.timeout_seconds", 10)
	v.SetDefault("push.retry_max_elapsed_seconds", 30)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.interval_seconds", 60)
	v.SetDefault("breaker.timeout_seconds", 30)

	v.SetDefault("upload.max_file_size_bytes", 100*1024*1024)

	v.SetDefault("metrics.enabled", true)
}

// Load reads .env, then the optional YAML file at path, then RELAY_* environment overrides.
// A missing file is not an error; every key has a default.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// comma separated broker lists come from the environment as one string
	if len(c.Kafka.Brokers) == 1 && strings.Contains(c.Kafka.Brokers[0], ",") {
		c.Kafka.Brokers = strings.Split(c.Kafka.Brokers[0], ",")
	}
	if c.App.NodeID == "" {
		host, _ := os.Hostname()
		c.App.NodeID = host
	}

	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) derive() {
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.PresenceTTL = time.Duration(c.Redis.PresenceTTLSeconds) * time.Second
	c.PresignTTL = time.Duration(c.S3.PresignTTLMinutes) * time.Minute
	c.TokenTTL = time.Duration(c.JWT.TTLMinutes) * time.Minute
	c.ShutdownTimeout = time.Duration(c.App.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app.port %d out of range", c.App.Port)
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("ws.send_buffer must be positive")
	}
	if c.WS.MaxMessageSizeBytes <= 0 {
		return errors.New("ws.max_message_size_bytes must be positive")
	}
	if c.WS.RatePerSecond <= 0 || c.WS.Burst <= 0 {
		return errors.New("ws.rate_per_second and ws.burst must be positive")
	}
	if c.Upload.MaxFileSizeBytes <= 0 {
		return errors.New("upload.max_file_size_bytes must be positive")
	}
	if c.NATS.URL != "" && c.NATS.QueueGroup == "" {
		return errors.New("nats.queue_group is required when nats.url is set")
	}
	if c.Push.Enabled && (c.Push.ProjectID == "" || c.Push.ServerKey == "") {
		return errors.New("push.project_id and push.server_key are required when push is enabled")
	}
	return nil
}
