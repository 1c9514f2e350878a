package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

// DefaultSystemPrompt frames the assistant for the platform it serves.
const DefaultSystemPrompt = `You are a helpful assistant for Tonarinet application.
In Korean it's "토나리넷". In Japanese it's "トナリネット".
Tonarinet is supporting service for the students study aboard and workers in foreign countries.
You should be friendly, professional, and provide accurate information.
Keep your responses concise and helpful.
Keep your responses not far away from the context of service of supporting foreign people. (like helping with visa, job, accommodation, language barrier, cultural differences, etc.)
If you don't know something, admit it rather than guessing.
if possible, respond in the language of the user's request.`

type Config struct {
	Server    ServerConfig
	Database  database.Config
	Redis     RedisConfig
	PubSub    PubSubConfig `mapstructure:"pubsub"`
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Assistant AssistantConfig
	LLM       LLMConfig `mapstructure:"llm"`
	Cache     CacheConfig
	Search    SearchConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type PubSubConfig struct {
	Driver string
	Kafka  pubsub.KafkaConfig
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	AccessTTL time.Duration `mapstructure:"access_ttl"`
}

type WebSocketConfig struct {
	PingInterval       time.Duration `mapstructure:"ping_interval"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	MaxMessageSize     int64         `mapstructure:"max_message_size"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	EnforceTokenExpiry bool          `mapstructure:"enforce_token_expiry"`
}

type AssistantConfig struct {
	Enabled           bool
	Workers           int
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Timeout           time.Duration `mapstructure:"timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	QueueKey          string        `mapstructure:"queue_key"`
	Placeholder       string
	DisplayName       string `mapstructure:"display_name"`
}

type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	MemoryWindow int           `mapstructure:"memory_window"`
	MemoryTTL    time.Duration `mapstructure:"memory_ttl"`
	MemoryPrefix string        `mapstructure:"memory_prefix"`
}

type CacheConfig struct {
	Prefix string
	TTL    time.Duration `mapstructure:"ttl"`
}

// SearchConfig points room search at Elasticsearch. When disabled, room
// search runs against the SQL store.
type SearchConfig struct {
	Enabled   bool
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
}

// PubSubBus returns the bus configuration, sharing the Redis connection settings.
func (c *Config) PubSubBus() pubsub.Config {
	return pubsub.Config{
		Driver: c.PubSub.Driver,
		Redis: pubsub.RedisConfig{
			Address:  c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
		Kafka: c.PubSub.Kafka,
	}
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chat")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "chat-server")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-chat")
	v.SetDefault("auth.access_ttl", "24h")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.enforce_token_expiry", false)
	v.SetDefault("assistant.enabled", true)
	v.SetDefault("assistant.workers", 4)
	v.SetDefault("assistant.max_attempts", 3)
	v.SetDefault("assistant.timeout", "60s")
	v.SetDefault("assistant.poll_interval", "1s")
	v.SetDefault("assistant.visibility_timeout", "2m")
	v.SetDefault("assistant.retry_backoff", "5s")
	v.SetDefault("assistant.queue_key", "chat:assistant")
	v.SetDefault("assistant.placeholder", "Generating a response...")
	v.SetDefault("assistant.display_name", "Assistant")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm.memory_window", 20)
	v.SetDefault("llm.memory_ttl", "168h")
	v.SetDefault("llm.memory_prefix", "chat:llm:memory")
	v.SetDefault("cache.prefix", "chat:room")
	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("search.enabled", false)
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "chat-rooms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-server")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.file_path", "DATABASE_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.instance_id", "KAFKA_INSTANCE_ID")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "OPENAI_MODEL")
	v.BindEnv("search.enabled", "SEARCH_ENABLED")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ReadTimeout = parseDuration(v, "server.read_timeout", 15*time.Second)
	cfg.Server.WriteTimeout = parseDuration(v, "server.write_timeout", 15*time.Second)
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.Auth.AccessTTL = parseDuration(v, "auth.access_ttl", 24*time.Hour)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 54*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Assistant.Timeout = parseDuration(v, "assistant.timeout", 60*time.Second)
	cfg.Assistant.PollInterval = parseDuration(v, "assistant.poll_interval", time.Second)
	cfg.Assistant.VisibilityTimeout = parseDuration(v, "assistant.visibility_timeout", 2*time.Minute)
	cfg.Assistant.RetryBackoff = parseDuration(v, "assistant.retry_backoff", 5*time.Second)
	cfg.LLM.MemoryTTL = parseDuration(v, "llm.memory_ttl", 168*time.Hour)
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 30*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
