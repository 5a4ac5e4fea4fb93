package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/flow-market/pkg/config"
	"github.com/weiawesome/flow-market/pkg/database"
	"github.com/weiawesome/flow-market/pkg/log"
	"github.com/weiawesome/flow-market/pkg/pubsub"
	"github.com/weiawesome/flow-market/pkg/storage"
)

// DevSessionSecret is used when SECRET_KEY is unset. Never deploy with it.
const DevSessionSecret = "dev-secret-key-123"

type Config struct {
	src *viper.Viper

	Server    ServerConfig
	Database  database.Config
	Messages  MessagesConfig
	Session   SessionConfig
	WebSocket WebSocketConfig
	Relay     pubsub.Config
	Cache     CacheConfig
	Upload    UploadConfig
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	FeedLimit       int           `mapstructure:"feed_limit"`
	// CORSOrigins lists origins allowed to call the JSON API; "*" allows any.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type SessionConfig struct {
	Secret     string
	CookieName string        `mapstructure:"cookie_name"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	Secure     bool
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

// MessagesConfig picks the chat log backend: "sql" (the main database) or
// "cassandra".
type MessagesConfig struct {
	Store     string
	Cassandra CassandraConfig
}

type CassandraConfig struct {
	Hosts             []string
	Keyspace          string
	Consistency       string
	Username          string
	Password          string
	ReplicationFactor int           `mapstructure:"replication_factor"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	Timeout           time.Duration
}

// CacheConfig configures the message history cache. Empty RedisURL disables it.
type CacheConfig struct {
	RedisURL string `mapstructure:"redis_url"`
	Prefix   string
	TTL      time.Duration
}

type UploadConfig struct {
	ExternalURL   string        `mapstructure:"external_url"`
	ImgBBKey      string        `mapstructure:"imgbb_key"`
	ImgBBEndpoint string        `mapstructure:"imgbb_endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxSize       int64         `mapstructure:"max_size"`
	Storage       StorageConfig
}

// StorageConfig selects the object storage upload backend: "s3", "local" or empty.
type StorageConfig struct {
	Driver    string
	KeyPrefix string `mapstructure:"key_prefix"`
	Local     storage.LocalConfig
	S3        storage.S3Config
}

// OnLogLevelChange calls apply with log.level whenever the config file
// changes. It reports false when settings came from the environment only.
func (c *Config) OnLogLevelChange(apply func(level string)) bool {
	if c.src == nil {
		return false
	}
	return pkgconfig.Watch(c.src, func(v *viper.Viper) {
		apply(v.GetString("log.level"))
	})
}

// RelayEnabled reports whether cross-instance fan-out is configured.
func (c *Config) RelayEnabled() bool {
	return c.Relay.Driver != ""
}

var defaults = map[string]interface{}{
	"server.host":                     "0.0.0.0",
	"server.port":                     5000,
	"server.shutdown_timeout":         "15s",
	"server.feed_limit":               60,
	"server.cors_origins":             []string{"*"},
	"database.max_idle_conns":         5,
	"database.max_open_conns":         20,
	"database.conn_max_lifetime":      30,
	"database.log_level":              "warn",
	"session.secret":                  DevSessionSecret,
	"session.cookie_name":             "flow_session",
	"session.max_age":                 "720h",
	"session.secure":                  false,
	"websocket.ping_interval":         "25s",
	"websocket.pong_wait":             "60s",
	"websocket.write_wait":            "10s",
	"websocket.max_message_size":      8192,
	"websocket.send_buffer":           256,
	"relay.driver":                    "",
	"relay.redis.pool_size":           10,
	"relay.kafka.brokers":             "localhost:9092",
	"relay.kafka.group_id":            "market-relay",
	"relay.kafka.partitions":          4,
	"relay.kafka.topic":               pubsub.DefaultKafkaTopic,
	"messages.store":                  "sql",
	"messages.cassandra.hosts":        []string{"localhost:9042"},
	"messages.cassandra.keyspace":     "flow_market",
	"messages.cassandra.consistency":  "LOCAL_ONE",
	"messages.cassandra.timeout":      "5s",
	"cache.prefix":                    "market:history",
	"cache.ttl":                       "30s",
	"upload.imgbb_endpoint":           "https://api.imgbb.com/1/upload",
	"upload.timeout":                  "25s",
	"upload.max_size":                 10<<20,
	"upload.storage.key_prefix":       "products",
	"upload.storage.local.base_path":  "./media",
	"upload.storage.local.url_prefix": "/media",
	"log.level":                       "info",
	"log.service_name":                "flow-market",
}

var envNames = map[string]string{
	"server.port":                         "PORT",
	"server.cors_origins":                 "CORS_ORIGINS",
	"database.url":                        "DATABASE_URL",
	"session.secret":                      "SECRET_KEY",
	"session.secure":                      "SESSION_COOKIE_SECURE",
	"relay.driver":                        "RELAY_DRIVER",
	"relay.redis.url":                     "REDIS_URL",
	"relay.kafka.brokers":                 "KAFKA_BROKERS",
	"relay.kafka.group_id":                "KAFKA_GROUP_ID",
	"relay.kafka.topic":                   "KAFKA_TOPIC",
	"relay.kafka.instance_id":             "INSTANCE_ID",
	"relay.kafka.timeout":                 "KAFKA_TIMEOUT",
	"messages.store":                      "MESSAGE_STORE",
	"messages.cassandra.hosts":            "CASSANDRA_HOSTS",
	"messages.cassandra.keyspace":         "CASSANDRA_KEYSPACE",
	"messages.cassandra.username":         "CASSANDRA_USERNAME",
	"messages.cassandra.password":         "CASSANDRA_PASSWORD",
	"cache.redis_url":                     "CACHE_REDIS_URL",
	"upload.external_url":                 "EXTERNAL_UPLOAD_URL",
	"upload.imgbb_key":                    "IMGBB_API_KEY",
	"upload.storage.driver":               "UPLOAD_STORAGE_DRIVER",
	"upload.storage.s3.endpoint":          "S3_ENDPOINT",
	"upload.storage.s3.region":            "S3_REGION",
	"upload.storage.s3.bucket":            "S3_BUCKET",
	"upload.storage.s3.access_key_id":     "S3_ACCESS_KEY_ID",
	"upload.storage.s3.secret_access_key": "S3_SECRET_ACCESS_KEY",
	"upload.storage.s3.use_path_style":    "S3_USE_PATH_STYLE",
	"upload.storage.s3.public_url":        "S3_PUBLIC_URL",
	"upload.storage.s3.presign_ttl":       "S3_PRESIGN_TTL",
	"log.level":                           "LOG_LEVEL",
	"log.pretty":                          "LOG_PRETTY",
}

// Load reads ./config/config.yaml (or CONFIG_FILE) and the environment.
func Load() (*Config, error) {
	v, err := pkgconfig.Open(pkgconfig.Source{
		DotEnv:   []string{".env"},
		Name:     "config",
		Dirs:     []string{"./config", "."},
		FileEnv:  "CONFIG_FILE",
		Defaults: defaults,
		Env:      envNames,
	})
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.src = v

	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 15*time.Second)
	cfg.Session.MaxAge = pkgconfig.Duration(v, "session.max_age", 30*24*time.Hour)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Cache.TTL = pkgconfig.Duration(v, "cache.ttl", 30*time.Second)
	cfg.Upload.Timeout = pkgconfig.Duration(v, "upload.timeout", 25*time.Second)
	cfg.Relay.Kafka.Timeout = pkgconfig.Duration(v, "relay.kafka.timeout", pubsub.DefaultKafkaTimeout)

	// REDIS_URL alone turns the relay on, matching the single-variable deployment.
	if cfg.Relay.Driver == "" && cfg.Relay.Redis.URL != "" {
		cfg.Relay.Driver = pubsub.DriverRedis
	}

	return &cfg, nil
}
