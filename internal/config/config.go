package config

import "time"

type Config struct {
	Service  *ServiceConfig  `mapstructure:"service"`
	Logger   *LoggerConfig   `mapstructure:"logger"`
	Tracer   *TracerConfig   `mapstructure:"tracer"`
	Postgres *PostgresConfig `mapstructure:"postgres"`
	Redis    *RedisConfig    `mapstructure:"redis"`
	NATS     *NATSConfig     `mapstructure:"nats"`
	Auth     *AuthConfig     `mapstructure:"auth"`
	Realtime *RealtimeConfig `mapstructure:"realtime"`
	Calls    *CallsConfig    `mapstructure:"calls"`
	HTTP     *HTTPConfig     `mapstructure:"http"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Addr string `mapstructure:"addr"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracerConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Address     string  `mapstructure:"address"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RealtimeConfig struct {
	// RegistryBackend is memory, redis or nats.
	RegistryBackend string `mapstructure:"registry_backend"`
	// DatastoreDriver is postgres or memory.
	DatastoreDriver string `mapstructure:"datastore_driver"`
	// PresenceBackend holds presence sets and slowmode markers: redis or memory.
	PresenceBackend  string        `mapstructure:"presence_backend"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	ReadLimit        int64         `mapstructure:"read_limit"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	InboundRate      float64       `mapstructure:"inbound_rate"`
	InboundBurst     int           `mapstructure:"inbound_burst"`
	MaxMessageLength int           `mapstructure:"max_message_length"`
	PresenceTTL      time.Duration `mapstructure:"presence_ttl"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
}

type CallsConfig struct {
	RingTimeout   time.Duration `mapstructure:"ring_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type HTTPConfig struct {
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}
