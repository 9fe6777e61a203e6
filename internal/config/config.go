package config

import "time"

// ClientConfig is the root configuration for a realtime client instance.
type ClientConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Rooms      RoomsConfig      `yaml:"rooms"`
	Events     EventsConfig     `yaml:"events"`
	Database   DatabaseConfig   `yaml:"database"`
	Journal    JournalConfig    `yaml:"journal"`
	Status     StatusConfig     `yaml:"status"`
}

// InstanceConfig identifies this client in logs and the journal.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig locates the realtime server.
type ServerConfig struct {
	URL       string `yaml:"url"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// AuthConfig holds the credentials source. The token is taken from Token,
// then the TokenEnv variable, then TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenEnv  string `yaml:"token_env"`
	TokenFile string `yaml:"token_file"`
	UserID    string `yaml:"user_id"`    // Falls back to the JWT claims
	CompanyID string `yaml:"company_id"` // Falls back to the JWT claims
}

// ConnectionConfig holds reconnection and heartbeat settings.
type ConnectionConfig struct {
	BaseDelay           time.Duration `yaml:"base_delay"`
	Multiplier          float64       `yaml:"multiplier"`
	MaxAttempts         int           `yaml:"max_attempts"` // -1 retries forever
	MaxDelay            time.Duration `yaml:"max_delay"`    // 0 leaves backoff uncapped
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	HeartbeatStaleAfter time.Duration `yaml:"heartbeat_stale_after"` // 0 disables
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	ForceReconnectDelay time.Duration `yaml:"force_reconnect_delay"`
}

// RoomsConfig lists rooms joined on startup.
type RoomsConfig struct {
	Join       []string `yaml:"join"`
	Properties []string `yaml:"properties"` // Joined as property_<id>
	Team       bool     `yaml:"team"`       // Join company_<companyId>
}

// EventsConfig lists events printed by the tail.
type EventsConfig struct {
	Tail       []string `yaml:"tail"`
	BufferSize int      `yaml:"buffer_size"`
}

// DatabaseConfig holds the optional PostgreSQL status journal connection.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds status journal writer settings.
type JournalConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// StatusConfig holds the HTTP status endpoint settings.
type StatusConfig struct {
	Port int `yaml:"port"`
}
