package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID          = "realtime"
	DefaultServerURL           = "http://localhost:5000"
	DefaultServerPath          = "/socket.io/"
	DefaultNamespace           = "/"
	DefaultTokenEnv            = "STAYSPOT_TOKEN"
	DefaultBaseDelay           = 1 * time.Second
	DefaultMultiplier          = 2.0
	DefaultMaxAttempts         = 5
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultConnectTimeout      = 20 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultForceReconnectDelay = 1 * time.Second
	DefaultEventBufferSize     = 1000
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 4
	DefaultMinConns            = 1
	DefaultJournalBatchSize    = 100
	DefaultJournalFlush        = 1 * time.Second
	DefaultJournalBufferSize   = 1000
	DefaultStatusPort          = 8081
)

func (c *ClientConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultServerPath
	}
	if c.Server.Namespace == "" {
		c.Server.Namespace = DefaultNamespace
	}

	// Auth defaults
	if c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = DefaultTokenEnv
	}

	// Connection defaults
	if c.Connection.BaseDelay == 0 {
		c.Connection.BaseDelay = DefaultBaseDelay
	}
	if c.Connection.Multiplier == 0 {
		c.Connection.Multiplier = DefaultMultiplier
	}
	if c.Connection.MaxAttempts == 0 {
		c.Connection.MaxAttempts = DefaultMaxAttempts
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.ConnectTimeout == 0 {
		c.Connection.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.ForceReconnectDelay == 0 {
		c.Connection.ForceReconnectDelay = DefaultForceReconnectDelay
	}

	if c.Events.BufferSize == 0 {
		c.Events.BufferSize = DefaultEventBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultJournalBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultJournalFlush
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultJournalBufferSize
	}

	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
