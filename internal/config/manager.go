package config

import "github.com/rickgao/stayspot-realtime/internal/connection"

// ManagerConfig maps the server and connection sections onto the
// connection manager settings. A max_attempts of -1 retries forever.
func (c *ClientConfig) ManagerConfig() connection.ManagerConfig {
	maxAttempts := c.Connection.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	return connection.ManagerConfig{
		URL:                 c.Server.URL,
		Path:                c.Server.Path,
		Namespace:           c.Server.Namespace,
		BaseDelay:           c.Connection.BaseDelay,
		Multiplier:          c.Connection.Multiplier,
		MaxAttempts:         maxAttempts,
		MaxDelay:            c.Connection.MaxDelay,
		HeartbeatInterval:   c.Connection.HeartbeatInterval,
		HeartbeatStaleAfter: c.Connection.HeartbeatStaleAfter,
		ConnectTimeout:      c.Connection.ConnectTimeout,
		WriteTimeout:        c.Connection.WriteTimeout,
		ForceReconnectDelay: c.Connection.ForceReconnectDelay,
	}
}
