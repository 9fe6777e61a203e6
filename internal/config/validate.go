package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *ClientConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("server.url %q is not a valid url", c.Server.URL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server.url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if ns := c.Server.Namespace; ns != "" && ns[0] != '/' {
		return fmt.Errorf("server.namespace must start with /, got %q", c.Server.Namespace)
	}

	if c.Connection.BaseDelay <= 0 {
		return errors.New("connection.base_delay must be > 0")
	}
	if c.Connection.Multiplier < 1 {
		return fmt.Errorf("connection.multiplier must be >= 1, got %g", c.Connection.Multiplier)
	}
	if c.Connection.MaxAttempts < -1 {
		return errors.New("connection.max_attempts must be >= -1")
	}
	if c.Connection.MaxDelay < 0 {
		return errors.New("connection.max_delay must be >= 0")
	}
	if c.Connection.MaxDelay > 0 && c.Connection.MaxDelay < c.Connection.BaseDelay {
		return fmt.Errorf("connection.max_delay (%v) cannot be below base_delay (%v)", c.Connection.MaxDelay, c.Connection.BaseDelay)
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return errors.New("connection.heartbeat_interval must be > 0")
	}
	if c.Connection.HeartbeatStaleAfter < 0 {
		return errors.New("connection.heartbeat_stale_after must be >= 0")
	}
	if c.Connection.HeartbeatStaleAfter > 0 && c.Connection.HeartbeatStaleAfter <= c.Connection.HeartbeatInterval {
		return fmt.Errorf("connection.heartbeat_stale_after (%v) must exceed heartbeat_interval (%v)",
			c.Connection.HeartbeatStaleAfter, c.Connection.HeartbeatInterval)
	}

	if c.Events.BufferSize < 1 {
		return errors.New("events.buffer_size must be >= 1")
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.FlushInterval <= 0 {
			return errors.New("journal.flush_interval must be > 0")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
