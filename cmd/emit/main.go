// Command emit connects to the realtime server, emits one event and exits.
//
//	emit -event send_message -data '{"room":"company_9","message":"hi"}'
//	emit -event join_room -data '{"room":"property_7"}' -ack
//	emit -event get_status -reply status -timeout 5s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rickgao/stayspot-realtime/internal/auth"
	"github.com/rickgao/stayspot-realtime/internal/config"
	"github.com/rickgao/stayspot-realtime/internal/connection"
	"github.com/rickgao/stayspot-realtime/internal/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	event := flag.String("event", "", "event name to emit")
	data := flag.String("data", "{}", "JSON payload")
	ack := flag.Bool("ack", false, "wait for the server acknowledgement")
	reply := flag.String("reply", "", "wait for this event as the reply")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if err := run(*configPath, *event, *data, *ack, *reply, *timeout, logger); err != nil {
		fmt.Fprintln(os.Stderr, "emit:", err)
		os.Exit(1)
	}
}

func run(configPath, event, data string, ack bool, reply string, timeout time.Duration, logger *slog.Logger) error {
	if event == "" {
		return errors.New("-event is required")
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("-data is not valid JSON: %s", data)
	}
	payload := json.RawMessage(data)

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(configPath); err != nil {
			return err
		}
	}

	creds, err := auth.LoadCredentials(auth.Source{
		Token:     cfg.Auth.Token,
		TokenEnv:  cfg.Auth.TokenEnv,
		TokenFile: cfg.Auth.TokenFile,
		UserID:    cfg.Auth.UserID,
		CompanyID: cfg.Auth.CompanyID,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	mgrCfg := cfg.ManagerConfig()
	mgrCfg.MaxAttempts = 1
	mgr := connection.NewManager(mgrCfg, connection.NewWebSocketTransport, logger)
	defer mgr.Close()

	if err := connect(ctx, mgr, creds); err != nil {
		return err
	}

	gw := gateway.New(mgr, logger)
	defer gw.Close()

	switch {
	case reply != "":
		resp, err := gw.Request(ctx, event, payload, reply)
		if err != nil {
			return err
		}
		return printJSON(resp)
	case ack:
		args, err := gw.Call(ctx, event, payload)
		if err != nil {
			return err
		}
		return printJSON(args)
	default:
		if err := mgr.Send(event, payload, nil); err != nil {
			return fmt.Errorf("emit %s: %w", event, err)
		}
		return nil
	}
}

// connect starts the connection and waits until it is up, fails or ctx ends.
func connect(ctx context.Context, mgr connection.Manager, creds connection.Credentials) error {
	result := make(chan connection.Status, 1)
	unsubscribe := mgr.Subscribe(func(s connection.Status) {
		switch s.State {
		case connection.StateConnected, connection.StateFailed:
		case connection.StateDisconnected:
			if s.ErrorKind != connection.KindAuth {
				return
			}
		default:
			return
		}
		select {
		case result <- s:
		default:
		}
	})
	defer unsubscribe()

	if err := mgr.Connect(creds); err != nil {
		return err
	}

	select {
	case s := <-result:
		if s.State != connection.StateConnected {
			return fmt.Errorf("connect: %s", s.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connect: %w", ctx.Err())
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
