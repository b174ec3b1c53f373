// A small listener CLI for the realtime endpoint: connects, prints every
// inbound frame, and can send a single chat message on startup.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	env "github.com/Netflix/go-env"

	"classboard/client"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CLASSBOARD_WS_URL,default=ws://localhost:4000/chat"`
	Token     string `env:"CLASSBOARD_TOKEN,required=true"`
	SendTo    string `env:"CLASSBOARD_SEND_TO"`
	Message   string `env:"CLASSBOARD_MESSAGE"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg.ServerURL, cfg.Token, client.Options{})
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	unsubscribe := c.Subscribe(func(f client.Frame) {
		switch f.Type {
		case "connection":
			log.Printf("connection: %s", f.Status)
		case "error":
			log.Printf("error: %s", f.Message)
			if f.Message == "max reconnect attempts reached" {
				close(done)
			}
		default:
			log.Printf("%s: %s", f.Type, string(f.Data))
		}
	})
	defer unsubscribe()

	if err := c.Connect(ctx); err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", cfg.ServerURL, err)
	}

	// Ask for the users snapshot, then optionally send one message.
	if err := c.Send(map[string]any{"type": "init"}); err != nil {
		return exitRuntime, fmt.Errorf("init failed: %w", err)
	}
	if cfg.SendTo != "" && cfg.Message != "" {
		chat := map[string]any{
			"type": "chat",
			"data": map[string]string{"receiverId": cfg.SendTo, "content": cfg.Message},
		}
		if err := c.Send(chat); err != nil {
			return exitRuntime, fmt.Errorf("send failed: %w", err)
		}
	}

	log.Printf("listening on %s (Ctrl+C to quit)...", cfg.ServerURL)
	select {
	case <-ctx.Done():
		return exitOK, nil
	case <-done:
		return exitRuntime, fmt.Errorf("connection lost")
	}
}
