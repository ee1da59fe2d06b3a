package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classwire/internal/app"
	"classwire/internal/config"
	"classwire/internal/dispatch"
	"classwire/internal/session"
	"classwire/pkg/types"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run keeps main testable and makes every exit path return an error.
func run() error {
	var (
		configPath = flag.String("config", os.Getenv("CLASSWIRE_CONFIG_FILE"), "path to JSON config file")
		serverURL  = flag.String("url", "", "websocket endpoint URL")
		token      = flag.String("token", "", "authentication token")
		userID     = flag.Int("user", 0, "numeric user id")
		username   = flag.String("username", "", "display name")
		room       = flag.String("room", "", "collaboration room to join on connect")
	)
	flag.Parse()

	cfg := config.LoadConfigWithPrecedence(*configPath)
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *token != "" {
		cfg.Server.Token = *token
	}
	if *userID != 0 {
		cfg.Server.UserID = *userID
	}
	if *username != "" {
		cfg.Server.Username = *username
	}

	client, err := app.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close()

	client.Chat().SetOnMessage(func(msg types.ChatMessage) {
		fmt.Printf("[chat] %s: %s\n", msg.Username, msg.Content)
	})
	client.Tutor().SetOnNotice(printNotice("tutor"))
	client.Review().SetOnNotice(printNotice("review"))
	client.Mentorship().SetOnNotice(printNotice("mentorship"))
	client.Collaboration().SetOnNotice(printNotice("collab"))
	client.Alerts().SetOnNotice(printNotice("server"))

	client.Router().SubscribeLifecycle(func(ev dispatch.Event) {
		switch ev.Kind {
		case dispatch.EventOpen:
			log.Printf("Connected")
		case dispatch.EventClose:
			log.Printf("Disconnected (code=%d reason=%q)", ev.Code, ev.Reason)
		case dispatch.EventError:
			log.Printf("Connection error: %v", ev.Err)
		}
	})

	if *room != "" {
		client.Router().SubscribeLifecycle(func(ev dispatch.Event) {
			if ev.Kind == dispatch.EventOpen {
				if err := client.Collaboration().JoinRoom(*room); err != nil {
					log.Printf("Failed to join room %s: %v", *room, err)
				}
			}
		})
	}

	client.Connect()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalCh
	log.Printf("Received signal %v, shutting down", sig)
	return nil
}

func printNotice(label string) func(session.Notice) {
	return func(n session.Notice) {
		switch n.Level {
		case session.NoticeError:
			log.Printf("[%s] error: %s", label, n.Message)
		default:
			log.Printf("[%s] %s", label, n.Message)
		}
	}
}
