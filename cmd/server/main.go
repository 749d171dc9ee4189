package main

import (
	"os"
	"time"

	"github.com/codingconcepts/env"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gdlqbot/authrelay/internal/entry"
	"github.com/gdlqbot/authrelay/internal/events"
	"github.com/gdlqbot/authrelay/internal/handoff"
	"github.com/gdlqbot/authrelay/internal/userauth"
)

type Config struct {
	BindAddr   string `env:"BIND_ADDR"`
	ListenPort uint16 `env:"LISTEN_PORT" default:"3000"`

	TwitchClientId     string `env:"TWITCH_CLIENT_ID" required:"true"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET" required:"true"`

	CallbackUrl string `env:"CALLBACK_URL" default:"https://gdlqbot.superdev.one/auth/callback"`
	ClientUrl   string `env:"CLIENT_URL" default:"http://localhost:24363"`

	HandoffTtlSeconds int `env:"HANDOFF_TTL_SECONDS" default:"300"`

	RmqHost     string `env:"RMQ_HOST"`
	RmqPort     int    `env:"RMQ_PORT" default:"5672"`
	RmqVhost    string `env:"RMQ_VHOST"`
	RmqUser     string `env:"RMQ_USER"`
	RmqPassword string `env:"RMQ_PASSWORD"`
}

func main() {
	app, ctx := entry.NewApplication("authrelay")
	defer app.Stop()

	// Parse config from environment variables
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		app.Fail("Failed to load .env file", err)
	}
	config := Config{}
	if err := env.Set(&config); err != nil {
		app.Fail("Failed to load config", err)
	}

	// If an AMQP broker is configured, initialize a producer so that we can
	// announce completed authorizations to the rest of the backend
	var producer userauth.EventProducer
	if config.RmqHost != "" {
		amqpConn, err := amqp.Dial(events.FormatConnectionString(config.RmqHost, config.RmqPort, config.RmqVhost, config.RmqUser, config.RmqPassword))
		if err != nil {
			app.Fail("Failed to connect to AMQP server", err)
		}
		producer, err = events.NewProducer(amqpConn, "auth-events")
		if err != nil {
			app.Fail("Failed to initialize AMQP producer", err)
		}
		app.Log().Info("Publishing authorization events", "exchange", "auth-events")
	}

	// Initialize the handoff store that parks each freshly exchanged
	// credential until the client application collects it
	store, err := handoff.NewStore(time.Duration(config.HandoffTtlSeconds) * time.Second)
	if err != nil {
		app.Fail("Failed to initialize handoff store", err)
	}
	defer store.Stop()

	// Start setting up our HTTP handlers, using gorilla/mux for routing
	r := mux.NewRouter()

	// The client application can call GET /auth/init to start an OAuth code
	// grant flow; Twitch will send the user's browser back to
	// GET /auth/callback once access is granted
	userauthServer := userauth.NewServer(
		config.CallbackUrl,
		config.ClientUrl,
		config.TwitchClientId,
		config.TwitchClientSecret,
		store,
		producer,
	)
	userauthServer.RegisterRoutes(r)

	// After the callback redirects it onward, the client application calls
	// GET /auth/data/{key} exactly once to collect its credential
	handoffServer := handoff.NewServer(store)
	handoffServer.RegisterRoutes(r)

	// Handle incoming HTTP connections until our top-level context is
	// canceled, at which point shut down cleanly
	entry.RunServer(ctx, app.Log(), r, config.BindAddr, config.ListenPort)
}
