package app

import (
	"fmt"
	"log"
	"net/url"

	"classwire/internal/codec"
	"classwire/internal/config"
	"classwire/internal/connection"
	"classwire/internal/dispatch"
	"classwire/internal/history"
	"classwire/internal/session"
	"classwire/pkg/types"
)

// Client wires the connection manager, the dispatch router, and the
// feature sessions into one object. Initialization order matters:
// History → Connection → Router → Sessions, then the connection
// callbacks are bound last so no message arrives before the sessions
// are subscribed.
type Client struct {
	config *config.Config
	store  *history.Store
	conn   *connection.Manager
	router *dispatch.Router

	chat          *session.Chat
	notifications *session.Notifications
	execution     *session.Execution
	tutor         *session.Tutor
	review        *session.Review
	mentorship    *session.Mentorship
	collaboration *session.Collaboration
	alerts        *session.Alerts
}

// NewClient builds a client from configuration. The client does not
// connect yet; call Connect when ready.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var store *history.Store
	if cfg.History.Enabled {
		var err error
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	endpoint, err := buildEndpoint(cfg.Server.URL, cfg.Server.Token)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	conn, err := connection.NewManager(connection.Config{
		URL:               endpoint,
		ReconnectAttempts: cfg.Reconnect.Attempts,
		ReconnectInterval: cfg.Reconnect.Interval,
		PingInterval:      cfg.Reconnect.PingInterval,
		DialTimeout:       cfg.Reconnect.DialTimeout,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	router := dispatch.NewRouter()

	identity := types.Identity{
		UserID:   cfg.Server.UserID,
		Username: cfg.Server.Username,
		Token:    cfg.Server.Token,
	}

	c := &Client{
		config:        cfg,
		store:         store,
		conn:          conn,
		router:        router,
		chat:          session.NewChat(conn, router, identity, store),
		notifications: session.NewNotifications(router, store),
		execution:     session.NewExecution(conn, router, store),
		tutor:         session.NewTutor(conn, router),
		review:        session.NewReview(conn, router),
		mentorship:    session.NewMentorship(conn, router),
		collaboration: session.NewCollaboration(conn, router, identity),
		alerts:        session.NewAlerts(router),
	}

	conn.OnMessage(func(env *types.Envelope) {
		router.Deliver(env)
	})
	conn.OnOpen(func() {
		router.Lifecycle(dispatch.Event{Kind: dispatch.EventOpen})
	})
	conn.OnClose(func(code int, reason string) {
		router.Lifecycle(dispatch.Event{Kind: dispatch.EventClose, Code: code, Reason: reason})
	})
	conn.OnError(func(err error) {
		router.Lifecycle(dispatch.Event{Kind: dispatch.EventError, Err: err})
	})

	return c, nil
}

// buildEndpoint appends the auth token as a query parameter the way
// the platform's websocket endpoint expects it.
func buildEndpoint(rawURL, token string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %s: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect starts the websocket connection in the background.
func (c *Client) Connect() {
	log.Printf("Connecting to %s", c.config.Server.URL)
	c.conn.Connect()
}

// Reconnect forces a fresh connection attempt and resets the retry
// budget.
func (c *Client) Reconnect() {
	c.conn.Reconnect()
}

// Close shuts the connection down cleanly and releases the history
// store.
func (c *Client) Close() error {
	c.conn.Close("client shutdown")
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// Decode exposes the frame decoder for callers embedding the client.
func (c *Client) Decode(raw []byte) (*types.Envelope, error) {
	return codec.Decode(raw)
}

func (c *Client) Connection() *connection.Manager       { return c.conn }
func (c *Client) Router() *dispatch.Router              { return c.router }
func (c *Client) History() *history.Store               { return c.store }
func (c *Client) Chat() *session.Chat                   { return c.chat }
func (c *Client) Notifications() *session.Notifications { return c.notifications }
func (c *Client) Execution() *session.Execution         { return c.execution }
func (c *Client) Tutor() *session.Tutor                 { return c.tutor }
func (c *Client) Review() *session.Review               { return c.review }
func (c *Client) Mentorship() *session.Mentorship       { return c.mentorship }
func (c *Client) Collaboration() *session.Collaboration { return c.collaboration }
func (c *Client) Alerts() *session.Alerts               { return c.alerts }
