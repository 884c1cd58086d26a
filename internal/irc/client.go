// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package irc is the chat transport: a line-protocol client that registers
// with a server, delivers typed inbound events and sends the bot's actions.
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/garcia/cassium/internal/observability"
	pluginsdk "github.com/garcia/cassium/pkg/plugin"
)

// Error codes returned by the client.
const (
	CodeNotConnected = "NOT_CONNECTED"
	CodeSendFailed   = "SEND_FAILED"
	CodeDialFailed   = "DIAL_FAILED"
)

// Config holds the connection and identity settings.
type Config struct {
	Host     string
	Port     int
	TLS      bool
	Password string

	Nick     string
	Username string
	Realname string

	// NickServPassword, when set, is sent to NickServ as soon as the server
	// welcomes the client and before the connected event is delivered.
	NickServPassword string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialFunc opens the network connection to the server.
type DialFunc func(ctx context.Context) (net.Conn, error)

// Client is a reconnecting IRC client. Run owns the connection; the send
// methods may be called from any goroutine.
type Client struct {
	cfg     Config
	dial    DialFunc
	backoff func() retry.Backoff
	logger  *slog.Logger
	events  chan pluginsdk.Event

	mu   sync.Mutex
	conn net.Conn
	w    *textproto.Writer
	nick string

	registered atomic.Bool
	quitting   atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the TCP/TLS dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithBackoff sets the reconnect backoff. The function is called for each
// run of reconnect attempts, so every outage starts from the first delay.
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) {
		c.backoff = fn
	}
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// DefaultBackoff waits 2s after a failed connect, doubling up to 5 minutes.
func DefaultBackoff() retry.Backoff {
	b := retry.NewExponential(2 * time.Second)
	b = retry.WithJitterPercent(10, b)
	return retry.WithCappedDuration(5*time.Minute, b)
}

// New creates a client for cfg. Nothing happens until Run is called.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:     cfg,
		backoff: DefaultBackoff,
		logger:  slog.Default(),
		events:  make(chan pluginsdk.Event),
		nick:    cfg.Nick,
	}
	c.dial = c.dialNetwork
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) dialNetwork(ctx context.Context) (net.Conn, error) {
	if c.cfg.TLS {
		d := &tls.Dialer{Config: &tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}}
		return d.DialContext(ctx, "tcp", c.cfg.Addr())
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", c.cfg.Addr())
}

// Events returns the inbound event stream. It is closed when Run returns.
func (c *Client) Events() <-chan pluginsdk.Event { return c.events }

// Connected reports whether the server has welcomed the client on the
// current connection.
func (c *Client) Connected() bool { return c.registered.Load() }

// Nick returns the nickname currently in use.
func (c *Client) Nick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Run connects and serves until ctx is done or Quit is called, reconnecting
// with backoff whenever the connection drops.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if c.stopping(ctx) {
				return nil
			}
			return err
		}

		err = c.serve(ctx, conn)
		if c.stopping(ctx) {
			return nil
		}
		observability.RecordConnectionEvent(observability.ConnLost)
		c.logger.WarnContext(ctx, "connection lost", "addr", c.cfg.Addr(), "error", err)
	}
}

func (c *Client) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || c.quitting.Load()
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	var conn net.Conn
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		if c.quitting.Load() {
			return oops.In("irc").Errorf("client is quitting")
		}
		var err error
		conn, err = c.dial(ctx)
		if err != nil {
			observability.RecordConnectionEvent(observability.ConnDialFailed)
			c.logger.WarnContext(ctx, "connect failed", "addr", c.cfg.Addr(), "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, oops.In("irc").Code(CodeDialFailed).With("addr", c.cfg.Addr()).Wrap(err)
	}
	return conn, nil
}

// serve registers on conn and reads lines until the connection ends.
func (c *Client) serve(ctx context.Context, conn net.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.w = textproto.NewWriter(bufio.NewWriter(conn))
	c.nick = c.cfg.Nick
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		c.registered.Store(false)
		c.mu.Lock()
		c.conn, c.w = nil, nil
		c.mu.Unlock()
		_ = conn.Close()
	}()

	if err := c.register(ctx); err != nil {
		return err
	}

	r := textproto.NewReader(bufio.NewReader(conn))
	for {
		line, err := r.ReadLine()
		if err != nil {
			return oops.In("irc").With("addr", c.cfg.Addr()).Wrap(err)
		}
		msg, err := ParseMessage(strings.ToValidUTF8(line, "�"))
		if err != nil {
			c.logger.DebugContext(ctx, "ignoring malformed line", "line", line)
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Client) register(ctx context.Context) error {
	if c.cfg.Password != "" {
		if err := c.send(ctx, "PASS", c.cfg.Password); err != nil {
			return err
		}
	}
	if err := c.send(ctx, "NICK", c.cfg.Nick); err != nil {
		return err
	}
	username := c.cfg.Username
	if username == "" {
		username = c.cfg.Nick
	}
	realname := c.cfg.Realname
	if realname == "" {
		realname = c.cfg.Nick
	}
	return c.send(ctx, "USER", username, "0", "*", realname)
}

// send writes one command line.
func (c *Client) send(ctx context.Context, command string, params ...string) error {
	line := Message{Command: command, Params: params}.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return oops.In("irc").Code(CodeNotConnected).With("command", command).
			Errorf("not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	if err := c.w.PrintfLine("%s", line); err != nil {
		return oops.In("irc").Code(CodeSendFailed).With("command", command).Wrap(err)
	}
	return nil
}

// SendMessage sends a PRIVMSG.
func (c *Client) SendMessage(ctx context.Context, target, text string) error {
	return c.send(ctx, "PRIVMSG", target, text)
}

// SendNotice sends a NOTICE.
func (c *Client) SendNotice(ctx context.Context, target, text string) error {
	return c.send(ctx, "NOTICE", target, text)
}

// SendAction sends a CTCP ACTION (/me).
func (c *Client) SendAction(ctx context.Context, channel, text string) error {
	return c.send(ctx, "PRIVMSG", channel, ctcpDelim+"ACTION "+text+ctcpDelim)
}

// Join joins a channel, with a key if one is given.
func (c *Client) Join(ctx context.Context, channel, key string) error {
	if key != "" {
		return c.send(ctx, "JOIN", channel, key)
	}
	return c.send(ctx, "JOIN", channel)
}

// Leave parts a channel.
func (c *Client) Leave(ctx context.Context, channel, reason string) error {
	if reason != "" {
		return c.send(ctx, "PART", channel, reason)
	}
	return c.send(ctx, "PART", channel)
}

// Kick removes user from channel.
func (c *Client) Kick(ctx context.Context, channel, user, reason string) error {
	if reason != "" {
		return c.send(ctx, "KICK", channel, user, reason)
	}
	return c.send(ctx, "KICK", channel, user)
}

// SetTopic changes a channel topic.
func (c *Client) SetTopic(ctx context.Context, channel, topic string) error {
	return c.send(ctx, "TOPIC", channel, topic)
}

// SetMode sends a MODE command.
func (c *Client) SetMode(ctx context.Context, channel, mode string, args ...string) error {
	return c.send(ctx, "MODE", append([]string{channel, mode}, args...)...)
}

// SetNick requests a new nickname. The change takes effect when the server
// confirms it.
func (c *Client) SetNick(ctx context.Context, nick string) error {
	return c.send(ctx, "NICK", nick)
}

// Disconnect sends QUIT and drops the connection; Run reconnects.
func (c *Client) Disconnect(ctx context.Context, reason string) error {
	err := c.send(ctx, "QUIT", reason)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if err != nil && !isCode(err, CodeNotConnected) {
		return err
	}
	return nil
}

// Quit disconnects and stops Run from reconnecting.
func (c *Client) Quit(ctx context.Context, reason string) error {
	c.quitting.Store(true)
	return c.Disconnect(ctx, reason)
}

func isCode(err error, code string) bool {
	var oopsErr oops.OopsError
	if !errors.As(err, &oopsErr) {
		return false
	}
	return oopsErr.Code() == code
}
