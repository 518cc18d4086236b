// Package gateway reads the real-time event stream over a websocket and
// hands each dispatch to a relay stack.
//
// The client performs the HELLO / IDENTIFY handshake and heartbeats with
// the last sequence number. It does not resume or reconnect: when the
// server asks for either, Run returns ErrReconnect and the caller decides.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/relay"
)

// Gateway opcodes.
const (
	OpDispatch       = 0
	OpHeartbeat      = 1
	OpIdentify       = 2
	OpReconnect      = 7
	OpInvalidSession = 9
	OpHello          = 10
	OpHeartbeatACK   = 11
)

var (
	// ErrReconnect is returned by Run when the server asks the client to
	// reconnect or invalidates the session.
	ErrReconnect = errors.New("gateway: server requested reconnect")

	// ErrNoHello is returned when the first frame is not HELLO.
	ErrNoHello = errors.New("gateway: expected hello")

	// ErrHeartbeatTimeout is returned when a heartbeat goes unacknowledged
	// until the next one is due.
	ErrHeartbeatTimeout = errors.New("gateway: heartbeat not acknowledged")
)

// Handler receives each decoded dispatch event, in stream order.
// Stack.Handle satisfies it.
type Handler func(ctx context.Context, ev relay.Event)

// Config holds the configuration for a Client.
type Config struct {
	URL     string
	Token   string
	Intents int
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// HelloTimeout bounds the wait for HELLO after connecting. Default: 20s.
	HelloTimeout time.Duration
	Logger       *slog.Logger
}

const defaultHelloTimeout = 20 * time.Second

// Client is a single gateway session.
type Client struct {
	cfg    Config
	logger *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	seq      atomic.Int64
	acked    atomic.Bool
	received atomic.Int64
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("url is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = defaultHelloTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{cfg: cfg, logger: logger}
	c.seq.Store(-1)
	return c, nil
}

// Sequence returns the last dispatch sequence number, or -1 before the
// first dispatch.
func (c *Client) Sequence() int64 {
	return c.seq.Load()
}

// Received returns how many dispatch events were handed to the handler.
func (c *Client) Received() int64 {
	return c.received.Load()
}

// Run connects, identifies and feeds dispatch events to handle until ctx
// is done or the session ends. It returns nil when ctx is cancelled.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	c.conn = conn
	defer func() { _ = conn.Close() }()

	// Until the read loop owns the connection, cancellation closes it so
	// a blocked handshake read returns.
	stopHandshake := context.AfterFunc(ctx, func() { _ = conn.Close() })
	interval, err := c.handshake()
	if !stopHandshake() || ctx.Err() != nil {
		c.logger.Info("gateway closed during handshake")
		return nil
	}
	if err != nil {
		return err
	}
	c.logger.Info("gateway connected", slog.Duration("heartbeat_interval", interval))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.heartbeat(gctx, interval)
	})
	g.Go(func() error {
		return c.read(gctx, handle)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.closeConn()
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		c.logger.Info("gateway closed")
		return nil
	}
	return err
}

func (c *Client) handshake() (time.Duration, error) {
	interval, err := c.readHello()
	if err != nil {
		return 0, err
	}
	if err := c.identify(); err != nil {
		return 0, err
	}
	return interval, nil
}

func (c *Client) readHello() (time.Duration, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.HelloTimeout)); err != nil {
		return 0, fmt.Errorf("set hello deadline: %w", err)
	}
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	frame := gjson.ParseBytes(data)
	if frame.Get("op").Int() != OpHello {
		return 0, ErrNoHello
	}
	ms := frame.Get("d.heartbeat_interval").Int()
	if ms <= 0 {
		return 0, fmt.Errorf("%w: missing heartbeat interval", ErrNoHello)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

type identifyPayload struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

func (c *Client) identify() error {
	return c.send(OpIdentify, identifyPayload{
		Token:   c.cfg.Token,
		Intents: c.cfg.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "relay",
			Device:  "relay",
		},
	})
}

func (c *Client) heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.acked.Store(true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.acked.Swap(false) {
				return ErrHeartbeatTimeout
			}
			if err := c.sendHeartbeat(); err != nil {
				return err
			}
		}
	}
}

func (c *Client) sendHeartbeat() error {
	var d any
	if seq := c.seq.Load(); seq >= 0 {
		d = seq
	}
	return c.send(OpHeartbeat, d)
}

func (c *Client) read(ctx context.Context, handle Handler) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		frame := gjson.ParseBytes(data)
		switch frame.Get("op").Int() {
		case OpDispatch:
			if s := frame.Get("s"); s.Exists() && s.Type == gjson.Number {
				c.seq.Store(s.Int())
			}
			ev, err := relay.Decode(data)
			if err != nil {
				c.logger.Warn("undecodable dispatch",
					slog.String("type", frame.Get("t").String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.received.Add(1)
			handle(ctx, ev)

		case OpHeartbeat:
			if err := c.sendHeartbeat(); err != nil {
				return err
			}

		case OpHeartbeatACK:
			c.acked.Store(true)

		case OpReconnect, OpInvalidSession:
			return ErrReconnect

		default:
			c.logger.Debug("ignored frame", slog.Int64("op", frame.Get("op").Int()))
		}
	}
}

func (c *Client) send(op int, d any) error {
	data, err := json.Marshal(struct {
		Op int `json:"op"`
		D  any `json:"d"`
	}{Op: op, D: d})
	if err != nil {
		return fmt.Errorf("encode op %d: %w", op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write op %d: %w", op, err)
	}
	return nil
}

func (c *Client) closeConn() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}
