// Package gamelink connects to the game client over a websocket and exposes the
// live roster, stasis chambers, bot position and chat stream it reports.
package gamelink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pearlbot/pkg/world"
)

var (
	// ErrNotConnected is returned by writes while the link is down.
	ErrNotConnected = errors.New("game link is not connected")
	// ErrLinkLost fails pending actions when the connection drops.
	ErrLinkLost = errors.New("game link lost")
)

const (
	writeTimeout    = 5 * time.Second
	readLimit       = 1 << 20
	maxReconnect    = 30 * time.Second
	chatBufferSize  = 64
	defaultInterval = 5 * time.Second
)

// Client is the bot's view of the game. It implements world.Roster,
// world.StasisTracker, world.Navigator and world.Chat.
type Client struct {
	url       string
	reconnect time.Duration
	dialer    *websocket.Dialer
	log       *slog.Logger

	messages chan world.ChatMessage

	wmu  sync.Mutex
	conn *websocket.Conn

	mu       sync.RWMutex
	players  map[uuid.UUID]world.Player
	pearls   []world.Pearl
	position world.Position

	seq       atomic.Uint64
	connected atomic.Bool

	pendingMu sync.Mutex
	pending   map[uint64]chan error
}

// New builds a client for the websocket at url. Nothing is dialed until Run.
func New(url string, reconnect time.Duration, log *slog.Logger) (*Client, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("channels.game.url is required")
	}
	if reconnect <= 0 {
		reconnect = defaultInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		url:       url,
		reconnect: reconnect,
		dialer:    websocket.DefaultDialer,
		log:       log.With("component", "gamelink"),
		messages:  make(chan world.ChatMessage, chatBufferSize),
		players:   make(map[uuid.UUID]world.Player),
		pending:   make(map[uint64]chan error),
	}, nil
}

// Connected reports whether the websocket is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Run keeps the link up until ctx ends, reconnecting with backoff.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.messages)

	backoff := c.reconnect
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("Failed to connect to game client", "url", c.url, "retry_in", backoff, "error", err)
		} else {
			backoff = c.reconnect
			c.log.Info("Connected to game client", "url", c.url)
			err = c.serve(ctx, conn)
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("Game link dropped", "retry_in", backoff, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnect {
			backoff = maxReconnect
		}
	}
}

// serve reads frames from conn until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(readLimit)

	c.wmu.Lock()
	c.conn = conn
	c.wmu.Unlock()
	c.connected.Store(true)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.closeConn()
		case <-stop:
		}
	}()

	defer func() {
		c.resetState()
		c.connected.Store(false)
		c.closeConn()
		c.failPending(ErrLinkLost)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("Ignoring malformed frame", "error", err)
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame inboundFrame) {
	switch frame.Type {
	case frameChat:
		if frame.Chat == nil {
			return
		}
		select {
		case c.messages <- frame.Chat.message():
		default:
			c.log.Warn("Dropping chat line, consumer is behind")
		}
	case frameRoster:
		players := make(map[uuid.UUID]world.Player, len(frame.Players))
		for _, p := range frame.Players {
			players[p.UUID] = p
		}
		c.mu.Lock()
		c.players = players
		c.mu.Unlock()
	case framePearls:
		c.mu.Lock()
		c.pearls = append([]world.Pearl(nil), frame.Pearls...)
		c.mu.Unlock()
	case framePosition:
		if frame.Position == nil {
			return
		}
		c.mu.Lock()
		c.position = *frame.Position
		c.mu.Unlock()
	case frameAck:
		c.resolve(frame.ID, frame.Error)
	default:
		c.log.Debug("Ignoring unknown frame", "type", frame.Type)
	}
}

// resetState forgets the roster, pearls and position of a dropped link so
// nobody reads as online until the next roster frame.
func (c *Client) resetState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.players = make(map[uuid.UUID]world.Player)
	c.pearls = nil
	c.position = world.Position{}
}

// Messages streams chat lines. The channel closes when Run returns.
func (c *Client) Messages() <-chan world.ChatMessage {
	return c.messages
}

// SendCommand sends a chat command, such as a whisper, through the game client.
func (c *Client) SendCommand(_ context.Context, command string) error {
	return c.write(outboundFrame{Type: frameCommand, ID: c.seq.Add(1), Text: command})
}

// ByName finds an online player, ignoring case.
func (c *Client) ByName(name string) (world.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.players {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return world.Player{}, false
}

// ByUUID finds an online player by id.
func (c *Client) ByUUID(id uuid.UUID) (world.Player, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.players[id]
	return p, ok
}

// Online returns the current roster.
func (c *Client) Online() []world.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]world.Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, p)
	}
	return out
}

// Pearls returns the tracked stasis chambers.
func (c *Client) Pearls() []world.Pearl {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]world.Pearl(nil), c.pearls...)
}

// Position returns the bot's last reported position.
func (c *Client) Position() world.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// ActivateAt asks the game client to walk to pos and flip the trapdoor there.
// It returns once the client acknowledges the action.
func (c *Client) ActivateAt(ctx context.Context, pos world.Position) error {
	id := c.seq.Add(1)
	done := make(chan error, 1)

	c.pendingMu.Lock()
	c.pending[id] = done
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(outboundFrame{Type: frameActivate, ID: id, Position: &pos}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(frame outboundFrame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", frame.Type, err)
	}
	return nil
}

func (c *Client) resolve(id uint64, errText string) {
	c.pendingMu.Lock()
	done, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	if errText != "" {
		done <- errors.New(errText)
		return
	}
	done <- nil
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, done := range c.pending {
		done <- err
		delete(c.pending, id)
	}
}

func (c *Client) closeConn() {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
		time.Now().Add(500*time.Millisecond))
	_ = c.conn.Close()
	c.conn = nil
}
