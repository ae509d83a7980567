package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/util"
)

// Client implements MarketStream over the Binance futures trade stream.
// One connection carries every symbol; streams are added with SUBSCRIBE.
type Client struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger
	metrics        drepo.Metrics

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ drepo.MarketStream = (*Client)(nil)

type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, opts ...Option) *Client {
	c := &Client{
		websocketURL:   strings.TrimSuffix(websocketURL, "/"),
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.String("component", "binance"))
	return c
}

func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.log.Info("connected", logger.String("url", c.websocketURL))
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Subscribe requests "<symbol>@trade" for every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return errors.New("binance not connected")
	}
	params := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		params[i] = strings.ToLower(s) + "@trade"
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	req := subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: time.Now().UnixMilli()}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("binance subscribe: %w", err)
	}
	c.log.Info("subscribed", logger.Strings("streams", params))
	return nil
}

type tradeEvent struct {
	Event     string `json:"e"`
	Symbol    string `json:"s"`
	TradeTime int64  `json:"T"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// decodeTrade parses one frame. ok is false for frames that are not trade
// events, such as subscription acks.
func decodeTrade(b []byte) (models.Tick, bool, error) {
	var ev tradeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return models.Tick{}, false, err
	}
	if ev.Event != "trade" {
		return models.Tick{}, false, nil
	}
	px, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return models.Tick{}, false, fmt.Errorf("price %q: %w", ev.Price, err)
	}
	qty, err := strconv.ParseFloat(ev.Quantity, 64)
	if err != nil {
		return models.Tick{}, false, fmt.Errorf("quantity %q: %w", ev.Quantity, err)
	}
	return models.Tick{
		Symbol:    util.NormalizeSymbol(ev.Symbol),
		Timestamp: ev.TradeTime,
		Price:     px,
		Volume:    qty,
	}, true, nil
}

// Read streams ticks until ctx ends or the connection fails. The error
// channel receives at most one error and both channels are then closed.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- errors.New("binance conn nil")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	readCtx, cancel := context.WithCancel(ctx)
	go c.pingLoop(readCtx, conn)

	go func() {
		defer cancel()
		defer close(ticks)
		defer close(errs)
		// Unblock ReadMessage when ctx ends.
		go func() {
			<-readCtx.Done()
			_ = conn.SetReadDeadline(time.Now())
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance read: %w", err)
				}
				return
			}
			t, ok, err := decodeTrade(b)
			if err != nil {
				c.log.Debug("undecodable frame", logger.Error(err))
				if c.metrics != nil {
					c.metrics.RecordError("binance_decode")
				}
				continue
			}
			if !ok {
				continue
			}
			select {
			case ticks <- &t:
			case <-readCtx.Done():
				return
			}
		}
	}()

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.log.Warn("ping failed", logger.Error(err))
				return
			}
		}
	}
}

// Reconnect closes, waits reconnectDelay and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
