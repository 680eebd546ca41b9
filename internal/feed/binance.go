// Package feed ingests the underlying reference price from Binance and the
// fill stream from the event bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/binarymm/internal/domain"
	"github.com/alanyoungcy/binarymm/internal/metrics"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// DefaultBinanceWSURL is the spot market stream endpoint.
const DefaultBinanceWSURL = "wss://stream.binance.com:9443/ws"

// TickHandler is called for every aggTrade and 24h ticker update.
type TickHandler func(domain.PriceTick)

// KlineHandler is called for every kline update, open or closed.
type KlineHandler func(domain.Kline)

// BinanceConfig configures the stream client.
type BinanceConfig struct {
	WSURL          string
	Symbols        []string
	KlineInterval  string
	Ticker         bool
	ReconnectDelay time.Duration
}

// BinanceStream subscribes to aggTrade, kline and optionally 24h ticker
// streams for a set of symbols and keeps the connection alive until the
// context is cancelled.
type BinanceStream struct {
	cfg    BinanceConfig
	logger *slog.Logger

	handlerMu     sync.RWMutex
	tickHandlers  []TickHandler
	klineHandlers []KlineHandler

	writeMu sync.Mutex
	nextID  int
}

// NewBinanceStream creates a stream client. Empty fields take defaults.
func NewBinanceStream(cfg BinanceConfig, logger *slog.Logger) *BinanceStream {
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultBinanceWSURL
	}
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1m"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	return &BinanceStream{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "binance_stream")),
	}
}

// OnTick registers a tick handler. Handlers run on the read goroutine.
func (b *BinanceStream) OnTick(h TickHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.tickHandlers = append(b.tickHandlers, h)
}

// OnKline registers a kline handler.
func (b *BinanceStream) OnKline(h KlineHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.klineHandlers = append(b.klineHandlers, h)
}

// Streams returns the stream names subscribed on every connection.
func (b *BinanceStream) Streams() []string {
	streams := make([]string, 0, len(b.cfg.Symbols)*3)
	for _, s := range b.cfg.Symbols {
		sym := strings.ToLower(s)
		streams = append(streams, sym+"@aggTrade", sym+"@kline_"+b.cfg.KlineInterval)
		if b.cfg.Ticker {
			streams = append(streams, sym+"@ticker")
		}
	}
	return streams
}

// Run connects, subscribes and reads until ctx is cancelled. A dropped
// connection is retried with exponential backoff that resets once a
// connection delivers data.
func (b *BinanceStream) Run(ctx context.Context) error {
	if len(b.cfg.Symbols) == 0 {
		b.logger.InfoContext(ctx, "no symbols to subscribe, exiting")
		return nil
	}
	delay := b.cfg.ReconnectDelay
	for {
		received, err := b.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			delay = b.cfg.ReconnectDelay
		}
		metrics.FeedReconnects.WithLabelValues("binance").Inc()
		b.logger.WarnContext(ctx, "binance stream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection serves one websocket session. It reports whether any
// message was received before the session ended.
func (b *BinanceStream) runConnection(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, b.cfg.WSURL, nil)
	if err != nil {
		return false, fmt.Errorf("binance/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if err := b.subscribe(conn); err != nil {
		return false, err
	}
	b.logger.InfoContext(ctx, "binance stream subscribed", slog.Int("streams", len(b.Streams())))

	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			b.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			b.writeMu.Unlock()
			conn.Close()
		case <-sessionDone:
		}
	}()
	go b.pingLoop(conn, sessionDone)

	received := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("binance/ws: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		received = true
		conn.SetReadDeadline(time.Now().Add(pongWait))
		b.handleMessage(msg)
	}
}

type subscribeCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

func (b *BinanceStream) subscribe(conn *websocket.Conn) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.nextID++
	cmd := subscribeCommand{Method: "SUBSCRIBE", Params: b.Streams(), ID: b.nextID}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("binance/ws: subscribe: %w", err)
	}
	return nil
}

func (b *BinanceStream) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			b.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Binance reuses letters with different case in one payload ("e"/"E",
// "l"/"L"). The twin fields below keep encoding/json from matching them
// case-insensitively.

type envelope struct {
	Event     string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
}

type aggTradeMessage struct {
	Event     string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
	Symbol    string          `json:"s"`
	Price     string          `json:"p"`
	Quantity  string          `json:"q"`
	TradeTime int64           `json:"T"`
	Maker     json.RawMessage `json:"m"`
	Ignore    json.RawMessage `json:"M"`
}

type tickerMessage struct {
	Event     string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Change    json.RawMessage `json:"p"`
	ChangePct json.RawMessage `json:"P"`
	Close     string          `json:"c"`
	CloseQty  json.RawMessage `json:"C"`
	Bid       string          `json:"b"`
	BidQty    json.RawMessage `json:"B"`
	Ask       string          `json:"a"`
	AskQty    json.RawMessage `json:"A"`
	Open      json.RawMessage `json:"o"`
	OpenTime  json.RawMessage `json:"O"`
	Low       json.RawMessage `json:"l"`
	LastID    json.RawMessage `json:"L"`
	Volume    string          `json:"v"`
	QuoteVol  json.RawMessage `json:"q"`
	CloseQ    json.RawMessage `json:"Q"`
}

type klineMessage struct {
	Event     string          `json:"e"`
	EventTime json.RawMessage `json:"E"`
	Kline     klinePayload    `json:"k"`
}

type klinePayload struct {
	OpenTime  int64           `json:"t"`
	CloseTime int64           `json:"T"`
	Symbol    string          `json:"s"`
	Interval  string          `json:"i"`
	Open      string          `json:"o"`
	High      string          `json:"h"`
	Low       string          `json:"l"`
	LastID    json.RawMessage `json:"L"`
	Close     string          `json:"c"`
	Volume    string          `json:"v"`
	TakerVol  json.RawMessage `json:"V"`
	QuoteVol  json.RawMessage `json:"q"`
	TakerQ    json.RawMessage `json:"Q"`
	Closed    bool            `json:"x"`
}

func (b *BinanceStream) handleMessage(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Event {
	case "aggTrade":
		var m aggTradeMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		tick := domain.PriceTick{
			Symbol:    m.Symbol,
			Price:     parseFloat(m.Price),
			Volume:    parseFloat(m.Quantity),
			Timestamp: time.UnixMilli(m.TradeTime).UTC(),
		}
		b.dispatchTick(tick)

	case "24hrTicker":
		var m tickerMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		tick := domain.PriceTick{
			Symbol:    m.Symbol,
			Price:     parseFloat(m.Close),
			Bid:       parseFloat(m.Bid),
			Ask:       parseFloat(m.Ask),
			Volume:    parseFloat(m.Volume),
			Timestamp: time.UnixMilli(m.EventTime).UTC(),
		}
		b.dispatchTick(tick)

	case "kline":
		var m klineMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return
		}
		k := m.Kline
		b.dispatchKline(domain.Kline{
			Symbol:    k.Symbol,
			Interval:  k.Interval,
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		})
	}
}

func (b *BinanceStream) dispatchTick(t domain.PriceTick) {
	if t.Symbol == "" || t.Price <= 0 {
		return
	}
	b.handlerMu.RLock()
	handlers := b.tickHandlers
	b.handlerMu.RUnlock()
	for _, h := range handlers {
		h(t)
	}
}

func (b *BinanceStream) dispatchKline(k domain.Kline) {
	if k.Symbol == "" || k.Close <= 0 {
		return
	}
	b.handlerMu.RLock()
	handlers := b.klineHandlers
	b.handlerMu.RUnlock()
	for _, h := range handlers {
		h(k)
	}
}

// parseFloat returns 0 for malformed numbers; callers drop non-positive prices.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
