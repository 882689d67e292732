// Package feed streams reference prices for the oracle from an
// exchange-style ticker websocket.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"option_go/internal/domain"
	"option_go/internal/infra"
)

const (
	maxRetries  = 10
	baseDelay   = 1 * time.Second
	maxDelay    = 60 * time.Second
	readTimeout = 60 * time.Second
	maxSymbols  = 50
)

// tickerMessage is one ticker frame. Prices are decoded as decimals so no
// float rounding reaches the oracle.
type tickerMessage struct {
	Type       string          `json:"type"` // ticker
	Code       string          `json:"code"` // USDC-XLM
	TradePrice decimal.Decimal `json:"trade_price"`
	Timestamp  int64           `json:"timestamp"` // ms
}

// Worker handles the price feed WebSocket connection
type Worker struct {
	url     string
	market  string
	symbols []string
	ticks   chan<- domain.PriceTick
	metrics *infra.Metrics

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ domain.PriceFeed = (*Worker)(nil)

// NewWorker creates a feed worker for symbols quoted in market (e.g. "USDC").
func NewWorker(url, market string, symbols []string, ticks chan<- domain.PriceTick, metrics *infra.Metrics) *Worker {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if len(symbols) > maxSymbols {
		slog.Warn("Feed symbol limit exceeded", slog.Int("count", len(symbols)), slog.Int("max", maxSymbols))
		symbols = symbols[:maxSymbols]
	}
	return &Worker{
		url:     url,
		market:  market,
		symbols: symbols,
		ticks:   ticks,
		metrics: metrics,
	}
}

// Connect starts the WebSocket connection with automatic reconnection
func (w *Worker) Connect(ctx context.Context) error {
	if w.url == "" {
		return &domain.ConfigError{Field: "oracle.feed_url", Err: fmt.Errorf("empty url")}
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Feed connection loop stopped")
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			if !domain.IsRetriable(err) {
				slog.Error("Feed connection failed permanently", slog.Any("error", err))
				return
			}
			slog.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount, baseDelay, maxDelay)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, resp, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return domain.NewFatalNetworkError("connect", err)
		}
		return domain.NewNetworkError("connect", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.metrics.SetFeedConnected(true)

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return domain.NewNetworkError("subscribe", err)
	}

	slog.Info("Feed connected", slog.String("url", w.url), slog.Int("subs", len(w.symbols)))
	return nil
}

func (w *Worker) subscribe() error {
	codes := make([]string, len(w.symbols))
	for i, s := range w.symbols {
		codes[i] = w.market + "-" + s
	}

	msg := []map[string]interface{}{
		{"ticket": fmt.Sprintf("option-go-%d", time.Now().UnixNano())},
		{"type": "ticker", "codes": codes},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *Worker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return conn.WriteMessage(messageType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Feed read error", slog.Any("error", domain.NewNetworkError("read", err)))
			}
			w.closeConnection()
			return
		}

		if tick, ok := w.parse(message); ok {
			w.deliver(ctx, tick)
		}
	}
}

func (w *Worker) parse(message []byte) (domain.PriceTick, bool) {
	var msg tickerMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("Feed message parse error", slog.Any("error", err))
		return domain.PriceTick{}, false
	}
	if msg.Type != "ticker" || !msg.TradePrice.IsPositive() {
		return domain.PriceTick{}, false
	}
	ts := msg.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return domain.PriceTick{
		Symbol: strings.TrimPrefix(msg.Code, w.market+"-"),
		Price:  msg.TradePrice,
		Ts:     ts,
	}, true
}

func (w *Worker) deliver(ctx context.Context, tick domain.PriceTick) {
	w.metrics.RecordFeedTick()
	select {
	case w.ticks <- tick:
	case <-ctx.Done():
	default:
		slog.Warn("Feed tick channel full, dropping data", slog.String("symbol", tick.Symbol))
	}
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
	w.metrics.SetFeedConnected(false)
}

// Disconnect closes the WebSocket connection
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("Feed disconnected")
}

// IsConnected returns connection status
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}
