package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"option_go/internal/domain"
	"option_go/internal/infra"
)

const (
	pollAttempts     = 3
	pollRetryDelay   = 1 * time.Second
	pollRetryMax     = 4 * time.Second
	defaultPollEvery = 60 * time.Second
)

// restTicker is one entry of a REST ticker snapshot.
type restTicker struct {
	Market     string          `json:"market"` // USDC-XLM
	TradePrice decimal.Decimal `json:"trade_price"`
	Timestamp  int64           `json:"timestamp"` // ms
}

// Poller fetches ticker snapshots over HTTP. It serves as the oracle's
// price source where no websocket feed is available.
type Poller struct {
	apiURL       string
	market       string
	symbols      []string
	ticks        chan<- domain.PriceTick
	metrics      *infra.Metrics
	pollInterval time.Duration
	httpClient   *http.Client

	mu        sync.RWMutex
	last      map[string]decimal.Decimal
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ domain.PriceFeed = (*Poller)(nil)

// NewPoller creates a poller for symbols quoted in market. The request is
// apiURL?markets=<market>-<symbol>,...
func NewPoller(apiURL, market string, symbols []string, pollIntervalSec int, ticks chan<- domain.PriceTick, metrics *infra.Metrics) *Poller {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	interval := defaultPollEvery
	if pollIntervalSec > 0 {
		interval = time.Duration(pollIntervalSec) * time.Second
	}
	return &Poller{
		apiURL:       apiURL,
		market:       market,
		symbols:      symbols,
		ticks:        ticks,
		metrics:      metrics,
		pollInterval: interval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		last:         make(map[string]decimal.Decimal),
	}
}

// Connect fetches once and then polls every interval until Disconnect.
func (p *Poller) Connect(ctx context.Context) error {
	if p.apiURL == "" {
		return &domain.ConfigError{Field: "oracle.poll_url", Err: fmt.Errorf("empty url")}
	}
	ctx, p.cancel = context.WithCancel(ctx)

	// Fetch immediately on start
	if err := p.fetch(ctx); err != nil {
		slog.Warn("Initial price poll failed", slog.Any("error", err))
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Price polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Price polling stopped")
				return
			case <-ticker.C:
				if err := p.fetch(ctx); err != nil {
					slog.Warn("Price poll failed", slog.Any("error", err))
				}
			}
		}
	}()
	return nil
}

// fetch polls once, retrying retriable failures with backoff.
func (p *Poller) fetch(ctx context.Context) error {
	var lastErr error
	for i := 0; i < pollAttempts; i++ {
		if i > 0 {
			delay := infra.CalculateBackoff(i-1, pollRetryDelay, pollRetryMax)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := p.doFetch(ctx)
		p.setConnected(err == nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if !domain.IsRetriable(err) {
			return err
		}
		slog.Debug("Price poll attempt failed", slog.Int("attempt", i+1), slog.Any("error", err))
	}
	return lastErr
}

func (p *Poller) doFetch(ctx context.Context) error {
	codes := make([]string, len(p.symbols))
	for i, s := range p.symbols {
		codes[i] = p.market + "-" + s
	}
	u, err := url.Parse(p.apiURL)
	if err != nil {
		return domain.NewFatalNetworkError("poll", err)
	}
	q := u.Query()
	q.Set("markets", strings.Join(codes, ","))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.NewFatalNetworkError("poll", err)
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("poll", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return domain.NewNetworkError("poll", err)
		}
		return domain.NewFatalNetworkError("poll", err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewNetworkError("read", err)
	}
	var data []restTicker
	if err := json.Unmarshal(body, &data); err != nil {
		return domain.NewFatalNetworkError("decode", err)
	}

	for _, t := range data {
		if !t.TradePrice.IsPositive() {
			continue
		}
		symbol := strings.TrimPrefix(t.Market, p.market+"-")

		// Every snapshot is emitted, steady prices included; the consumer dedupes.
		ts := t.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		select {
		case p.ticks <- domain.PriceTick{Symbol: symbol, Price: t.TradePrice, Ts: ts}:
			p.metrics.RecordFeedTick()
			p.mu.Lock()
			p.last[symbol] = t.TradePrice
			p.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		default:
			slog.Warn("Poll tick channel full, dropping data", slog.String("symbol", symbol))
		}
	}
	return nil
}

func (p *Poller) setConnected(ok bool) {
	p.mu.Lock()
	p.connected = ok
	p.mu.Unlock()
	p.metrics.SetFeedConnected(ok)
}

// Disconnect stops the polling
func (p *Poller) Disconnect() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
	p.setConnected(false)
}

// IsConnected reports whether the last poll succeeded.
func (p *Poller) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// LastPrice returns the last price delivered for symbol.
func (p *Poller) LastPrice(symbol string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.last[symbol]
	return v, ok
}
