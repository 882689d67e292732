package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"option_go/internal/domain"
	"option_go/internal/event"
)

// Submitter hands a command to the sequencer and waits for its result.
type Submitter interface {
	Submit(ctx context.Context, cmd *event.Command) (event.Result, error)
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

const defaultRetryEvery = 5 * time.Second

// ToMinorUnits converts a feed price to quote-token minor units:
// price * 10^decimals, truncated toward zero.
func ToMinorUnits(price decimal.Decimal, decimals int32) (domain.Amount, error) {
	if price.IsNegative() {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidPrice, price)
	}
	v := price.Shift(decimals).Truncate(0)
	if v.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s", domain.ErrOverflow, price)
	}
	return domain.Amount(v.IntPart()), nil
}

// OracleService turns feed ticks into update_price transitions for the
// oracle-settled instances it is responsible for.
type OracleService struct {
	submitter Submitter
	clock     domain.Clock
	oracle    domain.Principal
	symbol    string
	decimals  int32
	instances []domain.InstanceID
	retry     time.Duration
	logger    *slog.Logger

	mu       sync.RWMutex
	last     map[string]domain.PriceTick
	posted   map[domain.InstanceID]domain.Amount
	tickChan chan domain.PriceTick
}

// OracleConfig names what the service posts and as whom.
type OracleConfig struct {
	Oracle    domain.Principal
	Symbol    string
	Decimals  int32
	Instances []domain.InstanceID
	// RetryInterval re-posts the latest price to instances that have not
	// accepted it yet. Zero uses a default of 5s.
	RetryInterval time.Duration
}

// NewOracleService creates a new OracleService instance
func NewOracleService(submitter Submitter, clock domain.Clock, cfg OracleConfig, logger *slog.Logger) *OracleService {
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.RetryInterval
	if retry <= 0 {
		retry = defaultRetryEvery
	}
	return &OracleService{
		submitter: submitter,
		clock:     clock,
		oracle:    cfg.Oracle,
		symbol:    cfg.Symbol,
		decimals:  cfg.Decimals,
		instances: cfg.Instances,
		retry:     retry,
		logger:    logger,
		last:      make(map[string]domain.PriceTick),
		posted:    make(map[domain.InstanceID]domain.Amount),
		tickChan:  make(chan domain.PriceTick, 1000), // 버스트 대응을 위한 충분한 버퍼
	}
}

// TickChan returns the channel feed workers write to.
func (s *OracleService) TickChan() chan domain.PriceTick {
	return s.tickChan
}

// LastPrice returns the most recent tick seen for symbol.
func (s *OracleService) LastPrice(symbol string) (domain.PriceTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[symbol]
	return t, ok
}

// StartTickProcessor starts a background goroutine to process ticks from the
// channel. Between ticks it periodically retries instances still missing the
// latest price.
func (s *OracleService) StartTickProcessor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.retry)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-s.tickChan:
				if _, err := s.OnTick(ctx, tick); err != nil {
					s.logger.Warn("oracle tick failed", slog.Any("error", err))
				}
			case <-ticker.C:
				if _, err := s.Retry(ctx); err != nil {
					s.logger.Warn("oracle retry failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// OnTick posts tick's price to every instance that has not accepted it.
// It returns how many updates were applied.
func (s *OracleService) OnTick(ctx context.Context, tick domain.PriceTick) (int, error) {
	s.mu.Lock()
	s.last[tick.Symbol] = tick
	s.mu.Unlock()

	if tick.Symbol != s.symbol {
		return 0, nil
	}
	return s.postAll(ctx, tick)
}

// Retry re-posts the latest tick to every instance that has not accepted it,
// e.g. because the oracle window was closed or the instance did not exist yet.
func (s *OracleService) Retry(ctx context.Context) (int, error) {
	tick, ok := s.LastPrice(s.symbol)
	if !ok {
		return 0, nil
	}
	return s.postAll(ctx, tick)
}

func (s *OracleService) postAll(ctx context.Context, tick domain.PriceTick) (int, error) {
	price, err := ToMinorUnits(tick.Price, s.decimals)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, id := range s.instances {
		s.mu.RLock()
		prev, seen := s.posted[id]
		s.mu.RUnlock()
		if seen && prev == price {
			continue
		}

		res, err := s.post(ctx, id, price)
		if err != nil {
			return applied, err
		}
		switch {
		case res.Err == nil:
			applied++
			s.markPosted(id, price)
		case errors.Is(res.Err, domain.ErrSettled), errors.Is(res.Err, domain.ErrWrongVariant):
			// Never accepts a price again.
			s.markPosted(id, price)
			s.logger.Debug("price not posted", slog.String("instance", string(id)), slog.Any("error", res.Err))
		case errors.Is(res.Err, domain.ErrOracleWindow), errors.Is(res.Err, domain.ErrNotInitialized):
			s.logger.Debug("price deferred", slog.String("instance", string(id)), slog.Any("error", res.Err))
		default:
			s.logger.Warn("price rejected", slog.String("instance", string(id)), slog.Any("error", res.Err))
		}
	}
	return applied, nil
}

func (s *OracleService) markPosted(id domain.InstanceID, price domain.Amount) {
	s.mu.Lock()
	s.posted[id] = price
	s.mu.Unlock()
}

func (s *OracleService) post(ctx context.Context, id domain.InstanceID, price domain.Amount) (event.Result, error) {
	cmd := event.AcquireCommand()
	cmd.Op = domain.OpUpdatePrice
	cmd.Instance = id
	cmd.Invocation = domain.Invocation{Caller: s.oracle, Now: s.clock.Now()}
	cmd.Price = price
	res, err := s.submitter.Submit(ctx, cmd)
	// An abandoned command may still be answered; never recycle it.
	if err == nil {
		event.ReleaseCommand(cmd)
	}
	return res, err
}
