package service

import (
	"context"
	"log/slog"
	"time"

	"option_go/internal/domain"
	"option_go/internal/event"
)

// StateReader reads instance snapshots.
type StateReader interface {
	State(ctx context.Context, id domain.InstanceID) (domain.OptionState, error)
}

// InstanceLister enumerates persisted instances.
type InstanceLister interface {
	Instances(ctx context.Context) ([]domain.InstanceID, error)
}

// SettlementKeeper settles instances once they pass expiry: expire for
// buyer-exercised options, claim for oracle-settled ones.
type SettlementKeeper struct {
	reader    StateReader
	submitter Submitter
	clock     domain.Clock
	caller    domain.Principal
	interval  time.Duration
	instances []domain.InstanceID
	lister    InstanceLister
	logger    *slog.Logger
}

// NewSettlementKeeper watches instances, or every instance lister reports
// when instances is empty.
func NewSettlementKeeper(reader StateReader, submitter Submitter, clock domain.Clock, caller domain.Principal,
	interval time.Duration, instances []domain.InstanceID, lister InstanceLister, logger *slog.Logger) *SettlementKeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementKeeper{
		reader:    reader,
		submitter: submitter,
		clock:     clock,
		caller:    caller,
		interval:  interval,
		instances: instances,
		lister:    lister,
		logger:    logger,
	}
}

func (k *SettlementKeeper) targets(ctx context.Context) ([]domain.InstanceID, error) {
	if len(k.instances) > 0 || k.lister == nil {
		return k.instances, nil
	}
	return k.lister.Instances(ctx)
}

// Sweep submits one settling transition per due instance and returns how
// many were applied.
func (k *SettlementKeeper) Sweep(ctx context.Context) (int, error) {
	now := k.clock.Now()
	if now <= domain.Expiry {
		return 0, nil
	}
	ids, err := k.targets(ctx)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, id := range ids {
		st, err := k.reader.State(ctx, id)
		if err != nil {
			return settled, err
		}
		switch st.Lifecycle() {
		case domain.LifecycleUninitialized, domain.LifecycleSettled:
			continue
		}

		op := domain.OpExpire
		if st.Variant == domain.VariantOracle {
			op = domain.OpClaim
			if st.Purchased && st.Price == nil {
				k.logger.Warn("claim waiting for oracle price", slog.String("instance", string(id)))
				continue
			}
		}

		cmd := event.AcquireCommand()
		cmd.Op = op
		cmd.Instance = id
		cmd.Invocation = domain.Invocation{Caller: k.caller, Now: now}
		res, err := k.submitter.Submit(ctx, cmd)
		if err != nil {
			return settled, err
		}
		event.ReleaseCommand(cmd)
		if res.Err != nil {
			k.logger.Warn("settlement rejected", slog.String("instance", string(id)), slog.String("op", string(op)), slog.Any("error", res.Err))
			continue
		}
		settled++
		k.logger.Info("instance settled", slog.String("instance", string(id)), slog.String("op", string(op)), slog.String("outcome", res.Outcome))
	}
	return settled, nil
}

// Run sweeps every interval until ctx is done.
func (k *SettlementKeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		if _, err := k.Sweep(ctx); err != nil && ctx.Err() == nil {
			k.logger.Error("keeper sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
