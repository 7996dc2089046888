// Package sim periodically refreshes position marks with a simulated
// price walk. It writes currentPrice and profit only — never cash
// balances or share counts — and routes every write through the store's
// atomic update so it cannot clobber a concurrent trade.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockpilot/paper-engine/internal/ledger"
	"github.com/stockpilot/paper-engine/internal/store"
)

// Config holds refresher configuration.
type Config struct {
	Interval time.Duration // refresh interval (default: 30s)
	MaxDrift float64       // max relative price move per tick (default: 0.02)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		MaxDrift: 0.02,
	}
}

// Refresher drives the simulated market: on every tick it walks each
// open position's price by a bounded random step and recomputes profit.
type Refresher struct {
	cfg    Config
	store  store.Store
	hub    *ledger.Hub // optional
	logger *slog.Logger
	rng    *rand.Rand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Refresher. Pass nil for hub to skip broadcasts.
func New(cfg Config, st store.Store, hub *ledger.Hub, logger *slog.Logger) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxDrift <= 0 {
		cfg.MaxDrift = DefaultConfig().MaxDrift
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:    cfg,
		store:  st,
		hub:    hub,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)

	r.logger.Info("price refresher started", "interval", r.cfg.Interval)
}

// Stop shuts down the refresh loop, waiting for an in-flight pass.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("price refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll walks prices for every account's positions once.
func (r *Refresher) RefreshAll(ctx context.Context) {
	ids, err := r.store.ListAccountIDs(ctx)
	if err != nil {
		r.logger.Error("price refresh: list accounts", "err", err)
		return
	}

	for _, userID := range ids {
		if err := r.refreshAccount(ctx, userID); err != nil {
			r.logger.Error("price refresh failed", "user", userID, "err", err)
		}
	}
}

func (r *Refresher) refreshAccount(ctx context.Context, userID string) error {
	positions, err := r.store.ListPositions(ctx, userID)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	err = r.store.UpdateAccount(ctx, userID, func(tx store.AccountTx) error {
		for i := range positions {
			// Re-read inside the transaction: a concurrent trade may
			// have changed or closed the position.
			pos, ok, err := tx.Position(positions[i].Symbol)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			drift := (r.rng.Float64()*2 - 1) * r.cfg.MaxDrift
			factor := decimal.NewFromFloat(1 + drift)
			oldPrice := pos.CurrentPrice
			newPrice := oldPrice.Mul(factor).Round(2)
			if !newPrice.IsPositive() {
				newPrice = oldPrice
			}

			shares := decimal.NewFromInt(pos.Shares)
			delta := newPrice.Sub(oldPrice).Mul(shares)

			pos.CurrentPrice = newPrice
			pos.Profit = pos.Profit.Add(delta)
			tx.PutPosition(pos)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.hub != nil {
		r.hub.Broadcast(ledger.Event{Type: "prices_refreshed", UserID: userID})
	}
	return nil
}
