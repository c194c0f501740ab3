package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
)

// DefaultWorkerInterval is how often the worker looks for expired markets
const DefaultWorkerInterval = time.Minute

// DeadlineStore is the storage surface the worker needs
type DeadlineStore interface {
	MarketsAwaitingResolution(ctx context.Context, now int64, limit int) ([]ledger.Market, error)
	MarkDeadlineNotified(ctx context.Context, marketID string, at int64) error
}

// DeadlineNotifier tells a market authority that resolution is due
type DeadlineNotifier interface {
	NotifyMarketCreatorDeadline(m ledger.Market) error
}

// MarketWorker periodically notifies market authorities whose markets have
// reached their end timestamp. Each market is notified at most once.
type MarketWorker struct {
	store     DeadlineStore
	notifier  DeadlineNotifier
	clock     ledger.Clock
	interval  time.Duration
	batchSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMarketWorker creates a new market worker
func NewMarketWorker(store DeadlineStore, notifier DeadlineNotifier, clock ledger.Clock, interval time.Duration, batchSize int) *MarketWorker {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultWorkerInterval
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketWorker{
		store:     store,
		notifier:  notifier,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins the background worker
func (w *MarketWorker) Start() {
	logger.Debug("", "market_worker_started", fmt.Sprintf("interval=%v", w.interval))

	// Run immediately on start
	w.NotifyExpiredMarkets(w.ctx)

	ticker := time.NewTicker(w.interval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.NotifyExpiredMarkets(w.ctx)
			case <-w.ctx.Done():
				logger.Debug("", "market_worker_stopped", "")
				return
			}
		}
	}()
}

// Stop stops the background worker and waits for the current pass to finish
func (w *MarketWorker) Stop() {
	w.cancel()
	w.wg.Wait()
}

// NotifyExpiredMarkets runs one pass and returns how many authorities were notified
func (w *MarketWorker) NotifyExpiredMarkets(ctx context.Context) int {
	now := w.clock.Now()
	markets, err := w.store.MarketsAwaitingResolution(ctx, now, w.batchSize)
	if err != nil {
		logger.Debug("", "market_worker_query_failed", "error="+err.Error())
		return 0
	}

	notified := 0
	for _, m := range markets {
		if ctx.Err() != nil {
			break
		}
		// A failed send is retried on the next pass
		if err := w.notifier.NotifyMarketCreatorDeadline(m); err != nil {
			logger.Debug(m.Authority, "market_worker_notify_failed", fmt.Sprintf("market_id=%s error=%v", m.ID, err))
			continue
		}
		if err := w.store.MarkDeadlineNotified(ctx, m.ID, now); err != nil {
			logger.Debug(m.Authority, "market_worker_mark_failed", fmt.Sprintf("market_id=%s error=%v", m.ID, err))
			continue
		}
		notified++
	}

	if notified > 0 {
		logger.Debug("", "market_worker_notified", fmt.Sprintf("count=%d", notified))
	}
	return notified
}
