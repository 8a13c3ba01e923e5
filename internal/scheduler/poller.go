package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"adspilot/internal/approvals"
)

// Poller refreshes the pending-proposal counter on a fixed interval. The
// counter is eventually consistent: mutations invalidate it immediately, and
// the poller keeps it converging in between.
type Poller struct {
	store    *approvals.Store
	interval time.Duration
	notify   bool
	logger   *slog.Logger
	onCount  func(count int)

	lastCount int
	hasCount  bool
}

func New(store *approvals.Store, interval time.Duration, notify bool, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{
		store:    store,
		interval: interval,
		notify:   notify,
		logger:   logger,
	}
}

// SetOnCount registers a hook invoked with every refreshed count.
func (p *Poller) SetOnCount(fn func(count int)) {
	p.onCount = fn
}

// Run polls until the context is canceled. The first refresh happens
// immediately so callers see a count without waiting a full interval.
func (p *Poller) Run(ctx context.Context) error {
	p.refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	count, err := p.store.RefreshPendingCount(ctx)
	if err != nil {
		p.logger.Error("refreshing pending count", "error", err)
		return
	}

	p.logger.Debug("pending count refreshed", "count", count)

	if p.notify && p.hasCount && count > p.lastCount {
		p.sendNotification(count - p.lastCount)
	}
	p.lastCount = count
	p.hasCount = true

	if p.onCount != nil {
		p.onCount(count)
	}
}

func (p *Poller) sendNotification(created int) {
	msg := fmt.Sprintf("%d nova(s) sugestão(ões) aguardando aprovação", created)
	if err := beeep.Notify("adspilot", msg, ""); err != nil {
		p.logger.Debug("desktop notification failed", "error", err)
	}
}
