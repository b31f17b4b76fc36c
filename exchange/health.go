package exchange

import (
	"context"
	"time"

	"github.com/quorumtrade/quorum/core"
)

// SweepReport summarizes one pass over the working orders
type SweepReport struct {
	Checked      int
	Stale        int
	Cancelled    int
	PartialFills int
}

// HealthMonitor periodically sweeps working orders. Orders older than the
// stale threshold are logged, orders past the maximum age are cancelled,
// and partial fills are reported but left alone so filled quantity is
// never orphaned.
type HealthMonitor struct {
	broker  core.Broker
	storage core.OrderStorage
	cfg     core.IntervalConfig
	log     core.Logger
	clock   func() time.Time
}

// NewHealthMonitor creates a monitor over the given broker and order store
func NewHealthMonitor(broker core.Broker, storage core.OrderStorage, cfg core.IntervalConfig, log core.Logger) *HealthMonitor {
	if cfg.OrderHealth <= 0 {
		cfg.OrderHealth = time.Minute
	}
	if cfg.StaleOrderThreshold <= 0 {
		cfg.StaleOrderThreshold = 5 * time.Minute
	}
	if cfg.MaxOrderAge <= 0 {
		cfg.MaxOrderAge = 30 * time.Minute
	}
	if log == nil {
		log = core.NewNopLogger()
	}
	return &HealthMonitor{
		broker:  broker,
		storage: storage,
		cfg:     cfg,
		log:     log,
		clock:   time.Now,
	}
}

// Start runs the sweep on its interval until the context ends
func (h *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.OrderHealth)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Sweep(ctx); err != nil {
				h.log.WithError(err).Error("order health sweep failed")
			}
		}
	}
}

// Sweep inspects every working order once
func (h *HealthMonitor) Sweep(ctx context.Context) (SweepReport, error) {
	orders, err := h.storage.Orders(ctx,
		core.WithStatusIn(core.OrderStatusTypeNew, core.OrderStatusTypePartiallyFilled))
	if err != nil {
		return SweepReport{}, err
	}

	now := h.clock()
	report := SweepReport{Checked: len(orders)}

	for _, order := range orders {
		age := now.Sub(order.CreatedAt)

		if order.Status == core.OrderStatusTypePartiallyFilled {
			report.PartialFills++
			h.log.WithFields(map[string]any{
				"order_id": order.ID,
				"pair":     order.Pair,
				"age":      age.String(),
			}).Warn("order partially filled, leaving it working")
			continue
		}

		switch {
		case age > h.cfg.MaxOrderAge:
			if err := h.cancel(ctx, order, age); err != nil {
				h.log.WithError(err).WithField("order_id", order.ID).
					Error("failed to cancel overaged order")
				continue
			}
			report.Cancelled++

		case age > h.cfg.StaleOrderThreshold:
			report.Stale++
			h.log.WithFields(map[string]any{
				"order_id": order.ID,
				"pair":     order.Pair,
				"age":      age.String(),
			}).Warn("order stale")
		}
	}

	return report, nil
}

// cancel pulls an overaged order and records the state change
func (h *HealthMonitor) cancel(ctx context.Context, order *core.Order, age time.Duration) error {
	h.log.WithFields(map[string]any{
		"order_id": order.ID,
		"pair":     order.Pair,
		"age":      age.String(),
	}).Warn("cancelling overaged order")

	if err := h.broker.Cancel(ctx, *order); err != nil {
		return err
	}

	order.Status = core.OrderStatusTypePendingCancel
	order.UpdatedAt = h.clock()
	return h.storage.UpdateOrder(ctx, order)
}
