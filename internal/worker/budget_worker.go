package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"finwise/internal/amqp"
	"finwise/internal/core"
	"finwise/internal/kv"
	"finwise/internal/log"
	"finwise/internal/store"
)

// Alert reports a budget category whose status got worse.
type Alert struct {
	DeviceID   string            `json:"deviceId"`
	BudgetID   string            `json:"budgetId"`
	Name       string            `json:"name"`
	From       core.BudgetStatus `json:"from"`
	To         core.BudgetStatus `json:"to"`
	Percentage float64           `json:"percentage"`
	At         time.Time         `json:"at"`
}

// AlertSink receives escalations. The default sink logs them.
type AlertSink func(ctx context.Context, a Alert)

// BudgetWorker watches budget usage and raises an Alert whenever a
// category moves up from good to warning or to critical.
type BudgetWorker struct {
	storage kv.Storage
	logger  *log.Logger
	sink    AlertSink
	now     func() time.Time

	mu   sync.Mutex
	last map[string]map[string]core.BudgetStatus // device -> budget -> status
}

func NewBudgetWorker(storage kv.Storage, logger *log.Logger, sink AlertSink) *BudgetWorker {
	if logger == nil {
		logger = log.Discard()
	}
	w := &BudgetWorker{
		storage: storage,
		logger:  logger.WithComponent(log.ComponentWorker),
		now:     time.Now,
		last:    make(map[string]map[string]core.BudgetStatus),
	}
	if sink == nil {
		sink = w.logAlert
	}
	w.sink = sink
	return w
}

func (w *BudgetWorker) logAlert(ctx context.Context, a Alert) {
	w.logger.WarnContext(ctx, "Budget status escalated",
		log.FieldDeviceID, a.DeviceID,
		log.FieldEntityID, a.BudgetID,
		log.FieldCategory, a.Name,
		"from", a.From,
		log.FieldStatus, a.To,
		log.FieldPercentage, a.Percentage)
}

// HandleChange processes a change message from AMQP.
func (w *BudgetWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Collection == store.CollectionDevice && msg.Operation == store.OpReset {
		w.forget(msg.DeviceID)
		return nil
	}
	if !msg.AffectsBudgets() {
		return nil
	}
	if _, err := w.Scan(ctx, msg.DeviceID); err != nil {
		return fmt.Errorf("scan budgets of %s: %w", msg.DeviceID, err)
	}
	return nil
}

// Scan reloads the device's budgets and returns the escalations since the
// previous scan. Unknown categories start from good.
func (w *BudgetWorker) Scan(ctx context.Context, deviceID string) ([]Alert, error) {
	snap, err := store.LoadSnapshot(ctx, w.storage, deviceID)
	if err != nil {
		return nil, err
	}
	usages := core.UsageOfAll(snap.BudgetCategories)

	w.mu.Lock()
	prev := w.last[deviceID]
	next := make(map[string]core.BudgetStatus, len(usages))
	var alerts []Alert
	for _, u := range usages {
		next[u.ID] = u.Status
		from, seen := prev[u.ID]
		if !seen {
			from = core.StatusGood
		}
		if u.Status.Severity() > from.Severity() {
			alerts = append(alerts, Alert{
				DeviceID:   deviceID,
				BudgetID:   u.ID,
				Name:       u.Name,
				From:       from,
				To:         u.Status,
				Percentage: u.Percentage,
				At:         w.now().UTC(),
			})
		}
	}
	w.last[deviceID] = next
	w.mu.Unlock()

	for _, a := range alerts {
		w.sink(ctx, a)
	}
	w.logger.DebugContext(ctx, "Scanned budgets",
		log.FieldDeviceID, deviceID,
		"budgets", len(usages),
		"alerts", len(alerts),
		log.FieldOperation, log.OpBudgetScan)
	return alerts, nil
}

// StartupCheck scans the device recorded in storage, if any, so budgets
// that crossed a threshold while the worker was down are reported.
func (w *BudgetWorker) StartupCheck(ctx context.Context) error {
	deviceID, ok, err := store.ReadDeviceID(ctx, w.storage)
	if err != nil {
		return err
	}
	if !ok {
		w.logger.InfoContext(ctx, "No device found on startup")
		return nil
	}
	_, err = w.Scan(ctx, deviceID)
	return err
}

// Sweep rescans every device seen so far. It backs up missed messages.
func (w *BudgetWorker) Sweep(ctx context.Context) error {
	for _, deviceID := range w.Devices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Scan(ctx, deviceID); err != nil {
			w.logger.ErrorContext(ctx, "Periodic budget scan failed",
				log.FieldDeviceID, deviceID, log.FieldError, err)
		}
	}
	return nil
}

// Run sweeps on every tick until ctx ends.
func (w *BudgetWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				return err
			}
		}
	}
}

// Devices lists the tracked device ids in sorted order.
func (w *BudgetWorker) Devices() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.last))
	for id := range w.last {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *BudgetWorker) forget(deviceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.last, deviceID)
}
