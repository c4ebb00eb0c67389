package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finwise/internal/amqp"
	"finwise/internal/core"
	"finwise/internal/kv/memory"
	"finwise/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recorder) sink(_ context.Context, a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func setup(t *testing.T) (*store.Store, *BudgetWorker, *recorder) {
	t.Helper()
	storage := memory.New()
	s, err := store.Open(context.Background(), storage)
	require.NoError(t, err)
	rec := &recorder{}
	return s, NewBudgetWorker(storage, nil, rec.sink), rec
}

func setSpent(t *testing.T, s *store.Store, id, spent string) {
	t.Helper()
	v := decimal.RequireFromString(spent)
	_, ok, err := s.UpdateBudgetCategory(context.Background(), id, core.BudgetCategoryPatch{Spent: &v})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBudgetWorker_Escalation(t *testing.T) {
	ctx := context.Background()
	s, w, rec := setup(t)

	b, err := s.AddBudgetCategory(ctx, core.BudgetCategory{
		Name:      "Food",
		Allocated: decimal.NewFromInt(400),
		Spent:     decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	alerts, err := w.Scan(ctx, s.DeviceID())
	require.NoError(t, err)
	assert.Empty(t, alerts, "25% spent is good")

	setSpent(t, s, b.ID, "320")
	alerts, err = w.Scan(ctx, s.DeviceID())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, core.StatusGood, alerts[0].From)
	assert.Equal(t, core.StatusWarning, alerts[0].To)
	assert.Equal(t, "Food", alerts[0].Name)
	assert.InDelta(t, 80.0, alerts[0].Percentage, 0.001)

	t.Run("same status does not alert again", func(t *testing.T) {
		alerts, err := w.Scan(ctx, s.DeviceID())
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("warning to critical", func(t *testing.T) {
		setSpent(t, s, b.ID, "380")
		alerts, err := w.Scan(ctx, s.DeviceID())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, core.StatusWarning, alerts[0].From)
		assert.Equal(t, core.StatusCritical, alerts[0].To)
	})

	t.Run("de-escalation is silent and rearms", func(t *testing.T) {
		setSpent(t, s, b.ID, "10")
		alerts, err := w.Scan(ctx, s.DeviceID())
		require.NoError(t, err)
		assert.Empty(t, alerts)

		setSpent(t, s, b.ID, "390")
		alerts, err = w.Scan(ctx, s.DeviceID())
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, core.StatusGood, alerts[0].From)
		assert.Equal(t, core.StatusCritical, alerts[0].To)
	})

	assert.Equal(t, 3, rec.count())
}

func TestBudgetWorker_HandleChange(t *testing.T) {
	ctx := context.Background()
	s, w, rec := setup(t)

	_, err := s.AddBudgetCategory(ctx, core.BudgetCategory{
		Name:      "Rent",
		Allocated: decimal.NewFromInt(1000),
		Spent:     decimal.NewFromInt(950),
	})
	require.NoError(t, err)

	t.Run("skips unrelated collections", func(t *testing.T) {
		err := w.HandleChange(ctx, &amqp.ChangeMessage{
			DeviceID:   s.DeviceID(),
			Collection: store.CollectionSavingsGoals,
			Operation:  store.OpAdd,
		})
		require.NoError(t, err)
		assert.Empty(t, w.Devices())
		assert.Zero(t, rec.count())
	})

	t.Run("budget change scans the device", func(t *testing.T) {
		err := w.HandleChange(ctx, &amqp.ChangeMessage{
			DeviceID:   s.DeviceID(),
			Collection: store.CollectionBudgetCategories,
			Operation:  store.OpAdd,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{s.DeviceID()}, w.Devices())
		assert.Equal(t, 1, rec.count())
	})

	t.Run("reset forgets the device", func(t *testing.T) {
		err := w.HandleChange(ctx, &amqp.ChangeMessage{
			DeviceID:   s.DeviceID(),
			Collection: store.CollectionDevice,
			Operation:  store.OpReset,
		})
		require.NoError(t, err)
		assert.Empty(t, w.Devices())
	})
}

type failingStorage struct{ *memory.Store }

var errUnavailable = errors.New("storage unavailable")

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errUnavailable
}

func TestBudgetWorker_HandleChangeStorageError(t *testing.T) {
	w := NewBudgetWorker(failingStorage{memory.New()}, nil, nil)
	err := w.HandleChange(context.Background(), &amqp.ChangeMessage{
		DeviceID:   "device_1",
		Collection: store.CollectionTransactions,
		Operation:  store.OpAdd,
	})
	require.ErrorIs(t, err, errUnavailable)
}

func TestBudgetWorker_StartupCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("no device yet", func(t *testing.T) {
		w := NewBudgetWorker(memory.New(), nil, nil)
		require.NoError(t, w.StartupCheck(ctx))
		assert.Empty(t, w.Devices())
	})

	t.Run("reports budgets already over threshold", func(t *testing.T) {
		s, w, rec := setup(t)
		_, err := s.AddBudgetCategory(ctx, core.BudgetCategory{
			Name:      "Fun",
			Allocated: decimal.NewFromInt(100),
			Spent:     decimal.NewFromInt(80),
		})
		require.NoError(t, err)

		require.NoError(t, w.StartupCheck(ctx))
		assert.Equal(t, []string{s.DeviceID()}, w.Devices())
		assert.Equal(t, 1, rec.count())
	})
}

func TestBudgetWorker_Run(t *testing.T) {
	s, w, rec := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := s.AddBudgetCategory(ctx, core.BudgetCategory{
		Name:      "Travel",
		Allocated: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = w.Scan(ctx, s.DeviceID())
	require.NoError(t, err)

	// change arrives without a message; the sweep must pick it up
	setSpent(t, s, b.ID, "95")

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
