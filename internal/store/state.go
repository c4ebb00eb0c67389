package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"finwise/internal/core"
	"finwise/internal/kv"
	"finwise/internal/log"
)

// Snapshot is a point-in-time copy of one device's state.
type Snapshot struct {
	DeviceID            string                `json:"deviceId"`
	Profile             *core.UserProfile     `json:"profile"`
	Transactions        []core.Transaction    `json:"transactions"`
	SavingsGoals        []core.SavingsGoal    `json:"savingsGoals"`
	BudgetCategories    []core.BudgetCategory `json:"budgetCategories"`
	Theme               core.Theme            `json:"theme"`
	Currency            string                `json:"currency"`
	OnboardingCompleted bool                  `json:"onboardingCompleted"`
	HasSeenWelcome      bool                  `json:"hasSeenWelcome"`
}

// LoadSnapshot reads the state of deviceID without writing anything. Absent
// and malformed blobs load as empty.
func LoadSnapshot(ctx context.Context, storage kv.Storage, deviceID string) (Snapshot, error) {
	return loadSnapshot(ctx, storage, deviceID, log.Discard())
}

func loadSnapshot(ctx context.Context, storage kv.Storage, deviceID string, logger *log.Logger) (Snapshot, error) {
	snap := Snapshot{
		DeviceID:         deviceID,
		Transactions:     []core.Transaction{},
		SavingsGoals:     []core.SavingsGoal{},
		BudgetCategories: []core.BudgetCategory{},
		Theme:            core.DefaultTheme,
		Currency:         core.DefaultCurrency,
	}

	var profile core.UserProfile
	ok, err := loadJSON(ctx, storage, ProfileKey(deviceID), &profile, logger)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.Profile = &profile
	}

	if _, err := loadJSON(ctx, storage, TransactionsKey(deviceID), &snap.Transactions, logger); err != nil {
		return snap, err
	}
	if _, err := loadJSON(ctx, storage, SavingsGoalsKey(deviceID), &snap.SavingsGoals, logger); err != nil {
		return snap, err
	}
	if _, err := loadJSON(ctx, storage, BudgetCategoriesKey(deviceID), &snap.BudgetCategories, logger); err != nil {
		return snap, err
	}

	theme, ok, err := loadString(ctx, storage, KeyTheme)
	if err != nil {
		return snap, err
	}
	if t := core.Theme(theme); ok && t.Valid() {
		snap.Theme = t
	}

	currency, ok, err := loadString(ctx, storage, CurrencyKey(deviceID))
	if err != nil {
		return snap, err
	}
	if ok && currency != "" {
		snap.Currency = currency
	}

	if snap.OnboardingCompleted, err = loadSentinel(ctx, storage, KeyOnboardingCompleted); err != nil {
		return snap, err
	}
	if snap.HasSeenWelcome, err = loadSentinel(ctx, storage, KeyHasSeenWelcome); err != nil {
		return snap, err
	}

	return snap, nil
}

// loadJSON decodes key into dst. A malformed value is logged and reported
// as absent, leaving dst untouched.
func loadJSON[T any](ctx context.Context, storage kv.Storage, key string, dst *T, logger *log.Logger) (bool, error) {
	raw, ok, err := storage.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || strings.TrimSpace(raw) == "" || raw == "null" {
		return false, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logger.WarnContext(ctx, "Discarding malformed stored value",
			log.FieldKey, key,
			log.FieldError, err,
			log.FieldOperation, log.OpLoad)
		return false, nil
	}
	*dst = v
	return true, nil
}

// loadString reads a scalar. A JSON-quoted string is unquoted.
func loadString(ctx context.Context, storage kv.Storage, key string) (string, bool, error) {
	raw, ok, err := storage.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 && raw[0] == '"' {
		var s string
		if json.Unmarshal([]byte(raw), &s) == nil {
			raw = s
		}
	}
	return raw, true, nil
}

func loadSentinel(ctx context.Context, storage kv.Storage, key string) (bool, error) {
	v, ok, err := loadString(ctx, storage, key)
	if err != nil {
		return false, err
	}
	return ok && v == sentinelTrue, nil
}

// ReadDeviceID returns the device id recorded in storage without creating
// one.
func ReadDeviceID(ctx context.Context, storage kv.Storage) (string, bool, error) {
	id, ok, err := loadString(ctx, storage, KeyDeviceID)
	if err != nil || !ok || id == "" {
		return "", false, err
	}
	return id, true, nil
}
