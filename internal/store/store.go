// Package store is the single source of truth for one device's financial
// data. Every mutation is applied in memory and then written through to
// kv.Storage as a whole collection.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finwise/internal/core"
	"finwise/internal/kv"
	"finwise/internal/log"
)

// ErrNotPersisted wraps write failures. The in-memory state was updated.
var ErrNotPersisted = errors.New("change applied in memory but not persisted")

// DataStore is the store contract consumers depend on.
type DataStore interface {
	DeviceID() string
	Snapshot() Snapshot
	Profile() *core.UserProfile
	Transactions() []core.Transaction
	SavingsGoals() []core.SavingsGoal
	BudgetCategories() []core.BudgetCategory
	Theme() core.Theme
	Currency() string
	Totals() core.Totals

	Transaction(id string) (core.Transaction, bool)
	SavingsGoal(id string) (core.SavingsGoal, bool)
	BudgetCategory(id string) (core.BudgetCategory, bool)

	AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, bool, error)
	RemoveTransaction(ctx context.Context, id string) (bool, error)

	AddSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	UpdateSavingsGoal(ctx context.Context, id string, patch core.SavingsGoalPatch) (core.SavingsGoal, bool, error)
	RemoveSavingsGoal(ctx context.Context, id string) (bool, error)
	ContributeToGoal(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, bool, error)

	AddBudgetCategory(ctx context.Context, b core.BudgetCategory) (core.BudgetCategory, error)
	UpdateBudgetCategory(ctx context.Context, id string, patch core.BudgetCategoryPatch) (core.BudgetCategory, bool, error)
	RemoveBudgetCategory(ctx context.Context, id string) (bool, error)

	SetTheme(ctx context.Context, theme core.Theme) error
	SetCurrency(ctx context.Context, code string) error
	SetUserProfile(ctx context.Context, profile *core.UserProfile) error

	SignIn(ctx context.Context, profile core.UserProfile, remember bool) error
	SignOut(ctx context.Context) error
	CompleteOnboarding(ctx context.Context) error
	OnboardingCompleted() bool
	MarkWelcomeSeen(ctx context.Context) error
	HasSeenWelcome() bool
	Reset(ctx context.Context) error
}

var _ DataStore = (*Store)(nil)

// Collection names carried by Change.
const (
	CollectionTransactions     = "transactions"
	CollectionSavingsGoals     = "savingsGoals"
	CollectionBudgetCategories = "budgetCategories"
	CollectionProfile          = "profile"
	CollectionPreferences      = "preferences"
	CollectionSession          = "session"
	CollectionDevice           = "device"
)

// Change operations.
const (
	OpAdd        = "add"
	OpUpdate     = "update"
	OpRemove     = "remove"
	OpContribute = "contribute"
	OpSet        = "set"
	OpReset      = "reset"
)

// Change describes one applied mutation.
type Change struct {
	DeviceID   string    `json:"deviceId"`
	Collection string    `json:"collection"`
	Operation  string    `json:"operation"`
	EntityID   string    `json:"entityId,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier observes mutations. It is called outside the store lock and its
// errors never fail the mutation.
type Notifier interface {
	Notify(ctx context.Context, change Change) error
}

type NotifierFunc func(ctx context.Context, change Change) error

func (f NotifierFunc) Notify(ctx context.Context, change Change) error { return f(ctx, change) }

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentStore)
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store implements DataStore over a kv.Storage.
type Store struct {
	storage  kv.Storage
	logger   *log.Logger
	notifier Notifier
	now      func() time.Time

	mu        sync.Mutex
	deviceID  string
	profile   *core.UserProfile
	txs       collection[core.Transaction]
	goals     collection[core.SavingsGoal]
	budgets   collection[core.BudgetCategory]
	theme     core.Theme
	currency  string
	onboarded bool
	welcomed  bool
	lastID    int64
	issuedIDs map[string]struct{}
}

// Open loads (or initializes) the device's state from storage.
func Open(ctx context.Context, storage kv.Storage, opts ...Option) (*Store, error) {
	if storage == nil {
		return nil, errors.New("store: nil storage")
	}
	s := &Store{
		storage: storage,
		logger:  log.Discard().WithComponent(log.ComponentStore),
		now:     time.Now,
		txs: collection[core.Transaction]{
			name:  CollectionTransactions,
			key:   TransactionsKey,
			idRef: func(t *core.Transaction) *string { return &t.ID },
		},
		goals: collection[core.SavingsGoal]{
			name:  CollectionSavingsGoals,
			key:   SavingsGoalsKey,
			idRef: func(g *core.SavingsGoal) *string { return &g.ID },
		},
		budgets: collection[core.BudgetCategory]{
			name:  CollectionBudgetCategories,
			key:   BudgetCategoriesKey,
			idRef: func(b *core.BudgetCategory) *string { return &b.ID },
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initLocked(ctx context.Context) error {
	deviceID, ok, err := loadString(ctx, s.storage, KeyDeviceID)
	if err != nil {
		return err
	}
	if !ok || deviceID == "" {
		deviceID = NewDeviceID(s.now())
		if err := s.storage.Set(ctx, KeyDeviceID, deviceID); err != nil {
			s.logger.WarnContext(ctx, "Failed to persist new device id",
				log.FieldDeviceID, deviceID, log.FieldError, err)
		} else {
			s.logger.InfoContext(ctx, "Generated device id", log.FieldDeviceID, deviceID)
		}
	}

	snap, err := loadSnapshot(ctx, s.storage, deviceID, s.logger)
	if err != nil {
		return err
	}

	if snap.Profile == nil {
		var remembered core.UserProfile
		found, err := loadJSON(ctx, s.storage, KeyRememberedUser, &remembered, s.logger)
		if err != nil {
			return err
		}
		if found {
			remembered.DeviceID = deviceID
			snap.Profile = &remembered
			if err := s.writeJSON(ctx, ProfileKey(deviceID), remembered); err != nil {
				s.logger.WarnContext(ctx, "Failed to persist remembered profile", log.FieldError, err)
			}
			s.logger.InfoContext(ctx, "Restored remembered profile", log.FieldDeviceID, deviceID)
		}
	}

	s.deviceID = deviceID
	s.profile = snap.Profile
	s.txs.items = snap.Transactions
	s.goals.items = snap.SavingsGoals
	s.budgets.items = snap.BudgetCategories
	s.theme = snap.Theme
	s.currency = snap.Currency
	s.onboarded = snap.OnboardingCompleted
	s.welcomed = snap.HasSeenWelcome

	if s.issuedIDs == nil {
		s.issuedIDs = make(map[string]struct{})
	}
	s.txs.track(s)
	s.goals.track(s)
	s.budgets.track(s)

	s.logger.DebugContext(ctx, "Loaded state",
		log.FieldDeviceID, deviceID,
		"transactions", len(s.txs.items),
		"savings_goals", len(s.goals.items),
		"budget_categories", len(s.budgets.items))
	return nil
}

// trackID records a loaded id so it is never issued again.
func (s *Store) trackID(id string) {
	s.issuedIDs[id] = struct{}{}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > s.lastID {
		s.lastID = n
	}
}

// nextID returns a millisecond timestamp id, strictly greater than any
// numeric id seen so far.
func (s *Store) nextID() string {
	n := s.now().UnixMilli()
	if n <= s.lastID {
		n = s.lastID + 1
	}
	for {
		id := strconv.FormatInt(n, 10)
		if _, taken := s.issuedIDs[id]; !taken {
			s.lastID = n
			s.issuedIDs[id] = struct{}{}
			return id
		}
		n++
	}
}

func (s *Store) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.write(ctx, key, string(data))
}

// write stores value and wraps any failure in ErrNotPersisted.
func (s *Store) write(ctx context.Context, key, value string) error {
	if err := s.storage.Set(ctx, key, value); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist",
			log.FieldKey, key, log.FieldError, err, log.FieldOperation, log.OpPersist)
		return fmt.Errorf("%w: %s: %w", ErrNotPersisted, key, err)
	}
	return nil
}

func (s *Store) deleteKey(ctx context.Context, key string) error {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete",
			log.FieldKey, key, log.FieldError, err, log.FieldOperation, log.OpDelete)
		return fmt.Errorf("%w: %s: %w", ErrNotPersisted, key, err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, deviceID, collection, op, entityID string) {
	if s.notifier == nil {
		return
	}
	change := Change{
		DeviceID:   deviceID,
		Collection: collection,
		Operation:  op,
		EntityID:   entityID,
		At:         s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "Change notification failed",
			log.NewFields().WithEntity(deviceID, collection, entityID).WithError(err).ToSlice()...)
	}
}

func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		DeviceID:            s.deviceID,
		Profile:             cloneProfile(s.profile),
		Transactions:        s.txs.list(),
		SavingsGoals:        s.goals.list(),
		BudgetCategories:    s.budgets.list(),
		Theme:               s.theme,
		Currency:            s.currency,
		OnboardingCompleted: s.onboarded,
		HasSeenWelcome:      s.welcomed,
	}
}

func (s *Store) Profile() *core.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProfile(s.profile)
}

func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs.list()
}

func (s *Store) SavingsGoals() []core.SavingsGoal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goals.list()
}

func (s *Store) BudgetCategories() []core.BudgetCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets.list()
}

func (s *Store) Theme() core.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

func (s *Store) Currency() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currency
}

// Totals derives income, expense and balance from the transactions.
func (s *Store) Totals() core.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Summarize(s.txs.items)
}

func (s *Store) Transaction(id string) (core.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs.get(id)
}

func (s *Store) SavingsGoal(id string) (core.SavingsGoal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goals.get(id)
}

func (s *Store) BudgetCategory(id string) (core.BudgetCategory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets.get(id)
}

func (s *Store) AddTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	return add(ctx, s, &s.txs, tx)
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, bool, error) {
	return update(ctx, s, &s.txs, id, OpUpdate, patch.Apply)
}

func (s *Store) RemoveTransaction(ctx context.Context, id string) (bool, error) {
	return remove(ctx, s, &s.txs, id)
}

func (s *Store) AddSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	return add(ctx, s, &s.goals, g)
}

func (s *Store) UpdateSavingsGoal(ctx context.Context, id string, patch core.SavingsGoalPatch) (core.SavingsGoal, bool, error) {
	return update(ctx, s, &s.goals, id, OpUpdate, patch.Apply)
}

func (s *Store) RemoveSavingsGoal(ctx context.Context, id string) (bool, error) {
	return remove(ctx, s, &s.goals, id)
}

// ContributeToGoal adds amount to the goal's current savings.
func (s *Store) ContributeToGoal(ctx context.Context, id string, amount decimal.Decimal) (core.SavingsGoal, bool, error) {
	return update(ctx, s, &s.goals, id, OpContribute, func(g core.SavingsGoal) core.SavingsGoal {
		g.Current = g.Current.Add(amount)
		return g
	})
}

func (s *Store) AddBudgetCategory(ctx context.Context, b core.BudgetCategory) (core.BudgetCategory, error) {
	return add(ctx, s, &s.budgets, b)
}

func (s *Store) UpdateBudgetCategory(ctx context.Context, id string, patch core.BudgetCategoryPatch) (core.BudgetCategory, bool, error) {
	return update(ctx, s, &s.budgets, id, OpUpdate, patch.Apply)
}

func (s *Store) RemoveBudgetCategory(ctx context.Context, id string) (bool, error) {
	return remove(ctx, s, &s.budgets, id)
}

// SetTheme stores the theme under the global key.
func (s *Store) SetTheme(ctx context.Context, theme core.Theme) error {
	s.mu.Lock()
	s.theme = theme
	err := s.write(ctx, KeyTheme, string(theme))
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, CollectionPreferences, OpSet, KeyTheme)
	return err
}

func (s *Store) SetCurrency(ctx context.Context, code string) error {
	s.mu.Lock()
	s.currency = code
	err := s.write(ctx, CurrencyKey(s.deviceID), code)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, CollectionPreferences, OpSet, "currency")
	return err
}

// SetUserProfile replaces the profile. nil deletes it.
func (s *Store) SetUserProfile(ctx context.Context, profile *core.UserProfile) error {
	s.mu.Lock()
	err := s.setProfileLocked(ctx, profile)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, CollectionProfile, OpSet, "")
	return err
}

func (s *Store) setProfileLocked(ctx context.Context, profile *core.UserProfile) error {
	if profile == nil {
		s.profile = nil
		return s.deleteKey(ctx, ProfileKey(s.deviceID))
	}
	p := cloneProfile(profile)
	if p.DeviceID == "" {
		p.DeviceID = s.deviceID
	}
	s.profile = p
	return s.writeJSON(ctx, ProfileKey(s.deviceID), p)
}

func cloneProfile(p *core.UserProfile) *core.UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.MonthlyIncome = cloneDecimal(p.MonthlyIncome)
	c.MonthlyExpenses = cloneDecimal(p.MonthlyExpenses)
	c.SavingsGoal = cloneDecimal(p.SavingsGoal)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := d.Copy()
	return &c
}

// collection is one id-keyed, insertion-ordered list persisted as a single
// JSON array.
type collection[T any] struct {
	name  string
	key   func(deviceID string) string
	idRef func(*T) *string
	items []T
}

func (c *collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(v T) bool { return *c.idRef(&v) == id })
}

func (c *collection[T]) get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *collection[T]) list() []T {
	out := slices.Clone(c.items)
	if out == nil {
		out = []T{}
	}
	return out
}

func (c *collection[T]) track(s *Store) {
	for i := range c.items {
		s.trackID(*c.idRef(&c.items[i]))
	}
}

func (c *collection[T]) persist(ctx context.Context, s *Store) error {
	items := c.items
	if items == nil {
		items = []T{}
	}
	return s.writeJSON(ctx, c.key(s.deviceID), items)
}

func add[T any](ctx context.Context, s *Store, c *collection[T], v T) (T, error) {
	s.mu.Lock()
	id := s.nextID()
	*c.idRef(&v) = id
	c.items = append(c.items, v)
	err := c.persist(ctx, s)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, c.name, OpAdd, id)
	return v, err
}

// update applies fn to the entity in place. A missing id is a no-op.
func update[T any](ctx context.Context, s *Store, c *collection[T], id, op string, fn func(T) T) (T, bool, error) {
	s.mu.Lock()
	i := c.index(id)
	if i < 0 {
		s.mu.Unlock()
		var zero T
		return zero, false, nil
	}
	v := fn(c.items[i])
	*c.idRef(&v) = id
	c.items[i] = v
	err := c.persist(ctx, s)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, c.name, op, id)
	return v, true, err
}

func remove[T any](ctx context.Context, s *Store, c *collection[T], id string) (bool, error) {
	s.mu.Lock()
	i := c.index(id)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	c.items = slices.Delete(c.items, i, i+1)
	err := c.persist(ctx, s)
	deviceID := s.deviceID
	s.mu.Unlock()

	s.notify(ctx, deviceID, c.name, OpRemove, id)
	return true, err
}
