package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finwise/internal/assistant"
	"finwise/internal/core"
	"finwise/internal/kv/memory"
	"finwise/internal/store"
)

// switchStorage fails every write while broken is set.
type switchStorage struct {
	*memory.Store
	broken atomic.Bool
}

var errReadOnly = errors.New("read-only file system")

func (s *switchStorage) Set(ctx context.Context, key, value string) error {
	if s.broken.Load() {
		return errReadOnly
	}
	return s.Store.Set(ctx, key, value)
}

func (s *switchStorage) Delete(ctx context.Context, key string) error {
	if s.broken.Load() {
		return errReadOnly
	}
	return s.Store.Delete(ctx, key)
}

type fixture struct {
	storage *switchStorage
	store   *store.Store
	gateway *assistant.Gateway
	server  *Server
	chat    *httptest.Server
	asked   atomic.Int32
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{storage: &switchStorage{Store: memory.New()}}

	f.chat = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.asked.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Spend less on coffee."}}]}`))
	}))
	t.Cleanup(f.chat.Close)

	var err error
	f.store, err = store.Open(ctx, f.storage)
	require.NoError(t, err)
	f.gateway, err = assistant.New(ctx, f.storage, f.store.DeviceID(), f.store,
		assistant.WithHTTPClient(f.chat.Client()))
	require.NoError(t, err)

	f.server = NewServer(Options{
		Addr:               ":0",
		Store:              f.store,
		Assistant:          f.gateway,
		Storage:            f.storage,
		RateLimitPerMinute: rateLimit,
	})
	t.Cleanup(func() { _ = f.server.Shutdown(context.Background()) })
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.server.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type created[T any] struct {
	Data    T      `json:"data"`
	Warning string `json:"warning"`
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, 60)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}

	rr := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestTransactions(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodPost, "/api/transactions",
		`{"name":"Coffee","category":"Food","amount":4.50,"date":"2024-03-01","type":"expense"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"amount":4.5,`)
	tx := decode[created[core.Transaction]](t, rr).Data
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Coffee", tx.Name)
	assert.True(t, tx.Amount.Equal(dec("4.50")))

	t.Run("validation", func(t *testing.T) {
		cases := map[string]struct {
			body string
			want int
		}{
			"malformed json": {`{"name":`, http.StatusBadRequest},
			"unknown field":  {`{"nam":"x"}`, http.StatusBadRequest},
			"trailing data":  {`{"name":"a"} {}`, http.StatusBadRequest},
			"empty name":     {`{"name":" ","amount":"1","date":"2024-03-01","type":"expense"}`, http.StatusUnprocessableEntity},
			"zero amount":    {`{"name":"a","amount":"0","date":"2024-03-01","type":"expense"}`, http.StatusUnprocessableEntity},
			"bad date":       {`{"name":"a","amount":"1","date":"03/01/2024","type":"expense"}`, http.StatusUnprocessableEntity},
			"bad type":       {`{"name":"a","amount":"1","date":"2024-03-01","type":"gift"}`, http.StatusUnprocessableEntity},
		}
		for name, tc := range cases {
			rr := f.do(t, http.MethodPost, "/api/transactions", tc.body)
			assert.Equal(t, tc.want, rr.Code, name)
			assert.NotEmpty(t, decode[errorResponse](t, rr).Error, name)
		}
		assert.Len(t, f.store.Transactions(), 1, "rejected requests change nothing")
	})

	t.Run("patch in place", func(t *testing.T) {
		rr := f.do(t, http.MethodPatch, "/api/transactions/"+tx.ID, `{"amount":5.25}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		got := decode[created[core.Transaction]](t, rr).Data
		assert.Equal(t, tx.ID, got.ID)
		assert.Equal(t, "Coffee", got.Name)
		assert.True(t, got.Amount.Equal(dec("5.25")))
	})

	t.Run("patch missing id", func(t *testing.T) {
		rr := f.do(t, http.MethodPatch, "/api/transactions/nope", `{"amount":"1"}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rr := f.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "")
			assert.Equal(t, http.StatusNoContent, rr.Code)
		}
		assert.Empty(t, f.store.Transactions())
	})
}

func TestGoalsAndBudgets(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodPost, "/api/goals", `{"name":"Trip","target":"1000","current":"250","deadline":"2999-01-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	goal := decode[created[core.SavingsGoal]](t, rr).Data

	rr = f.do(t, http.MethodPost, "/api/goals/"+goal.ID+"/contributions", `{"amount":"250"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[created[core.SavingsGoal]](t, rr).Data.Current.Equal(dec("500")))

	rr = f.do(t, http.MethodPost, "/api/goals/"+goal.ID+"/contributions", `{"amount":"-5"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/goals/missing/contributions", `{"amount":"5"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/budgets", `{"name":"Food","allocated":"400","spent":"320"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	budget := decode[created[core.BudgetCategory]](t, rr).Data

	rr = f.do(t, http.MethodGet, "/api/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[summaryResponse](t, rr)
	require.Len(t, sum.Budgets, 1)
	assert.Equal(t, core.StatusWarning, sum.Budgets[0].Status)
	require.Len(t, sum.Goals, 1)
	assert.InDelta(t, 50.0, sum.Goals[0].Percentage, 0.001)
	assert.True(t, sum.Goals[0].OnTrack)
	assert.Equal(t, "USD", sum.Currency)

	rr = f.do(t, http.MethodPatch, "/api/budgets/"+budget.ID, `{"allocated":"-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = f.do(t, http.MethodDelete, "/api/budgets/"+budget.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, "/api/goals/"+goal.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	state := decode[stateResponse](t, f.do(t, http.MethodGet, "/api/state", ""))
	assert.Empty(t, state.SavingsGoals)
	assert.Empty(t, state.BudgetCategories)
	assert.Equal(t, f.store.DeviceID(), state.DeviceID)
}

func TestProfileAndPreferences(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodPut, "/api/profile", `{"name":"Ada","email":"not-an-email"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/profile", `{"name":"Ada","email":"ada@example.com","monthlyIncome":"4200"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p := decode[created[core.UserProfile]](t, rr).Data
	assert.Equal(t, f.store.DeviceID(), p.DeviceID)

	rr = f.do(t, http.MethodDelete, "/api/profile", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, f.store.Profile())

	rr = f.do(t, http.MethodPut, "/api/preferences", `{"theme":"dark","currency":"XXXX"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, core.ThemeLight, f.store.Theme(), "nothing applied when one field is invalid")

	rr = f.do(t, http.MethodPut, "/api/preferences", `{"theme":"dark","currency":"eur"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	prefs := decode[created[preferencesResponse]](t, rr).Data
	assert.Equal(t, core.ThemeDark, prefs.Theme)
	assert.Equal(t, "EUR", prefs.Currency)

	rr = f.do(t, http.MethodPut, "/api/preferences", `{"theme":"blue"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAssistant(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodPost, "/api/assistant/ask", `{"question":"How am I doing?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, assistant.MessageNoAPIKey, decode[askResponse](t, rr).Reply)
	assert.Zero(t, f.asked.Load())

	rr = f.do(t, http.MethodPut, "/api/assistant", `{"endpointUrl":"ftp://nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/assistant",
		`{"apiKey":"sk-secret-9876","endpointUrl":"`+f.chat.URL+`/v1/chat/completions","language":"es"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decode[created[assistantResponse]](t, rr).Data
	assert.Equal(t, "********9876", view.APIKey)
	assert.True(t, view.HasAPIKey)
	assert.Equal(t, assistant.DefaultModel, view.Model, "absent fields are kept")

	rr = f.do(t, http.MethodGet, "/api/assistant", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "sk-secret")
	assert.Equal(t, "es", decode[assistantResponse](t, rr).Language)

	rr = f.do(t, http.MethodPost, "/api/assistant/ask", `{"question":"How am I doing?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Spend less on coffee.", decode[askResponse](t, rr).Reply)
	assert.Equal(t, int32(1), f.asked.Load())

	rr = f.do(t, http.MethodPost, "/api/assistant/ask", `{"question":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestPersistFailureReturnsWarning(t *testing.T) {
	f := newFixture(t, 60)
	f.storage.broken.Store(true)

	rr := f.do(t, http.MethodPost, "/api/budgets", `{"name":"Rent","allocated":"1200","spent":"0"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[created[core.BudgetCategory]](t, rr)
	assert.Contains(t, resp.Warning, "could not be saved")
	assert.Len(t, f.store.BudgetCategories(), 1, "state applied in memory")

	rr = f.do(t, http.MethodDelete, "/api/budgets/"+resp.Data.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decode[mutationResponse](t, rr).Warning)

	rr = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code, "reads still work")
}

func TestRateLimitOnlyMutations(t *testing.T) {
	f := newFixture(t, 2)

	for i := 0; i < 2; i++ {
		rr := f.do(t, http.MethodPut, "/api/preferences", `{"theme":"dark"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := f.do(t, http.MethodPut, "/api/preferences", `{"theme":"light"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, core.ThemeDark, f.store.Theme())

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/state", "").Code)
	}
}

func TestServerShutdown(t *testing.T) {
	f := newFixture(t, 60)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.server.Shutdown(ctx))
	require.NoError(t, f.server.Shutdown(ctx), "second shutdown is a no-op")
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, sessionResponse{}, decode[sessionResponse](t, rr))

	rr = f.do(t, http.MethodPost, "/api/session", `{"profile":{"name":"Ada","email":"bad"},"remember":true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	_, ok, err := f.storage.Get(ctx, store.KeyRememberedUser)
	require.NoError(t, err)
	assert.False(t, ok, "nothing remembered after a rejected sign-in")

	rr = f.do(t, http.MethodPost, "/api/session", `{"profile":{"name":"Ada","email":"ada@example.com"},"remember":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	sess := decode[created[sessionResponse]](t, rr).Data
	require.NotNil(t, sess.Profile)
	assert.Equal(t, "Ada", sess.Profile.Name)
	assert.Equal(t, f.store.DeviceID(), sess.Profile.DeviceID)

	rr = f.do(t, http.MethodPost, "/api/onboarding", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[created[sessionResponse]](t, rr).Data.OnboardingCompleted)

	rr = f.do(t, http.MethodPost, "/api/welcome", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[created[sessionResponse]](t, rr).Data.HasSeenWelcome)

	t.Run("remembered profile and sentinels survive a restart", func(t *testing.T) {
		require.NoError(t, f.storage.Delete(ctx, store.ProfileKey(f.store.DeviceID())))

		restarted, err := store.Open(ctx, f.storage)
		require.NoError(t, err)
		require.NotNil(t, restarted.Profile())
		assert.Equal(t, "ada@example.com", restarted.Profile().Email)
		assert.True(t, restarted.OnboardingCompleted())
		assert.True(t, restarted.HasSeenWelcome())
	})

	rr = f.do(t, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, f.store.Profile())
	_, ok, err = f.storage.Get(ctx, store.KeyRememberedUser)
	require.NoError(t, err)
	assert.False(t, ok, "sign-out forgets the remembered profile")
}

func TestSignInWithoutRemember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)

	rr := f.do(t, http.MethodPost, "/api/session", `{"profile":{"name":"Bob","email":"bob@example.com"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	_, ok, err := f.storage.Get(ctx, store.KeyRememberedUser)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Bob", f.store.Profile().Name)
}
