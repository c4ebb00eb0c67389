package http

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"finwise/internal/core"
	"finwise/internal/log"
)

type validator interface {
	Validate() error
}

// create decodes and validates a new entity, then adds it. Caller ids are
// ignored; the store assigns one.
func create[T validator](w http.ResponseWriter, r *http.Request, add func(context.Context, T) (T, error), op string) {
	var v T
	if err := decodeJSON(w, r, &v); err != nil {
		fail(w, r, err, op)
		return
	}
	if err := v.Validate(); err != nil {
		fail(w, r, err, op)
		return
	}
	created, err := add(r.Context(), v)
	respondMutation(w, r, http.StatusCreated, created, err, op)
}

func patch[P validator, T any](w http.ResponseWriter, r *http.Request, update func(context.Context, string, P) (T, bool, error), op string) {
	var p P
	if err := decodeJSON(w, r, &p); err != nil {
		fail(w, r, err, op)
		return
	}
	if err := p.Validate(); err != nil {
		fail(w, r, err, op)
		return
	}
	id := r.PathValue("id")
	updated, ok, err := update(r.Context(), id, p)
	if !ok && err == nil {
		writeError(w, http.StatusNotFound, "not found: "+id)
		return
	}
	respondMutation(w, r, http.StatusOK, updated, err, op)
}

// remove answers 204 whether or not the id existed.
func remove(w http.ResponseWriter, r *http.Request, del func(context.Context, string) (bool, error), op string) {
	id := r.PathValue("id")
	removed, err := del(r.Context(), id)
	if !removed && err == nil {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Remove of unknown id", log.FieldEntityID, id)
	}
	respondMutation(w, r, http.StatusNoContent, nil, err, op)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	create(w, r, s.store.AddTransaction, "add_transaction")
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	patch(w, r, s.store.UpdateTransaction, "update_transaction")
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	remove(w, r, s.store.RemoveTransaction, "remove_transaction")
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	create(w, r, s.store.AddSavingsGoal, "add_goal")
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	patch(w, r, s.store.UpdateSavingsGoal, "update_goal")
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	remove(w, r, s.store.RemoveSavingsGoal, "remove_goal")
}

type contribution struct {
	Amount decimal.Decimal `json:"amount"`
}

func (c contribution) Validate() error {
	if !c.Amount.IsPositive() {
		return core.ErrInvalidAmount
	}
	return nil
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	patch(w, r, func(ctx context.Context, id string, c contribution) (core.SavingsGoal, bool, error) {
		return s.store.ContributeToGoal(ctx, id, c.Amount)
	}, "contribute")
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	create(w, r, s.store.AddBudgetCategory, "add_budget")
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	patch(w, r, s.store.UpdateBudgetCategory, "update_budget")
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	remove(w, r, s.store.RemoveBudgetCategory, "remove_budget")
}
