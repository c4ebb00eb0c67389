package http

import (
	"net/http"

	"finwise/internal/core"
	"finwise/internal/store"
)

type stateResponse struct {
	store.Snapshot
	Totals core.Totals `json:"totals"`
}

type summaryResponse struct {
	Currency string              `json:"currency"`
	Totals   core.Totals         `json:"totals"`
	Budgets  []core.BudgetUsage  `json:"budgets"`
	Goals    []core.GoalProgress `json:"goals"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, stateResponse{
		Snapshot: snap,
		Totals:   core.Summarize(snap.Transactions),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, summaryResponse{
		Currency: s.store.Currency(),
		Totals:   s.store.Totals(),
		Budgets:  core.UsageOfAll(s.store.BudgetCategories()),
		Goals:    core.ProgressOfAll(s.store.SavingsGoals(), s.now()),
	})
}
