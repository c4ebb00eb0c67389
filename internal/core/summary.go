package core

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Budget usage thresholds, in percent of the allocated amount.
const (
	WarningThreshold  = 75
	CriticalThreshold = 90

	// goalOnTrackPercent is the naive progress floor for an unfinished goal
	// whose deadline has not passed yet.
	goalOnTrackPercent = 50
)

const (
	StatusGood     BudgetStatus = "good"
	StatusWarning  BudgetStatus = "warning"
	StatusCritical BudgetStatus = "critical"
)

type BudgetStatus string

// Severity orders statuses so escalations can be detected.
func (s BudgetStatus) Severity() int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Totals is the single derivation of income/expense aggregates shared by
// every view.
type Totals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Balance  decimal.Decimal `json:"balance"`
	Count    int             `json:"count"`
}

// BudgetUsage is a budget category annotated with its spend status.
type BudgetUsage struct {
	BudgetCategory
	Percentage float64         `json:"percentage"`
	Remaining  decimal.Decimal `json:"remaining"`
	Status     BudgetStatus    `json:"status"`
}

// GoalProgress is a savings goal annotated with its progress.
type GoalProgress struct {
	SavingsGoal
	Percentage    float64         `json:"progress"`
	Remaining     decimal.Decimal `json:"remaining"`
	DaysRemaining int             `json:"daysRemaining"`
	Complete      bool            `json:"complete"`
	OnTrack       bool            `json:"onTrack"`
}

// Summarize sums income and expenses over txs.
func Summarize(txs []Transaction) Totals {
	t := Totals{Income: decimal.Zero, Expenses: decimal.Zero, Count: len(txs)}
	for _, tx := range txs {
		switch tx.Type {
		case Income:
			t.Income = t.Income.Add(tx.Amount)
		case Expense:
			t.Expenses = t.Expenses.Add(tx.Amount)
		}
	}
	t.Balance = t.Income.Sub(t.Expenses)
	return t
}

// StatusFor classifies a spend percentage.
func StatusFor(percentage float64) BudgetStatus {
	switch {
	case percentage >= CriticalThreshold:
		return StatusCritical
	case percentage >= WarningThreshold:
		return StatusWarning
	default:
		return StatusGood
	}
}

// UsageOf classifies on the exact ratio. Percentage is rounded for display.
func UsageOf(b BudgetCategory) BudgetUsage {
	exact, _ := ratioPercent(b.Spent, b.Allocated).Float64()
	return BudgetUsage{
		BudgetCategory: b,
		Percentage:     percentOf(b.Spent, b.Allocated),
		Remaining:      b.Allocated.Sub(b.Spent),
		Status:         StatusFor(exact),
	}
}

func UsageOfAll(budgets []BudgetCategory) []BudgetUsage {
	out := make([]BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, UsageOf(b))
	}
	return out
}

// ProgressOf computes goal progress relative to now. An unparseable
// deadline counts as already passed.
func ProgressOf(g SavingsGoal, now time.Time) GoalProgress {
	pct := percentOf(g.Current, g.Target)
	p := GoalProgress{
		SavingsGoal: g,
		Percentage:  pct,
		Remaining:   decimal.Max(g.Target.Sub(g.Current), decimal.Zero),
		Complete:    g.Target.IsPositive() && g.Current.GreaterThanOrEqual(g.Target),
	}
	passed := true
	if deadline, err := ParseDate(g.Deadline); err == nil {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		p.DaysRemaining = int(math.Ceil(deadline.Sub(today).Hours() / 24))
		passed = p.DaysRemaining < 0
	}
	exact, _ := ratioPercent(g.Current, g.Target).Float64()
	p.OnTrack = p.Complete || (!passed && exact >= goalOnTrackPercent)
	return p
}

func ProgressOfAll(goals []SavingsGoal, now time.Time) []GoalProgress {
	out := make([]GoalProgress, 0, len(goals))
	for _, g := range goals {
		out = append(out, ProgressOf(g, now))
	}
	return out
}
