package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"finwise/internal/core"
)

const defaultSystemPrompt = "You are FinWise, a friendly personal finance assistant. " +
	"Answer briefly and practically, using the user's financial data when it is relevant. " +
	"Keep a warm, encouraging tone and avoid jargon."

// Payload is the financial snapshot sent along with each question.
type Payload struct {
	Currency           string              `json:"currency"`
	RecentTransactions []core.Transaction  `json:"recentTransactions"`
	Budgets            []core.BudgetUsage  `json:"budgets"`
	SavingsGoals       []core.GoalProgress `json:"savingsGoals"`
	Totals             core.Totals         `json:"totals"`
}

// BuildPayload collects the last limit transactions plus every budget and
// goal. Totals cover all transactions, not only the recent ones.
func BuildPayload(data DataSource, limit int, now time.Time) Payload {
	txs := data.Transactions()
	recent := txs
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	return Payload{
		Currency:           data.Currency(),
		RecentTransactions: recent,
		Budgets:            core.UsageOfAll(data.BudgetCategories()),
		SavingsGoals:       core.ProgressOfAll(data.SavingsGoals(), now),
		Totals:             core.Summarize(txs),
	}
}

// SystemPrompt returns custom (or the default persona) followed by the
// language instruction.
func SystemPrompt(custom, lang string) string {
	prompt := strings.TrimSpace(custom)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return prompt + "\n\n" + languageInstruction(lang)
}

func languageInstruction(lang string) string {
	name := LanguageName(lang)
	if name == "English" {
		return "Always respond in English."
	}
	return fmt.Sprintf("Always respond in %s. If you cannot respond in %s, respond in English "+
		"and start with a one-sentence note that %s is not available.", name, name, name)
}

// LanguageName returns the English display name of a language code, or the
// code itself when it is unknown.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

func userMessage(question string, p Payload) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode financial data: %w", err)
	}
	return strings.TrimSpace(question) + "\n\nMy current financial data (JSON):\n" + string(data), nil
}
