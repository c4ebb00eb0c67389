package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

const (
	// DateLayout is the calendar-date format used by every persisted date field.
	DateLayout = "2006-01-02"

	DefaultCurrency = "USD"
	DefaultTheme    = ThemeLight

	maxNameLength = 200
)

type (
	TransactionType string

	Theme string

	// UserProfile is replaced wholesale on edit. The optional onboarding
	// fields are nil when the user skipped them.
	UserProfile struct {
		Name            string           `json:"name"`
		Email           string           `json:"email"`
		DeviceID        string           `json:"deviceId"`
		MonthlyIncome   *decimal.Decimal `json:"monthlyIncome,omitempty"`
		MonthlyExpenses *decimal.Decimal `json:"monthlyExpenses,omitempty"`
		SavingsGoal     *decimal.Decimal `json:"savingsGoal,omitempty"`
		ReferralSource  string           `json:"referralSource,omitempty"`
	}

	Transaction struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Category string          `json:"category"` // free-form, matched to budgets by name only in views
		Amount   decimal.Decimal `json:"amount"`
		Date     string          `json:"date"`
		Type     TransactionType `json:"type"`
	}

	SavingsGoal struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Target   decimal.Decimal `json:"target"`
		Current  decimal.Decimal `json:"current"`
		Deadline string          `json:"deadline"`
	}

	BudgetCategory struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Allocated decimal.Decimal `json:"allocated"`
		Spent     decimal.Decimal `json:"spent"`
	}
)

var (
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrInvalidDate     = errors.New("invalid date (expected YYYY-MM-DD)")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidTheme    = errors.New("invalid theme")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrInvalidEmail    = errors.New("invalid email address")
)

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// ValidateCurrency accepts ISO 4217 codes, case-insensitively.
func ValidateCurrency(code string) error {
	if len(strings.TrimSpace(code)) != 3 {
		return ErrInvalidCurrency
	}
	if _, err := currency.ParseISO(NormalizeCurrency(code)); err != nil {
		return ErrInvalidCurrency
	}
	return nil
}

// NormalizeCurrency upper-cases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func validatePositive(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func validateNonNegative(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

func validateDate(s string) error {
	_, err := ParseDate(s)
	return err
}

func (p UserProfile) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if strings.TrimSpace(p.Email) != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	for _, v := range []*decimal.Decimal{p.MonthlyIncome, p.MonthlyExpenses, p.SavingsGoal} {
		if v != nil {
			if err := validateNonNegative(*v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := validateName(t.Name); err != nil {
		return err
	}
	if err := validatePositive(t.Amount); err != nil {
		return err
	}
	if err := validateDate(t.Date); err != nil {
		return err
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if err := validateName(g.Name); err != nil {
		return err
	}
	if err := validatePositive(g.Target); err != nil {
		return err
	}
	if err := validateNonNegative(g.Current); err != nil {
		return err
	}
	return validateDate(g.Deadline)
}

func (b BudgetCategory) Validate() error {
	if err := validateName(b.Name); err != nil {
		return err
	}
	if err := validatePositive(b.Allocated); err != nil {
		return err
	}
	return validateNonNegative(b.Spent)
}
