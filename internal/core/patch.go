package core

import "github.com/shopspring/decimal"

// Patches carry field-level updates. A nil field is left untouched.
type (
	TransactionPatch struct {
		Name     *string          `json:"name,omitempty"`
		Category *string          `json:"category,omitempty"`
		Amount   *decimal.Decimal `json:"amount,omitempty"`
		Date     *string          `json:"date,omitempty"`
		Type     *TransactionType `json:"type,omitempty"`
	}

	SavingsGoalPatch struct {
		Name     *string          `json:"name,omitempty"`
		Target   *decimal.Decimal `json:"target,omitempty"`
		Current  *decimal.Decimal `json:"current,omitempty"`
		Deadline *string          `json:"deadline,omitempty"`
	}

	BudgetCategoryPatch struct {
		Name      *string          `json:"name,omitempty"`
		Allocated *decimal.Decimal `json:"allocated,omitempty"`
		Spent     *decimal.Decimal `json:"spent,omitempty"`
	}
)

// Apply returns t with the patch merged in. The ID is never changed.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	return t
}

// Validate checks only the fields that are set.
func (p TransactionPatch) Validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := validatePositive(*p.Amount); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if err := validateDate(*p.Date); err != nil {
			return err
		}
	}
	if p.Type != nil && !p.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (p SavingsGoalPatch) Apply(g SavingsGoal) SavingsGoal {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Target != nil {
		g.Target = *p.Target
	}
	if p.Current != nil {
		g.Current = *p.Current
	}
	if p.Deadline != nil {
		g.Deadline = *p.Deadline
	}
	return g
}

func (p SavingsGoalPatch) Validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Target != nil {
		if err := validatePositive(*p.Target); err != nil {
			return err
		}
	}
	if p.Current != nil {
		if err := validateNonNegative(*p.Current); err != nil {
			return err
		}
	}
	if p.Deadline != nil {
		if err := validateDate(*p.Deadline); err != nil {
			return err
		}
	}
	return nil
}

func (p BudgetCategoryPatch) Apply(b BudgetCategory) BudgetCategory {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Allocated != nil {
		b.Allocated = *p.Allocated
	}
	if p.Spent != nil {
		b.Spent = *p.Spent
	}
	return b
}

func (p BudgetCategoryPatch) Validate() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Allocated != nil {
		if err := validatePositive(*p.Allocated); err != nil {
			return err
		}
	}
	if p.Spent != nil {
		if err := validateNonNegative(*p.Spent); err != nil {
			return err
		}
	}
	return nil
}
