package ledger

import (
	"salvadanaio/internal/core"
)

// AddAccount appends a. Its balance starts at InitialBalance.
func AddAccount(p core.Profile, a core.Account) (core.Profile, error) {
	if err := a.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpAddAccount, entityAccount, err)
	}
	if _, exists := p.Account(a.ID); exists {
		return core.Profile{}, core.ValidationError(OpAddAccount, entityAccount, core.ErrDuplicateID)
	}
	a.Balance = a.InitialBalance

	out := p.Clone()
	out.Accounts = append(out.Accounts, a)
	return out, nil
}

// UpdateAccount renames account a.ID. Balances belong to the ledger and are
// carried over from the stored account.
func UpdateAccount(p core.Profile, a core.Account) (core.Profile, error) {
	if err := a.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpUpdateAccount, entityAccount, err)
	}
	out := p.Clone()
	for i := range out.Accounts {
		if out.Accounts[i].ID == a.ID {
			out.Accounts[i].Name = a.Name
			return out, nil
		}
	}
	return core.Profile{}, core.ReferenceError(OpUpdateAccount, entityAccount, a.ID)
}

// DeleteAccount removes account id together with every transaction that
// references it.
func DeleteAccount(p core.Profile, id string) (core.Profile, error) {
	if _, ok := p.Account(id); !ok {
		return core.Profile{}, core.ReferenceError(OpDeleteAccount, entityAccount, id)
	}
	out := p.Clone()
	accounts := out.Accounts[:0]
	for _, a := range out.Accounts {
		if a.ID != id {
			accounts = append(accounts, a)
		}
	}
	out.Accounts = accounts
	out.Transactions = removeTransactions(out.Transactions, func(t core.Transaction) bool {
		return t.AccountID == id
	})
	return out, nil
}

// CountTransactions returns how many transactions reference account id.
func CountTransactions(p core.Profile, accountID string) int {
	n := 0
	for _, t := range p.Transactions {
		if t.AccountID == accountID {
			n++
		}
	}
	return n
}

func AddCategory(p core.Profile, c core.Category) (core.Profile, error) {
	if err := c.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpAddCategory, entityCategory, err)
	}
	if _, exists := p.Category(c.ID); exists {
		return core.Profile{}, core.ValidationError(OpAddCategory, entityCategory, core.ErrDuplicateID)
	}
	out := p.Clone()
	out.Categories = append(out.Categories, c)
	return out, nil
}

func UpdateCategory(p core.Profile, c core.Category) (core.Profile, error) {
	if err := c.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpUpdateCategory, entityCategory, err)
	}
	out := p.Clone()
	for i := range out.Categories {
		if out.Categories[i].ID == c.ID {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = out.Categories[i].CreatedAt
			}
			out.Categories[i] = c
			return out, nil
		}
	}
	return core.Profile{}, core.ReferenceError(OpUpdateCategory, entityCategory, c.ID)
}

// DeleteCategory removes category id and clears it on every transaction that
// used it. Transactions themselves are kept.
func DeleteCategory(p core.Profile, id string) (core.Profile, error) {
	if _, ok := p.Category(id); !ok {
		return core.Profile{}, core.ReferenceError(OpDeleteCategory, entityCategory, id)
	}
	out := p.Clone()
	cats := out.Categories[:0]
	for _, c := range out.Categories {
		if c.ID != id {
			cats = append(cats, c)
		}
	}
	out.Categories = cats
	for i := range out.Transactions {
		if out.Transactions[i].CategoryID == id {
			out.Transactions[i].CategoryID = ""
		}
	}
	return out, nil
}

func AddSavingsGoal(p core.Profile, g core.SavingsGoal) (core.Profile, error) {
	if err := g.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpAddGoal, entityGoal, err)
	}
	if _, exists := p.Goal(g.ID); exists {
		return core.Profile{}, core.ValidationError(OpAddGoal, entityGoal, core.ErrDuplicateID)
	}
	out := p.Clone()
	out.Goals = append(out.Goals, g)
	return out, nil
}

// UpdateSavingsGoal changes name and target. CurrentAmount only moves through
// ContributeToGoal, so the stored value wins.
func UpdateSavingsGoal(p core.Profile, g core.SavingsGoal) (core.Profile, error) {
	stored, ok := p.Goal(g.ID)
	if !ok {
		if err := g.Validate(); err != nil {
			return core.Profile{}, core.ValidationError(OpUpdateGoal, entityGoal, err)
		}
		return core.Profile{}, core.ReferenceError(OpUpdateGoal, entityGoal, g.ID)
	}
	g.CurrentAmount = stored.CurrentAmount
	g.CreatedAt = stored.CreatedAt
	if err := g.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpUpdateGoal, entityGoal, err)
	}
	out := p.Clone()
	for i := range out.Goals {
		if out.Goals[i].ID == g.ID {
			out.Goals[i] = g
			break
		}
	}
	return out, nil
}

func DeleteSavingsGoal(p core.Profile, id string) (core.Profile, error) {
	if _, ok := p.Goal(id); !ok {
		return core.Profile{}, core.ReferenceError(OpDeleteGoal, entityGoal, id)
	}
	out := p.Clone()
	goals := out.Goals[:0]
	for _, g := range out.Goals {
		if g.ID != id {
			goals = append(goals, g)
		}
	}
	out.Goals = goals
	return out, nil
}
