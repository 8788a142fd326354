package ledger

import (
	"errors"
	"fmt"
	"time"

	"salvadanaio/internal/core"
)

// TransferBetweenAccounts moves amount from one account to another in a
// single transition.
func TransferBetweenAccounts(p core.Profile, fromID, toID string, amount core.Money) (core.Profile, error) {
	if err := amount.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpTransfer, "", err)
	}
	if fromID == toID {
		return core.Profile{}, core.ValidationError(OpTransfer, entityAccount, core.ErrSameAccount)
	}
	if _, ok := p.Account(fromID); !ok {
		return core.Profile{}, core.ReferenceError(OpTransfer, entityAccount, fromID)
	}
	if _, ok := p.Account(toID); !ok {
		return core.Profile{}, core.ReferenceError(OpTransfer, entityAccount, toID)
	}

	out := p.Clone()
	adjustBalance(out.Accounts, fromID, amount.Neg())
	adjustBalance(out.Accounts, toID, amount)
	return out, nil
}

// Contribution describes money set aside from an account towards a goal.
// TransactionID names the expense transaction the contribution records.
type Contribution struct {
	GoalID        string
	AccountID     string
	Amount        core.Money
	TransactionID string
	Date          core.Date
	CreatedAt     time.Time
}

// ContributeToGoal records an uncategorized expense on the account and
// increments the goal by the same amount, in one transition.
func ContributeToGoal(p core.Profile, c Contribution) (core.Profile, error) {
	if err := c.Amount.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpContribute, entityGoal, err)
	}
	goal, ok := p.Goal(c.GoalID)
	if !ok {
		return core.Profile{}, core.ReferenceError(OpContribute, entityGoal, c.GoalID)
	}

	tx := core.Transaction{
		ID:        c.TransactionID,
		Kind:      core.Expense,
		Amount:    c.Amount,
		AccountID: c.AccountID,
		Date:      c.Date,
		Notes:     fmt.Sprintf("Contribution to %s", goal.Name),
		CreatedAt: c.CreatedAt,
	}
	out, err := AddTransaction(p, tx)
	if err != nil {
		var de *core.DomainError
		if errors.As(err, &de) {
			de.Op = OpContribute
		}
		return core.Profile{}, err
	}
	for i := range out.Goals {
		if out.Goals[i].ID == c.GoalID {
			out.Goals[i].CurrentAmount = out.Goals[i].CurrentAmount.Add(c.Amount)
			break
		}
	}
	return out, nil
}
