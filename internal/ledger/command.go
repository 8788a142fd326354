package ledger

import (
	"fmt"

	"salvadanaio/internal/core"
)

// Command is one ledger operation with its arguments bound. The sync layer
// dispatches every command through the same path.
type Command interface {
	Name() string
	Apply(core.Profile) (core.Profile, error)
}

type AddTransactionCmd struct{ Tx core.Transaction }

func (AddTransactionCmd) Name() string { return OpAddTransaction }
func (c AddTransactionCmd) Apply(p core.Profile) (core.Profile, error) {
	return AddTransaction(p, c.Tx)
}

type UpdateTransactionCmd struct{ Tx core.Transaction }

func (UpdateTransactionCmd) Name() string { return OpUpdateTransaction }
func (c UpdateTransactionCmd) Apply(p core.Profile) (core.Profile, error) {
	return UpdateTransaction(p, c.Tx)
}

type DeleteTransactionCmd struct{ ID string }

func (DeleteTransactionCmd) Name() string { return OpDeleteTransaction }
func (c DeleteTransactionCmd) Apply(p core.Profile) (core.Profile, error) {
	return DeleteTransaction(p, c.ID)
}

type TransferCmd struct {
	FromID string
	ToID   string
	Amount core.Money
}

func (TransferCmd) Name() string { return OpTransfer }
func (c TransferCmd) Apply(p core.Profile) (core.Profile, error) {
	return TransferBetweenAccounts(p, c.FromID, c.ToID, c.Amount)
}

type ContributeCmd struct{ Contribution Contribution }

func (ContributeCmd) Name() string { return OpContribute }
func (c ContributeCmd) Apply(p core.Profile) (core.Profile, error) {
	return ContributeToGoal(p, c.Contribution)
}

type AddAccountCmd struct{ Account core.Account }

func (AddAccountCmd) Name() string { return OpAddAccount }
func (c AddAccountCmd) Apply(p core.Profile) (core.Profile, error) {
	return AddAccount(p, c.Account)
}

type UpdateAccountCmd struct{ Account core.Account }

func (UpdateAccountCmd) Name() string { return OpUpdateAccount }
func (c UpdateAccountCmd) Apply(p core.Profile) (core.Profile, error) {
	return UpdateAccount(p, c.Account)
}

type DeleteAccountCmd struct{ ID string }

func (DeleteAccountCmd) Name() string { return OpDeleteAccount }
func (c DeleteAccountCmd) Apply(p core.Profile) (core.Profile, error) {
	return DeleteAccount(p, c.ID)
}

type AddCategoryCmd struct{ Category core.Category }

func (AddCategoryCmd) Name() string { return OpAddCategory }
func (c AddCategoryCmd) Apply(p core.Profile) (core.Profile, error) {
	return AddCategory(p, c.Category)
}

type UpdateCategoryCmd struct{ Category core.Category }

func (UpdateCategoryCmd) Name() string { return OpUpdateCategory }
func (c UpdateCategoryCmd) Apply(p core.Profile) (core.Profile, error) {
	return UpdateCategory(p, c.Category)
}

type DeleteCategoryCmd struct{ ID string }

func (DeleteCategoryCmd) Name() string { return OpDeleteCategory }
func (c DeleteCategoryCmd) Apply(p core.Profile) (core.Profile, error) {
	return DeleteCategory(p, c.ID)
}

type AddGoalCmd struct{ Goal core.SavingsGoal }

func (AddGoalCmd) Name() string { return OpAddGoal }
func (c AddGoalCmd) Apply(p core.Profile) (core.Profile, error) {
	return AddSavingsGoal(p, c.Goal)
}

type UpdateGoalCmd struct{ Goal core.SavingsGoal }

func (UpdateGoalCmd) Name() string { return OpUpdateGoal }
func (c UpdateGoalCmd) Apply(p core.Profile) (core.Profile, error) {
	return UpdateSavingsGoal(p, c.Goal)
}

type DeleteGoalCmd struct{ ID string }

func (DeleteGoalCmd) Name() string { return OpDeleteGoal }
func (c DeleteGoalCmd) Apply(p core.Profile) (core.Profile, error) {
	return DeleteSavingsGoal(p, c.ID)
}

// Replay folds cmds over initial in order and stops at the first failure.
func Replay(initial core.Profile, cmds ...Command) (core.Profile, error) {
	p := initial
	for i, c := range cmds {
		next, err := c.Apply(p)
		if err != nil {
			return p, fmt.Errorf("replay command %d (%s): %w", i, c.Name(), err)
		}
		p = next
	}
	return p, nil
}
