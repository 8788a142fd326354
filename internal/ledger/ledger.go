// Package ledger implements the accounting rules over a profile snapshot.
//
// Every function takes a Profile by value and returns a new one; the input is
// never mutated. Account balances are running totals: each command applies
// the signed delta of what it changes and never recomputes a balance from the
// transaction list. A command that cannot apply returns the zero Profile and
// a *core.DomainError.
package ledger

import (
	"strings"

	"salvadanaio/internal/core"
)

// Command names, used in errors and logs.
const (
	OpAddTransaction    = "add_transaction"
	OpUpdateTransaction = "update_transaction"
	OpDeleteTransaction = "delete_transaction"
	OpTransfer          = "transfer_between_accounts"
	OpContribute        = "contribute_to_goal"
	OpAddAccount        = "add_account"
	OpUpdateAccount     = "update_account"
	OpDeleteAccount     = "delete_account"
	OpAddCategory       = "add_category"
	OpUpdateCategory    = "update_category"
	OpDeleteCategory    = "delete_category"
	OpAddGoal           = "add_savings_goal"
	OpUpdateGoal        = "update_savings_goal"
	OpDeleteGoal        = "delete_savings_goal"
)

const (
	entityTransaction = "transaction"
	entityAccount     = "account"
	entityCategory    = "category"
	entityGoal        = "goal"
)

// AddTransaction prepends tx and applies its delta to the referenced account.
func AddTransaction(p core.Profile, tx core.Transaction) (core.Profile, error) {
	tx.Tags = cleanTags(tx.Tags)
	if err := tx.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpAddTransaction, entityTransaction, err)
	}
	if _, exists := p.Transaction(tx.ID); exists {
		return core.Profile{}, core.ValidationError(OpAddTransaction, entityTransaction, core.ErrDuplicateID)
	}
	if err := checkRefs(p, OpAddTransaction, tx); err != nil {
		return core.Profile{}, err
	}

	out := p.Clone()
	adjustBalance(out.Accounts, tx.AccountID, tx.Delta())
	out.Transactions = append([]core.Transaction{tx}, out.Transactions...)
	return out, nil
}

// UpdateTransaction reverts the stored version of tx against its old account
// and applies the new version against the (possibly different) new account.
// The transaction keeps its position in the list.
func UpdateTransaction(p core.Profile, tx core.Transaction) (core.Profile, error) {
	tx.Tags = cleanTags(tx.Tags)
	if err := tx.Validate(); err != nil {
		return core.Profile{}, core.ValidationError(OpUpdateTransaction, entityTransaction, err)
	}
	old, ok := p.Transaction(tx.ID)
	if !ok {
		return core.Profile{}, core.ReferenceError(OpUpdateTransaction, entityTransaction, tx.ID)
	}
	if err := checkRefs(p, OpUpdateTransaction, tx); err != nil {
		return core.Profile{}, err
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = old.CreatedAt
	}

	out := p.Clone()
	adjustBalance(out.Accounts, old.AccountID, old.Delta().Neg())
	adjustBalance(out.Accounts, tx.AccountID, tx.Delta())
	for i := range out.Transactions {
		if out.Transactions[i].ID == tx.ID {
			out.Transactions[i] = tx
			break
		}
	}
	return out, nil
}

// DeleteTransaction reverses the delta of transaction id and removes it.
func DeleteTransaction(p core.Profile, id string) (core.Profile, error) {
	old, ok := p.Transaction(id)
	if !ok {
		return core.Profile{}, core.ReferenceError(OpDeleteTransaction, entityTransaction, id)
	}

	out := p.Clone()
	adjustBalance(out.Accounts, old.AccountID, old.Delta().Neg())
	out.Transactions = removeTransactions(out.Transactions, func(t core.Transaction) bool {
		return t.ID == id
	})
	return out, nil
}

func checkRefs(p core.Profile, op string, tx core.Transaction) error {
	if _, ok := p.Account(tx.AccountID); !ok {
		return core.ReferenceError(op, entityAccount, tx.AccountID)
	}
	if tx.CategoryID != "" {
		if _, ok := p.Category(tx.CategoryID); !ok {
			return core.ReferenceError(op, entityCategory, tx.CategoryID)
		}
	}
	return nil
}

// adjustBalance adds delta to the balance of account id and reports whether
// the account was found.
func adjustBalance(accounts []core.Account, id string, delta core.Money) bool {
	for i := range accounts {
		if accounts[i].ID == id {
			accounts[i].Balance = accounts[i].Balance.Add(delta)
			return true
		}
	}
	return false
}

func removeTransactions(txs []core.Transaction, drop func(core.Transaction) bool) []core.Transaction {
	out := txs[:0]
	for _, t := range txs {
		if !drop(t) {
			out = append(out, t)
		}
	}
	return out
}

func cleanTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if _, dup := seen[t]; dup && t != "" {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
