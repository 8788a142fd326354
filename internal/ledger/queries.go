package ledger

import (
	"sort"
	"strings"

	"salvadanaio/internal/core"
)

const uncategorizedName = "Uncategorized"

// MonthOverview totals income and expenses for the given month and breaks
// expenses down by category, largest first.
func MonthOverview(p core.Profile, year, month int) core.MonthOverview {
	ov := core.MonthOverview{Year: year, Month: month, ByCategory: []core.CategoryAmount{}}
	byCat := map[string]core.Money{}

	for _, t := range p.Transactions {
		if t.Date.Year() != year || int(t.Date.Month()) != month {
			continue
		}
		if t.Kind == core.Income {
			ov.Income = ov.Income.Add(t.Amount)
			continue
		}
		ov.Expenses = ov.Expenses.Add(t.Amount)
		byCat[t.CategoryID] = byCat[t.CategoryID].Add(t.Amount)
	}

	for id, amt := range byCat {
		name := uncategorizedName
		if c, ok := p.Category(id); ok {
			name = c.Name
		}
		ov.ByCategory = append(ov.ByCategory, core.CategoryAmount{CategoryID: id, Name: name, Amount: amt})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		a, b := ov.ByCategory[i], ov.ByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return ov
}

// NetWorth sums every account balance.
func NetWorth(p core.Profile) core.Money {
	var total core.Money
	for _, a := range p.Accounts {
		total = total.Add(a.Balance)
	}
	return total
}

// AccountHistory walks the account's transactions oldest first and reports
// the running balance after each one, starting from the initial balance.
// Transfers move balances without a transaction and do not appear here.
func AccountHistory(p core.Profile, accountID string) ([]core.BalancePoint, error) {
	acct, ok := p.Account(accountID)
	if !ok {
		return nil, core.ReferenceError("account_history", entityAccount, accountID)
	}

	var txs []core.Transaction
	for _, t := range p.Transactions {
		if t.AccountID == accountID {
			txs = append(txs, t)
		}
	}
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.Before(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	points := make([]core.BalancePoint, 0, len(txs))
	running := acct.InitialBalance
	for _, t := range txs {
		running = running.Add(t.Delta())
		points = append(points, core.BalancePoint{
			TransactionID: t.ID,
			Date:          t.Date,
			Delta:         t.Delta(),
			Balance:       running,
		})
	}
	return points, nil
}
