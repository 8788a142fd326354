package core

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Amount     Money  `json:"amount"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Income     Money            `json:"income"`
	Expenses   Money            `json:"expenses"`
	ByCategory []CategoryAmount `json:"byCategory"`
}

// BalancePoint is the running balance of an account after one transaction.
type BalancePoint struct {
	TransactionID string `json:"transactionId"`
	Date          Date   `json:"date"`
	Delta         Money  `json:"delta"`
	Balance       Money  `json:"balance"`
}
