package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	maxNameLength  = 100
	maxNotesLength = 500
	dateLayout     = "2006-01-02"
)

type (
	// Kind decides the sign a transaction applies to its account balance.
	Kind string

	Date struct {
		time.Time
	}

	Account struct {
		ID             string    `json:"id"`
		Name           string    `json:"name"`
		Balance        Money     `json:"balance"`
		InitialBalance Money     `json:"initialBalance"`
		CreatedAt      time.Time `json:"createdAt"`
	}

	Category struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		IconTag   string    `json:"iconTag,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Transaction struct {
		ID         string    `json:"id"`
		Kind       Kind      `json:"kind"`
		Amount     Money     `json:"amount"`
		CategoryID string    `json:"categoryId,omitempty"` // empty when uncategorized
		AccountID  string    `json:"accountId"`
		Date       Date      `json:"date"`
		Notes      string    `json:"notes,omitempty"`
		Tags       []string  `json:"tags,omitempty"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	SavingsGoal struct {
		ID            string    `json:"id"`
		Name          string    `json:"name"`
		TargetAmount  Money     `json:"targetAmount"`
		CurrentAmount Money     `json:"currentAmount"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	// Favorite, Note and Todo ride along in the profile document. The ledger
	// never touches them but they are synchronized like everything else.
	Favorite struct {
		ID        string    `json:"id"`
		Label     string    `json:"label"`
		Ref       string    `json:"ref,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Note struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		CreatedAt time.Time `json:"createdAt"`
	}

	Todo struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		Done      bool      `json:"done"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Profile is the aggregate root: one complete snapshot of a user's state.
	// Revision grows by one on every accepted transition.
	Profile struct {
		ID           string        `json:"id"`
		Revision     uint64        `json:"revision"`
		UpdatedAt    time.Time     `json:"updatedAt"`
		Accounts     []Account     `json:"accounts"`
		Categories   []Category    `json:"categories"`
		Transactions []Transaction `json:"transactions"`
		Goals        []SavingsGoal `json:"goals"`
		Favorites    []Favorite    `json:"favorites"`
		Notes        []Note        `json:"notes"`
		Todos        []Todo        `json:"todos"`
	}
)

var (
	ErrEmptyID         = errors.New("empty id")
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = fmt.Errorf("name too long (max %d characters)", maxNameLength)
	ErrNotesTooLong    = fmt.Errorf("notes too long (max %d characters)", maxNotesLength)
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidDate     = errors.New("invalid date")
	ErrMissingAccount  = errors.New("missing account id")
	ErrEmptyTag        = errors.New("empty tag")
	ErrInvalidTarget   = errors.New("target amount must be positive")
	ErrNegativeCurrent = errors.New("current amount cannot be negative")
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Sign is +1 for income and -1 for expense.
func (k Kind) Sign() int {
	if k == Income {
		return 1
	}
	return -1
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps written by older clients.
	if len(s) > len(dateLayout) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return ErrInvalidDate
		}
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Delta is the signed effect of the transaction on its account balance.
func (t Transaction) Delta() Money {
	if t.Kind.Sign() > 0 {
		return t.Amount
	}
	return t.Amount.Neg()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return ErrMissingAccount
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Notes) > maxNotesLength {
		return ErrNotesTooLong
	}
	for _, tag := range t.Tags {
		if strings.TrimSpace(tag) == "" {
			return ErrEmptyTag
		}
	}
	return nil
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyID
	}
	return validateName(a.Name)
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	return validateName(c.Name)
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrEmptyID
	}
	if err := validateName(g.Name); err != nil {
		return err
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidTarget
	}
	if g.CurrentAmount.IsNegative() {
		return ErrNegativeCurrent
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// NewProfile returns an empty profile with non-nil collections.
func NewProfile(id string) Profile {
	return Profile{
		ID:           id,
		Accounts:     []Account{},
		Categories:   []Category{},
		Transactions: []Transaction{},
		Goals:        []SavingsGoal{},
		Favorites:    []Favorite{},
		Notes:        []Note{},
		Todos:        []Todo{},
	}
}

// Clone returns a deep copy; the ledger builds every new snapshot from one.
func (p Profile) Clone() Profile {
	out := p
	out.Accounts = append([]Account{}, p.Accounts...)
	out.Categories = append([]Category{}, p.Categories...)
	out.Transactions = make([]Transaction, len(p.Transactions))
	for i, t := range p.Transactions {
		if t.Tags != nil {
			t.Tags = append([]string{}, t.Tags...)
		}
		out.Transactions[i] = t
	}
	out.Goals = append([]SavingsGoal{}, p.Goals...)
	out.Favorites = append([]Favorite{}, p.Favorites...)
	out.Notes = append([]Note{}, p.Notes...)
	out.Todos = append([]Todo{}, p.Todos...)
	return out
}

func (p Profile) Account(id string) (Account, bool) {
	for _, a := range p.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

func (p Profile) Category(id string) (Category, bool) {
	for _, c := range p.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

func (p Profile) Goal(id string) (SavingsGoal, bool) {
	for _, g := range p.Goals {
		if g.ID == id {
			return g, true
		}
	}
	return SavingsGoal{}, false
}

func (p Profile) Transaction(id string) (Transaction, bool) {
	for _, t := range p.Transactions {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}
