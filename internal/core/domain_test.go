package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2025, 3, 9))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-03-09"` {
		t.Fatalf("unexpected json %s", b)
	}

	var d Date
	if err := json.Unmarshal([]byte(`"2024-02-29"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.February || d.Day() != 29 {
		t.Fatalf("unexpected date %v", d)
	}

	if err := json.Unmarshal([]byte(`"2024-02-29T18:30:00Z"`), &d); err != nil {
		t.Fatalf("unmarshal timestamp: %v", err)
	}
	if d.String() != "2024-02-29" {
		t.Fatalf("timestamp not truncated to date: %s", d)
	}

	if err := json.Unmarshal([]byte(`"29/02/2024"`), &d); err == nil {
		t.Fatalf("expected error for bad layout")
	}
}

func TestKindSign(t *testing.T) {
	if Income.Sign() != 1 || Expense.Sign() != -1 {
		t.Fatalf("unexpected signs: %d %d", Income.Sign(), Expense.Sign())
	}
	if Kind("refund").Valid() {
		t.Fatalf("unknown kind must not be valid")
	}
}

func TestTransactionDelta(t *testing.T) {
	in := Transaction{Kind: Income, Amount: MustMoney("12.50")}
	if !in.Delta().Equal(MustMoney("12.50")) {
		t.Fatalf("income delta = %s", in.Delta())
	}
	out := Transaction{Kind: Expense, Amount: MustMoney("12.50")}
	if !out.Delta().Equal(MustMoney("-12.50")) {
		t.Fatalf("expense delta = %s", out.Delta())
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:        "t1",
		Kind:      Expense,
		Amount:    MustMoney("10"),
		AccountID: "a1",
		Date:      NewDate(2025, 1, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mod  func(*Transaction)
		want error
	}{
		{"empty id", func(tx *Transaction) { tx.ID = " " }, ErrEmptyID},
		{"bad kind", func(tx *Transaction) { tx.Kind = "gift" }, ErrInvalidKind},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = MustMoney("-1") }, ErrInvalidAmount},
		{"no account", func(tx *Transaction) { tx.AccountID = "" }, ErrMissingAccount},
		{"no date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"long notes", func(tx *Transaction) { tx.Notes = strings.Repeat("x", 501) }, ErrNotesTooLong},
		{"blank tag", func(tx *Transaction) { tx.Tags = []string{"food", ""} }, ErrEmptyTag},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := good
			tc.mod(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEntityValidate(t *testing.T) {
	if err := (Account{ID: "a", Name: "Cash"}).Validate(); err != nil {
		t.Fatalf("account: %v", err)
	}
	if err := (Account{ID: "a"}).Validate(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("account without name: %v", err)
	}
	if err := (Category{ID: "c", Name: strings.Repeat("n", 101)}).Validate(); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("category long name: %v", err)
	}
	goal := SavingsGoal{ID: "g", Name: "Bike", TargetAmount: MustMoney("100")}
	if err := goal.Validate(); err != nil {
		t.Fatalf("goal: %v", err)
	}
	goal.TargetAmount = Money{}
	if err := goal.Validate(); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("goal zero target: %v", err)
	}
	goal.TargetAmount = MustMoney("100")
	goal.CurrentAmount = MustMoney("-1")
	if err := goal.Validate(); !errors.Is(err, ErrNegativeCurrent) {
		t.Fatalf("goal negative current: %v", err)
	}
}

func TestProfileCloneIsDeep(t *testing.T) {
	p := NewProfile("p1")
	p.Accounts = append(p.Accounts, Account{ID: "a", Name: "Cash"})
	p.Transactions = append(p.Transactions, Transaction{ID: "t", Tags: []string{"x"}})

	c := p.Clone()
	c.Accounts[0].Name = "Bank"
	c.Transactions[0].Tags[0] = "y"

	if p.Accounts[0].Name != "Cash" {
		t.Fatalf("clone aliased accounts")
	}
	if p.Transactions[0].Tags[0] != "x" {
		t.Fatalf("clone aliased tags")
	}
}

func TestDomainErrorKinds(t *testing.T) {
	err := ReferenceError("add_transaction", "account", "a1")
	if !IsReference(err) || IsValidation(err) {
		t.Fatalf("unexpected kind for %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("reference error should wrap ErrNotFound")
	}
	if got := err.Error(); got != `add_transaction: account "a1": not found` {
		t.Fatalf("unexpected message %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no kind")
	}
}
